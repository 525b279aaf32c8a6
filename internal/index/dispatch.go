package index

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Kind distinguishes which paragraph grammar a Job should be parsed with.
type Kind int

const (
	// KindPackages parses with ParsePackages.
	KindPackages Kind = iota
	// KindSources parses with ParseSources.
	KindSources
)

// Job names one already-fetched index file to parse and a decompressing
// opener for its contents.
type Job struct {
	// Path identifies the job for error messages (the dists-relative
	// path of the index file).
	Path string
	Kind Kind
	Open func() (io.ReadCloser, error)
}

// Collect parses every Job and merges the resulting FileEntry slices into
// one universe. Jobs are fanned out across parallelJobs workers - mirroring
// the bounded worker pool the sync orchestrator uses everywhere else - and
// the first parse error aborts the remaining work via the errgroup's
// context.
func Collect(ctx context.Context, jobs []Job, parallelJobs int) ([]FileEntry, error) {
	if parallelJobs < 1 {
		parallelJobs = 1
	}

	results := make([][]FileEntry, len(jobs))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelJobs)

	for i, job := range jobs {
		i, job := i, job
		group.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			rc, err := job.Open()
			if err != nil {
				return errors.Wrapf(err, "opening index %s", job.Path)
			}
			defer rc.Close()

			var entries []FileEntry
			switch job.Kind {
			case KindPackages:
				entries, err = ParsePackages(rc)
			case KindSources:
				entries, err = ParseSources(rc)
			default:
				err = errors.Errorf("unknown index kind for %s", job.Path)
			}
			if err != nil {
				return errors.Wrapf(err, "parsing index %s", job.Path)
			}
			results[i] = entries
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	var universe []FileEntry
	for _, entries := range results {
		universe = append(universe, entries...)
	}
	return universe, nil
}
