// Package sync implements the job orchestrator: the signed-trigger sequence
// that fetches metadata, reconciles the pool, and atomically republishes a
// new dists/ snapshot - plus the GC sweeper that follows it.
package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/AOSC-Dev/aosc-mirror/internal/config"
	"github.com/AOSC-Dev/aosc-mirror/internal/decompress"
	"github.com/AOSC-Dev/aosc-mirror/internal/delta"
	"github.com/AOSC-Dev/aosc-mirror/internal/index"
	"github.com/AOSC-Dev/aosc-mirror/internal/metrics"
	"github.com/AOSC-Dev/aosc-mirror/internal/release"
	"github.com/AOSC-Dev/aosc-mirror/internal/topic"
)

// Job runs one complete sync: download metadata, reconcile the pool against
// it, publish the result, and sweep what's left behind. A Job is
// constructed fresh for every sync request; nothing about it is reused
// across runs.
type Job struct {
	ID        string
	Timestamp int64

	Config  *config.Config
	Fetcher *release.Fetcher
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	// SkipVerification mirrors Config.SkipVerification; plumbed
	// separately so tests can flip it without a full Config.
	SkipVerification bool
}

// snapshotDir is the on-disk name of the staged (not-yet-published) dists
// tree for this job's timestamp.
func (j *Job) snapshotDir() string {
	return filepath.Join(j.Config.Dest, fmt.Sprintf("dists-%d", j.Timestamp))
}

// Run executes the nine-step sync sequence. It never acquires or releases
// the single-flight gate - the caller (internal/httpapi) owns that, since
// the gate must be held across the goroutine this runs in, not just the
// call to Run.
func (j *Job) Run(ctx context.Context) error {
	if j.SkipVerification {
		j.Logger.Warn("PGP verification disabled for this sync; do not run this against an untrusted mirror")
	}

	start := time.Now()
	var filesTransferred int

	err := j.run(ctx, &filesTransferred)

	duration := time.Since(start)
	if j.Metrics != nil {
		j.Metrics.SyncDuration.Observe(duration.Seconds())
		j.Metrics.SyncFilesTransferred.Add(float64(filesTransferred))
		if err != nil {
			j.Metrics.SyncFailuresTotal.Inc()
		} else {
			j.Metrics.SyncLastSuccessUnix.Set(float64(time.Now().Unix()))
		}
	}

	if err != nil {
		j.Logger.Error("sync failed", "job_id", j.ID, "error", causalChain(err))
		return err
	}
	j.Logger.Info("sync completed", "job_id", j.ID, "duration", duration, "files_transferred", filesTransferred)
	return nil
}

func (j *Job) run(ctx context.Context, filesTransferred *int) error {
	suites, arches, err := resolveSuitesAndArches(ctx, j.Config, j.Fetcher, j.Logger)
	if err != nil {
		return errors.Wrap(err, "resolving suites")
	}

	// Step 1-2: fetch and verify metadata for every resolved suite.
	bundles := map[string]*release.ReleaseBundle{}
	for _, suite := range suites {
		j.Logger.Info("fetching metadata", "suite", suite)
		bundle, err := j.Fetcher.FetchRelease(ctx, suite)
		if err != nil {
			return errors.Wrapf(err, "suite %s", suite)
		}
		bundles[suite] = bundle
	}

	snapshotDir := j.snapshotDir()
	if err := os.MkdirAll(snapshotDir, 0o755); err != nil {
		return errors.Wrap(err, "creating snapshot directory")
	}

	// Step 3: persist Release metadata and fetch+verify the index files
	// each suite's Release document declares relevant.
	var universe []index.FileEntry
	for suite, bundle := range bundles {
		suiteDir := filepath.Join(snapshotDir, suite)
		if err := persistReleaseFiles(suiteDir, bundle); err != nil {
			return errors.Wrapf(err, "persisting Release metadata for suite %s", suite)
		}

		files := bundle.Info.Relevant(j.Config.Components, arches, j.Config.MirrorSources)
		if err := j.Fetcher.FetchIndices(ctx, suite, files, bundle.Info.AcquireByHash, suiteDir); err != nil {
			return errors.Wrapf(err, "fetching indices for suite %s", suite)
		}

		entries, err := parseIndices(suiteDir, files, j.Config.ParallelJobs)
		if err != nil {
			return errors.Wrapf(err, "parsing indices for suite %s", suite)
		}
		universe = append(universe, entries...)
	}

	// Step 4 (deb-src file collection) is folded into step 3 above: when
	// MirrorSources is set, Relevant already includes each suite's
	// Sources index, and ParseSources already extracts every dsc/tarball
	// path named in its Files: stanzas - a separate collection pass over
	// the same files would just repeat that work.

	// Step 5: dedupe and sort the universe for deterministic chunking.
	universe = dedupeSorted(universe)

	// Step 6: scan for what's missing from the pool.
	missing, err := delta.Scan(ctx, j.Config.Dest, universe, j.Config.ParallelJobs)
	if err != nil {
		return errors.Wrap(err, "scanning for missing files")
	}
	j.Logger.Info("delta scan complete", "universe_size", len(universe), "missing", len(missing))

	// Step 7: transfer whatever is missing, chunked across parallel_jobs
	// external rsync invocations.
	if len(missing) > 0 {
		if err := j.transfer(ctx, missing); err != nil {
			return errors.Wrap(err, "transferring missing files")
		}
		*filesTransferred = len(missing)
	}

	// Step 8: publish atomically by swapping the dists symlink.
	if err := publish(j.Config.Dest, snapshotDir); err != nil {
		return errors.Wrap(err, "publishing snapshot")
	}

	// Step 9: sweep stale snapshots and orphaned pool files.
	known := make(map[string]struct{}, len(universe))
	for _, e := range universe {
		known[e.Path] = struct{}{}
	}
	removed, sweepErr := Sweep(j.Config.Dest, j.Timestamp, known)
	if j.Metrics != nil {
		j.Metrics.GCRemovedTotal.Add(float64(removed))
	}
	if sweepErr != nil {
		// GC failures are logged, not fatal: publication already
		// succeeded and a sync that leaves stale files behind is
		// still a usable mirror.
		j.Logger.Error("GC sweep encountered errors", "error", causalChain(sweepErr))
		if j.Metrics != nil {
			j.Metrics.GCRemoveErrorsTotal.Inc()
		}
	}

	return nil
}

// resolveSuitesAndArches determines which suites a run covers and which
// architectures are relevant for them. In plain Debian mode this is just
// the configured suites and architectures. In AOSC mode with MirrorTopics
// set, the dynamic topic manifest contributes additional (non-draft) suite
// names and widens the architecture set to whatever those topics declare.
func resolveSuitesAndArches(ctx context.Context, cfg *config.Config, fetcher *release.Fetcher, logger *slog.Logger) (suites, arches []string, err error) {
	suites = cfg.Suites
	arches = cfg.Architectures

	if cfg.Mode != config.ModeAOSC || !cfg.MirrorTopics {
		return suites, arches, nil
	}

	client := fetcher.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	topics, err := topic.Fetch(ctx, client, cfg.ManifestMirror, cfg.Dest)
	if err != nil {
		return nil, nil, errors.Wrap(err, "fetching topic manifest")
	}
	logger.Info("fetched topic manifest", "topics", len(topics))

	for _, t := range topics {
		if t.Draft {
			continue
		}
		suites = append(suites, t.Name)
	}
	arches = mergeArches(arches, topic.EffectiveArches(topics))
	return suites, arches, nil
}

func persistReleaseFiles(suiteDir string, bundle *release.ReleaseBundle) error {
	if err := os.MkdirAll(suiteDir, 0o755); err != nil {
		return err
	}
	if bundle.HasInRelease {
		if err := os.WriteFile(filepath.Join(suiteDir, "InRelease"), bundle.InRelease, 0o644); err != nil {
			return err
		}
	}
	if bundle.HasReleasePair {
		if err := os.WriteFile(filepath.Join(suiteDir, "Release"), bundle.Release, 0o644); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(suiteDir, "Release.gpg"), bundle.ReleaseGPGSig, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func parseIndices(suiteDir string, files []release.File, parallelJobs int) ([]index.FileEntry, error) {
	var jobs []index.Job
	for _, f := range files {
		f := f
		kind := index.KindPackages
		base := filepath.Base(f.Filename)
		if base == "Sources" || base == "Sources.gz" || base == "Sources.xz" {
			kind = index.KindSources
		} else if base != "Packages" && base != "Packages.gz" && base != "Packages.xz" {
			continue
		}
		path := filepath.Join(suiteDir, filepath.FromSlash(f.Filename))
		jobs = append(jobs, index.Job{
			Path: f.Filename,
			Kind: kind,
			Open: func() (io.ReadCloser, error) {
				return openDecompressed(path)
			},
		})
	}
	return index.Collect(context.Background(), jobs, parallelJobs)
}

// decompressedFile wraps an open file and its (possibly distinct)
// decompressing reader so callers get a single io.ReadCloser; closing it
// closes the underlying file regardless of which reader actually produced
// the decompressed bytes.
type decompressedFile struct {
	io.Reader
	file *os.File
}

func (d *decompressedFile) Close() error { return d.file.Close() }

func openDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := decompress.Open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &decompressedFile{Reader: r, file: f}, nil
}

// mergeArches unions base with extra, preserving base's order and dropping
// duplicates already present in base.
func mergeArches(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	out := make([]string, len(base), len(base)+len(extra))
	copy(out, base)
	for _, a := range base {
		seen[a] = true
	}
	for _, a := range extra {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	return out
}

func dedupeSorted(entries []index.FileEntry) []index.FileEntry {
	seen := make(map[string]index.FileEntry, len(entries))
	for _, e := range entries {
		if existing, ok := seen[e.Path]; !ok || existing.Size == index.UnknownSize {
			seen[e.Path] = e
		}
	}
	out := make([]index.FileEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// transfer writes one file list per worker chunk and spawns an external
// rsync-compatible process per chunk, collecting the first error.
func (j *Job) transfer(ctx context.Context, missing []index.FileEntry) error {
	tmpDir := filepath.Join(j.Config.Dest, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return errors.Wrap(err, "creating transfer staging directory")
	}
	defer os.RemoveAll(tmpDir)

	workers := j.Config.ParallelJobs
	if workers < 1 {
		workers = 1
	}
	if workers > len(missing) {
		workers = len(missing)
	}
	chunkSize := (len(missing) + workers - 1) / workers

	type chunk struct {
		idx      int
		listPath string
	}
	var chunks []chunk
	for w := 0; w < workers; w++ {
		start := w * chunkSize
		end := start + chunkSize
		if end > len(missing) {
			end = len(missing)
		}
		if start >= end {
			continue
		}
		listPath := filepath.Join(tmpDir, fmt.Sprintf("files-%d-%d.txt", j.Timestamp, w+1))
		if err := writeFileList(listPath, missing[start:end]); err != nil {
			return errors.Wrapf(err, "writing file list %s", listPath)
		}
		chunks = append(chunks, chunk{idx: w, listPath: listPath})
	}

	errs := make(chan error, len(chunks))
	for _, c := range chunks {
		c := c
		go func() {
			errs <- j.runRsync(ctx, c.listPath)
		}()
	}
	var firstErr error
	for range chunks {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func writeFileList(path string, entries []index.FileEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, e := range entries {
		if _, err := fmt.Fprintln(f, e.Path); err != nil {
			return err
		}
	}
	return nil
}

// runRsync invokes the configured rsync-compatible binary to pull every
// file named in listPath from the upstream rsync module into the pool.
func (j *Job) runRsync(ctx context.Context, listPath string) error {
	args := []string{
		"-R", "-r", "-v", "--no-motd",
		"--files-from=" + listPath,
		j.Config.RsyncURL,
		j.Config.Dest,
	}
	cmd := exec.CommandContext(ctx, j.Config.RsyncBinary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "rsync %s failed: %s", listPath, string(out))
	}
	return nil
}

// publish atomically swaps the dists symlink at root to point at
// snapshotDir, matching the write-to-temp-name-then-rename idiom the
// teacher's mirror implementations use for crash-safe snapshot swaps.
func publish(root, snapshotDir string) error {
	link := filepath.Join(root, "dists")
	tmpLink := link + ".tmp"

	_ = os.Remove(tmpLink)
	if err := os.Symlink(snapshotDir, tmpLink); err != nil {
		return errors.Wrap(err, "creating temporary symlink")
	}
	if err := os.Rename(tmpLink, link); err != nil {
		return errors.Wrap(err, "renaming symlink into place")
	}
	return nil
}

func causalChain(err error) string {
	var msg string
	for err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += err.Error()
		err = errors.Unwrap(err)
	}
	return msg
}
