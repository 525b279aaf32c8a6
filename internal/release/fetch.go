package release

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/AOSC-Dev/aosc-mirror/internal/keyring"
)

// transientError marks an error a retry might resolve - a network hiccup or
// a 5xx response - as opposed to one that will never succeed no matter how
// many times it's tried again.
type transientError struct{ error }

// Fetcher downloads Release/InRelease documents and the index files they
// declare, either from an upstream HTTP mirror or a local directory tree
// (LocalMirror), matching the two acquisition modes the teacher's
// Downloader supports.
type Fetcher struct {
	HTTPClient  *http.Client
	Mirror      string
	LocalMirror string

	MaxRetries   int
	MetadataKey  *keyring.Keyring
	ParallelJobs int
}

// open returns the bytes named by fn relative to the mirror root, from
// either the local mirror directory or the upstream HTTP server.
func (f *Fetcher) open(ctx context.Context, fn string) ([]byte, error) {
	if f.LocalMirror != "" {
		data, err := os.ReadFile(filepath.Join(f.LocalMirror, fn))
		if err != nil {
			return nil, err
		}
		return data, nil
	}

	u := strings.TrimSuffix(f.Mirror, "/") + "/" + fn
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client().Do(req)
	if err != nil {
		return nil, transientError{err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: unexpected status %d", u, resp.StatusCode)
		if resp.StatusCode >= 500 && resp.StatusCode < 600 {
			return nil, transientError{err}
		}
		return nil, err
	}
	return io.ReadAll(resp.Body)
}

func (f *Fetcher) client() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// openWithRetry retries transient errors with exponential backoff, mirroring
// the teacher's tempFileWithFilename retry loop.
func (f *Fetcher) openWithRetry(ctx context.Context, fn string) ([]byte, error) {
	var lastErr error
	for retry := 0; ; retry++ {
		data, err := f.open(ctx, fn)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if _, transient := err.(transientError); !transient || retry >= f.MaxRetries {
			break
		}
		delay := time.Duration(1<<uint(retry)) * time.Second
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// ReleaseBundle holds the raw, still-signed documents fetched for one suite
// together with the parsed, verified Release body. Both InRelease and
// Release+Release.gpg are populated whenever the upstream publishes both,
// since the mirror persists whichever of the two a client might ask for.
type ReleaseBundle struct {
	Info *Info

	InRelease      []byte
	Release        []byte
	ReleaseGPGSig  []byte
	HasInRelease   bool
	HasReleasePair bool
}

// FetchRelease retrieves and verifies the Release metadata for one suite.
// InRelease is preferred; Release+Release.gpg is fetched in addition
// whenever both are published upstream, and is independently verified, so a
// client requesting either form gets a genuinely checked document.
func (f *Fetcher) FetchRelease(ctx context.Context, suite string) (*ReleaseBundle, error) {
	bundle := &ReleaseBundle{}

	inReleaseRaw, err := f.openWithRetry(ctx, "dists/"+suite+"/InRelease")
	if err == nil {
		body, _, err := keyring.SplitInRelease(inReleaseRaw)
		if err != nil {
			return nil, errors.Wrapf(err, "splitting InRelease for suite %s", suite)
		}
		if f.MetadataKey != nil {
			if err := f.verifyClearsigned(inReleaseRaw); err != nil {
				return nil, errors.Wrapf(err, "verifying InRelease for suite %s", suite)
			}
		}
		info, err := Parse(body)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing InRelease for suite %s", suite)
		}
		if !info.MatchesSuite(suite) {
			return nil, errors.Errorf("InRelease for suite %s declares suite %q / codename %q", suite, info.Suite, info.Codename)
		}
		bundle.Info = info
		bundle.InRelease = inReleaseRaw
		bundle.HasInRelease = true
	}

	releaseRaw, errRelease := f.openWithRetry(ctx, "dists/"+suite+"/Release")
	sigRaw, errSig := f.openWithRetry(ctx, "dists/"+suite+"/Release.gpg")
	if errRelease == nil && errSig == nil {
		if f.MetadataKey != nil {
			if err := f.MetadataKey.VerifyMetadata(releaseRaw, sigRaw); err != nil {
				return nil, errors.Wrapf(err, "verifying Release.gpg for suite %s", suite)
			}
		}
		if bundle.Info == nil {
			info, err := Parse(releaseRaw)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing Release for suite %s", suite)
			}
			if !info.MatchesSuite(suite) {
				return nil, errors.Errorf("Release for suite %s declares suite %q / codename %q", suite, info.Suite, info.Codename)
			}
			bundle.Info = info
		}
		bundle.Release = releaseRaw
		bundle.ReleaseGPGSig = sigRaw
		bundle.HasReleasePair = true
	}

	if bundle.Info == nil {
		return nil, errors.Errorf("suite %s: neither InRelease nor Release+Release.gpg could be fetched and verified", suite)
	}
	return bundle, nil
}

func (f *Fetcher) verifyClearsigned(text []byte) error {
	body, sig, err := keyring.SplitInRelease(text)
	if err != nil {
		return err
	}
	return f.MetadataKey.VerifyMetadata(body, sig)
}

// FetchIndex downloads one index file declared by a Release document,
// verifying it against file.Hash, and writes the raw (still possibly
// compressed) bytes to destPath. acquireByHash rewrites the request path to
// the archive's by-hash layout, mirroring ReleaseDownloader.TempFile.
func (f *Fetcher) FetchIndex(ctx context.Context, suite string, file File, acquireByHash bool, destPath string) error {
	fn := "dists/" + suite + "/" + file.Filename
	if acquireByHash {
		fn = file.Hash.ByHashPath(fn)
	}

	data, err := f.openWithRetry(ctx, fn)
	if err != nil {
		return errors.Wrapf(err, "fetching %s", fn)
	}

	verifier, err := file.Hash.Verifier()
	if err != nil {
		return errors.Wrapf(err, "constructing verifier for %s", file.Filename)
	}
	if _, err := io.Copy(verifier, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "hashing %s", file.Filename)
	}
	if err := verifier.Close(); err != nil {
		return errors.Wrapf(err, "checksum mismatch for %s", file.Filename)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %s", destPath)
	}
	if err := os.WriteFile(destPath, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", destPath)
	}
	return nil
}

// FetchIndices downloads every file in files concurrently, bounded by
// ParallelJobs, stopping at the first failure - mirroring the bounded
// worker pool the teacher's Downloader gates with its pool type, expressed
// here with golang.org/x/sync/errgroup the way the rest of this module
// does.
func (f *Fetcher) FetchIndices(ctx context.Context, suite string, files []File, acquireByHash bool, destDir string) error {
	limit := f.ParallelJobs
	if limit < 1 {
		limit = 1
	}
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(limit)

	for _, file := range files {
		file := file
		group.Go(func() error {
			destPath := filepath.Join(destDir, filepath.FromSlash(file.Filename))
			return f.FetchIndex(ctx, suite, file, acquireByHash, destPath)
		})
	}
	return group.Wait()
}
