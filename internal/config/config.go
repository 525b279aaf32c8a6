// Package config loads the synchronizer's YAML configuration file.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Mode selects which repository flavor a Config's suites describe.
type Mode string

const (
	// ModeDebian mirrors a static dists/<suite> tree.
	ModeDebian Mode = "debian"
	// ModeAOSC additionally resolves dynamic topic suites from the
	// manifest topic fetcher when MirrorTopics is set.
	ModeAOSC Mode = "aosc"
)

// Config is the synchronizer's top-level configuration, loaded once at
// startup from a YAML file.
type Config struct {
	// ListenAddr is the address the HTTP control endpoint binds to.
	ListenAddr string `yaml:"listen_addr"`

	// Mode selects between a plain Debian-style archive and the AOSC
	// variant with dynamic topic suites. Empty is treated as ModeDebian.
	Mode Mode `yaml:"mode"`

	// MirrorTopics enables AOSC topic-manifest resolution. Meaningful
	// only when Mode is ModeAOSC.
	MirrorTopics bool `yaml:"mirror_topics"`

	// HTTPMirror is the upstream HTTP URL to fetch Release and index files
	// from. Pool files are fetched over RsyncURL instead.
	HTTPMirror string `yaml:"http_mirror"`

	// RsyncURL is the upstream rsync module used by the external
	// transfer program to fetch pool files.
	RsyncURL string `yaml:"rsync_url"`

	// RsyncBinary is the path to the rsync-compatible binary invoked for
	// file transfer. Defaults to "rsync" on PATH.
	RsyncBinary string `yaml:"rsync_binary"`

	// ManifestMirror is the base URL topics.json is fetched from when Mode
	// is ModeAOSC and MirrorTopics is set; it is not consulted otherwise.
	ManifestMirror string `yaml:"manifest_mirror"`

	// Dest is the root directory the mirror is published under.
	Dest string `yaml:"dest"`

	// Suites lists the static dists/ suites to mirror.
	Suites []string `yaml:"suites"`

	// Components lists the archive components to mirror (e.g. main).
	Components []string `yaml:"components"`

	// Architectures lists the binary architectures to mirror.
	Architectures []string `yaml:"architectures"`

	// MirrorSources controls whether deb-src Sources entries are
	// collected and mirrored in addition to binary packages.
	MirrorSources bool `yaml:"mirror_sources"`

	// ParallelJobs bounds concurrent downloads, parse workers, and
	// transfer workers. Values less than 1 are clamped up to 1 rather
	// than treated as "unlimited" or rejected outright.
	ParallelJobs int `yaml:"parallel_jobs"`

	// MaxRetries bounds retries of transient network errors.
	MaxRetries int `yaml:"max_retries"`

	// RequestKeyringDir holds the public keys used to verify signed
	// sync-trigger requests.
	RequestKeyringDir string `yaml:"request_keyring_dir"`

	// MetadataKeyringDir holds the public keys used to verify
	// Release/InRelease signatures.
	MetadataKeyringDir string `yaml:"metadata_keyring_dir"`

	// SkipVerification disables PGP verification entirely. Intended for
	// local testing against an unsigned mirror only.
	SkipVerification bool `yaml:"skip_verification"`
}

// clampParallelJobs enforces "at least one worker" - the spec's prescribed
// fix for the off-by-one clamp bug in the original implementation, where
// clamp(1, n) was a no-op and a misconfigured parallel_jobs of 0 produced a
// worker pool with zero capacity.
func clampParallelJobs(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Load reads and parses a YAML configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading configuration file %s", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing configuration file %s", path)
	}
	cfg.ParallelJobs = clampParallelJobs(cfg.ParallelJobs)

	if cfg.RsyncBinary == "" {
		cfg.RsyncBinary = "rsync"
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeDebian
	}

	return &cfg, nil
}
