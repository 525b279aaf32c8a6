// Package topic fetches and persists the AOSC topic manifest, the dynamic
// staging-suite list that supplements the static dists/ tree.
package topic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Topic is one entry of manifest/topics.json, a staging suite whose
// contents are defined by a pull request rather than a fixed dists/
// directory.
type Topic struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Date        int64    `json:"date"`
	UpdateDate  int64    `json:"update_date"`
	Arch        []string `json:"arch"`
	Packages    []string `json:"packages"`
	Draft       bool     `json:"draft"`
}

// Fetch retrieves manifest/topics.json from mirrorURL, persists it verbatim
// to destRoot/manifest/topics.json (outside any dists-<timestamp> snapshot,
// since the topic manifest is not part of the versioned archive tree), and
// returns the parsed topic list.
func Fetch(ctx context.Context, client *http.Client, mirrorURL, destRoot string) ([]Topic, error) {
	url := strings.TrimSuffix(mirrorURL, "/") + "/manifest/topics.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building topics manifest request")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetching topics manifest")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetching topics manifest: unexpected status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading topics manifest body")
	}

	var topics []Topic
	if err := json.Unmarshal(content, &topics); err != nil {
		return nil, errors.Wrap(err, "decoding topics manifest")
	}

	manifestDir := filepath.Join(destRoot, "manifest")
	if err := os.MkdirAll(manifestDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating manifest directory")
	}
	if err := os.WriteFile(filepath.Join(manifestDir, "topics.json"), content, 0o644); err != nil {
		return nil, errors.Wrap(err, "persisting topics manifest")
	}

	return topics, nil
}

// EffectiveArches returns the union of architectures referenced by the
// active (non-draft) topics, used to decide which binary-<arch> trees a
// topic-aware sync must also mirror.
func EffectiveArches(topics []Topic) []string {
	seen := map[string]bool{}
	var arches []string
	for _, t := range topics {
		if t.Draft {
			continue
		}
		for _, a := range t.Arch {
			if !seen[a] {
				seen[a] = true
				arches = append(arches, a)
			}
		}
	}
	return arches
}
