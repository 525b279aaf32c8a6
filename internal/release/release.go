// Package release parses Release/InRelease documents and fetches the index
// files they declare, verifying each one against its published checksum.
package release

import (
	"bytes"
	"sort"

	"github.com/pkg/errors"
	"pault.ag/go/debian/control"
	"pault.ag/go/debian/dependency"
)

// Info is the parsed content of a Release or InRelease file: everything the
// sync job needs to decide which indices are relevant and what they should
// hash to. Field layout mirrors the deb822 grammar the Debian repository
// format document describes.
type Info struct {
	control.Paragraph

	Origin   string
	Label    string
	Suite    string
	Codename string
	Version  string

	Components    []string `delim:" "`
	Architectures []dependency.Arch

	Date       string
	ValidUntil string `control:"Valid-Until"`

	MD5Sum []control.MD5FileHash    `delim:"\n" strip:" \t\n\r" multiline:"true"`
	SHA1   []control.SHA1FileHash   `delim:"\n" strip:" \t\n\r" multiline:"true"`
	SHA256 []control.SHA256FileHash `delim:"\n" strip:" \t\n\r" multiline:"true"`
	SHA512 []control.SHA512FileHash `delim:"\n" strip:" \t\n\r" multiline:"true"`

	AcquireByHash bool `control:"Acquire-By-Hash"`
}

// Parse decodes a Release/InRelease body. The body must already be the bare
// (unsigned) document - callers verify and strip the signature themselves
// via internal/keyring before calling Parse.
func Parse(body []byte) (*Info, error) {
	ret := Info{}
	decoder, err := control.NewDecoder(bytes.NewReader(body), nil)
	if err != nil {
		return nil, errors.Wrap(err, "constructing Release decoder")
	}
	if err := decoder.Decode(&ret); err != nil {
		return nil, errors.Wrap(err, "decoding Release document")
	}
	return &ret, nil
}

// MatchesSuite reports whether suite names this Release document, either as
// its Suite or its Codename - a mirror may be asked for either one.
func (r *Info) MatchesSuite(suite string) bool {
	return r.Suite == suite || r.Codename == suite
}

// hashRank orders hash algorithms from strongest to weakest; Files picks the
// strongest available hash for each declared filename, per the Debian
// repository format's client guidance that MD5Sum and SHA1 must not be
// relied on for security purposes.
var hashRank = map[string]int{"sha512": 0, "sha256": 1, "sha1": 2, "md5": 3}

// File names one index file declared by a Release document together with
// the strongest hash available for it.
type File struct {
	Filename string
	Size     int64
	Hash     control.FileHash
}

// Files returns the set of files this Release document declares checksums
// for, each carrying only the strongest available hash. The result is
// sorted by filename for deterministic iteration.
func (r *Info) Files() []File {
	best := map[string]control.FileHash{}
	consider := func(h control.FileHash) {
		existing, ok := best[h.Filename]
		if !ok || hashRank[h.Algorithm] < hashRank[existing.Algorithm] {
			best[h.Filename] = h
		}
	}
	for _, h := range r.MD5Sum {
		consider(h.FileHash)
	}
	for _, h := range r.SHA1 {
		consider(h.FileHash)
	}
	for _, h := range r.SHA256 {
		consider(h.FileHash)
	}
	for _, h := range r.SHA512 {
		consider(h.FileHash)
	}

	files := make([]File, 0, len(best))
	for name, h := range best {
		files = append(files, File{Filename: name, Size: h.Size, Hash: h})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })
	return files
}

// Relevant filters Files to the component/architecture combinations a
// Configuration actually mirrors. A file is relevant if the first element of
// its path is one of the wanted components (any first element passes when no
// components are wanted; top-level files like Contents-* are therefore
// dropped whenever components are configured), and, when it names an
// architecture-specific or source directory, that architecture is wanted
// (respectively source mirroring is enabled) too.
func (r *Info) Relevant(wantComponents, wantArches []string, includeSources bool) []File {
	components := toSet(wantComponents)
	arches := toSet(wantArches)

	var out []File
	for _, f := range r.Files() {
		if !relevantPath(f.Filename, components, arches, includeSources) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func relevantPath(path string, components, arches map[string]bool, includeSources bool) bool {
	parts := splitPath(path)
	if len(parts) == 0 {
		return true
	}
	if len(components) > 0 && !components[parts[0]] {
		return false
	}
	for _, p := range parts {
		if p == "source" && !includeSources {
			return false
		}
		if len(arches) == 0 {
			continue
		}
		if arch, ok := archFromDir(p); ok && !arches[arch] {
			return false
		}
	}
	return true
}

func archFromDir(dir string) (string, bool) {
	const prefix = "binary-"
	if len(dir) > len(prefix) && dir[:len(prefix)] == prefix {
		return dir[len(prefix):], true
	}
	return "", false
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(path); i++ {
		if path[i] == '/' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	if start < len(path) {
		parts = append(parts, path[start:])
	}
	return parts
}

func toSet(xs []string) map[string]bool {
	m := make(map[string]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}
