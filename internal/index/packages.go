package index

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParsePackages scans a Packages index (already decompressed) and returns
// one FileEntry per paragraph that carries both a Filename and a Size
// field. Unlike pault.ag/go/debian/control's reflective decoder, a
// paragraph missing either field is silently dropped rather than failing
// the whole parse - a mirror only cares about the subset of fields it
// needs to reconcile the pool, and a malformed or truncated paragraph at
// EOF should not poison everything that parsed cleanly before it.
func ParsePackages(r io.Reader) ([]FileEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []FileEntry
	fields := map[string]string{}
	lastKey := ""

	flush := func() {
		filename, hasFilename := fields["Filename"]
		sizeStr, hasSize := fields["Size"]
		if hasFilename && hasSize {
			if size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 10, 64); err == nil {
				entries = append(entries, FileEntry{Path: filename, Size: size})
			}
		}
		fields = map[string]string{}
		lastKey = ""
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && lastKey != "" {
			// Continuation line; only Filename/Size ever matter here and
			// neither is ever folded, so continuations are just discarded.
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		fields[key] = strings.TrimSpace(value)
		lastKey = key
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning Packages index")
	}
	flush()

	return entries, nil
}
