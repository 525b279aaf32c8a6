package index

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// sourcesState is the Sources-file paragraph state machine: a paragraph
// moves from Normal/InParagraph into InFiles on a "Files:" stanza header,
// and falls back out of InFiles as soon as a line is not indented.
type sourcesState int

const (
	stateNormal sourcesState = iota
	stateInParagraph
	stateInFiles
)

// sourceFileRow is one parsed "<md5> <size> <filename>" line from a Files:
// stanza, before it is joined with the paragraph's Directory: prefix.
type sourceFileRow struct {
	name string
	size int64
}

// ParseSources scans a Sources index (already decompressed) and returns one
// FileEntry per file row named in every paragraph's Files: stanza, each
// path joined under that paragraph's Directory: value. Each row is
// "<md5> <size> <filename>"; size is parsed so the delta scanner can use the
// same size-mismatch reconciliation it uses for Packages-derived entries,
// instead of falling back to presence-only checks.
func ParseSources(r io.Reader) ([]FileEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []FileEntry
	state := stateNormal
	var pending []sourceFileRow
	directory := ""

	flush := func() {
		for _, row := range pending {
			entries = append(entries, FileEntry{
				Path: directory + "/" + row.name,
				Size: row.size,
			})
		}
		pending = nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			flush()
			state = stateInParagraph
			continue
		}

		if (state == stateNormal || state == stateInParagraph) && strings.HasPrefix(line, "Files:") {
			state = stateInFiles
			continue
		}
		if state == stateInFiles && strings.TrimLeft(line, " \t") == line {
			state = stateInParagraph
		}

		if (state == stateNormal || state == stateInParagraph) && strings.HasPrefix(line, "Directory:") {
			fields := strings.Fields(line)
			if len(fields) == 0 {
				return nil, errors.New("malformed Directory stanza in Sources entry")
			}
			directory = fields[len(fields)-1]
			continue
		}
		if state == stateInFiles {
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return nil, errors.New("malformed Files stanza line in Sources entry")
			}
			name := fields[len(fields)-1]
			size, err := strconv.ParseInt(fields[len(fields)-2], 10, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "parsing size in Files stanza line %q", line)
			}
			pending = append(pending, sourceFileRow{name: name, size: size})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scanning Sources index")
	}
	flush()

	return entries, nil
}
