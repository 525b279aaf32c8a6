package index

import (
	"strings"
	"testing"
)

func TestParseSources(t *testing.T) {
	input := `Package: foo
Binary: foo
Version: 1.0
Directory: pool/main/f/foo
Files:
 deadbeef 1024 foo_1.0.dsc
 cafef00d 4096 foo_1.0.tar.xz

Package: bar
Version: 2.0
Directory: pool/main/b/bar
Files:
 abad1dea 512 bar_2.0.dsc
`
	entries, err := ParseSources(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	want := []FileEntry{
		{Path: "pool/main/f/foo/foo_1.0.dsc", Size: 1024},
		{Path: "pool/main/f/foo/foo_1.0.tar.xz", Size: 4096},
		{Path: "pool/main/b/bar/bar_2.0.dsc", Size: 512},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i, w := range want {
		if entries[i] != w {
			t.Errorf("entry %d: got %+v, want %+v", i, entries[i], w)
		}
	}
}

func TestParseSourcesNoTrailingParagraphBreak(t *testing.T) {
	// A Files: stanza that runs to EOF with no trailing blank line must
	// still be flushed.
	input := `Package: foo
Directory: pool/main/f/foo
Files:
 deadbeef 1024 foo_1.0.dsc
`
	entries, err := ParseSources(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "pool/main/f/foo/foo_1.0.dsc" || entries[0].Size != 1024 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestParseSourcesRejectsMalformedFilesRow(t *testing.T) {
	input := `Package: foo
Directory: pool/main/f/foo
Files:
 onlyonefield

`
	if _, err := ParseSources(strings.NewReader(input)); err == nil {
		t.Fatal("expected an error for a Files row missing the size/filename fields")
	}
}

func TestParseSourcesRejectsNonDecimalSize(t *testing.T) {
	input := `Package: foo
Directory: pool/main/f/foo
Files:
 deadbeef notanumber foo_1.0.dsc

`
	if _, err := ParseSources(strings.NewReader(input)); err == nil {
		t.Fatal("expected an error for a Files row with a non-decimal size")
	}
}

func TestParseSourcesScenarioSixSizes(t *testing.T) {
	input := `Package: hello
Directory: pool/main/h/hello
Files:
 aaaa 500 hello_1.0.dsc
 bbbb 12345 hello_1.0.tar.gz

`
	entries, err := ParseSources(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseSources: %v", err)
	}
	want := []FileEntry{
		{Path: "pool/main/h/hello/hello_1.0.dsc", Size: 500},
		{Path: "pool/main/h/hello/hello_1.0.tar.gz", Size: 12345},
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d: %+v", len(want), len(entries), entries)
	}
	for i, w := range want {
		if entries[i] != w {
			t.Errorf("entry %d: got %+v, want %+v", i, entries[i], w)
		}
	}
}
