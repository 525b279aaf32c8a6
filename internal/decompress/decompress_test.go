package decompress

import (
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"
)

func TestOpenPlainPassesThrough(t *testing.T) {
	r, err := Open(strings.NewReader("hello"), "Packages")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("got %q, want %q", data, "hello")
	}
}

func TestOpenGzipCaseInsensitiveExtension(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	gz.Write([]byte("hello"))
	gz.Close()

	for _, name := range []string{"Packages.gz", "Packages.GZ", "Packages.Gz"} {
		r, err := Open(bytes.NewReader(buf.Bytes()), name)
		if err != nil {
			t.Fatalf("Open(%q): %v", name, err)
		}
		data, err := io.ReadAll(r)
		if err != nil {
			t.Fatalf("reading %q: %v", name, err)
		}
		if string(data) != "hello" {
			t.Fatalf("%q: got %q, want %q", name, data, "hello")
		}
	}
}

func TestOpenRejectsUnsupportedExtension(t *testing.T) {
	if _, err := Open(strings.NewReader("hello"), "Packages.bz2"); err == nil {
		t.Fatal("expected .bz2 to be rejected as an unsupported extension")
	}
}

func TestStripExtensionCaseInsensitive(t *testing.T) {
	cases := map[string]string{
		"Packages.gz": "Packages",
		"Packages.GZ": "Packages",
		"Sources.xz":  "Sources",
		"Sources.XZ":  "Sources",
		"Packages":    "Packages",
	}
	for in, want := range cases {
		if got := StripExtension(in); got != want {
			t.Errorf("StripExtension(%q) = %q, want %q", in, got, want)
		}
	}
}
