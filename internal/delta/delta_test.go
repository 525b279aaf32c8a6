package delta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/AOSC-Dev/aosc-mirror/internal/index"
)

func TestScanDetectsMissingAndMismatchedSize(t *testing.T) {
	root := t.TempDir()

	if err := os.WriteFile(filepath.Join(root, "present.deb"), []byte("1234"), 0o644); err != nil {
		t.Fatalf("seeding present.deb: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "wrong-size.deb"), []byte("1234"), 0o644); err != nil {
		t.Fatalf("seeding wrong-size.deb: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "unknown-size.dsc"), []byte("1234"), 0o644); err != nil {
		t.Fatalf("seeding unknown-size.dsc: %v", err)
	}

	universe := []index.FileEntry{
		{Path: "present.deb", Size: 4},
		{Path: "wrong-size.deb", Size: 999},
		{Path: "missing.deb", Size: 10},
		{Path: "unknown-size.dsc", Size: index.UnknownSize},
	}

	missing, err := Scan(context.Background(), root, universe, 3)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	got := map[string]bool{}
	for _, e := range missing {
		got[e.Path] = true
	}
	if got["present.deb"] {
		t.Error("present.deb with matching size should not be reported missing")
	}
	if !got["wrong-size.deb"] {
		t.Error("wrong-size.deb should be reported missing due to size mismatch")
	}
	if !got["missing.deb"] {
		t.Error("missing.deb should be reported missing")
	}
	if got["unknown-size.dsc"] {
		t.Error("a file that exists with unknown declared size should be treated as present")
	}
}

func TestScanEmptyUniverse(t *testing.T) {
	missing, err := Scan(context.Background(), t.TempDir(), nil, 4)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no missing entries, got %+v", missing)
	}
}
