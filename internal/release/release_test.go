package release

import (
	"testing"
)

const sampleRelease = `Origin: AOSC OS
Label: AOSC OS
Suite: stable
Codename: stable
Version: 1.0
Date: Thu, 01 Jan 2026 00:00:00 UTC
Architectures: amd64 arm64
Components: main
SHA256:
 aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa 1024 main/binary-amd64/Packages
 bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb 512 main/binary-amd64/Packages.gz
 cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc 2048 main/binary-arm64/Packages.gz
MD5Sum:
 deadbeefdeadbeefdeadbeefdeadbeef 1024 main/binary-amd64/Packages
`

func TestParseAndFiles(t *testing.T) {
	info, err := Parse([]byte(sampleRelease))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if info.Suite != "stable" || info.Codename != "stable" {
		t.Fatalf("unexpected suite/codename: %+v", info)
	}

	files := info.Files()
	if len(files) != 3 {
		t.Fatalf("expected 3 distinct files, got %d: %+v", len(files), files)
	}

	for _, f := range files {
		if f.Filename == "main/binary-amd64/Packages" && f.Hash.Algorithm != "sha256" {
			t.Errorf("expected strongest hash (sha256) retained for duplicate-hashed file, got %s", f.Hash.Algorithm)
		}
	}
}

func TestRelevantFiltersByComponentAndArch(t *testing.T) {
	info, err := Parse([]byte(sampleRelease))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	relevant := info.Relevant([]string{"main"}, []string{"amd64"}, false)
	for _, f := range relevant {
		if f.Filename == "main/binary-arm64/Packages.gz" {
			t.Errorf("arm64 file should have been filtered out: %+v", relevant)
		}
	}

	none := info.Relevant([]string{"contrib"}, []string{"amd64"}, false)
	if len(none) != 0 {
		t.Errorf("expected no files relevant to an unconfigured component, got %+v", none)
	}
}

func TestMatchesSuite(t *testing.T) {
	info, err := Parse([]byte(sampleRelease))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !info.MatchesSuite("stable") {
		t.Error("expected suite name stable to match")
	}
	if info.MatchesSuite("unstable") {
		t.Error("expected suite name unstable not to match")
	}
}
