package release

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func releaseServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/dists/stable/InRelease", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/dists/stable/Release", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
	mux.HandleFunc("/dists/stable/Release.gpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not a real signature"))
	})
	return httptest.NewServer(mux)
}

func TestFetchReleaseAcceptsMatchingSuite(t *testing.T) {
	srv := releaseServer(t, sampleRelease)
	defer srv.Close()

	f := &Fetcher{Mirror: srv.URL}
	bundle, err := f.FetchRelease(context.Background(), "stable")
	if err != nil {
		t.Fatalf("FetchRelease: %v", err)
	}
	if bundle.Info.Suite != "stable" {
		t.Fatalf("unexpected parsed suite: %+v", bundle.Info)
	}
}

func TestFetchReleaseRejectsMismatchedSuite(t *testing.T) {
	mismatched := strings.Replace(sampleRelease, "Suite: stable", "Suite: testing", 1)
	mismatched = strings.Replace(mismatched, "Codename: stable", "Codename: trixie", 1)
	srv := releaseServer(t, mismatched)
	defer srv.Close()

	f := &Fetcher{Mirror: srv.URL}
	if _, err := f.FetchRelease(context.Background(), "stable"); err == nil {
		t.Fatal("expected FetchRelease to reject a Release document for a different suite")
	}
}
