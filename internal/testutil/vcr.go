// Package testutil provides shared helpers for exercising backends
// against recorded HTTP traffic.
package testutil

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/dnaeon/go-vcr.v2/cassette"
	"gopkg.in/dnaeon/go-vcr.v2/recorder"
)

// Replay returns an HTTP client that answers from the named cassette
// under testdata/fixtures. Set QAI_VCR=record to re-record against the
// live API; replay mode never touches the network.
func Replay(t *testing.T, name string) *http.Client {
	t.Helper()

	mode := recorder.ModeReplaying
	if os.Getenv("QAI_VCR") == "record" {
		mode = recorder.ModeRecording
	}

	r, err := recorder.NewAsMode(filepath.Join("testdata", "fixtures", name), mode, nil)
	if err != nil {
		t.Fatalf("opening cassette %s: %v", name, err)
	}

	// Recorded bodies drift across re-records; method plus URL identifies
	// an interaction well enough.
	r.SetMatcher(func(req *http.Request, i cassette.Request) bool {
		return req.Method == i.Method && req.URL.String() == i.URL
	})

	t.Cleanup(func() {
		if err := r.Stop(); err != nil {
			t.Errorf("closing cassette %s: %v", name, err)
		}
	})

	return &http.Client{Transport: r}
}
