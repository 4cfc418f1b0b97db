package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/reagent-dev/reagent/pkg/api"
)

func newTestSink(t *testing.T) *Sink {
	t.Helper()
	s, err := NewSink(t.TempDir(), api.NewSessionID())
	if err != nil {
		t.Fatalf("NewSink: %v", err)
	}
	return s
}

func TestCapture_DrainsStagingDir(t *testing.T) {
	sink := newTestSink(t)
	staging := t.TempDir()

	if err := os.WriteFile(filepath.Join(staging, "plot.png"), []byte("png-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(staging, "data.csv"), []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	arts := sink.Capture(staging)
	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(arts))
	}

	// Staging dir must be empty afterwards so the next call only sees new files.
	entries, _ := os.ReadDir(staging)
	if len(entries) != 0 {
		t.Errorf("staging dir not drained: %d files remain", len(entries))
	}

	// A second capture with nothing new produces nothing.
	if again := sink.Capture(staging); len(again) != 0 {
		t.Errorf("expected no artifacts on empty staging dir, got %d", len(again))
	}
}

func TestCapture_NamesNeverCollide(t *testing.T) {
	sink := newTestSink(t)
	staging := t.TempDir()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		if err := os.WriteFile(filepath.Join(staging, "figure.png"), []byte{byte(i)}, 0o644); err != nil {
			t.Fatal(err)
		}
		arts := sink.Capture(staging)
		if len(arts) != 1 {
			t.Fatalf("iteration %d: expected 1 artifact, got %d", i, len(arts))
		}
		if seen[arts[0].Name] {
			t.Fatalf("iteration %d: name collision %q", i, arts[0].Name)
		}
		seen[arts[0].Name] = true
	}
}

func TestCapture_MissingDirIsNotFatal(t *testing.T) {
	sink := newTestSink(t)
	if arts := sink.Capture(filepath.Join(t.TempDir(), "does-not-exist")); arts != nil {
		t.Errorf("expected nil, got %v", arts)
	}
}

func TestStore_InlinePayload(t *testing.T) {
	sink := newTestSink(t)

	art, err := sink.Store("chart.png", []byte("payload"))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if art.MediaType != "image/png" {
		t.Errorf("media type = %q", art.MediaType)
	}
	if art.Size != int64(len("payload")) {
		t.Errorf("size = %d", art.Size)
	}

	data, err := os.ReadFile(art.Path)
	if err != nil || string(data) != "payload" {
		t.Errorf("stored payload mismatch: %s, %v", data, err)
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "passwd",
		"my plot (1).png":  "my_plot__1_.png",
		"":                 "artifact",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}
