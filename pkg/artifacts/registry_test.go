package artifacts

import (
	"testing"

	"github.com/reagent-dev/reagent/pkg/api"
)

func TestRegistry_AddAndGet(t *testing.T) {
	r := NewRegistry()
	r.Add(
		api.Artifact{ID: "art_1", Name: "plot.png", MediaType: "image/png", Path: "/tmp/plot.png"},
		api.Artifact{ID: "art_2", Name: "data.csv", MediaType: "text/csv", Path: "/tmp/data.csv"},
	)

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	a, ok := r.Get("art_1")
	if !ok {
		t.Fatal("art_1 not found")
	}
	if a.Path != "/tmp/plot.png" {
		t.Errorf("path = %q", a.Path)
	}

	if _, ok := r.Get("art_missing"); ok {
		t.Error("unexpected hit for unknown ID")
	}
}

func TestRegistry_SkipsEmptyIDs(t *testing.T) {
	r := NewRegistry()
	r.Add(api.Artifact{Name: "anonymous.bin"})
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_LastWriteWins(t *testing.T) {
	r := NewRegistry()
	r.Add(api.Artifact{ID: "art_1", Path: "/old"})
	r.Add(api.Artifact{ID: "art_1", Path: "/new"})

	a, _ := r.Get("art_1")
	if a.Path != "/new" {
		t.Errorf("path = %q, want /new", a.Path)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
