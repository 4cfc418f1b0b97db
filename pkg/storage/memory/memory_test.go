package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/reagent-dev/reagent/pkg/api"
	"github.com/reagent-dev/reagent/pkg/storage"
)

func testRun(id string) *api.Run {
	return &api.Run{
		ID:        id,
		Object:    "run",
		SessionID: "sess_1",
		Status:    api.RunStatusCompleted,
		Answer:    "done",
		CreatedAt: 1700000000,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	run := testRun("run_1")
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.ID != "run_1" || got.Answer != "done" {
		t.Errorf("got = %+v", got)
	}
}

func TestSaveDuplicate(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.SaveRun(ctx, testRun("run_1")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}
	if err := s.SaveRun(ctx, testRun("run_1")); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := New(0)
	if _, err := s.GetRun(context.Background(), "run_missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.SaveRun(ctx, testRun("run_1"))
	if err := s.DeleteRun(ctx, "run_1"); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, "run_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.DeleteRun(ctx, "run_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		s.SaveRun(ctx, testRun(fmt.Sprintf("run_%d", i)))
	}

	// Touch run_1 so run_2 becomes the oldest.
	if _, err := s.GetRun(ctx, "run_1"); err != nil {
		t.Fatalf("GetRun: %v", err)
	}

	s.SaveRun(ctx, testRun("run_4"))

	if _, err := s.GetRun(ctx, "run_2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("run_2 should have been evicted, got %v", err)
	}
	for _, id := range []string{"run_1", "run_3", "run_4"} {
		if _, err := s.GetRun(ctx, id); err != nil {
			t.Errorf("%s should survive eviction: %v", id, err)
		}
	}
	if s.Len() != 3 {
		t.Errorf("Len = %d", s.Len())
	}
}

func TestTenantScoping(t *testing.T) {
	s := New(0)
	ctxA := storage.SetTenant(context.Background(), "tenant-a")
	ctxB := storage.SetTenant(context.Background(), "tenant-b")

	if err := s.SaveRun(ctxA, testRun("run_1")); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	if _, err := s.GetRun(ctxA, "run_1"); err != nil {
		t.Errorf("owner tenant should see the run: %v", err)
	}
	if _, err := s.GetRun(ctxB, "run_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant should get ErrNotFound, got %v", err)
	}
	if err := s.DeleteRun(ctxB, "run_1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("other tenant should not delete the run, got %v", err)
	}
	// Single-tenant context sees everything.
	if _, err := s.GetRun(context.Background(), "run_1"); err != nil {
		t.Errorf("untenanted context should see the run: %v", err)
	}
}
