package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/user/pulse-ops/internal/domain"
)

func TestRunRepository(t *testing.T) {
	t.Run("Save And Get", func(t *testing.T) {
		repo := NewRunRepository(time.Minute)

		result := domain.RunResult{ID: "run-1", Status: domain.RunSucceeded}
		if err := repo.SaveRun(context.Background(), result); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		got, err := repo.GetRun(context.Background(), "run-1")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if got.ID != "run-1" || got.Status != domain.RunSucceeded {
			t.Errorf("unexpected run: %+v", got)
		}
	})

	t.Run("Unknown ID", func(t *testing.T) {
		repo := NewRunRepository(time.Minute)

		_, err := repo.GetRun(context.Background(), "missing")
		if !errors.Is(err, domain.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("Expired Run Is Gone", func(t *testing.T) {
		repo := NewRunRepository(-time.Second)

		if err := repo.SaveRun(context.Background(), domain.RunResult{ID: "run-1"}); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		_, err := repo.GetRun(context.Background(), "run-1")
		if !errors.Is(err, domain.ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound for expired run, got %v", err)
		}
	})
}

func TestAPIKeyRepository(t *testing.T) {
	t.Run("Matching Key", func(t *testing.T) {
		repo := NewAPIKeyRepository("secret")

		ok, err := repo.IsValid(context.Background(), "secret")
		if err != nil || !ok {
			t.Errorf("expected valid key, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("Wrong Key", func(t *testing.T) {
		repo := NewAPIKeyRepository("secret")

		ok, _ := repo.IsValid(context.Background(), "other")
		if ok {
			t.Error("expected key to be rejected")
		}
	})

	t.Run("Empty Configured Key Accepts All", func(t *testing.T) {
		repo := NewAPIKeyRepository("")

		ok, _ := repo.IsValid(context.Background(), "anything")
		if !ok {
			t.Error("expected any key to be accepted")
		}
	})
}
