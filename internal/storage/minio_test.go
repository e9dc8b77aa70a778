package storage

import (
	"context"
	"testing"
	"time"
)

func TestOpCtxAppliesCallTimeout(t *testing.T) {
	s := &MinioStore{callTimeout: 5 * time.Second}
	ctx, cancel := s.opCtx(context.Background())
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("configured timeout must bound the call context")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second {
		t.Errorf("deadline %v exceeds the configured timeout", remaining)
	}
}

func TestOpCtxZeroTimeoutIsUnbounded(t *testing.T) {
	s := &MinioStore{}
	ctx, cancel := s.opCtx(context.Background())
	defer cancel()

	if _, ok := ctx.Deadline(); ok {
		t.Error("no configured timeout must not impose a deadline")
	}
}
