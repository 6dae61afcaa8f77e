package refreshlock

import (
	"context"
	"testing"
	"time"
)

func TestLocalGuardSerializesPerIntegration(t *testing.T) {
	guard := NewGuard(nil, time.Second)

	release, err := guard.Acquire(context.Background(), 42)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	if _, err := guard.Acquire(context.Background(), 42); err != ErrRefreshInFlight {
		t.Fatalf("expected ErrRefreshInFlight, got %v", err)
	}

	// A different integration is unaffected.
	otherRelease, err := guard.Acquire(context.Background(), 43)
	if err != nil {
		t.Fatalf("other acquire: %v", err)
	}
	otherRelease()

	release()
	release2, err := guard.Acquire(context.Background(), 42)
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	release2()
}
