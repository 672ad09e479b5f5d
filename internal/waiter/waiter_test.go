package waiter

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaiterCompleteThenWaitReturnsCachedResult(t *testing.T) {
	w := New()
	want := errors.New("boom")
	w.Complete(want)

	if err := w.Wait(context.Background()); !errors.Is(err, want) {
		t.Fatalf("Wait() = %v, want %v", err, want)
	}
	if !w.Done() {
		t.Fatalf("Done() = false after Complete")
	}
	if err := w.Err(); !errors.Is(err, want) {
		t.Fatalf("Err() = %v, want %v", err, want)
	}
}

func TestWaiterSecondCompleteIsNoop(t *testing.T) {
	w := New()
	w.Complete(errors.New("first"))
	w.Complete(errors.New("second"))

	if w.Err().Error() != "first" {
		t.Fatalf("Err() = %q, want %q", w.Err(), "first")
	}
}

func TestWaiterWaitUnblocksOnContextCancellation(t *testing.T) {
	w := New()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := w.Wait(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Wait() = %v, want context.DeadlineExceeded", err)
	}
	if w.Done() {
		t.Fatalf("Done() = true, a cancelled Wait must not complete the waiter")
	}
}

func TestWaiterChanClosesOnComplete(t *testing.T) {
	w := New()
	select {
	case <-w.Chan():
		t.Fatal("Chan() closed before Complete")
	default:
	}
	w.Complete(nil)
	select {
	case <-w.Chan():
	default:
		t.Fatal("Chan() not closed after Complete")
	}
}
