package worker

import (
	"context"
	"testing"
	"time"

	"devicebus-go/types"
)

func TestStartRunsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	w := Start(ctx, "bus:I2CA", types.WorkerHints{Core: 1, Priority: 5}, nil, func(ctx context.Context) {
		close(ran)
		<-ctx.Done()
	})
	if w.Name() != "bus:I2CA" {
		t.Fatalf("name = %q", w.Name())
	}
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("worker did not start")
	}
	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestPinned(t *testing.T) {
	if Pinned(types.WorkerHints{}) {
		t.Fatal("zero hints should not pin")
	}
	if !Pinned(types.WorkerHints{Core: 1}) || !Pinned(types.WorkerHints{Priority: 3}) {
		t.Fatal("affinity or priority should pin")
	}
}
