package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domaudit "github.com/ucp-labs/checkout-core/internal/domain/audit"
)

func TestDispatcher_DeliversEntriesToSinks(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil, nil)

	received := make(chan domaudit.Entry, 1)
	d.AddSink(func(_ context.Context, entry domaudit.Entry) error {
		received <- entry
		return nil
	})

	d.Start(ctx)
	defer d.Stop(ctx)

	d.Log(ctx, domaudit.Entry{
		Method:     "POST",
		URL:        "/checkouts",
		CheckoutID: "chk-1",
		Timestamp:  time.Now().UTC(),
	})

	select {
	case entry := <-received:
		assert.Equal(t, "POST", entry.Method)
		assert.Equal(t, "chk-1", entry.CheckoutID)
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received the entry")
	}
}

func TestDispatcher_LogNeverBlocksWhenQueueIsFull(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil, nil)
	// No Start: nothing drains the queue.

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 2000; i++ {
			d.Log(ctx, domaudit.Entry{Method: "POST", URL: "/checkouts"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked on a full queue")
	}
}

func TestDispatcher_SinkErrorDoesNotStopDelivery(t *testing.T) {
	ctx := context.Background()
	d := NewDispatcher(nil, nil)

	var delivered int
	done := make(chan struct{})
	d.AddSink(func(context.Context, domaudit.Entry) error {
		return errors.New("sink down")
	})
	d.AddSink(func(context.Context, domaudit.Entry) error {
		delivered++
		if delivered == 2 {
			close(done)
		}
		return nil
	})

	d.Start(ctx)
	defer d.Stop(ctx)

	d.Log(ctx, domaudit.Entry{Method: "POST"})
	d.Log(ctx, domaudit.Entry{Method: "PUT"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second sink stopped receiving after the first errored")
	}
	require.Equal(t, 2, delivered)
}
