package memdb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/veesix-networks/segmentd/pkg/store"
	"github.com/veesix-networks/segmentd/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return New()
	})
}

func TestUpdateHonoursCancelledContext(t *testing.T) {
	st := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := st.Update(ctx, func(tx store.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if called {
		t.Fatal("callback should not run on a cancelled context")
	}
}

func TestStoredRowsAreNotAliased(t *testing.T) {
	st := New()
	ids := storetest.Create(t, st, storetest.NewSegment(t, 1, "virtual", "10", "10.0.0.0/29"))

	ctx := context.Background()
	err := st.View(ctx, func(tx store.ReadTx) error {
		s, err := tx.GetSegment(ctx, ids[0], store.ExcludeRemoved)
		if err != nil {
			return err
		}
		s.Tag = "mutated"

		again, err := tx.GetSegment(ctx, ids[0], store.ExcludeRemoved)
		if err != nil {
			return err
		}
		if again.Tag != "10" {
			t.Fatalf("stored segment changed through a returned copy: tag = %q", again.Tag)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPanickingUpdateReleasesWriter(t *testing.T) {
	st := New()
	ctx := context.Background()

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected the callback panic to propagate")
			}
		}()
		_ = st.Update(ctx, func(tx store.Tx) error {
			panic("handler bug")
		})
	}()

	done := make(chan error, 1)
	go func() {
		done <- st.Update(ctx, func(tx store.Tx) error { return nil })
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Update after panic: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Update blocked after an earlier callback panicked")
	}
}
