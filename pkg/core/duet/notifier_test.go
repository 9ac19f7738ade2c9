package duet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vango-go/vai-duet/internal/testutil"
)

func TestNotifierPrefixesMessages(t *testing.T) {
	target := testutil.NewFakeTransport()
	n := NewNotifier(target, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	n.Notify("Video generation started.")
	waitForTexts(t, target, 1)
	if got := target.TextsSnapshot()[0]; got != "[SYSTEM NOTIFICATION] Video generation started." {
		t.Fatalf("text = %q", got)
	}
}

func TestNotifierDropsWhenFull(t *testing.T) {
	target := testutil.NewFakeTransport()
	n := NewNotifier(target, 1, nil)

	n.Notify("first")
	n.Notify("second")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	waitForTexts(t, target, 1)
	time.Sleep(20 * time.Millisecond)
	if got := target.TextsSnapshot(); len(got) != 1 || got[0] != NotificationPrefix+"first" {
		t.Fatalf("texts = %v", got)
	}
}

func TestNotifierSurvivesSendErrors(t *testing.T) {
	target := testutil.NewFakeTransport()
	target.SendErr = errors.New("not connected")
	n := NewNotifier(target, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.Run(ctx)
		close(done)
	}()

	n.Notify("lost")
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
	if len(target.TextsSnapshot()) != 0 {
		t.Fatalf("unexpected delivery")
	}
}

func TestNotifierDefaultQueueSize(t *testing.T) {
	n := NewNotifier(testutil.NewFakeTransport(), 0, nil)
	if cap(n.queue) != DefaultNotifyQueueSize {
		t.Fatalf("cap = %d", cap(n.queue))
	}
}

func waitForTexts(t *testing.T, target *testutil.FakeTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for len(target.TextsSnapshot()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d texts, got %d", n, len(target.TextsSnapshot()))
		}
		time.Sleep(2 * time.Millisecond)
	}
}
