package audio

import "testing"

func TestFanoutDeliversToAllSubscribers(t *testing.T) {
	t.Parallel()

	f := NewFanout(4)
	t.Cleanup(func() { _ = f.Close() })

	a := f.Subscribe()
	b := f.Subscribe()

	f.Publish(Frame{PCM: []byte{1, 2}})

	for _, ch := range []<-chan Frame{a, b} {
		select {
		case fr := <-ch:
			if len(fr.PCM) != 2 {
				t.Fatalf("frame length = %d, want 2", len(fr.PCM))
			}
		default:
			t.Fatal("subscriber did not receive frame")
		}
	}
}

func TestFanoutSlowSubscriberDropsWithoutBlocking(t *testing.T) {
	t.Parallel()

	f := NewFanout(1)
	t.Cleanup(func() { _ = f.Close() })

	slow := f.Subscribe()

	f.Publish(Frame{PCM: []byte{1}})
	f.Publish(Frame{PCM: []byte{2}}) // buffer full, frame dropped for slow

	if got := f.Dropped(); got != 1 {
		t.Fatalf("dropped = %d, want 1", got)
	}
	if fr := <-slow; fr.PCM[0] != 1 {
		t.Fatalf("slow received %v, want first frame", fr.PCM)
	}
}

func TestFanoutPauseSuppressesDelivery(t *testing.T) {
	t.Parallel()

	f := NewFanout(4)
	t.Cleanup(func() { _ = f.Close() })

	ch := f.Subscribe()
	f.Pause()
	f.Publish(Frame{PCM: []byte{1}})

	select {
	case <-ch:
		t.Fatal("frame delivered while paused")
	default:
	}

	f.Resume()
	f.Publish(Frame{PCM: []byte{2}})
	if fr := <-ch; fr.PCM[0] != 2 {
		t.Fatalf("got %v, want frame published after resume", fr.PCM)
	}
}

func TestFanoutUnsubscribeRemovesObserver(t *testing.T) {
	t.Parallel()

	f := NewFanout(4)
	t.Cleanup(func() { _ = f.Close() })

	gone := f.Subscribe()
	kept := f.Subscribe()

	f.Unsubscribe(gone)
	if _, ok := <-gone; ok {
		t.Fatal("unsubscribed channel not closed")
	}
	// Unsubscribing again is a no-op.
	f.Unsubscribe(gone)

	f.Publish(Frame{PCM: []byte{1}})
	select {
	case fr := <-kept:
		if fr.PCM[0] != 1 {
			t.Fatalf("kept received %v, want frame", fr.PCM)
		}
	default:
		t.Fatal("remaining subscriber did not receive frame")
	}
}

func TestFanoutCloseClosesSubscribers(t *testing.T) {
	t.Parallel()

	f := NewFanout(4)
	ch := f.Subscribe()
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel not closed")
	}
	// Publish after close must not panic.
	f.Publish(Frame{})
	if err := f.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
