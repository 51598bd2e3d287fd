package runs

import (
	"testing"
	"time"

	"github.com/finsightai/finsight/pkg/models"
)

func collect(t *testing.T, ch <-chan models.RunEvent, want int) []models.RunEvent {
	t.Helper()
	var events []models.RunEvent
	timeout := time.After(2 * time.Second)
	for len(events) < want {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out after %d of %d events", len(events), want)
		}
	}
	return events
}

func TestBroadcasterReplay(t *testing.T) {
	b := NewBroadcaster(0, 0)
	b.Publish(models.StatusEvent("one"))
	b.Publish(models.StatusEvent("two"))
	b.Publish(models.TokenEvent("three"))

	ch, cancel := b.Subscribe()
	defer cancel()

	events := collect(t, ch, 3)
	for i, text := range []string{"one", "two", "three"} {
		if events[i].Text != text {
			t.Errorf("event %d: %q, want %q", i, events[i].Text, text)
		}
		if events[i].Seq != uint64(i) {
			t.Errorf("event %d: seq %d, want %d", i, events[i].Seq, i)
		}
	}
}

func TestBroadcasterLiveDelivery(t *testing.T) {
	b := NewBroadcaster(0, 0)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(models.StatusEvent("live"))
	events := collect(t, ch, 1)
	if events[0].Text != "live" {
		t.Errorf("got %q", events[0].Text)
	}
}

func TestBroadcasterTerminalClosesObservers(t *testing.T) {
	b := NewBroadcaster(0, 0)
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(models.DoneEvent("finished", nil))

	events := collect(t, ch, 1)
	if events[0].Type != models.RunEventDone {
		t.Fatalf("expected done event, got %s", events[0].Type)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel closed after terminal event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after terminal event")
	}
	if b.Observers() != 0 {
		t.Errorf("observers remain after terminal: %d", b.Observers())
	}
}

func TestBroadcasterSingleTerminal(t *testing.T) {
	b := NewBroadcaster(0, 0)
	b.Publish(models.ErrorEvent("failed"))
	b.Publish(models.DoneEvent("too late", nil))
	b.Publish(models.StatusEvent("also too late"))

	events := b.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	terminal, ok := b.Terminal()
	if !ok || terminal.Type != models.RunEventError {
		t.Errorf("terminal = %+v, ok = %v", terminal, ok)
	}
}

func TestBroadcasterSubscribeAfterTerminal(t *testing.T) {
	b := NewBroadcaster(0, 0)
	b.Publish(models.StatusEvent("working"))
	b.Publish(models.DoneEvent("answer", nil))

	ch, cancel := b.Subscribe()
	defer cancel()

	events := collect(t, ch, 2)
	if events[1].Type != models.RunEventDone || events[1].Answer != "answer" {
		t.Errorf("replayed terminal wrong: %+v", events[1])
	}
	if _, ok := <-ch; ok {
		t.Error("post-terminal subscription should be closed after replay")
	}
}

func TestBroadcasterDropsLaggedObserver(t *testing.T) {
	b := NewBroadcaster(2, 0)
	_, cancel := b.Subscribe()
	defer cancel()

	// Never drain; the third publish overflows the buffer of 2.
	b.Publish(models.StatusEvent("a"))
	b.Publish(models.StatusEvent("b"))
	b.Publish(models.StatusEvent("c"))

	if b.Observers() != 0 {
		t.Fatalf("lagged observer should be dropped, have %d", b.Observers())
	}

	// The publisher was never blocked; the log is intact.
	if len(b.Events()) != 3 {
		t.Errorf("log has %d events, want 3", len(b.Events()))
	}
}

func TestBroadcasterReplayLargerThanBuffer(t *testing.T) {
	b := NewBroadcaster(4, 0)
	for i := 0; i < 20; i++ {
		b.Publish(models.StatusEvent("step"))
	}

	ch, cancel := b.Subscribe()
	defer cancel()

	events := collect(t, ch, 20)
	if len(events) != 20 {
		t.Fatalf("replay incomplete: %d of 20", len(events))
	}
}

func TestBroadcasterKeepAlive(t *testing.T) {
	b := NewBroadcaster(0, 50*time.Millisecond)
	b.Publish(models.StatusEvent("working"))
	ch, cancel := b.Subscribe()
	defer cancel()

	var lastSeq uint64
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-ch:
			if !ev.KeepAlive {
				lastSeq = ev.Seq
				continue
			}
			// Keep-alives must not enter the replay log.
			if len(b.Events()) != 1 {
				t.Errorf("keep-alive leaked into the log: %d events", len(b.Events()))
			}
			// But they carry a real sequence number, so Seq never regresses.
			if ev.Seq <= lastSeq {
				t.Errorf("keep-alive Seq = %d, want > %d", ev.Seq, lastSeq)
			}
			b.Publish(models.StatusEvent("still working"))
			if next := <-ch; next.Seq <= ev.Seq {
				t.Errorf("post-keep-alive Seq = %d, want > %d", next.Seq, ev.Seq)
			}
			return
		case <-deadline:
			t.Fatal("no keep-alive within deadline")
		}
	}
}

func TestBroadcasterObserverCancel(t *testing.T) {
	b := NewBroadcaster(0, 0)
	ch, cancel := b.Subscribe()
	if b.Observers() != 1 {
		t.Fatalf("observers = %d", b.Observers())
	}
	cancel()
	if b.Observers() != 0 {
		t.Fatalf("observer not removed on cancel")
	}
	if _, ok := <-ch; ok {
		t.Error("cancelled observer channel should be closed")
	}
	cancel() // second cancel is a no-op
}
