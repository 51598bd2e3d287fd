// Package runs manages the lifecycle of in-flight research runs: one
// background run per user, event broadcast with full replay for late
// observers, and cooperative cancellation.
package runs

import (
	"sync"
	"time"

	"github.com/finsightai/finsight/pkg/models"
)

const (
	// DefaultObserverBuffer is the per-observer channel capacity. An observer
	// that falls this far behind is closed as lagged rather than allowed to
	// block the publisher.
	DefaultObserverBuffer = 256

	// DefaultKeepAliveInterval is how long the broadcaster waits after the
	// last published event before pushing a keep-alive to live observers.
	DefaultKeepAliveInterval = 120 * time.Second
)

// Broadcaster fans run events out to any number of observers. Every event is
// appended to an ordered log, and each new observer receives the full log
// before live events, so reattaching clients never miss progress.
//
// Keep-alive events are pushed to live observers only. They never enter the
// log: a replayed stream should show work, not silence.
type Broadcaster struct {
	mu        sync.Mutex
	log       []models.RunEvent
	observers map[int]chan models.RunEvent
	nextID    int
	nextSeq   uint64
	terminal  *models.RunEvent
	buffer    int

	keepAliveInterval time.Duration
	lastPublish       time.Time
	done              chan struct{}
	closeOnce         sync.Once
}

// NewBroadcaster creates a broadcaster. Zero values select the defaults.
func NewBroadcaster(buffer int, keepAliveInterval time.Duration) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}
	if keepAliveInterval <= 0 {
		keepAliveInterval = DefaultKeepAliveInterval
	}
	b := &Broadcaster{
		observers:         make(map[int]chan models.RunEvent),
		buffer:            buffer,
		keepAliveInterval: keepAliveInterval,
		lastPublish:       time.Now(),
		done:              make(chan struct{}),
	}
	go b.keepAliveLoop()
	return b
}

// Publish appends an event to the log and delivers it to all observers.
// Events published after the terminal event are dropped: a run has exactly
// one terminal state and nothing follows it.
func (b *Broadcaster) Publish(event models.RunEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.terminal != nil {
		return
	}

	event.Seq = b.nextSeq
	b.nextSeq++
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	b.log = append(b.log, event)
	b.lastPublish = time.Now()

	if event.IsTerminal() {
		b.terminal = &event
	}

	for id, ch := range b.observers {
		select {
		case ch <- event:
		default:
			// Observer is not draining; cut it loose instead of blocking
			// the run.
			close(ch)
			delete(b.observers, id)
		}
	}

	if b.terminal != nil {
		for id, ch := range b.observers {
			close(ch)
			delete(b.observers, id)
		}
		b.closeOnce.Do(func() { close(b.done) })
	}
}

// Subscribe returns a channel that replays the full event log and then
// carries live events. The channel is closed when the run reaches a terminal
// state, when cancel is called, or when the observer falls too far behind.
func (b *Broadcaster) Subscribe() (<-chan models.RunEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Replay fits entirely in the buffer headroom or the channel grows to
	// hold it, so a fresh subscriber never counts as lagged on replay.
	size := b.buffer
	if len(b.log) >= size {
		size = len(b.log) + b.buffer
	}
	ch := make(chan models.RunEvent, size)
	for _, event := range b.log {
		ch <- event
	}

	if b.terminal != nil {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.observers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.observers[id]; ok {
			close(c)
			delete(b.observers, id)
		}
	}
	return ch, cancel
}

// Events returns a snapshot of the event log.
func (b *Broadcaster) Events() []models.RunEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.RunEvent, len(b.log))
	copy(out, b.log)
	return out
}

// Terminal returns the terminal event if the run has finished.
func (b *Broadcaster) Terminal() (models.RunEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.terminal == nil {
		return models.RunEvent{}, false
	}
	return *b.terminal, true
}

// Observers returns the current live observer count.
func (b *Broadcaster) Observers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.observers)
}

// keepAliveLoop pushes a keep-alive to live observers whenever the run has
// been silent for the keep-alive interval. Keep-alives bypass the log.
func (b *Broadcaster) keepAliveLoop() {
	ticker := time.NewTicker(b.keepAliveInterval / 4)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.terminal != nil {
			b.mu.Unlock()
			return
		}
		if time.Since(b.lastPublish) < b.keepAliveInterval {
			b.mu.Unlock()
			continue
		}

		// Keep-alives consume a sequence number even though they bypass the
		// log, so observers keying on Seq always see it increase.
		event := models.KeepAliveEvent()
		event.Seq = b.nextSeq
		b.nextSeq++
		event.Time = time.Now()
		for id, ch := range b.observers {
			select {
			case ch <- event:
			default:
				close(ch)
				delete(b.observers, id)
			}
		}
		b.lastPublish = time.Now()
		b.mu.Unlock()
	}
}
