// Package progress tracks the state of the current translation run and fans
// snapshots out to any number of observers (SSE clients, the CLI progress
// line). A Hub is created by the caller and handed to the orchestrator.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/valpere/infinitran/internal/ring"
)

const (
	StatusPreparing   = "Preparing..."
	StatusSplitting   = "Splitting document..."
	StatusTranslating = "Translating"
	StatusComposing   = "Composing output..."
	StatusComplete    = "Translation complete"
	StatusAborted     = "Translation aborted"

	etaCalculating = "calculating…"
)

// Snapshot is the observable state sent to subscribers.
type Snapshot struct {
	Progress         int    `json:"progress"`
	TranslatedChunks int    `json:"translated_chunks"`
	TotalChunks      int    `json:"total_chunks"`
	Status           string `json:"status"`
}

type Options struct {
	// HistorySize is the number of chunk latencies kept.
	HistorySize int
	// Window is how many of the most recent latencies feed the estimate.
	Window int
	// Buffer is the channel capacity of each subscription.
	Buffer int
	Now    func() time.Time
}

func DefaultOptions() Options {
	return Options{HistorySize: 10, Window: 5, Buffer: 16, Now: time.Now}
}

// Subscription receives snapshots on C until it is closed, either by the
// observer or by the hub when the observer falls behind.
type Subscription struct {
	C   <-chan Snapshot
	ch  chan Snapshot
	hub *Hub
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

type Hub struct {
	mu         sync.Mutex
	opts       Options
	state      Snapshot
	totalFixed bool
	started    time.Time
	latencies  *ring.Buffer[time.Duration]
	subs       map[*Subscription]struct{}
}

func NewHub(opts Options) *Hub {
	def := DefaultOptions()
	if opts.HistorySize <= 0 {
		opts.HistorySize = def.HistorySize
	}
	if opts.Window <= 0 || opts.Window > opts.HistorySize {
		opts.Window = min(def.Window, opts.HistorySize)
	}
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	if opts.Now == nil {
		opts.Now = def.Now
	}
	return &Hub{
		opts:      opts,
		state:     Snapshot{Status: StatusPreparing},
		latencies: ring.New[time.Duration](opts.HistorySize),
		subs:      make(map[*Subscription]struct{}),
		started:   opts.Now(),
	}
}

// Reset starts a new run: counters, total and latency history are cleared
// and subscribers are told.
func (h *Hub) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Snapshot{Status: StatusPreparing}
	h.totalFixed = false
	h.latencies.Reset()
	h.started = h.opts.Now()
	h.broadcastLocked()
}

// Subscribe registers a new observer. The current snapshot is queued
// immediately so late joiners do not wait for the next update.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Snapshot, h.opts.Buffer)
	sub := &Subscription{C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[sub] = struct{}{}
	ch <- h.state
	return sub
}

// Unsubscribe removes sub and closes its channel. Unknown or already
// removed subscriptions are ignored.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(sub)
}

func (h *Hub) removeLocked(sub *Subscription) {
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	close(sub.ch)
}

// Update records progress and notifies subscribers. Within a run the
// translated count and percentage never go backwards and the total is
// fixed by the first update that carries one. A positive latency is added
// to the history used for the time estimate.
func (h *Hub) Update(percent, translated, total int, status string, latency time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if total > 0 && !h.totalFixed {
		h.state.TotalChunks = total
		h.totalFixed = true
	}
	if latency > 0 {
		h.latencies.Push(latency)
	}

	if translated > h.state.TranslatedChunks {
		h.state.TranslatedChunks = translated
	}
	if h.totalFixed && h.state.TranslatedChunks > h.state.TotalChunks {
		h.state.TranslatedChunks = h.state.TotalChunks
	}
	percent = max(0, min(percent, 100))
	if percent > h.state.Progress {
		h.state.Progress = percent
	}

	if h.inFlightLocked() && status != "" && !terminal(status) {
		status = fmt.Sprintf("%s · ETA %s", status, h.estimateLocked())
	}
	h.state.Status = status
	h.broadcastLocked()
}

func terminal(status string) bool {
	return status == StatusAborted || strings.HasPrefix(status, StatusComplete)
}

func (h *Hub) inFlightLocked() bool {
	return h.totalFixed && h.state.TranslatedChunks < h.state.TotalChunks
}

// EstimateRemaining returns a human readable remaining time based on the
// average of the most recent chunk latencies.
func (h *Hub) EstimateRemaining() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.estimateLocked()
}

func (h *Hub) estimateLocked() string {
	samples := h.latencies.Last(h.opts.Window)
	if len(samples) == 0 {
		return etaCalculating
	}
	var sum time.Duration
	for _, d := range samples {
		sum += d
	}
	avg := sum / time.Duration(len(samples))
	remaining := max(h.state.TotalChunks-h.state.TranslatedChunks, 0)
	return FormatETA(avg * time.Duration(remaining))
}

// FormatETA renders d as "about 42s", "about 7 min" or "about 1 h 5 min".
func FormatETA(d time.Duration) string {
	secs := int(d.Round(time.Second) / time.Second)
	switch {
	case secs < 60:
		return fmt.Sprintf("about %ds", secs)
	case secs < 3600:
		return fmt.Sprintf("about %d min", (secs+30)/60)
	}
	mins := (secs + 30) / 60
	return fmt.Sprintf("about %d h %d min", mins/60, mins%60)
}

func (h *Hub) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Elapsed reports the time since the last Reset.
func (h *Hub) Elapsed() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.opts.Now().Sub(h.started)
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// broadcastLocked delivers the current state without blocking. Observers
// whose buffer is full are dropped.
func (h *Hub) broadcastLocked() {
	for sub := range h.subs {
		select {
		case sub.ch <- h.state:
		default:
			h.removeLocked(sub)
		}
	}
}
