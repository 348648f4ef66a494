package scraping

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonathan/social-scraper/internal/types"
)

// ProgressEvent represents a progress update during job execution
type ProgressEvent struct {
	JobID     uuid.UUID       `json:"job_id"`
	Status    types.JobStatus `json:"status"`
	Step      string          `json:"step"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"error_code,omitempty"`
	Time      time.Time       `json:"time"`
}

// Terminal reports whether this is the last event of its job.
func (e ProgressEvent) Terminal() bool {
	return e.Status.Terminal()
}

// progressHub fans job events out to subscribers. Publishing never blocks: a subscriber
// that falls behind misses events, but always receives the channel close after the
// terminal event.
type progressHub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan ProgressEvent]struct{}
}

func newProgressHub() *progressHub {
	return &progressHub{subs: make(map[uuid.UUID]map[chan ProgressEvent]struct{})}
}

func (h *progressHub) subscribe(jobID uuid.UUID) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, 32)
	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan ProgressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[jobID][ch]; ok {
			delete(h.subs[jobID], ch)
			close(ch)
		}
	}
}

func (h *progressHub) publish(event ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[event.JobID] {
		select {
		case ch <- event:
		default:
		}
		if event.Terminal() {
			close(ch)
		}
	}
	if event.Terminal() {
		delete(h.subs, event.JobID)
	}
}
