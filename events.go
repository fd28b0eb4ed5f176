package upgrademgr

import (
	"sync"
	"time"
)

// Event is one progress line from a running job.
type Event struct {
	Seq     uint64
	JobID   string
	Time    time.Time
	Message string
}

// EventSink is a bounded in-memory ring of job progress events. Writers never
// block; once the ring is full the oldest events are overwritten, so a reader
// that falls behind loses history rather than stalling a job.
type EventSink struct {
	mu   sync.Mutex
	buf  []Event
	next uint64
}

const defaultEventCapacity = 1024

// NewEventSink returns a sink retaining at most capacity events.
func NewEventSink(capacity int) *EventSink {
	if capacity <= 0 {
		capacity = defaultEventCapacity
	}
	return &EventSink{buf: make([]Event, 0, capacity)}
}

// Publish appends one event and returns it.
func (s *EventSink) Publish(jobID, message string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := Event{Seq: s.next, JobID: jobID, Time: time.Now(), Message: message}
	s.next++
	if len(s.buf) < cap(s.buf) {
		s.buf = append(s.buf, ev)
	} else {
		s.buf[int(ev.Seq)%cap(s.buf)] = ev
	}
	return ev
}

// ReadFrom returns the retained events with sequence >= cursor, in order, and
// the cursor to resume from. A cursor older than the retained window is
// clamped to the oldest event.
func (s *EventSink) ReadFrom(cursor uint64) ([]Event, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		return nil, s.next
	}
	oldest := uint64(0)
	if s.next > uint64(len(s.buf)) {
		oldest = s.next - uint64(len(s.buf))
	}
	if cursor < oldest {
		cursor = oldest
	}
	if cursor >= s.next {
		return nil, s.next
	}
	out := make([]Event, 0, s.next-cursor)
	for seq := cursor; seq < s.next; seq++ {
		out = append(out, s.buf[int(seq)%cap(s.buf)])
	}
	return out, s.next
}

// JobEvents filters retained events for one job id.
func (s *EventSink) JobEvents(jobID string) []Event {
	all, _ := s.ReadFrom(0)
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.JobID == jobID {
			out = append(out, ev)
		}
	}
	return out
}
