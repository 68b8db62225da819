package matchmaking

import (
	"sync"

	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

type emitted struct {
	event   models.SignalType
	payload any
}

// recorder is a Channel that remembers everything pushed to it.
type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) Emit(event models.SignalType, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, payload: payload})
}

func (r *recorder) count(event models.SignalType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func (r *recorder) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last(event models.SignalType) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].event == event {
			return r.events[i].payload, true
		}
	}
	return nil, false
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func (r *recorder) lastRoomID() string {
	p, ok := r.last(models.SignalTypeRoomReady)
	if !ok {
		return ""
	}
	return p.(models.RoomReady).RoomID
}

func newTestUser(id string) (*User, *recorder) {
	rec := &recorder{}
	return NewUser(id, id, rec), rec
}

// countingObserver tallies observer callbacks.
type countingObserver struct {
	NopObserver
	opened, closed     int
	delivered, dropped int
	queue              int
}

func (o *countingObserver) RoomOpened(string, *User, *User) { o.opened++ }
func (o *countingObserver) RoomClosed(string)               { o.closed++ }
func (o *countingObserver) QueueChanged(n int)              { o.queue = n }
func (o *countingObserver) Relayed(_ models.SignalType, delivered bool) {
	if delivered {
		o.delivered++
	} else {
		o.dropped++
	}
}
