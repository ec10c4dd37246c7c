package podcast

import (
	"log"
	"sync"

	"gitbridge/internal/models"
)

// subscriberBuffer is the per-subscriber channel depth on top of history
// replay. A subscriber that falls this far behind is disconnected rather
// than allowed to stall the build.
const subscriberBuffer = 16

// Broadcast carries one build's event stream to any number of subscribers.
// Subscribers that arrive mid-build first receive the full history, so a
// late listener sees exactly what an early one did.
type Broadcast struct {
	mu     sync.Mutex
	events []models.StreamEvent
	subs   map[int]chan models.StreamEvent
	nextID int
	closed bool
}

func NewBroadcast() *Broadcast {
	return &Broadcast{subs: map[int]chan models.StreamEvent{}}
}

// Subscribe returns a channel that replays history and then follows live
// events. The channel closes when the build ends. cancel unregisters early.
func (b *Broadcast) Subscribe() (events <-chan models.StreamEvent, cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.StreamEvent, len(b.events)+subscriberBuffer)
	for _, ev := range b.events {
		ch <- ev
	}
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish appends the event to the replay log and fans it out. A terminal
// event closes every subscriber.
func (b *Broadcast) Publish(ev models.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	b.events = append(b.events, ev)
	for id, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			log.Printf("podcast: dropping slow stream subscriber %d", id)
			delete(b.subs, id)
			close(sub)
		}
	}

	if ev.Terminal() {
		b.closed = true
		for id, sub := range b.subs {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Events returns a copy of the replay log.
func (b *Broadcast) Events() []models.StreamEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.StreamEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Registry deduplicates concurrent builds per cache key: the first request
// starts the build, later ones attach to its broadcast.
type Registry struct {
	mu     sync.Mutex
	builds map[string]*Broadcast
}

func NewRegistry() *Registry {
	return &Registry{builds: map[string]*Broadcast{}}
}

// Begin returns the broadcast for key and whether the caller owns the
// build. Owners must call End when the build finishes.
func (r *Registry) Begin(key string) (*Broadcast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bc, ok := r.builds[key]; ok {
		return bc, false
	}
	bc := NewBroadcast()
	r.builds[key] = bc
	return bc, true
}

// Running returns the in-flight broadcast for key, if any.
func (r *Registry) Running(key string) (*Broadcast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bc, ok := r.builds[key]
	return bc, ok
}

// End removes a finished build.
func (r *Registry) End(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.builds, key)
}
