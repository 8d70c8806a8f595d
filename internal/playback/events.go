package playback

import (
	"sync"

	"soundshift/internal/models"
)

// StateEvent signals a sync state transition.
type StateEvent struct {
	Previous State
	Current  State
}

// SnapshotEvent carries the latest now-playing snapshot. NowPlaying is nil
// when nothing is playing.
type SnapshotEvent struct {
	NowPlaying *models.NowPlaying
}

// LikedEvent signals that the liked flag for a track changed.
type LikedEvent struct {
	TrackID string
	Liked   bool
}

// QueueEvent carries a wholesale rebuilt queue.
type QueueEvent struct {
	Queue *models.Queue
}

// ErrorEvent reports a non-fatal failure during polling or a mutation.
type ErrorEvent struct {
	Op  string
	Err error
}

// Listener receives playback events. Nil callbacks are skipped.
type Listener struct {
	OnState    func(StateEvent)
	OnSnapshot func(SnapshotEvent)
	OnLiked    func(LikedEvent)
	OnQueue    func(QueueEvent)
	OnError    func(ErrorEvent)
}

// Emitter fans playback events out to registered listeners. Callbacks run
// synchronously on the emitting goroutine.
type Emitter struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]*Listener
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: map[int]*Listener{}}
}

// Subscribe registers a listener and returns an unsubscribe function.
func (e *Emitter) Subscribe(l *Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

func (e *Emitter) snapshot() []*Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Listener, 0, len(e.listeners))
	for _, l := range e.listeners {
		out = append(out, l)
	}
	return out
}

func (e *Emitter) emitState(ev StateEvent) {
	for _, l := range e.snapshot() {
		if l.OnState != nil {
			l.OnState(ev)
		}
	}
}

func (e *Emitter) emitSnapshot(ev SnapshotEvent) {
	for _, l := range e.snapshot() {
		if l.OnSnapshot != nil {
			l.OnSnapshot(ev)
		}
	}
}

func (e *Emitter) emitLiked(ev LikedEvent) {
	for _, l := range e.snapshot() {
		if l.OnLiked != nil {
			l.OnLiked(ev)
		}
	}
}

func (e *Emitter) emitQueue(ev QueueEvent) {
	for _, l := range e.snapshot() {
		if l.OnQueue != nil {
			l.OnQueue(ev)
		}
	}
}

func (e *Emitter) emitError(ev ErrorEvent) {
	for _, l := range e.snapshot() {
		if l.OnError != nil {
			l.OnError(ev)
		}
	}
}
