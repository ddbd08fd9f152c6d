package session

import (
	"sync"

	"github.com/oszuidwest/zwfm-audiotap/internal/types"
)

// Listener receives capture session events. Nil callbacks are skipped.
type Listener struct {
	OnStart func(target types.CaptureTarget)
	OnAudio func(sample *types.EnhancedAudioSample)
	OnStop  func(target types.CaptureTarget)
	OnError func(err error)
}

// Hub fans session events out to subscribed listeners. It replaces the
// original event-emitter coupling with an explicit observer registry.
// It is safe for concurrent use.
type Hub struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{listeners: make(map[int]Listener)}
}

// Subscribe registers a listener and returns its unsubscribe function.
func (h *Hub) Subscribe(l Listener) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.listeners[id] = l
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

// Clear drops all listeners.
func (h *Hub) Clear() {
	h.mu.Lock()
	h.listeners = make(map[int]Listener)
	h.mu.Unlock()
}

// snapshot returns the current listeners without holding the lock during
// callback dispatch.
func (h *Hub) snapshot() []Listener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Listener, 0, len(h.listeners))
	for _, l := range h.listeners {
		out = append(out, l)
	}
	return out
}

// EmitStart notifies listeners that a capture started.
func (h *Hub) EmitStart(target types.CaptureTarget) {
	for _, l := range h.snapshot() {
		if l.OnStart != nil {
			l.OnStart(target)
		}
	}
}

// EmitAudio delivers an enhanced sample to listeners.
func (h *Hub) EmitAudio(sample *types.EnhancedAudioSample) {
	for _, l := range h.snapshot() {
		if l.OnAudio != nil {
			l.OnAudio(sample)
		}
	}
}

// EmitStop notifies listeners that the capture ended.
func (h *Hub) EmitStop(target types.CaptureTarget) {
	for _, l := range h.snapshot() {
		if l.OnStop != nil {
			l.OnStop(target)
		}
	}
}

// EmitError reports a failure to listeners. The triggering call also returns
// the same error, so both channels see every failure.
func (h *Hub) EmitError(err error) {
	for _, l := range h.snapshot() {
		if l.OnError != nil {
			l.OnError(err)
		}
	}
}
