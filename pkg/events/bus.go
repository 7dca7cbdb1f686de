// Package events is the in-process publish/subscribe channel between the
// file service and the processing pipeline.
package events

import (
	"sync"
)

// NoteUpdated is published after a successful write to a notebook file.
type NoteUpdated struct {
	UserID   int64
	FileID   int64
	FilePath string
}

// NoteDeleted is published when a notebook file is purged for good.
type NoteDeleted struct {
	UserID int64
	FileID int64
}

// Handler receives events. Handlers run synchronously on the publishing
// goroutine; long work belongs in the subscriber's own queue.
type Handler[T any] func(T)

// Bus fans events out to subscribers. Safe for concurrent use.
type Bus struct {
	mu        sync.RWMutex
	onUpdated []Handler[NoteUpdated]
	onDeleted []Handler[NoteDeleted]
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// SubscribeNoteUpdated registers a handler for NoteUpdated events.
func (b *Bus) SubscribeNoteUpdated(h Handler[NoteUpdated]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onUpdated = append(b.onUpdated, h)
}

// SubscribeNoteDeleted registers a handler for NoteDeleted events.
func (b *Bus) SubscribeNoteDeleted(h Handler[NoteDeleted]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDeleted = append(b.onDeleted, h)
}

// PublishNoteUpdated delivers the event to all current subscribers.
func (b *Bus) PublishNoteUpdated(e NoteUpdated) {
	b.mu.RLock()
	handlers := b.onUpdated
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}

// PublishNoteDeleted delivers the event to all current subscribers.
func (b *Bus) PublishNoteDeleted(e NoteDeleted) {
	b.mu.RLock()
	handlers := b.onDeleted
	b.mu.RUnlock()
	for _, h := range handlers {
		h(e)
	}
}
