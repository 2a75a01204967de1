// Package storage persists the indexing queue journal.
package storage

import (
	"context"

	"github.com/hyperjump/shirabe/internal/models"
)

// JournalEntry is one journaled queue item. Document is nil once the item reached a
// terminal state, because its content is no longer needed for recovery.
type JournalEntry struct {
	Item     models.QueueItem
	Document *models.Document
}

// QueueStore records queue transitions so the queue can be restored after a restart.
type QueueStore interface {
	// Insert journals a newly enqueued document and its pending item.
	Insert(ctx context.Context, doc *models.Document, item models.QueueItem) error
	// Update records the item's current state.
	Update(ctx context.Context, item models.QueueItem) error
	// Delete drops the given items.
	Delete(ctx context.Context, docIDs ...string) error
	// Load returns all items in enqueue order.
	Load(ctx context.Context) ([]JournalEntry, error)
	Close() error
}

// NopQueueStore keeps nothing. The queue is then in-memory only.
type NopQueueStore struct{}

func (NopQueueStore) Insert(context.Context, *models.Document, models.QueueItem) error { return nil }
func (NopQueueStore) Update(context.Context, models.QueueItem) error                    { return nil }
func (NopQueueStore) Delete(context.Context, ...string) error                           { return nil }
func (NopQueueStore) Load(context.Context) ([]JournalEntry, error)                      { return nil, nil }
func (NopQueueStore) Close() error                                                      { return nil }
