package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
)

// Queue defaults and limits.
const (
	DefaultMaxQueueSize = 100
	DefaultConcurrency  = 1
	MaxConcurrency      = 10

	defaultTitle  = "Untitled"
	defaultSource = "api"

	interruptedMessage = "interrupted by restart"
)

var (
	// ErrEmptyContent is returned when a document without content is enqueued.
	ErrEmptyContent = errors.New("document content cannot be empty")
	// ErrQueueFull is returned when the queue holds its maximum number of items.
	ErrQueueFull = errors.New("indexing queue is full")
	// ErrItemProcessing is returned when removing a document that is being processed.
	ErrItemProcessing = errors.New("document is being processed")
	// ErrNotFound is returned when a document is neither queued nor stored.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyQueued is returned by EnqueueWithID while the ID is pending or processing.
	ErrAlreadyQueued = errors.New("document is already queued")
	// ErrDeleting is returned by Enqueue and EnqueueWithID while DeleteDocument is removing
	// the same ID from the store.
	ErrDeleting = errors.New("document is being deleted")
	// ErrShutdown is returned by Enqueue after Shutdown.
	ErrShutdown = errors.New("indexing queue is shut down")
)

// Pipeline indexes and deletes single documents.
type Pipeline interface {
	IndexDocument(ctx context.Context, doc *models.Document, progress ProgressFunc) (int, error)
	DeleteDocument(ctx context.Context, docID string) (int, error)
}

type queueEntry struct {
	item models.QueueItem
	// doc is dropped once the item is terminal.
	doc *models.Document
}

// Coordinator owns the indexing queue. Documents are processed in enqueue order by a
// single drain loop, at most concurrency at a time.
type Coordinator struct {
	pipeline    Pipeline
	journal     storage.QueueStore
	maxSize     int
	concurrency int
	logger      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	entries  []*queueEntry
	byID     map[string]*queueEntry
	deleting map[string]int
	draining bool
	idle     chan struct{}
	closed   bool
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithMaxQueueSize bounds the number of queued items, terminal ones included.
func WithMaxQueueSize(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxSize = n
		}
	}
}

// WithConcurrency sets how many documents are processed at once, clamped to [1,10].
func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.concurrency = clampConcurrency(n)
	}
}

// WithJournal records queue transitions in store.
func WithJournal(store storage.QueueStore) CoordinatorOption {
	return func(c *Coordinator) {
		if store != nil {
			c.journal = store
		}
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *zap.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator creates a queue in front of pipeline.
func NewCoordinator(pipeline Pipeline, opts ...CoordinatorOption) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		pipeline:    pipeline,
		journal:     storage.NopQueueStore{},
		maxSize:     DefaultMaxQueueSize,
		concurrency: DefaultConcurrency,
		ctx:         ctx,
		cancel:      cancel,
		byID:        make(map[string]*queueEntry),
		deleting:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

func clampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}

// Concurrency returns the effective number of parallel documents.
func (c *Coordinator) Concurrency() int {
	return c.concurrency
}

// Enqueue assigns the document an ID, queues it as pending and makes sure the drain
// loop is running.
func (c *Coordinator) Enqueue(ctx context.Context, input models.DocumentInput) (string, error) {
	return c.enqueue(ctx, uuid.NewString(), input)
}

// EnqueueWithID is Enqueue with a caller-chosen document ID. A finished item with the same
// ID is replaced; a pending or processing one makes it fail with ErrAlreadyQueued.
// Chunks already stored under the ID are not removed.
func (c *Coordinator) EnqueueWithID(ctx context.Context, docID string, input models.DocumentInput) (string, error) {
	if strings.TrimSpace(docID) == "" {
		return "", errors.New("document ID cannot be empty")
	}
	return c.enqueue(ctx, docID, input)
}

func (c *Coordinator) enqueue(ctx context.Context, docID string, input models.DocumentInput) (string, error) {
	if strings.TrimSpace(input.Content) == "" {
		return "", ErrEmptyContent
	}
	now := time.Now().UTC()
	doc := &models.Document{
		ID:        docID,
		Title:     strings.TrimSpace(input.Title),
		Content:   input.Content,
		Source:    input.Source,
		Metadata:  input.Metadata,
		CreatedAt: now,
	}
	if doc.Title == "" {
		doc.Title = defaultTitle
	}
	if doc.Source == "" {
		doc.Source = defaultSource
	}
	entry := &queueEntry{
		item: models.QueueItem{
			DocumentID: doc.ID,
			Title:      doc.Title,
			Status:     models.StatusPending,
			EnqueuedAt: now,
		},
		doc: doc,
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", ErrShutdown
	}
	if c.deleting[doc.ID] > 0 {
		return "", ErrDeleting
	}
	if prev, ok := c.byID[doc.ID]; ok {
		if !prev.item.Status.Terminal() {
			return "", ErrAlreadyQueued
		}
		if _, err := c.removeLocked(ctx, doc.ID); err != nil {
			return "", err
		}
	}
	if len(c.entries) >= c.maxSize {
		return "", ErrQueueFull
	}
	c.entries = append(c.entries, entry)
	c.byID[doc.ID] = entry
	if err := c.journal.Insert(ctx, doc, entry.item); err != nil {
		c.logger.Warn("failed to journal queue item", zap.String("doc_id", doc.ID), zap.Error(err))
	}
	c.logger.Info("document enqueued",
		zap.String("doc_id", doc.ID), zap.String("title", doc.Title), zap.Int("queued", len(c.entries)))
	c.startDrainLocked()
	return doc.ID, nil
}

// Restore loads the journal: pending items are queued again, items caught mid-processing
// are marked failed, terminal items are kept for inspection. Call it before Enqueue.
func (c *Coordinator) Restore(ctx context.Context) (int, error) {
	journaled, err := c.journal.Load(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()
	requeued := 0
	for _, je := range journaled {
		if _, ok := c.byID[je.Item.DocumentID]; ok {
			continue
		}
		entry := &queueEntry{item: je.Item, doc: je.Document}
		switch {
		case entry.item.Status == models.StatusProcessing,
			entry.item.Status == models.StatusPending && entry.doc == nil:
			entry.item.Status = models.StatusFailed
			entry.item.Error = interruptedMessage
			entry.item.CompletedAt = &now
			entry.doc = nil
			if err := c.journal.Update(ctx, entry.item); err != nil {
				c.logger.Warn("failed to journal queue item", zap.String("doc_id", entry.item.DocumentID), zap.Error(err))
			}
		case entry.item.Status == models.StatusPending:
			requeued++
		}
		c.entries = append(c.entries, entry)
		c.byID[entry.item.DocumentID] = entry
	}
	if len(journaled) > 0 {
		c.logger.Info("queue restored", zap.Int("items", len(journaled)), zap.Int("requeued", requeued))
	}
	if requeued > 0 {
		c.startDrainLocked()
	}
	return requeued, nil
}

func (c *Coordinator) startDrainLocked() {
	if c.draining || c.closed {
		return
	}
	c.draining = true
	c.idle = make(chan struct{})
	go c.drain()
}

// drain processes pending items batch by batch until none are left.
func (c *Coordinator) drain() {
	for {
		batch := c.nextBatch()
		if len(batch) == 0 {
			return
		}
		var g errgroup.Group
		for _, doc := range batch {
			g.Go(func() error {
				c.process(doc)
				return nil
			})
		}
		_ = g.Wait()
	}
}

// nextBatch marks up to concurrency pending items as processing. When there are none it
// ends the drain loop.
func (c *Coordinator) nextBatch() []*models.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	var batch []*models.Document
	if !c.closed {
		now := time.Now().UTC()
		for _, e := range c.entries {
			if len(batch) == c.concurrency {
				break
			}
			if e.item.Status != models.StatusPending {
				continue
			}
			e.item.Status = models.StatusProcessing
			e.item.Progress = 0
			started := now
			e.item.StartedAt = &started
			c.journalUpdateLocked(e.item)
			batch = append(batch, e.doc)
		}
	}
	if len(batch) == 0 {
		c.draining = false
		close(c.idle)
	}
	return batch
}

func (c *Coordinator) process(doc *models.Document) {
	start := time.Now()
	c.logger.Info("processing document", zap.String("doc_id", doc.ID), zap.String("title", doc.Title))

	n, err := c.pipeline.IndexDocument(c.ctx, doc, func(p int) { c.setProgress(doc.ID, p) })
	if err != nil {
		c.logger.Error("document failed",
			zap.String("doc_id", doc.ID), zap.Duration("took", time.Since(start)), zap.Error(err))
		c.finish(doc.ID, models.StatusFailed, err.Error(), 0)
		return
	}
	c.logger.Info("document indexed",
		zap.String("doc_id", doc.ID), zap.Int("chunks", n), zap.Duration("took", time.Since(start)))
	c.finish(doc.ID, models.StatusCompleted, "", n)
}

func (c *Coordinator) setProgress(docID string, p int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[docID]
	if !ok || e.item.Status != models.StatusProcessing || p <= e.item.Progress {
		return
	}
	if p > ProgressDone {
		p = ProgressDone
	}
	e.item.Progress = p
	c.journalUpdateLocked(e.item)
}

func (c *Coordinator) finish(docID string, status models.QueueStatus, msg string, chunks int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[docID]
	if !ok || !e.item.Status.CanTransitionTo(status) {
		return
	}
	now := time.Now().UTC()
	e.item.Status = status
	e.item.Error = msg
	e.item.ChunkCount = chunks
	e.item.CompletedAt = &now
	if status == models.StatusCompleted {
		e.item.Progress = ProgressDone
	}
	e.doc = nil
	c.journalUpdateLocked(e.item)
}

// journalUpdateLocked outlives c.ctx so items finished during shutdown are still recorded.
func (c *Coordinator) journalUpdateLocked(item models.QueueItem) {
	if err := c.journal.Update(context.WithoutCancel(c.ctx), item); err != nil {
		c.logger.Warn("failed to journal queue item", zap.String("doc_id", item.DocumentID), zap.Error(err))
	}
}

// Status returns per-status counts and all items in queue order.
func (c *Coordinator) Status() models.QueueSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := models.QueueSnapshot{Items: make([]models.QueueItem, 0, len(c.entries))}
	for _, e := range c.entries {
		snap.Items = append(snap.Items, e.item)
		switch e.item.Status {
		case models.StatusPending:
			snap.Stats.Pending++
		case models.StatusProcessing:
			snap.Stats.Processing++
		case models.StatusCompleted:
			snap.Stats.Completed++
		case models.StatusFailed:
			snap.Stats.Failed++
		}
	}
	snap.Stats.Total = len(c.entries)
	return snap
}

// Item returns the queue item for docID.
func (c *Coordinator) Item(docID string) (models.QueueItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.byID[docID]
	if !ok {
		return models.QueueItem{}, false
	}
	return e.item, true
}

// Clear removes completed and failed items and returns how many were removed.
func (c *Coordinator) Clear(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	var removed []string
	for _, e := range c.entries {
		if e.item.Status.Terminal() {
			removed = append(removed, e.item.DocumentID)
			delete(c.byID, e.item.DocumentID)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(c.entries); i++ {
		c.entries[i] = nil
	}
	c.entries = kept
	if len(removed) > 0 {
		if err := c.journal.Delete(ctx, removed...); err != nil {
			c.logger.Warn("failed to journal queue clear", zap.Error(err))
		}
	}
	return len(removed)
}

// Remove drops one item from the queue. It reports false when the item is unknown and
// fails with ErrItemProcessing while the item is being processed.
func (c *Coordinator) Remove(ctx context.Context, docID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(ctx, docID)
}

func (c *Coordinator) removeLocked(ctx context.Context, docID string) (bool, error) {
	e, ok := c.byID[docID]
	if !ok {
		return false, nil
	}
	if e.item.Status == models.StatusProcessing {
		return false, ErrItemProcessing
	}
	delete(c.byID, docID)
	for i, x := range c.entries {
		if x == e {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			break
		}
	}
	if err := c.journal.Delete(ctx, docID); err != nil {
		c.logger.Warn("failed to journal queue removal", zap.String("doc_id", docID), zap.Error(err))
	}
	return true, nil
}

// DeleteDocument removes the document's queue item and its stored chunks. It returns the
// number of chunks removed, ErrItemProcessing while the document is being processed and
// ErrNotFound when the document was neither queued nor stored. The ID cannot be enqueued
// again until the stored chunks are gone.
func (c *Coordinator) DeleteDocument(ctx context.Context, docID string) (int, error) {
	c.mu.Lock()
	dequeued, err := c.removeLocked(ctx, docID)
	if err != nil {
		c.mu.Unlock()
		return 0, err
	}
	c.deleting[docID]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.deleting[docID]--; c.deleting[docID] <= 0 {
			delete(c.deleting, docID)
		}
		c.mu.Unlock()
	}()

	n, err := c.pipeline.DeleteDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	if !dequeued && n == 0 {
		return 0, ErrNotFound
	}
	c.logger.Info("document deleted", zap.String("doc_id", docID), zap.Int("chunks", n))
	return n, nil
}

// Wait blocks until the drain loop is idle or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	if !c.draining {
		c.mu.Unlock()
		return nil
	}
	idle := c.idle
	c.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting documents and waits for in-flight ones. Pending items are
// not started. When ctx ends first, in-flight backend calls are cancelled.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	err := c.Wait(ctx)
	c.cancel()
	return err
}
