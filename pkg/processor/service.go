// Package processor runs the asynchronous content pipeline: on every
// notebook write it re-hashes the pages, rasterizes and transcribes the
// changed ones, embeds their text for search and refreshes the file's
// summary. Work is queued per file, deduplicated while in flight, and
// resumed from the task table after a restart.
package processor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/blob"
	"github.com/inkvault/inkvault/pkg/events"
	"github.com/inkvault/inkvault/pkg/inference"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// Config holds processor configuration.
type Config struct {
	// Concurrency is the number of worker goroutines.
	Concurrency int `mapstructure:"concurrency" yaml:"concurrency"`

	// QueueSize bounds the pending-file queue.
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// RenderCommand is the external notebook rasterizer binary. Empty
	// disables the pipeline entirely: uploads still land, nothing is
	// derived from them.
	RenderCommand string `mapstructure:"render_command" yaml:"render_command,omitempty"`
}

// ApplyDefaults fills in missing configuration with default values.
func (c *Config) ApplyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
}

// Service is the pipeline orchestrator.
type Service struct {
	cfg      Config
	store    *store.GORMStore
	blobs    *blob.Store
	renderer Renderer
	infer    inference.Client
	metrics  *Metrics

	hashing Module
	// pageModules run per page, in order, after hashing.
	pageModules []Module
	summary     Module

	queue chan int64

	mu       sync.Mutex
	inFlight map[int64]bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the processor and subscribes it to the event bus. Metrics
// may be nil.
func New(cfg Config, s *store.GORMStore, blobs *blob.Store, renderer Renderer, infer inference.Client, bus *events.Bus, metrics *Metrics) *Service {
	cfg.ApplyDefaults()
	svc := &Service{
		cfg:      cfg,
		store:    s,
		blobs:    blobs,
		renderer: renderer,
		infer:    infer,
		metrics:  metrics,
		queue:    make(chan int64, cfg.QueueSize),
		inFlight: make(map[int64]bool),
	}
	svc.hashing = &hashingModule{store: s, blobs: blobs, renderer: renderer}
	svc.pageModules = []Module{
		&pngModule{store: s, blobs: blobs, renderer: renderer},
	}
	// Stages that call out to the model service only exist when a
	// client is configured; without one the pipeline stops at rasters.
	if infer != nil {
		svc.pageModules = append(svc.pageModules,
			&ocrModule{store: s, blobs: blobs, infer: infer},
			&embeddingModule{store: s, infer: infer},
		)
		svc.summary = &summaryModule{store: s, infer: infer}
	}

	if bus != nil {
		bus.SubscribeNoteUpdated(func(e events.NoteUpdated) { svc.Enqueue(e.FileID) })
		bus.SubscribeNoteDeleted(func(e events.NoteDeleted) { svc.HandleDeleted(context.Background(), e.FileID) })
	}
	return svc
}

// Start launches the workers and re-enqueues files whose tasks were
// interrupted by the previous shutdown.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	fileIDs, err := s.store.ListIncompleteTaskFiles(ctx)
	if err != nil {
		return err
	}
	for _, id := range fileIDs {
		s.Enqueue(id)
	}
	if len(fileIDs) > 0 {
		logger.Info("recovered interrupted files", logger.KeyCount, len(fileIDs))
	}

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	logger.Info("processor started", "workers", s.cfg.Concurrency)
	return nil
}

// Shutdown stops the workers. In-flight files finish their current stage
// and observe cancellation at the next blocking call; recovery re-queues
// them on the next start.
func (s *Service) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	logger.Info("processor stopped")
}

// Enqueue schedules a file for processing. Re-enqueueing a file already
// queued or in flight is a no-op.
func (s *Service) Enqueue(fileID int64) {
	s.mu.Lock()
	if s.inFlight[fileID] {
		s.mu.Unlock()
		return
	}
	s.inFlight[fileID] = true
	s.mu.Unlock()

	select {
	case s.queue <- fileID:
		s.metrics.queueDelta(1)
	default:
		s.mu.Lock()
		delete(s.inFlight, fileID)
		s.mu.Unlock()
		logger.Warn("processing queue full, dropping file", logger.KeyFileID, fileID)
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case fileID := <-s.queue:
			s.metrics.queueDelta(-1)
			s.metrics.inFlightDelta(1)
			success := s.processFile(ctx, fileID)
			s.metrics.inFlightDelta(-1)
			s.metrics.fileDone(success)

			s.mu.Lock()
			delete(s.inFlight, fileID)
			s.mu.Unlock()
		}
	}
}

// processFile drives the full pipeline for one file: hashing, the
// per-page stages fanned out in parallel, then the global summary.
func (s *Service) processFile(ctx context.Context, fileID int64) bool {
	file, err := s.store.GetFileAnyUser(ctx, fileID)
	if err == models.ErrNodeNotFound {
		// The file vanished between enqueue and dequeue; drop its state.
		if err := s.cleanup(ctx, fileID); err != nil {
			logger.Warn("failed to clean up vanished file", logger.KeyFileID, fileID, logger.Err(err))
		}
		return true
	}
	if err != nil {
		logger.Error("failed to load file", logger.KeyFileID, fileID, logger.Err(err))
		return false
	}
	if !file.Active() {
		return true
	}

	if !s.runModule(ctx, s.hashing, file, nil).ok() {
		return false
	}

	pages, err := s.store.ListNotePages(ctx, fileID)
	if err != nil {
		logger.Error("failed to list pages", logger.KeyFileID, fileID, logger.Err(err))
		return false
	}

	g, gctx := errgroup.WithContext(ctx)
	failures := make([]bool, len(pages))
	for i, page := range pages {
		i, page := i, page
		g.Go(func() error {
			failures[i] = !s.processPage(gctx, file, page)
			return nil
		})
	}
	g.Wait()

	failed := false
	for _, f := range failures {
		failed = failed || f
	}

	if s.summary != nil && !s.runModule(ctx, s.summary, file, nil).ok() {
		return false
	}
	return !failed
}

// processPage runs the per-page stages in order. A failed stage stops
// the chain for this pass; a page whose OCR yields no text stops before
// embedding so embeddings exist only for non-empty text.
func (s *Service) processPage(ctx context.Context, file *models.FileNode, page *models.NotePage) bool {
	for _, m := range s.pageModules {
		if m.TaskType() == models.TaskTypeEmbedding {
			current, err := s.store.GetNotePage(ctx, file.ID, page.PageID)
			if err != nil {
				return false
			}
			if current.TextContent == "" {
				return true
			}
		}
		if !s.runModule(ctx, m, file, page).ok() {
			return false
		}
	}
	return true
}

// HandleDeleted drops every trace of a purged notebook: page rows, task
// rows, summaries and cached rasters.
func (s *Service) HandleDeleted(ctx context.Context, fileID int64) {
	if err := s.cleanup(ctx, fileID); err != nil {
		logger.Error("failed to clean up deleted file", logger.KeyFileID, fileID, logger.Err(err))
	}
}

func (s *Service) cleanup(ctx context.Context, fileID int64) error {
	if err := s.store.DeleteAllNotePages(ctx, fileID); err != nil {
		return err
	}
	if err := s.store.DeleteAllTasks(ctx, fileID); err != nil {
		return err
	}
	if err := s.store.DeleteSummariesForFile(ctx, fileID); err != nil {
		return err
	}
	if err := s.blobs.DeletePrefix(ctx, blob.BucketCache, cachePagePrefix(fileID)); err != nil {
		return err
	}
	logger.Debug("file state cleaned up", logger.KeyFileID, fileID)
	return nil
}
