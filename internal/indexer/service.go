package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/sarathavasarala/markly/internal/scraper"
	"github.com/sarathavasarala/markly/internal/textutil"
	"go.uber.org/zap"
)

// maxInitialTitle caps the title taken from a user description at create time.
const maxInitialTitle = 100

// Service is the entry point to the enrichment pipeline. It owns the worker
// pool and is constructed once per process.
type Service struct {
	store     *db.Store
	extractor Extractor
	synth     Synthesizer
	enricher  *Enricher
	runner    *Runner
	batches   *batchRegistry
	logger    *zap.Logger
}

// NewService wires the pipeline. embedder may be nil to disable vectors.
// store must already be scoped to the calling owner.
func NewService(store *db.Store, extractor Extractor, synth Synthesizer, embedder Embedder, workers int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	batches := newBatchRegistry()
	enricher := newEnricher(store, extractor, synth, embedder, batches, logger.Named("enricher"))
	return &Service{
		store:     store,
		extractor: extractor,
		synth:     synth,
		enricher:  enricher,
		runner:    NewRunner(workers, enricher.Run, logger.Named("runner")),
		batches:   batches,
		logger:    logger,
	}
}

// CreateInput is a bookmark submitted by hand.
type CreateInput struct {
	URL         string
	Notes       string
	Description string
	Source      string
}

// CreateBookmark saves a new bookmark and queues its enrichment. When the URL
// is already saved the existing record is returned with existed set.
func (s *Service) CreateBookmark(in CreateInput) (*db.Bookmark, bool, error) {
	u, err := ValidateURL(in.URL)
	if err != nil {
		return nil, false, err
	}

	if existing, err := s.store.GetByURL(u); err == nil {
		return existing, true, nil
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, false, err
	}

	domain, _ := scraper.Domain(u)
	desc := strings.TrimSpace(in.Description)
	title := u
	if desc != "" {
		title = textutil.Truncate(textutil.FirstLine(desc), maxInitialTitle)
	}

	b := &db.Bookmark{
		Source:          in.Source,
		URL:             u,
		Domain:          domain,
		OriginalTitle:   title,
		FaviconURL:      scraper.FaviconServiceURL(domain),
		RawNotes:        strings.TrimSpace(in.Notes),
		UserDescription: desc,
		Status:          db.StatusPending,
	}
	if err := s.store.Create(b); err != nil {
		if errors.Is(err, db.ErrConflict) {
			existing, getErr := s.store.GetByURL(u)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("create bookmark: %w", err)
	}

	if err := s.EnqueueSingle(b.ID); err != nil {
		return b, false, err
	}
	return b, false, nil
}

// EnqueueSingle queues enrichment of one bookmark with the standard model.
func (s *Service) EnqueueSingle(bookmarkID string) error {
	return s.submit(Job{Owner: s.store.Owner(), BookmarkID: bookmarkID})
}

// EnqueueFromImport queues enrichment of one item of an import batch.
func (s *Service) EnqueueFromImport(bookmarkID, jobID, itemID string, useNano bool) error {
	s.batches.register(jobID)
	return s.submit(Job{
		Owner:       s.store.Owner(),
		BookmarkID:  bookmarkID,
		ImportJobID: jobID,
		ItemID:      itemID,
		UseNano:     useNano,
	})
}

func (s *Service) submit(job Job) error {
	if s.synth == nil {
		return ErrNoSynthesizer
	}
	return s.runner.Submit(job)
}

// Retry resets a bookmark to pending and runs the whole pipeline again.
func (s *Service) Retry(bookmarkID string) error {
	if s.synth == nil {
		return ErrNoSynthesizer
	}
	if err := s.store.ResetForRetry(bookmarkID); err != nil {
		return err
	}
	return s.EnqueueSingle(bookmarkID)
}

// RetryAllFailed retries every failed bookmark and returns how many were queued.
func (s *Service) RetryAllFailed() (int, error) {
	ids, err := s.store.IDsByStatus(db.StatusFailed)
	if err != nil {
		return 0, err
	}
	return s.retryAll(ids)
}

// RetryStuck requeues bookmarks left pending or processing by a process that
// exited before their enrichment ran. Only call it when no other process is
// enriching for this owner.
func (s *Service) RetryStuck() (int, error) {
	var ids []string
	for _, status := range []string{db.StatusPending, db.StatusProcessing} {
		found, err := s.store.IDsByStatus(status)
		if err != nil {
			return 0, err
		}
		ids = append(ids, found...)
	}
	return s.retryAll(ids)
}

func (s *Service) retryAll(ids []string) (int, error) {
	for i, id := range ids {
		if err := s.Retry(id); err != nil {
			return i, fmt.Errorf("retry %s: %w", id, err)
		}
	}
	return len(ids), nil
}

// Preview is the result of AnalyzePreview.
type Preview struct {
	Extracted *scraper.Result `json:"extracted"`
	Metadata  *llm.Metadata   `json:"metadata"`
}

// AnalyzePreview extracts and synthesizes metadata for url without saving
// anything.
func (s *Service) AnalyzePreview(ctx context.Context, pageURL, notes string, useNano bool) (*Preview, error) {
	if s.synth == nil {
		return nil, ErrNoSynthesizer
	}
	u, err := ValidateURL(pageURL)
	if err != nil {
		return nil, err
	}

	extracted, err := s.extractor.Extract(ctx, u)
	if err != nil || extracted == nil {
		s.logger.Warn("preview extraction failed", zap.String("url", u), zap.Error(err))
		domain, _ := scraper.Domain(u)
		extracted = &scraper.Result{Title: u, Domain: domain}
	}

	folders, err := s.store.FolderNames()
	if err != nil {
		s.logger.Warn("failed to load folders", zap.Error(err))
	}

	meta, err := s.synth.Enrich(ctx, llm.Input{
		URL:       u,
		Title:     firstNonEmpty(extracted.Title, u),
		Content:   firstNonEmpty(extracted.Content, extracted.Description),
		UserNotes: strings.TrimSpace(notes),
		Folders:   folders,
		UseNano:   useNano,
	})
	if err != nil {
		return nil, synthesisError(err)
	}
	return &Preview{Extracted: extracted, Metadata: meta}, nil
}

// ImportBatch records candidates as bookmarks and queues enrichment for the
// ones that asked for it.
func (s *Service) ImportBatch(candidates []Candidate, useNano bool) (*ImportSummary, error) {
	if s.synth == nil {
		for _, c := range candidates {
			if c.Enrich {
				return nil, ErrNoSynthesizer
			}
		}
	}
	summary, jobs, err := s.importBatch(s.store, candidates, useNano)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if err := s.EnqueueFromImport(job.BookmarkID, job.ImportJobID, job.ItemID, job.UseNano); err != nil {
			return summary, fmt.Errorf("enqueue %s: %w", job.BookmarkID, err)
		}
	}
	return summary, nil
}

// CancelBatch cancels an import job. Items not yet started become canceled;
// an item already inside synthesis finishes but is not counted.
func (s *Service) CancelBatch(jobID string) (int, error) {
	n, err := s.store.CancelImportJob(jobID)
	if err != nil {
		return 0, err
	}
	s.batches.cancel(jobID)
	s.logger.Info("import job canceled", zap.String("job_id", jobID), zap.Int("items", n))
	return n, nil
}

// SkipItem skips one unfinished item of an import job. It reports false when
// the item had already finished.
func (s *Service) SkipItem(jobID, itemID string) (bool, error) {
	if _, err := s.store.GetImportItem(jobID, itemID); err != nil {
		return false, err
	}
	ok, err := s.store.SkipItem(jobID, itemID)
	if err != nil || !ok {
		return ok, err
	}
	job, err := s.store.GetImportJob(jobID)
	if err != nil {
		return true, err
	}
	if job.Status != db.JobProcessing {
		s.batches.release(jobID)
		s.logger.Info("import job finished", zap.String("job_id", jobID), zap.String("status", job.Status))
	}
	return true, nil
}

// DeleteImportJob removes a job and its items, and with cascade the bookmarks
// it created.
func (s *Service) DeleteImportJob(jobID string, cascade bool) error {
	s.batches.cancel(jobID)
	if err := s.store.DeleteImportJob(jobID, cascade); err != nil {
		return err
	}
	s.batches.release(jobID)
	return nil
}

// Pending is the number of enrichment jobs queued or running.
func (s *Service) Pending() int {
	return s.runner.Pending()
}

// Wait blocks until the queue is empty or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	return s.runner.Wait(ctx)
}

// Shutdown drains the queue and stops the workers.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.runner.Shutdown(ctx)
}
