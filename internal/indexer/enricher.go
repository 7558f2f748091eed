package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/llm"
	"github.com/sarathavasarala/markly/internal/scraper"
	"github.com/sarathavasarala/markly/internal/textutil"
	"go.uber.org/zap"
)

// MaxContentExtract caps the raw text stored with a bookmark.
const MaxContentExtract = 50000

// Extractor fetches what it can about a page.
type Extractor interface {
	Extract(ctx context.Context, pageURL string) (*scraper.Result, error)
}

// Synthesizer turns page content into validated metadata.
type Synthesizer interface {
	Enrich(ctx context.Context, in llm.Input) (*llm.Metadata, error)
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Enricher drives one bookmark through extract, synthesize, persist and
// embed. Every outcome is written to the store; Run never returns an error.
type Enricher struct {
	store     *db.Store
	extractor Extractor
	synth     Synthesizer
	embedder  Embedder
	batches   *batchRegistry
	logger    *zap.Logger
}

func newEnricher(store *db.Store, extractor Extractor, synth Synthesizer, embedder Embedder, batches *batchRegistry, logger *zap.Logger) *Enricher {
	return &Enricher{
		store:     store,
		extractor: extractor,
		synth:     synth,
		embedder:  embedder,
		batches:   batches,
		logger:    logger,
	}
}

// Run processes job. It is the runner's handler.
func (e *Enricher) Run(ctx context.Context, job Job) {
	store := e.store.WithOwner(job.Owner)
	log := e.logger.With(zap.String("bookmark_id", job.BookmarkID))
	if job.batched() {
		log = log.With(zap.String("job_id", job.ImportJobID), zap.String("item_id", job.ItemID))
	}

	defer func() {
		if rec := recover(); rec != nil {
			msg := textutil.Truncate(fmt.Sprintf("PanicError: %v", rec), MaxErrorLen)
			log.Error("enrichment panicked", zap.String("error", msg))
			if err := store.SetStatus(job.BookmarkID, db.StatusFailed, &msg); err != nil {
				log.Error("failed to record failure", zap.Error(err))
			}
			e.finishItem(store, job, db.ItemFailed, &msg, log)
		}
	}()

	if job.batched() {
		if status, stop := e.checkpoint(store, job); stop {
			e.abandon(store, job, status, log)
			return
		}
		started, err := store.StartItem(job.ImportJobID, job.ItemID)
		if err != nil {
			log.Warn("failed to start import item", zap.Error(err))
		} else if !started {
			status, _ := e.checkpoint(store, job)
			if status == "" {
				status = db.ItemCanceled
			}
			e.abandon(store, job, status, log)
			return
		}
		if err := store.SetCurrentItem(job.ImportJobID, job.ItemID); err != nil {
			log.Warn("failed to set current item", zap.Error(err))
		}
	}

	start := time.Now()
	err := e.enrich(ctx, store, job, log)

	var canceled *cancelError
	switch {
	case errors.As(err, &canceled):
		e.abandon(store, job, canceled.status, log)
	case err != nil:
		msg := failureMessage(err)
		log.Error("enrichment failed", zap.String("error", msg), zap.Duration("elapsed", time.Since(start)))
		if err := store.SetStatus(job.BookmarkID, db.StatusFailed, &msg); err != nil {
			log.Error("failed to record failure", zap.Error(err))
		}
		e.finishItem(store, job, db.ItemFailed, &msg, log)
	default:
		log.Info("enrichment completed", zap.Duration("elapsed", time.Since(start)))
		e.finishItem(store, job, db.ItemCompleted, nil, log)
	}
}

func (e *Enricher) enrich(ctx context.Context, store *db.Store, job Job, log *zap.Logger) error {
	if err := store.SetStatus(job.BookmarkID, db.StatusProcessing, nil); err != nil {
		return storeError(err)
	}

	b, err := store.Get(job.BookmarkID)
	if err != nil {
		return lookupError(err)
	}

	extracted := e.acquire(ctx, b, log)

	if job.batched() {
		if status, stop := e.checkpoint(store, job); stop {
			return &cancelError{status: status}
		}
	}

	folders, err := store.FolderNames()
	if err != nil {
		log.Warn("failed to load folders", zap.Error(err))
	}

	title := firstNonEmpty(extracted.Title, b.OriginalTitle, b.URL)
	meta, err := e.synth.Enrich(ctx, llm.Input{
		URL:       b.URL,
		Title:     title,
		Content:   firstNonEmpty(extracted.Content, extracted.Description),
		UserNotes: b.RawNotes,
		Folders:   folders,
		UseNano:   job.UseNano,
	})
	if err != nil {
		return synthesisError(err)
	}

	var advisory *string
	if strings.TrimSpace(extracted.Content) == "" {
		msg := scrapeAdvisory
		advisory = &msg
	}

	err = store.SaveEnrichment(b.ID, db.Enrichment{
		Domain:          firstNonEmpty(extracted.Domain, b.Domain),
		OriginalTitle:   firstNonEmpty(extracted.Title, b.OriginalTitle),
		FaviconURL:      firstNonEmpty(extracted.FaviconURL, b.FaviconURL),
		ThumbnailURL:    extracted.ThumbnailURL,
		ContentExtract:  textutil.Truncate(extracted.Content, MaxContentExtract),
		CleanTitle:      meta.CleanTitle,
		AISummary:       meta.AISummary,
		AutoTags:        meta.AutoTags,
		KeyQuotes:       meta.KeyQuotes,
		IntentType:      meta.IntentType,
		TechnicalLevel:  meta.TechnicalLevel,
		ContentType:     meta.ContentType,
		SuggestedFolder: meta.SuggestedFolder,
		Advisory:        advisory,
	})
	if err != nil {
		return storeError(err)
	}

	e.embed(ctx, store, b.ID, meta, b.RawNotes, log)
	return nil
}

// acquire returns the content to synthesize from. A user description
// replaces scraping entirely; an extraction error degrades to a bare record.
func (e *Enricher) acquire(ctx context.Context, b *db.Bookmark, log *zap.Logger) *scraper.Result {
	if desc := strings.TrimSpace(b.UserDescription); desc != "" {
		log.Debug("using user description, skipping extraction")
		return &scraper.Result{
			Title:       b.OriginalTitle,
			Description: desc,
			Content:     desc,
			FaviconURL:  b.FaviconURL,
			Domain:      b.Domain,
		}
	}

	extracted, err := e.extractor.Extract(ctx, b.URL)
	if err != nil || extracted == nil {
		log.Warn("extraction failed, continuing with url only", zap.String("url", b.URL), zap.Error(err))
		domain, _ := scraper.Domain(b.URL)
		res := &scraper.Result{Title: b.URL, Domain: domain}
		if domain != "" {
			res.FaviconURL = scraper.FaviconServiceURL(domain)
		}
		return res
	}
	return extracted
}

// embed stores a vector for the bookmark. Failures are logged only.
func (e *Enricher) embed(ctx context.Context, store *db.Store, id string, meta *llm.Metadata, notes string, log *zap.Logger) {
	if e.embedder == nil {
		return
	}
	text := llm.EmbeddingText(meta.CleanTitle, meta.AISummary, meta.AutoTags, notes)
	if text == "" {
		log.Debug("nothing to embed")
		return
	}

	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		log.Warn("embedding failed", zap.Error(err))
		return
	}
	if err := store.UpdateEmbedding(id, vec); err != nil {
		log.Warn("failed to save embedding", zap.Error(err))
	}
}

// checkpoint reports whether a batch item should stop, and the item status
// to record if so.
func (e *Enricher) checkpoint(store *db.Store, job Job) (string, bool) {
	if ctx := e.batches.lookup(job.ImportJobID); ctx != nil && ctx.Err() != nil {
		return db.ItemCanceled, true
	}

	item, err := store.GetImportItem(job.ImportJobID, job.ItemID)
	if errors.Is(err, db.ErrNotFound) {
		return db.ItemCanceled, true
	}
	if err == nil && (item.Status == db.ItemSkipped || item.Status == db.ItemCanceled) {
		return item.Status, true
	}

	record, err := store.GetImportJob(job.ImportJobID)
	if errors.Is(err, db.ErrNotFound) || (err == nil && record.Status == db.JobCanceled) {
		return db.ItemCanceled, true
	}
	return "", false
}

// abandon leaves the bookmark failed with an advisory and closes the item.
func (e *Enricher) abandon(store *db.Store, job Job, status string, log *zap.Logger) {
	msg := canceledMessage
	if status == db.ItemSkipped {
		msg = skippedMessage
	}
	log.Info("enrichment abandoned", zap.String("status", status))

	if err := store.SetStatus(job.BookmarkID, db.StatusFailed, &msg); err != nil {
		log.Error("failed to record abandonment", zap.Error(err))
	}
	if _, err := store.FinishItem(job.ImportJobID, job.ItemID, status, nil); err != nil {
		log.Warn("failed to close import item", zap.Error(err))
	}
	if status == db.ItemCanceled {
		e.batches.release(job.ImportJobID)
		return
	}
	if record, err := store.GetImportJob(job.ImportJobID); err != nil || record.Status != db.JobProcessing {
		e.batches.release(job.ImportJobID)
	}
}

// finishItem records a terminal item outcome and bumps the job counters.
func (e *Enricher) finishItem(store *db.Store, job Job, status string, errMsg *string, log *zap.Logger) {
	if !job.batched() {
		return
	}
	ok, err := store.FinishItem(job.ImportJobID, job.ItemID, status, errMsg)
	if err != nil {
		log.Error("failed to finish import item", zap.Error(err))
		return
	}
	if !ok {
		// Skipped or canceled while running; the counters already account for it.
		return
	}

	record, err := store.RecordItemOutcome(job.ImportJobID, status == db.ItemCompleted)
	if err != nil {
		log.Error("failed to update import job", zap.Error(err))
		return
	}
	if record.Status != db.JobProcessing {
		e.batches.release(job.ImportJobID)
		log.Info("import job finished",
			zap.String("status", record.Status),
			zap.Int("completed", record.EnrichCompleted),
			zap.Int("failed", record.EnrichFailed),
		)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
