package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const importJobColumns = `id, owner_id, status, total, imported_count, skipped_count, enqueue_enrich_count,
	enrich_completed, enrich_failed, current_item_id, created_at, updated_at`

const importItemColumns = `id, job_id, owner_id, bookmark_id, url, title, tags, status, error,
	started_at, finished_at, created_at`

// CreateImportJob starts a new batch in the processing state.
func (s *Store) CreateImportJob(total int) (*ImportJob, error) {
	now := time.Now().UTC()
	job := &ImportJob{
		ID:        uuid.NewString(),
		OwnerID:   s.owner,
		Status:    JobProcessing,
		Total:     total,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.NamedExec(`INSERT INTO import_jobs (`+importJobColumns+`)
		VALUES (:id, :owner_id, :status, :total, :imported_count, :skipped_count, :enqueue_enrich_count,
			:enrich_completed, :enrich_failed, :current_item_id, :created_at, :updated_at)`, job)
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) GetImportJob(id string) (*ImportJob, error) {
	var job ImportJob
	err := s.db.Get(&job, `SELECT `+importJobColumns+` FROM import_jobs WHERE id = ? AND owner_id = ?`, id, s.owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import job %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *Store) ListImportJobs(limit int) ([]ImportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	var jobs []ImportJob
	err := s.db.Select(&jobs, `SELECT `+importJobColumns+` FROM import_jobs WHERE owner_id = ? ORDER BY created_at DESC LIMIT ?`, s.owner, limit)
	return jobs, err
}

// SetImportJobCounts records the coordinator's submission-time counters.
func (s *Store) SetImportJobCounts(id string, imported, skipped, enqueued int) error {
	res, err := s.db.Exec(`UPDATE import_jobs SET imported_count = ?, skipped_count = ?, enqueue_enrich_count = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`, imported, skipped, enqueued, time.Now().UTC(), id, s.owner)
	if err != nil {
		return err
	}
	if err := requireRow(res, "import job", id); err != nil {
		return err
	}
	// A batch with nothing to enrich is finished as soon as it is submitted.
	if enqueued == 0 {
		_, err = s.db.Exec(`UPDATE import_jobs SET status = ?, updated_at = ? WHERE id = ? AND owner_id = ? AND status = ?`,
			JobCompleted, time.Now().UTC(), id, s.owner, JobProcessing)
	}
	return err
}

// SetCurrentItem points the job at the item presently being processed.
func (s *Store) SetCurrentItem(jobID, itemID string) error {
	_, err := s.db.Exec(`UPDATE import_jobs SET current_item_id = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		itemID, time.Now().UTC(), jobID, s.owner)
	return err
}

// RecordItemOutcome bumps the completed or failed counter of the job and flips
// it to completed once every enqueued item is terminal.
func (s *Store) RecordItemOutcome(jobID string, succeeded bool) (*ImportJob, error) {
	column := "enrich_failed"
	if succeeded {
		column = "enrich_completed"
	}
	now := time.Now().UTC()
	if _, err := s.db.Exec(`UPDATE import_jobs SET `+column+` = `+column+` + 1, updated_at = ? WHERE id = ? AND owner_id = ?`,
		now, jobID, s.owner); err != nil {
		return nil, err
	}
	if err := s.completeIfDone(jobID); err != nil {
		return nil, err
	}
	return s.GetImportJob(jobID)
}

// completeIfDone flips a processing job to completed once its counters cover
// the quota and no item is left pending or processing. A quota skipped down
// to zero completes too.
func (s *Store) completeIfDone(jobID string) error {
	_, err := s.db.Exec(`UPDATE import_jobs SET status = ?, current_item_id = NULL, updated_at = ?
		WHERE id = ? AND owner_id = ? AND status = ?
		AND enrich_completed + enrich_failed >= enqueue_enrich_count
		AND NOT EXISTS (SELECT 1 FROM import_job_items i
			WHERE i.job_id = import_jobs.id AND i.owner_id = import_jobs.owner_id AND i.status IN (?, ?))`,
		JobCompleted, time.Now().UTC(), jobID, s.owner, JobProcessing, ItemPending, ItemProcessing)
	return err
}

// CancelImportJob marks a processing job canceled and cancels its pending
// items. Items already processing are left to finish. It returns the number
// of items canceled.
func (s *Store) CancelImportJob(id string) (int, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE import_jobs SET status = ?, current_item_id = NULL, updated_at = ? WHERE id = ? AND owner_id = ? AND status = ?`,
		JobCanceled, now, id, s.owner, JobProcessing)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		var status string
		if err := tx.Get(&status, `SELECT status FROM import_jobs WHERE id = ? AND owner_id = ?`, id, s.owner); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return 0, fmt.Errorf("import job %s: %w", id, ErrNotFound)
			}
			return 0, err
		}
	}

	res, err = tx.Exec(`UPDATE import_job_items SET status = ?, finished_at = ? WHERE job_id = ? AND owner_id = ? AND status = ?`,
		ItemCanceled, now, id, s.owner, ItemPending)
	if err != nil {
		return 0, err
	}
	canceled, _ := res.RowsAffected()

	return int(canceled), tx.Commit()
}

// DeleteImportJob removes a job and its items. With cascade the bookmarks
// created by the job are deleted too.
func (s *Store) DeleteImportJob(id string, cascade bool) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if cascade {
		var ids []string
		if err := tx.Select(&ids, `SELECT bookmark_id FROM import_job_items WHERE job_id = ? AND owner_id = ? AND bookmark_id IS NOT NULL`,
			id, s.owner); err != nil {
			return err
		}
		if len(ids) > 0 {
			query, args, err := sqlx.In(`DELETE FROM bookmarks WHERE owner_id = ? AND id IN (?)`, s.owner, ids)
			if err != nil {
				return err
			}
			if _, err := tx.Exec(tx.Rebind(query), args...); err != nil {
				return err
			}
		}
	}

	if _, err := tx.Exec(`DELETE FROM import_job_items WHERE job_id = ? AND owner_id = ?`, id, s.owner); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM import_jobs WHERE id = ? AND owner_id = ?`, id, s.owner)
	if err != nil {
		return err
	}
	if err := requireRow(res, "import job", id); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateImportItems inserts the tracking rows of a batch.
func (s *Store) CreateImportItems(items []*ImportJobItem) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(`INSERT INTO import_job_items (` + importItemColumns + `)
		VALUES (:id, :job_id, :owner_id, :bookmark_id, :url, :title, :tags, :status, :error,
			:started_at, :finished_at, :created_at)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.OwnerID = s.owner
		item.CreatedAt = now
		if item.Status == "" {
			item.Status = ItemPending
		}
		if _, err := stmt.Exec(item); err != nil {
			return fmt.Errorf("insert item %s: %w", item.URL, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetImportItem(jobID, itemID string) (*ImportJobItem, error) {
	var item ImportJobItem
	err := s.db.Get(&item, `SELECT `+importItemColumns+` FROM import_job_items WHERE id = ? AND job_id = ? AND owner_id = ?`,
		itemID, jobID, s.owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("import item %s: %w", itemID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListImportItems(jobID string) ([]ImportJobItem, error) {
	var items []ImportJobItem
	err := s.db.Select(&items, `SELECT `+importItemColumns+` FROM import_job_items WHERE job_id = ? AND owner_id = ? ORDER BY created_at, rowid`,
		jobID, s.owner)
	return items, err
}

// StartItem moves a pending item to processing. It reports false when the
// item was no longer pending.
func (s *Store) StartItem(jobID, itemID string) (bool, error) {
	res, err := s.db.Exec(`UPDATE import_job_items SET status = ?, started_at = ? WHERE id = ? AND job_id = ? AND owner_id = ? AND status = ?`,
		ItemProcessing, time.Now().UTC(), itemID, jobID, s.owner, ItemPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FinishItem records a terminal status for an item that is still pending or
// processing. It reports false when someone else already finished it.
func (s *Store) FinishItem(jobID, itemID, status string, errMsg *string) (bool, error) {
	res, err := s.db.Exec(`UPDATE import_job_items SET status = ?, error = ?, finished_at = ?
		WHERE id = ? AND job_id = ? AND owner_id = ? AND status IN (?, ?)`,
		status, errMsg, time.Now().UTC(), itemID, jobID, s.owner, ItemPending, ItemProcessing)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SkipItem marks an unfinished item skipped and removes it from the job's
// enrichment quota so the batch can still complete.
func (s *Store) SkipItem(jobID, itemID string) (bool, error) {
	tx, err := s.db.Beginx()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	res, err := tx.Exec(`UPDATE import_job_items SET status = ?, finished_at = ?
		WHERE id = ? AND job_id = ? AND owner_id = ? AND status IN (?, ?)`,
		ItemSkipped, now, itemID, jobID, s.owner, ItemPending, ItemProcessing)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	if _, err := tx.Exec(`UPDATE import_jobs SET enqueue_enrich_count = MAX(enqueue_enrich_count - 1, 0), updated_at = ?
		WHERE id = ? AND owner_id = ?`, now, jobID, s.owner); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, s.completeIfDone(jobID)
}
