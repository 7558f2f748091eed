package db

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

// urlLookupChunk bounds the number of bound parameters per existence query.
const urlLookupChunk = 100

// Store is a sqlite-backed store. Every query is scoped to the owner the store
// was created for (see WithOwner).
type Store struct {
	db    *sqlx.DB
	owner string
	fts   bool
}

func NewStore(dataDir string) (*Store, error) {
	return Open(filepath.Join(dataDir, "markly.db"))
}

// Open opens the database file at path and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, err
	}
	// sqlite serializes writers; a single connection keeps background workers
	// from tripping over SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithOwner returns a view of the store scoped to owner. The view shares the
// underlying connection; closing either closes both.
func (s *Store) WithOwner(owner string) *Store {
	return &Store{db: s.db, owner: owner, fts: s.fts}
}

func (s *Store) Owner() string {
	return s.owner
}

// FTSEnabled reports whether the sqlite build supports FTS5.
func (s *Store) FTSEnabled() bool {
	return s.fts
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bookmarks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'manual',
		url TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		original_title TEXT NOT NULL DEFAULT '',
		clean_title TEXT NOT NULL DEFAULT '',
		ai_summary TEXT NOT NULL DEFAULT '',
		auto_tags TEXT NOT NULL DEFAULT '[]',
		key_quotes TEXT NOT NULL DEFAULT '[]',
		content_type TEXT NOT NULL DEFAULT '',
		intent_type TEXT NOT NULL DEFAULT '',
		technical_level TEXT NOT NULL DEFAULT '',
		content_extract TEXT NOT NULL DEFAULT '',
		suggested_folder TEXT,
		favicon_url TEXT NOT NULL DEFAULT '',
		thumbnail_url TEXT NOT NULL DEFAULT '',
		raw_notes TEXT NOT NULL DEFAULT '',
		user_description TEXT NOT NULL DEFAULT '',
		enrichment_status TEXT NOT NULL DEFAULT 'pending',
		enrichment_error TEXT,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(owner_id, url)
	);

	CREATE INDEX IF NOT EXISTS idx_bookmarks_owner_status ON bookmarks(owner_id, enrichment_status);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_owner_domain ON bookmarks(owner_id, domain);

	CREATE TABLE IF NOT EXISTS bookmarks_vec (
		id TEXT PRIMARY KEY REFERENCES bookmarks(id) ON DELETE CASCADE,
		embedding BLOB
	);

	CREATE TABLE IF NOT EXISTS import_jobs (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'processing',
		total INTEGER NOT NULL DEFAULT 0,
		imported_count INTEGER NOT NULL DEFAULT 0,
		skipped_count INTEGER NOT NULL DEFAULT 0,
		enqueue_enrich_count INTEGER NOT NULL DEFAULT 0,
		enrich_completed INTEGER NOT NULL DEFAULT 0,
		enrich_failed INTEGER NOT NULL DEFAULT 0,
		current_item_id TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS import_job_items (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES import_jobs(id) ON DELETE CASCADE,
		owner_id TEXT NOT NULL,
		bookmark_id TEXT,
		url TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		tags TEXT NOT NULL DEFAULT '[]',
		status TEXT NOT NULL DEFAULT 'pending',
		error TEXT,
		started_at TIMESTAMP,
		finished_at TIMESTAMP,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_import_items_job ON import_job_items(job_id, status);

	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(owner_id, name)
	);

	CREATE TABLE IF NOT EXISTS search_history (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		query TEXT NOT NULL,
		mode TEXT NOT NULL DEFAULT '',
		results_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_search_history_owner ON search_history(owner_id, created_at);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// FTS5 depends on how go-sqlite3 was built; keyword search falls back to
	// LIKE when it is missing.
	if err := s.migrateFTS(); err != nil {
		s.fts = false
		return nil
	}
	s.fts = true
	return nil
}

func (s *Store) migrateFTS() error {
	var tableName string
	err := s.db.Get(&tableName, `SELECT name FROM sqlite_master WHERE type='table' AND name='bookmarks_fts'`)
	if err == nil {
		return nil
	}

	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS bookmarks_fts USING fts5(
		clean_title, original_title, ai_summary, auto_tags, raw_notes, url,
		content='bookmarks',
		content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS bookmarks_ai AFTER INSERT ON bookmarks BEGIN
		INSERT INTO bookmarks_fts(rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url)
		VALUES (new.rowid, new.clean_title, new.original_title, new.ai_summary, new.auto_tags, new.raw_notes, new.url);
	END;

	CREATE TRIGGER IF NOT EXISTS bookmarks_ad AFTER DELETE ON bookmarks BEGIN
		INSERT INTO bookmarks_fts(bookmarks_fts, rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url)
		VALUES ('delete', old.rowid, old.clean_title, old.original_title, old.ai_summary, old.auto_tags, old.raw_notes, old.url);
	END;

	CREATE TRIGGER IF NOT EXISTS bookmarks_au AFTER UPDATE ON bookmarks BEGIN
		INSERT INTO bookmarks_fts(bookmarks_fts, rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url)
		VALUES ('delete', old.rowid, old.clean_title, old.original_title, old.ai_summary, old.auto_tags, old.raw_notes, old.url);
		INSERT INTO bookmarks_fts(rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url)
		VALUES (new.rowid, new.clean_title, new.original_title, new.ai_summary, new.auto_tags, new.raw_notes, new.url);
	END;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Populate FTS table with existing data
	_, err = s.db.Exec(`
		INSERT INTO bookmarks_fts(rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url)
		SELECT rowid, clean_title, original_title, ai_summary, auto_tags, raw_notes, url FROM bookmarks
	`)
	return err
}

const bookmarkColumns = `id, owner_id, source, url, domain, original_title, clean_title, ai_summary,
	auto_tags, key_quotes, content_type, intent_type, technical_level, content_extract,
	suggested_folder, favicon_url, thumbnail_url, raw_notes, user_description,
	enrichment_status, enrichment_error, access_count, last_accessed_at, created_at, updated_at`

const insertBookmark = `
	INSERT INTO bookmarks (` + bookmarkColumns + `)
	VALUES (:id, :owner_id, :source, :url, :domain, :original_title, :clean_title, :ai_summary,
		:auto_tags, :key_quotes, :content_type, :intent_type, :technical_level, :content_extract,
		:suggested_folder, :favicon_url, :thumbnail_url, :raw_notes, :user_description,
		:enrichment_status, :enrichment_error, :access_count, :last_accessed_at, :created_at, :updated_at)`

func (s *Store) prepareInsert(b *Bookmark) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.OwnerID = s.owner
	now := time.Now().UTC()
	b.UpdatedAt = now
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.CreatedAt = b.CreatedAt.UTC()
	if b.Source == "" {
		b.Source = SourceManual
	}
	if b.Status == "" {
		b.Status = StatusPending
	}
}

// Create inserts a single bookmark. A duplicate URL for the owner yields ErrConflict.
func (s *Store) Create(b *Bookmark) error {
	s.prepareInsert(b)
	if _, err := s.db.NamedExec(insertBookmark, b); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("bookmark %s: %w", b.URL, ErrConflict)
		}
		return err
	}
	return nil
}

// InsertBatch inserts bookmarks in one transaction. Rows whose URL already
// exists for the owner are skipped, and only the inserted ones are returned.
func (s *Store) InsertBatch(bookmarks []*Bookmark) ([]*Bookmark, error) {
	if len(bookmarks) == 0 {
		return nil, nil
	}

	tx, err := s.db.Beginx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamed(insertBookmark + ` ON CONFLICT(owner_id, url) DO NOTHING`)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	inserted := make([]*Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		s.prepareInsert(b)
		res, err := stmt.Exec(b)
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", b.URL, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted = append(inserted, b)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return inserted, nil
}

func (s *Store) Get(id string) (*Bookmark, error) {
	var b Bookmark
	err := s.db.Get(&b, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ? AND owner_id = ?`, id, s.owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bookmark %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetByURL(url string) (*Bookmark, error) {
	var b Bookmark
	err := s.db.Get(&b, `SELECT `+bookmarkColumns+` FROM bookmarks WHERE url = ? AND owner_id = ?`, url, s.owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("bookmark %s: %w", url, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ExistingURLs returns the subset of urls the owner has already saved.
func (s *Store) ExistingURLs(urls []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	for start := 0; start < len(urls); start += urlLookupChunk {
		end := start + urlLookupChunk
		if end > len(urls) {
			end = len(urls)
		}

		query, args, err := sqlx.In(`SELECT url FROM bookmarks WHERE owner_id = ? AND url IN (?)`, s.owner, urls[start:end])
		if err != nil {
			return nil, err
		}

		var found []string
		if err := s.db.Select(&found, s.db.Rebind(query), args...); err != nil {
			return nil, err
		}
		for _, u := range found {
			existing[u] = true
		}
	}
	return existing, nil
}

// SetStatus moves a bookmark to status. errMsg nil clears enrichment_error.
func (s *Store) SetStatus(id, status string, errMsg *string) error {
	_, err := s.db.Exec(`UPDATE bookmarks SET enrichment_status = ?, enrichment_error = ?, updated_at = ? WHERE id = ? AND owner_id = ?`,
		status, errMsg, time.Now().UTC(), id, s.owner)
	return err
}

// SaveEnrichment writes back the result of a successful run and marks the
// bookmark completed.
func (s *Store) SaveEnrichment(id string, e Enrichment) error {
	query := `UPDATE bookmarks SET
		domain = ?, original_title = ?, favicon_url = ?, thumbnail_url = ?, content_extract = ?,
		clean_title = ?, ai_summary = ?, auto_tags = ?, key_quotes = ?,
		intent_type = ?, technical_level = ?, content_type = ?, suggested_folder = ?,
		enrichment_status = ?, enrichment_error = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`

	res, err := s.db.Exec(query,
		e.Domain, e.OriginalTitle, e.FaviconURL, e.ThumbnailURL, e.ContentExtract,
		e.CleanTitle, e.AISummary, StringList(e.AutoTags), StringList(e.KeyQuotes),
		e.IntentType, e.TechnicalLevel, e.ContentType, e.SuggestedFolder,
		StatusCompleted, e.Advisory, time.Now().UTC(),
		id, s.owner,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "bookmark", id)
}

// ResetForRetry puts a bookmark back to pending and clears its error.
func (s *Store) ResetForRetry(id string) error {
	res, err := s.db.Exec(`UPDATE bookmarks SET enrichment_status = ?, enrichment_error = NULL, updated_at = ? WHERE id = ? AND owner_id = ?`,
		StatusPending, time.Now().UTC(), id, s.owner)
	if err != nil {
		return err
	}
	return requireRow(res, "bookmark", id)
}

// UserEdit carries the fields a user may change by hand. Nil fields are left alone.
type UserEdit struct {
	Title *string
	Tags  []string
	Notes *string
}

func (s *Store) UpdateUserFields(id string, edit UserEdit) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}
	if edit.Title != nil {
		sets = append(sets, "clean_title = ?")
		args = append(args, *edit.Title)
	}
	if edit.Tags != nil {
		sets = append(sets, "auto_tags = ?")
		args = append(args, StringList(edit.Tags))
	}
	if edit.Notes != nil {
		sets = append(sets, "raw_notes = ?")
		args = append(args, *edit.Notes)
	}
	args = append(args, id, s.owner)

	res, err := s.db.Exec(`UPDATE bookmarks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND owner_id = ?`, args...)
	if err != nil {
		return err
	}
	return requireRow(res, "bookmark", id)
}

// TrackAccess bumps the access counter and returns the new count.
func (s *Store) TrackAccess(id string) (int, error) {
	res, err := s.db.Exec(`UPDATE bookmarks SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ? AND owner_id = ?`,
		time.Now().UTC(), id, s.owner)
	if err != nil {
		return 0, err
	}
	if err := requireRow(res, "bookmark", id); err != nil {
		return 0, err
	}
	var count int
	err = s.db.Get(&count, `SELECT access_count FROM bookmarks WHERE id = ? AND owner_id = ?`, id, s.owner)
	return count, err
}

func (s *Store) Delete(id string) error {
	// Delete embedding first
	_, _ = s.db.Exec(`DELETE FROM bookmarks_vec WHERE id IN (SELECT id FROM bookmarks WHERE id = ? AND owner_id = ?)`, id, s.owner)
	res, err := s.db.Exec(`DELETE FROM bookmarks WHERE id = ? AND owner_id = ?`, id, s.owner)
	if err != nil {
		return err
	}
	return requireRow(res, "bookmark", id)
}

// List returns a page of bookmarks matching opts plus the exact total.
func (s *Store) List(opts ListOptions) ([]Bookmark, int, error) {
	where := []string{"owner_id = ?"}
	args := []interface{}{s.owner}

	if opts.Domain != "" {
		where = append(where, "domain = ?")
		args = append(args, opts.Domain)
	}
	if opts.ContentType != "" {
		where = append(where, "content_type = ?")
		args = append(args, opts.ContentType)
	}
	if opts.IntentType != "" {
		where = append(where, "intent_type = ?")
		args = append(args, opts.IntentType)
	}
	if opts.Status != "" {
		where = append(where, "enrichment_status = ?")
		args = append(args, opts.Status)
	}
	if opts.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(bookmarks.auto_tags) WHERE json_each.value = ?)")
		args = append(args, opts.Tag)
	}
	if len(opts.Sources) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(opts.Sources)), ",")
		where = append(where, "source IN ("+placeholders+")")
		for _, src := range opts.Sources {
			args = append(args, src)
		}
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := s.db.Get(&total, `SELECT COUNT(*) FROM bookmarks WHERE `+whereSQL, args...); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if opts.Ascending {
		order = "ASC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + bookmarkColumns + ` FROM bookmarks WHERE ` + whereSQL +
		` ORDER BY ` + sortColumn(opts.SortBy) + ` ` + order + ` LIMIT ? OFFSET ?`
	pageArgs := append(append([]interface{}{}, args...), limit, opts.Offset)

	var bookmarks []Bookmark
	if err := s.db.Select(&bookmarks, query, pageArgs...); err != nil {
		return nil, 0, err
	}
	return bookmarks, total, nil
}

func sortColumn(name string) string {
	switch name {
	case "updated_at", "last_accessed_at", "access_count", "domain", "clean_title":
		return name
	default:
		return "created_at"
	}
}

// IDsByStatus returns the ids of the owner's bookmarks in status.
func (s *Store) IDsByStatus(status string) ([]string, error) {
	var ids []string
	err := s.db.Select(&ids, `SELECT id FROM bookmarks WHERE owner_id = ? AND enrichment_status = ? ORDER BY created_at`, s.owner, status)
	return ids, err
}

func (s *Store) Count() (int, error) {
	var count int
	err := s.db.Get(&count, `SELECT COUNT(*) FROM bookmarks WHERE owner_id = ?`, s.owner)
	return count, err
}

func (s *Store) UpdateEmbedding(id string, embedding []float32) error {
	blob := float32SliceToBytes(embedding)
	_, err := s.db.Exec(`INSERT OR REPLACE INTO bookmarks_vec (id, embedding) VALUES (?, ?)`, id, blob)
	return err
}

func (s *Store) GetEmbedding(id string) ([]float32, error) {
	var blob []byte
	err := s.db.Get(&blob, `SELECT v.embedding FROM bookmarks_vec v JOIN bookmarks b ON b.id = v.id WHERE v.id = ? AND b.owner_id = ?`, id, s.owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("embedding %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return bytesToFloat32Slice(blob), nil
}

// GetAllWithEmbeddings returns embeddings of the owner's completed bookmarks.
func (s *Store) GetAllWithEmbeddings() (map[string][]float32, error) {
	rows, err := s.db.Query(`SELECT v.id, v.embedding FROM bookmarks_vec v JOIN bookmarks b ON b.id = v.id
		WHERE b.owner_id = ? AND b.enrichment_status = ?`, s.owner, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string][]float32)
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		result[id] = bytesToFloat32Slice(blob)
	}
	return result, rows.Err()
}

func float32SliceToBytes(s []float32) []byte {
	b := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func bytesToFloat32Slice(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	s := make([]float32, len(b)/4)
	for i := range s {
		s[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return s
}

// GetMetadata reads an owner-scoped key.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.Get(&value, `SELECT value FROM metadata WHERE key = ?`, s.metaKey(key))
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, s.metaKey(key), value)
	return err
}

func (s *Store) metaKey(key string) string {
	return s.owner + ":" + key
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
