package db

import (
	"math"
	"sort"
	"strings"
)

// SearchFilter narrows keyword and semantic results. Only completed bookmarks
// are ever returned.
type SearchFilter struct {
	Domain      string
	ContentType string
	Tag         string
}

// DefaultSimilarityThreshold is the minimum cosine similarity for a semantic hit.
const DefaultSimilarityThreshold = 0.3

type scoredResult struct {
	ID    string
	Score float64
	Rank  int
}

// KeywordSearch matches query against titles, summary, tags and notes.
func (s *Store) KeywordSearch(query string, filter SearchFilter, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	var ranked []scoredResult
	var err error
	if s.fts {
		ranked, err = s.ftsSearch(query, filter, limit)
	}
	// FTS5 can reject odd input; LIKE never does.
	if !s.fts || err != nil {
		ranked, err = s.likeSearch(query, filter, limit)
	}
	if err != nil {
		return nil, err
	}
	return s.hydrate(ranked), nil
}

func (s *Store) ftsSearch(query string, filter SearchFilter, limit int) ([]scoredResult, error) {
	where, args := s.filterClause(filter)
	sqlQuery := `
		SELECT b.id, bm25(bookmarks_fts) AS score
		FROM bookmarks_fts
		JOIN bookmarks b ON bookmarks_fts.rowid = b.rowid
		WHERE bookmarks_fts MATCH ? AND ` + where + `
		ORDER BY score
		LIMIT ?`

	queryArgs := append([]interface{}{ftsQuery(query)}, args...)
	queryArgs = append(queryArgs, limit)

	rows, err := s.db.Query(sqlQuery, queryArgs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []scoredResult
	rank := 1
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, err
		}
		results = append(results, scoredResult{ID: id, Score: -score, Rank: rank}) // BM25 returns negative scores
		rank++
	}

	return results, rows.Err()
}

func (s *Store) likeSearch(query string, filter SearchFilter, limit int) ([]scoredResult, error) {
	where, args := s.filterClause(filter)
	pattern := "%" + strings.ToLower(query) + "%"
	tag := strings.ReplaceAll(strings.ToLower(query), " ", "-")

	sqlQuery := `
		SELECT b.id FROM bookmarks b
		WHERE (LOWER(b.clean_title) LIKE ? OR LOWER(b.ai_summary) LIKE ? OR LOWER(b.original_title) LIKE ?
			OR EXISTS (SELECT 1 FROM json_each(b.auto_tags) WHERE json_each.value = ?))
		AND ` + where + `
		ORDER BY b.created_at DESC
		LIMIT ?`

	queryArgs := append([]interface{}{pattern, pattern, pattern, tag}, args...)
	queryArgs = append(queryArgs, limit)

	var ids []string
	if err := s.db.Select(&ids, sqlQuery, queryArgs...); err != nil {
		return nil, err
	}
	results := make([]scoredResult, len(ids))
	for i, id := range ids {
		results[i] = scoredResult{ID: id, Score: 1.0 / float64(i+1), Rank: i + 1}
	}
	return results, nil
}

// SemanticSearch ranks completed bookmarks by cosine similarity to the query
// embedding, dropping anything below threshold.
func (s *Store) SemanticSearch(queryEmbedding []float32, filter SearchFilter, limit int, threshold float64) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	ranked, err := s.vectorSearch(queryEmbedding, threshold)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, limit)
	for _, r := range s.hydrate(ranked) {
		if !filter.matches(&r.Bookmark) {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

func (s *Store) vectorSearch(queryEmbedding []float32, threshold float64) ([]scoredResult, error) {
	embeddings, err := s.GetAllWithEmbeddings()
	if err != nil {
		return nil, err
	}

	var results []scoredResult
	for id, emb := range embeddings {
		if len(emb) == 0 {
			continue
		}
		score := cosineSimilarity(queryEmbedding, emb)
		if score < threshold {
			continue
		}
		results = append(results, scoredResult{ID: id, Score: score})
	}

	// Sort by score descending
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	// Assign ranks
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// HybridSearch fuses keyword and semantic rankings. A nil embedding degrades
// to keyword-only ranking.
func (s *Store) HybridSearch(query string, queryEmbedding []float32, filter SearchFilter, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}

	var ftsResults []scoredResult
	var err error
	if s.fts {
		ftsResults, err = s.ftsSearch(query, filter, 50)
	}
	if !s.fts || err != nil {
		ftsResults, err = s.likeSearch(query, filter, 50)
		if err != nil {
			return nil, err
		}
	}

	var vecResults []scoredResult
	if len(queryEmbedding) > 0 {
		vecResults, err = s.vectorSearch(queryEmbedding, DefaultSimilarityThreshold)
		if err != nil {
			return nil, err
		}
	}

	combined := hybridRank(ftsResults, vecResults)

	results := make([]SearchResult, 0, limit)
	for _, r := range s.hydrate(combined) {
		if !filter.matches(&r.Bookmark) {
			continue
		}
		results = append(results, r)
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// hydrate loads the bookmarks behind ranked ids, keeping order. Rows deleted
// or no longer completed since ranking are dropped.
func (s *Store) hydrate(ranked []scoredResult) []SearchResult {
	results := make([]SearchResult, 0, len(ranked))
	for _, r := range ranked {
		b, err := s.Get(r.ID)
		if err != nil || b.Status != StatusCompleted {
			continue
		}
		results = append(results, SearchResult{Bookmark: *b, Score: r.Score})
	}
	return results
}

func (s *Store) filterClause(filter SearchFilter) (string, []interface{}) {
	where := []string{"b.owner_id = ?", "b.enrichment_status = ?"}
	args := []interface{}{s.owner, StatusCompleted}
	if filter.Domain != "" {
		where = append(where, "b.domain = ?")
		args = append(args, filter.Domain)
	}
	if filter.ContentType != "" {
		where = append(where, "b.content_type = ?")
		args = append(args, filter.ContentType)
	}
	if filter.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(b.auto_tags) WHERE json_each.value = ?)")
		args = append(args, filter.Tag)
	}
	return strings.Join(where, " AND "), args
}

func (f SearchFilter) matches(b *Bookmark) bool {
	if f.Domain != "" && b.Domain != f.Domain {
		return false
	}
	if f.ContentType != "" && b.ContentType != f.ContentType {
		return false
	}
	if f.Tag != "" {
		found := false
		for _, t := range b.AutoTags {
			if t == f.Tag {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ftsQuery quotes each term so user input never hits FTS5 operator syntax.
func ftsQuery(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// hybridRank combines results using Reciprocal Rank Fusion (RRF)
func hybridRank(ftsResults, vecResults []scoredResult) []scoredResult {
	const k = 60 // RRF constant

	scores := make(map[string]float64)

	for _, r := range ftsResults {
		scores[r.ID] += 1.0 / (float64(k) + float64(r.Rank))
	}

	for _, r := range vecResults {
		scores[r.ID] += 1.0 / (float64(k) + float64(r.Rank))
	}

	var results []scoredResult
	for id, score := range scores {
		results = append(results, scoredResult{ID: id, Score: score})
	}

	// Sort by combined score descending
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score == results[j].Score {
			return results[i].ID < results[j].ID
		}
		return results[i].Score > results[j].Score
	})

	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
