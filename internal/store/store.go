// Package store persists glossary terms, the model last selected for each
// provider and a history of translation runs in a local SQLite database.
// Translations themselves are never cached.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db  *sql.DB
	sq  sq.StatementBuilderType
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, sq: sq.StatementBuilder, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS glossary (
		id TEXT PRIMARY KEY,
		source_term TEXT NOT NULL,
		target_term TEXT NOT NULL,
		target_lang TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		UNIQUE(source_term, target_lang)
	);

	-- selected_models remembers the model last used with each provider
	CREATE TABLE IF NOT EXISTS selected_models (
		provider TEXT PRIMARY KEY,
		model_name TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		output_filename TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model_name TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		state TEXT NOT NULL,
		sections INTEGER NOT NULL DEFAULT 0,
		chunks INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		retries INTEGER NOT NULL DEFAULT 0,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

func parseStamp(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

// normalizeTerm applies Unicode NFC normalisation and trims surrounding
// whitespace so visually identical terms map to one row.
func normalizeTerm(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// GlossaryEntry represents a row in the glossary table. An empty TargetLang
// applies the term to every target language.
type GlossaryEntry struct {
	ID         string    `json:"id" yaml:"id"`
	SourceTerm string    `json:"source_term" yaml:"source"`
	TargetTerm string    `json:"target_term" yaml:"target"`
	TargetLang string    `json:"target_lang,omitempty" yaml:"target_lang,omitempty"`
	CreatedAt  time.Time `json:"created_at" yaml:"-"`
}

// AddGlossaryTerm inserts a glossary entry or replaces the rendering of an
// existing (source term, target language) pair.
func (s *Store) AddGlossaryTerm(ctx context.Context, targetLang, sourceTerm, targetTerm string) error {
	src, tgt := normalizeTerm(sourceTerm), normalizeTerm(targetTerm)
	if src == "" || tgt == "" {
		return fmt.Errorf("glossary term and rendering must not be empty")
	}

	q := s.sq.Insert("glossary").
		Columns("id", "source_term", "target_term", "target_lang", "created_at").
		Values(uuid.NewString(), src, tgt, strings.TrimSpace(targetLang), s.stamp()).
		Suffix("ON CONFLICT(source_term, target_lang) DO UPDATE SET target_term=excluded.target_term")
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to add glossary term: %w", err)
	}
	return nil
}

// ListGlossaryTerms returns glossary entries ordered by source term. A
// non-empty targetLang keeps the entries for that language plus the
// language-independent ones.
func (s *Store) ListGlossaryTerms(ctx context.Context, targetLang string) ([]GlossaryEntry, error) {
	q := s.sq.Select("id", "source_term", "target_term", "target_lang", "created_at").
		From("glossary").
		OrderBy("source_term", "target_lang")
	if targetLang != "" {
		q = q.Where(sq.Eq{"target_lang": []string{"", targetLang}})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []GlossaryEntry
	for rows.Next() {
		var e GlossaryEntry
		var created string
		if err := rows.Scan(&e.ID, &e.SourceTerm, &e.TargetTerm, &e.TargetLang, &created); err != nil {
			return nil, err
		}
		e.CreatedAt = parseStamp(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GlossaryMap returns the source-term → rendering map for targetLang, ready
// to hand to glossary.New. Language-specific entries win over
// language-independent ones.
func (s *Store) GlossaryMap(ctx context.Context, targetLang string) (map[string]string, error) {
	entries, err := s.ListGlossaryTerms(ctx, targetLang)
	if err != nil {
		return nil, err
	}
	terms := make(map[string]string, len(entries))
	for _, e := range entries {
		if _, ok := terms[e.SourceTerm]; ok && e.TargetLang == "" {
			continue
		}
		terms[e.SourceTerm] = e.TargetTerm
	}
	return terms, nil
}

// DeleteGlossaryTerm removes a glossary entry by ID.
func (s *Store) DeleteGlossaryTerm(ctx context.Context, id string) error {
	query, args, err := s.sq.Delete("glossary").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("glossary entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// SetSelectedModel records the model chosen for provider.
func (s *Store) SetSelectedModel(ctx context.Context, provider, model string) error {
	q := s.sq.Insert("selected_models").
		Columns("provider", "model_name", "updated_at").
		Values(provider, model, s.stamp()).
		Suffix("ON CONFLICT(provider) DO UPDATE SET model_name=excluded.model_name, updated_at=excluded.updated_at")
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

// SelectedModel returns the model last recorded for provider.
func (s *Store) SelectedModel(ctx context.Context, provider string) (string, bool, error) {
	query, args, err := s.sq.Select("model_name").
		From("selected_models").
		Where(sq.Eq{"provider": provider}).
		ToSql()
	if err != nil {
		return "", false, err
	}
	var model string
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&model)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model, true, nil
}

// Run is one row of the run history.
type Run struct {
	ID             string        `json:"id"`
	Filename       string        `json:"filename"`
	OutputFilename string        `json:"output_filename,omitempty"`
	Provider       string        `json:"provider"`
	Model          string        `json:"model_name"`
	TargetLang     string        `json:"target_lang"`
	State          string        `json:"state"`
	Sections       int           `json:"sections"`
	Chunks         int           `json:"chunks"`
	Failed         int           `json:"failed"`
	Retries        int           `json:"retries"`
	Duration       time.Duration `json:"duration"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// SaveRun appends a run to the history. A missing ID is generated.
func (s *Store) SaveRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	created := s.stamp()
	if !r.CreatedAt.IsZero() {
		created = r.CreatedAt.UTC().Format(timeLayout)
	}

	q := s.sq.Insert("runs").
		Columns("id", "filename", "output_filename", "provider", "model_name", "target_lang", "state",
			"sections", "chunks", "failed", "retries", "duration_ms", "error", "created_at").
		Values(r.ID, r.Filename, r.OutputFilename, r.Provider, r.Model, r.TargetLang, r.State,
			r.Sections, r.Chunks, r.Failed, r.Retries, r.Duration.Milliseconds(), r.Error, created)
	query, args, err := q.ToSql()
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("failed to save run: %w", err)
	}
	return r.ID, nil
}

// ListRuns returns the most recent runs first. limit ≤ 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := s.sq.Select("id", "filename", "output_filename", "provider", "model_name", "target_lang", "state",
		"sections", "chunks", "failed", "retries", "duration_ms", "error", "created_at").
		From("runs").
		OrderBy("created_at DESC", "id")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var ms int64
		var created string
		if err := rows.Scan(&r.ID, &r.Filename, &r.OutputFilename, &r.Provider, &r.Model, &r.TargetLang, &r.State,
			&r.Sections, &r.Chunks, &r.Failed, &r.Retries, &ms, &r.Error, &created); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(ms) * time.Millisecond
		r.CreatedAt = parseStamp(created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stats summarises the database contents.
type Stats struct {
	GlossaryTerms  int `json:"glossary_terms"`
	Runs           int `json:"runs"`
	FailedChunks   int `json:"failed_chunks"`
	SelectedModels int `json:"selected_models"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM glossary),
			(SELECT COUNT(*) FROM runs),
			(SELECT COALESCE(SUM(failed), 0) FROM runs),
			(SELECT COUNT(*) FROM selected_models)`).
		Scan(&st.GlossaryTerms, &st.Runs, &st.FailedChunks, &st.SelectedModels)
	return st, err
}

// PruneRuns deletes runs older than before and returns how many were removed.
func (s *Store) PruneRuns(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := s.sq.Delete("runs").
		Where(sq.Lt{"created_at": before.UTC().Format(timeLayout)}).
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
