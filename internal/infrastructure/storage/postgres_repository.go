package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"TopicNewsletter/internal/domain"
	"TopicNewsletter/internal/ports"
)

// PostgresRepository persists newsletter runs and the articles they published.
type PostgresRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ ports.ArticleRepository = (*PostgresRepository)(nil)
var _ ports.StateStore = (*PostgresRepository)(nil)

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// AlreadyPublished returns the subset of urls that appeared in an earlier newsletter.
func (r *PostgresRepository) AlreadyPublished(ctx context.Context, urls []string) (map[string]bool, error) {
	if r.db == nil || len(urls) == 0 {
		return map[string]bool{}, nil
	}

	query, args, err := r.sb.Select("url").
		From("published_articles").
		Where("url = ANY(?)", pq.StringArray(urls)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build published query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query published: %w", err)
	}

	result := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan url: %w", err)
		}
		result[url] = true
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// SaveRun upserts the run row. Completed runs also record every retained
// article of a summarised topic as published.
func (r *PostgresRepository) SaveRun(ctx context.Context, state *domain.WorkflowState) error {
	if r.db == nil || state == nil {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := r.upsertRun(ctx, tx, state); err != nil {
		_ = tx.Rollback()
		return err
	}

	if state.Status == domain.StatusCompleted {
		if err := r.insertPublished(ctx, tx, state); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *PostgresRepository) upsertRun(ctx context.Context, db execer, state *domain.WorkflowState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	query, args, err := r.sb.Insert("newsletter_runs").
		Columns("run_id", "main_topic", "status", "started_at", "finished_at", "error_count", "state").
		Values(state.RunID, state.MainTopic, string(state.Status),
			nullTime(state.StartedAt), nullTime(state.FinishedAt), len(state.Errors), payload).
		Suffix(`ON CONFLICT (run_id) DO UPDATE
              SET status = EXCLUDED.status,
                  started_at = EXCLUDED.started_at,
                  finished_at = EXCLUDED.finished_at,
                  error_count = EXCLUDED.error_count,
                  state = EXCLUDED.state,
                  updated_at = NOW()`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build run upsert: %w", err)
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

func (r *PostgresRepository) insertPublished(ctx context.Context, db execer, state *domain.WorkflowState) error {
	summarised := make(map[string]bool, len(state.TopicSummaries))
	for _, s := range state.TopicSummaries {
		summarised[s.TopicName] = true
	}

	insert := r.sb.Insert("published_articles").
		Columns("url", "run_id", "topic_name", "title", "source", "relevance_score", "published_at")
	rows := 0
	for _, topic := range state.SubTopics {
		if !summarised[topic.Name] {
			continue
		}
		for _, a := range state.TopicResults[topic.Name].Articles {
			insert = insert.Values(a.URL, state.RunID, topic.Name, a.Title, a.Source, a.RelevanceScore, nullTime(a.PublishedAt))
			rows++
		}
	}
	if rows == 0 {
		return nil
	}

	query, args, err := insert.Suffix("ON CONFLICT (url) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build published insert: %w", err)
	}
	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert published: %w", err)
	}
	return nil
}

// Put stores a run snapshot without touching the published set.
func (r *PostgresRepository) Put(ctx context.Context, state *domain.WorkflowState) error {
	if r.db == nil || state == nil {
		return nil
	}
	return r.upsertRun(ctx, r.db, state)
}

// Get loads the latest snapshot of a run.
func (r *PostgresRepository) Get(ctx context.Context, runID string) (*domain.WorkflowState, error) {
	if r.db == nil {
		return nil, domain.ErrRunNotFound
	}

	query, args, err := r.sb.Select("state").
		From("newsletter_runs").
		Where(sq.Eq{"run_id": runID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build run query: %w", err)
	}

	var payload []byte
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("query run: %w", err)
	}

	var state domain.WorkflowState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &state, nil
}

// Recent lists run IDs, newest first.
func (r *PostgresRepository) Recent(ctx context.Context, limit int) ([]string, error) {
	if r.db == nil {
		return []string{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	query, args, err := r.sb.Select("run_id").
		From("newsletter_runs").
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, limit)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan run id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return ids, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
