package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/touch-guard/internal/knn"
)

// SessionSummary describes the stored examples of one session.
type SessionSummary struct {
	Name   string
	Counts map[knn.Label]int
	Dim    int
}

// ExampleRepository persists labeled embeddings per session.
type ExampleRepository struct {
	pool *Pool
}

// NewExampleRepository creates a repository on pool.
func NewExampleRepository(pool *Pool) *ExampleRepository {
	return &ExampleRepository{pool: pool}
}

// SaveExamples appends examples in a single transaction, keeping their order.
func (r *ExampleRepository) SaveExamples(ctx context.Context, session string, examples []knn.Example) error {
	if len(examples) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO examples (session, label, embedding, dim)
		VALUES ($1, $2, $3::vector, $4)
	`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, ex := range examples {
		vec := pgvector.NewVector(ex.Embedding)
		if _, err := stmt.ExecContext(ctx, session, string(ex.Label), vec, len(ex.Embedding)); err != nil {
			return fmt.Errorf("insert example %d (%s): %w", i, ex.Label, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// LoadExamples returns the session's examples in insertion order.
func (r *ExampleRepository) LoadExamples(ctx context.Context, session string) ([]knn.Example, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT label, embedding
		FROM examples
		WHERE session = $1
		ORDER BY id
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query examples: %w", err)
	}
	defer rows.Close()

	var examples []knn.Example
	for rows.Next() {
		var label string
		var vec pgvector.Vector
		if err := rows.Scan(&label, &vec); err != nil {
			return nil, fmt.Errorf("scan example: %w", err)
		}
		examples = append(examples, knn.Example{Label: knn.Label(label), Embedding: vec.Slice()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate examples: %w", err)
	}
	return examples, nil
}

// DeleteExamples removes the label's examples, or the whole session when label is empty.
func (r *ExampleRepository) DeleteExamples(ctx context.Context, session string, label knn.Label) (int64, error) {
	var res sql.Result
	var err error
	if label == "" {
		res, err = r.pool.Exec(ctx, `DELETE FROM examples WHERE session = $1`, session)
	} else {
		res, err = r.pool.Exec(ctx, `DELETE FROM examples WHERE session = $1 AND label = $2`, session, string(label))
	}
	if err != nil {
		return 0, fmt.Errorf("delete examples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// Sessions summarizes every session that has stored examples, ordered by name.
func (r *ExampleRepository) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session, label, COUNT(*), MAX(dim)
		FROM examples
		GROUP BY session, label
		ORDER BY session, MIN(id)
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var session, label string
		var count, dim int
		if err := rows.Scan(&session, &label, &count, &dim); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if len(summaries) == 0 || summaries[len(summaries)-1].Name != session {
			summaries = append(summaries, SessionSummary{Name: session, Counts: make(map[knn.Label]int)})
		}
		s := &summaries[len(summaries)-1]
		s.Counts[knn.Label(label)] = count
		s.Dim = max(s.Dim, dim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return summaries, nil
}
