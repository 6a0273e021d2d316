package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/spoofguard/internal/perf"
)

// Store manages the PostgreSQL connection holding experiment results.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the experiments table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS experiments (
			id BIGSERIAL PRIMARY KEY,
			method TEXT NOT NULL,
			protocol TEXT NOT NULL,
			protocol_digest TEXT NOT NULL DEFAULT '',
			output_dir TEXT NOT NULL DEFAULT '',
			threshold DOUBLE PRECISION NOT NULL,
			dev_far DOUBLE PRECISION NOT NULL,
			dev_frr DOUBLE PRECISION NOT NULL,
			dev_hter DOUBLE PRECISION NOT NULL,
			dev_false_accepts INT NOT NULL,
			dev_attacks INT NOT NULL,
			dev_false_rejects INT NOT NULL,
			dev_genuine INT NOT NULL,
			test_far DOUBLE PRECISION NOT NULL,
			test_frr DOUBLE PRECISION NOT NULL,
			test_hter DOUBLE PRECISION NOT NULL,
			test_false_accepts INT NOT NULL,
			test_attacks INT NOT NULL,
			test_false_rejects INT NOT NULL,
			test_genuine INT NOT NULL,
			sign_flipped BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS experiments_method_idx ON experiments (method);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	if s.conn != nil {
		s.conn.Close(ctx)
	}
}

// Run is one stored evaluation.
type Run struct {
	ID             int64
	Method         string // chi2, lda, svm
	Protocol       string
	ProtocolDigest string
	OutputDir      string
	Threshold      float64
	Devel          perf.Rates
	Test           perf.Rates
	SignFlipped    bool
	CreatedAt      time.Time
}

// NewRun copies the numbers of a report into a Run.
func NewRun(method, protocol string, r *perf.Report) Run {
	return Run{
		Method:    method,
		Protocol:  protocol,
		Threshold: r.Threshold,
		Devel:     r.Devel,
		Test:      r.Test,
	}
}

// SaveRun inserts a run and returns its ID.
func (s *Store) SaveRun(ctx context.Context, r Run) (int64, error) {
	var id int64
	err := s.conn.QueryRow(ctx, `
		INSERT INTO experiments (
			method, protocol, protocol_digest, output_dir, threshold,
			dev_far, dev_frr, dev_hter, dev_false_accepts, dev_attacks, dev_false_rejects, dev_genuine,
			test_far, test_frr, test_hter, test_false_accepts, test_attacks, test_false_rejects, test_genuine,
			sign_flipped
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING id
	`,
		r.Method, r.Protocol, r.ProtocolDigest, r.OutputDir, r.Threshold,
		r.Devel.FAR, r.Devel.FRR, r.Devel.HTER(), r.Devel.FalseAccepts, r.Devel.Attacks, r.Devel.FalseRejects, r.Devel.Genuine,
		r.Test.FAR, r.Test.FRR, r.Test.HTER(), r.Test.FalseAccepts, r.Test.Attacks, r.Test.FalseRejects, r.Test.Genuine,
		r.SignFlipped,
	).Scan(&id)
	return id, err
}

// ListRuns returns stored runs, newest first. An empty method lists every method.
func (s *Store) ListRuns(ctx context.Context, method string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.conn.Query(ctx, `
		SELECT id, method, protocol, protocol_digest, output_dir, threshold,
			dev_far, dev_frr, dev_false_accepts, dev_attacks, dev_false_rejects, dev_genuine,
			test_far, test_frr, test_false_accepts, test_attacks, test_false_rejects, test_genuine,
			sign_flipped, created_at
		FROM experiments
		WHERE $1 = '' OR method = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, method, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.ID, &r.Method, &r.Protocol, &r.ProtocolDigest, &r.OutputDir, &r.Threshold,
			&r.Devel.FAR, &r.Devel.FRR, &r.Devel.FalseAccepts, &r.Devel.Attacks, &r.Devel.FalseRejects, &r.Devel.Genuine,
			&r.Test.FAR, &r.Test.FRR, &r.Test.FalseAccepts, &r.Test.Attacks, &r.Test.FalseRejects, &r.Test.Genuine,
			&r.SignFlipped, &r.CreatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes one run. It reports whether the run existed.
func (s *Store) DeleteRun(ctx context.Context, id int64) (bool, error) {
	tag, err := s.conn.Exec(ctx, "DELETE FROM experiments WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Reset drops all application tables to clear the database state.
// This is useful for development to force a schema refresh without migrations.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS experiments CASCADE;`)
	return err
}
