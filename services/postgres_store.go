package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements ProofStore with PostgreSQL persistence.
type PostgresStore struct {
	db *sql.DB
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

// ConnectionString returns the PostgreSQL connection string.
func (c *PostgresConfig) ConnectionString() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(config *PostgresConfig) (*PostgresStore, error) {
	return NewPostgresStoreFromDSN(config.ConnectionString())
}

// NewPostgresStoreFromDSN connects with a lib/pq connection string and
// creates the schema if needed.
func NewPostgresStoreFromDSN(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS proofs (
		id BIGSERIAL PRIMARY KEY,
		session VARCHAR(256) NOT NULL,
		parties INTEGER NOT NULL,
		x_size INTEGER NOT NULL,
		commitments BYTEA NOT NULL,
		points BYTEA NOT NULL,
		y BYTEA NOT NULL,
		evals BYTEA NOT NULL,
		proof BYTEA NOT NULL,
		verified BOOLEAN NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_proofs_session ON proofs(session);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// SaveProof inserts rec.
func (s *PostgresStore) SaveProof(ctx context.Context, rec *ProofRecord) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO proofs
		(session, parties, x_size, commitments, points, y, evals, proof, verified, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.Session,
		rec.Parties,
		rec.XSize,
		rec.Commitments,
		rec.Points,
		rec.Y,
		rec.Evals,
		rec.Proof,
		rec.Verified,
		rec.CreatedAt,
	)
	return err
}

// LatestProof returns the most recently inserted record.
func (s *PostgresStore) LatestProof(ctx context.Context) (*ProofRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT session, parties, x_size, commitments, points, y, evals, proof, verified, created_at
		FROM proofs
		ORDER BY id DESC
		LIMIT 1
	`)

	var rec ProofRecord
	err := row.Scan(&rec.Session, &rec.Parties, &rec.XSize, &rec.Commitments, &rec.Points,
		&rec.Y, &rec.Evals, &rec.Proof, &rec.Verified, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProof
	}
	if err != nil {
		return nil, fmt.Errorf("scanning row: %w", err)
	}
	return &rec, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
