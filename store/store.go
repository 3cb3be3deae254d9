// Package store wraps the SQLite database holding the vector-indexed
// advisory records, the relational facts tables, and the query audit log.
// The store is read-only from the answer pipeline's perspective; only the
// ingest tooling writes to it.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// Metadata describes the upstream origin of one indexed record.
type Metadata struct {
	Source    string `json:"source"`
	RowID     string `json:"row_id"`
	District  string `json:"district,omitempty"`
	Village   string `json:"village,omitempty"`
	Commodity string `json:"commodity,omitempty"`
	Mandi     string `json:"mandi,omitempty"`
	Date      string `json:"date,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Record is one indexed advisory record.
type Record struct {
	ID      int64    `json:"id"`
	Content string   `json:"content"`
	Meta    Metadata `json:"metadata"`
}

// Candidate is a record returned by vector search, nearest first.
// Distance semantics: lower = more similar.
type Candidate struct {
	Record
	Distance float64 `json:"distance"`
}

// QueryLog is one row of the query audit log.
type QueryLog struct {
	Query        string
	Answer       string
	Confidence   float64
	Escalate     bool
	FallbackUsed bool
	GateReason   string
}

// Store wraps the SQLite database for all agrisage persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Record operations ---

// InsertRecord inserts one advisory record. Returns the record ID.
func (s *Store) InsertRecord(ctx context.Context, r Record) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records (content, source, row_id, district, village, commodity, mandi, record_date, record_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Content, r.Meta.Source, r.Meta.RowID, r.Meta.District, r.Meta.Village,
		r.Meta.Commodity, r.Meta.Mandi, r.Meta.Date, r.Meta.Type)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertEmbedding stores the vector embedding for a record.
func (s *Store) InsertEmbedding(ctx context.Context, recordID int64, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_records (record_id, embedding) VALUES (?, ?)",
		recordID, serializeFloat32(embedding))
	return err
}

// ClearRecords removes all indexed records and their embeddings. Used by
// the ingest tooling before a full re-index.
func (s *Store) ClearRecords(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM vec_records"); err != nil {
			return err
		}
		_, err := tx.Exec("DELETE FROM records")
		return err
	})
}

// CountRecords returns the number of indexed records.
func (s *Store) CountRecords(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records").Scan(&n)
	return n, err
}

// VectorSearch performs a KNN search returning the k nearest records,
// ordered by ascending distance.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]Candidate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.record_id, v.distance,
			r.content, r.source, r.row_id, r.district, r.village,
			r.commodity, r.mandi, r.record_date, r.record_type
		FROM vec_records v
		JOIN records r ON r.id = v.record_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Candidate
	for rows.Next() {
		var c Candidate
		var district, village, commodity, mandi, date, rtype sql.NullString
		if err := rows.Scan(&c.ID, &c.Distance,
			&c.Content, &c.Meta.Source, &c.Meta.RowID, &district, &village,
			&commodity, &mandi, &date, &rtype); err != nil {
			return nil, err
		}
		c.Meta.District = district.String
		c.Meta.Village = village.String
		c.Meta.Commodity = commodity.String
		c.Meta.Mandi = mandi.String
		c.Meta.Date = date.String
		c.Meta.Type = rtype.String
		results = append(results, c)
	}
	return results, rows.Err()
}

// --- Audit log ---

// LogQuery appends one row to the query audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (query, answer, confidence, escalate, fallback_used, gate_reason)
		VALUES (?, ?, ?, ?, ?, ?)
	`, q.Query, q.Answer, q.Confidence, boolToInt(q.Escalate), boolToInt(q.FallbackUsed), q.GateReason)
	return err
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 encodes a vector in the little-endian layout sqlite-vec
// expects.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
