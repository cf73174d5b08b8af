package persist

import (
	"context"
	"database/sql"
	"encoding/base64"
	"time"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS persisted_payloads (
	topic     TEXT PRIMARY KEY,
	data      BLOB NOT NULL,
	origin    TEXT NOT NULL,
	stored_at INTEGER NOT NULL
)`

// SQLStore keeps records in a SQLite-dialect database: a local sqlite file
// or an rqlite cluster.
type SQLStore struct {
	db *sql.DB
	// textData stores payloads base64 encoded, for drivers that do not
	// round-trip BLOBs.
	textData bool
}

func newSQLStore(db *sql.DB, textData bool) (*SQLStore, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &SQLStore{db: db, textData: textData}, nil
}

// Save upserts the record for rec.Topic. A record older than the stored one
// is ignored, so saves finishing out of order keep the latest payload.
func (s *SQLStore) Save(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO persisted_payloads (topic, data, origin, stored_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET
			data = excluded.data,
			origin = excluded.origin,
			stored_at = excluded.stored_at
		WHERE excluded.stored_at >= persisted_payloads.stored_at`

	if rec.StoredAt.IsZero() {
		rec.StoredAt = time.Now()
	}
	var data any = rec.Data
	if s.textData {
		data = base64.StdEncoding.EncodeToString(rec.Data)
	} else if rec.Data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, query, rec.Topic, data, rec.Origin, rec.StoredAt.UnixMilli()); err != nil {
		return errors.Wrapf(err, "failed to save payload for %s", rec.Topic)
	}
	return nil
}

// Load returns the record for topic, if any.
func (s *SQLStore) Load(ctx context.Context, topic string) (Record, bool, error) {
	const query = `SELECT data, origin, stored_at FROM persisted_payloads WHERE topic = ?`

	rec := Record{Topic: topic}
	var storedAt int64
	err := s.db.QueryRowContext(ctx, query, topic).Scan(&rec.Data, &rec.Origin, &storedAt)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "failed to load payload for %s", topic)
	}
	if s.textData {
		decoded, err := base64.StdEncoding.DecodeString(string(rec.Data))
		if err != nil {
			return Record{}, false, errors.Wrapf(err, "corrupt payload for %s", topic)
		}
		rec.Data = decoded
	}
	rec.StoredAt = time.UnixMilli(storedAt)
	return rec, true, nil
}

// Count returns the number of stored records.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM persisted_payloads`).Scan(&n)
	return n, err
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
