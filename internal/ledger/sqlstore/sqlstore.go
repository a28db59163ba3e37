// Package sqlstore persists the ledger in a relational table, one row per
// record. SQLite (modernc.org/sqlite) and PostgreSQL (pgx) are supported
// through database/sql.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// TableName is the table holding the live chain.
const TableName = "supply_ledger"

// advisoryLockKey serialises Save across PostgreSQL sessions. The value is
// arbitrary but must be shared by every process writing the same database.
const advisoryLockKey = int64(1_734_220_981)

// Dialect selects placeholder syntax and locking.
type Dialect int

const (
	SQLite Dialect = iota
	Postgres
)

// ParseDialect maps a storage driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	}
	return SQLite, fmt.Errorf("unsupported sql driver %q", driver)
}

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite"
}

func (d Dialect) String() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite"
}

// ErrConcurrentWrite is returned by Save when the table no longer holds what
// this Backend last loaded or saved, i.e. another process wrote to it.
var ErrConcurrentWrite = errors.New("ledger table changed by another writer")

// Backend implements ledger.Backend and ledger.Quarantiner over a *sql.DB.
type Backend struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
	clock   func() time.Time

	mu sync.Mutex
	// persisted is the row count after the last Load or Save, -1 until then.
	persisted int
}

// Open connects to dsn with the driver for dialect and prepares the schema.
func Open(ctx context.Context, dialect Dialect, dsn string, logger *zap.Logger) (*Backend, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlstore: empty dsn")
	}
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		// One connection avoids SQLITE_BUSY between the pool's own connections.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	b, err := New(ctx, db, dialect, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// New wraps an existing connection pool and creates the table if needed.
// The Backend takes ownership of db and closes it in Close.
func New(ctx context.Context, db *sql.DB, dialect Dialect, logger *zap.Logger) (*Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backend{db: db, dialect: dialect, logger: logger, clock: time.Now, persisted: -1}
	if err := b.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+TableName+` (
		seq            BIGINT PRIMARY KEY,
		created_at     TEXT NOT NULL,
		subject_id     TEXT NOT NULL,
		actor_role     TEXT NOT NULL,
		actor_name     TEXT NOT NULL,
		location       TEXT NOT NULL,
		status         TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		attributes     TEXT NOT NULL,
		previous_link  TEXT NOT NULL,
		link           TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create %s: %w", TableName, err)
	}
	return nil
}

func (b *Backend) placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		if b.dialect == Postgres {
			parts[i] = "$" + strconv.Itoa(i+1)
		} else {
			parts[i] = "?"
		}
	}
	return strings.Join(parts, ", ")
}

// Load implements ledger.Backend. An empty table means nothing has been
// persisted yet. Rows whose timestamp or attributes cannot be decoded make
// the whole ledger malformed.
func (b *Backend) Load(ctx context.Context) ([]*ledger.Record, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT seq, created_at, subject_id, actor_role, actor_name, location,
		        status, payment_method, attributes, previous_link, link
		 FROM `+TableName+` ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", TableName, err)
	}
	defer rows.Close()

	var records []*ledger.Record
	for rows.Next() {
		var (
			seq       int64
			createdAt string
			attrs     string
			role      string
			status    string
			rec       ledger.Record
		)
		if err := rows.Scan(&seq, &createdAt, &rec.SubjectID, &role, &rec.ActorName,
			&rec.Location, &status, &rec.PaymentMethod, &attrs, &rec.PreviousLink, &rec.Link,
		); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", TableName, err)
		}
		if seq < 0 {
			return nil, fmt.Errorf("%w: negative sequence %d", ledger.ErrMalformed, seq)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d created_at: %v", ledger.ErrMalformed, seq, err)
		}
		decoded, err := decodeAttributes(attrs)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d attributes: %v", ledger.ErrMalformed, seq, err)
		}
		rec.SequenceNumber = uint64(seq)
		rec.CreatedAt = ts
		rec.ActorRole = ledger.Role(role)
		rec.Status = ledger.Status(status)
		rec.Attributes = decoded
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", TableName, err)
	}
	b.mu.Lock()
	b.persisted = len(records)
	b.mu.Unlock()
	if len(records) == 0 {
		return nil, ledger.ErrNoLedger
	}
	return records, nil
}

func decodeAttributes(s string) (ledger.Attributes, error) {
	if strings.TrimSpace(s) == "" {
		return ledger.Attributes{}, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var attrs ledger.Attributes
	if err := dec.Decode(&attrs); err != nil {
		return nil, err
	}
	if attrs == nil {
		attrs = ledger.Attributes{}
	}
	return attrs, nil
}

func encodeAttributes(a ledger.Attributes) (string, error) {
	if a == nil {
		return "{}", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(data)), nil
}

// Save implements ledger.Backend. It inserts the missing tail of records and
// deletes any rows beyond len(records), all in one transaction. The stored
// rows must be a prefix of records: the row count must match what this
// Backend last saw and the stored tip must carry the same link as records at
// that position. Otherwise nothing is written and ErrConcurrentWrite is
// returned.
func (b *Backend) Save(ctx context.Context, records []*ledger.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if b.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock($1)", advisoryLockKey); err != nil {
			return fmt.Errorf("acquire advisory lock: %w", err)
		}
	}

	var stored int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+TableName).Scan(&stored); err != nil {
		return fmt.Errorf("count %s: %w", TableName, err)
	}
	if b.persisted >= 0 && stored != b.persisted {
		return fmt.Errorf("%w: %d rows stored, %d expected", ErrConcurrentWrite, stored, b.persisted)
	}
	if shared := min(stored, len(records)); shared > 0 {
		var link string
		err := tx.QueryRowContext(ctx,
			"SELECT link FROM "+TableName+" WHERE seq = "+b.placeholders(1), int64(shared-1),
		).Scan(&link)
		if err != nil {
			return fmt.Errorf("read stored link %d: %w", shared-1, err)
		}
		if link != records[shared-1].Link {
			return fmt.Errorf("%w: stored link at %d differs", ErrConcurrentWrite, shared-1)
		}
	}

	if stored > len(records) {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+TableName+" WHERE seq >= "+b.placeholders(1), int64(len(records)),
		); err != nil {
			return fmt.Errorf("truncate %s: %w", TableName, err)
		}
	}

	if stored < len(records) {
		insert := `INSERT INTO ` + TableName + ` (seq, created_at, subject_id, actor_role, actor_name,
			location, status, payment_method, attributes, previous_link, link)
			VALUES (` + b.placeholders(11) + `)`
		for _, rec := range records[stored:] {
			attrs, err := encodeAttributes(rec.Attributes)
			if err != nil {
				return fmt.Errorf("encode attributes of record %d: %w", rec.SequenceNumber, err)
			}
			if _, err := tx.ExecContext(ctx, insert,
				int64(rec.SequenceNumber), rec.CreatedAt.Format(time.RFC3339Nano),
				rec.SubjectID, string(rec.ActorRole), rec.ActorName, rec.Location,
				string(rec.Status), rec.PaymentMethod, attrs, rec.PreviousLink, rec.Link,
			); err != nil {
				return fmt.Errorf("insert record %d: %w", rec.SequenceNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	b.persisted = len(records)
	return nil
}

// Quarantine implements ledger.Quarantiner. The live table is renamed to
// supply_ledger_corrupt_<unix-nanos> and an empty one takes its place.
func (b *Backend) Quarantine(ctx context.Context) (string, error) {
	dest := TableName + "_corrupt_" + strconv.FormatInt(b.clock().UnixNano(), 10)
	if _, err := b.db.ExecContext(ctx, "ALTER TABLE "+TableName+" RENAME TO "+dest); err != nil {
		return "", fmt.Errorf("rename %s: %w", TableName, err)
	}
	if err := b.ensureSchema(ctx); err != nil {
		return "", err
	}
	b.mu.Lock()
	b.persisted = 0
	b.mu.Unlock()
	b.logger.Warn("ledger table quarantined", zap.String("table", dest))
	return dest, nil
}

// Close implements ledger.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}

var (
	_ ledger.Backend     = (*Backend)(nil)
	_ ledger.Quarantiner = (*Backend)(nil)
)
