// Package ledger implements the append-only, hash-linked supply chain ledger.
//
// The chain begins with a genesis record whose previous link is GenesisPrevLink
// (64 hex zeros). Every record's link is the SHA-256 of its RFC 8785 canonical
// form, which includes the previous record's link, so any edit to a persisted
// record is reported by Verify.
//
// Store owns the in-memory sequence and serialises writers; persistence is
// delegated to a Backend:
//   - FileBackend: a single JSON file, rewritten atomically on every append.
//   - MemoryBackend: in-process, for tests and throwaway runs.
//   - sqlstore.Backend: SQLite or PostgreSQL.
package ledger

import "context"

// Backend is the durable load/save contract used by Store.
type Backend interface {
	// Load returns the persisted sequence exactly as stored, keeping each
	// record's stored link. It returns ErrNoLedger when nothing is persisted
	// and an error wrapping ErrMalformed when the medium cannot be decoded.
	Load(ctx context.Context) ([]*Record, error)

	// Save atomically persists the full sequence. Either every record is
	// durable on return or the previously persisted state is unchanged.
	Save(ctx context.Context, records []*Record) error

	// Close flushes and releases the medium.
	Close() error
}

// Quarantiner is implemented by backends that can move a corrupt medium
// aside so a fresh chain can be started without destroying history.
type Quarantiner interface {
	// Quarantine moves the current medium away and returns where it went.
	Quarantine(ctx context.Context) (string, error)
}
