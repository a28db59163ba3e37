package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// RecoveryPolicy decides what Open does when the persisted ledger is malformed.
type RecoveryPolicy int

const (
	// RecoverRefuse fails Open with a *StorageError. This is the default.
	RecoverRefuse RecoveryPolicy = iota
	// RecoverReinitialize quarantines the corrupt medium and starts a fresh
	// genesis chain. The corruption is surfaced through InitReport.
	RecoverReinitialize
)

// ParseRecoveryPolicy maps "refuse" and "reinit" to a RecoveryPolicy.
func ParseRecoveryPolicy(s string) (RecoveryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "refuse":
		return RecoverRefuse, nil
	case "reinit", "reinitialize":
		return RecoverReinitialize, nil
	}
	return RecoverRefuse, fmt.Errorf("unknown recovery policy %q (want refuse or reinit)", s)
}

// InitOutcome says how Open obtained the chain.
type InitOutcome string

const (
	OutcomeLoaded    InitOutcome = "loaded"
	OutcomeCreated   InitOutcome = "created"
	OutcomeRecovered InitOutcome = "recovered"
)

// InitReport describes what Open did. Warning and QuarantinedTo are set only
// for OutcomeRecovered.
type InitReport struct {
	Outcome       InitOutcome
	Records       int
	Warning       error
	QuarantinedTo string
}

// AppendInput carries the caller-supplied fields of a new record. Sequence
// number, timestamp and links are always assigned by the store.
type AppendInput struct {
	SubjectID     string
	ActorRole     Role
	ActorName     string
	Location      string
	Status        Status
	PaymentMethod string
	Attributes    Attributes
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to timestamp records.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithRecoveryPolicy sets the behaviour for a malformed persisted ledger.
func WithRecoveryPolicy(p RecoveryPolicy) Option {
	return func(s *Store) { s.policy = p }
}

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Store is the single-writer ledger. Appends and resets are serialised;
// readers work on the last committed snapshot and never wait on I/O.
type Store struct {
	backend Backend
	clock   func() time.Time
	policy  RecoveryPolicy
	logger  *zap.Logger

	writeMu sync.Mutex // serialises read-tail → persist → publish

	mu      sync.RWMutex // guards the records slice header only
	records []*Record

	report InitReport
}

// Open loads the ledger from backend, or creates and persists the genesis
// record when nothing has been persisted yet.
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		clock:   time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.initialize(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	records, err := s.backend.Load(ctx)
	if err == nil && len(records) == 0 {
		err = fmt.Errorf("%w: sequence has no genesis record", ErrMalformed)
	}

	switch {
	case err == nil:
		s.records = records
		s.report = InitReport{Outcome: OutcomeLoaded, Records: len(records)}
		return nil
	case errors.Is(err, ErrNoLedger):
		if err := s.seed(ctx); err != nil {
			return err
		}
		s.report = InitReport{Outcome: OutcomeCreated, Records: 1}
		return nil
	}

	loadErr := &StorageError{Op: "load", Err: err}
	if s.policy != RecoverReinitialize || !errors.Is(err, ErrMalformed) {
		return loadErr
	}
	q, ok := s.backend.(Quarantiner)
	if !ok {
		return fmt.Errorf("backend cannot quarantine, refusing to reinitialize: %w", loadErr)
	}

	dest, qerr := q.Quarantine(ctx)
	if qerr != nil {
		return &StorageError{Op: "quarantine", Err: qerr}
	}
	s.logger.Warn("persisted ledger is malformed; started a fresh chain",
		zap.Error(err),
		zap.String("quarantined_to", dest),
	)
	if err := s.seed(ctx); err != nil {
		return err
	}
	s.report = InitReport{Outcome: OutcomeRecovered, Records: 1, Warning: loadErr, QuarantinedTo: dest}
	return nil
}

func (s *Store) seed(ctx context.Context) error {
	g, err := newGenesis(s.now())
	if err != nil {
		return err
	}
	records := []*Record{g}
	if err := s.backend.Save(ctx, records); err != nil {
		return &StorageError{Op: "save", Err: err}
	}
	s.records = records
	return nil
}

// InitReport returns what Open did to obtain the chain.
func (s *Store) InitReport() InitReport {
	return s.report
}

func (s *Store) now() time.Time {
	return s.clock().UTC()
}

// snapshot returns the committed sequence. Records are immutable and the
// slice is never written below its length, so callers may read it freely.
func (s *Store) snapshot() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records
}

func (s *Store) publish(records []*Record) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// Append validates in, chains a new record to the current tip, persists the
// full sequence, and only then makes the record visible. On a persistence
// failure the in-memory sequence is unchanged and a *StorageError is returned.
func (s *Store) Append(ctx context.Context, in AppendInput) (*Record, error) {
	if strings.TrimSpace(in.SubjectID) == "" {
		return nil, &ValidationError{Field: "subject_id", Msg: "must not be empty"}
	}
	if !in.ActorRole.Valid() {
		return nil, &ValidationError{Field: "actor_role", Msg: fmt.Sprintf("unknown role %q", in.ActorRole)}
	}
	for _, f := range []struct{ name, value string }{
		{"subject_id", in.SubjectID},
		{"actor_name", in.ActorName},
		{"location", in.Location},
		{"status", string(in.Status)},
		{"payment_method", in.PaymentMethod},
	} {
		if !utf8.ValidString(f.value) {
			return nil, &ValidationError{Field: f.name, Msg: "must be valid UTF-8"}
		}
	}
	if bad := invalidUTF8(map[string]any(in.Attributes), "attributes"); bad != "" {
		return nil, &ValidationError{Field: bad, Msg: "must be valid UTF-8"}
	}
	// The stored copy has the same shape a reload produces and shares no
	// nested values with the caller.
	attrs, err := in.Attributes.normalize()
	if err != nil {
		return nil, &ValidationError{Field: "attributes", Msg: err.Error()}
	}
	payment := in.PaymentMethod
	if strings.TrimSpace(payment) == "" {
		payment = PaymentNotApplicable
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	curr := s.snapshot()
	prev := curr[len(curr)-1]

	rec := &Record{
		SequenceNumber: prev.SequenceNumber + 1,
		CreatedAt:      s.now(),
		SubjectID:      in.SubjectID,
		ActorRole:      in.ActorRole,
		ActorName:      in.ActorName,
		Location:       in.Location,
		Status:         in.Status,
		PaymentMethod:  payment,
		Attributes:     attrs,
		PreviousLink:   prev.Link,
	}
	link, err := Digest(rec)
	if err != nil {
		return nil, &ValidationError{Field: "attributes", Msg: err.Error()}
	}
	rec.Link = link

	// Writes land at index len(curr), beyond every published snapshot.
	next := append(curr, rec)
	if err := s.backend.Save(ctx, next); err != nil {
		return nil, &StorageError{Op: "save", Err: err}
	}
	s.publish(next)

	s.logger.Debug("ledger record appended",
		zap.Uint64("sequence_number", rec.SequenceNumber),
		zap.String("subject_id", rec.SubjectID),
		zap.String("actor_role", string(rec.ActorRole)),
		zap.String("status", string(rec.Status)),
	)
	return rec.clone(), nil
}

// Reset discards every record after genesis and returns how many were
// dropped. The genesis record is kept as is.
func (s *Store) Reset(ctx context.Context) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	curr := s.snapshot()
	next := []*Record{curr[0]}
	if err := s.backend.Save(ctx, next); err != nil {
		return 0, &StorageError{Op: "save", Err: err}
	}
	s.publish(next)

	dropped := len(curr) - 1
	s.logger.Warn("ledger reset to genesis", zap.Int("dropped", dropped))
	return dropped, nil
}

// Verify checks every record against the chain invariants. It runs on a
// snapshot and never blocks writers.
func (s *Store) Verify() Report {
	return VerifyRecords(s.snapshot())
}

// Journey returns every record for subjectID in append order. An unknown or
// empty subject yields an empty slice.
func (s *Store) Journey(subjectID string) []*Record {
	out := []*Record{}
	if strings.TrimSpace(subjectID) == "" {
		return out
	}
	for _, r := range s.snapshot() {
		if r.SubjectID == subjectID {
			out = append(out, r.clone())
		}
	}
	return out
}

// Records returns a copy of the full committed sequence, genesis included.
func (s *Store) Records() []*Record {
	snap := s.snapshot()
	out := make([]*Record, len(snap))
	for i, r := range snap {
		out[i] = r.clone()
	}
	return out
}

// Get returns the record with the given sequence number.
func (s *Store) Get(seq uint64) (*Record, error) {
	snap := s.snapshot()
	if seq >= uint64(len(snap)) {
		return nil, fmt.Errorf("sequence %d: %w", seq, ErrNotFound)
	}
	return snap[seq].clone(), nil
}

// Len returns the number of records including genesis.
func (s *Store) Len() int {
	return len(s.snapshot())
}

// Head returns the link of the most recent record.
func (s *Store) Head() string {
	snap := s.snapshot()
	return snap[len(snap)-1].Link
}

// Export writes the committed sequence verbatim in the persisted format.
func (s *Store) Export(w io.Writer) error {
	return EncodeRecords(w, s.snapshot())
}

// Close releases the backend. The store must not be used afterwards.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}

func (r *Record) clone() *Record {
	cp := *r
	if r.Attributes != nil {
		cp.Attributes = r.Attributes.Clone()
	}
	return &cp
}

// EncodeRecords writes records as an indented JSON array.
func EncodeRecords(w io.Writer, records []*Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	return nil
}

// DecodeRecords parses a persisted JSON array. Numbers inside attributes are
// kept as json.Number so they round-trip exactly; a missing attributes object
// decodes as empty. Stored links are kept untouched.
func DecodeRecords(r io.Reader) ([]*Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []*Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after the record array", ErrMalformed)
	}
	for i, rec := range records {
		if rec == nil {
			return nil, fmt.Errorf("%w: record at position %d is null", ErrMalformed, i)
		}
		if rec.Attributes == nil {
			rec.Attributes = Attributes{}
		}
	}
	return records, nil
}
