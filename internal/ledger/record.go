package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gowebpki/jcs"
)

// GenesisPrevLink is the well-known previous link of the genesis record.
// It anchors the chain; every other previous link is a computed digest.
const GenesisPrevLink = "0000000000000000000000000000000000000000000000000000000000000000"

// GenesisSubject is the reserved subject of the genesis record. Callers can
// never append under it.
const GenesisSubject = ""

// PaymentNotApplicable is stored when a record carries no payment.
const PaymentNotApplicable = "N/A"

// Role identifies the kind of party that made an entry.
type Role string

const (
	RoleProducer      Role = "Producer"
	RoleIntermediary1 Role = "Intermediary-Tier-1"
	RoleIntermediary2 Role = "Intermediary-Tier-2"
	RoleIntermediary3 Role = "Intermediary-Tier-3"
	RoleConsumer      Role = "Consumer"
	RoleNetwork       Role = "Network" // genesis only
)

// Roles lists every role a caller may append as, in supply chain order.
var Roles = []Role{RoleProducer, RoleIntermediary1, RoleIntermediary2, RoleIntermediary3, RoleConsumer}

// Valid reports whether r is a caller-usable role. Network is excluded.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// IsIntermediary reports whether r is one of the intermediary tiers.
func (r Role) IsIntermediary() bool {
	return r == RoleIntermediary1 || r == RoleIntermediary2 || r == RoleIntermediary3
}

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, r := range Roles {
		if strings.EqualFold(s, string(r)) {
			return r, nil
		}
	}
	return "", &ValidationError{Field: "actor_role", Msg: fmt.Sprintf("unknown role %q", s)}
}

// Status is a step in a product's journey.
type Status string

const (
	StatusGenesis             Status = "Genesis"
	StatusCreated             Status = "Created"
	StatusPickedUp            Status = "Picked-Up"
	StatusInTransit           Status = "In-Transit"
	StatusReceivedAtHub       Status = "Received-At-Hub"
	StatusDeliveredToRetailer Status = "Delivered-To-Retailer"
	StatusPending             Status = "Pending"
	StatusDelivered           Status = "Delivered"
	StatusReturned            Status = "Returned"
	StatusCancelled           Status = "Cancelled"
)

var (
	producerStatuses     = []Status{StatusCreated, StatusCancelled}
	intermediaryStatuses = []Status{StatusPickedUp, StatusInTransit, StatusReceivedAtHub, StatusDeliveredToRetailer, StatusReturned, StatusCancelled}
	consumerStatuses     = []Status{StatusDelivered, StatusReturned, StatusPending}
)

// StatusesFor returns the statuses a role may record. The result must not be modified.
func StatusesFor(r Role) []Status {
	switch {
	case r == RoleProducer:
		return producerStatuses
	case r.IsIntermediary():
		return intermediaryStatuses
	case r == RoleConsumer:
		return consumerStatuses
	default:
		return nil
	}
}

// AllowedFor reports whether role r may record status s.
func (s Status) AllowedFor(r Role) bool {
	for _, st := range StatusesFor(r) {
		if st == s {
			return true
		}
	}
	return false
}

// ParseStatus matches s case-insensitively against the status vocabulary.
// Spaces are accepted in place of hyphens ("In Transit").
func ParseStatus(s string) (Status, error) {
	norm := strings.ReplaceAll(strings.TrimSpace(s), " ", "-")
	all := []Status{
		StatusCreated, StatusPickedUp, StatusInTransit, StatusReceivedAtHub,
		StatusDeliveredToRetailer, StatusPending, StatusDelivered, StatusReturned, StatusCancelled,
	}
	for _, st := range all {
		if strings.EqualFold(norm, string(st)) {
			return st, nil
		}
	}
	return "", &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", s)}
}

// Record is a single immutable entry in the ledger.
type Record struct {
	SequenceNumber uint64     `json:"sequence_number"`
	CreatedAt      time.Time  `json:"created_at"`
	SubjectID      string     `json:"subject_id"`
	ActorRole      Role       `json:"actor_role"`
	ActorName      string     `json:"actor_name"`
	Location       string     `json:"location"`
	Status         Status     `json:"status"`
	PaymentMethod  string     `json:"payment_method"`
	Attributes     Attributes `json:"attributes"`
	PreviousLink   string     `json:"previous_link"`
	Link           string     `json:"link"`
}

// IsGenesis reports whether r occupies the genesis position.
func (r *Record) IsGenesis() bool {
	return r.SequenceNumber == 0
}

// digestInput is every Record field except Link.
type digestInput struct {
	SequenceNumber uint64     `json:"sequence_number"`
	CreatedAt      time.Time  `json:"created_at"`
	SubjectID      string     `json:"subject_id"`
	ActorRole      Role       `json:"actor_role"`
	ActorName      string     `json:"actor_name"`
	Location       string     `json:"location"`
	Status         Status     `json:"status"`
	PaymentMethod  string     `json:"payment_method"`
	Attributes     Attributes `json:"attributes"`
	PreviousLink   string     `json:"previous_link"`
}

// CanonicalBytes returns the RFC 8785 canonical JSON of r without its link.
// Key order, whitespace and number formatting of any earlier serialisation
// have no effect on the result.
func (r *Record) CanonicalBytes() ([]byte, error) {
	attrs := r.Attributes
	if attrs == nil {
		attrs = Attributes{}
	}
	raw, err := json.Marshal(digestInput{
		SequenceNumber: r.SequenceNumber,
		CreatedAt:      r.CreatedAt,
		SubjectID:      r.SubjectID,
		ActorRole:      r.ActorRole,
		ActorName:      r.ActorName,
		Location:       r.Location,
		Status:         r.Status,
		PaymentMethod:  r.PaymentMethod,
		Attributes:     attrs,
		PreviousLink:   r.PreviousLink,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal record %d: %w", r.SequenceNumber, err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize record %d: %w", r.SequenceNumber, err)
	}
	return canon, nil
}

// Digest computes the SHA-256 link of r over its canonical bytes.
func Digest(r *Record) (string, error) {
	canon, err := r.CanonicalBytes()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// newGenesis builds the sealed genesis record.
func newGenesis(now time.Time) (*Record, error) {
	g := &Record{
		SequenceNumber: 0,
		CreatedAt:      now,
		SubjectID:      GenesisSubject,
		ActorRole:      RoleNetwork,
		ActorName:      "Genesis",
		Location:       PaymentNotApplicable,
		Status:         StatusGenesis,
		PaymentMethod:  PaymentNotApplicable,
		Attributes:     Attributes{"note": "Initial block"},
		PreviousLink:   GenesisPrevLink,
	}
	link, err := Digest(g)
	if err != nil {
		return nil, err
	}
	g.Link = link
	return g, nil
}
