// Package query derives read-only views from the ledger: the journey of a
// product, its latest-state summary and an overview of every product seen.
// Every view is computed from the current snapshot on each call.
package query

import (
	"strings"
	"time"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// DefaultProductName is reported when the creation record carries no name.
const DefaultProductName = "Unknown"

// Source is the subset of *ledger.Store the engine reads from.
type Source interface {
	Journey(subjectID string) []*ledger.Record
	Records() []*ledger.Record
}

// Engine projects records from a Source.
type Engine struct {
	src Source
}

// New returns an Engine reading from src.
func New(src Source) *Engine {
	return &Engine{src: src}
}

// DisplayRecord is a journey row as shown to users.
type DisplayRecord struct {
	SequenceNumber uint64            `json:"sequence_number"`
	Timestamp      time.Time         `json:"timestamp"`
	ActorRole      ledger.Role       `json:"actor_role"`
	ActorName      string            `json:"actor_name"`
	Location       string            `json:"location"`
	Status         ledger.Status     `json:"status"`
	PaymentMethod  string            `json:"payment_method"`
	Attributes     ledger.Attributes `json:"attributes"`
	Link           string            `json:"link"`
}

// Summary is the latest known state of a product. Origin fields come from its
// first record, current fields from its last.
type Summary struct {
	SubjectID string `json:"subject_id"`

	ProductName    string      `json:"product_name"`
	OriginLocation string      `json:"origin_location"`
	OriginActor    string      `json:"origin_actor"`
	OriginRole     ledger.Role `json:"origin_role"`
	CreatedAt      time.Time   `json:"created_at"`

	CurrentStatus   ledger.Status     `json:"current_status"`
	CurrentLocation string            `json:"current_location"`
	CurrentActor    string            `json:"current_actor"`
	CurrentRole     ledger.Role       `json:"current_role"`
	PaymentMethod   string            `json:"payment_method"`
	Attributes      ledger.Attributes `json:"attributes"`
	UpdatedAt       time.Time         `json:"updated_at"`

	Entries       int    `json:"entries"`
	FirstSequence uint64 `json:"first_sequence"`
	LastSequence  uint64 `json:"last_sequence"`
}

// ProductOverview is one row of the product listing.
type ProductOverview struct {
	SubjectID       string        `json:"subject_id"`
	ProductName     string        `json:"product_name"`
	CurrentStatus   ledger.Status `json:"current_status"`
	CurrentLocation string        `json:"current_location"`
	Entries         int           `json:"entries"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// JourneyView returns the display rows for subjectID in append order, or an
// empty slice when the subject has no records.
func (e *Engine) JourneyView(subjectID string) []DisplayRecord {
	journey := e.src.Journey(strings.TrimSpace(subjectID))
	out := make([]DisplayRecord, 0, len(journey))
	for _, r := range journey {
		out = append(out, DisplayRecord{
			SequenceNumber: r.SequenceNumber,
			Timestamp:      r.CreatedAt,
			ActorRole:      r.ActorRole,
			ActorName:      r.ActorName,
			Location:       r.Location,
			Status:         r.Status,
			PaymentMethod:  r.PaymentMethod,
			Attributes:     r.Attributes,
			Link:           r.Link,
		})
	}
	return out
}

// LatestState summarises subjectID. The second result is false when the
// subject has no records.
func (e *Engine) LatestState(subjectID string) (*Summary, bool) {
	journey := e.src.Journey(strings.TrimSpace(subjectID))
	if len(journey) == 0 {
		return nil, false
	}
	return summarise(journey), true
}

// summarise expects a non-empty journey. The last record is picked by
// sequence number rather than position.
func summarise(journey []*ledger.Record) *Summary {
	first, last := journey[0], journey[0]
	for _, r := range journey[1:] {
		if r.SequenceNumber < first.SequenceNumber {
			first = r
		}
		if r.SequenceNumber > last.SequenceNumber {
			last = r
		}
	}
	return &Summary{
		SubjectID:       first.SubjectID,
		ProductName:     first.Attributes.String(ledger.AttrProductName, DefaultProductName),
		OriginLocation:  first.Location,
		OriginActor:     first.ActorName,
		OriginRole:      first.ActorRole,
		CreatedAt:       first.CreatedAt,
		CurrentStatus:   last.Status,
		CurrentLocation: last.Location,
		CurrentActor:    last.ActorName,
		CurrentRole:     last.ActorRole,
		PaymentMethod:   last.PaymentMethod,
		Attributes:      last.Attributes.Clone(),
		UpdatedAt:       last.CreatedAt,
		Entries:         len(journey),
		FirstSequence:   first.SequenceNumber,
		LastSequence:    last.SequenceNumber,
	}
}

// Products lists every non-genesis subject in order of first appearance.
func (e *Engine) Products() []ProductOverview {
	groups := make(map[string][]*ledger.Record)
	var order []string
	for _, r := range e.src.Records() {
		if r.IsGenesis() || r.SubjectID == ledger.GenesisSubject {
			continue
		}
		if _, seen := groups[r.SubjectID]; !seen {
			order = append(order, r.SubjectID)
		}
		groups[r.SubjectID] = append(groups[r.SubjectID], r)
	}

	out := make([]ProductOverview, 0, len(order))
	for _, id := range order {
		s := summarise(groups[id])
		out = append(out, ProductOverview{
			SubjectID:       id,
			ProductName:     s.ProductName,
			CurrentStatus:   s.CurrentStatus,
			CurrentLocation: s.CurrentLocation,
			Entries:         s.Entries,
			UpdatedAt:       s.UpdatedAt,
		})
	}
	return out
}
