// Package tracking validates role-gated supply chain actions and appends them
// to the ledger. It is the only writer callers are expected to use; the
// ledger itself accepts any well-formed record.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// ErrRoleNotPermitted is returned when the actor's role may not perform the
// requested action.
var ErrRoleNotPermitted = errors.New("role not permitted for this action")

// Ledger is the part of *ledger.Store the service writes to.
type Ledger interface {
	Append(ctx context.Context, in ledger.AppendInput) (*ledger.Record, error)
	Journey(subjectID string) []*ledger.Record
}

// Actor identifies who performs an action.
type Actor struct {
	Role ledger.Role
	Name string
}

// CreateProductInput registers a new product. ProductID may be empty, in
// which case one is generated.
type CreateProductInput struct {
	ProductID     string
	ProductName   string
	Location      string
	PaymentMethod string
}

// TransferInput records an intermediary hand-off.
type TransferInput struct {
	ProductID     string
	Location      string
	Status        ledger.Status
	PaymentMethod string
	Notes         string
}

// DeliveryInput records the consumer's confirmation. The customer name and
// address become the record's actor name and location.
type DeliveryInput struct {
	ProductID     string
	CustomerName  string
	Phone         string
	Email         string
	Address       string
	Status        ledger.Status
	PaymentMethod string
}

// Option configures a Service.
type Option func(*Service)

// WithTransitions turns on status transition enforcement.
func WithTransitions(enforce bool) Option {
	return func(s *Service) { s.enforce = enforce }
}

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithIDGenerator overrides product id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// Service performs validated actions against a Ledger.
type Service struct {
	ledger  Ledger
	enforce bool
	logger  *zap.Logger
	newID   func() string

	// mu makes the read-latest-status then append sequence atomic so the
	// duplicate-id and transition checks cannot race another action.
	mu sync.Mutex
}

// New returns a Service writing to l.
func New(l Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: zap.NewNop(),
		newID:  NewProductID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewProductID returns an id of the form PRD-XXXXXX.
func NewProductID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PRD-" + strings.ToUpper(hex[:6])
}

// EnforcesTransitions reports whether status transitions are checked.
func (s *Service) EnforcesTransitions() bool { return s.enforce }

// CreateProduct appends the creation record of a new product.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, in CreateProductInput) (*ledger.Record, error) {
	if actor.Role != ledger.RoleProducer {
		return nil, fmt.Errorf("create product as %s: %w", actor.Role, ErrRoleNotPermitted)
	}
	if err := required("actor_name", actor.Name); err != nil {
		return nil, err
	}
	if err := required("location", in.Location); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(in.ProductID)
	if id == "" {
		id = s.newID()
	}
	if len(s.ledger.Journey(id)) > 0 {
		return nil, &ledger.ValidationError{Field: "product_id", Msg: fmt.Sprintf("%s already exists", id)}
	}

	rec, err := s.ledger.Append(ctx, ledger.AppendInput{
		SubjectID:     id,
		ActorRole:     actor.Role,
		ActorName:     strings.TrimSpace(actor.Name),
		Location:      strings.TrimSpace(in.Location),
		Status:        ledger.StatusCreated,
		PaymentMethod: in.PaymentMethod,
		Attributes:    ledger.CreationAttributes{ProductName: strings.TrimSpace(in.ProductName)}.Map(),
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("product created",
		zap.String("product_id", id),
		zap.String("actor", rec.ActorName),
		zap.Uint64("sequence_number", rec.SequenceNumber),
	)
	return rec, nil
}

// RecordTransfer appends an intermediary hand-off for an existing product.
func (s *Service) RecordTransfer(ctx context.Context, actor Actor, in TransferInput) (*ledger.Record, error) {
	if !actor.Role.IsIntermediary() {
		return nil, fmt.Errorf("record transfer as %s: %w", actor.Role, ErrRoleNotPermitted)
	}
	if err := required("actor_name", actor.Name); err != nil {
		return nil, err
	}
	if err := required("location", in.Location); err != nil {
		return nil, err
	}
	if err := checkStatus(in.Status, actor.Role); err != nil {
		return nil, err
	}

	return s.appendExisting(ctx, in.ProductID, ledger.AppendInput{
		ActorRole:     actor.Role,
		ActorName:     strings.TrimSpace(actor.Name),
		Location:      strings.TrimSpace(in.Location),
		Status:        in.Status,
		PaymentMethod: in.PaymentMethod,
		Attributes:    ledger.TransitAttributes{Notes: strings.TrimSpace(in.Notes)}.Map(),
	})
}

// ConfirmDelivery appends the consumer's delivery outcome.
func (s *Service) ConfirmDelivery(ctx context.Context, actor Actor, in DeliveryInput) (*ledger.Record, error) {
	if actor.Role != ledger.RoleConsumer {
		return nil, fmt.Errorf("confirm delivery as %s: %w", actor.Role, ErrRoleNotPermitted)
	}
	if err := required("customer_name", in.CustomerName); err != nil {
		return nil, err
	}
	if err := required("address", in.Address); err != nil {
		return nil, err
	}
	if err := required("payment_method", in.PaymentMethod); err != nil {
		return nil, err
	}
	if err := checkStatus(in.Status, actor.Role); err != nil {
		return nil, err
	}

	attrs := ledger.ConsumptionAttributes{
		CustomerName: strings.TrimSpace(in.CustomerName),
		Phone:        strings.TrimSpace(in.Phone),
		Email:        strings.TrimSpace(in.Email),
		Address:      strings.TrimSpace(in.Address),
	}
	return s.appendExisting(ctx, in.ProductID, ledger.AppendInput{
		ActorRole:     actor.Role,
		ActorName:     attrs.CustomerName,
		Location:      attrs.Address,
		Status:        in.Status,
		PaymentMethod: in.PaymentMethod,
		Attributes:    attrs.Map(),
	})
}

func (s *Service) appendExisting(ctx context.Context, productID string, in ledger.AppendInput) (*ledger.Record, error) {
	id := strings.TrimSpace(productID)
	if err := required("product_id", id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	journey := s.ledger.Journey(id)
	if len(journey) == 0 {
		return nil, &ledger.ValidationError{Field: "product_id", Msg: fmt.Sprintf("%s has no creation record", id)}
	}
	if s.enforce {
		from := journey[len(journey)-1].Status
		if !CanTransition(from, in.Status) {
			return nil, &ledger.ValidationError{
				Field: "status",
				Msg:   fmt.Sprintf("%s cannot follow %s", in.Status, from),
			}
		}
	}

	in.SubjectID = id
	rec, err := s.ledger.Append(ctx, in)
	if err != nil {
		return nil, err
	}
	s.logger.Info("product status recorded",
		zap.String("product_id", id),
		zap.String("actor_role", string(rec.ActorRole)),
		zap.String("status", string(rec.Status)),
		zap.Uint64("sequence_number", rec.SequenceNumber),
	)
	return rec, nil
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ledger.ValidationError{Field: field, Msg: "is required"}
	}
	return nil
}

func checkStatus(st ledger.Status, role ledger.Role) error {
	if !st.AllowedFor(role) {
		return &ledger.ValidationError{
			Field: "status",
			Msg:   fmt.Sprintf("%q is not a %s status", st, role),
		}
	}
	return nil
}
