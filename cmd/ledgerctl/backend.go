package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/app"
	"github.com/jmerrifield20/SupplyChainLedger/internal/config"
	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/tracking"
	"github.com/jmerrifield20/SupplyChainLedger/pkg/client"
)

// ledgerAPI is what every command needs. remoteLedger goes through ledgerd;
// localLedger opens the configured backend in-process. Both speak the
// pkg/client types so output code is shared.
type ledgerAPI interface {
	Login(ctx context.Context, username, password string) error
	CreateProduct(ctx context.Context, req client.CreateProductRequest) (*client.Record, error)
	RecordTransfer(ctx context.Context, productID string, req client.TransferRequest) (*client.Record, error)
	ConfirmDelivery(ctx context.Context, productID string, req client.DeliveryRequest) (*client.Record, error)

	Products(ctx context.Context) ([]client.Product, error)
	Journey(ctx context.Context, productID string) ([]client.JourneyEntry, error)
	Summary(ctx context.Context, productID string) (*client.Summary, error)
	Overview(ctx context.Context) (*client.Overview, error)
	Verify(ctx context.Context) (*client.Report, error)
	Export(ctx context.Context, w io.Writer) error
	Reset(ctx context.Context, adminSecret string) (*client.ResetResult, error)

	Close() error
}

// openLedger returns the remote API when --server is set, the local ledger
// otherwise.
func openLedger(cmd *cobra.Command) (ledgerAPI, error) {
	if serverURL != "" {
		var opts []client.Option
		if insecure {
			opts = append(opts, client.WithInsecureSkipVerify())
		}
		c, err := client.New(serverURL, opts...)
		if err != nil {
			return nil, err
		}
		return &remoteLedger{c: c}, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cliLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := app.Open(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	return &localLedger{app: a, usersFile: cfg.Auth.UsersFile, logger: logger}, nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(config.New(cfgFile))
}

// cliLogger quietens the configured logger to warnings unless --verbose.
func cliLogger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := cfg.Log
	if !verbose {
		logCfg.Level = "warn"
	}
	return config.NewLogger(logCfg)
}

// ── remote ───────────────────────────────────────────────────────────────────

type remoteLedger struct {
	c *client.Client
}

func (r *remoteLedger) Login(ctx context.Context, username, password string) error {
	_, err := r.c.Login(ctx, username, password)
	return err
}

func (r *remoteLedger) CreateProduct(ctx context.Context, req client.CreateProductRequest) (*client.Record, error) {
	return r.c.CreateProduct(ctx, req)
}

func (r *remoteLedger) RecordTransfer(ctx context.Context, id string, req client.TransferRequest) (*client.Record, error) {
	return r.c.RecordTransfer(ctx, id, req)
}

func (r *remoteLedger) ConfirmDelivery(ctx context.Context, id string, req client.DeliveryRequest) (*client.Record, error) {
	return r.c.ConfirmDelivery(ctx, id, req)
}

func (r *remoteLedger) Products(ctx context.Context) ([]client.Product, error) { return r.c.Products(ctx) }

func (r *remoteLedger) Journey(ctx context.Context, id string) ([]client.JourneyEntry, error) {
	return r.c.Journey(ctx, id)
}

func (r *remoteLedger) Summary(ctx context.Context, id string) (*client.Summary, error) {
	return r.c.Summary(ctx, id)
}

func (r *remoteLedger) Overview(ctx context.Context) (*client.Overview, error) { return r.c.Overview(ctx) }
func (r *remoteLedger) Verify(ctx context.Context) (*client.Report, error)     { return r.c.Verify(ctx) }
func (r *remoteLedger) Export(ctx context.Context, w io.Writer) error          { return r.c.Export(ctx, w) }

func (r *remoteLedger) Reset(ctx context.Context, adminSecret string) (*client.ResetResult, error) {
	if adminSecret == "" {
		return nil, errors.New("--admin-secret is required to reset a remote ledger")
	}
	if err := r.c.AdminLogin(ctx, adminSecret); err != nil {
		return nil, err
	}
	return r.c.Reset(ctx)
}

func (r *remoteLedger) Close() error { return nil }

// ── local ────────────────────────────────────────────────────────────────────

type localLedger struct {
	app       *app.App
	usersFile string
	logger    *zap.Logger
	actor     tracking.Actor
}

func (l *localLedger) Login(_ context.Context, username, password string) error {
	users, err := identity.LoadDirectory(l.usersFile)
	if err != nil {
		return fmt.Errorf("%w (run 'ledgerctl init' to write the demo users)", err)
	}
	p, err := users.Authenticate(username, password)
	if err != nil {
		return err
	}
	l.actor = tracking.Actor{Role: p.Role, Name: p.Name}
	return nil
}

func (l *localLedger) CreateProduct(ctx context.Context, req client.CreateProductRequest) (*client.Record, error) {
	rec, err := l.app.Tracking.CreateProduct(ctx, l.actor, tracking.CreateProductInput{
		ProductID:     req.ProductID,
		ProductName:   req.ProductName,
		Location:      req.Location,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}
	return convertTo[client.Record](rec)
}

func (l *localLedger) RecordTransfer(ctx context.Context, id string, req client.TransferRequest) (*client.Record, error) {
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	rec, err := l.app.Tracking.RecordTransfer(ctx, l.actor, tracking.TransferInput{
		ProductID:     id,
		Location:      req.Location,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, err
	}
	return convertTo[client.Record](rec)
}

func (l *localLedger) ConfirmDelivery(ctx context.Context, id string, req client.DeliveryRequest) (*client.Record, error) {
	status, err := ledger.ParseStatus(req.Status)
	if err != nil {
		return nil, err
	}
	rec, err := l.app.Tracking.ConfirmDelivery(ctx, l.actor, tracking.DeliveryInput{
		ProductID:     id,
		CustomerName:  req.CustomerName,
		Phone:         req.Phone,
		Email:         req.Email,
		Address:       req.Address,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		return nil, err
	}
	return convertTo[client.Record](rec)
}

func (l *localLedger) Products(context.Context) ([]client.Product, error) {
	out, err := convertTo[[]client.Product](l.app.Query.Products())
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (l *localLedger) Journey(_ context.Context, id string) ([]client.JourneyEntry, error) {
	out, err := convertTo[[]client.JourneyEntry](l.app.Query.JourneyView(id))
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (l *localLedger) Summary(_ context.Context, id string) (*client.Summary, error) {
	sum, ok := l.app.Query.LatestState(id)
	if !ok {
		return nil, fmt.Errorf("product %s: %w", id, client.ErrNotFound)
	}
	return convertTo[client.Summary](sum)
}

func (l *localLedger) Overview(context.Context) (*client.Overview, error) {
	return &client.Overview{Entries: l.app.Store.Len(), Head: l.app.Store.Head()}, nil
}

func (l *localLedger) Verify(context.Context) (*client.Report, error) {
	return convertTo[client.Report](l.app.Store.Verify())
}

func (l *localLedger) Export(_ context.Context, w io.Writer) error {
	return l.app.Store.Export(w)
}

// Reset on the local ledger needs no admin secret: whoever can open the
// backend can already rewrite it.
func (l *localLedger) Reset(ctx context.Context, _ string) (*client.ResetResult, error) {
	dropped, err := l.app.Store.Reset(ctx)
	if err != nil {
		return nil, err
	}
	l.logger.Warn("ledger reset via CLI", zap.Int("dropped", dropped))
	return &client.ResetResult{Dropped: dropped, Entries: l.app.Store.Len(), Head: l.app.Store.Head()}, nil
}

func (l *localLedger) Close() error {
	defer l.logger.Sync() //nolint:errcheck
	return l.app.Close()
}

// convertTo maps a server-side value onto its pkg/client counterpart through
// the shared JSON shape.
func convertTo[T any](v any) (*T, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode into %T: %w", out, err)
	}
	return &out, nil
}
