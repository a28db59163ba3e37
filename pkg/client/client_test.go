package client_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/api/handler"
	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/query"
	"github.com/jmerrifield20/SupplyChainLedger/internal/tracking"
	"github.com/jmerrifield20/SupplyChainLedger/pkg/client"
)

const adminSecret = "client-test-admin"

// ── Test server ─────────────────────────────────────────────────────────

func ledgerServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := ledger.Open(context.Background(), ledger.NewMemoryBackend())
	if err != nil {
		t.Fatal(err)
	}
	dir, err := identity.NewDirectory(identity.DefaultUsers())
	if err != nil {
		t.Fatal(err)
	}
	sessions := identity.NewSessionIssuer([]byte("client-test-secret-0123456789abc"), "ledgerd-test", time.Hour)
	logger := zap.NewNop()

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(dir, sessions, adminSecret, logger).Register(v1)
	handler.NewProductHandler(tracking.New(store), query.New(store), sessions, nil, logger).Register(v1)
	handler.NewLedgerHandler(store, sessions, nil, logger).Register(v1)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, srvURL, username string) *client.Client {
	t.Helper()
	c, err := client.New(srvURL)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Login(context.Background(), username, username+"123"); err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return c
}

// ── Tests ────────────────────────────────────────────────────────────────

func TestNew_invalidURL(t *testing.T) {
	for _, base := range []string{"", "localhost:8080", "://nope"} {
		if _, err := client.New(base); err == nil {
			t.Errorf("New(%q) expected error", base)
		}
	}
}

func TestJourney_endToEnd(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()

	farmer := login(t, srv.URL, "farmer")
	if farmer.Token() == "" {
		t.Fatal("Login did not keep the session token")
	}
	rec, err := farmer.CreateProduct(ctx, client.CreateProductRequest{
		ProductID: "PRD-1", ProductName: "Mango", Location: "Amritsar, Punjab",
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	if rec.SequenceNumber != 1 || rec.Status != "Created" {
		t.Errorf("unexpected record: %+v", rec)
	}

	wholesaler := login(t, srv.URL, "wholesaler")
	if _, err := wholesaler.RecordTransfer(ctx, "PRD-1", client.TransferRequest{
		Location: "Hub-A", Status: "In Transit", PaymentMethod: "UPI",
	}); err != nil {
		t.Fatalf("RecordTransfer: %v", err)
	}

	customer := login(t, srv.URL, "customer")
	if _, err := customer.ConfirmDelivery(ctx, "PRD-1", client.DeliveryRequest{
		CustomerName: "Customer E", Phone: "98765", Email: "e@example.com",
		Address: "Delhi", Status: "Delivered", PaymentMethod: "UPI",
	}); err != nil {
		t.Fatalf("ConfirmDelivery: %v", err)
	}

	anon, _ := client.New(srv.URL)
	journey, err := anon.Journey(ctx, "PRD-1")
	if err != nil {
		t.Fatalf("Journey: %v", err)
	}
	if len(journey) != 3 {
		t.Fatalf("journey has %d rows, want 3", len(journey))
	}
	if journey[2].Status != "Delivered" || journey[2].Location != "Delhi" {
		t.Errorf("last row = %+v", journey[2])
	}

	sum, err := anon.Summary(ctx, "PRD-1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.ProductName != "Mango" || sum.OriginLocation != "Amritsar, Punjab" || sum.CurrentStatus != "Delivered" {
		t.Errorf("summary = %+v", sum)
	}

	products, err := anon.Products(ctx)
	if err != nil || len(products) != 1 || products[0].SubjectID != "PRD-1" {
		t.Errorf("Products() = %+v, %v", products, err)
	}

	report, err := anon.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !report.Valid || report.Checked != 4 {
		t.Errorf("report = %+v", report)
	}

	ov, err := anon.Overview(ctx)
	if err != nil || ov.Entries != 4 || ov.Head != report.Head {
		t.Errorf("Overview() = %+v, %v", ov, err)
	}
}

func TestSummary_notFound(t *testing.T) {
	srv := ledgerServer(t)
	c, _ := client.New(srv.URL)

	_, err := c.Summary(context.Background(), "PRD-404")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	journey, err := c.Journey(context.Background(), "PRD-404")
	if err != nil || len(journey) != 0 {
		t.Errorf("Journey(unknown) = %v, %v; want empty", journey, err)
	}
}

func TestEntry(t *testing.T) {
	srv := ledgerServer(t)
	c, _ := client.New(srv.URL)
	ctx := context.Background()

	genesis, err := c.Entry(ctx, 0)
	if err != nil {
		t.Fatalf("Entry(0): %v", err)
	}
	if genesis.ActorRole != "Network" || genesis.PreviousLink != ledger.GenesisPrevLink {
		t.Errorf("genesis = %+v", genesis)
	}
	if _, err := c.Entry(ctx, 99); !errors.Is(err, client.ErrNotFound) {
		t.Errorf("Entry(99) expected ErrNotFound, got %v", err)
	}
}

func TestWrite_errorsCarryFieldAndStatus(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()

	anon, _ := client.New(srv.URL)
	_, err := anon.CreateProduct(ctx, client.CreateProductRequest{Location: "x"})
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous write: %v", err)
	}

	farmer := login(t, srv.URL, "farmer")
	_, err = farmer.CreateProduct(ctx, client.CreateProductRequest{Location: "  "})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest || apiErr.Field != "location" {
		t.Errorf("blank location: %v", err)
	}

	_, err = farmer.RecordTransfer(ctx, "PRD-1", client.TransferRequest{Location: "x", Status: "In Transit"})
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
		t.Errorf("producer transfer: %v", err)
	}

	if _, err := anon.Login(ctx, "farmer", "nope"); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad login: %v", err)
	}
}

func TestResetAndExport(t *testing.T) {
	srv := ledgerServer(t)
	ctx := context.Background()

	farmer := login(t, srv.URL, "farmer")
	if _, err := farmer.CreateProduct(ctx, client.CreateProductRequest{ProductID: "PRD-1", Location: "x"}); err != nil {
		t.Fatal(err)
	}

	if _, err := farmer.Reset(ctx); err == nil {
		t.Fatal("a user session must not reset the ledger")
	}

	admin, _ := client.New(srv.URL)
	if err := admin.AdminLogin(ctx, "wrong"); err == nil {
		t.Fatal("wrong admin secret accepted")
	}
	if err := admin.AdminLogin(ctx, adminSecret); err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	res, err := admin.Reset(ctx)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res.Dropped != 1 || res.Entries != 1 {
		t.Errorf("reset = %+v", res)
	}

	var buf bytes.Buffer
	if err := admin.Export(ctx, &buf); err != nil {
		t.Fatalf("Export: %v", err)
	}
	var doc []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(doc) != 1 || doc[0]["link"] != res.Head {
		t.Errorf("export = %v", doc)
	}
}

func TestWithBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(map[string]any{"entries": 1, "head": "abc"})
	}))
	defer srv.Close()

	c, err := client.New(srv.URL, client.WithBearerToken("tok"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Overview(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got != "Bearer tok" {
		t.Errorf("Authorization = %q", got)
	}
}
