package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
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
)

const testAdminSecret = "let-me-in"

type testServer struct {
	router   *gin.Engine
	store    *ledger.Store
	sessions *identity.SessionIssuer
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := ledger.Open(context.Background(), ledger.NewMemoryBackend())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	dir, err := identity.NewDirectory(identity.DefaultUsers())
	if err != nil {
		t.Fatalf("directory: %v", err)
	}
	sessions := identity.NewSessionIssuer([]byte("handler-test-secret-0123456789ab"), "ledgerd-test", time.Hour)
	logger := zap.NewNop()

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewAuthHandler(dir, sessions, testAdminSecret, logger).Register(v1)
	handler.NewProductHandler(tracking.New(store), query.New(store), sessions, nil, logger).Register(v1)
	handler.NewLedgerHandler(store, sessions, nil, logger).Register(v1)

	return &testServer{router: r, store: store, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, username string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": username,
		"password": username + "123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", username, w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decode(t, w, &resp)
	return resp.Token
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}
