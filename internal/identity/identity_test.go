package identity_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testIssuer = "supply-chain-ledger-test"

func newSessions() *identity.SessionIssuer {
	return identity.NewSessionIssuer([]byte("0123456789abcdef0123456789abcdef"), testIssuer, time.Hour)
}

func TestEnsureFile_writesDemoUsersOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "users.yaml")

	created, err := identity.EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile() error: %v", err)
	}
	if !created {
		t.Fatal("expected the file to be created")
	}

	created, err = identity.EnsureFile(path)
	if err != nil || created {
		t.Fatalf("second EnsureFile() = %v, %v; want false, nil", created, err)
	}

	dir, err := identity.LoadDirectory(path)
	if err != nil {
		t.Fatalf("LoadDirectory() error: %v", err)
	}
	users := dir.Users()
	if len(users) != 5 {
		t.Fatalf("expected 5 demo users, got %d", len(users))
	}

	p, err := dir.Authenticate("farmer", "farmer123")
	if err != nil {
		t.Fatalf("Authenticate(farmer) error: %v", err)
	}
	if p.Role != ledger.RoleProducer || p.Name != "Farmer A" {
		t.Errorf("farmer = %+v", p)
	}
	p, _ = dir.Authenticate("distributor", "distributor123")
	if p.Role != ledger.RoleIntermediary2 {
		t.Errorf("distributor role = %q", p.Role)
	}
}

func TestAuthenticate_rejectsBadCredentials(t *testing.T) {
	dir, err := identity.NewDirectory(identity.DefaultUsers())
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct{ user, pass string }{
		{"farmer", "wrong"},
		{"nobody", "farmer123"},
		{"farmer", ""},
	} {
		if _, err := dir.Authenticate(tc.user, tc.pass); !errors.Is(err, identity.ErrInvalidCredentials) {
			t.Errorf("Authenticate(%q, %q) = %v, want ErrInvalidCredentials", tc.user, tc.pass, err)
		}
	}
}

func TestParseDirectory_bcryptAndLegacyRoles(t *testing.T) {
	hash, err := identity.HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	data := "grower:\n  password_hash: " + hash + "\n  role: Farmer\n  name: Grower G\n" +
		"shop:\n  password: shop123\n  role: Retailer\n"

	dir, err := identity.ParseDirectory([]byte(data))
	if err != nil {
		t.Fatalf("ParseDirectory() error: %v", err)
	}

	p, err := dir.Authenticate("grower", "s3cret")
	if err != nil {
		t.Fatalf("bcrypt login failed: %v", err)
	}
	if p.Role != ledger.RoleProducer {
		t.Errorf("grower role = %q, want Producer", p.Role)
	}
	if _, err := dir.Authenticate("grower", hash); err == nil {
		t.Error("the stored hash must not work as a password")
	}

	p, err = dir.Authenticate("shop", "shop123")
	if err != nil {
		t.Fatal(err)
	}
	if p.Role != ledger.RoleIntermediary3 || p.Name != "shop" {
		t.Errorf("shop = %+v", p)
	}
}

func TestParseDirectory_invalid(t *testing.T) {
	for name, data := range map[string]string{
		"unknown role": "x:\n  password: p\n  role: Pirate\n",
		"network role": "x:\n  password: p\n  role: Network\n",
		"no password":  "x:\n  role: Producer\n",
		"not yaml":     "x: [",
	} {
		if _, err := identity.ParseDirectory([]byte(data)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestSessionIssuer_roundTrip(t *testing.T) {
	s := newSessions()
	in := identity.Principal{Username: "retailer", Name: "Retailer D", Role: ledger.RoleIntermediary3}

	token, exp, err := s.Issue(in)
	if err != nil {
		t.Fatalf("Issue() error: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Errorf("expiry %v is not in the future", exp)
	}

	claims, err := s.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error: %v", err)
	}
	if claims.Type != identity.TokenTypeSession {
		t.Errorf("Type = %q", claims.Type)
	}
	got, err := claims.Principal()
	if err != nil {
		t.Fatal(err)
	}
	if got != in {
		t.Errorf("Principal() = %+v, want %+v", got, in)
	}
}

func TestSessionIssuer_rejects(t *testing.T) {
	s := newSessions()
	token, _, _ := s.Issue(identity.Principal{Username: "farmer", Role: ledger.RoleProducer})

	other := identity.NewSessionIssuer([]byte("another-secret-another-secret-!!"), testIssuer, time.Hour)
	if _, err := other.Verify(token); err == nil {
		t.Error("token signed with another secret was accepted")
	}

	wrongIssuer := identity.NewSessionIssuer([]byte("0123456789abcdef0123456789abcdef"), "elsewhere", time.Hour)
	if _, err := wrongIssuer.Verify(token); err == nil {
		t.Error("token from another issuer was accepted")
	}

	expired := identity.NewSessionIssuer([]byte("0123456789abcdef0123456789abcdef"), testIssuer, -time.Minute)
	old, _, _ := expired.Issue(identity.Principal{Username: "farmer", Role: ledger.RoleProducer})
	if _, err := s.Verify(old); err == nil {
		t.Error("expired token was accepted")
	}

	if _, err := s.Verify(token[:len(token)-4] + "AAAA"); err == nil {
		t.Error("tampered token was accepted")
	}
}

func TestAdminSecretMatches(t *testing.T) {
	if identity.AdminSecretMatches("", "") {
		t.Error("empty configured secret must disable admin access")
	}
	if !identity.AdminSecretMatches("topsecret", "topsecret") {
		t.Error("matching secret rejected")
	}
	if identity.AdminSecretMatches("topsecret", "topsecreT") {
		t.Error("wrong secret accepted")
	}
}

func protectedRouter(s *identity.SessionIssuer) *gin.Engine {
	r := gin.New()
	r.GET("/user", identity.RequireSession(s), func(c *gin.Context) {
		p, ok := identity.PrincipalFromCtx(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, string(p.Role))
	})
	r.GET("/admin", identity.RequireAdmin(s), func(c *gin.Context) {
		c.String(http.StatusOK, identity.SessionFromCtx(c).Type)
	})
	return r
}

func call(r http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	s := newSessions()
	r := protectedRouter(s)

	userToken, _, _ := s.Issue(identity.Principal{Username: "customer", Role: ledger.RoleConsumer})
	adminToken, err := s.IssueAdmin(0)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path, token string
		want        int
		body        string
	}{
		{"/user", "", http.StatusUnauthorized, ""},
		{"/user", "garbage", http.StatusUnauthorized, ""},
		{"/user", userToken, http.StatusOK, "Consumer"},
		{"/user", adminToken, http.StatusUnauthorized, ""},
		{"/admin", userToken, http.StatusForbidden, ""},
		{"/admin", adminToken, http.StatusOK, "admin"},
	}
	for _, tc := range tests {
		w := call(r, tc.path, tc.token)
		if w.Code != tc.want {
			t.Errorf("GET %s: status %d, want %d (%s)", tc.path, w.Code, tc.want, w.Body.String())
			continue
		}
		if tc.body != "" && !strings.Contains(w.Body.String(), tc.body) {
			t.Errorf("GET %s: body %q, want %q", tc.path, w.Body.String(), tc.body)
		}
	}
}

func TestLoadDirectory_missingFile(t *testing.T) {
	_, err := identity.LoadDirectory(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}
