package identity

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// ErrInvalidCredentials is returned for an unknown user or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Principal is an authenticated user.
type Principal struct {
	Username string      `json:"username"`
	Name     string      `json:"name"`
	Role     ledger.Role `json:"role"`
}

// Actor-facing role names used by older credential files.
var legacyRoles = map[string]ledger.Role{
	"farmer":      ledger.RoleProducer,
	"wholesaler":  ledger.RoleIntermediary1,
	"distributor": ledger.RoleIntermediary2,
	"retailer":    ledger.RoleIntermediary3,
	"customer":    ledger.RoleConsumer,
}

// UserEntry is one user in the credential file. PasswordHash, when set, is a
// bcrypt hash and takes precedence over Password.
type UserEntry struct {
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Role         string `yaml:"role"`
	Name         string `yaml:"name"`
}

// DefaultUsers returns the demo accounts written by EnsureFile.
func DefaultUsers() map[string]UserEntry {
	return map[string]UserEntry{
		"farmer":      {Password: "farmer123", Role: string(ledger.RoleProducer), Name: "Farmer A"},
		"wholesaler":  {Password: "wholesaler123", Role: string(ledger.RoleIntermediary1), Name: "Wholesaler B"},
		"distributor": {Password: "distributor123", Role: string(ledger.RoleIntermediary2), Name: "Distributor C"},
		"retailer":    {Password: "retailer123", Role: string(ledger.RoleIntermediary3), Name: "Retailer D"},
		"customer":    {Password: "customer123", Role: string(ledger.RoleConsumer), Name: "Customer E"},
	}
}

type user struct {
	Principal
	password string
	hash     []byte
}

// Directory is a static, read-only credential table.
type Directory struct {
	users map[string]user
}

// EnsureFile writes the demo accounts to path when it does not exist yet.
// It reports whether the file was created.
func EnsureFile(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	data, err := yaml.Marshal(DefaultUsers())
	if err != nil {
		return false, fmt.Errorf("encode default users: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("create users dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// LoadDirectory reads the credential file at path.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	return ParseDirectory(data)
}

// ParseDirectory decodes a YAML mapping of username to UserEntry.
func ParseDirectory(data []byte) (*Directory, error) {
	var entries map[string]UserEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode users file: %w", err)
	}
	return NewDirectory(entries)
}

// NewDirectory builds a Directory from entries, validating every role.
func NewDirectory(entries map[string]UserEntry) (*Directory, error) {
	d := &Directory{users: make(map[string]user, len(entries))}
	for username, e := range entries {
		role, err := parseUserRole(e.Role)
		if err != nil {
			return nil, fmt.Errorf("user %q: %w", username, err)
		}
		if e.Password == "" && e.PasswordHash == "" {
			return nil, fmt.Errorf("user %q: no password or password_hash", username)
		}
		name := e.Name
		if name == "" {
			name = username
		}
		d.users[username] = user{
			Principal: Principal{Username: username, Name: name, Role: role},
			password:  e.Password,
			hash:      []byte(e.PasswordHash),
		}
	}
	return d, nil
}

func parseUserRole(s string) (ledger.Role, error) {
	if r, ok := legacyRoles[strings.ToLower(strings.TrimSpace(s))]; ok {
		return r, nil
	}
	return ledger.ParseRole(s)
}

// Authenticate checks username and password against the table.
func (d *Directory) Authenticate(username, password string) (Principal, error) {
	u, ok := d.users[strings.TrimSpace(username)]
	if !ok {
		return Principal{}, ErrInvalidCredentials
	}
	if len(u.hash) > 0 {
		if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
			return Principal{}, ErrInvalidCredentials
		}
		return u.Principal, nil
	}
	if subtle.ConstantTimeCompare([]byte(u.password), []byte(password)) != 1 {
		return Principal{}, ErrInvalidCredentials
	}
	return u.Principal, nil
}

// Users lists every principal sorted by username.
func (d *Directory) Users() []Principal {
	out := make([]Principal, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u.Principal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// HashPassword returns a bcrypt hash suitable for a password_hash entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
