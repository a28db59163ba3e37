package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
)

// authenticator is satisfied by *identity.Directory.
type authenticator interface {
	Authenticate(username, password string) (identity.Principal, error)
}

// AuthHandler exchanges credentials for session tokens.
type AuthHandler struct {
	users       authenticator
	sessions    *identity.SessionIssuer
	adminSecret string
	logger      *zap.Logger
}

// NewAuthHandler creates an AuthHandler. An empty adminSecret disables
// POST /auth/admin.
func NewAuthHandler(users authenticator, sessions *identity.SessionIssuer, adminSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, adminSecret: adminSecret, logger: logger}
}

// Register mounts the auth routes on the given router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	a := rg.Group("/auth")
	{
		a.POST("/login", h.Login)
		a.POST("/admin", h.Admin)
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type adminRequest struct {
	Secret string `json:"secret" binding:"required"`
}

// Login handles POST /auth/login. Returns a session token for a known user.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p, err := h.users.Authenticate(req.Username, req.Password)
	if err != nil {
		h.logger.Info("login rejected", zap.String("username", req.Username))
		writeError(c, h.logger, err)
		return
	}

	tok, exp, err := h.sessions.Issue(p)
	if err != nil {
		h.logger.Error("issue session token after login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":       p,
		"token":      tok,
		"expires_at": exp.Format(time.RFC3339),
	})
}

// Admin handles POST /auth/admin. Exchanges the static admin secret for an
// admin token.
func (h *AuthHandler) Admin(c *gin.Context) {
	if h.adminSecret == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "admin access is disabled"})
		return
	}
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !identity.AdminSecretMatches(h.adminSecret, req.Secret) {
		h.logger.Warn("admin token request with wrong secret", zap.String("client_ip", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	tok, err := h.sessions.IssueAdmin(0)
	if err != nil {
		h.logger.Error("issue admin token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": tok})
}
