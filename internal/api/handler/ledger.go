package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
)

// ledgerStore is satisfied by *ledger.Store.
type ledgerStore interface {
	Len() int
	Head() string
	Verify() ledger.Report
	Get(seq uint64) (*ledger.Record, error)
	Export(w io.Writer) error
	Reset(ctx context.Context) (int, error)
}

// LedgerHandler exposes the chain itself: overview, verification, single
// records, export and the administrative reset.
type LedgerHandler struct {
	store    ledgerStore
	sessions *identity.SessionIssuer
	onReset  func()
	logger   *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler. onReset, if non-nil, runs
// after a successful reset.
func NewLedgerHandler(store ledgerStore, sessions *identity.SessionIssuer, onReset func(), logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{store: store, sessions: sessions, onReset: onReset, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger")
	{
		l.GET("", h.Overview)
		l.GET("/verify", h.Verify)
		l.GET("/entries/:seq", h.GetEntry)
		l.GET("/export", h.Export)
		l.POST("/reset", identity.RequireAdmin(h.sessions), h.Reset)
	}
}

// Overview handles GET /ledger. Returns the chain length and tip link.
func (h *LedgerHandler) Overview(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"entries": h.store.Len(),
		"head":    h.store.Head(),
	})
}

// Verify handles GET /ledger/verify. Walks the full chain and reports integrity.
// A broken chain is still a 200: the report is the answer.
func (h *LedgerHandler) Verify(c *gin.Context) {
	report := h.store.Verify()
	if !report.Valid {
		h.logger.Warn("ledger integrity check failed", zap.Stringer("violation", report.Violation))
	}
	c.JSON(http.StatusOK, report)
}

// GetEntry handles GET /ledger/entries/:seq. Returns a single record.
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	seq, err := strconv.ParseUint(c.Param("seq"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seq must be a non-negative integer"})
		return
	}

	rec, err := h.store.Get(seq)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Export handles GET /ledger/export. Streams the persisted JSON array.
func (h *LedgerHandler) Export(c *gin.Context) {
	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="ledger.json"`)
	c.Status(http.StatusOK)
	if err := h.store.Export(c.Writer); err != nil {
		h.logger.Error("ledger export", zap.Error(err))
	}
}

// Reset handles POST /ledger/reset. Discards everything after genesis.
func (h *LedgerHandler) Reset(c *gin.Context) {
	dropped, err := h.store.Reset(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if h.onReset != nil {
		h.onReset()
	}
	h.logger.Warn("ledger reset via API",
		zap.Int("dropped", dropped),
		zap.String("client_ip", c.ClientIP()),
	)
	c.JSON(http.StatusOK, gin.H{
		"dropped": dropped,
		"entries": h.store.Len(),
		"head":    h.store.Head(),
	})
}
