package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jmerrifield20/SupplyChainLedger/internal/config"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger/sqlstore"
)

var ctx = context.Background()

func fileLedger(t *testing.T, products int) *ledger.FileBackend {
	t.Helper()
	backend := ledger.NewFileBackend(filepath.Join(t.TempDir(), "ledger.json"))
	store, err := ledger.Open(ctx, backend)
	require.NoError(t, err)
	for i := 0; i < products; i++ {
		_, err := store.Append(ctx, ledger.AppendInput{
			SubjectID: "PRD-" + string(rune('A'+i)),
			ActorRole: ledger.RoleProducer,
			ActorName: "Farmer A",
			Location:  "Nashik",
			Status:    ledger.StatusCreated,
			Attributes: ledger.Attributes{
				ledger.AttrProductName: "Onion",
				"weight_kg":            12.5,
				"harvested":            time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339),
			},
		})
		require.NoError(t, err)
	}
	return backend
}

func TestCopyLedger_fileToSQLite(t *testing.T) {
	src := fileLedger(t, 3)
	dst, err := sqlstore.Open(ctx, sqlstore.SQLite, filepath.Join(t.TempDir(), "ledger.db"), zap.NewNop())
	require.NoError(t, err)
	defer dst.Close()

	var out bytes.Buffer
	n, err := copyLedger(ctx, src, dst, false, &out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, out.String(), "copied 4 records")

	store, err := ledger.Open(ctx, dst)
	require.NoError(t, err)
	assert.True(t, store.Verify().Valid)
	assert.Len(t, store.Journey("PRD-B"), 1)

	_, err = copyLedger(ctx, src, dst, false, &out)
	assert.ErrorContains(t, err, "already holds 4 records")
}

func TestCopyLedger_refusesBrokenSource(t *testing.T) {
	src := ledger.NewMemoryBackend()
	store, err := ledger.Open(ctx, src)
	require.NoError(t, err)
	_, err = store.Append(ctx, ledger.AppendInput{
		SubjectID: "PRD-1", ActorRole: ledger.RoleProducer, ActorName: "Farmer A",
		Location: "x", Status: ledger.StatusCreated,
	})
	require.NoError(t, err)

	records, err := src.Load(ctx)
	require.NoError(t, err)
	tampered := *records[1]
	tampered.Location = "y"
	require.NoError(t, src.Save(ctx, []*ledger.Record{records[0], &tampered}))

	_, err = copyLedger(ctx, src, ledger.NewMemoryBackend(), false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "fails verification")

	dst := ledger.NewMemoryBackend()
	n, err := copyLedger(ctx, src, dst, true, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCopyLedger_emptySource(t *testing.T) {
	_, err := copyLedger(ctx, ledger.NewMemoryBackend(), ledger.NewMemoryBackend(), false, &bytes.Buffer{})
	assert.ErrorContains(t, err, "no ledger")
}

func TestCheckStorage(t *testing.T) {
	assert.NoError(t, checkStorage(config.StorageConfig{Driver: config.DriverFile, Path: "x.json"}))
	assert.Error(t, checkStorage(config.StorageConfig{Driver: config.DriverFile}))
	assert.Error(t, checkStorage(config.StorageConfig{Driver: config.DriverPostgres}))
	assert.Error(t, checkStorage(config.StorageConfig{Driver: config.DriverMemory}))
}
