package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmerrifield20/SupplyChainLedger/internal/ledger"
	"github.com/jmerrifield20/SupplyChainLedger/internal/query"
)

func TestProducts_fullJourney(t *testing.T) {
	s := setupServer(t)
	farmer := s.login(t, "farmer")
	wholesaler := s.login(t, "wholesaler")
	customer := s.login(t, "customer")

	w := s.do(t, http.MethodPost, "/api/v1/products", farmer, map[string]string{
		"product_id": "PRD-1", "product_name": "Mango", "location": "Amritsar, Punjab",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created ledger.Record
	decode(t, w, &created)
	assert.Equal(t, "Farmer A", created.ActorName)
	assert.Equal(t, uint64(1), created.SequenceNumber)

	w = s.do(t, http.MethodPost, "/api/v1/products/PRD-1/transfers", wholesaler, map[string]string{
		"location": "Hub-A", "status": "In Transit", "payment_method": "UPI",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/products/PRD-1/deliveries", customer, map[string]string{
		"customer_name": "Customer E", "address": "Delhi", "status": "Delivered", "payment_method": "Card",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/products/PRD-1/journey", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var journey struct {
		Records []query.DisplayRecord `json:"records"`
		Count   int                   `json:"count"`
	}
	decode(t, w, &journey)
	require.Equal(t, 3, journey.Count)
	assert.Equal(t, ledger.StatusInTransit, journey.Records[1].Status)

	w = s.do(t, http.MethodGet, "/api/v1/products/PRD-1/summary", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sum query.Summary
	decode(t, w, &sum)
	assert.Equal(t, "Mango", sum.ProductName)
	assert.Equal(t, "Amritsar, Punjab", sum.OriginLocation)
	assert.Equal(t, "Delhi", sum.CurrentLocation)
	assert.Equal(t, ledger.StatusDelivered, sum.CurrentStatus)
	assert.Equal(t, "Card", sum.PaymentMethod)

	w = s.do(t, http.MethodGet, "/api/v1/products", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Products []query.ProductOverview `json:"products"`
	}
	decode(t, w, &list)
	require.Len(t, list.Products, 1)
	assert.Equal(t, "PRD-1", list.Products[0].SubjectID)

	assert.True(t, s.store.Verify().Valid)
}

func TestProducts_unknownProduct(t *testing.T) {
	s := setupServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/products/PRD-404/journey", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var journey map[string]any
	decode(t, w, &journey)
	assert.Equal(t, float64(0), journey["count"])
	assert.Equal(t, []any{}, journey["records"])

	w = s.do(t, http.MethodGet, "/api/v1/products/PRD-404/summary", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProducts_writeErrors(t *testing.T) {
	s := setupServer(t)
	farmer := s.login(t, "farmer")
	retailer := s.login(t, "retailer")
	s.do(t, http.MethodPost, "/api/v1/products", farmer, map[string]string{"product_id": "PRD-1", "location": "x"})

	tests := []struct {
		name  string
		path  string
		token string
		body  map[string]string
		want  int
	}{
		{"no session", "/api/v1/products", "", map[string]string{"location": "x"}, http.StatusUnauthorized},
		{"intermediary creates", "/api/v1/products", retailer, map[string]string{"location": "x"}, http.StatusForbidden},
		{"producer transfers", "/api/v1/products/PRD-1/transfers", farmer, map[string]string{"location": "x", "status": "In-Transit"}, http.StatusForbidden},
		{"unknown status", "/api/v1/products/PRD-1/transfers", retailer, map[string]string{"location": "x", "status": "Teleported"}, http.StatusBadRequest},
		{"consumer status", "/api/v1/products/PRD-1/transfers", retailer, map[string]string{"location": "x", "status": "Delivered"}, http.StatusBadRequest},
		{"missing location", "/api/v1/products", farmer, map[string]string{"product_id": "PRD-2"}, http.StatusBadRequest},
		{"duplicate id", "/api/v1/products", farmer, map[string]string{"product_id": "PRD-1", "location": "y"}, http.StatusBadRequest},
		{"unknown product", "/api/v1/products/PRD-9/transfers", retailer, map[string]string{"location": "x", "status": "Picked Up"}, http.StatusBadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tc.path, tc.token, tc.body)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
		})
	}
	assert.Equal(t, 2, s.store.Len(), "failed writes must not append")
}
