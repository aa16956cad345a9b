package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"bid-aggregator/internal/domain"
	"bid-aggregator/internal/services"
	"bid-aggregator/pkg/logger"

	"github.com/gorilla/mux"
)

// LedgerReader is the read-only view of the aggregator used by the HTTP API.
type LedgerReader interface {
	Snapshot() domain.Snapshot
	Highest(auctionID string) (domain.HighestBidRecord, bool)
	Stats() services.AggregatorStats
}

type LedgerHandler struct {
	ledger LedgerReader
	log    logger.Logger
}

func NewLedgerHandler(ledger LedgerReader, log logger.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, log: log}
}

func (h *LedgerHandler) Register(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/highest-bids", h.ListHighestBids).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/highest-bids/{auctionID}", h.GetHighestBid).Methods(http.MethodGet, http.MethodOptions)
}

func (h *LedgerHandler) Health(w http.ResponseWriter, r *http.Request) {
	stats := h.ledger.Stats()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "bid-aggregator",
		"subscribers": stats.Subscribers,
		"auctions":    stats.Auctions,
		"stats":       stats,
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (h *LedgerHandler) ListHighestBids(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.ledger.Snapshot())
}

func (h *LedgerHandler) GetHighestBid(w http.ResponseWriter, r *http.Request) {
	auctionID := mux.Vars(r)["auctionID"]

	record, ok := h.ledger.Highest(auctionID)
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no bids for auction"})
		return
	}
	h.writeJSON(w, http.StatusOK, record)
}

func (h *LedgerHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("Failed to write response", "error", err)
	}
}
