package main

import (
	"encoding/json"
	"net/http"
	"time"

	"vwap-options-bot/internal/models"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db}
}

// dateFilter scopes a query to the ?date=YYYY-MM-DD query param when
// present, using the given timestamp column.
func dateFilter(q *gorm.DB, r *http.Request, column string) (*gorm.DB, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		return q, true
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return nil, false
	}
	return q.Where(column+" >= ? AND "+column+" < ?", day, day.AddDate(0, 0, 1)), true
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// PositionsHandler returns all positions, most recent first.
func (h *APIHandler) PositionsHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := dateFilter(h.db.Order("opened_at desc"), r, "opened_at")
	if !ok {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var positions []models.Position
	if err := q.Find(&positions).Error; err != nil {
		h.log.Error("Failed to get positions from database", zap.Error(err))
		http.Error(w, "Failed to get positions", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, positions)
}

// TradesHandler returns all trades, most recent first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := dateFilter(h.db.Order("trade_timestamp desc"), r, "trade_timestamp")
	if !ok {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var trades []models.Trade
	if err := q.Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, trades)
}

// SignalsHandler returns the crossover audit log, most recent first.
func (h *APIHandler) SignalsHandler(w http.ResponseWriter, r *http.Request) {
	q, ok := dateFilter(h.db.Order("timestamp desc"), r, "timestamp")
	if !ok {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var signals []models.Signal
	if err := q.Find(&signals).Error; err != nil {
		h.log.Error("Failed to get signals from database", zap.Error(err))
		http.Error(w, "Failed to get signals", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, signals)
}

// DailyPnLHandler returns the aggregate row for one trading day.
func (h *APIHandler) DailyPnLHandler(w http.ResponseWriter, r *http.Request) {
	date := mux.Vars(r)["date"]
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	var row models.DailyPnL
	err := h.db.Where("date = ?", date).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		http.Error(w, "No trading activity for date", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("Failed to get daily pnl from database", zap.Error(err))
		http.Error(w, "Failed to get daily pnl", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, row)
}

// StatusResponse is the structure for the /api/status endpoint.
type StatusResponse struct {
	OpenPosition *models.Position `json:"open_position"`
	TodayPnL     decimal.Decimal  `json:"today_pnl"`
	TotalTrades  int              `json:"total_trades"`
	Date         string           `json:"date"`
}

// StatusHandler returns the current open position and today's running totals.
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Date: models.DateKey(time.Now())}

	var open models.Position
	err := h.db.Where("status = ?", models.PositionStatusOpen).First(&open).Error
	if err == nil {
		resp.OpenPosition = &open
	} else if err != gorm.ErrRecordNotFound {
		h.log.Error("Failed to get open position", zap.Error(err))
		http.Error(w, "Failed to get status", http.StatusInternalServerError)
		return
	}

	var today models.DailyPnL
	if err := h.db.Where("date = ?", resp.Date).First(&today).Error; err == nil {
		resp.TodayPnL = today.RealizedPnL
		resp.TotalTrades = today.TotalTrades
	}

	h.writeJSON(w, resp)
}

// HealthHandler reports liveness.
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK\n")); err != nil {
		h.log.Debug("Failed to write health response", zap.Error(err))
	}
}
