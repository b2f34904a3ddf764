package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"options-anomaly-trader/internal/clock"
	"options-anomaly-trader/internal/models"
)

const defaultFileLimit = 100

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log   *zap.Logger
	db    *gorm.DB
	clock clock.Clock
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, clk clock.Clock) *APIHandler {
	return &APIHandler{log: log, db: db, clock: clk}
}

// Routes registers the API endpoints on mux.
func (h *APIHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/trades", h.TradesHandler)
	mux.HandleFunc("/api/statistics", h.StatisticsHandler)
	mux.HandleFunc("/api/portfolio", h.PortfolioHandler)
	mux.HandleFunc("/api/processed-files", h.ProcessedFilesHandler)
}

// TradesHandler returns every position, open or closed, newest first.
func (h *APIHandler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	var trades []models.Transaction
	if err := h.db.Order("buy_date desc").Order("id desc").Find(&trades).Error; err != nil {
		h.log.Error("Failed to get trades from database", zap.Error(err))
		http.Error(w, "Failed to get trades", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, trades)
}

// StatsDetail holds calculated statistics for a given period.
type StatsDetail struct {
	TotalTrades      int64           `json:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          float64         `json:"win_rate"`
	TotalGain        decimal.Decimal `json:"total_gain"`
}

func (s *StatsDetail) add(gain decimal.Decimal) {
	s.TotalTrades++
	if gain.IsPositive() {
		s.ProfitableTrades++
	}
	s.TotalGain = s.TotalGain.Add(gain)
}

func (s *StatsDetail) finish() {
	if s.TotalTrades > 0 {
		s.WinRate = float64(s.ProfitableTrades) / float64(s.TotalTrades)
	}
}

// StatisticsResponse is the structure for the /api/statistics endpoint.
type StatisticsResponse struct {
	Since24h StatsDetail `json:"since_24h"`
	AllTime  StatsDetail `json:"all_time"`
}

// StatisticsHandler calculates win rate and gain over closed positions.
func (h *APIHandler) StatisticsHandler(w http.ResponseWriter, r *http.Request) {
	var closed []models.Transaction
	if err := h.db.Where("is_holding = ?", false).Find(&closed).Error; err != nil {
		h.log.Error("Failed to get trades for statistics", zap.Error(err))
		http.Error(w, "Failed to calculate statistics", http.StatusInternalServerError)
		return
	}

	since24h := h.clock.Now().Add(-24 * time.Hour)
	resp := StatisticsResponse{
		Since24h: StatsDetail{TotalGain: decimal.Zero},
		AllTime:  StatsDetail{TotalGain: decimal.Zero},
	}
	for _, t := range closed {
		resp.AllTime.add(t.Gain)
		if t.SellDate != nil && t.SellDate.After(since24h) {
			resp.Since24h.add(t.Gain)
		}
	}
	resp.AllTime.finish()
	resp.Since24h.finish()
	h.writeJSON(w, resp)
}

// PortfolioResponse is the account and its open positions.
type PortfolioResponse struct {
	Account  models.Account       `json:"account"`
	Holdings []models.Transaction `json:"holdings"`
}

// PortfolioHandler returns the paper account and open positions.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	var resp PortfolioResponse
	if err := h.db.First(&resp.Account, models.AccountID).Error; err != nil {
		h.log.Error("Failed to get account", zap.Error(err))
		http.Error(w, "Failed to get portfolio", http.StatusInternalServerError)
		return
	}
	if err := h.db.Where("is_holding = ?", true).Order("symbol").Find(&resp.Holdings).Error; err != nil {
		h.log.Error("Failed to get holdings", zap.Error(err))
		http.Error(w, "Failed to get portfolio", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, resp)
}

// ProcessedFilesHandler returns the newest ledger entries. Accepts optional
// folder, status and limit query parameters.
func (h *APIHandler) ProcessedFilesHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultFileLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	q := h.db.Order("processed_time desc").Order("id desc").Limit(limit)
	if folder := r.URL.Query().Get("folder"); folder != "" {
		q = q.Where("folder_name = ?", folder)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	var files []models.ProcessedFile
	if err := q.Find(&files).Error; err != nil {
		h.log.Error("Failed to get processed files", zap.Error(err))
		http.Error(w, "Failed to get processed files", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, files)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
