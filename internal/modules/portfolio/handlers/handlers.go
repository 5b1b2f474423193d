// Package handlers provides HTTP handlers for portfolio operations.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ashwinm/foliotrack/internal/domain"
	"github.com/ashwinm/foliotrack/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests. It is thin glue: decode,
// call the service, encode plain data back.
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes mounts the portfolio routes on a chi router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/portfolios", h.HandleList)
	r.Post("/portfolios", h.HandleCreate)
	r.Get("/portfolios/{name}", h.HandleGet)
	r.Delete("/portfolios/{name}", h.HandleDelete)
	r.Get("/portfolios/{name}/metrics", h.HandleMetrics)
	r.Post("/portfolios/{name}/positions", h.HandleAddPosition)
	r.Patch("/portfolios/{name}/positions/{ticker}", h.HandleModifyPosition)
	r.Delete("/portfolios/{name}/positions/{ticker}", h.HandleRemovePosition)
	r.Post("/portfolios/{name}/positions/{ticker}/shares", h.HandleManageShares)
	r.Post("/portfolios/{name}/prune", h.HandlePrune)
	r.Post("/prices/refresh", h.HandleRefreshPrices)
	r.Post("/history/undo", h.HandleUndo)
	r.Post("/history/redo", h.HandleRedo)
	r.Get("/history", h.HandleHistory)
}

// CreatePortfolioRequest represents a request to create a portfolio
type CreatePortfolioRequest struct {
	Name string `json:"name"`
}

// AddPositionRequest represents a request to add a position
type AddPositionRequest struct {
	StockName     string  `json:"stock_name"`
	Ticker        string  `json:"ticker"`
	Quantity      int64   `json:"quantity"`
	PurchasePrice float64 `json:"purchase_price"`
	PurchaseDate  string  `json:"purchase_date,omitempty"`
	Sector        string  `json:"sector,omitempty"`
}

// ManageSharesRequest represents a buy/sell adjustment
type ManageSharesRequest struct {
	Delta int64    `json:"delta"`
	Price *float64 `json:"price,omitempty"`
}

// ModifyPositionRequest represents field overwrites for a position
type ModifyPositionRequest struct {
	StockName     *string  `json:"stock_name,omitempty"`
	Ticker        *string  `json:"ticker,omitempty"`
	Quantity      *int64   `json:"quantity,omitempty"`
	PurchasePrice *float64 `json:"purchase_price,omitempty"`
	PurchaseDate  *string  `json:"purchase_date,omitempty"`
	Sector        *string  `json:"sector,omitempty"`
}

// RefreshPricesRequest represents a batch price refresh
type RefreshPricesRequest struct {
	Tickers []string `json:"tickers"`
}

// HandleList handles GET /api/portfolios
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.service.ListPortfolios(),
	})
}

// HandleCreate handles POST /api/portfolios
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.CreatePortfolio(req.Name); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": map[string]string{"name": req.Name},
	})
}

// HandleGet handles GET /api/portfolios/{name}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetPortfolio(chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": p})
}

// HandleDelete handles DELETE /api/portfolios/{name}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePortfolio(chi.URLParam(r, "name")); err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": "deleted"})
}

// HandleMetrics handles GET /api/portfolios/{name}/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	p, totals, err := h.service.ComputeMetrics(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"portfolio": p,
			"totals":    totals,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleAddPosition handles POST /api/portfolios/{name}/positions
func (h *Handler) HandleAddPosition(w http.ResponseWriter, r *http.Request) {
	var req AddPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	added, err := h.service.AddPosition(chi.URLParam(r, "name"), domain.Position{
		StockName:     req.StockName,
		Ticker:        req.Ticker,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  req.PurchaseDate,
		Sector:        req.Sector,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{"data": added})
}

// HandleManageShares handles POST /api/portfolios/{name}/positions/{ticker}/shares
func (h *Handler) HandleManageShares(w http.ResponseWriter, r *http.Request) {
	var req ManageSharesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.service.ManageShares(chi.URLParam(r, "name"), chi.URLParam(r, "ticker"), req.Delta, req.Price)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": updated})
}

// HandleModifyPosition handles PATCH /api/portfolios/{name}/positions/{ticker}
func (h *Handler) HandleModifyPosition(w http.ResponseWriter, r *http.Request) {
	var req ModifyPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.service.ModifyPosition(chi.URLParam(r, "name"), chi.URLParam(r, "ticker"), portfolio.FieldUpdates{
		StockName:     req.StockName,
		Ticker:        req.Ticker,
		Quantity:      req.Quantity,
		PurchasePrice: req.PurchasePrice,
		PurchaseDate:  req.PurchaseDate,
		Sector:        req.Sector,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": updated})
}

// HandleRemovePosition handles DELETE /api/portfolios/{name}/positions/{ticker}
func (h *Handler) HandleRemovePosition(w http.ResponseWriter, r *http.Request) {
	removed, err := h.service.RemovePosition(chi.URLParam(r, "name"), chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"data": removed})
}

// HandlePrune handles POST /api/portfolios/{name}/prune
func (h *Handler) HandlePrune(w http.ResponseWriter, r *http.Request) {
	pruned, err := h.service.Prune(chi.URLParam(r, "name"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]int{"pruned": pruned},
	})
}

// HandleRefreshPrices handles POST /api/prices/refresh
func (h *Handler) HandleRefreshPrices(w http.ResponseWriter, r *http.Request) {
	var req RefreshPricesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Error().Err(err).Msg("Failed to decode request body")
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	// Unresolved tickers render as null, the degraded-data marker the
	// UI is expected to display.
	prices := h.service.RefreshPrices(r.Context(), req.Tickers)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": prices,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleUndo handles POST /api/history/undo
func (h *Handler) HandleUndo(w http.ResponseWriter, r *http.Request) {
	description, err := h.service.Undo()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"undone": description},
	})
}

// HandleRedo handles POST /api/history/redo
func (h *Handler) HandleRedo(w http.ResponseWriter, r *http.Request) {
	description, err := h.service.Redo()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]string{"redone": description},
	})
}

// HandleHistory handles GET /api/history
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	undo, redo := h.service.HistoryDepths()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]int{"undo": undo, "redo": redo},
	})
}

// writeDomainError maps domain errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPortfolioNotFound),
		errors.Is(err, domain.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicatePortfolio),
		errors.Is(err, domain.ErrDuplicateTicker):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInsufficientShares),
		errors.Is(err, domain.ErrNothingToUndo),
		errors.Is(err, domain.ErrNothingToRedo):
		status = http.StatusUnprocessableEntity
	default:
		h.log.Error().Err(err).Msg("Unexpected error")
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
	})
}

// writeJSON writes a JSON response with a status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
