package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cardlens/cardlens/internal/badges"
	"github.com/cardlens/cardlens/internal/domain"
	"github.com/cardlens/cardlens/internal/performance"
	"github.com/cardlens/cardlens/internal/recommend"
	"github.com/cardlens/cardlens/internal/repository"
	"github.com/cardlens/cardlens/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.Repository
	cache       domain.Cache
	bus         domain.EventBus
	pipeline    *worker.Pipeline
	recommender *recommend.Service
	tracker     *performance.Tracker
	badges      *badges.Service
	places      domain.PlacesClient
	version     string
	async       bool
}

// NewHandler creates a new API handler. async routes ingestion through
// the event bus instead of running the pipeline inline.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, pipeline *worker.Pipeline, recommender *recommend.Service, tracker *performance.Tracker, badgeSvc *badges.Service, places domain.PlacesClient, version string, async bool) *Handler {
	return &Handler{
		repo:        repo,
		cache:       cache,
		bus:         bus,
		pipeline:    pipeline,
		recommender: recommender,
		tracker:     tracker,
		badges:      badgeSvc,
		places:      places,
		version:     version,
		async:       async,
	}
}

// Recommend handles POST /recommend requests.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	var req domain.RecommendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	// An unparseable timestamp falls back to now.
	at := time.Now().UTC()
	if req.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, req.Timestamp); err == nil {
			at = t
		}
	}

	recs, err := h.recommender.Recommend(r.Context(), &req, at)
	if err != nil {
		slog.Error("recommendation failed", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "recommendation failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// RecommendCurrent handles GET /recommendations/current requests.
func (h *Handler) RecommendCurrent(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}

	loc, err := h.recommender.CurrentLocation(r.Context(), userID, lat, lng, time.Now().UTC())
	if err != nil {
		slog.Error("location recommendation failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "location recommendation failed")
		return
	}
	if loc == nil {
		// Nothing nearby, or the provider is unavailable.
		writeJSON(w, http.StatusOK, map[string]any{"recommendation": nil})
		return
	}
	writeJSON(w, http.StatusOK, loc)
}

// Performance handles GET /performance requests.
func (h *Handler) Performance(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	cardID := r.URL.Query().Get("cardId")
	if userID == "" || cardID == "" {
		writeError(w, http.StatusBadRequest, "userId and cardId are required")
		return
	}
	month := r.URL.Query().Get("month")

	summary, err := h.tracker.Summary(r.Context(), userID, cardID, month, time.Now().UTC())
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	if err != nil {
		slog.Error("performance summary failed", "card_id", cardID, "error", err)
		writeError(w, http.StatusInternalServerError, "performance summary failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// MissedBenefits handles GET /users/{userID}/missed-benefits requests.
func (h *Handler) MissedBenefits(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	missed, err := h.recommender.MissedBenefits(r.Context(), userID, limit, time.Now().UTC())
	if err != nil {
		slog.Error("missed benefit replay failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "missed benefit replay failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"missed": missed,
		"count":  len(missed),
	})
}

// IngestTransaction handles POST /transactions requests.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.UserID == "" || req.CardID == "" {
		writeError(w, http.StatusBadRequest, "userId and cardId are required")
		return
	}
	if req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	if h.async && h.bus != nil {
		payload, _ := json.Marshal(req)
		if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish transaction", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to queue transaction")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	tx := req.ToTransaction()
	agg, err := h.pipeline.Process(ctx, tx)
	if err != nil {
		slog.Error("transaction processing failed", "error", err)
		writeError(w, http.StatusInternalServerError, "transaction processing failed")
		return
	}

	resp := map[string]any{
		"transactionId": tx.ID,
		"benefit":       agg,
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetTransaction handles GET /transactions/{id} requests.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.repo.GetTransaction(r.Context(), txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// ListCards handles GET /cards requests.
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := h.repo.ListCards(r.Context())
	if err != nil {
		slog.Error("failed to list cards", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": cards,
		"count": len(cards),
	})
}

// GetCard handles GET /cards/{id} requests.
func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")

	card, err := h.repo.GetCard(r.Context(), cardID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	if err != nil {
		slog.Error("failed to get card", "id", cardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get card")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ListCardBenefits handles GET /cards/{id}/benefits requests.
func (h *Handler) ListCardBenefits(w http.ResponseWriter, r *http.Request) {
	cardID := chi.URLParam(r, "id")

	if _, err := h.repo.GetCard(r.Context(), cardID); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	benefits, err := h.repo.ListBenefitsByCard(r.Context(), cardID)
	if err != nil {
		slog.Error("failed to list benefits", "card_id", cardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list benefits")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"benefits": benefits,
		"count":    len(benefits),
	})
}

// RegisterCardRequest is the request body for registering a card.
type RegisterCardRequest struct {
	CardID   string `json:"cardId"`
	Nickname string `json:"nickname,omitempty"`
}

// RegisterUserCard handles POST /users/{userID}/cards requests.
func (h *Handler) RegisterUserCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	var req RegisterCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.CardID == "" {
		writeError(w, http.StatusBadRequest, "cardId is required")
		return
	}

	if _, err := h.repo.GetCard(ctx, req.CardID); errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}

	uc := &domain.UserCard{
		UserID:       userID,
		CardID:       req.CardID,
		Nickname:     req.Nickname,
		RegisteredAt: time.Now().UTC(),
	}
	if err := h.repo.RegisterUserCard(ctx, uc); err != nil {
		slog.Error("failed to register card", "user_id", userID, "card_id", req.CardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register card")
		return
	}
	writeJSON(w, http.StatusCreated, uc)
}

// ListUserCards handles GET /users/{userID}/cards requests.
func (h *Handler) ListUserCards(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	ucs, err := h.repo.ListUserCards(r.Context(), userID)
	if err != nil {
		slog.Error("failed to list user cards", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list user cards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cards": ucs,
		"count": len(ucs),
	})
}

// RemoveUserCard handles DELETE /users/{userID}/cards/{cardID} requests.
func (h *Handler) RemoveUserCard(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	cardID := chi.URLParam(r, "cardID")

	err := h.repo.RemoveUserCard(r.Context(), userID, cardID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "card not registered")
		return
	}
	if err != nil {
		slog.Error("failed to remove card", "user_id", userID, "card_id", cardID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to remove card")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ListUserBadges handles GET /users/{userID}/badges requests.
func (h *Handler) ListUserBadges(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	statuses, err := h.badges.UserBadges(r.Context(), userID, time.Now().UTC())
	if err != nil {
		slog.Error("failed to list badges", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list badges")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"badges": statuses,
		"count":  len(statuses),
	})
}

// RepresentativeBadgeRequest is the request body for pinning a badge.
type RepresentativeBadgeRequest struct {
	BadgeID string `json:"badgeId"`
}

// SetRepresentativeBadge handles POST /users/{userID}/badges/representative.
func (h *Handler) SetRepresentativeBadge(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req RepresentativeBadgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.BadgeID == "" {
		writeError(w, http.StatusBadRequest, "badgeId is required")
		return
	}

	err := h.badges.SetRepresentative(r.Context(), userID, req.BadgeID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "badge not found or not earned")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// NearbyPlaces handles GET /places/nearby requests.
func (h *Handler) NearbyPlaces(w http.ResponseWriter, r *http.Request) {
	if h.places == nil {
		writeError(w, http.StatusServiceUnavailable, "places provider not configured")
		return
	}

	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	if errLat != nil || errLng != nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	radius := 200
	if v := r.URL.Query().Get("radius"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			radius = n
		}
	}
	category := r.URL.Query().Get("category")

	places, err := h.places.Nearby(r.Context(), lat, lng, radius, category)
	if err != nil {
		slog.Error("places lookup failed", "error", err)
		writeError(w, http.StatusBadGateway, "places lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"places": places,
		"count":  len(places),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
