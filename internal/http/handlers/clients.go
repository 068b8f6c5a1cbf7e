package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointguardu/pgu-ai/internal/calls"
	"github.com/pointguardu/pgu-ai/internal/directory"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

const missedCallPageSize = 100

type clientStore interface {
	Put(ctx context.Context, rec *directory.ClientRecord) error
	GetByID(ctx context.Context, clientID string) (*directory.ClientRecord, error)
	List(ctx context.Context) ([]directory.ClientRecord, error)
	SaveScraped(ctx context.Context, clientID string, data directory.ScrapedData) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, rec *directory.ClientRecord)
}

type callReader interface {
	ListByClient(ctx context.Context, clientID string, limit int32) ([]calls.MissedCallRecord, error)
	ListConversation(ctx context.Context, callSid string) ([]calls.ConversationTurn, error)
}

type faqScraper interface {
	FetchFAQ(ctx context.Context, websiteURL string) ([]directory.FAQEntry, error)
}

// ClientHandler provides onboarding and dashboard read endpoints for
// client records, their missed calls, and conversation transcripts.
type ClientHandler struct {
	store   clientStore
	cache   cacheInvalidator
	calls   callReader
	scraper faqScraper
	logger  *logging.Logger
}

// NewClientHandler creates the client admin handler. The cache and scraper
// are optional.
func NewClientHandler(store clientStore, cache cacheInvalidator, callReader callReader, scraper faqScraper, logger *logging.Logger) *ClientHandler {
	if store == nil {
		panic("handlers: client store cannot be nil")
	}
	if callReader == nil {
		panic("handlers: call reader cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &ClientHandler{
		store:   store,
		cache:   cache,
		calls:   callReader,
		scraper: scraper,
		logger:  logger,
	}
}

// CreateClientRequest is the onboarding request body.
type CreateClientRequest struct {
	ClientID             string `json:"client_id,omitempty"`
	Name                 string `json:"name"`
	PhoneLine            string `json:"phone_line"`
	NotifyEmail          string `json:"notify_email,omitempty"`
	BookingURL           string `json:"booking_url,omitempty"`
	WebsiteURL           string `json:"website_url,omitempty"`
	FollowUpDelayMinutes int    `json:"follow_up_delay_minutes,omitempty"`
}

// Create handles POST /api/clients.
func (h *ClientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.PhoneLine) == "" {
		http.Error(w, `{"error": "name and phone_line are required"}`, http.StatusBadRequest)
		return
	}

	rec := &directory.ClientRecord{
		ClientID:             req.ClientID,
		Name:                 strings.TrimSpace(req.Name),
		PhoneLine:            strings.TrimSpace(req.PhoneLine),
		NotifyEmail:          req.NotifyEmail,
		BookingURL:           req.BookingURL,
		WebsiteURL:           req.WebsiteURL,
		FollowUpDelayMinutes: req.FollowUpDelayMinutes,
	}
	if rec.ClientID == "" {
		rec.ClientID = uuid.NewString()
	}

	if err := h.store.Put(r.Context(), rec); err != nil {
		h.logger.Error("failed to create client", "error", err, "client_id", rec.ClientID)
		http.Error(w, `{"error": "failed to create client"}`, http.StatusInternalServerError)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate(r.Context(), rec)
	}

	h.logger.Info("client created", "client_id", rec.ClientID, "phone_line", rec.PhoneLine)
	respondJSON(w, http.StatusCreated, rec)
}

// List handles GET /api/clients.
func (h *ClientHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list clients", "error", err)
		http.Error(w, `{"error": "failed to list clients"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []directory.ClientRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"clients": records, "count": len(records)})
}

// Get handles GET /api/clients/{clientID}.
func (h *ClientHandler) Get(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		http.Error(w, `{"error": "client_id required"}`, http.StatusBadRequest)
		return
	}

	rec, err := h.store.GetByID(r.Context(), clientID)
	if errors.Is(err, directory.ErrNotFound) {
		http.Error(w, `{"error": "client not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch client", "error", err, "client_id", clientID)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// MissedCalls handles GET /api/clients/{clientID}/missed-calls, newest
// first.
func (h *ClientHandler) MissedCalls(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if clientID == "" {
		http.Error(w, `{"error": "client_id required"}`, http.StatusBadRequest)
		return
	}

	records, err := h.calls.ListByClient(r.Context(), clientID, missedCallPageSize)
	if err != nil {
		h.logger.Error("failed to list missed calls", "error", err, "client_id", clientID)
		http.Error(w, `{"error": "failed to list missed calls"}`, http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []calls.MissedCallRecord{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"missed_calls": records, "count": len(records)})
}

// Conversation handles GET /api/missed-calls/{callSid}/conversation.
func (h *ClientHandler) Conversation(w http.ResponseWriter, r *http.Request) {
	callSid := chi.URLParam(r, "callSid")
	if callSid == "" {
		http.Error(w, `{"error": "call_sid required"}`, http.StatusBadRequest)
		return
	}

	turns, err := h.calls.ListConversation(r.Context(), callSid)
	if err != nil {
		h.logger.Error("failed to list conversation", "error", err, "call_sid", callSid)
		http.Error(w, `{"error": "failed to list conversation"}`, http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []calls.ConversationTurn{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"call_sid": callSid, "turns": turns, "count": len(turns)})
}

// ScrapeFAQRequest is the request body for the FAQ scrape endpoint.
type ScrapeFAQRequest struct {
	WebsiteURL string `json:"website_url"`
	ClientID   string `json:"client_id"`
}

// ScrapeFAQ handles POST /scrape/faq. The scraped question/answer pairs
// are merged into the client record for reply grounding.
func (h *ClientHandler) ScrapeFAQ(w http.ResponseWriter, r *http.Request) {
	if h.scraper == nil {
		http.Error(w, `{"error": "scraping not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var req ScrapeFAQRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "invalid JSON body"}`, http.StatusBadRequest)
		return
	}
	if req.WebsiteURL == "" || req.ClientID == "" {
		http.Error(w, `{"error": "website_url and client_id are required"}`, http.StatusBadRequest)
		return
	}

	faq, err := h.scraper.FetchFAQ(r.Context(), req.WebsiteURL)
	if err != nil {
		h.logger.Error("faq scrape failed", "error", err, "website_url", req.WebsiteURL)
		http.Error(w, `{"error": "failed to scrape website"}`, http.StatusBadGateway)
		return
	}

	data := directory.ScrapedData{
		FAQ:         faq,
		LastScraped: time.Now().UTC().Format(time.RFC3339),
	}
	if err := h.store.SaveScraped(r.Context(), req.ClientID, data); err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			http.Error(w, `{"error": "client not found"}`, http.StatusNotFound)
			return
		}
		h.logger.Error("failed to save scraped data", "error", err, "client_id", req.ClientID)
		http.Error(w, `{"error": "failed to save scraped data"}`, http.StatusInternalServerError)
		return
	}

	// Re-read so the cache drops any stale copy of the enriched record.
	if h.cache != nil {
		if rec, err := h.store.GetByID(r.Context(), req.ClientID); err == nil {
			h.cache.Invalidate(r.Context(), rec)
		}
	}

	h.logger.Info("faq scraped", "client_id", req.ClientID, "faq_count", len(faq))
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "faq_count": len(faq)})
}
