package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// Server exposes the collector's HTTP surface: event ingestion, churn score
// queries, dashboard aggregates, and account administration.
type Server struct {
	store   *Store
	gateway *Gateway
	scorer  *Scorer
	logger  *slog.Logger
}

// NewServer creates a collector server with the required collaborators wired in.
func NewServer(store *Store, gateway *Gateway, scorer *Scorer, logger *slog.Logger) *Server {
	return &Server{
		store:   store,
		gateway: gateway,
		scorer:  scorer,
		logger:  logger,
	}
}

// Router configures all collector routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Post("/api/events", s.handleIngestEvent)

	r.Route("/api/dashboard", func(r chi.Router) {
		r.Use(s.requireAccessKey)
		r.Get("/churn-score/{userID}", s.handleChurnScore)
		r.Get("/churn-users", s.handleChurnUsers)
		r.Get("/stats", s.handleStats)
		r.Get("/overview", s.handleOverview)
	})

	r.Route("/admin/accounts", func(r chi.Router) {
		r.Post("/", s.handleCreateAccount)
		r.Get("/", s.handleListAccounts)
	})

	return r
}

func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID   string         `json:"accountId"`
		UserID      string         `json:"userId"`
		EventType   string         `json:"eventType"`
		Payload     map[string]any `json:"payload"`
		ClientEmail string         `json:"clientEmail"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if payload.AccountID == "" || payload.UserID == "" || payload.EventType == "" {
		writeError(w, http.StatusBadRequest, "accountId, userId, and eventType are required")
		return
	}
	if payload.Payload == nil {
		payload.Payload = map[string]any{}
	}

	event := Event{
		AccountID:   payload.AccountID,
		UserID:      payload.UserID,
		Type:        EventType(payload.EventType),
		Payload:     payload.Payload,
		ClientEmail: payload.ClientEmail,
	}
	if err := s.gateway.Ingest(r.Context(), event); err != nil {
		switch {
		case errors.Is(err, ErrUnknownAccount):
			writeError(w, http.StatusUnauthorized, "Unauthorized")
		case errors.Is(err, ErrEventNotAllowed):
			writeError(w, http.StatusForbidden, "Event not allowed for your subscription plan")
		default:
			s.logger.Error("event ingestion failed", "account_id", event.AccountID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "Event saved successfully"})
}

func (s *Server) handleChurnScore(w http.ResponseWriter, r *http.Request) {
	account := s.accountFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	if strings.TrimSpace(userID) == "" {
		writeError(w, http.StatusBadRequest, "userID required")
		return
	}
	score, err := s.scorer.Score(r.Context(), account.AccountID, userID)
	if err != nil {
		s.logger.Error("churn score failed", "account_id", account.AccountID, "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"churnScore": score})
}

// handleChurnUsers scores every user seen for the account, descending by
// risk. Scores come straight from the scorer (store plus shared cache), not
// from a loopback call to the single-score endpoint.
func (s *Server) handleChurnUsers(w http.ResponseWriter, r *http.Request) {
	account := s.accountFromContext(r.Context())
	userIDs, err := s.store.ListUserIDs(r.Context(), account.AccountID)
	if err != nil {
		s.logger.Error("list users failed", "account_id", account.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	scores := make([]UserScore, 0, len(userIDs))
	for _, userID := range userIDs {
		score, err := s.scorer.Score(r.Context(), account.AccountID, userID)
		if err != nil {
			s.logger.Error("churn score failed", "account_id", account.AccountID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		email, _, err := s.store.IdentityEmail(r.Context(), account.AccountID, userID)
		if err != nil {
			s.logger.Error("identity lookup failed", "account_id", account.AccountID, "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}
		scores = append(scores, UserScore{UserID: userID, Email: email, ChurnScore: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].ChurnScore > scores[j].ChurnScore
	})
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	account := s.accountFromContext(r.Context())
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	stats, err := s.store.Stats(r.Context(), account.AccountID, filter)
	if err != nil {
		s.logger.Error("stats aggregation failed", "account_id", account.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	account := s.accountFromContext(r.Context())
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	events, err := s.store.RecentEvents(r.Context(), account.AccountID, filter, 100)
	if err != nil {
		s.logger.Error("event overview failed", "account_id", account.AccountID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if events == nil {
		events = []Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Email string `json:"email"`
		Plan  string `json:"plan"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if strings.TrimSpace(payload.Email) == "" || strings.TrimSpace(payload.Plan) == "" {
		writeError(w, http.StatusBadRequest, "email and plan are required")
		return
	}
	plan, err := ParsePlan(payload.Plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	account, err := s.store.CreateAccount(r.Context(), payload.Email, plan)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%s", err.Error())
		return
	}
	s.logger.Info("account created", "account_id", account.AccountID, "plan", string(account.Plan))
	writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list accounts: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type contextKey string

const accountContextKey contextKey = "collector.account"

// requireAccessKey authenticates dashboard reads with the account's access
// key and stashes the account on the request context.
func (s *Server) requireAccessKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-Access-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "Missing access key")
			return
		}
		account, err := s.store.GetAccountByKey(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusForbidden, "Invalid access key")
			return
		}
		ctx := context.WithValue(r.Context(), accountContextKey, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) accountFromContext(ctx context.Context) Account {
	account, _ := ctx.Value(accountContextKey).(Account)
	return account
}

func parseEventFilter(r *http.Request) (EventFilter, error) {
	filter := EventFilter{
		EventType: EventType(r.URL.Query().Get("eventType")),
		UserID:    r.URL.Query().Get("userID"),
	}
	if start := strings.TrimSpace(r.URL.Query().Get("startDate")); start != "" {
		ts, err := parseTime(start)
		if err != nil {
			return EventFilter{}, fmt.Errorf("startDate: %w", err)
		}
		filter.Start = &ts
	}
	if end := strings.TrimSpace(r.URL.Query().Get("endDate")); end != "" {
		ts, err := parseTime(end)
		if err != nil {
			return EventFilter{}, fmt.Errorf("endDate: %w", err)
		}
		// A bare date means the whole day.
		if ts.Hour() == 0 && ts.Minute() == 0 && ts.Second() == 0 {
			ts = ts.Add(24*time.Hour - time.Nanosecond)
		}
		filter.End = &ts
	}
	return filter, nil
}

func parseTime(value string) (time.Time, error) {
	formats := []string{time.RFC3339, "2006-01-02"}
	for _, format := range formats {
		if ts, err := time.Parse(format, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, errors.New("invalid time format, use RFC3339 or YYYY-MM-DD")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]any{
		"message": strings.TrimSpace(fmt.Sprintf(format, args...)),
	})
}
