// Package api provides the HTTP surface of the economy engine: instant
// wagers, contest joins and views, the daily check-in, and the admin
// settlement trigger.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vpanel/economy-engine/internal/bonus"
	"github.com/vpanel/economy-engine/internal/contest"
	"github.com/vpanel/economy-engine/internal/ledger"
	"github.com/vpanel/economy-engine/internal/metrics"
	"github.com/vpanel/economy-engine/internal/model"
	"github.com/vpanel/economy-engine/internal/sched"
	"github.com/vpanel/economy-engine/internal/wager"
)

// Service handles the engine's HTTP endpoints.
type Service struct {
	wagers   *wager.Engine
	contests *contest.Engine
	bonuses  *bonus.Engine
	runner   *sched.Runner

	// Now supplies the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewService creates the API service.
func NewService(wagers *wager.Engine, contests *contest.Engine, bonuses *bonus.Engine, runner *sched.Runner) *Service {
	return &Service{
		wagers:   wagers,
		contests: contests,
		bonuses:  bonuses,
		runner:   runner,
		Now:      time.Now,
	}
}

// Register mounts the endpoints onto r, typically under /api/v1.
func (s *Service) Register(r chi.Router) {
	r.Post("/wager", s.PlayWager)
	r.Get("/wager/records", s.GetRecords)

	r.Post("/contest/join", s.JoinContest)
	r.Get("/contest/ranking", s.GetRanking)
	r.Get("/contest/history", s.GetHistory)

	r.Post("/checkin", s.CheckIn)
	r.Get("/checkin/{userID}", s.GetCheckIn)

	r.Post("/admin/draw", s.RunDraw)
}

// --- Request types ---

// WagerRequest is the JSON body for POST /wager.
type WagerRequest struct {
	UserID int64             `json:"user_id"`
	Type   model.ContestType `json:"type"`
	Stake  int               `json:"stake"` // GB or days
}

// JoinRequest is the JSON body for POST /contest/join.
type JoinRequest struct {
	UserID int64             `json:"user_id"`
	Type   model.ContestType `json:"type"`
	Stake  int               `json:"stake"`
}

// CheckInRequest is the JSON body for POST /checkin.
type CheckInRequest struct {
	UserID int64 `json:"user_id"`
}

// DrawRequest is the JSON body for POST /admin/draw. An empty date
// settles today.
type DrawRequest struct {
	Date string `json:"date"`
}

// --- Handlers ---

// PlayWager handles POST /api/v1/wager.
func (s *Service) PlayWager(w http.ResponseWriter, r *http.Request) {
	var req WagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	result, err := s.wagers.Play(r.Context(), req.UserID, req.Type, req.Stake)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.WagersTotal.WithLabelValues(string(result.Type), string(result.Tier)).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// GetRecords handles GET /api/v1/wager/records?date=YYYY-MM-DD.
func (s *Service) GetRecords(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = ledger.DateOf(s.Now())
	}

	records, err := s.wagers.Records(r.Context(), date)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []model.GameRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// JoinContest handles POST /api/v1/contest/join.
func (s *Service) JoinContest(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	entry, err := s.contests.Join(r.Context(), req.UserID, req.Type, req.Stake)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.ContestJoinsTotal.WithLabelValues(string(req.Type)).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// GetRanking handles GET /api/v1/contest/ranking?type=traffic&date=....
func (s *Service) GetRanking(w http.ResponseWriter, r *http.Request) {
	typ := model.ContestType(r.URL.Query().Get("type"))
	if typ == "" {
		typ = model.ContestTraffic
	}
	date := r.URL.Query().Get("date")
	if date == "" {
		date = ledger.DateOf(s.Now())
	}

	ranking, err := s.contests.Ranking(r.Context(), typ, date)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ranking)
}

// GetHistory handles GET /api/v1/contest/history?days=7.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 30 {
			writeError(w, "days must be between 1 and 30", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	records, err := s.contests.History(r.Context(), days)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if records == nil {
		records = []model.HistoryRecord{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(records)
}

// CheckIn handles POST /api/v1/checkin.
func (s *Service) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID <= 0 {
		writeError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	grantMB, err := s.bonuses.CheckIn(r.Context(), req.UserID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	metrics.CheckinsTotal.Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"grant_mb": grantMB})
}

// GetCheckIn handles GET /api/v1/checkin/{userID}.
func (s *Service) GetCheckIn(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, "invalid user id", http.StatusBadRequest)
		return
	}

	claimed, err := s.bonuses.CheckedIn(r.Context(), userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"claimed": claimed})
}

// RunDraw handles POST /api/v1/admin/draw, the manual settlement
// trigger. On a partial settlement the report is returned alongside a
// 500 so the operator sees exactly who was paid.
func (s *Service) RunDraw(w http.ResponseWriter, r *http.Request) {
	var req DrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Date == "" {
		req.Date = ledger.DateOf(s.Now())
	}

	report, err := s.runner.RunDraws(r.Context(), req.Date)
	if err != nil {
		var partial *model.PartialSettlementError
		if errors.As(err, &partial) && report != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"error":  err.Error(),
				"report": report,
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}

// --- Error mapping ---

// writeDomainError translates the engine's error taxonomy onto HTTP
// status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidStake), errors.Is(err, ledger.ErrInvalidDate):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrAccountNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrBusy):
		metrics.BusyRejections.Inc()
		writeError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, model.ErrAlreadyParticipated),
		errors.Is(err, model.ErrAlreadyCheckedIn),
		errors.Is(err, model.ErrInsufficientBalance),
		errors.Is(err, model.ErrNotEligible):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
