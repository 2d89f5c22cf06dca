package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/mcoot/clanadmin/internal/api/middleware"
	"github.com/mcoot/clanadmin/internal/api/request"
	"github.com/mcoot/clanadmin/internal/api/response"
	"github.com/mcoot/clanadmin/internal/services/roster"
)

const defaultHistoryLimit = 10

// MemberHandler handles member, rank and points endpoints
type MemberHandler struct {
	roster *roster.Service
}

// NewMemberHandler creates a new member handler
func NewMemberHandler(rosterService *roster.Service) *MemberHandler {
	return &MemberHandler{roster: rosterService}
}

// Get handles GET /api/v1/members/{rsn}
func (h *MemberHandler) Get(w http.ResponseWriter, r *http.Request) {
	info, err := h.roster.MemberInfo(r.Context(), mux.Vars(r)["rsn"])
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.MemberFromInfo(info))
}

// RankHistory handles GET /api/v1/members/{rsn}/rank-history
func (h *MemberHandler) RankHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			WriteError(w, NewInvalidRequestError("limit must be a non-negative integer"))
			return
		}
		limit = n
	}

	rsn := mux.Vars(r)["rsn"]
	entries, err := h.roster.RankHistory(r.Context(), rsn, limit)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RankHistoryFromEntries(rsn, entries))
}

// SetRank handles POST /api/v1/members/{rsn}/rank
func (h *MemberHandler) SetRank(w http.ResponseWriter, r *http.Request) {
	var req request.SetRankRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.Rank == "" {
		WriteError(w, NewInvalidRequestError("rank is required"))
		return
	}

	change, err := h.roster.RankUp(r.Context(), mux.Vars(r)["rsn"], req.Rank, middleware.Actor(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.RankChangeFromModel(change))
}

// BulkRank handles POST /api/v1/ranks/bulk
func (h *MemberHandler) BulkRank(w http.ResponseWriter, r *http.Request) {
	var req request.BulkRankRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if req.Rank == "" {
		WriteError(w, NewInvalidRequestError("rank is required"))
		return
	}
	if len(req.RSNs) == 0 {
		WriteError(w, NewInvalidRequestError("rsns is required"))
		return
	}

	results, err := h.roster.BulkRankUp(r.Context(), req.Rank, req.RSNs, middleware.Actor(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.BulkResults{Results: results})
}

// AddPoints handles POST /api/v1/members/{rsn}/points
func (h *MemberHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	var req request.AddPointsRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		WriteError(w, err)
		return
	}

	rsn := mux.Vars(r)["rsn"]
	balance, err := h.roster.AddPoints(r.Context(), rsn, req.Points, req.Reason, middleware.Actor(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.Points{RSN: rsn, Balance: balance})
}

// BulkPoints handles POST /api/v1/points/bulk
func (h *MemberHandler) BulkPoints(w http.ResponseWriter, r *http.Request) {
	var req request.BulkPointsRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		WriteError(w, err)
		return
	}
	if len(req.RSNs) == 0 {
		WriteError(w, NewInvalidRequestError("rsns is required"))
		return
	}

	results, err := h.roster.BulkAddPoints(r.Context(), req.RSNs, req.Points, req.Reason, middleware.Actor(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.BulkResults{Results: results})
}

// Exempt handles POST /api/v1/members/{rsn}/exemption
func (h *MemberHandler) Exempt(w http.ResponseWriter, r *http.Request) {
	var req request.ExemptionRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		WriteError(w, err)
		return
	}

	rsn := mux.Vars(r)["rsn"]
	exemption, err := h.roster.AddExemption(r.Context(), rsn, req.Reason, middleware.Actor(r.Context()))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.ExemptionFromModel(rsn, exemption))
}

// Leaderboard handles GET /api/v1/points/leaderboard
func (h *MemberHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	page := 1
	if v := r.URL.Query().Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			WriteError(w, NewInvalidRequestError("page must be a positive integer"))
			return
		}
		page = n
	}

	board, err := h.roster.PointsLeaderboard(r.Context(), page)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.LeaderboardFromPage(board))
}
