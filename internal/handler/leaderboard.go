package handler

import (
	"net/http"
	"time"

	"github.com/sakif/intake-tracker/internal/respond"
	"github.com/sakif/intake-tracker/internal/service"
)

// LeaderboardHandler serves the monthly calorie ranking.
type LeaderboardHandler struct {
	board *service.LeaderboardService
	now   func() time.Time
}

func NewLeaderboardHandler(board *service.LeaderboardService) *LeaderboardHandler {
	return &LeaderboardHandler{board: board, now: time.Now}
}

// HandleLeaderboard returns the ranking for a UTC month.
//
// HTTP: GET /api/leaderboard?month=YYYY-MM
func (h *LeaderboardHandler) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonth(r.URL.Query().Get("month"), h.now())
	if err != nil {
		respond.Error(w, err)
		return
	}

	board, err := h.board.Leaderboard(r.Context(), year, month)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, board)
}
