package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/respond"
	"github.com/sakif/intake-tracker/internal/service"
)

// IntakeHandler serves the ledger endpoints.
type IntakeHandler struct {
	intake *service.IntakeService
	logger *slog.Logger
	now    func() time.Time
}

func NewIntakeHandler(intake *service.IntakeService, logger *slog.Logger) *IntakeHandler {
	return &IntakeHandler{intake: intake, logger: logger, now: time.Now}
}

type logIntakeRequest struct {
	User   string `json:"user"`
	Prompt string `json:"prompt"`
}

// HandleLog runs one intake.
//
// HTTP: POST /api/intakes
// REQUEST BODY: {"user": "alice", "prompt": "two fried eggs and toast"}
// RESPONSE: 201 with the merged record(s) for the date the meal was logged
// under, shaped like the stored ledger:
//
//	{"2024-05-20T08:00:00Z": {"foods": [...], "summary": {...}}}
func (h *IntakeHandler) HandleLog(w http.ResponseWriter, r *http.Request) {
	var req logIntakeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, err)
		return
	}

	records, err := h.intake.Log(r.Context(), req.User, req.Prompt)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, records)
}

// HandleUsers lists users with a stored ledger.
//
// HTTP: GET /api/users
func (h *IntakeHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.intake.Users(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]string{"users": users})
}

// HandleLedger returns a user's whole ledger.
//
// HTTP: GET /api/users/{user}/intakes
func (h *IntakeHandler) HandleLedger(w http.ResponseWriter, r *http.Request) {
	ledger, err := h.intake.Ledger(r.Context(), pathParam(r, "user"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, ledger)
}

// HandleReset deletes a user's whole ledger.
//
// HTTP: DELETE /api/users/{user}/intakes
func (h *IntakeHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	user := pathParam(r, "user")
	if err := h.intake.Reset(r.Context(), user); err != nil {
		respond.Error(w, err)
		return
	}
	h.logger.Info("ledger reset requested", slog.String("user", user))
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteDay removes one date-key.
//
// HTTP: DELETE /api/users/{user}/intakes/{date}
// The date must match the stored key exactly, e.g. 2024-05-20T08:00:00Z.
func (h *IntakeHandler) HandleDeleteDay(w http.ResponseWriter, r *http.Request) {
	if err := h.intake.DeleteDay(r.Context(), pathParam(r, "user"), pathParam(r, "date")); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSummary aggregates one UTC month.
//
// HTTP: GET /api/users/{user}/summary?month=YYYY-MM
// Without ?month the current UTC month is used.
func (h *IntakeHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	year, month, err := parseMonth(r.URL.Query().Get("month"), h.now())
	if err != nil {
		respond.Error(w, err)
		return
	}

	summary, err := h.intake.MonthlySummary(r.Context(), pathParam(r, "user"), year, month)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, summary)
}

// HandleToday lists the records logged on today's weekday.
//
// HTTP: GET /api/users/{user}/today
func (h *IntakeHandler) HandleToday(w http.ResponseWriter, r *http.Request) {
	records, err := h.intake.Today(r.Context(), pathParam(r, "user"))
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, records)
}

// parseMonth reads "YYYY-MM"; empty means the month of now in UTC.
func parseMonth(s string, now time.Time) (int, time.Month, error) {
	if s == "" {
		now = now.UTC()
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return 0, 0, apperror.ValidationFailed("month", "month must look like YYYY-MM")
	}
	return t.Year(), t.Month(), nil
}
