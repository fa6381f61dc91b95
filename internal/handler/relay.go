package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sakif/intake-tracker/internal/apperror"
	"github.com/sakif/intake-tracker/internal/auth"
	"github.com/sakif/intake-tracker/internal/relay"
	"github.com/sakif/intake-tracker/internal/respond"
	"github.com/sakif/intake-tracker/internal/service"
)

// RelayHandler issues relay tickets and upgrades relay sockets.
type RelayHandler struct {
	hub      *relay.Hub
	tickets  *auth.TicketService
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewRelayHandler creates a RelayHandler. allowedOrigins empty means any
// origin may open a socket; the ticket is what authenticates.
func NewRelayHandler(hub *relay.Hub, tickets *auth.TicketService, allowedOrigins []string, logger *slog.Logger) *RelayHandler {
	h := &RelayHandler{hub: hub, tickets: tickets, logger: logger}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // non-browser client
		}
		_, ok := set[origin]
		return ok
	}
}

type ticketRequest struct {
	Name string `json:"name"`
}

type ticketResponse struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HandleIssueTicket trades the shared secret (checked by middleware) for a
// short-lived relay ticket.
//
// HTTP: POST /api/relay/tickets
// REQUEST BODY: {"name": "alice"}
func (h *RelayHandler) HandleIssueTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	name, err := service.ValidateUser(req.Name)
	if err != nil {
		respond.Error(w, err)
		return
	}

	ticket, expires, err := h.tickets.Issue(name)
	if err != nil {
		h.logger.Error("failed to issue relay ticket", slog.String("error", err.Error()))
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, ticketResponse{Ticket: ticket, ExpiresAt: expires.UTC()})
}

// HandlePresence lists presence entries with their reachability.
//
// HTTP: GET /api/relay/presence
func (h *RelayHandler) HandlePresence(w http.ResponseWriter, r *http.Request) {
	entries, err := h.hub.Presence(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, entries)
}

// HandleConnect upgrades to a WebSocket and serves it until it closes.
//
// HTTP: GET /relay/ws?ticket=<ticket>  (auth.RequireTicket runs first)
func (h *RelayHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	name, ok := auth.RelayNameFromContext(r.Context())
	if !ok {
		respond.Error(w, apperror.Unauthorized("a valid relay ticket is required"))
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("relay upgrade failed", slog.String("name", name), slog.String("error", err.Error()))
		return
	}
	h.hub.Serve(name, ws)
}
