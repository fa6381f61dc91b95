package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TicketLifetime is how long a relay ticket may wait before it is used to
// open a socket. The socket itself outlives the ticket.
const TicketLifetime = 5 * time.Minute

const ticketIssuer = "intake-tracker"

// TicketService issues and checks relay tickets.
//
// A browser cannot set an Authorization header on a WebSocket upgrade, so a
// client first trades the shared secret for a ticket (POST
// /api/relay/tickets) and then passes it as ?ticket= on the upgrade URL. The
// ticket is an HS256 JWT whose subject is the relay name.
type TicketService struct {
	key []byte
	now func() time.Time
}

// NewTicketService creates a TicketService signing with key.
// Example: RELAY_SIGNING_KEY=$(openssl rand -hex 32)
func NewTicketService(key string) (*TicketService, error) {
	if len(key) < 16 {
		return nil, errors.New("auth: relay signing key must be at least 16 characters")
	}
	return &TicketService{key: []byte(key), now: time.Now}, nil
}

// Issue signs a ticket for name, valid for TicketLifetime.
func (s *TicketService) Issue(name string) (string, time.Time, error) {
	return s.IssueWithDuration(name, TicketLifetime)
}

// IssueWithDuration signs a ticket with a custom lifetime.
func (s *TicketService) IssueWithDuration(name string, d time.Duration) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(d)

	c := jwt.RegisteredClaims{
		Subject:   name,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		Issuer:    ticketIssuer,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing ticket: %w", err)
	}
	return signed, expires, nil
}

// Validate verifies a ticket and returns the relay name it was issued for.
//
// Checked by the jwt library: signature, expiry (required), issuer, and that
// the algorithm is HS256, which blocks the "alg: none" confusion trick.
func (s *TicketService) Validate(ticket string) (string, error) {
	token, err := jwt.ParseWithClaims(
		ticket,
		&jwt.RegisteredClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.key, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(ticketIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", errors.New("auth: ticket expired")
		}
		return "", fmt.Errorf("auth: invalid ticket: %w", err)
	}

	c, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", errors.New("auth: invalid ticket claims")
	}
	if c.Subject == "" {
		return "", errors.New("auth: ticket has no subject")
	}
	return c.Subject, nil
}
