package auth

import (
	"strings"
	"testing"
	"time"
)

func newTestTicketService(t *testing.T) *TicketService {
	t.Helper()
	ts, err := NewTicketService("test-signing-key-at-least-16")
	if err != nil {
		t.Fatalf("NewTicketService: %v", err)
	}
	return ts
}

func TestNewTicketService_ShortKey(t *testing.T) {
	if _, err := NewTicketService("short"); err == nil {
		t.Fatal("NewTicketService() should reject keys shorter than 16 chars")
	}
}

func TestTicket_RoundTrip(t *testing.T) {
	ts := newTestTicketService(t)
	before := time.Now()

	ticket, expires, err := ts.Issue("alice")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if strings.Count(ticket, ".") != 2 {
		t.Errorf("ticket %q does not look like a JWT", ticket)
	}
	if expires.Before(before.Add(TicketLifetime - time.Second)) {
		t.Errorf("expires = %v, want about %v from now", expires, TicketLifetime)
	}

	name, err := ts.Validate(ticket)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if name != "alice" {
		t.Errorf("Validate() = %q, want %q", name, "alice")
	}
}

func TestTicket_Expired(t *testing.T) {
	ts := newTestTicketService(t)

	ticket, _, err := ts.IssueWithDuration("alice", -time.Second)
	if err != nil {
		t.Fatalf("IssueWithDuration() error = %v", err)
	}

	_, err = ts.Validate(ticket)
	if err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("Validate() error = %v, want an expiry error", err)
	}
}

func TestTicket_ExpiresAfterLifetime(t *testing.T) {
	ts := newTestTicketService(t)
	issuedAt := time.Now()
	ts.now = func() time.Time { return issuedAt }

	ticket, _, err := ts.Issue("alice")
	if err != nil {
		t.Fatal(err)
	}

	ts.now = func() time.Time { return issuedAt.Add(TicketLifetime + time.Minute) }
	if _, err := ts.Validate(ticket); err == nil {
		t.Fatal("ticket should be rejected after its lifetime")
	}
}

func TestTicket_Rejects(t *testing.T) {
	ts := newTestTicketService(t)
	other, _ := NewTicketService("a-different-signing-key!!")

	good, _, _ := ts.Issue("alice")
	foreign, _, _ := other.Issue("alice")

	tests := map[string]string{
		"empty":       "",
		"garbage":     "not.a.jwt",
		"tampered":    good[:len(good)-3] + "xxx",
		"foreign key": foreign,
	}
	for name, ticket := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ts.Validate(ticket); err == nil {
				t.Error("Validate() should fail")
			}
		})
	}
}
