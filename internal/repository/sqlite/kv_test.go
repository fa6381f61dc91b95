package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/intake-tracker/internal/apperror"
)

// newTestDB opens a fresh in-memory database per test.
// t.Helper() makes failures point at the caller's line, and t.Cleanup closes
// the database when the test (or subtest) finishes.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPutGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.Put(ctx, "alice", `{"2024-05-06":{}}`); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := db.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != `{"2024-05-06":{}}` {
		t.Errorf("Get() = %q", got)
	}
}

func TestPut_Overwrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Put(ctx, "alice", "v1")
	if err := db.Put(ctx, "alice", "v2"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, _ := db.Get(ctx, "alice")
	if got != "v2" {
		t.Errorf("Get() = %q, want %q", got, "v2")
	}
}

func TestGet_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Get(context.Background(), "nobody")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_ = db.Put(ctx, "alice", "v1")
	if err := db.Delete(ctx, "alice"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := db.Get(ctx, "alice"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}

	// Deleting again is not an error.
	if err := db.Delete(ctx, "alice"); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestList_Prefix(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, k := range []string{"bob", "presence:bob", "alice", "presence:alice", "100%_user"} {
		if err := db.Put(ctx, k, "x"); err != nil {
			t.Fatalf("Put(%q) error = %v", k, err)
		}
	}

	tests := []struct {
		name   string
		prefix string
		want   []string
	}{
		{"empty prefix lists all", "", []string{"100%_user", "alice", "bob", "presence:alice", "presence:bob"}},
		{"presence prefix", "presence:", []string{"presence:alice", "presence:bob"}},
		{"wildcard characters are literal", "100%", []string{"100%_user"}},
		{"no match", "zed", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.List(ctx, tt.prefix)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("List(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("List(%q)[%d] = %q, want %q", tt.prefix, i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClosedDB_ReturnsUnavailable(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	db.Close()

	_, err = db.Get(context.Background(), "alice")
	if !errors.Is(err, apperror.ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}
