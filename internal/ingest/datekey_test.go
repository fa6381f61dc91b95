package ingest

import (
	"testing"
	"time"
)

func TestParseDateKey(t *testing.T) {
	plus5 := time.FixedZone("+05:00", 5*60*60)

	tests := []struct {
		raw         string
		loc         *time.Location
		wantInstant time.Time
		wantHasTime bool
	}{
		{"2024-05-06T08:15:00Z", nil, time.Date(2024, 5, 6, 8, 15, 0, 0, time.UTC), true},
		{"2024-05-06T08:15:00.250+02:00", nil, time.Date(2024, 5, 6, 6, 15, 0, 250e6, time.UTC), true},
		{"2024-05-06T08:15:00", plus5, time.Date(2024, 5, 6, 3, 15, 0, 0, time.UTC), true},
		{"2024-05-06T08:15", nil, time.Date(2024, 5, 6, 8, 15, 0, 0, time.UTC), true},
		{"2024-05-06 08:15:00", nil, time.Date(2024, 5, 6, 8, 15, 0, 0, time.UTC), true},
		{"2024-05-06", nil, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			k, err := ParseDateKey(tt.raw, tt.loc)
			if err != nil {
				t.Fatalf("ParseDateKey() error = %v", err)
			}
			if !k.Instant.Equal(tt.wantInstant) {
				t.Errorf("Instant = %v, want %v", k.Instant, tt.wantInstant)
			}
			if k.HasTime != tt.wantHasTime {
				t.Errorf("HasTime = %v, want %v", k.HasTime, tt.wantHasTime)
			}
		})
	}
}

func TestParseDateKey_Rejects(t *testing.T) {
	for _, raw := range []string{"", "yesterday", "2024-13-01", "06/05/2024", "2024-05-06T25:00:00Z"} {
		if _, err := ParseDateKey(raw, nil); err == nil {
			t.Errorf("ParseDateKey(%q) succeeded, want an error", raw)
		}
	}
}

func TestDateKeyIn_KeepsCalendarDateOfDateOnlyKeys(t *testing.T) {
	west := time.FixedZone("-08:00", -8*60*60)

	k, err := ParseDateKey("2024-05-06", time.UTC)
	if err != nil {
		t.Fatal(err)
	}

	got := k.In(west)
	if got.Day() != 6 || got.Weekday() != time.Monday {
		t.Errorf("In(-08:00) = %v, want Monday the 6th", got)
	}
}
