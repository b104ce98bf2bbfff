package datastore

import (
	"testing"
	"time"
)

// The analyzer writes date and time as zero padded local wall clock
// strings. These round trip checks guard the parsing contract every
// window query depends on.

func TestNoteDateTime(t *testing.T) {
	note := Note{Date: "2024-01-15", Time: "09:05:03"}

	parsed, err := note.DateTime()
	if err != nil {
		t.Fatalf("DateTime() error = %v", err)
	}

	want := time.Date(2024, 1, 15, 9, 5, 3, 0, time.Local)
	if !parsed.Equal(want) {
		t.Errorf("DateTime() = %v, want %v", parsed, want)
	}
}

func TestNoteDateTimeInvalid(t *testing.T) {
	note := Note{Date: "15/01/2024", Time: "9:05"}
	if _, err := note.DateTime(); err == nil {
		t.Error("DateTime() expected error for malformed values")
	}
}

func TestSplitDateTime(t *testing.T) {
	date, clock := SplitDateTime(time.Date(2024, 1, 5, 7, 4, 9, 0, time.Local))
	if date != "2024-01-05" {
		t.Errorf("date = %q, want zero padded 2024-01-05", date)
	}
	if clock != "07:04:09" {
		t.Errorf("clock = %q, want zero padded 07:04:09", clock)
	}
}

func TestSplitDateTimeRoundTrip(t *testing.T) {
	original := time.Date(2024, 6, 30, 23, 59, 59, 0, time.Local)
	date, clock := SplitDateTime(original)

	note := Note{Date: date, Time: clock}
	parsed, err := note.DateTime()
	if err != nil {
		t.Fatalf("DateTime() error = %v", err)
	}
	if !parsed.Equal(original) {
		t.Errorf("round trip = %v, want %v", parsed, original)
	}
}
