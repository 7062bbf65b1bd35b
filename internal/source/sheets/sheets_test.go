package sheets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "rosterbot/pkg/logx"
)

const sampleCSV = `"Timestamp","Name:","PARTICIPATION Date (NOT birthday!)"
"7/21/2025 10:00:00","Alice","7/27/2025"
"7/21/2025 10:05:00","Bob","7/27/2025 (Sunday)"
"7/21/2025 10:06:00","Carol","8/3/2025"
"7/21/2025 10:07:00","","7/27/2025"
"7/21/2025 10:08:00","Dave","7/27/2025"
`

func TestParticipantsFiltersByWeek(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("tqx") != "out:csv" {
			t.Errorf("missing tqx param, got %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	f, err := New(Config{SpreadsheetID: "doc123", BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sunday := time.Date(2025, 7, 27, 0, 0, 0, 0, time.UTC)
	got, err := f.Participants(context.Background(), sunday)
	if err != nil {
		t.Fatalf("Participants: %v", err)
	}

	want := []string{"Alice", "Bob", "Dave"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}

func TestParticipantsMissingColumn(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("\"Timestamp\",\"Something Else\"\n\"x\",\"y\"\n"))
	}))
	defer srv.Close()

	f, err := New(Config{SpreadsheetID: "doc123", BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Participants(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for missing columns")
	}
}

func TestParticipantsServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f, err := New(Config{SpreadsheetID: "doc123", BaseURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := f.Participants(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestNewRequiresSpreadsheetID(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error for missing spreadsheet id")
	}
}
