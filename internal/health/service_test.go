package health

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"rosterbot/internal/scheduler"
	logx "rosterbot/pkg/logx"
)

func TestKeepaliveHandler(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true}, "test", nil, logx.Nop())

	for _, path := range []string{"/", "/keepalive"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		s.handleKeepalive(rec, req)
		if rec.Code != 200 {
			t.Fatalf("%s: code = %d", path, rec.Code)
		}
		if got := rec.Body.String(); got != "rosterbot is alive" {
			t.Fatalf("%s: body = %q", path, got)
		}
	}

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	s.handleKeepalive(rec, req)
	if rec.Code != 404 {
		t.Fatalf("unknown path code = %d", rec.Code)
	}
}

func TestHealthzReport(t *testing.T) {
	t.Parallel()
	status := func() scheduler.Status {
		return scheduler.Status{
			Cycles:      7,
			LastOutcome: "unchanged",
			Week:        "2026-09-06",
			NextWakeAt:  time.Now().Add(time.Hour),
		}
	}
	s := New(Config{Enabled: true}, "1.2.3", status, logx.Nop())

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	s.handleHealthz(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Fatalf("content-type = %q", ct)
	}
	var rep struct {
		Status    string           `json:"status"`
		Version   string           `json:"version"`
		Scheduler scheduler.Status `json:"scheduler"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Status != "ok" || rep.Version != "1.2.3" {
		t.Fatalf("report = %+v", rep)
	}
	if rep.Scheduler.Cycles != 7 || rep.Scheduler.Week != "2026-09-06" {
		t.Fatalf("scheduler status = %+v", rep.Scheduler)
	}
}
