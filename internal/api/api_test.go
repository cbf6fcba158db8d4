package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"signboard/internal/board"
	"signboard/internal/content"
	"signboard/internal/dispatch"
	"signboard/internal/eventbus"
	"signboard/internal/storage"
	"signboard/internal/trigger"
	"signboard/pkg/logx"
)

type fakeSender struct {
	ok     bool
	online bool
	sent   []string
}

func (f *fakeSender) Send(ctx context.Context, tgt board.Target, message string) board.DeliveryResult {
	f.sent = append(f.sent, message)
	res := board.DeliveryResult{OK: f.ok, Target: tgt.IP}
	if !f.ok {
		res.Err = errors.New("connection refused")
	}
	return res
}

func (f *fakeSender) Probe(ctx context.Context, tgt board.Target) bool { return f.online }

func newTestHandler(t *testing.T, snd *fakeSender) *Handler {
	t.Helper()
	st, err := storage.Open(storage.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "api.db"),
	}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	engine := trigger.New(trigger.Config{Enabled: true, Workers: 1}, logx.Nop())
	engine.Start(context.Background())
	t.Cleanup(func() { engine.Stop(context.Background()) })

	resolver := content.NewResolver(nil, nil, logx.Nop())
	d := dispatch.New(st, snd, resolver, eventbus.New(), logx.Nop())
	schedules := dispatch.NewSchedules(engine, st, d, logx.Nop())

	h := NewHandler(d, schedules, st, logx.Nop())
	h.RegisterRoutes()
	return h
}

func doJSON(t *testing.T, h *Handler, method, path string, body any) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var resp Response
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, resp
}

func TestStatus(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})
	rec, resp := doJSON(t, h, http.MethodGet, "/api/status", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	data := resp.Data.(map[string]any)
	if data["status"] != "online" || data["timestamp"] == "" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestSendMessage(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ok: true}
	h := newTestHandler(t, snd)

	rec, resp := doJSON(t, h, http.MethodPost, "/api/message", map[string]string{"message": "hello board"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	if len(snd.sent) != 1 || snd.sent[0] != "hello board" {
		t.Fatalf("unexpected sends: %v", snd.sent)
	}

	// The attempt lands in the audit log.
	_, logs := doJSON(t, h, http.MethodGet, "/api/logs", nil)
	entries := logs.Data.([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	entry := entries[0].(map[string]any)
	if entry["message"] != "hello board" || entry["category"] != "quick_message" {
		t.Fatalf("unexpected entry: %v", entry)
	}
}

func TestSendMessageValidation(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/message", map[string]string{})
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400, got %d %+v", rec.Code, resp)
	}

	rec, resp = doJSON(t, h, http.MethodPost, "/api/message", map[string]string{"text": "wrong field"})
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("unknown fields must be rejected, got %d %+v", rec.Code, resp)
	}
}

func TestSendMessageDeliveryFailure(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: false})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/message", map[string]string{"message": "hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("delivery failure is not a request error: %d", rec.Code)
	}
	if resp.Success {
		t.Fatal("expected success=false for failed delivery")
	}

	// Failed attempts still show up in the audit log.
	_, logs := doJSON(t, h, http.MethodGet, "/api/logs", nil)
	if len(logs.Data.([]any)) != 1 {
		t.Fatal("failed attempt missing from log")
	}
}

func TestSendProgram(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ok: true}
	h := newTestHandler(t, snd)

	body := map[string]any{
		"type": "program",
		"widgets": []map[string]any{
			{"type": "text", "properties": map[string]any{"text": "Welcome"}},
		},
	}
	rec, resp := doJSON(t, h, http.MethodPost, "/api/program", body)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("unexpected response: %d %+v", rec.Code, resp)
	}
	if resp.Data.(map[string]any)["message"] != "Welcome" {
		t.Fatalf("unexpected data: %v", resp.Data)
	}

	_, logs := doJSON(t, h, http.MethodGet, "/api/logs", nil)
	entry := logs.Data.([]any)[0].(map[string]any)
	if entry["message"] != "Program: Welcome" || entry["category"] != "program" {
		t.Fatalf("unexpected log entry: %v", entry)
	}
}

func TestScheduleLifecycle(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/schedule", map[string]string{"time": "08:30", "message": "Good morning"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("create failed: %d %+v", rec.Code, resp)
	}
	id := int64(resp.Data.(map[string]any)["id"].(float64))

	_, list := doJSON(t, h, http.MethodGet, "/api/schedules/", nil)
	if len(list.Data.([]any)) != 1 {
		t.Fatalf("expected 1 schedule: %+v", list.Data)
	}

	rec, resp = doJSON(t, h, http.MethodPatch, "/api/schedules/"+itoa(id), map[string]bool{"active": false})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("toggle failed: %d %+v", rec.Code, resp)
	}

	rec, resp = doJSON(t, h, http.MethodDelete, "/api/schedules/"+itoa(id), nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("delete failed: %d %+v", rec.Code, resp)
	}

	rec, _ = doJSON(t, h, http.MethodDelete, "/api/schedules/"+itoa(id), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing schedule, got %d", rec.Code)
	}
}

func TestScheduleBadTime(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})
	rec, resp := doJSON(t, h, http.MethodPost, "/api/schedule", map[string]string{"time": "25:99", "message": "x"})
	if rec.Code != http.StatusBadRequest || resp.Success {
		t.Fatalf("expected 400, got %d %+v", rec.Code, resp)
	}
}

func TestBirthdays(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})

	rec, resp := doJSON(t, h, http.MethodPost, "/api/birthdays/", map[string]string{"name": "Alice", "dob": "1990-03-14"})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("add failed: %d %+v", rec.Code, resp)
	}

	rec, resp = doJSON(t, h, http.MethodPost, "/api/birthdays/", map[string]string{"name": "Bob", "dob": "14-03-1990"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad dob must be rejected, got %d", rec.Code)
	}

	_, list := doJSON(t, h, http.MethodGet, "/api/birthdays/", nil)
	entries := list.Data.([]any)
	if len(entries) != 1 {
		t.Fatalf("expected 1 birthday, got %d", len(entries))
	}
	if entries[0].(map[string]any)["name"] != "Alice" {
		t.Fatalf("unexpected entry: %v", entries[0])
	}
}

func TestBoardStatusAndSettings(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true, online: false})

	_, resp := doJSON(t, h, http.MethodGet, "/api/board/status", nil)
	data := resp.Data.(map[string]any)
	if data["online"] != false || data["ip"] != "192.168.4.1" {
		t.Fatalf("unexpected status: %v", data)
	}

	rec, resp := doJSON(t, h, http.MethodPut, "/api/board/settings", map[string]any{
		"ip": "10.0.0.5", "port": 7000, "protocol": "TCP",
		"brightness": 80, "font_size": 24, "color": "red", "effect": "static",
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("update failed: %d %+v", rec.Code, resp)
	}

	_, resp = doJSON(t, h, http.MethodGet, "/api/board/settings", nil)
	data = resp.Data.(map[string]any)
	if data["ip"] != "10.0.0.5" || data["protocol"] != "TCP" {
		t.Fatalf("settings not persisted: %v", data)
	}

	rec, _ = doJSON(t, h, http.MethodPut, "/api/board/settings", map[string]any{
		"ip": "10.0.0.5", "port": 7000, "protocol": "UDP",
		"brightness": 80, "font_size": 24, "color": "red", "effect": "static",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad protocol must be rejected, got %d", rec.Code)
	}
}

func TestAISettings(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})

	_, resp := doJSON(t, h, http.MethodGet, "/api/ai/settings", nil)
	data := resp.Data.(map[string]any)
	if data["style"] != "casual" || data["language"] != "English" || data["tone"] != "funny" {
		t.Fatalf("unexpected defaults: %v", data)
	}

	rec, resp := doJSON(t, h, http.MethodPut, "/api/ai/settings", map[string]string{
		"style": "formal", "language": "German", "tone": "warm",
	})
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("update failed: %d %+v", rec.Code, resp)
	}

	_, resp = doJSON(t, h, http.MethodGet, "/api/ai/settings", nil)
	if resp.Data.(map[string]any)["language"] != "German" {
		t.Fatalf("settings not persisted: %v", resp.Data)
	}
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})

	req := httptest.NewRequest(http.MethodOptions, "/api/message", nil)
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS header")
	}
}

func TestLogsLimitValidation(t *testing.T) {
	t.Parallel()
	h := newTestHandler(t, &fakeSender{ok: true})
	rec, _ := doJSON(t, h, http.MethodGet, "/api/logs?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
