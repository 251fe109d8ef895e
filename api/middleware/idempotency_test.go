package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/angelmondragon/partsrunner-backend/pkg/errors"
)

type fakeStore struct {
	data   map[string]string
	getErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

// countingHandler creates an on-demand run id per call.
type countingHandler struct {
	calls  int
	status int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	_, _ = io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	status := h.status
	if status == 0 {
		status = http.StatusCreated
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"id": h.calls}})
}

func postRun(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body))
	req = req.WithContext(WithCaller(req.Context(), 7, "dispatcher"))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{}
	handler := Idempotency(store, time.Hour, nil)(next)

	first := postRun(handler, "abc", `{"route_id":1}`)
	second := postRun(handler, "abc", `{"route_id":1}`)

	if next.calls != 1 {
		t.Fatalf("expected handler called once, got %d", next.calls)
	}
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("unexpected statuses %d %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("expected replayed body %q got %q", first.Body.String(), second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replay header")
	}
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	store := newFakeStore()
	handler := Idempotency(store, time.Hour, nil)(&countingHandler{})

	postRun(handler, "abc", `{"route_id":1}`)
	resp := postRun(handler, "abc", `{"route_id":2}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected idempotency code got %s", payload.Error.Code)
	}
}

func TestIdempotencyPassesThroughWithoutKey(t *testing.T) {
	next := &countingHandler{}
	handler := Idempotency(newFakeStore(), time.Hour, nil)(next)

	postRun(handler, "", `{}`)
	postRun(handler, "", `{}`)
	if next.calls != 2 {
		t.Fatalf("expected 2 calls got %d", next.calls)
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	store := newFakeStore()
	next := &countingHandler{status: http.StatusUnprocessableEntity}
	handler := Idempotency(store, time.Hour, nil)(next)

	postRun(handler, "abc", `{}`)
	postRun(handler, "abc", `{}`)
	if next.calls != 2 {
		t.Fatalf("expected failures to be retried, got %d calls", next.calls)
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(store.data))
	}
}

func TestIdempotencyStoreError(t *testing.T) {
	store := newFakeStore()
	store.getErr = errors.New("redis down")
	handler := Idempotency(store, time.Hour, nil)(&countingHandler{})

	resp := postRun(handler, "abc", `{}`)
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
}
