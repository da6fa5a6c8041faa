package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/ah-its-andy/convertbot/internal/converter"
	"github.com/ah-its-andy/convertbot/internal/notify"
	"github.com/ah-its-andy/convertbot/internal/session"
	"github.com/ah-its-andy/convertbot/internal/storage"
	"github.com/ah-its-andy/convertbot/internal/worker"
)

type fakeFFmpeg struct{ err error }

func (f fakeFFmpeg) Locate(context.Context) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "/usr/bin/ffmpeg", nil
}

func (f fakeFFmpeg) Version(context.Context) (string, error) {
	return "ffmpeg version 6.1", f.err
}

type testEnv struct {
	srv    *Server
	orch   *worker.Orchestrator
	events *notify.EventBus
}

func newTestEnv(t *testing.T, limit rate.Limit, burst int) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := session.NewStore()
	reg := converter.NewRegistry()
	converter.RegisterBuiltinConverters(reg, []string{"image", "document"}, converter.BuiltinDeps{})
	blobs, err := storage.NewBlobStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	queue := worker.NewQueue(8)
	bus := notify.NewEventBus(100)
	outbox := notify.NewOutbox()
	orch := worker.NewOrchestrator(worker.Deps{
		Store:      store,
		Dispatcher: converter.NewDispatcher(reg, t.TempDir()),
		Blobs:      blobs,
		Queue:      queue,
		Listener:   notify.NewListener(bus, outbox, nil),
	})
	srv := NewServer(Deps{
		Orchestrator: orch,
		Store:        store,
		Queue:        queue,
		Blobs:        blobs,
		Registry:     reg,
		Events:       bus,
		Outbox:       outbox,
		FFmpeg:       fakeFFmpeg{},
		RateLimit:    limit,
		RateBurst:    burst,
	})
	return &testEnv{srv: srv, orch: orch, events: bus}
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, user, name, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte(content))
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/users/"+user+"/files", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	e.srv.Router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestConversionFlow(t *testing.T) {
	env := newTestEnv(t, 0, 0)

	if w := env.do(t, http.MethodPost, "/api/users/u1/job", `{"kind":"txt_to_docx"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("select without consent: %d %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPost, "/api/users/u1/consent", ""); w.Code != http.StatusOK {
		t.Fatalf("consent: %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/users/u1/job", `{"kind":"txt_to_docx"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("select: %d %s", w.Code, w.Body)
	}
	var sel struct {
		Extensions []string `json:"extensions"`
	}
	decode(t, w, &sel)
	if len(sel.Extensions) != 2 {
		t.Fatalf("extensions = %v", sel.Extensions)
	}

	if w := env.upload(t, "u1", "notes.txt", "first line\nsecond line"); w.Code != http.StatusCreated {
		t.Fatalf("upload: %d %s", w.Code, w.Body)
	}
	if w := env.upload(t, "u1", "photo.jpg", "x"); w.Code != http.StatusBadRequest {
		t.Fatalf("wrong extension: %d %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodGet, "/api/users/u1/job", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "notes.txt") {
		t.Fatalf("status: %d %s", w.Code, w.Body)
	}

	if w := env.do(t, http.MethodPost, "/api/users/u1/convert", ""); w.Code != http.StatusAccepted {
		t.Fatalf("convert: %d %s", w.Code, w.Body)
	}
	if w := env.do(t, http.MethodPost, "/api/users/u1/convert", ""); w.Code != http.StatusConflict {
		t.Fatalf("second convert: %d %s", w.Code, w.Body)
	}

	if _, err := env.orch.Run(context.Background(), "u1"); err != nil {
		t.Fatal(err)
	}

	w = env.do(t, http.MethodGet, "/api/users/u1/events?since=0", "")
	var ev struct {
		Events  []notify.Event `json:"events"`
		LastSeq int64          `json:"last_seq"`
	}
	decode(t, w, &ev)
	var resultID string
	types := map[notify.EventType]int{}
	for _, e := range ev.Events {
		types[e.Type]++
		if e.Type == notify.EventResult {
			resultID = e.ResultID
		}
	}
	if types[notify.EventFileAccepted] != 1 || types[notify.EventFileRejected] != 1 || types[notify.EventBatchComplete] != 1 {
		t.Fatalf("event types = %v", types)
	}
	if resultID == "" {
		t.Fatal("no result event")
	}

	w = env.do(t, http.MethodGet, "/api/users/u1/results/"+resultID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("download: %d", w.Code)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Fatal("result is not a docx container")
	}
	if !strings.Contains(w.Header().Get("Content-Disposition"), "notes_converted.docx") {
		t.Fatalf("disposition = %q", w.Header().Get("Content-Disposition"))
	}
	if w := env.do(t, http.MethodGet, "/api/users/u1/results/"+resultID, ""); w.Code != http.StatusNotFound {
		t.Fatalf("second download: %d", w.Code)
	}

	if w := env.do(t, http.MethodGet, "/api/users/u1/job", ""); w.Code != http.StatusNotFound {
		t.Fatalf("job after run: %d", w.Code)
	}
}

func TestUploadWithoutJob(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	w := env.upload(t, "u2", "a.txt", "hello")
	if w.Code != http.StatusNotFound {
		t.Fatalf("code = %d %s", w.Code, w.Body)
	}
	if got := env.events.Since("u2", 0); len(got) != 1 || got[0].Type != notify.EventFileRejected {
		t.Fatalf("events = %+v", got)
	}
}

func TestCancelJob(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	env.do(t, http.MethodPost, "/api/users/u3/consent", "")
	env.do(t, http.MethodPost, "/api/users/u3/job", `{"kind":"png_to_jpg"}`)

	var resp struct {
		Cancelled bool `json:"cancelled"`
	}
	decode(t, env.do(t, http.MethodDelete, "/api/users/u3/job", ""), &resp)
	if !resp.Cancelled {
		t.Fatal("job not cancelled")
	}
	decode(t, env.do(t, http.MethodDelete, "/api/users/u3/job", ""), &resp)
	if resp.Cancelled {
		t.Fatal("second cancel reported success")
	}
}

func TestCloudPreference(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	if w := env.do(t, http.MethodPost, "/api/users/u4/cloud", `{"enabled":true}`); w.Code != http.StatusConflict {
		t.Fatalf("code = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/users/u4/cloud", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
	env.srv.deps.CloudAvailable = true
	if w := env.do(t, http.MethodPost, "/api/users/u4/cloud", `{"enabled":true}`); w.Code != http.StatusOK {
		t.Fatalf("code = %d", w.Code)
	}
	if !env.srv.deps.Store.CloudEnabled("u4") {
		t.Fatal("preference not stored")
	}
}

func TestRateLimitPerUser(t *testing.T) {
	env := newTestEnv(t, rate.Limit(0.001), 2)
	for i := 0; i < 2; i++ {
		if w := env.do(t, http.MethodPost, "/api/users/u5/consent", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
	if w := env.do(t, http.MethodPost, "/api/users/u5/consent", ""); w.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/users/u6/consent", ""); w.Code != http.StatusOK {
		t.Fatalf("other user limited: %d", w.Code)
	}
	if w := env.do(t, http.MethodGet, "/api/kinds", ""); w.Code != http.StatusOK {
		t.Fatalf("kinds limited: %d", w.Code)
	}
}

func TestKindsAndConverters(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	var kinds []KindResponse
	decode(t, env.do(t, http.MethodGet, "/api/kinds", ""), &kinds)
	if len(kinds) != 21 {
		t.Fatalf("kinds = %d", len(kinds))
	}

	if w := env.do(t, http.MethodPost, "/api/converters/image/disable", ""); w.Code != http.StatusOK {
		t.Fatalf("disable: %d", w.Code)
	}
	var infos []converter.ConverterInfo
	decode(t, env.do(t, http.MethodGet, "/api/converters", ""), &infos)
	for _, info := range infos {
		if info.Name == "image" && info.Enabled {
			t.Fatal("image still enabled")
		}
	}
	if w := env.do(t, http.MethodPost, "/api/converters/nope/enable", ""); w.Code != http.StatusNotFound {
		t.Fatalf("unknown converter: %d", w.Code)
	}
}

func TestDiagnosticsAndStats(t *testing.T) {
	env := newTestEnv(t, 0, 0)
	var diag struct {
		FFmpeg map[string]any `json:"ffmpeg"`
	}
	decode(t, env.do(t, http.MethodGet, "/api/diagnostics", ""), &diag)
	if diag.FFmpeg["available"] != true || diag.FFmpeg["version"] != "ffmpeg version 6.1" {
		t.Fatalf("diagnostics = %+v", diag.FFmpeg)
	}

	env.srv.deps.FFmpeg = fakeFFmpeg{err: errors.New("ffmpeg executable not found")}
	diag.FFmpeg = nil
	decode(t, env.do(t, http.MethodGet, "/api/diagnostics", ""), &diag)
	if diag.FFmpeg["available"] != false || diag.FFmpeg["error"] == nil {
		t.Fatalf("diagnostics = %+v", diag.FFmpeg)
	}

	w := env.do(t, http.MethodGet, "/api/stats", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "active_jobs") {
		t.Fatalf("stats: %d %s", w.Code, w.Body)
	}
	w = env.do(t, http.MethodGet, "/api/tasks", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Fatalf("tasks: %d %s", w.Code, w.Body)
	}
}
