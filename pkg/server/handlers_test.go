package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orrery-dev/orrery/pkg/astro"
	"github.com/orrery-dev/orrery/pkg/query"
	"github.com/orrery-dev/orrery/pkg/subjects"
)

func newTestServer(t *testing.T, mutate func(*Config)) (*httptest.Server, *Server) {
	t.Helper()
	store := openTestStore(t)
	cfg := Config{
		Store:  store,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	srv := New(cfg)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, srv
}

func TestHandlersCRUDRoundTrip(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	client := subjects.NewClient(ts.URL)
	ctx := context.Background()

	created, err := client.Create(ctx, subjects.CreatePayload{
		Name:   "Ada",
		BornAt: bornAt(1990),
		City:   "London",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || strings.HasPrefix(created.ID, subjects.TempIDPrefix) {
		t.Errorf("server id looks wrong: %q", created.ID)
	}

	got, err := client.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Ada" {
		t.Errorf("got %q, want Ada", got.Name)
	}

	name := "Ada Lovelace"
	updated, err := client.Update(ctx, created.ID, subjects.Patch{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "Ada Lovelace" || updated.City != "London" {
		t.Errorf("patch merged wrong: %+v", updated)
	}

	list, err := client.List(ctx, subjects.Filter{City: "London"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Errorf("list wrong: %v", list)
	}

	deletedID, err := client.Delete(ctx, created.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deletedID != created.ID {
		t.Errorf("deleted id %q, want %q", deletedID, created.ID)
	}

	if _, err := client.Get(ctx, created.ID); err == nil {
		t.Error("expected not-found after delete")
	}
}

func TestHandlersValidation(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	client := subjects.NewClient(ts.URL)
	ctx := context.Background()

	_, err := client.Create(ctx, subjects.CreatePayload{Name: "  ", BornAt: bornAt(1990)})
	var apiErr *subjects.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "Name is required" {
		t.Errorf("got %d %q", apiErr.Status, apiErr.Message)
	}

	_, err = client.Create(ctx, subjects.CreatePayload{Name: "Ada"})
	if !errors.As(err, &apiErr) || apiErr.Message != "Birth date and time are required" {
		t.Errorf("missing born_at: got %v", err)
	}

	created, err := client.Create(ctx, subjects.CreatePayload{Name: "Ada", BornAt: bornAt(1990)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	empty := " "
	_, err = client.Update(ctx, created.ID, subjects.Patch{Name: &empty})
	if !errors.As(err, &apiErr) || apiErr.Message != "Name cannot be empty" {
		t.Errorf("empty name patch: got %v", err)
	}
}

func TestHandlersNotFoundEnvelope(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	client := subjects.NewClient(ts.URL)

	_, err := client.Get(context.Background(), "missing")
	var apiErr *subjects.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Code != "not_found" || apiErr.Message != "Subject not found" {
		t.Errorf("got %d %q %q", apiErr.Status, apiErr.Code, apiErr.Message)
	}
}

func TestHandlersWriteRateLimit(t *testing.T) {
	ts, _ := newTestServer(t, func(cfg *Config) {
		cfg.WriteRate = 0.001
		cfg.WriteBurst = 1
	})
	client := subjects.NewClient(ts.URL)
	ctx := context.Background()

	if _, err := client.Create(ctx, subjects.CreatePayload{Name: "First", BornAt: bornAt(1990)}); err != nil {
		t.Fatalf("first create: %v", err)
	}

	_, err := client.Create(ctx, subjects.CreatePayload{Name: "Second", BornAt: bornAt(1991)})
	var apiErr *subjects.APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %v", err)
	}
	if apiErr.Code != "rate_limited" {
		t.Errorf("code = %q", apiErr.Code)
	}

	// Reads are never limited.
	if _, err := client.List(ctx, subjects.Filter{}); err != nil {
		t.Errorf("list under limit: %v", err)
	}
}

func TestHandlersExportUnconfigured(t *testing.T) {
	ts, _ := newTestServer(t, nil)
	resp, err := http.Post(ts.URL+"/api/subjects/whatever/export", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}

	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Error.Code != "unavailable" || envelope.Error.Message != "Chart export is not configured" {
		t.Errorf("envelope = %+v", envelope.Error)
	}
}

// memExportStore is an in-memory export.Store for tests.
type memExportStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memExportStore) Put(ctx context.Context, key, contentType string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = body
	return nil
}

func (m *memExportStore) URL(ctx context.Context, key string) (string, error) {
	return "https://exports.test/" + key, nil
}

func TestHandlersExport(t *testing.T) {
	astroBackend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/natal-chart" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(astro.Chart{
			Placements: []astro.Placement{{Body: "sun", Sign: "aries", Degree: 0.5, House: 1}},
			Ascendant:  123.4,
		})
	}))
	defer astroBackend.Close()

	exports := &memExportStore{}
	ts, _ := newTestServer(t, func(cfg *Config) {
		cfg.Astro = astro.NewClient(astroBackend.URL, "test-key")
		cfg.Exports = exports
	})
	client := subjects.NewClient(ts.URL)
	ctx := context.Background()

	created, err := client.Create(ctx, subjects.CreatePayload{Name: "Ada", BornAt: bornAt(1990), Latitude: 51.5})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	resp, err := http.Post(ts.URL+"/api/subjects/"+created.ID+"/export", "application/json", nil)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Key string `json:"key"`
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.HasPrefix(result.Key, created.ID+"/") {
		t.Errorf("key = %q, want %q prefix", result.Key, created.ID+"/")
	}
	if !strings.HasSuffix(result.URL, result.Key) {
		t.Errorf("url %q does not reference key %q", result.URL, result.Key)
	}

	exports.mu.Lock()
	stored, ok := exports.objects[result.Key]
	exports.mu.Unlock()
	if !ok {
		t.Fatal("document not stored")
	}
	var doc exportDocument
	if err := json.Unmarshal(stored, &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	if doc.Subject.ID != created.ID || doc.Chart.Ascendant != 123.4 {
		t.Errorf("document wrong: %+v", doc)
	}
}

func TestLiveFeedReceivesBroadcast(t *testing.T) {
	ts, srv := newTestServer(t, nil)
	client := subjects.NewClient(ts.URL)

	store := query.NewStore[subjects.Subject](query.WithFetcher[subjects.Subject](client.Fetcher()))
	store.Set(subjects.KeyFor(subjects.Filter{}), nil)

	events := make(chan subjects.Event, 4)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/live"
	feed := subjects.NewFeed(wsURL, store,
		subjects.WithFeedLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		subjects.WithEventObserver(func(e subjects.Event) { events <- e }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		feed.Run(ctx)
		close(done)
	}()

	// Wait for the websocket client to attach before writing.
	deadline := time.Now().Add(2 * time.Second)
	for srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if srv.Hub().ClientCount() == 0 {
		t.Fatal("feed never connected")
	}

	created, err := client.Create(context.Background(), subjects.CreatePayload{Name: "Ada", BornAt: bornAt(1990)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != "created" || event.ID != created.ID {
			t.Errorf("event = %+v", event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on cancel")
	}
}
