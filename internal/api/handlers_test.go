// Newsprism - Personalized News Feed and Recommendation Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/newsprism

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/newsprism/internal/content"
	"github.com/tomtom215/newsprism/internal/events"
	"github.com/tomtom215/newsprism/internal/preferences"
	"github.com/tomtom215/newsprism/internal/recommend"
	"github.com/tomtom215/newsprism/internal/taxonomy"
	"github.com/tomtom215/newsprism/internal/vectorindex"
)

// mockPrefs implements PreferenceStore for testing.
type mockPrefs struct {
	vectors map[string]preferences.WeightVector
	setErr  error
}

func (m *mockPrefs) Get(ctx context.Context, userID string) (preferences.WeightVector, error) {
	vec, ok := m.vectors[userID]
	if !ok {
		return nil, preferences.ErrNotFound
	}
	return vec, nil
}

func (m *mockPrefs) SetExplicit(ctx context.Context, userID string, categories []taxonomy.Category) error {
	if m.setErr != nil {
		return m.setErr
	}
	seen := make(map[taxonomy.Category]bool)
	valid := make([]taxonomy.Category, 0, len(categories))
	for _, c := range categories {
		if taxonomy.Valid(c) && !seen[c] {
			seen[c] = true
			valid = append(valid, c)
		}
	}
	if len(valid) == 0 {
		return preferences.ErrNoValidCategories
	}
	vec := preferences.NewZeroVector()
	for _, c := range valid {
		vec[c] = 1.0 / float64(len(valid))
	}
	if m.vectors == nil {
		m.vectors = make(map[string]preferences.WeightVector)
	}
	m.vectors[userID] = vec
	return nil
}

// mockEngine implements Recommender for testing.
type mockEngine struct {
	recs []recommend.Recommendation
	err  error
}

func (m *mockEngine) Recommend(ctx context.Context, userID string, topK int) ([]recommend.Recommendation, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.recs, nil
}

// mockArticles implements ArticleStore for testing.
type mockArticles struct {
	articles map[string]content.Article
	listErr  error
}

func (m *mockArticles) Get(ctx context.Context, id string) (content.Article, error) {
	a, ok := m.articles[id]
	if !ok {
		return content.Article{}, content.ErrNotFound
	}
	return a, nil
}

func (m *mockArticles) List(ctx context.Context) ([]content.Article, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]content.Article, 0, len(m.articles))
	for _, a := range m.articles {
		out = append(out, a)
	}
	return out, nil
}

func (m *mockArticles) Delete(ctx context.Context, id string) error {
	if _, ok := m.articles[id]; !ok {
		return content.ErrNotFound
	}
	delete(m.articles, id)
	return nil
}

func (m *mockArticles) Count(ctx context.Context) (int, error) {
	if m.listErr != nil {
		return 0, m.listErr
	}
	return len(m.articles), nil
}

// mockIndex implements Index for testing.
type mockIndex struct {
	entries    []vectorindex.Entry
	rebuildErr error
	ready      bool
}

func (m *mockIndex) Rebuild(ctx context.Context, entries []vectorindex.Entry) error {
	if m.rebuildErr != nil {
		return m.rebuildErr
	}
	m.entries = entries
	m.ready = true
	return nil
}

func (m *mockIndex) Ready() bool { return m.ready }
func (m *mockIndex) Count() int  { return len(m.entries) }
func (m *mockIndex) Dim() int {
	if len(m.entries) == 0 {
		return 0
	}
	return len(m.entries[0].Vector)
}

// mockPublisher implements ClickPublisher for testing.
type mockPublisher struct {
	clicks []events.Click
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, click events.Click) error {
	if m.err != nil {
		return m.err
	}
	m.clicks = append(m.clicks, click)
	return nil
}

type testDeps struct {
	prefs    *mockPrefs
	engine   *mockEngine
	articles *mockArticles
	index    *mockIndex
	clicks   *mockPublisher
}

func newTestServer(t *testing.T, deps testDeps) *httptest.Server {
	t.Helper()
	if deps.prefs == nil {
		deps.prefs = &mockPrefs{}
	}
	if deps.engine == nil {
		deps.engine = &mockEngine{}
	}
	if deps.articles == nil {
		deps.articles = &mockArticles{articles: map[string]content.Article{}}
	}
	if deps.index == nil {
		deps.index = &mockIndex{}
	}
	if deps.clicks == nil {
		deps.clicks = &mockPublisher{}
	}

	handler := NewHandler(deps.prefs, deps.engine, deps.articles, deps.index, deps.clicks, zerolog.Nop())
	srv := httptest.NewServer(NewRouter(handler, DefaultRouterConfig()))
	t.Cleanup(srv.Close)
	return srv
}

func decodeResponse(t *testing.T, resp *http.Response) APIResponse {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var parsed APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return parsed
}

func TestPostClick(t *testing.T) {
	clicks := &mockPublisher{}
	srv := newTestServer(t, testDeps{clicks: clicks})

	body := bytes.NewBufferString(`{"user_id":"u1","article_id":"n1"}`)
	resp, err := http.Post(srv.URL+"/api/v1/clicks", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	parsed := decodeResponse(t, resp)

	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status = %d, want 202", resp.StatusCode)
	}
	if !parsed.Success {
		t.Error("response not marked success")
	}
	if len(clicks.clicks) != 1 || clicks.clicks[0].UserID != "u1" {
		t.Errorf("published clicks = %+v", clicks.clicks)
	}
	if clicks.clicks[0].At.IsZero() {
		t.Error("click timestamp not set")
	}
}

func TestPostClickValidation(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"missing article", `{"user_id":"u1"}`},
		{"missing user", `{"article_id":"n1"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/clicks", "application/json", bytes.NewBufferString(tt.body))
			if err != nil {
				t.Fatalf("post: %v", err)
			}
			parsed := decodeResponse(t, resp)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if parsed.Error == nil {
				t.Error("error payload missing")
			}
		})
	}
}

func TestGetPreferencesNotFound(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	resp, err := http.Get(srv.URL + "/api/v1/users/stranger/preferences")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	parsed := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if parsed.Error == nil || parsed.Error.Code != ErrCodeNotFound {
		t.Errorf("error = %+v, want NOT_FOUND", parsed.Error)
	}
}

func TestPutAndGetPreferences(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	body := bytes.NewBufferString(`{"categories":["sports","TECHNOLOGY","nonsense"]}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/users/u1/preferences", body)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	parsed := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	data, _ := json.Marshal(parsed.Data)
	var view preferencesView
	if err := json.Unmarshal(data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if view.UserID != "u1" {
		t.Errorf("user_id = %q", view.UserID)
	}
	// Two valid categories split evenly; the unknown one is filtered.
	if view.Weights["sports"] != 0.5 || view.Weights["technology"] != 0.5 {
		t.Errorf("weights = %v, want sports/technology 0.5 each", view.Weights)
	}

	getResp, err := http.Get(srv.URL + "/api/v1/users/u1/preferences")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	decodeResponse(t, getResp)
	if getResp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d, want 200", getResp.StatusCode)
	}
}

func TestPutPreferencesNoValidCategories(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	body := bytes.NewBufferString(`{"categories":["astrology"]}`)
	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/v1/users/u1/preferences", body)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetRecommendations(t *testing.T) {
	engine := &mockEngine{recs: []recommend.Recommendation{
		{Article: content.Article{ID: "n1", Title: "First", Category: taxonomy.Sports, PublishedAt: time.Now()}, Distance: 0.1},
		{Article: content.Article{ID: "n2", Title: "Second", Category: taxonomy.Sports, PublishedAt: time.Now()}, Distance: 0.4},
	}}
	srv := newTestServer(t, testDeps{engine: engine})

	resp, err := http.Get(srv.URL + "/api/v1/users/u1/recommendations?k=2")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	parsed := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	data, _ := json.Marshal(parsed.Data)
	var views []recommendationView
	if err := json.Unmarshal(data, &views); err != nil {
		t.Fatalf("decode views: %v", err)
	}
	if len(views) != 2 || views[0].Article.ID != "n1" {
		t.Errorf("views = %+v", views)
	}
}

func TestGetRecommendationsErrors(t *testing.T) {
	tests := []struct {
		name       string
		engine     *mockEngine
		path       string
		wantStatus int
	}{
		{"unknown user", &mockEngine{err: preferences.ErrNotFound}, "/api/v1/users/u1/recommendations", http.StatusNotFound},
		{"index unavailable", &mockEngine{err: recommend.ErrUnavailable}, "/api/v1/users/u1/recommendations", http.StatusServiceUnavailable},
		{"internal failure", &mockEngine{err: errors.New("boom")}, "/api/v1/users/u1/recommendations", http.StatusInternalServerError},
		{"bad k", &mockEngine{}, "/api/v1/users/u1/recommendations?k=banana", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, testDeps{engine: tt.engine})
			resp, err := http.Get(srv.URL + tt.path)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			decodeResponse(t, resp)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestArticleEndpoints(t *testing.T) {
	articles := &mockArticles{articles: map[string]content.Article{
		"n1": {ID: "n1", Title: "First", Category: taxonomy.Business, Embedding: []float32{1, 2}},
	}}
	srv := newTestServer(t, testDeps{articles: articles})

	resp, err := http.Get(srv.URL + "/api/v1/articles/n1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	parsed := decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	// The embedding must not leak into the response.
	data, _ := json.Marshal(parsed.Data)
	if bytes.Contains(data, []byte("embedding")) {
		t.Error("embedding leaked into article response")
	}

	missing, err := http.Get(srv.URL + "/api/v1/articles/ghost")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	decodeResponse(t, missing)
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", missing.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/articles/n1", nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	decodeResponse(t, delResp)
	if delResp.StatusCode != http.StatusOK {
		t.Errorf("delete status = %d, want 200", delResp.StatusCode)
	}
	if _, ok := articles.articles["n1"]; ok {
		t.Error("article still present after delete")
	}
}

func TestRebuildIndex(t *testing.T) {
	articles := &mockArticles{articles: map[string]content.Article{
		"n1": {ID: "n1", Category: taxonomy.Science, Embedding: []float32{1, 0, 0}},
		"n2": {ID: "n2", Category: taxonomy.Science, Embedding: []float32{0, 1, 0}},
		"n3": {ID: "n3", Category: taxonomy.Science}, // no embedding, skipped
	}}
	index := &mockIndex{}
	srv := newTestServer(t, testDeps{articles: articles, index: index})

	resp, err := http.Post(srv.URL+"/api/v1/index/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(index.entries) != 2 {
		t.Errorf("index rebuilt with %d entries, want 2", len(index.entries))
	}
}

func TestRebuildIndexNoEmbeddings(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	resp, err := http.Post(srv.URL+"/api/v1/index/rebuild", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	decodeResponse(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	live, err := http.Get(srv.URL + "/health/live")
	if err != nil {
		t.Fatalf("live: %v", err)
	}
	decodeResponse(t, live)
	if live.StatusCode != http.StatusOK {
		t.Errorf("live status = %d, want 200", live.StatusCode)
	}

	ready, err := http.Get(srv.URL + "/health/ready")
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	parsed := decodeResponse(t, ready)
	if ready.StatusCode != http.StatusOK {
		t.Errorf("ready status = %d, want 200", ready.StatusCode)
	}
	if parsed.Meta == nil || parsed.Meta.RequestID == "" {
		t.Error("response meta missing request id")
	}

	// Probes are reachable under the API prefix as well.
	versioned, err := http.Get(srv.URL + "/api/v1/health/live")
	if err != nil {
		t.Fatalf("versioned live: %v", err)
	}
	decodeResponse(t, versioned)
	if versioned.StatusCode != http.StatusOK {
		t.Errorf("versioned live status = %d, want 200", versioned.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, testDeps{})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health/live", nil)
	req.Header.Set("X-Request-ID", "trace-me")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if got := resp.Header.Get("X-Request-ID"); got != "trace-me" {
		t.Errorf("X-Request-ID = %q, want trace-me", got)
	}
}
