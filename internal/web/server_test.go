package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/islamcheck/internal/factcheck"
	"github.com/ppiankov/islamcheck/internal/llm"
	"github.com/ppiankov/islamcheck/internal/model"
	"github.com/ppiankov/islamcheck/internal/search"
	"github.com/ppiankov/islamcheck/internal/store"
)

type stubAnalyzer struct {
	err error
}

func (s *stubAnalyzer) Analyze(_ context.Context, claim string) (*model.Analysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.Analysis{
		Answer:         "Verified: " + claim,
		Sources:        []string{"Quran 2:183"},
		Classification: model.ClassificationAccurate,
	}, nil
}

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store   *store.SQLiteStore
	handler http.Handler
}

func newFixture(t *testing.T, analyzer factcheck.Analyzer, cfg model.ServerConfig, opts ...factcheck.Option) *fixture {
	t.Helper()
	st, err := store.OpenSQLite(store.MemoryPath)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	opts = append(opts, factcheck.WithClock(func() time.Time { return baseTime }))
	svc := factcheck.NewService(st, analyzer, opts...)
	return &fixture{store: st, handler: NewServer(svc, cfg, nil).Handler()}
}

func (f *fixture) seed(t *testing.T, n int) []*model.ClaimRecord {
	t.Helper()
	var records []*model.ClaimRecord
	for i := 0; i < n; i++ {
		rec := model.NewClaimRecord(fmt.Sprintf("claim number %d", i), model.Analysis{
			Answer:         "answer",
			Sources:        []string{},
			Classification: model.ClassificationDebated,
		}, baseTime.Add(-time.Duration(i)*time.Hour))
		if err := f.store.Upsert(context.Background(), rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
		records = append(records, rec)
	}
	return records
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestFactCheckEndpoint(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	rec := f.do(http.MethodPost, "/factcheck", `{"text": "  Zakat is one of the five pillars  "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body claimResponse
	decode(t, rec, &body)
	if body.Query != "Zakat is one of the five pillars" {
		t.Errorf("unexpected query %q", body.Query)
	}
	if body.ID != model.ClaimID(body.Query) {
		t.Errorf("unexpected id %q", body.ID)
	}
	if body.Classification != model.ClassificationAccurate {
		t.Errorf("unexpected classification %q", body.Classification)
	}
	if len(body.Sources) != 1 {
		t.Errorf("unexpected sources %v", body.Sources)
	}

	got := f.do(http.MethodGet, "/claim/"+body.ID, "")
	if got.Code != http.StatusOK {
		t.Fatalf("expected stored claim, got %d", got.Code)
	}
}

func TestFactCheckEndpoint_InvalidInput(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"text": `},
		{"empty body", ""},
		{"missing text", `{}`},
		{"whitespace only", `{"text": "   "}`},
		{"too long", fmt.Sprintf(`{"text": %q}`, strings.Repeat("a", 1001))},
		{"bad language tag", `{"text": "claim", "language": "not a tag"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/factcheck", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
			var body errorBody
			decode(t, rec, &body)
			if body.Detail == "" {
				t.Error("expected detail message")
			}
		})
	}
}

func TestFactCheckEndpoint_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantDetail string
	}{
		{
			name:       "upstream unavailable",
			err:        &llm.UpstreamError{Kind: model.ErrUpstreamUnavailable, Attempts: 3},
			wantStatus: http.StatusServiceUnavailable,
			wantDetail: "AI service is temporarily unavailable",
		},
		{
			name:       "unparseable response",
			err:        &llm.UpstreamError{Kind: model.ErrResponseParse, Attempts: 3},
			wantStatus: http.StatusInternalServerError,
			wantDetail: "Failed to parse AI response",
		},
		{
			name:       "missing credential",
			err:        fmt.Errorf("%w: upstream API key not configured", model.ErrConfiguration),
			wantStatus: http.StatusInternalServerError,
			wantDetail: "AI service is not configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &stubAnalyzer{err: tt.err}, model.ServerConfig{})

			rec := f.do(http.MethodPost, "/factcheck", `{"text": "claim"}`)
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body errorBody
			decode(t, rec, &body)
			if body.Detail != tt.wantDetail {
				t.Errorf("expected detail %q, got %q", tt.wantDetail, body.Detail)
			}
			if body.Error != "" {
				t.Errorf("error context leaked without debug: %q", body.Error)
			}
		})
	}
}

func TestDebugErrorBody(t *testing.T) {
	err := &llm.UpstreamError{Kind: model.ErrUpstreamUnavailable, Attempts: 3}
	f := newFixture(t, &stubAnalyzer{err: err}, model.ServerConfig{Debug: true})

	rec := f.do(http.MethodPost, "/factcheck", `{"text": "claim"}`)
	var body errorBody
	decode(t, rec, &body)
	if body.Error == "" {
		t.Error("expected error context in debug mode")
	}
}

func TestClaimEndpoint(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})
	records := f.seed(t, 1)

	tests := []struct {
		name       string
		id         string
		wantStatus int
	}{
		{"existing", records[0].ID, http.StatusOK},
		{"unknown", "deadbeef", http.StatusNotFound},
		{"too short", "abc1234", http.StatusUnprocessableEntity},
		{"too long", "abc123456", http.StatusUnprocessableEntity},
		{"non alphanumeric", "abc-1234", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(http.MethodGet, "/claim/"+tt.id, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}

	rec := f.do(http.MethodGet, "/claim/deadbeef", "")
	var body errorBody
	decode(t, rec, &body)
	if body.Detail != "Claim not found" {
		t.Errorf("unexpected detail %q", body.Detail)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})
	records := f.seed(t, 25)

	rec := f.do(http.MethodGet, "/api/history?page=2&per_page=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var page factcheck.HistoryPage
	decode(t, rec, &page)
	if len(page.Claims) != 10 {
		t.Fatalf("expected 10 claims, got %d", len(page.Claims))
	}
	if page.Claims[0].ID != records[10].ID {
		t.Errorf("expected 11th newest record first, got %s", page.Claims[0].Query)
	}
	want := factcheck.Pagination{CurrentPage: 2, PerPage: 10, TotalItems: 25, TotalPages: 3}
	if page.Pagination != want {
		t.Errorf("expected %+v, got %+v", want, page.Pagination)
	}

	last := f.do(http.MethodGet, "/api/history?page=3", "")
	decode(t, last, &page)
	if len(page.Claims) != 5 {
		t.Errorf("expected 5 claims on last page, got %d", len(page.Claims))
	}
}

func TestHistoryEndpoint_Empty(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	rec := f.do(http.MethodGet, "/api/history", "")
	var page factcheck.HistoryPage
	decode(t, rec, &page)
	if page.Claims == nil || len(page.Claims) != 0 {
		t.Errorf("expected empty claims list, got %v", page.Claims)
	}
	if page.Pagination.TotalPages != 1 || page.Pagination.PerPage != factcheck.DefaultPerPage {
		t.Errorf("unexpected pagination %+v", page.Pagination)
	}
}

func TestHistoryEndpoint_BadParams(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	for _, query := range []string{"page=0", "page=x", "per_page=0", "per_page=101", "per_page=ten"} {
		rec := f.do(http.MethodGet, "/api/history?"+query, "")
		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: expected 422, got %d", query, rec.Code)
		}
	}
}

func TestSearchEndpoint(t *testing.T) {
	idx, err := search.Open("")
	if err != nil {
		t.Fatalf("search.Open failed: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{}, factcheck.WithIndex(idx))
	if rec := f.do(http.MethodPost, "/factcheck", `{"text": "Ramadan fasting is obligatory"}`); rec.Code != http.StatusOK {
		t.Fatalf("seed fact check failed: %d", rec.Code)
	}

	rec := f.do(http.MethodGet, "/api/search?q=fasting", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Results []search.Hit `json:"results"`
	}
	decode(t, rec, &body)
	if len(body.Results) != 1 || body.Results[0].Query != "Ramadan fasting is obligatory" {
		t.Errorf("unexpected results %+v", body.Results)
	}

	for _, query := range []string{"", "q=x&classification=Wrong", "q=x&limit=0"} {
		if rec := f.do(http.MethodGet, "/api/search?"+query, ""); rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("%q: expected 422, got %d", query, rec.Code)
		}
	}
}

func TestSearchEndpoint_Disabled(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	if rec := f.do(http.MethodGet, "/api/search?q=prayer", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})
	f.seed(t, 3)

	rec := f.do(http.MethodGet, "/health", "")
	var body struct {
		Status string `json:"status"`
		Claims int    `json:"claims"`
	}
	decode(t, rec, &body)
	if body.Status != "ok" || body.Claims != 3 {
		t.Errorf("unexpected health %+v", body)
	}
}

// reachableAnalyzer reports a fixed upstream status
type reachableAnalyzer struct {
	stubAnalyzer
	status error
}

func (a *reachableAnalyzer) Available(context.Context) error { return a.status }

func TestHealthEndpoint_Upstream(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status error
		want   string
	}{
		{name: "not requested", target: "/health", status: model.ErrUpstreamUnavailable, want: ""},
		{name: "reachable", target: "/health?upstream=1", want: "ok"},
		{name: "unreachable", target: "/health?upstream=true", status: model.ErrUpstreamUnavailable, want: "AI service is temporarily unavailable"},
		{name: "unconfigured", target: "/health?upstream=1", status: model.ErrConfiguration, want: "AI service is not configured"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, &reachableAnalyzer{status: tt.status}, model.ServerConfig{})

			rec := f.do(http.MethodGet, tt.target, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			var body struct {
				Status   string `json:"status"`
				Upstream string `json:"upstream"`
			}
			decode(t, rec, &body)
			if body.Status != "ok" || body.Upstream != tt.want {
				t.Errorf("unexpected health %+v, want upstream %q", body, tt.want)
			}
		})
	}
}

func TestFactCheck_InterruptedAnalysis(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{err: context.DeadlineExceeded}, model.ServerConfig{})

	rec := f.do(http.MethodPost, "/factcheck", `{"text": "Prayer faces the Kaaba"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body errorBody
	decode(t, rec, &body)
	if body.Detail != "Analysis was interrupted, please retry" {
		t.Errorf("unexpected detail %q", body.Detail)
	}
}

func TestCORS(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	pre := f.do(http.MethodOptions, "/factcheck", "")
	if pre.Code != http.StatusNoContent {
		t.Errorf("expected 204 preflight, got %d", pre.Code)
	}
	if pre.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin on preflight")
	}

	for _, target := range []string{"/api/history", "/claim/deadbeef"} {
		rec := f.do(http.MethodGet, target, "")
		if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
			t.Errorf("%s: missing allow-origin", target)
		}
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	rec := f.do(http.MethodGet, "/health", "")
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("expected generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(requestIDHeader, "trace-123")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if got := rec.Header().Get(requestIDHeader); got != "trace-123" {
		t.Errorf("expected caller id to be kept, got %q", got)
	}
}

func TestRobots(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{})

	rec := f.do(http.MethodGet, "/robots.txt", "")
	body := rec.Body.String()
	for _, want := range []string{"User-agent: *", "Allow: /history", "Allow: /claim/*/view", "Sitemap: http://example.com/sitemap.xml"} {
		if !strings.Contains(body, want) {
			t.Errorf("robots.txt missing %q:\n%s", want, body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/robots.txt", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if !strings.Contains(rec.Body.String(), "Sitemap: https://example.com/sitemap.xml") {
		t.Errorf("expected forwarded scheme in sitemap URL:\n%s", rec.Body.String())
	}
}

func TestSitemap(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{PublicURL: "https://islamcheck.example/"})
	records := f.seed(t, 2)

	rec := f.do(http.MethodGet, "/sitemap.xml", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/xml") {
		t.Errorf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		`xmlns="http://www.sitemaps.org/schemas/sitemap/0.9"`,
		"<loc>https://islamcheck.example/</loc>",
		"<loc>https://islamcheck.example/history</loc>",
		"<loc>https://islamcheck.example/claim/" + records[0].ID + "/view</loc>",
		"<lastmod>2025-03-01</lastmod>",
		"<changefreq>weekly</changefreq>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("sitemap missing %q:\n%s", want, body)
		}
	}
}

func TestPages(t *testing.T) {
	f := newFixture(t, &stubAnalyzer{}, model.ServerConfig{PageMaxAge: 2 * time.Hour})
	records := f.seed(t, 1)

	for _, target := range []string{"/", "/history", "/claim/" + records[0].ID + "/view"} {
		rec := f.do(http.MethodGet, target, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, rec.Code)
		}
		if got := rec.Header().Get("Cache-Control"); got != "public, max-age=7200" {
			t.Errorf("%s: unexpected Cache-Control %q", target, got)
		}
		if got := rec.Header().Get("X-Robots-Tag"); got != "index, follow" {
			t.Errorf("%s: unexpected X-Robots-Tag %q", target, got)
		}
		if !strings.Contains(rec.Body.String(), "<html") {
			t.Errorf("%s: expected HTML body", target)
		}
	}

	if rec := f.do(http.MethodGet, "/claim/bad/view", ""); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for malformed id, got %d", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/static/style.css", ""); rec.Code != http.StatusOK {
		t.Errorf("expected static asset, got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", model.ErrInvalidInput), http.StatusUnprocessableEntity},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrUpstreamUnavailable, http.StatusServiceUnavailable},
		{model.ErrResponseParse, http.StatusInternalServerError},
		{model.ErrConfiguration, http.StatusInternalServerError},
		{model.ErrStorage, http.StatusInternalServerError},
		{context.Canceled, http.StatusServiceUnavailable},
		{fmt.Errorf("analyse: %w", context.DeadlineExceeded), http.StatusServiceUnavailable},
		{fmt.Errorf("anything"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
