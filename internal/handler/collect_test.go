package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/joestump/joe-stats/internal/ingest"
	"github.com/joestump/joe-stats/internal/logger"
	"github.com/joestump/joe-stats/internal/store"
	"github.com/joestump/joe-stats/internal/testutil"
)

func validQuery() url.Values {
	return url.Values{
		"user_id":      {"7"},
		"website_id":   {"1"},
		"isNewSession": {"true"},
		"href":         {"https://x.com/blog"},
		"hostname":     {"x.com"},
		"origin":       {"https://x.com"},
		"pathname":     {"/blog"},
		"referrer":     {""},
	}
}

func TestDecodeQuery(t *testing.T) {
	req := DecodeQuery(validQuery())
	e, ok := req.Event()
	if !ok {
		t.Fatal("DecodeQuery(valid) returned NoEvent")
	}
	want := ingest.Event{
		UserID:       7,
		WebsiteID:    1,
		IsNewSession: true,
		Href:         "https://x.com/blog",
		Hostname:     "x.com",
		Origin:       "https://x.com",
		Pathname:     "/blog",
	}
	if e != want {
		t.Errorf("event = %+v, want %+v", e, want)
	}
}

func TestDecodeQuery_Malformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(url.Values)
	}{
		{"empty query", func(q url.Values) {
			for k := range q {
				delete(q, k)
			}
		}},
		{"missing user_id", func(q url.Values) { q.Del("user_id") }},
		{"missing referrer", func(q url.Values) { q.Del("referrer") }},
		{"missing pathname", func(q url.Values) { q.Del("pathname") }},
		{"non-numeric website_id", func(q url.Values) { q.Set("website_id", "abc") }},
		{"non-boolean isNewSession", func(q url.Values) { q.Set("isNewSession", "maybe") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := validQuery()
			tt.mutate(q)
			if _, ok := DecodeQuery(q).Event(); ok {
				t.Error("expected NoEvent")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	body := `{"user_id":7,"website_id":1,"isNewSession":false,"href":"https://x.com/","hostname":"x.com","origin":"https://x.com","pathname":"/","referrer":"https://r.example"}`
	e, ok := DecodeJSON(strings.NewReader(body)).Event()
	if !ok {
		t.Fatal("DecodeJSON(valid) returned NoEvent")
	}
	if e.WebsiteID != 1 || e.UserID != 7 || e.IsNewSession || e.Referrer != "https://r.example" {
		t.Errorf("event = %+v", e)
	}

	for _, bad := range []string{
		`not json`,
		`{"user_id":7}`,
		`{"user_id":"7","website_id":1,"isNewSession":false,"href":"","hostname":"","origin":"","pathname":"/","referrer":""}`,
	} {
		if _, ok := DecodeJSON(strings.NewReader(bad)).Event(); ok {
			t.Errorf("DecodeJSON(%q) returned an event, want NoEvent", bad)
		}
	}
}

type fakeSubmitter struct {
	err  error
	reqs []ingest.Request
}

func (f *fakeSubmitter) Submit(ctx context.Context, req ingest.Request) error {
	f.reqs = append(f.reqs, req)
	return f.err
}

func serve(t *testing.T, deps Deps, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	NewRouter(deps).ServeHTTP(w, req)
	return w
}

func TestCollect_NoContentOnSuccess(t *testing.T) {
	sub := &fakeSubmitter{}
	w := serve(t, Deps{Ingest: sub}, http.MethodGet, "/collect?"+validQuery().Encode(), "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(sub.reqs) != 1 {
		t.Fatalf("submits = %d, want 1", len(sub.reqs))
	}
	if _, ok := sub.reqs[0].Event(); !ok {
		t.Error("submitted request has no event")
	}
}

func TestCollect_EmptyQueryIsNoEvent(t *testing.T) {
	sub := &fakeSubmitter{}
	w := serve(t, Deps{Ingest: sub}, http.MethodGet, "/collect", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if len(sub.reqs) != 1 {
		t.Fatalf("submits = %d, want 1", len(sub.reqs))
	}
	if _, ok := sub.reqs[0].Event(); ok {
		t.Error("empty query should submit NoEvent")
	}
}

func TestCollect_InternalErrorBody(t *testing.T) {
	sub := &fakeSubmitter{err: &ingest.StepError{Step: ingest.StepWebsite, Err: store.ErrNotFound}}
	w := serve(t, Deps{Ingest: sub}, http.MethodGet, "/collect?"+validQuery().Encode(), "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "internal error" || body.Code != "INTERNAL_ERROR" {
		t.Errorf("body = %+v", body)
	}
	if strings.Contains(w.Body.String(), "not found") {
		t.Error("error body leaks the underlying cause")
	}
}

func TestCollect_PoolClosed(t *testing.T) {
	sub := &fakeSubmitter{err: ingest.ErrPoolClosed}
	w := serve(t, Deps{Ingest: sub}, http.MethodGet, "/collect?"+validQuery().Encode(), "")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestCollect_PostJSON(t *testing.T) {
	sub := &fakeSubmitter{}
	body := `{"user_id":7,"website_id":1,"isNewSession":true,"href":"h","hostname":"x.com","origin":"o","pathname":"/p","referrer":""}`
	w := serve(t, Deps{Ingest: sub}, http.MethodPost, "/collect", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	e, ok := sub.reqs[0].Event()
	if !ok || e.Pathname != "/p" {
		t.Errorf("submitted = %+v, %v", e, ok)
	}
}

func TestHealthz(t *testing.T) {
	w := serve(t, Deps{Ingest: &fakeSubmitter{}}, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	down := func(ctx context.Context) error { return errors.New("db down") }
	w = serve(t, Deps{Ingest: &fakeSubmitter{}, Ready: down}, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := serve(t, Deps{Ingest: &fakeSubmitter{}}, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "joestats_") {
		t.Error("metrics output missing joestats_ series")
	}
}

// End to end: router -> pool -> coordinator -> SQL stores.
func TestCollect_EndToEnd(t *testing.T) {
	db := testutil.NewTestDB(t)
	as := store.NewSQLAggregateStore(db)
	gl := store.NewSQLEventLog(db)
	ctx := context.Background()
	if _, err := as.CreateWebsite(ctx, 1, 7, "x.com"); err != nil {
		t.Fatalf("seed website: %v", err)
	}

	pool := ingest.NewPool(ingest.NewCoordinator(as, gl, logger.Nop()), 2, 4, logger.Nop())
	defer pool.Close()
	deps := Deps{Ingest: pool, Ready: db.PingContext}

	if w := serve(t, deps, http.MethodGet, "/collect?"+validQuery().Encode(), ""); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}

	q := validQuery()
	q.Set("user_id", "8")
	if w := serve(t, deps, http.MethodGet, "/collect?"+q.Encode(), ""); w.Code != http.StatusInternalServerError {
		t.Fatalf("wrong owner status = %d, want 500", w.Code)
	}

	w, err := as.GetWebsite(ctx, 1)
	if err != nil {
		t.Fatalf("GetWebsite: %v", err)
	}
	if w.Visitors != 1 || w.Sessions != 1 {
		t.Errorf("website = (%d, %d), want (1, 1)", w.Visitors, w.Sessions)
	}
	ghosts, err := gl.ListByWebsite(ctx, 1, 10)
	if err != nil {
		t.Fatalf("ListByWebsite: %v", err)
	}
	if len(ghosts) != 1 {
		t.Errorf("len(ghosts) = %d, want 1", len(ghosts))
	}
}
