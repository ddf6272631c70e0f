package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/joestump/joe-stats/internal/ingest"
	"github.com/joestump/joe-stats/internal/logger"
)

// maxCollectBody bounds the JSON body accepted by POST /collect.
const maxCollectBody = 16 << 10

// Submitter accepts an ingest request and reports its outcome. *ingest.Pool satisfies it.
type Submitter interface {
	Submit(ctx context.Context, req ingest.Request) error
}

// CollectHandler receives tracking beacons and hands them to the ingest pipeline.
type CollectHandler struct {
	ingest Submitter
	log    *logger.Logger
}

// NewCollectHandler creates a new CollectHandler.
func NewCollectHandler(s Submitter, log *logger.Logger) *CollectHandler {
	return &CollectHandler{ingest: s, log: log.With("component", "collect")}
}

// Get handles GET /collect with the event carried in the query string.
func (h *CollectHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, DecodeQuery(r.URL.Query()))
}

// Post handles POST /collect with the event carried as a JSON object. A request
// without a body falls back to the query string.
func (h *CollectHandler) Post(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength == 0 {
		h.submit(w, r, DecodeQuery(r.URL.Query()))
		return
	}
	h.submit(w, r, DecodeJSON(http.MaxBytesReader(w, r.Body, maxCollectBody)))
}

func (h *CollectHandler) submit(w http.ResponseWriter, r *http.Request, req ingest.Request) {
	if err := h.ingest.Submit(r.Context(), req); err != nil {
		if errors.Is(err, ingest.ErrPoolClosed) {
			h.log.Warn("collect rejected during shutdown")
		}
		writeError(w, http.StatusInternalServerError, "internal error", "INTERNAL_ERROR")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DecodeQuery reads an event from query parameters. Every field must be present and
// parse; otherwise the result is ingest.NoEvent(). referrer may be present but empty.
func DecodeQuery(q url.Values) ingest.Request {
	var e ingest.Event
	var err error

	str := func(key string) (string, bool) {
		vs, ok := q[key]
		if !ok || len(vs) == 0 {
			return "", false
		}
		return vs[0], true
	}

	v, ok := str("user_id")
	if !ok {
		return ingest.NoEvent()
	}
	if e.UserID, err = strconv.ParseInt(v, 10, 64); err != nil {
		return ingest.NoEvent()
	}
	if v, ok = str("website_id"); !ok {
		return ingest.NoEvent()
	}
	if e.WebsiteID, err = strconv.ParseInt(v, 10, 64); err != nil {
		return ingest.NoEvent()
	}
	if v, ok = str("isNewSession"); !ok {
		return ingest.NoEvent()
	}
	if e.IsNewSession, err = strconv.ParseBool(v); err != nil {
		return ingest.NoEvent()
	}

	for _, f := range []struct {
		key string
		dst *string
	}{
		{"href", &e.Href},
		{"hostname", &e.Hostname},
		{"origin", &e.Origin},
		{"pathname", &e.Pathname},
		{"referrer", &e.Referrer},
	} {
		if *f.dst, ok = str(f.key); !ok {
			return ingest.NoEvent()
		}
	}
	return ingest.WithEvent(e)
}

// jsonEvent mirrors ingest.Event with pointer fields so absent keys are detectable.
type jsonEvent struct {
	UserID       *int64  `json:"user_id"`
	WebsiteID    *int64  `json:"website_id"`
	IsNewSession *bool   `json:"isNewSession"`
	Href         *string `json:"href"`
	Hostname     *string `json:"hostname"`
	Origin       *string `json:"origin"`
	Pathname     *string `json:"pathname"`
	Referrer     *string `json:"referrer"`
}

// DecodeJSON reads an event from a JSON object with the same keys as DecodeQuery.
// An undecodable body or a missing key yields ingest.NoEvent().
func DecodeJSON(body io.Reader) ingest.Request {
	var je jsonEvent
	if err := json.NewDecoder(body).Decode(&je); err != nil {
		return ingest.NoEvent()
	}
	if je.UserID == nil || je.WebsiteID == nil || je.IsNewSession == nil ||
		je.Href == nil || je.Hostname == nil || je.Origin == nil ||
		je.Pathname == nil || je.Referrer == nil {
		return ingest.NoEvent()
	}
	return ingest.WithEvent(ingest.Event{
		UserID:       *je.UserID,
		WebsiteID:    *je.WebsiteID,
		IsNewSession: *je.IsNewSession,
		Href:         *je.Href,
		Hostname:     *je.Hostname,
		Origin:       *je.Origin,
		Pathname:     *je.Pathname,
		Referrer:     *je.Referrer,
	})
}
