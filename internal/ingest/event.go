// Package ingest turns decoded visit events into counter updates and ghost records.
package ingest

// Event is one decoded visit as reported by the tracking script.
// Href and Origin are carried through untouched; aggregation does not read them.
type Event struct {
	UserID       int64  `json:"user_id"`
	WebsiteID    int64  `json:"website_id"`
	IsNewSession bool   `json:"isNewSession"`
	Href         string `json:"href"`
	Hostname     string `json:"hostname"`
	Origin       string `json:"origin"`
	Pathname     string `json:"pathname"`
	Referrer     string `json:"referrer"`
}

// Request is the input to Coordinator.Ingest: either no event at all or exactly one.
// A request without an event is a successful no-op, not an error.
type Request struct {
	event *Event
}

// NoEvent is the request for an absent or undecodable event.
func NoEvent() Request { return Request{} }

// WithEvent wraps a decoded event.
func WithEvent(e Event) Request { return Request{event: &e} }

// Event returns the wrapped event and whether one is present.
func (r Request) Event() (Event, bool) {
	if r.event == nil {
		return Event{}, false
	}
	return *r.event, true
}

// referrerOrNil maps the empty referrer to nil.
func referrerOrNil(ref string) *string {
	if ref == "" {
		return nil
	}
	return &ref
}
