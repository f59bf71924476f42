package discovery

import (
	"context"

	"FilingMonitor/internal/domain"
)

// Response is one network response observed by a browser session.
type Response struct {
	URL         string
	Method      string
	Status      int
	ContentType string
	Body        []byte
}

// Session is a single browser tab.
//
// Handlers passed to OnResponse only see responses that arrive after they are
// registered; anything received earlier is gone.
type Session interface {
	OnResponse(fn func(Response))
	Navigate(ctx context.Context, url string) error
	HTML(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]domain.Cookie, error)
	Close() error
}

// Browser opens sessions.
type Browser interface {
	NewSession(ctx context.Context, userAgent string) (Session, error)
}
