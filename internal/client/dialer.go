package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/MoonShineVFX/meal-system-sub001/internal/core/errors"
)

// Dialer opens one realtime connection.
type Dialer interface {
	Dial(ctx context.Context) (*websocket.Conn, error)
}

// WSDialer dials the server's websocket endpoint with a bearer token in the
// query string. A rejected handshake is reported as ErrUnauthorized.
type WSDialer struct {
	url    *url.URL
	token  string
	header http.Header
	dialer *websocket.Dialer
}

// NewWSDialer creates a dialer for rawURL. http and https URLs are mapped
// to ws and wss.
func NewWSDialer(rawURL, token string) (*WSDialer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("invalid realtime url scheme %q", u.Scheme)
	}

	return &WSDialer{
		url:    u,
		token:  token,
		header: http.Header{},
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context) (*websocket.Conn, error) {
	u := *d.url
	q := u.Query()
	q.Set("token", d.token)
	u.RawQuery = q.Encode()

	conn, resp, err := d.dialer.DialContext(ctx, u.String(), d.header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: handshake status %d", apperrors.ErrUnauthorized, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to dial %s://%s%s: %w", d.url.Scheme, d.url.Host, d.url.Path, err)
	}
	return conn, nil
}
