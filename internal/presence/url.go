package presence

import (
	"fmt"
	"net"
	"net/url"
)

// FeedURL derives the websocket endpoint from the console origin instead of
// hard-coding it. In the local development topology the UI and the API sit
// on separate ports, so apiPort (when > 0) replaces the origin's port; in
// single-origin production apiPort is 0 and the origin is used as-is.
func FeedURL(origin string, apiPort int) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse console origin: %w", err)
	}

	var scheme string
	switch u.Scheme {
	case "http":
		scheme = "ws"
	case "https":
		scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported origin scheme %q", u.Scheme)
	}

	host := u.Host
	if apiPort > 0 {
		hostname := u.Hostname()
		if hostname == "" {
			return "", fmt.Errorf("origin %q has no host", origin)
		}
		host = net.JoinHostPort(hostname, fmt.Sprintf("%d", apiPort))
	}

	return (&url.URL{Scheme: scheme, Host: host, Path: "/ws/user-status/"}).String(), nil
}
