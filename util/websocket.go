package util

import (
	"net/url"
	"strings"
)

// Takes a bridge "host" string and returns the websocket URL of the bridge endpoint at path. Defaults to wss://, except for loopback hosts. Converts http/https to ws/wss.
func BridgeURL(host, path string) (string, error) {
	host = strings.TrimSpace(host)
	switch {
	case strings.HasPrefix(host, "wss://"), strings.HasPrefix(host, "ws://"):
	case strings.HasPrefix(host, "https://"):
		host = "wss://" + strings.TrimPrefix(host, "https://")
	case strings.HasPrefix(host, "http://"):
		host = "ws://" + strings.TrimPrefix(host, "http://")
	case isLoopback(host):
		host = "ws://" + host
	default:
		host = "wss://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return "", err
	}
	if path != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(path, "/")
	}
	return u.String(), nil
}

func isLoopback(host string) bool {
	if strings.HasPrefix(host, "127.0.0.") || strings.HasPrefix(host, "[::1]") {
		return true
	}
	hostname := strings.SplitN(host, ":", 2)[0]
	return hostname == "localhost"
}
