package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeURL(t *testing.T) {
	assert := assert.New(t)

	testCases := []struct {
		host     string
		path     string
		expected string
	}{
		{"localhost:8090", "/bridge", "ws://localhost:8090/bridge"},
		{"127.0.0.1", "bridge", "ws://127.0.0.1/bridge"},
		{"[::1]:8090", "/bridge", "ws://[::1]:8090/bridge"},
		{"example.com", "/bridge", "wss://example.com/bridge"},
		{"ws://example.com", "/bridge", "ws://example.com/bridge"},
		{"wss://example.com/", "/bridge", "wss://example.com/bridge"},
		{"http://example.com:123", "/bridge", "ws://example.com:123/bridge"},
		{"https://example.com/veil", "/bridge", "wss://example.com/veil/bridge"},
		{"https://example.com", "", "wss://example.com"},
	}

	for _, c := range testCases {
		out, err := BridgeURL(c.host, c.path)
		assert.NoError(err)
		assert.Equal(c.expected, out, c.host)
	}
}
