package server

import (
	"testing"
	"time"

	"github.com/any-hub/md-hub/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Global: config.GlobalConfig{
			UpstreamTimeout: config.Duration(45 * time.Second),
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
}

func TestNewUpstreamClientDefaultsTimeout(t *testing.T) {
	client := NewUpstreamClient(nil)
	if client.Timeout != 30*time.Second {
		t.Fatalf("expected default timeout 30s, got %s", client.Timeout)
	}
	if client.Transport == nil {
		t.Fatalf("expected shared transport clone")
	}
}
