package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("rest:\n  baseUrl: \"http://localhost:8087\"\nws:\n  url: \"ws://localhost:8087/ws\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Logging.Service != "skillsync-realtime" {
		t.Errorf("logging.service default: %q", cfg.Logging.Service)
	}
	if cfg.Logging.Backend != "std" {
		t.Errorf("logging.backend default: %q", cfg.Logging.Backend)
	}
	if cfg.DevServer.Addr != ":8087" {
		t.Errorf("devserver.addr default: %q", cfg.DevServer.Addr)
	}
	if got := cfg.RESTTimeout(); got != 5*time.Second {
		t.Errorf("rest timeout default: %v", got)
	}
}

func TestParse_MissingRequired(t *testing.T) {
	if _, err := Parse([]byte("ws:\n  url: \"ws://x/ws\"\n")); err == nil {
		t.Fatal("expected error for missing rest.baseUrl")
	}
	if _, err := Parse([]byte("rest:\n  baseUrl: \"http://x\"\n")); err == nil {
		t.Fatal("expected error for missing ws.url")
	}
}

func TestRESTTimeout_Custom(t *testing.T) {
	cfg, err := Parse([]byte("rest:\n  baseUrl: \"http://x\"\n  timeout: \"250ms\"\nws:\n  url: \"ws://x/ws\"\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := cfg.RESTTimeout(); got != 250*time.Millisecond {
		t.Errorf("rest timeout: %v", got)
	}
}
