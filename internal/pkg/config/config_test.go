package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("meetpoint-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Oracle.Timeout != 30*time.Second {
		t.Errorf("expected 30s oracle timeout, got %s", cfg.Oracle.Timeout)
	}
	if cfg.Search.GridSize != 5 || !cfg.Search.EnableLocalRefinement {
		t.Errorf("unexpected search defaults %+v", cfg.Search)
	}
	if cfg.Telemetry.ServiceName != "meetpoint-test" {
		t.Errorf("expected service name from argument, got %s", cfg.Telemetry.ServiceName)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEETPOINT_SERVER_PORT", "9090")
	t.Setenv("MEETPOINT_ORACLE_TIMEOUT", "5s")
	t.Setenv("MEETPOINT_CACHE_BACKEND", "none")

	cfg, err := Load("meetpoint-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Oracle.Timeout != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.Oracle.Timeout)
	}
	if cfg.Cache.Backend != "none" {
		t.Errorf("expected cache backend none, got %s", cfg.Cache.Backend)
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0, ReadTimeout: 10, WriteTimeout: 10},
		Oracle: OracleConfig{Timeout: time.Second, MaxConcurrency: 1},
		Search: SearchConfig{GridSize: 0},
		Cache:  CacheConfig{Backend: "memcached"},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"server.port", "oracle.base_url", "search.grid_size", "cache.backend", "temporal.task_queue"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestValidate_CacheNoneNeedsNoAddr(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 8080, ReadTimeout: 10, WriteTimeout: 10},
		Oracle:   OracleConfig{BaseURL: "http://osrm", Timeout: time.Second, MaxConcurrency: 1},
		Search:   SearchConfig{GridSize: 5},
		Cache:    CacheConfig{Backend: "none"},
		Temporal: TemporalConfig{TaskQueue: "meetpoint"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
