package cache

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/cacheinfra"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing id", mutate: func(c *Config) { c.ID = "" }, wantErr: true},
		{name: "unknown eviction", mutate: func(c *Config) { c.Eviction = "random" }, wantErr: true},
		{name: "negative size", mutate: func(c *Config) { c.Size = -1 }, wantErr: true},
		{name: "negative interval", mutate: func(c *Config) { c.FlushInterval = -time.Second }, wantErr: true},
		{name: "invalid store", mutate: func(c *Config) { c.Store = cacheinfra.Config{} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("blog")
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errs.HasCode(err, errs.CodeInvalidConfig) {
					t.Fatalf("expected invalid config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func unwrapChain(c Cache) []string {
	var names []string
	for c != nil {
		switch d := c.(type) {
		case *Blocking:
			names = append(names, "blocking")
			c = d.delegate
		case *Synchronized:
			names = append(names, "synchronized")
			c = d.delegate
		case *Logging:
			names = append(names, "logging")
			c = d.delegate
		case *Serialized:
			names = append(names, "serialized")
			c = d.delegate
		case *Scheduled:
			names = append(names, "scheduled")
			c = d.delegate
		case *LRU:
			names = append(names, "lru")
			c = d.delegate
		case *FIFO:
			names = append(names, "fifo")
			c = d.delegate
		case *Perpetual:
			names = append(names, "perpetual")
			c = nil
		default:
			names = append(names, "unknown")
			c = nil
		}
	}
	return names
}

func TestConfig_BuildDecoratorOrder(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "default",
			mutate: func(*Config) {},
			want:   []string{"synchronized", "logging", "serialized", "lru", "perpetual"},
		},
		{
			name: "everything",
			mutate: func(c *Config) {
				c.Eviction = EvictionFIFO
				c.FlushInterval = time.Minute
				c.Blocking = true
			},
			want: []string{"blocking", "synchronized", "logging", "serialized", "scheduled", "fifo", "perpetual"},
		},
		{
			name: "read only without eviction",
			mutate: func(c *Config) {
				c.Eviction = EvictionNone
				c.ReadWrite = false
			},
			want: []string{"synchronized", "logging", "perpetual"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("blog")
			tt.mutate(&cfg)
			c, err := cfg.Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}
			got := unwrapChain(c)
			if len(got) != len(tt.want) {
				t.Fatalf("chain = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("chain = %v, want %v", got, tt.want)
				}
			}
			if c.ID() != "blog" {
				t.Fatalf("expected id to flow through decorators, got %q", c.ID())
			}
		})
	}
}

func TestConfig_BuiltCacheWorks(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig("blog")
	cfg.Blocking = true
	cfg.BlockingTimeout = time.Second

	c, err := cfg.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	key := NewCacheKey("blog.select", 1)
	if v, err := c.Get(ctx, key); err != nil || v != nil {
		t.Fatalf("expected miss, got %v %v", v, err)
	}
	if err := c.Put(ctx, key, []any{"row"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	v, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rows := v.([]any); len(rows) != 1 || rows[0] != "row" {
		t.Fatalf("unexpected rows %v", rows)
	}
}
