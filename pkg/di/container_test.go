package di

import (
	"context"
	"testing"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/cacheinfra"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/pkg/testsupport"
	"github.com/goliatone/go-sqlmap/transaction"
)

func TestNewContainer(t *testing.T) {
	db, _ := testsupport.NewDB(t)
	storeCfg := cacheinfra.Config{
		Capacity:           1000,
		NumShards:          16,
		TTL:                5 * time.Minute,
		EvictionPercentage: 10,
	}

	container, err := NewSQLContainer(mapping.DefaultSettings(), db, WithStoreConfig(storeCfg))
	if err != nil {
		t.Fatalf("NewSQLContainer() failed: %v", err)
	}

	if container.Configuration() == nil {
		t.Error("Container should have a configuration")
	}
	if container.Language() == nil {
		t.Error("Container should have a template language")
	}
	if container.Factory() == nil {
		t.Error("Container should have a session factory")
	}
	if container.Factory().Configuration() != container.Configuration() {
		t.Error("Factory should share the container configuration")
	}

	stored := container.StoreConfig()
	if stored.Capacity != storeCfg.Capacity {
		t.Errorf("Expected capacity %d, got %d", storeCfg.Capacity, stored.Capacity)
	}
	if stored.TTL != storeCfg.TTL {
		t.Errorf("Expected TTL %v, got %v", storeCfg.TTL, stored.TTL)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	db, _ := testsupport.NewDB(t)
	container, err := NewContainerWithDefaults(db)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	defaults := cacheinfra.DefaultConfig()
	if got := container.StoreConfig(); got.Capacity != defaults.Capacity || got.TTL != defaults.TTL {
		t.Errorf("Expected default store config, got %+v", got)
	}
	if !container.Configuration().Settings.CacheEnabled {
		t.Error("Expected default settings to enable the second-level cache")
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	db, _ := testsupport.NewDB(t)
	badSettings := mapping.DefaultSettings()
	badSettings.DefaultFetchSize = -1

	tests := []struct {
		name string
		run  func() error
		code string
	}{
		{
			name: "invalid store",
			run: func() error {
				_, err := NewSQLContainer(mapping.DefaultSettings(), db, WithStoreConfig(cacheinfra.Config{NumShards: 1}))
				return err
			},
			code: errs.CodeInvalidConfig,
		},
		{
			name: "invalid settings",
			run: func() error {
				_, err := NewSQLContainer(badSettings, db)
				return err
			},
			code: errs.CodeInvalidConfig,
		},
		{
			name: "missing database",
			run: func() error {
				_, err := NewSQLContainer(mapping.DefaultSettings(), nil)
				return err
			},
			code: errs.CodeInvalidConfig,
		},
		{
			name: "missing transaction factory",
			run: func() error {
				_, err := NewContainer(mapping.DefaultSettings(), nil)
				return err
			},
			code: errs.CodeInvalidConfig,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.run()
			if !errs.HasCode(err, tc.code) {
				t.Errorf("Expected %s, got %v", tc.code, err)
			}
		})
	}
}

func TestNewBunContainer(t *testing.T) {
	sqldb, _ := testsupport.NewDB(t)
	db := bun.NewDB(sqldb, pgdialect.New())

	container, err := NewBunContainer(mapping.DefaultSettings(), db)
	if err != nil {
		t.Fatalf("NewBunContainer() failed: %v", err)
	}

	s := container.OpenSession()
	defer s.Close(context.Background())
	if _, ok := s.Executor().Transaction().(*transaction.Bun); !ok {
		t.Errorf("Expected a bun transaction, got %T", s.Executor().Transaction())
	}
}

func TestContainerCachesShareStore(t *testing.T) {
	db, _ := testsupport.NewDB(t)
	container, err := NewContainerWithDefaults(db)
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	authors, err := container.NewCache(cache.DefaultConfig("author"))
	if err != nil {
		t.Fatalf("NewCache(author) failed: %v", err)
	}
	blogs, err := container.NewCache(cache.DefaultConfig("blog"))
	if err != nil {
		t.Fatalf("NewCache(blog) failed: %v", err)
	}

	ctx := context.Background()
	key := cache.NewCacheKey("select", 1)
	if err := authors.Put(ctx, key, []any{"ann"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := blogs.Put(ctx, key, []any{"go"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := blogs.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	if v, _ := authors.Get(ctx, key); v == nil {
		t.Error("Clearing one cache should not touch another on the same store")
	}
	if v, _ := blogs.Get(ctx, key); v != nil {
		t.Errorf("Expected cleared cache to miss, got %v", v)
	}

	if _, ok := container.Configuration().Cache("author"); !ok {
		t.Error("Expected the cache to be registered")
	}
	if _, err := container.NewCache(cache.DefaultConfig("author")); !errs.HasCode(err, errs.CodeInvalidConfig) {
		t.Errorf("Expected duplicate cache id to fail, got %v", err)
	}
}
