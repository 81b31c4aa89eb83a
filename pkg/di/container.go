package di

import (
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/cacheinfra"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/scripting"
	"github.com/goliatone/go-sqlmap/session"
	"github.com/goliatone/go-sqlmap/transaction"
)

// Container wires the engine: one configuration, one template language,
// one store shared by every second-level cache and one session factory.
type Container struct {
	cfg      *mapping.Configuration
	lang     *scripting.Language
	store    *cacheinfra.Store
	storeCfg cacheinfra.Config
	factory  *session.Factory
}

// Option configures a Container.
type Option func(*options)

type options struct {
	store         cacheinfra.Config
	defaultSource bool
}

// WithStoreConfig sizes the store shared by second-level caches.
func WithStoreConfig(cfg cacheinfra.Config) Option {
	return func(o *options) { o.store = cfg }
}

// WithDefaultSource registers the session factory as the source lazy
// handles reattach to after being copied out of a read-write cache.
func WithDefaultSource() Option {
	return func(o *options) { o.defaultSource = true }
}

// NewContainer validates settings and wires the engine over txf.
func NewContainer(settings mapping.Settings, txf transaction.Factory, opts ...Option) (*Container, error) {
	o := options{store: cacheinfra.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if txf == nil {
		return nil, errs.New(errs.CodeInvalidConfig, "a transaction factory is required", goerrors.CategoryValidation)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	store, err := cacheinfra.NewStore(o.store)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeInvalidConfig, "creating cache store", goerrors.CategoryValidation)
	}

	cfg := mapping.NewConfiguration(settings)
	lang, err := scripting.NewLanguage(cfg)
	if err != nil {
		return nil, err
	}

	factory := session.NewFactory(cfg, txf)
	if o.defaultSource {
		loader.SetDefaultSource(factory)
	}

	return &Container{
		cfg:      cfg,
		lang:     lang,
		store:    store,
		storeCfg: o.store,
		factory:  factory,
	}, nil
}

// NewSQLContainer wires the engine over a database/sql pool.
func NewSQLContainer(settings mapping.Settings, db *sql.DB, opts ...Option) (*Container, error) {
	if db == nil {
		return nil, errs.New(errs.CodeInvalidConfig, "a database is required", goerrors.CategoryValidation)
	}
	return NewContainer(settings, transaction.SQLFactory{DB: db}, opts...)
}

// NewBunContainer wires the engine over a bun database. Bun formats
// arguments itself, so statements keep ? markers and cannot use OUT
// parameters.
func NewBunContainer(settings mapping.Settings, db bun.IDB, opts ...Option) (*Container, error) {
	if db == nil {
		return nil, errs.New(errs.CodeInvalidConfig, "a database is required", goerrors.CategoryValidation)
	}
	return NewContainer(settings, transaction.BunFactory{DB: db}, opts...)
}

// NewContainerWithDefaults wires the engine over db with default settings.
func NewContainerWithDefaults(db *sql.DB) (*Container, error) {
	return NewSQLContainer(mapping.DefaultSettings(), db)
}

func (c *Container) Configuration() *mapping.Configuration { return c.cfg }

func (c *Container) Language() *scripting.Language { return c.lang }

func (c *Container) Factory() *session.Factory { return c.factory }

// StoreConfig returns a copy of the shared store configuration.
func (c *Container) StoreConfig() cacheinfra.Config { return c.storeCfg }

// OpenSession starts a session on the container's factory.
func (c *Container) OpenSession(opts ...session.OpenOption) *session.Session {
	return c.factory.Open(opts...)
}

// NewCache builds a second-level cache on the shared store and registers
// it with the configuration.
func (c *Container) NewCache(cfg cache.Config) (cache.Cache, error) {
	cc, err := cfg.BuildOn(c.store)
	if err != nil {
		return nil, err
	}
	if err := c.cfg.AddCache(cc); err != nil {
		return nil, err
	}
	return cc, nil
}

// Raw registers a statement whose SQL holds only #{} placeholders.
func (c *Container) Raw(id string, cmd mapping.CommandType, sql string, opts ...mapping.StatementOption) (*mapping.MappedStatement, error) {
	src, err := c.lang.Raw(sql, nil)
	if err != nil {
		return nil, err
	}
	return c.Statement(id, cmd, src, opts...)
}

// Dynamic registers a statement rendered from template nodes per call.
func (c *Container) Dynamic(id string, cmd mapping.CommandType, nodes []scripting.Node, opts ...mapping.StatementOption) (*mapping.MappedStatement, error) {
	src, err := c.lang.Source(nodes...)
	if err != nil {
		return nil, err
	}
	return c.Statement(id, cmd, src, opts...)
}

// Statement registers a statement over an existing source.
func (c *Container) Statement(id string, cmd mapping.CommandType, src mapping.SQLSource, opts ...mapping.StatementOption) (*mapping.MappedStatement, error) {
	ms := mapping.NewStatement(id, cmd, src, opts...)
	if err := c.cfg.AddStatement(ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// ResultMap registers a result map.
func (c *Container) ResultMap(rm *mapping.ResultMap) error {
	return c.cfg.AddResultMap(rm)
}

// Validate checks every cross reference between registered statements and
// result maps.
func (c *Container) Validate() error {
	return c.cfg.Validate()
}
