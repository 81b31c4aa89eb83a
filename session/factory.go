package session

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/goliatone/go-sqlmap/executor"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/transaction"
)

var _ loader.Source = (*Factory)(nil)

// Factory opens sessions over one configuration and transaction factory.
type Factory struct {
	cfg *mapping.Configuration
	txf transaction.Factory
}

// NewFactory returns a factory opening transactions with txf.
func NewFactory(cfg *mapping.Configuration, txf transaction.Factory) *Factory {
	return &Factory{cfg: cfg, txf: txf}
}

func (f *Factory) Configuration() *mapping.Configuration { return f.cfg }

// OpenOption configures a session.
type OpenOption func(*openOptions)

type openOptions struct {
	executorType mapping.ExecutorType
	autoCommit   bool
	txOptions    *sql.TxOptions
	typeSet      bool
}

// WithExecutorType overrides the configured default executor type.
func WithExecutorType(typ mapping.ExecutorType) OpenOption {
	return func(o *openOptions) { o.executorType, o.typeSet = typ, true }
}

// WithAutoCommit runs every statement outside an explicit transaction.
func WithAutoCommit(autoCommit bool) OpenOption {
	return func(o *openOptions) { o.autoCommit = autoCommit }
}

// WithTxOptions sets the isolation level and read-only flag of the
// session transaction.
func WithTxOptions(opts *sql.TxOptions) OpenOption {
	return func(o *openOptions) { o.txOptions = opts }
}

// Open starts a session. The session must be closed.
func (f *Factory) Open(opts ...OpenOption) *Session {
	o := openOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.typeSet {
		o.executorType = f.cfg.Settings.DefaultExecutorType
	}

	id := uuid.NewString()
	tx := f.txf.NewTransaction(o.txOptions, o.autoCommit)
	exec := executor.New(f.cfg, tx, o.executorType, executor.WithID(id), executor.WithOpener(f.OpenExecutor))
	s := &Session{
		id:         id,
		cfg:        f.cfg,
		exec:       exec,
		autoCommit: o.autoCommit,
		log:        logging.WithSession(id),
	}
	s.log.Debug("session opened", "executor", o.executorType.String(), "auto_commit", o.autoCommit)
	return s
}

// OpenExecutor opens a short-lived simple executor with its own
// transaction, used by lazy loads that outlive their session.
func (f *Factory) OpenExecutor(context.Context) (loader.Executor, error) {
	tx := f.txf.NewTransaction(nil, false)
	return executor.New(f.cfg, tx, mapping.ExecutorSimple, executor.WithOpener(f.OpenExecutor)), nil
}
