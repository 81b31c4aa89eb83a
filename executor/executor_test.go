package executor

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/pkg/testsupport"
	"github.com/goliatone/go-sqlmap/scripting"
	"github.com/goliatone/go-sqlmap/transaction"
)

type Author struct {
	ID   int64
	Name string
}

type Person struct {
	ID     int64
	Name   string
	Parent *Person
}

type authorParam struct {
	ID int64
}

type newAuthor struct {
	ID   int64
	Name string
}

type postCount struct {
	ID    int64
	Total int64
}

type fixture struct {
	t      *testing.T
	cfg    *mapping.Configuration
	lang   *scripting.Language
	db     *sql.DB
	driver *testsupport.Driver
}

func newFixture(t *testing.T, settings mapping.Settings) *fixture {
	t.Helper()
	cfg := mapping.NewConfiguration(settings)
	lang, err := scripting.NewLanguage(cfg)
	if err != nil {
		t.Fatalf("NewLanguage: %v", err)
	}
	db, driver := testsupport.NewDB(t)
	return &fixture{t: t, cfg: cfg, lang: lang, db: db, driver: driver}
}

func (f *fixture) declare(id string, cmd mapping.CommandType, query string, opts ...mapping.StatementOption) *mapping.MappedStatement {
	f.t.Helper()
	src, err := f.lang.Raw(query, nil)
	if err != nil {
		f.t.Fatalf("Raw(%s): %v", id, err)
	}
	ms := mapping.NewStatement(id, cmd, src, opts...)
	if err := f.cfg.AddStatement(ms); err != nil {
		f.t.Fatalf("AddStatement(%s): %v", id, err)
	}
	return ms
}

func (f *fixture) open(typ mapping.ExecutorType) Executor {
	f.t.Helper()
	exec := New(f.cfg, transaction.NewSQL(f.db, nil, false), typ)
	f.t.Cleanup(func() { _ = exec.Close(context.Background(), true) })
	return exec
}

func (f *fixture) selectAuthor(opts ...mapping.StatementOption) *mapping.MappedStatement {
	opts = append([]mapping.StatementOption{mapping.WithResultType(Author{})}, opts...)
	return f.declare("selectAuthor", mapping.CommandSelect, "SELECT id, name FROM author WHERE id = #{ID}", opts...)
}

func (f *fixture) authorRows() {
	f.driver.On("FROM author", testsupport.Rows([]string{"id", "name"}, testsupport.Row(int64(1), "ann")))
}

func query(t *testing.T, exec Executor, ms *mapping.MappedStatement, param any) []any {
	t.Helper()
	list, err := exec.Query(context.Background(), ms, param, mapping.DefaultRowBounds, nil)
	if err != nil {
		t.Fatalf("Query(%s): %v", ms.ID, err)
	}
	return list
}

func TestLocalCacheServesRepeatedQuery(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	f.authorRows()
	exec := f.open(mapping.ExecutorSimple)

	first := query(t, exec, ms, authorParam{ID: 1})
	second := query(t, exec, ms, authorParam{ID: 1})

	if n := f.driver.Count("FROM author"); n != 1 {
		t.Fatalf("expected one database query, got %d", n)
	}
	if len(first) != 1 || first[0] != second[0] {
		t.Fatalf("expected the cached list to be returned, got %v and %v", first, second)
	}
	if a := first[0].(*Author); a.Name != "ann" {
		t.Fatalf("unexpected author %+v", a)
	}
}

func TestUpdateClearsLocalCache(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	upd := f.declare("renameAuthor", mapping.CommandUpdate, "UPDATE author SET name = #{Name} WHERE id = #{ID}")
	f.authorRows()
	f.driver.On("UPDATE author", testsupport.Response{RowsAffected: 1})
	exec := f.open(mapping.ExecutorSimple)

	query(t, exec, ms, authorParam{ID: 1})
	n, err := exec.Update(context.Background(), upd, newAuthor{ID: 1, Name: "bob"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 affected row, got %d", n)
	}
	query(t, exec, ms, authorParam{ID: 1})

	if n := f.driver.Count("FROM author"); n != 2 {
		t.Fatalf("expected the update to clear the local cache, got %d queries", n)
	}
}

func TestStatementScopeClearsAfterEachQuery(t *testing.T) {
	settings := mapping.DefaultSettings()
	settings.LocalCacheScope = mapping.LocalCacheStatement
	f := newFixture(t, settings)
	ms := f.selectAuthor()
	f.authorRows()
	exec := f.open(mapping.ExecutorSimple)

	query(t, exec, ms, authorParam{ID: 1})
	query(t, exec, ms, authorParam{ID: 1})

	if n := f.driver.Count("FROM author"); n != 2 {
		t.Fatalf("expected two database queries, got %d", n)
	}
}

func TestCreateCacheKey(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	b := NewBase(f.cfg, transaction.NewSQL(f.db, nil, false), mapping.ExecutorSimple)

	key := func(b *Base, param authorParam, rb mapping.RowBounds) *cache.CacheKey {
		bound, err := ms.BoundSQL(param)
		if err != nil {
			t.Fatalf("BoundSQL: %v", err)
		}
		return b.CreateCacheKey(ms, param, rb, bound)
	}
	base := key(b, authorParam{ID: 1}, mapping.DefaultRowBounds)

	envSettings := mapping.DefaultSettings()
	envSettings.EnvironmentID = "replica"
	envCfg := mapping.NewConfiguration(envSettings)
	envBase := NewBase(envCfg, transaction.NewSQL(f.db, nil, false), mapping.ExecutorSimple)

	tests := []struct {
		name  string
		key   *cache.CacheKey
		equal bool
	}{
		{name: "same parameters", key: key(b, authorParam{ID: 1}, mapping.DefaultRowBounds), equal: true},
		{name: "different parameter", key: key(b, authorParam{ID: 2}, mapping.DefaultRowBounds)},
		{name: "different offset", key: key(b, authorParam{ID: 1}, mapping.NewRowBounds(5, mapping.NoRowLimit))},
		{name: "different limit", key: key(b, authorParam{ID: 1}, mapping.NewRowBounds(0, 10))},
		{name: "unset bounds", key: key(b, authorParam{ID: 1}, mapping.RowBounds{}), equal: true},
		{name: "zero limit", key: key(b, authorParam{ID: 1}, mapping.NewRowBounds(0, 0))},
		{name: "different environment", key: key(envBase, authorParam{ID: 1}, mapping.DefaultRowBounds)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.key); got != tt.equal {
				t.Fatalf("Equal() = %v, want %v (%s vs %s)", got, tt.equal, base, tt.key)
			}
		})
	}

	_ = b.Close(context.Background(), false)
	if k := key(b, authorParam{ID: 1}, mapping.DefaultRowBounds); k != cache.NullKey {
		t.Fatalf("expected a closed executor to return the null key, got %s", k)
	}
}

func TestZeroLimitReadsNoRows(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	f.authorRows()
	exec := f.open(mapping.ExecutorSimple)
	ctx := context.Background()

	list, err := exec.Query(ctx, ms, authorParam{ID: 1}, mapping.NewRowBounds(0, 0), nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected an empty page, got %v", list)
	}

	list, err = exec.Query(ctx, ms, authorParam{ID: 1}, mapping.RowBounds{}, nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected unset bounds to read every row, got %v", list)
	}
}

func TestCreateCacheKeyLogsUnreadableParameter(t *testing.T) {
	var buf bytes.Buffer
	logging.Configure(logging.Config{Level: logging.LevelWarn, Output: &buf})
	t.Cleanup(func() { logging.SetLogger(nil) })

	f := newFixture(t, mapping.DefaultSettings())
	ms := f.declare("selectMissing", mapping.CommandSelect, "SELECT id FROM author WHERE id = #{Missing}",
		mapping.WithResultType(Author{}))
	b := NewBase(f.cfg, transaction.NewSQL(f.db, nil, false), mapping.ExecutorSimple)
	defer b.Close(context.Background(), true)

	bound, err := ms.BoundSQL(authorParam{ID: 1})
	if err != nil {
		t.Fatalf("BoundSQL: %v", err)
	}
	key := b.CreateCacheKey(ms, authorParam{ID: 1}, mapping.DefaultRowBounds, bound)

	nilKey := cache.NewCacheKey(ms.ID, 0, mapping.NoRowLimit, bound.SQL)
	nilKey.Update(nil)
	if key.Equal(nilKey) {
		t.Fatal("expected an unreadable parameter not to share the key of a nil value")
	}
	if out := buf.String(); !strings.Contains(out, "cannot read parameter for cache key") ||
		!strings.Contains(out, "property=Missing") {
		t.Fatalf("expected a warning for the unreadable parameter, got %q", out)
	}
}

func TestRecursiveQueryFails(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	f.authorRows()
	b := NewBase(f.cfg, transaction.NewSQL(f.db, nil, false), mapping.ExecutorSimple)
	defer b.Close(context.Background(), true)

	param := authorParam{ID: 1}
	bound, _ := ms.BoundSQL(param)
	key := b.CreateCacheKey(ms, param, mapping.DefaultRowBounds, bound)
	b.local.put(key, executionPlaceholder)

	_, err := b.QueryWithKey(context.Background(), ms, param, mapping.DefaultRowBounds, nil, key, bound)
	if !errs.HasCode(err, errs.CodeRecursiveQuery) {
		t.Fatalf("expected %s, got %v", errs.CodeRecursiveQuery, err)
	}
	if n := f.driver.Count("FROM author"); n != 0 {
		t.Fatalf("expected no database query, got %d", n)
	}
}

func TestNestedQueryOnRunningKeyIsDeferred(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	if err := f.cfg.AddResultMap(mapping.NewResultMap("personMap", Person{}, mapping.Mappings(
		mapping.ID("ID", "id"),
		mapping.Result("Name", "name"),
		mapping.Association("Parent", mapping.NestedQuery("selectPerson"), mapping.Column("parent_id")),
	))); err != nil {
		t.Fatalf("AddResultMap: %v", err)
	}
	ms := f.declare("selectPerson", mapping.CommandSelect,
		"SELECT id, name, parent_id FROM person WHERE id = #{id}", mapping.WithResultMaps("personMap"))
	f.driver.On("FROM person", testsupport.Rows([]string{"id", "name", "parent_id"},
		testsupport.Row(int64(1), "ann", int64(1))))
	exec := f.open(mapping.ExecutorSimple)

	list := query(t, exec, ms, int64(1))

	p := list[0].(*Person)
	if p.Parent != p {
		t.Fatalf("expected the deferred parent to resolve to the row itself, got %+v", p.Parent)
	}
	if n := f.driver.Count("FROM person"); n != 1 {
		t.Fatalf("expected one database query, got %d", n)
	}
}

func TestReuseExecutorPreparesOnce(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	upd := f.declare("renameAuthor", mapping.CommandUpdate, "UPDATE author SET name = #{Name} WHERE id = #{ID}")
	f.driver.On("UPDATE author", testsupport.Response{RowsAffected: 1})
	exec := f.open(mapping.ExecutorReuse)

	for _, name := range []string{"bob", "cid", "dee"} {
		if _, err := exec.Update(context.Background(), upd, newAuthor{ID: 1, Name: name}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	if n := len(f.driver.CallsOf("prepare")); n != 1 {
		t.Fatalf("expected one prepare, got %d", n)
	}
	if n := f.driver.Count("UPDATE author"); n != 3 {
		t.Fatalf("expected three executions, got %d", n)
	}
	if err := exec.Commit(context.Background(), true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n := len(f.driver.CallsOf("commit")); n != 1 {
		t.Fatalf("expected one commit, got %d", n)
	}
}

func TestBatchExecutorQueuesUpdates(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ins := f.declare("insertAuthor", mapping.CommandInsert, "INSERT INTO author (name) VALUES (#{Name})",
		mapping.KeyProperty("ID"))
	del := f.declare("deleteAuthor", mapping.CommandDelete, "DELETE FROM author WHERE id = #{ID}")
	f.driver.On("INSERT INTO author", testsupport.Response{RowsAffected: 1, LastInsertID: 9})
	f.driver.On("DELETE FROM author", testsupport.Response{RowsAffected: 2})
	exec := f.open(mapping.ExecutorBatch)
	ctx := context.Background()

	first, second := &newAuthor{Name: "ann"}, &newAuthor{Name: "bob"}
	for _, step := range []struct {
		ms    *mapping.MappedStatement
		param any
	}{
		{ins, first},
		{ins, second},
		{del, authorParam{ID: 3}},
	} {
		n, err := exec.Update(ctx, step.ms, step.param)
		if err != nil {
			t.Fatalf("Update(%s): %v", step.ms.ID, err)
		}
		if n != BatchPending {
			t.Fatalf("expected BatchPending, got %d", n)
		}
	}
	if n := f.driver.Count("INSERT INTO author"); n != 0 {
		t.Fatalf("expected nothing to run before the flush, got %d", n)
	}

	results, err := exec.FlushStatements(ctx)
	if err != nil {
		t.Fatalf("FlushStatements: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two groups, got %d", len(results))
	}
	if got := results[0].UpdateCounts; len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("unexpected insert counts %v", got)
	}
	if got := results[1].UpdateCounts; len(got) != 1 || got[0] != 2 {
		t.Fatalf("unexpected delete counts %v", got)
	}
	if n := len(f.driver.CallsOf("prepare")); n != 2 {
		t.Fatalf("expected one prepare per group, got %d", n)
	}
	if first.ID != 9 || second.ID != 9 {
		t.Fatalf("expected generated keys to be applied, got %d and %d", first.ID, second.ID)
	}
}

func TestBatchExecutorFlushesBeforeQuery(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	del := f.declare("deleteAuthor", mapping.CommandDelete, "DELETE FROM author WHERE id = #{ID}")
	f.authorRows()
	f.driver.On("DELETE FROM author", testsupport.Response{RowsAffected: 1})
	exec := f.open(mapping.ExecutorBatch)

	if _, err := exec.Update(context.Background(), del, authorParam{ID: 2}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	query(t, exec, ms, authorParam{ID: 1})

	var kinds []string
	for _, c := range f.driver.Calls() {
		if c.Kind == "exec" || c.Kind == "query" {
			kinds = append(kinds, c.Kind)
		}
	}
	if strings.Join(kinds, ",") != "exec,query" {
		t.Fatalf("expected the queued delete to run before the select, got %v", kinds)
	}
}

func TestBatchFailureReportsGroup(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ins := f.declare("insertAuthor", mapping.CommandInsert, "INSERT INTO author (name) VALUES (#{Name})")
	upd := f.declare("renameAuthor", mapping.CommandUpdate, "UPDATE author SET name = #{Name} WHERE id = #{ID}")
	f.driver.On("INSERT INTO author", testsupport.Response{RowsAffected: 1})
	f.driver.On("UPDATE author", testsupport.Response{Err: errors.New("deadlock")})
	exec := f.open(mapping.ExecutorBatch)
	ctx := context.Background()

	if _, err := exec.Update(ctx, ins, newAuthor{Name: "ann"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := exec.Update(ctx, upd, newAuthor{ID: 1, Name: "bob"}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	_, err := exec.FlushStatements(ctx)
	if !errs.HasCode(err, errs.CodeBatchFailed) {
		t.Fatalf("expected %s, got %v", errs.CodeBatchFailed, err)
	}
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected a BatchError, got %T", err)
	}
	if be.Index != 1 || be.Entry != 0 || be.StatementID != "renameAuthor" || len(be.Results) != 2 {
		t.Fatalf("unexpected batch error %+v", be)
	}
	if got := be.Results[0].UpdateCounts; len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected the insert group to be reported, got %v", got)
	}
	if got := be.Results[1]; len(got.UpdateCounts) != 0 || len(got.Parameters) != 0 {
		t.Fatalf("expected an empty partial group, got %+v", got)
	}
}

func TestBatchFailureInsideGroupReportsCompletedEntries(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ins := f.declare("insertAuthor", mapping.CommandInsert, "INSERT INTO author (name) VALUES (#{Name})")
	f.driver.Once("INSERT INTO author", testsupport.Response{RowsAffected: 1})
	f.driver.Once("INSERT INTO author", testsupport.Response{RowsAffected: 1})
	f.driver.On("INSERT INTO author", testsupport.Response{Err: errors.New("unique violation")})
	exec := f.open(mapping.ExecutorBatch)
	ctx := context.Background()

	for _, name := range []string{"ann", "bob", "cid"} {
		if _, err := exec.Update(ctx, ins, newAuthor{Name: name}); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	results, err := exec.FlushStatements(ctx)
	var be *BatchError
	if !errors.As(err, &be) {
		t.Fatalf("expected a BatchError, got %v", err)
	}
	if n := f.driver.Count("INSERT INTO author"); n != 3 {
		t.Fatalf("expected three executions, got %d", n)
	}
	if be.Index != 0 || be.Entry != 2 || len(be.Results) != 1 {
		t.Fatalf("unexpected batch error %+v", be)
	}
	partial := be.Results[0]
	if got := partial.UpdateCounts; len(got) != 2 || got[0] != 1 || got[1] != 1 {
		t.Fatalf("expected the two completed inserts to be counted, got %v", got)
	}
	if len(partial.Parameters) != 2 || partial.Parameters[1].(newAuthor).Name != "bob" {
		t.Fatalf("expected the parameters of the completed inserts, got %v", partial.Parameters)
	}
	if len(results) != 1 {
		t.Fatalf("expected FlushStatements to return the partial group, got %v", results)
	}
}

func TestBatchRollbackDiscardsQueue(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ins := f.declare("insertAuthor", mapping.CommandInsert, "INSERT INTO author (name) VALUES (#{Name})")
	exec := f.open(mapping.ExecutorBatch)
	ctx := context.Background()

	if _, err := exec.Update(ctx, ins, newAuthor{Name: "ann"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := exec.Rollback(ctx, true); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	results, err := exec.FlushStatements(ctx)
	if err != nil || len(results) != 0 {
		t.Fatalf("expected an empty queue, got %v, %v", results, err)
	}
	if n := f.driver.Count("INSERT INTO author"); n != 0 {
		t.Fatalf("expected the queued insert to be discarded, got %d", n)
	}
}

func newSharedCache(t *testing.T, id string) cache.Cache {
	t.Helper()
	c, err := cache.NewPerpetualDefault(id)
	if err != nil {
		t.Fatalf("NewPerpetualDefault: %v", err)
	}
	return c
}

func TestCachingExecutorPublishesOnCommit(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	shared := newSharedCache(t, "author")
	ms := f.selectAuthor(mapping.WithCache(shared))
	f.authorRows()
	ctx := context.Background()

	writer := f.open(mapping.ExecutorSimple)
	query(t, writer, ms, authorParam{ID: 1})
	if shared.Size() != 0 {
		t.Fatal("expected nothing visible before commit")
	}

	other := f.open(mapping.ExecutorSimple)
	query(t, other, ms, authorParam{ID: 1})
	if n := f.driver.Count("FROM author"); n != 2 {
		t.Fatalf("expected an uncommitted entry to stay private, got %d queries", n)
	}
	if err := other.Rollback(ctx, true); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if err := writer.Commit(ctx, true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	reader := f.open(mapping.ExecutorSimple)
	list := query(t, reader, ms, authorParam{ID: 1})

	if n := f.driver.Count("FROM author"); n != 2 {
		t.Fatalf("expected the committed entry to be served, got %d queries", n)
	}
	if a := list[0].(*Author); a.Name != "ann" {
		t.Fatalf("unexpected cached author %+v", a)
	}
}

func TestCachingExecutorRollbackDiscardsEntries(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	shared := newSharedCache(t, "author")
	ms := f.selectAuthor(mapping.WithCache(shared))
	f.authorRows()
	ctx := context.Background()

	exec := f.open(mapping.ExecutorSimple)
	query(t, exec, ms, authorParam{ID: 1})
	if err := exec.Rollback(ctx, true); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if v, _ := shared.Get(ctx, mustKey(t, exec, ms, authorParam{ID: 1})); v != nil {
		t.Fatalf("expected rollback to leave the shared cache empty, got %v", v)
	}
}

func TestCachingExecutorUpdateFlushesOnCommit(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	shared := newSharedCache(t, "author")
	ms := f.selectAuthor(mapping.WithCache(shared))
	upd := f.declare("renameAuthor", mapping.CommandUpdate, "UPDATE author SET name = #{Name} WHERE id = #{ID}",
		mapping.WithCache(shared))
	f.authorRows()
	f.driver.On("UPDATE author", testsupport.Response{RowsAffected: 1})
	ctx := context.Background()

	exec := f.open(mapping.ExecutorSimple)
	query(t, exec, ms, authorParam{ID: 1})
	if err := exec.Commit(ctx, true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if shared.Size() != 1 {
		t.Fatalf("expected one committed entry, got %d", shared.Size())
	}

	if _, err := exec.Update(ctx, upd, newAuthor{ID: 1, Name: "bob"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if shared.Size() != 1 {
		t.Fatal("expected the clear to wait for commit")
	}
	if err := exec.Commit(ctx, true); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if shared.Size() != 0 {
		t.Fatalf("expected the update to clear the cache on commit, got %d entries", shared.Size())
	}
}

func TestCachingRejectsCallableOutParameters(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.declare("countPosts", mapping.CommandSelect, "{call count_posts(#{ID}, #{Total,mode=OUT,goType=int64})}",
		mapping.Callable(), mapping.WithResultType(Author{}), mapping.WithCache(newSharedCache(t, "posts")))
	exec := f.open(mapping.ExecutorSimple)

	_, err := exec.Query(context.Background(), ms, &postCount{ID: 1}, mapping.DefaultRowBounds, nil)
	if !errs.HasCode(err, errs.CodeInvalidMapping) {
		t.Fatalf("expected %s, got %v", errs.CodeInvalidMapping, err)
	}
}

func mustKey(t *testing.T, exec Executor, ms *mapping.MappedStatement, param any) *cache.CacheKey {
	t.Helper()
	bound, err := ms.BoundSQL(param)
	if err != nil {
		t.Fatalf("BoundSQL: %v", err)
	}
	return exec.CreateCacheKey(ms, param, mapping.DefaultRowBounds, bound)
}

func TestCallableOutParameters(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	call := f.declare("countPosts", mapping.CommandUpdate, "{call count_posts(#{ID}, #{Total,mode=OUT,goType=int64})}",
		mapping.Callable())
	f.driver.On("count_posts", testsupport.Response{Out: map[int]any{2: int64(7)}})
	exec := f.open(mapping.ExecutorSimple)

	param := &postCount{ID: 1}
	if _, err := exec.Update(context.Background(), call, param); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if param.Total != 7 {
		t.Fatalf("expected OUT parameter 7, got %d", param.Total)
	}
}

func TestCallableQueryReplaysOutParameters(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.declare("postAuthors", mapping.CommandSelect, "{call post_authors(#{ID}, #{Total,mode=OUT,goType=int64})}",
		mapping.Callable(), mapping.WithResultType(Author{}))
	f.driver.On("post_authors", testsupport.Response{
		Sets: testsupport.Rows([]string{"id", "name"}, testsupport.Row(int64(1), "ann")).Sets,
		Out:  map[int]any{2: int64(3)},
	})
	exec := f.open(mapping.ExecutorSimple)

	query(t, exec, ms, &postCount{ID: 1})
	replayed := &postCount{ID: 1}
	query(t, exec, ms, replayed)

	if n := f.driver.Count("post_authors"); n != 1 {
		t.Fatalf("expected one call, got %d", n)
	}
	if replayed.Total != 3 {
		t.Fatalf("expected the cached OUT value to be replayed, got %d", replayed.Total)
	}
}

func TestKeyPropertyReceivesGeneratedKey(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ins := f.declare("insertAuthor", mapping.CommandInsert, "INSERT INTO author (name) VALUES (#{Name})",
		mapping.KeyProperty("ID"))
	f.driver.On("INSERT INTO author", testsupport.Response{RowsAffected: 1, LastInsertID: 42})
	exec := f.open(mapping.ExecutorSimple)

	a := &newAuthor{Name: "ann"}
	if _, err := exec.Update(context.Background(), ins, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if a.ID != 42 {
		t.Fatalf("expected generated key 42, got %d", a.ID)
	}
}

func TestClosedExecutorRejectsWork(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	upd := f.declare("renameAuthor", mapping.CommandUpdate, "UPDATE author SET name = #{Name} WHERE id = #{ID}")
	exec := f.open(mapping.ExecutorSimple)
	ctx := context.Background()

	if err := exec.Close(ctx, false); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !exec.IsClosed() {
		t.Fatal("expected the executor to report closed")
	}
	if _, err := exec.Query(ctx, ms, authorParam{ID: 1}, mapping.DefaultRowBounds, nil); !errs.HasCode(err, errs.CodeExecutorClosed) {
		t.Fatalf("Query: expected %s, got %v", errs.CodeExecutorClosed, err)
	}
	if _, err := exec.Update(ctx, upd, newAuthor{ID: 1}); !errs.HasCode(err, errs.CodeExecutorClosed) {
		t.Fatalf("Update: expected %s, got %v", errs.CodeExecutorClosed, err)
	}
	if err := exec.Close(ctx, false); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestPlaceholderStyleRewrite(t *testing.T) {
	settings := mapping.DefaultSettings()
	settings.Placeholder = mapping.PlaceholderDollar
	f := newFixture(t, settings)
	ms := f.declare("selectByName", mapping.CommandSelect,
		"SELECT id, name FROM author WHERE name = #{Name} AND id <> #{ID} AND note = '?'",
		mapping.WithResultType(Author{}))
	f.authorRows()
	exec := f.open(mapping.ExecutorSimple)

	query(t, exec, ms, newAuthor{ID: 2, Name: "ann"})

	calls := f.driver.CallsOf("query")
	if len(calls) != 1 {
		t.Fatalf("expected one query, got %d", len(calls))
	}
	want := "SELECT id, name FROM author WHERE name = $1 AND id <> $2 AND note = '?'"
	if calls[0].Query != want {
		t.Fatalf("unexpected SQL\n got: %s\nwant: %s", calls[0].Query, want)
	}
	if len(calls[0].Args) != 2 || calls[0].Args[0] != "ann" || calls[0].Args[1] != int64(2) {
		t.Fatalf("unexpected arguments %v", calls[0].Args)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	f := newFixture(t, mapping.DefaultSettings())
	ms := f.selectAuthor()
	f.authorRows()
	ctx := context.Background()
	exec := f.open(mapping.ExecutorSimple)

	query(t, exec, ms, authorParam{ID: 1})
	if err := exec.Commit(ctx, false); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if n := len(f.driver.CallsOf("commit")); n != 0 {
		t.Fatalf("expected no commit when not required, got %d", n)
	}
	if err := exec.Close(ctx, true); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := len(f.driver.CallsOf("rollback")); n != 1 {
		t.Fatalf("expected close to roll back, got %d", n)
	}
}
