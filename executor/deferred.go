package executor

import (
	"reflect"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/loader"
	"github.com/goliatone/go-sqlmap/reflection"
)

// deferredLoad fills a property from a local cache entry that was still
// being built when the property was mapped.
type deferredLoad struct {
	statementID string
	target      *reflection.MetaObject
	property    string
	key         *cache.CacheKey
	targetType  reflect.Type
	local       *localCache
}

func (d *deferredLoad) canLoad() bool {
	v, ok := d.local.get(d.key)
	return ok && v != executionPlaceholder
}

func (d *deferredLoad) load() error {
	cached, ok := d.local.get(d.key)
	if !ok || cached == executionPlaceholder {
		return errs.New(errs.CodeExecution,
			"deferred load of '"+d.property+"' from '"+d.statementID+"' found no result", goerrors.CategoryInternal)
	}
	list, _ := cached.([]any)
	value, err := loader.Extract(list, d.targetType)
	if err != nil {
		return err
	}
	if st, err := d.target.SetterType(d.property); err == nil {
		if _, isHandle := loader.ElemType(st); isHandle {
			if value, err = loader.NewResolvedHandle(st, value); err != nil {
				return err
			}
		}
	}
	if err := d.target.SetValue(d.property, value); err != nil {
		return errs.Wrap(err, errs.CodeReflection,
			"cannot set deferred property '"+d.property+"'", goerrors.CategoryBadInput)
	}
	return nil
}
