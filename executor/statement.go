package executor

import (
	"context"
	"database/sql"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/scripting"
	"github.com/goliatone/go-sqlmap/transaction"
)

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// outParameter is an OUT or INOUT argument the driver writes back.
type outParameter struct {
	mapping mapping.ParameterMapping
	dest    reflect.Value
}

// statement is one execution of a mapped statement: the SQL as the driver
// expects it and its encoded arguments.
type statement struct {
	ms    *mapping.MappedStatement
	bound *mapping.BoundSQL
	param any
	sql   string
	args  []any
	outs  []outParameter
}

// newStatement encodes the parameters of bound for conn. Connections that
// format arguments themselves keep ? markers and cannot receive OUT
// parameters.
func (b *Base) newStatement(conn bun.IConn, ms *mapping.MappedStatement, param any, bound *mapping.BoundSQL) (*statement, error) {
	interpolates := transaction.Interpolates(conn)
	st := &statement{ms: ms, bound: bound, param: param, sql: bound.SQL}
	if !interpolates {
		st.sql = scripting.Rewrite(bound.SQL, b.cfg.Settings.Placeholder)
	}

	codecs := b.cfg.Codecs
	for _, pm := range bound.ParameterMappings {
		var value any
		if pm.Mode != mapping.ModeOut {
			v, err := bound.ParameterValue(pm.Property, codecs)
			if err != nil {
				return nil, errs.Wrap(err, errs.CodeReflection,
					"cannot read parameter '"+pm.Property+"' of '"+ms.ID+"'", goerrors.CategoryBadInput)
			}
			codec := pm.Codec
			if codec == nil {
				codec = codecs.ForValue(v, pm.SQLType)
			}
			if v != nil {
				if value, err = codec.Encode(v); err != nil {
					return nil, errs.Wrap(err, errs.CodeResultShape,
						"cannot encode parameter '"+pm.Property+"' of '"+ms.ID+"'", goerrors.CategoryBadInput)
				}
			}
		}
		if !pm.IsOut() {
			st.args = append(st.args, value)
			continue
		}

		if interpolates {
			return nil, errs.New(errs.CodeInvalidMapping,
				"statement '"+ms.ID+"' has OUT parameters, which need a database/sql connection",
				goerrors.CategoryValidation)
		}
		t := pm.GoType
		if t == nil {
			t = anyType
		}
		dest := reflect.New(t)
		if pm.Mode == mapping.ModeInOut && value != nil {
			if err := reflection.Assign(dest.Elem(), value); err != nil {
				return nil, err
			}
		}
		st.outs = append(st.outs, outParameter{mapping: pm, dest: dest})
		st.args = append(st.args, sql.Out{Dest: dest.Interface(), In: pm.Mode == mapping.ModeInOut})
	}
	return st, nil
}

// applyOutParameters copies the OUT values the driver wrote into the
// parameter object.
func (b *Base) applyOutParameters(st *statement) error {
	if len(st.outs) == 0 || st.param == nil {
		return nil
	}
	meta := b.cfg.Reflection.MetaObject(st.param)
	for _, out := range st.outs {
		value := out.dest.Elem().Interface()
		if value != nil && out.mapping.Codec != nil {
			v, err := out.mapping.Codec.Decode(value)
			if err != nil {
				return errs.Wrap(err, errs.CodeResultShape,
					"cannot decode OUT parameter '"+out.mapping.Property+"'", goerrors.CategoryBadInput)
			}
			value = v
		}
		if err := meta.SetValue(out.mapping.Property, value); err != nil {
			return errs.Wrap(err, errs.CodeReflection,
				"cannot set OUT parameter '"+out.mapping.Property+"'", goerrors.CategoryBadInput)
		}
	}
	return nil
}

// applyGeneratedKey stores the id generated by an insert in the key
// property of param.
func (b *Base) applyGeneratedKey(ms *mapping.MappedStatement, param any, res sql.Result) error {
	if ms.KeyProperty == "" || param == nil || res == nil {
		return nil
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errs.Wrap(err, errs.CodeExecution,
			"driver cannot report the key generated by '"+ms.ID+"'", goerrors.CategoryOperation)
	}
	if err := b.cfg.Reflection.MetaObject(param).SetValue(ms.KeyProperty, id); err != nil {
		return errs.Wrap(err, errs.CodeReflection,
			"cannot set key property '"+ms.KeyProperty+"' of '"+ms.ID+"'", goerrors.CategoryBadInput)
	}
	return nil
}

// withTimeout bounds ctx by the statement timeout, or the default one.
func (b *Base) withTimeout(ctx context.Context, ms *mapping.MappedStatement) (context.Context, context.CancelFunc) {
	d := ms.Timeout
	if d == 0 {
		d = b.cfg.Settings.DefaultStatementTimeout
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
