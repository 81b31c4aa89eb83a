package scripting

import (
	"reflect"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/mapping"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/types"
)

// SourceBuilder turns rendered SQL holding #{...} placeholders into a
// StaticSource with ? markers and ordered parameter mappings.
type SourceBuilder struct {
	codecs     *types.Registry
	reflection *reflection.Registry
	shrink     bool
}

// NewSourceBuilder creates a builder resolving types and codecs against the
// given registries.
func NewSourceBuilder(codecs *types.Registry, reg *reflection.Registry, shrinkWhitespace bool) *SourceBuilder {
	return &SourceBuilder{codecs: codecs, reflection: reg, shrink: shrinkWhitespace}
}

// Parse replaces every placeholder of sql:
//
//	#{property}
//	#{property,goType=int64,sqlType=BIGINT,mode=IN,codec=name}
//	#{property:BIGINT}
//
// paramType types the properties and additional holds values bound while
// rendering, which take precedence.
func (b *SourceBuilder) Parse(sql string, paramType reflect.Type, additional map[string]any) (*StaticSource, error) {
	var mappings []mapping.ParameterMapping
	p := newTokenParser("#{", "}", func(content string) (string, error) {
		pm, err := b.parameterMapping(content, paramType, additional)
		if err != nil {
			return "", err
		}
		mappings = append(mappings, pm)
		return "?", nil
	})
	if b.shrink {
		sql = ShrinkWhitespace(sql)
	}
	out, err := p.parse(sql)
	if err != nil {
		return nil, err
	}
	return &StaticSource{SQL: out, ParameterMappings: mappings}, nil
}

// placeholder is a parsed #{...} body.
type placeholder struct {
	property string
	attrs    map[string]string
}

func parsePlaceholder(content string) (placeholder, error) {
	ph := placeholder{attrs: map[string]string{}}
	parts := strings.Split(content, ",")
	head := strings.TrimSpace(parts[0])
	if i := strings.IndexByte(head, ':'); i >= 0 {
		ph.attrs["sqltype"] = strings.TrimSpace(head[i+1:])
		head = strings.TrimSpace(head[:i])
	}
	ph.property = head
	if ph.property == "" {
		return ph, invalidPlaceholder(content, "missing property")
	}
	for _, part := range parts[1:] {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			return ph, invalidPlaceholder(content, "attribute '"+strings.TrimSpace(part)+"' has no value")
		}
		key := strings.ToLower(strings.TrimSpace(name))
		switch key {
		case "gotype", "sqltype", "codec", "mode":
		default:
			return ph, invalidPlaceholder(content, "unknown attribute '"+strings.TrimSpace(name)+"'")
		}
		ph.attrs[key] = strings.TrimSpace(value)
	}
	return ph, nil
}

func invalidPlaceholder(content, reason string) error {
	return errs.New(errs.CodeInvalidTemplate, "invalid placeholder #{"+content+"}: "+reason, goerrors.CategoryValidation).
		WithMetadata(map[string]any{"placeholder": content})
}

func (b *SourceBuilder) parameterMapping(content string, paramType reflect.Type, additional map[string]any) (mapping.ParameterMapping, error) {
	ph, err := parsePlaceholder(content)
	if err != nil {
		return mapping.ParameterMapping{}, err
	}
	pm := mapping.ParameterMapping{Property: ph.property, SQLType: ph.attrs["sqltype"]}

	if m, ok := ph.attrs["mode"]; ok {
		mode, valid := mapping.ParseParameterMode(m)
		if !valid {
			return pm, invalidPlaceholder(content, "unknown mode '"+m+"'")
		}
		pm.Mode = mode
	}

	if name, ok := ph.attrs["gotype"]; ok {
		t, found := b.codecs.Alias(name)
		if !found {
			return pm, invalidPlaceholder(content, "unknown goType '"+name+"'")
		}
		pm.GoType = t
	} else {
		pm.GoType = b.propertyType(ph.property, paramType, additional)
	}

	if name, ok := ph.attrs["codec"]; ok {
		c, found := b.codecs.Named(name)
		if !found {
			return pm, errs.New(errs.CodeCodecNotFound,
				"no codec named '"+name+"' for parameter '"+ph.property+"'", goerrors.CategoryNotFound).
				WithMetadata(map[string]any{"property": ph.property, "codec": name})
		}
		pm.Codec = c
		return pm, nil
	}
	if pm.GoType != nil && pm.GoType.Kind() != reflect.Interface {
		c, err := b.codecs.MustLookup(pm.GoType, pm.SQLType, ph.property, "")
		if err != nil {
			return pm, err
		}
		pm.Codec = c
	}
	return pm, nil
}

// propertyType resolves the Go type of a placeholder property. Unknown
// types stay nil and are resolved from the value at execution time.
func (b *SourceBuilder) propertyType(property string, paramType reflect.Type, additional map[string]any) reflect.Type {
	if _, bound := additional[reflection.BaseName(property)]; bound {
		v, err := b.reflection.MetaObject(additional).GetValue(property)
		if err != nil || v == nil {
			return nil
		}
		return reflect.TypeOf(v)
	}
	if paramType == nil {
		return nil
	}
	if b.codecs.Has(paramType) && !reflection.IsBean(paramType) {
		return paramType
	}
	base := reflection.Deref(paramType)
	switch base.Kind() {
	case reflect.Map, reflect.Interface:
		return nil
	case reflect.Struct:
		mc := b.reflection.ForType(base)
		if !mc.HasProperty(property) {
			return nil
		}
		t, err := mc.PropertyType(property)
		if err != nil {
			return nil
		}
		return t
	}
	return nil
}
