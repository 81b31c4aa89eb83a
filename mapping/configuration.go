package mapping

import (
	"errors"
	"sort"
	"sync"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/cache"
	"github.com/goliatone/go-sqlmap/errs"
	"github.com/goliatone/go-sqlmap/internal/logging"
	"github.com/goliatone/go-sqlmap/reflection"
	"github.com/goliatone/go-sqlmap/types"
)

// Configuration is the registry of statements, result maps and caches, plus
// the collaborators every session shares.
type Configuration struct {
	Settings      Settings
	Codecs        *types.Registry
	Reflection    *reflection.Registry
	ObjectFactory reflection.ObjectFactory

	mu         sync.RWMutex
	statements map[string]*MappedStatement
	resultMaps map[string]*ResultMap
	caches     map[string]cache.Cache
}

// NewConfiguration creates an empty registry with default collaborators.
func NewConfiguration(settings Settings) *Configuration {
	return &Configuration{
		Settings:      settings,
		Codecs:        types.NewRegistry(),
		Reflection:    reflection.Default(),
		ObjectFactory: reflection.NewObjectFactory(),
		statements:    make(map[string]*MappedStatement),
		resultMaps:    make(map[string]*ResultMap),
		caches:        make(map[string]cache.Cache),
	}
}

// AddResultMap validates rm and registers it. A parent named by Extends must
// already be registered.
func (c *Configuration) AddResultMap(rm *ResultMap) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addResultMapLocked(rm)
}

func (c *Configuration) addResultMapLocked(rm *ResultMap) error {
	if _, dup := c.resultMaps[rm.ID]; dup {
		return errs.New(errs.CodeInvalidMapping, "result map '"+rm.ID+"' is already registered", goerrors.CategoryConflict)
	}
	var parent *ResultMap
	if rm.Extends != "" {
		p, ok := c.resultMaps[rm.Extends]
		if !ok {
			return errs.New(errs.CodeResultMapNotFound,
				"result map '"+rm.ID+"' extends unknown result map '"+rm.Extends+"'", goerrors.CategoryNotFound)
		}
		parent = p
	}
	if err := rm.build(c, parent); err != nil {
		return err
	}
	c.resultMaps[rm.ID] = rm
	return nil
}

// ResultMap returns a registered result map.
func (c *Configuration) ResultMap(id string) (*ResultMap, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if rm, ok := c.resultMaps[id]; ok {
		return rm, nil
	}
	return nil, errs.New(errs.CodeResultMapNotFound, "result map '"+id+"' is not registered", goerrors.CategoryNotFound).
		WithMetadata(map[string]any{"result_map": id})
}

// HasResultMap reports whether id is registered.
func (c *Configuration) HasResultMap(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.resultMaps[id]
	return ok
}

// AddStatement resolves the statement's result maps and registers it.
// Statements declared for another environment are ignored, and a statement
// declared for the current environment replaces a generic one.
func (c *Configuration) AddStatement(ms *MappedStatement) error {
	if ms.ID == "" {
		return errs.New(errs.CodeInvalidMapping, "statement id is required", goerrors.CategoryValidation)
	}
	if ms.Source == nil {
		return errs.New(errs.CodeInvalidMapping, "statement '"+ms.ID+"' has no SQL source", goerrors.CategoryValidation)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ms.DatabaseID != "" && ms.DatabaseID != c.Settings.EnvironmentID {
		logging.WithStatement("configuration", ms.ID).Debug("skipping statement for another environment",
			"database_id", ms.DatabaseID)
		return nil
	}
	if existing, dup := c.statements[ms.ID]; dup {
		switch {
		case existing.DatabaseID == "" && ms.DatabaseID != "":
		case existing.DatabaseID != "" && ms.DatabaseID == "":
			return nil
		default:
			return errs.New(errs.CodeInvalidMapping, "statement '"+ms.ID+"' is already registered", goerrors.CategoryConflict)
		}
	}

	for _, id := range ms.ResultMapIDs {
		rm, ok := c.resultMaps[id]
		if !ok {
			return errs.New(errs.CodeResultMapNotFound,
				"statement '"+ms.ID+"' references unknown result map '"+id+"'", goerrors.CategoryNotFound)
		}
		ms.ResultMaps = append(ms.ResultMaps, rm)
	}
	if ms.resultType != nil {
		inlineID := ms.ID + "-Inline"
		rm, ok := c.resultMaps[inlineID]
		if !ok {
			rm = NewResultMap(inlineID, ms.resultType)
			if err := c.addResultMapLocked(rm); err != nil {
				return err
			}
		}
		ms.ResultMaps = append(ms.ResultMaps, rm)
	}
	if ms.IsSelect() && len(ms.ResultMaps) == 0 {
		return errs.New(errs.CodeInvalidMapping,
			"select '"+ms.ID+"' needs a result map or a result type", goerrors.CategoryValidation)
	}
	if ms.Shape == ShapeMap && ms.MapKey == "" {
		return errs.New(errs.CodeInvalidMapping,
			"statement '"+ms.ID+"' returns a map but names no key property", goerrors.CategoryValidation)
	}
	if len(ms.ResultSets) > 1 && !c.Settings.MultipleResultSetsEnabled {
		return errs.New(errs.CodeInvalidMapping,
			"statement '"+ms.ID+"' declares several result sets but they are disabled", goerrors.CategoryValidation)
	}
	c.statements[ms.ID] = ms
	return nil
}

// Statement returns a registered statement.
func (c *Configuration) Statement(id string) (*MappedStatement, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if ms, ok := c.statements[id]; ok {
		return ms, nil
	}
	return nil, errs.New(errs.CodeStatementNotFound, "statement '"+id+"' is not registered", goerrors.CategoryNotFound).
		WithMetadata(map[string]any{"statement": id})
}

// HasStatement reports whether id is registered.
func (c *Configuration) HasStatement(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.statements[id]
	return ok
}

// StatementIDs returns the registered statement ids, sorted.
func (c *Configuration) StatementIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.statements))
	for id := range c.statements {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AddCache registers a second-level cache under its id.
func (c *Configuration) AddCache(cc cache.Cache) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.caches[cc.ID()]; dup {
		return errs.New(errs.CodeInvalidConfig, "cache '"+cc.ID()+"' is already registered", goerrors.CategoryConflict)
	}
	c.caches[cc.ID()] = cc
	return nil
}

// NewCache builds a cache from cfg and registers it.
func (c *Configuration) NewCache(cfg cache.Config) (cache.Cache, error) {
	cc, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if err := c.AddCache(cc); err != nil {
		return nil, err
	}
	return cc, nil
}

// Cache returns a registered cache.
func (c *Configuration) Cache(id string) (cache.Cache, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cc, ok := c.caches[id]
	return cc, ok
}

// Validate checks every cross reference: nested result maps, discriminator
// cases and nested statements. References are otherwise checked when used.
func (c *Configuration) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var all []error
	ids := make([]string, 0, len(c.resultMaps))
	for id := range c.resultMaps {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rm := c.resultMaps[id]
		for _, m := range rm.Mappings {
			if m.NestedResultMapID != "" {
				if _, ok := c.resultMaps[m.NestedResultMapID]; !ok {
					all = append(all, errs.New(errs.CodeResultMapNotFound,
						"result map '"+id+"' property '"+m.Property+"' references unknown result map '"+m.NestedResultMapID+"'",
						goerrors.CategoryNotFound))
				}
			}
			if m.NestedQueryID != "" {
				if _, ok := c.statements[m.NestedQueryID]; !ok {
					all = append(all, errs.New(errs.CodeStatementNotFound,
						"result map '"+id+"' property '"+m.Property+"' references unknown statement '"+m.NestedQueryID+"'",
						goerrors.CategoryNotFound))
				}
			}
		}
		if d := rm.Discriminator; d != nil {
			for value, target := range d.Cases {
				if _, ok := c.resultMaps[target]; !ok {
					all = append(all, errs.New(errs.CodeResultMapNotFound,
						"result map '"+id+"' discriminator case '"+value+"' references unknown result map '"+target+"'",
						goerrors.CategoryNotFound))
				}
			}
		}
	}
	return errors.Join(all...)
}
