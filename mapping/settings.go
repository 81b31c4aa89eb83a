package mapping

import (
	"errors"
	"io"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"gopkg.in/yaml.v3"

	"github.com/goliatone/go-sqlmap/errs"
)

// AutoMappingBehavior controls which columns are mapped without an explicit
// result mapping.
type AutoMappingBehavior int

const (
	// AutoMappingPartial auto-maps results without nested result maps.
	AutoMappingPartial AutoMappingBehavior = iota
	// AutoMappingNone maps only explicitly declared columns.
	AutoMappingNone
	// AutoMappingFull auto-maps nested results too.
	AutoMappingFull
)

// UnknownColumnBehavior controls what happens to a column no property matches.
type UnknownColumnBehavior int

const (
	UnknownColumnNone UnknownColumnBehavior = iota
	UnknownColumnWarning
	UnknownColumnFailing
)

// ExecutorType selects the statement execution strategy.
type ExecutorType int

const (
	ExecutorSimple ExecutorType = iota
	ExecutorReuse
	ExecutorBatch
)

// LocalCacheScope selects how long session cache entries live.
type LocalCacheScope int

const (
	LocalCacheSession LocalCacheScope = iota
	LocalCacheStatement
)

// PlaceholderStyle selects the bind marker sent to the driver.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1
	PlaceholderAt                               // @p1
	PlaceholderColon                            // :1
)

var (
	autoMappingNames   = []string{"PARTIAL", "NONE", "FULL"}
	unknownColumnNames = []string{"NONE", "WARNING", "FAILING"}
	executorNames      = []string{"SIMPLE", "REUSE", "BATCH"}
	localScopeNames    = []string{"SESSION", "STATEMENT"}
	placeholderNames   = []string{"QUESTION", "DOLLAR", "AT", "COLON"}
)

func enumString(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return "UNKNOWN"
	}
	return names[i]
}

func enumParse(kind string, names []string, text []byte) (int, error) {
	s := strings.ToUpper(strings.TrimSpace(string(text)))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, errs.New(errs.CodeInvalidConfig,
		"unknown "+kind+" '"+string(text)+"', expected one of "+strings.Join(names, ", "),
		goerrors.CategoryValidation)
}

func (b AutoMappingBehavior) String() string { return enumString(autoMappingNames, int(b)) }

func (b AutoMappingBehavior) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *AutoMappingBehavior) UnmarshalText(text []byte) error {
	i, err := enumParse("auto mapping behavior", autoMappingNames, text)
	*b = AutoMappingBehavior(i)
	return err
}

func (b UnknownColumnBehavior) String() string { return enumString(unknownColumnNames, int(b)) }

func (b UnknownColumnBehavior) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *UnknownColumnBehavior) UnmarshalText(text []byte) error {
	i, err := enumParse("unknown column behavior", unknownColumnNames, text)
	*b = UnknownColumnBehavior(i)
	return err
}

func (e ExecutorType) String() string { return enumString(executorNames, int(e)) }

func (e ExecutorType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *ExecutorType) UnmarshalText(text []byte) error {
	i, err := enumParse("executor type", executorNames, text)
	*e = ExecutorType(i)
	return err
}

func (s LocalCacheScope) String() string { return enumString(localScopeNames, int(s)) }

func (s LocalCacheScope) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LocalCacheScope) UnmarshalText(text []byte) error {
	i, err := enumParse("local cache scope", localScopeNames, text)
	*s = LocalCacheScope(i)
	return err
}

func (p PlaceholderStyle) String() string { return enumString(placeholderNames, int(p)) }

func (p PlaceholderStyle) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *PlaceholderStyle) UnmarshalText(text []byte) error {
	i, err := enumParse("placeholder style", placeholderNames, text)
	*p = PlaceholderStyle(i)
	return err
}

// Settings holds the engine behaviour flags.
type Settings struct {
	// CacheEnabled turns the second-level cache on. Default: true
	CacheEnabled bool `yaml:"cache_enabled"`

	// LazyLoadingEnabled makes nested queries marked lazy, or declared as
	// *loader.Lazy fields, load on demand. Default: false
	LazyLoadingEnabled bool `yaml:"lazy_loading_enabled"`

	// MultipleResultSetsEnabled allows statements to name several result sets.
	// Default: true
	MultipleResultSetsEnabled bool `yaml:"multiple_result_sets_enabled"`

	AutoMappingBehavior              AutoMappingBehavior   `yaml:"auto_mapping_behavior"`
	AutoMappingUnknownColumnBehavior UnknownColumnBehavior `yaml:"auto_mapping_unknown_column_behavior"`
	DefaultExecutorType              ExecutorType          `yaml:"default_executor_type"`

	// DefaultStatementTimeout bounds statements that declare no timeout.
	// Zero means no deadline.
	DefaultStatementTimeout time.Duration `yaml:"default_statement_timeout"`

	// DefaultFetchSize is a capacity hint for result lists.
	DefaultFetchSize int `yaml:"default_fetch_size"`

	// SafeRowBoundsEnabled rejects row bounds on statements with nested
	// result maps, where skipping rows splits objects.
	SafeRowBoundsEnabled bool `yaml:"safe_row_bounds_enabled"`

	MapUnderscoreToCamelCase bool            `yaml:"map_underscore_to_camel_case"`
	LocalCacheScope          LocalCacheScope `yaml:"local_cache_scope"`

	// CallSettersOnNulls assigns NULL columns to map results and settable
	// properties instead of skipping them.
	CallSettersOnNulls bool `yaml:"call_setters_on_nulls"`

	// ReturnInstanceForEmptyRow returns an empty instance instead of nil when
	// every column of a row is NULL.
	ReturnInstanceForEmptyRow bool `yaml:"return_instance_for_empty_row"`

	ShrinkWhitespacesInSQL bool `yaml:"shrink_whitespaces_in_sql"`
	NullableOnForEach      bool `yaml:"nullable_on_for_each"`

	// Placeholder is the bind marker style of the driver.
	Placeholder PlaceholderStyle `yaml:"placeholder"`

	// EnvironmentID is part of every cache key and is exposed to templates
	// as _databaseId.
	EnvironmentID string `yaml:"environment_id"`

	// InjectionFilter, when set, is a regular expression every ${} text
	// substitution must match.
	InjectionFilter string `yaml:"injection_filter"`

	// ExpressionCacheSize bounds the compiled expression cache. Default: 512
	ExpressionCacheSize int `yaml:"expression_cache_size"`

	// ExpressionCacheTTL expires compiled expressions. Default: 30m
	ExpressionCacheTTL time.Duration `yaml:"expression_cache_ttl"`
}

// DefaultSettings returns the default engine settings.
func DefaultSettings() Settings {
	return Settings{
		CacheEnabled:              true,
		MultipleResultSetsEnabled: true,
		AutoMappingBehavior:       AutoMappingPartial,
		DefaultExecutorType:       ExecutorSimple,
		LocalCacheScope:           LocalCacheSession,
		Placeholder:               PlaceholderQuestion,
		ExpressionCacheSize:       512,
		ExpressionCacheTTL:        30 * time.Minute,
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.AutoMappingBehavior, validation.In(AutoMappingPartial, AutoMappingNone, AutoMappingFull)),
		validation.Field(&s.AutoMappingUnknownColumnBehavior, validation.In(UnknownColumnNone, UnknownColumnWarning, UnknownColumnFailing)),
		validation.Field(&s.DefaultExecutorType, validation.In(ExecutorSimple, ExecutorReuse, ExecutorBatch)),
		validation.Field(&s.LocalCacheScope, validation.In(LocalCacheSession, LocalCacheStatement)),
		validation.Field(&s.Placeholder, validation.In(PlaceholderQuestion, PlaceholderDollar, PlaceholderAt, PlaceholderColon)),
		validation.Field(&s.DefaultStatementTimeout, validation.Min(time.Duration(0))),
		validation.Field(&s.DefaultFetchSize, validation.Min(0)),
		validation.Field(&s.ExpressionCacheSize, validation.Min(0)),
		validation.Field(&s.ExpressionCacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&s.InjectionFilter, validation.By(validRegexp)),
	)
	if err != nil {
		return goerrors.FromOzzoValidation(err, "invalid settings").WithTextCode(errs.CodeInvalidConfig)
	}
	return nil
}

func validRegexp(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := regexp.Compile(s); err != nil {
		return errors.New("must be a valid regular expression")
	}
	return nil
}

// LoadSettings reads YAML settings over the defaults and validates them.
//
//	cache_enabled: true
//	default_executor_type: reuse
//	local_cache_scope: statement
//	default_statement_timeout: 5s
func LoadSettings(r io.Reader) (Settings, error) {
	s := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		if errs.Code(err) != "" {
			return Settings{}, err
		}
		return Settings{}, errs.Wrap(err, errs.CodeInvalidConfig, "decoding settings", goerrors.CategoryValidation)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
