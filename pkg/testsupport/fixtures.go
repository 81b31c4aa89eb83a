package testsupport

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadFixture loads test data from a fixture file.
// The path is relative to the test package directory.
func LoadFixture(t testing.TB, path string) []byte {
	t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to load fixture from %s: %v", path, err)
	}

	return data
}

// LoadFixtureYAML loads YAML test data from a fixture file and decodes it
// into dest. Unknown fields fail the test.
func LoadFixtureYAML(t testing.TB, path string, dest any) {
	t.Helper()

	dec := yaml.NewDecoder(bytes.NewReader(LoadFixture(t, path)))
	dec.KnownFields(true)
	if err := dec.Decode(dest); err != nil {
		t.Fatalf("failed to decode YAML fixture from %s: %v", path, err)
	}
}

// ScriptRule is one scripted driver response as written in a fixture.
type ScriptRule struct {
	Contains     string            `yaml:"contains"`
	Once         bool              `yaml:"once"`
	Sets         []ScriptResultSet `yaml:"sets"`
	RowsAffected int64             `yaml:"rows_affected"`
	LastInsertID int64             `yaml:"last_insert_id"`
}

// ScriptResultSet is a result set as written in a fixture.
type ScriptResultSet struct {
	Columns []string `yaml:"columns"`
	Rows    [][]any  `yaml:"rows"`
}

// Response converts the rule into a driver response.
func (r ScriptRule) Response() (Response, error) {
	resp := Response{RowsAffected: r.RowsAffected, LastInsertID: r.LastInsertID}
	for i, set := range r.Sets {
		rs := ResultSet{Columns: set.Columns}
		for j, row := range set.Rows {
			if len(row) != len(set.Columns) {
				return Response{}, fmt.Errorf("set %d row %d: %d values for %d columns", i, j, len(row), len(set.Columns))
			}
			values := make([]driver.Value, len(row))
			for k, v := range row {
				dv, err := driverValue(v)
				if err != nil {
					return Response{}, fmt.Errorf("set %d row %d column %s: %w", i, j, set.Columns[k], err)
				}
				values[k] = dv
			}
			rs.Rows = append(rs.Rows, values)
		}
		resp.Sets = append(resp.Sets, rs)
	}
	return resp, nil
}

func driverValue(v any) (driver.Value, error) {
	switch x := v.(type) {
	case nil, int64, float64, bool, string, []byte, time.Time:
		return x, nil
	case int:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported fixture value %T", v)
	}
}

// LoadScript registers every rule of a YAML fixture on d, in file order.
func LoadScript(t testing.TB, d *Driver, path string) {
	t.Helper()

	var rules []ScriptRule
	LoadFixtureYAML(t, path, &rules)
	for i, rule := range rules {
		resp, err := rule.Response()
		if err != nil {
			t.Fatalf("rule %d (%q) in %s: %v", i, rule.Contains, path, err)
		}
		if rule.Once {
			d.Once(rule.Contains, resp)
		} else {
			d.On(rule.Contains, resp)
		}
	}
}

// WriteGolden writes test output to a golden file.
// This should typically only be called when updating golden files.
func WriteGolden(t testing.TB, path string, data []byte) {
	t.Helper()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create directory %s: %v", dir, err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write golden file to %s: %v", path, err)
	}
}

// CompareWithGolden compares actual data with expected data from a golden file.
// If the golden file doesn't exist, or UPDATE_GOLDEN is set, it is written
// with the actual data.
func CompareWithGolden(t testing.TB, path string, actual []byte) {
	t.Helper()

	if os.Getenv("UPDATE_GOLDEN") != "" {
		WriteGolden(t, path, actual)
		return
	}

	expected, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.Logf("Golden file %s does not exist, creating it", path)
			WriteGolden(t, path, actual)
			return
		}
		t.Fatalf("failed to read golden file %s: %v", path, err)
	}

	if !bytes.Equal(actual, expected) {
		t.Errorf("output mismatch for %s:\nExpected:\n%s\nActual:\n%s", path, expected, actual)
	}
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename)
}
