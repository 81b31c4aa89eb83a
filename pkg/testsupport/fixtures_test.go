package testsupport

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureYAML(t *testing.T) {
	var rules []ScriptRule
	LoadFixtureYAML(t, FixturePath("authors.yaml"), &rules)

	if len(rules) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rules))
	}
	if !rules[0].Once || rules[1].Once {
		t.Errorf("unexpected once flags: %v %v", rules[0].Once, rules[1].Once)
	}
	if rules[2].LastInsertID != 3 || rules[2].RowsAffected != 1 {
		t.Errorf("unexpected exec rule %+v", rules[2])
	}
}

func TestScriptRuleResponse(t *testing.T) {
	tests := []struct {
		name    string
		rule    ScriptRule
		want    []any
		wantErr bool
	}{
		{
			name: "converts yaml scalars",
			rule: ScriptRule{Sets: []ScriptResultSet{{
				Columns: []string{"id", "score", "name", "active", "note"},
				Rows:    [][]any{{1, 2.5, "ann", true, nil}},
			}}},
			want: []any{int64(1), 2.5, "ann", true, nil},
		},
		{
			name: "row shorter than columns",
			rule: ScriptRule{Sets: []ScriptResultSet{{
				Columns: []string{"id", "name"},
				Rows:    [][]any{{1}},
			}}},
			wantErr: true,
		},
		{
			name: "unsupported value",
			rule: ScriptRule{Sets: []ScriptResultSet{{
				Columns: []string{"tags"},
				Rows:    [][]any{{[]any{"a"}}},
			}}},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := tc.rule.Response()
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			row := resp.Sets[0].Rows[0]
			for i, want := range tc.want {
				if row[i] != want {
					t.Errorf("column %d: expected %#v, got %#v", i, want, row[i])
				}
			}
		})
	}
}

func TestLoadScript(t *testing.T) {
	db, d := NewDB(t)
	LoadScript(t, d, FixturePath("authors.yaml"))
	ctx := context.Background()

	count := func(query string) int {
		t.Helper()
		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			t.Fatalf("query %q: %v", query, err)
		}
		defer rows.Close()
		n := 0
		for rows.Next() {
			n++
		}
		if err := rows.Err(); err != nil {
			t.Fatalf("rows: %v", err)
		}
		return n
	}

	if n := count("SELECT * FROM author WHERE id = 1"); n != 1 {
		t.Errorf("expected the once rule to answer first, got %d rows", n)
	}
	if n := count("SELECT * FROM author WHERE id = 1"); n != 2 {
		t.Errorf("expected the once rule to be spent, got %d rows", n)
	}

	res, err := db.ExecContext(ctx, "INSERT INTO author (name) VALUES (?)", "cid")
	if err != nil {
		t.Fatalf("exec: %v", err)
	}
	if id, _ := res.LastInsertId(); id != 3 {
		t.Errorf("expected last insert id 3, got %d", id)
	}

	if n := d.Count("FROM author"); n != 2 {
		t.Errorf("expected 2 recorded queries, got %d", n)
	}
	if calls := d.CallsOf("exec"); len(calls) != 1 || calls[0].Args[0] != "cid" {
		t.Errorf("unexpected exec calls %+v", calls)
	}
}

func TestDriverScriptedError(t *testing.T) {
	db, d := NewDB(t)
	d.On("broken", Response{Err: sql.ErrConnDone})

	if _, err := db.ExecContext(context.Background(), "UPDATE broken SET x = 1"); err == nil {
		t.Error("expected the scripted error")
	}
}

func TestCompareWithGolden(t *testing.T) {
	tmpDir := t.TempDir()
	goldenFile := filepath.Join(tmpDir, "golden", "sql.txt")
	content := []byte("SELECT * FROM author WHERE id = ?")

	// First call creates the file.
	CompareWithGolden(t, goldenFile, content)
	if _, err := os.Stat(goldenFile); err != nil {
		t.Fatalf("expected golden file to be created: %v", err)
	}

	CompareWithGolden(t, goldenFile, content)

	t.Setenv("UPDATE_GOLDEN", "1")
	updated := []byte("SELECT * FROM author WHERE id = $1")
	CompareWithGolden(t, goldenFile, updated)
	if got, err := os.ReadFile(goldenFile); err != nil || string(got) != string(updated) {
		t.Fatalf("expected the golden file to be rewritten, got %q (%v)", got, err)
	}
}

func TestFixturePath(t *testing.T) {
	expected := filepath.Join("testdata", "authors.yaml")
	if got := FixturePath("authors.yaml"); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}

func TestGoldenPath(t *testing.T) {
	expected := filepath.Join("testdata", "golden", "sql.txt")
	if got := GoldenPath("sql.txt"); got != expected {
		t.Errorf("expected %q, got %q", expected, got)
	}
}
