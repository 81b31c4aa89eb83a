package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestHasCode(t *testing.T) {
	base := New(CodeStatementNotFound, "statement blog.select not found", goerrors.CategoryNotFound)

	tests := []struct {
		name string
		err  error
		code string
		want bool
	}{
		{name: "direct", err: base, code: CodeStatementNotFound, want: true},
		{name: "fmt wrapped", err: fmt.Errorf("outer: %w", base), code: CodeStatementNotFound, want: true},
		{name: "other code", err: base, code: CodeCodecNotFound, want: false},
		{name: "plain error", err: errors.New("boom"), code: CodeStatementNotFound, want: false},
		{name: "nil", err: nil, code: CodeStatementNotFound, want: false},
		{
			name: "retryable",
			err:  Retryable(CodeCacheLockTimeout, "timed out", goerrors.CategoryOperation),
			code: CodeCacheLockTimeout,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasCode(tt.err, tt.code); got != tt.want {
				t.Fatalf("HasCode() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWrapKeepsOriginalCode(t *testing.T) {
	inner := New(CodeCodecNotFound, "no codec", goerrors.CategoryValidation)
	wrapped := Wrap(inner, CodeExecution, "mapping row", goerrors.CategoryOperation)

	if wrapped.TextCode != CodeCodecNotFound {
		t.Fatalf("expected inner code to survive, got %q", wrapped.TextCode)
	}

	plain := Wrap(errors.New("driver failure"), CodeExecution, "querying", goerrors.CategoryOperation)
	if plain.TextCode != CodeExecution {
		t.Fatalf("expected fallback code, got %q", plain.TextCode)
	}
	if !errors.Is(plain, plain.Source) {
		t.Fatalf("expected source to stay reachable")
	}
}

func TestIsRetryable(t *testing.T) {
	err := Retryable(CodeCacheLockTimeout, "timed out", goerrors.CategoryOperation)
	if !IsRetryable(err) {
		t.Fatalf("expected retryable error")
	}
	if !IsRetryable(fmt.Errorf("get: %w", err)) {
		t.Fatalf("expected retryable through wrapping")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
}

func TestWithContextRefines(t *testing.T) {
	ctx := WithContext(context.Background(), Resource("blog.xml"), Activity("executing a query"))
	ctx = WithContext(ctx, Object("blogResult"))

	ec := FromContext(ctx)
	if ec.Resource != "blog.xml" || ec.Activity != "executing a query" || ec.Object != "blogResult" {
		t.Fatalf("unexpected error context: %+v", ec)
	}

	if got := FromContext(context.Background()); got != (ErrorContext{}) {
		t.Fatalf("expected empty context, got %+v", got)
	}
}

func TestAnnotate(t *testing.T) {
	ctx := WithContext(context.Background(), Resource("blog.selectAll"), Activity("handling results"), SQL("SELECT 1"))

	t.Run("plain error gets wrapped", func(t *testing.T) {
		src := errors.New("scan failed")
		err := Annotate(ctx, src)
		if !errors.Is(err, src) {
			t.Fatalf("expected source in chain")
		}
		meta := Metadata(err)
		if meta["resource"] != "blog.selectAll" || meta["sql"] != "SELECT 1" {
			t.Fatalf("unexpected metadata %v", meta)
		}
		if !HasCode(err, CodeExecution) {
			t.Fatalf("expected execution code, got %q", Code(err))
		}
	})

	t.Run("existing keys win", func(t *testing.T) {
		src := New(CodeResultMapNotFound, "missing", goerrors.CategoryNotFound).
			WithMetadata(map[string]any{"resource": "inner"})
		err := Annotate(ctx, src)
		if Metadata(err)["resource"] != "inner" {
			t.Fatalf("expected inner resource to be kept")
		}
		if Metadata(err)["activity"] != "handling results" {
			t.Fatalf("expected activity to be added")
		}
	})

	t.Run("nil error", func(t *testing.T) {
		if Annotate(ctx, nil) != nil {
			t.Fatalf("expected nil")
		}
	})
}
