package logging

import (
	"errors"
	"testing"
)

func TestNewOperationErrorNilPassthrough(t *testing.T) {
	if err := NewOperationError("op", "req", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestOperationErrorUnwrapsToSentinel(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := NewOperationError("usecase.load_image", "req-1", sentinel)

	if !errors.Is(err, sentinel) {
		t.Fatalf("expected errors.Is to find sentinel in %v", err)
	}
	if got := err.Error(); got != "usecase.load_image (request_id=req-1): sentinel" {
		t.Fatalf("unexpected message: %s", got)
	}
	if op := OperationOf(err); op != "usecase.load_image" {
		t.Fatalf("unexpected operation: %s", op)
	}
}

func TestOperationOfPlainError(t *testing.T) {
	if op := OperationOf(errors.New("plain")); op != "" {
		t.Fatalf("expected empty operation, got %q", op)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("abcdef", 3); got != "abc..." {
		t.Fatalf("unexpected truncation: %s", got)
	}
	if got := Truncate("abc", 10); got != "abc" {
		t.Fatalf("unexpected truncation: %s", got)
	}
}

func TestNewLoggerRejectsUnknownLevelOnly(t *testing.T) {
	if _, err := NewLogger("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
