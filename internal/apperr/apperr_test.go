package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnsupportedFormat:   http.StatusBadRequest,
		KindPayloadTooLarge:     http.StatusBadRequest,
		KindUnsupportedLanguage: http.StatusBadRequest,
		KindInvalidInput:        http.StatusBadRequest,
		KindDecode:              http.StatusInternalServerError,
		KindEmptyTranscription:  http.StatusInternalServerError,
		KindUpstream:            http.StatusInternalServerError,
		KindSynthesis:           http.StatusInternalServerError,
		KindInternal:            http.StatusInternalServerError,
	}
	for kind, want := range cases {
		if got := kind.Status(); got != want {
			t.Fatalf("%s: unexpected status %d, want %d", kind, got, want)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	base := errors.New("exit status 1")
	err := fmt.Errorf("stage: %w", Wrap(KindDecode, "audio conversion failed", base))

	if got := KindOf(err); got != KindDecode {
		t.Fatalf("unexpected kind: %s", got)
	}
	if !errors.Is(err, base) {
		t.Fatal("expected wrapped cause to be reachable")
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("unexpected kind for plain error: %s", got)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	err := Wrap(KindUpstream, "language model request failed", errors.New("status 503"))
	if err.Error() != "language model request failed: status 503" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if New(KindInvalidInput, "text is required").Error() != "text is required" {
		t.Fatal("unexpected message without cause")
	}
}
