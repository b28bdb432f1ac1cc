package errors

import (
	stderrors "errors"
	"fmt"
	"io"
	"testing"

	"go.uber.org/multierr"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"code only", &ReconError{Code: CodeEmptyVolume}, "EMPTY_VOLUME"},
		{"stage and message", New(CodeNotFound, "read", "no such directory %s", "/in"), "read: NOT_FOUND: no such directory /in"},
		{"with cause", Wrap(CodeDecodeFailure, "read", io.ErrUnexpectedEOF, "a.dcm"), "read: DECODE_FAILURE: a.dcm (caused by: unexpected EOF)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("run: %w", New(CodeEmptyInput, "assemble", "no slices"))
	if !stderrors.Is(err, ErrEmptyInput) {
		t.Error("Expected a wrapped EmptyInput to match its sentinel")
	}
	if stderrors.Is(err, ErrEmptyVolume) {
		t.Error("Different codes must not match")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	err := Wrap(CodeDecodeFailure, "read", io.EOF, "b.png")
	if !stderrors.Is(err, io.EOF) {
		t.Error("Expected the cause to stay in the chain")
	}
	if !stderrors.Is(err, ErrDecodeFailure) {
		t.Error("Expected the code to match")
	}
}

func TestCodeOf(t *testing.T) {
	if c := CodeOf(fmt.Errorf("outer: %w", New(CodeInvalidInput, "", "bad"))); c != CodeInvalidInput {
		t.Errorf("CodeOf = %q", c)
	}
	if c := CodeOf(io.EOF); c != "" {
		t.Errorf("Expected no code for a foreign error, got %q", c)
	}

	combined := multierr.Append(
		Wrap(CodeDecodeFailure, "read", io.EOF, "a"),
		Wrap(CodeDecodeFailure, "read", io.EOF, "b"))
	if !stderrors.Is(combined, ErrDecodeFailure) {
		t.Error("Expected combined failures to match DecodeFailure")
	}
}
