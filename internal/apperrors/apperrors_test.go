package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestHasCode(t *testing.T) {
	err := New(CodeInsufficientFunds, "insufficient available balance")
	if !HasCode(err, CodeInsufficientFunds) {
		t.Error("expected INSUFFICIENT_BALANCE code")
	}
	if HasCode(err, CodeNotFound) {
		t.Error("should not match NOT_FOUND")
	}
}

func TestCodeSurvivesWrapping(t *testing.T) {
	inner := New(CodeInvalidTransition, "cannot deliver order in completed status")
	wrapped := fmt.Errorf("deliver order: %w", inner)

	if CodeOf(wrapped) != CodeInvalidTransition {
		t.Errorf("CodeOf(wrapped) = %s, want INVALID_STATE_TRANSITION", CodeOf(wrapped))
	}
	if !errors.Is(wrapped, New(CodeInvalidTransition, "")) {
		t.Error("errors.Is should match by code")
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("driver: bad connection")
	err := Wrap(CodeWallet, "append ledger entry", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
	if CodeOf(err) != CodeWallet {
		t.Errorf("CodeOf = %s, want WALLET_ERROR", CodeOf(err))
	}
}

func TestUnclassified(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Error("plain errors carry no code")
	}
}
