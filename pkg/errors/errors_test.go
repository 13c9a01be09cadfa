package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeInvalidState, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeDuplicateTransaction, status: http.StatusConflict, publicMsg: "transaction already recorded", detailsOK: true},
		{code: CodeInsufficientBalance, status: http.StatusUnprocessableEntity, publicMsg: "insufficient balance", detailsOK: true},
		{code: CodeNoEligible, status: http.StatusUnprocessableEntity, publicMsg: "no eligible commissions", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded", retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing amount")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing amount" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "amount"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	formatted := Newf(CodeInvalidState, "commission is %s", "paid")
	if formatted.Message() != "commission is paid" {
		t.Fatalf("unexpected formatted message %q", formatted.Message())
	}
}

func TestCodeHelpersSeeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("approve item: %w", New(CodeInvalidState, "not pending"))
	if !IsCode(err, CodeInvalidState) {
		t.Fatalf("expected IsCode to match wrapped typed error")
	}
	if IsCode(err, CodeNotFound) {
		t.Fatalf("IsCode matched the wrong code")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestMessageAndStatus(t *testing.T) {
	typed := fmt.Errorf("pay: %w", New(CodeInsufficientBalance, "pending balance 40.00 is below 60.00"))
	if got := Message(typed); got != "pending balance 40.00 is below 60.00" {
		t.Fatalf("unexpected message %q", got)
	}
	if got := Message(stdErrors.New("disk full")); got != "disk full" {
		t.Fatalf("untyped errors should use Error(), got %q", got)
	}
	if Message(nil) != "" {
		t.Fatalf("nil error should have empty message")
	}
	if StatusOf(typed) != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status %d", StatusOf(typed))
	}
	if StatusOf(stdErrors.New("x")) != http.StatusInternalServerError {
		t.Fatalf("untyped errors should map to 500")
	}
	wrapped := Wrapf(CodeDependency, stdErrors.New("timeout"), "upload %s", "report.csv")
	if wrapped.Message() != "upload report.csv" || wrapped.Unwrap() == nil {
		t.Fatalf("unexpected wrapf result %v", wrapped)
	}
}

func TestOnlyClientCodesExposeMessages(t *testing.T) {
	if MetadataFor(CodeInternal).ExposeMessage || MetadataFor(CodeDependency).ExposeMessage {
		t.Fatalf("server side codes must hide their messages")
	}
	if !MetadataFor(CodeInvalidState).ExposeMessage {
		t.Fatalf("invalid state messages should reach the caller")
	}
}
