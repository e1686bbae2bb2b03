package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tendant/simple-ocr-gateway/pkg/schema"
)

func TestCodeKinds(t *testing.T) {
	cases := map[Code]Kind{
		CodeInvalidFile:      KindValidation,
		CodeInvalidOptions:   KindValidation,
		CodeInvalidJobID:     KindValidation,
		CodeProcessingError:  KindTransport,
		CodeStatusCheckError: KindTransport,
		CodeResultFetchError: KindTransport,
		CodeJobNotFound:      KindNotFound,
		CodeUnauthorized:     KindAuth,
		Code("SOMETHING"):    KindInternal,
	}
	for code, want := range cases {
		if got := code.Kind(); got != want {
			t.Fatalf("%s.Kind() = %s, want %s", code, got, want)
		}
	}
}

func TestCodeOfUnwrapsWrappedErrors(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("submit: %w", New(CodeProcessingError, "worker unreachable", cause))

	if got := CodeOf(err); got != CodeProcessingError {
		t.Fatalf("CodeOf = %s", got)
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if got := CodeOf(errors.New("plain")); got != CodeInternal {
		t.Fatalf("plain error code = %s", got)
	}
}

func TestBodyOmitsCause(t *testing.T) {
	err := Invalid(CodeInvalidOptions, "invalid options", []schema.Violation{{Field: "pageRange", Message: "bad"}})
	err.Cause = errors.New("secret detail")

	body := err.Body()
	if body.Code != "INVALID_OPTIONS" || body.Message != "invalid options" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if len(body.Details) != 1 || body.Details[0].Field != "pageRange" {
		t.Fatalf("details not carried: %+v", body.Details)
	}

	back := FromBody(body)
	if back.Code != CodeInvalidOptions || len(back.Details) != 1 {
		t.Fatalf("FromBody lost data: %+v", back)
	}
}
