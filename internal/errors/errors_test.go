package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidationErrorMatchesConfigInvalid(t *testing.T) {
	err := NewValidationError("capital", -5.0, "must be positive")

	if !errors.Is(err, ErrConfigInvalid) {
		t.Fatal("expected validation error to match ErrConfigInvalid")
	}
	wrapped := fmt.Errorf("load: %w", err)
	var ve *ValidationError
	if !errors.As(wrapped, &ve) {
		t.Fatal("expected errors.As to find the ValidationError")
	}
	if ve.Field != "capital" {
		t.Errorf("Field = %q, want capital", ve.Field)
	}
	if !strings.Contains(err.Error(), "invalid capital=-5: must be positive") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestDataErrorUnwraps(t *testing.T) {
	err := NewDataError("csv", "INFY", "line 3", ErrMalformedBar)

	if !errors.Is(err, ErrMalformedBar) {
		t.Error("expected DataError to unwrap to ErrMalformedBar")
	}
	if errors.Is(err, ErrDataNotFound) {
		t.Error("did not expect ErrDataNotFound")
	}
	want := "INFY: csv line 3: malformed bar"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := NewDataError("cache", "TCS", "no file", nil)
	if bare.Error() != "TCS: cache no file" {
		t.Errorf("unexpected message: %s", bare)
	}
	if bare.Unwrap() != nil {
		t.Error("expected nil Unwrap")
	}

	noSymbol := NewDataError("universe", "", "read u.txt", ErrDataNotFound)
	if noSymbol.Error() != "universe read u.txt: data not found" {
		t.Errorf("unexpected message: %s", noSymbol)
	}
}

func TestRiskErrorMessage(t *testing.T) {
	err := NewRiskError("max_trades_per_day", 3, 3, "daily trade cap reached")
	want := "entry refused by max_trades_per_day: daily trade cap reached (3.00 vs limit 3.00)"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "ignored") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "ignored %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}

	err := Wrap(ErrDataNotFound, "read watchlist")
	if err.Error() != "read watchlist: data not found" {
		t.Errorf("Wrap() = %q", err)
	}
	if !errors.Is(err, ErrDataNotFound) {
		t.Error("Wrap should keep the chain")
	}

	err = Wrapf(ErrInsufficientData, "symbol %s", "SBIN")
	if err.Error() != "symbol SBIN: insufficient data" {
		t.Errorf("Wrapf() = %q", err)
	}
	if !errors.Is(err, ErrInsufficientData) {
		t.Error("Wrapf should keep the chain")
	}
}
