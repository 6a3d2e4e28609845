package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"typed", New(http.StatusTeapot, "teapot", errors.New("short and stout")), http.StatusTeapot, "teapot"},
		{"wrapped not found", fmt.Errorf("load session: %w", ErrNotFound), http.StatusNotFound, "not_found"},
		{"invalid helper", Invalid("bad_index", "Feedback index %d out of range", 4), http.StatusBadRequest, "bad_index"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := Status(tc.err)
			if status != tc.status || code != tc.code {
				t.Fatalf("Status: want=(%d,%q) got=(%d,%q)", tc.status, tc.code, status, code)
			}
		})
	}
}

func TestInvalidKeepsSentinel(t *testing.T) {
	err := Invalid("bad_index", "Feedback index %d out of range (0-%d)", 5, 2)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument in chain")
	}
	if got := err.Error(); got != "invalid argument: Feedback index 5 out of range (0-2)" {
		t.Fatalf("message: got=%q", got)
	}
}
