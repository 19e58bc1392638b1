package mutate

import (
	"errors"
	"testing"
)

func TestNormalizeMessage(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want string
	}{
		{"error value", errors.New("Network error: Failed to delete"), "Network error: Failed to delete"},
		{"string value", "session expired", "session expired"},
		{"empty string", "", UnknownErrorMessage},
		{"nil", nil, UnknownErrorMessage},
		{"number", 42, UnknownErrorMessage},
		{"struct", struct{ Code int }{500}, UnknownErrorMessage},
		{"nil error", error(nil), UnknownErrorMessage},
	}

	for _, tc := range cases {
		if got := NormalizeMessage(tc.in); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestNormalizeFailurePreservesErrorIdentity(t *testing.T) {
	sentinel := errors.New("boom")
	err := normalizeFailure(sentinel)
	if !errors.Is(err, sentinel) {
		t.Error("error values must pass through unwrapped")
	}

	err = normalizeFailure("plain message")
	if err.Error() != "plain message" {
		t.Errorf("string failure not carried verbatim: %q", err.Error())
	}

	err = normalizeFailure(3.14)
	if err.Error() != UnknownErrorMessage {
		t.Errorf("non-error failure must normalize to %q, got %q", UnknownErrorMessage, err.Error())
	}
}
