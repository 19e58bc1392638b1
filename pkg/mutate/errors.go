package mutate

import "errors"

// UnknownErrorMessage is the fallback surfaced when a failure carries no
// usable human-readable message. Raw objects and numbers never leak into
// the UI.
const UnknownErrorMessage = "Unknown error"

// NormalizeMessage converts an arbitrary failure value into the message
// shown to the user:
//
//   - error values surface their Error() string verbatim
//   - plain strings are used as-is
//   - anything else (including empty messages) becomes UnknownErrorMessage
func NormalizeMessage(v any) string {
	switch x := v.(type) {
	case error:
		if x != nil && x.Error() != "" {
			return x.Error()
		}
		return UnknownErrorMessage
	case string:
		if x != "" {
			return x
		}
		return UnknownErrorMessage
	default:
		return UnknownErrorMessage
	}
}

// normalizeFailure converts a failure value into the error returned to the
// adapter. Error values pass through unchanged so errors.Is/As still work;
// everything else is wrapped with its normalized message.
func normalizeFailure(v any) error {
	if err, ok := v.(error); ok && err != nil && err.Error() != "" {
		return err
	}
	return errors.New(NormalizeMessage(v))
}
