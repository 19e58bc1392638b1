package query

import "net/url"

// Key addresses a cached collection. Two keys are equal iff they name the
// same collection and carry the same canonical filter string, so re-issuing
// a query with identical parameters always lands on the same entry.
type Key struct {
	// Collection is the logical collection identifier, e.g. "subjects".
	Collection string

	// Filter is the canonically-serialized filter parameters, or "" for
	// the unfiltered collection. Build it with NewKey rather than by hand.
	Filter string
}

// NewKey builds a Key for collection with the given filter parameters.
// Parameters are serialized deterministically (url-encoded, sorted by name)
// so that logically identical filters produce identical keys regardless of
// map iteration order, and delimiter characters in values cannot collide
// two distinct filters onto one key.
func NewKey(collection string, params map[string]string) Key {
	if len(params) == 0 {
		return Key{Collection: collection}
	}

	values := make(url.Values, len(params))
	for name, value := range params {
		values.Set(name, value)
	}
	return Key{Collection: collection, Filter: values.Encode()}
}

// Params decodes the key's filter back into its parameter map. Keys built
// by NewKey always round-trip; a hand-built unparseable filter yields nil.
func (k Key) Params() map[string]string {
	if k.Filter == "" {
		return nil
	}
	values, err := url.ParseQuery(k.Filter)
	if err != nil {
		return nil
	}
	params := make(map[string]string, len(values))
	for name := range values {
		params[name] = values.Get(name)
	}
	return params
}

// String returns a human-readable form of the key for logs and traces.
func (k Key) String() string {
	if k.Filter == "" {
		return k.Collection
	}
	return k.Collection + "?" + k.Filter
}
