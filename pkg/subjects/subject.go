// Package subjects defines the Subject entity (a person or event charts
// are cast for) and the typed HTTP client for the subjects backend. It also
// provides the websocket live feed that keeps query caches reconciled with
// changes made by other sessions.
package subjects

import (
	"time"

	"github.com/google/uuid"

	"github.com/orrery-dev/orrery/pkg/query"
)

// Collection is the cache collection name for subject lists.
const Collection = "subjects"

// Subject is a chart subject. Subjects are immutable value snapshots from
// the cache's perspective: mutation always produces a new value.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BornAt    time.Time `json:"bornAt"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EntityID returns the subject's stable identifier.
func (s Subject) EntityID() string { return s.ID }

// CreatePayload is the input for creating a subject. The server assigns the
// id and timestamps.
type CreatePayload struct {
	Name      string    `json:"name"`
	BornAt    time.Time `json:"bornAt"`
	City      string    `json:"city"`
	Country   string    `json:"country"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Notes     string    `json:"notes,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
}

// Patch carries optional field updates; nil fields are left unchanged.
type Patch struct {
	Name      *string    `json:"name,omitempty"`
	BornAt    *time.Time `json:"bornAt,omitempty"`
	City      *string    `json:"city,omitempty"`
	Country   *string    `json:"country,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	Notes     *string    `json:"notes,omitempty"`
	Tags      *[]string  `json:"tags,omitempty"`
}

// Apply merges the patch into s, returning a new value. s is not modified.
func (p Patch) Apply(s Subject) Subject {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.BornAt != nil {
		s.BornAt = *p.BornAt
	}
	if p.City != nil {
		s.City = *p.City
	}
	if p.Country != nil {
		s.Country = *p.Country
	}
	if p.Latitude != nil {
		s.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		s.Longitude = *p.Longitude
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.Tags != nil {
		s.Tags = *p.Tags
	}
	return s
}

// TempIDPrefix marks ids fabricated locally for optimistic creates.
const TempIDPrefix = "temp-"

// NewTempID returns a fresh client-side id for an optimistic placeholder.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// Placeholder fabricates the locally-visible subject for an optimistic
// create, with a temporary id the commit later replaces.
func Placeholder(p CreatePayload) Subject {
	now := time.Now()
	return Subject{
		ID:        NewTempID(),
		Name:      p.Name,
		BornAt:    p.BornAt,
		City:      p.City,
		Country:   p.Country,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Notes:     p.Notes,
		Tags:      p.Tags,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Filter narrows a subject list.
type Filter struct {
	// City matches subjects born in the given city.
	City string

	// Tag matches subjects carrying the given tag.
	Tag string

	// Search matches subjects whose name contains the term.
	Search string
}

// params returns the filter's canonical query parameters.
func (f Filter) params() map[string]string {
	params := map[string]string{}
	if f.City != "" {
		params["city"] = f.City
	}
	if f.Tag != "" {
		params["tag"] = f.Tag
	}
	if f.Search != "" {
		params["search"] = f.Search
	}
	if len(params) == 0 {
		return nil
	}
	return params
}

// KeyFor returns the cache key addressing the filtered subject list.
func KeyFor(f Filter) query.Key {
	return query.NewKey(Collection, f.params())
}

// FilterFromKey reconstructs the Filter a key was built from.
func FilterFromKey(key query.Key) Filter {
	params := key.Params()
	return Filter{
		City:   params["city"],
		Tag:    params["tag"],
		Search: params["search"],
	}
}
