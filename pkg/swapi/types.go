// Package swapi defines the records and page envelopes returned by the Star Wars
// catalog API, plus the aggregate shape served to clients.
package swapi

import (
	"fmt"
)

// DefaultBaseURL is the public catalog root.
const DefaultBaseURL = "https://swapi.dev/api"

// Collection paths relative to the base URL.
const (
	PeoplePath  = "/people"
	PlanetsPath = "/planets"
)

// Page is one unit of a paginated collection response.
type Page[T any] struct {
	// Count is the upstream total across all pages (informational only)
	Count int `json:"count"`

	// Next is the absolute URL of the following page, nil on the last page
	Next *string `json:"next"`

	// Previous is the absolute URL of the preceding page
	Previous *string `json:"previous"`

	// Results holds the records of this page in upstream order
	Results []T `json:"results"`
}

// NextURL returns the next page reference, or "" when the chain ends.
func (p *Page[T]) NextURL() string {
	if p.Next == nil {
		return ""
	}
	return *p.Next
}

// Person is a character record from the people collection.
type Person struct {
	Name      string   `json:"name"`
	Height    string   `json:"height"`
	Mass      string   `json:"mass"`
	HairColor string   `json:"hair_color"`
	SkinColor string   `json:"skin_color"`
	EyeColor  string   `json:"eye_color"`
	BirthYear string   `json:"birth_year"`
	Gender    string   `json:"gender"`
	Homeworld string   `json:"homeworld"`
	Films     []string `json:"films"`
	Species   []string `json:"species"`
	Vehicles  []string `json:"vehicles"`
	Starships []string `json:"starships"`
	Created   string   `json:"created"`
	Edited    string   `json:"edited"`
	URL       string   `json:"url"`
}

// Field returns the value used when ordering people by key.
func (p Person) Field(key SortKey) string {
	switch key {
	case SortByName:
		return p.Name
	case SortByHeight:
		return p.Height
	case SortByMass:
		return p.Mass
	default:
		return ""
	}
}

// Planet is a record from the planets collection.
// Residents holds person URLs as fetched and display names once resolved.
type Planet struct {
	Name           string   `json:"name"`
	RotationPeriod string   `json:"rotation_period"`
	OrbitalPeriod  string   `json:"orbital_period"`
	Diameter       string   `json:"diameter"`
	Climate        string   `json:"climate"`
	Gravity        string   `json:"gravity"`
	Terrain        string   `json:"terrain"`
	SurfaceWater   string   `json:"surface_water"`
	Population     string   `json:"population"`
	Residents      []string `json:"residents"`
	Films          []string `json:"films"`
	Created        string   `json:"created"`
	Edited         string   `json:"edited"`
	URL            string   `json:"url"`
}

// Named is the minimal shape of any single resource lookup.
type Named struct {
	Name string `json:"name"`
}

// Aggregate is the consolidated response body for a collection endpoint.
type Aggregate[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

// NewAggregate wraps data so that Count always matches its length.
func NewAggregate[T any](data []T) Aggregate[T] {
	if data == nil {
		data = []T{}
	}
	return Aggregate[T]{Data: data, Count: len(data)}
}

// SortKey is a field people may be ordered by.
type SortKey string

const (
	SortByName   SortKey = "name"
	SortByHeight SortKey = "height"
	SortByMass   SortKey = "mass"
)

// SortKeys lists every accepted SortKey.
var SortKeys = []SortKey{SortByName, SortByHeight, SortByMass}

// ParseSortKey validates a raw sortBy value.
func ParseSortKey(raw string) (SortKey, error) {
	for _, k := range SortKeys {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", raw)
}
