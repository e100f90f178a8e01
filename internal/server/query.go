package server

import (
	"net/url"

	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
)

// PeopleQuery is the accepted query shape for GET /people.
type PeopleQuery struct {
	// SortBy is nil when the upstream order should be kept.
	SortBy *swapi.SortKey
}

// parsePeopleQuery accepts either no parameters or exactly one sortBy with a
// single recognized value.
func parsePeopleQuery(rawQuery string) (PeopleQuery, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return PeopleQuery{}, errInvalidQuery
	}
	if len(values) == 0 {
		return PeopleQuery{}, nil
	}
	if len(values) != 1 {
		return PeopleQuery{}, errInvalidQuery
	}

	raw, ok := values["sortBy"]
	if !ok || len(raw) != 1 {
		return PeopleQuery{}, errInvalidQuery
	}

	key, err := swapi.ParseSortKey(raw[0])
	if err != nil {
		return PeopleQuery{}, errInvalidQuery
	}
	return PeopleQuery{SortBy: &key}, nil
}

// ensureNoQuery rejects any query parameter.
func ensureNoQuery(rawQuery string) error {
	values, err := url.ParseQuery(rawQuery)
	if err != nil || len(values) > 0 {
		return errInvalidQuery
	}
	return nil
}
