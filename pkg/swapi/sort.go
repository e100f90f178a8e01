package swapi

import (
	"math"
	"sort"
	"strconv"
	"strings"
)

// NumericValue interprets a catalog field as a number.
// Thousands separators are ignored ("1,358" is 1358). Values such as "unknown"
// or "n/a" report ok=false.
func NumericValue(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// CompareValues orders two field values: numbers ascending, then non-numeric
// values in lexical order.
func CompareValues(a, b string) int {
	av, aok := NumericValue(a)
	bv, bok := NumericValue(b)
	switch {
	case aok && bok:
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case aok:
		return -1
	case bok:
		return 1
	}
	return strings.Compare(a, b)
}

// SortPeople orders people by key in place. Equal values keep upstream order.
func SortPeople(people []Person, key SortKey) {
	if len(people) < 2 {
		return
	}
	sort.SliceStable(people, func(i, j int) bool {
		return CompareValues(people[i].Field(key), people[j].Field(key)) < 0
	})
}
