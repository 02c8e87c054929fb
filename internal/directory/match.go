package directory

import (
	"sort"
	"strings"

	"github.com/biomed-sul/leadscout/internal/model"
	"github.com/biomed-sul/leadscout/internal/textnorm"
)

// Matcher places an establishment in a location by finding a location name
// inside the establishment name. Centers that do not mention their city are
// not placed.
type Matcher struct {
	entries []matchEntry
}

type matchEntry struct {
	key string // " normalized name "
	loc model.Location
}

// NewMatcher indexes locs, longest names first so "Sao Jose dos Pinhais"
// wins over "Sao Jose".
func NewMatcher(locs []model.Location) *Matcher {
	m := &Matcher{}
	for _, l := range locs {
		key := textnorm.NormalizeLocationName(l.Name)
		if key == "" {
			continue
		}
		m.entries = append(m.entries, matchEntry{key: " " + key + " ", loc: l})
	}
	sort.SliceStable(m.entries, func(i, j int) bool {
		return len(m.entries[i].key) > len(m.entries[j].key)
	})
	return m
}

// Match returns the location whose name appears as whole words in name.
func (m *Matcher) Match(name string) (model.Location, bool) {
	padded := " " + textnorm.NormalizeLocationName(name) + " "
	for _, e := range m.entries {
		if strings.Contains(padded, e.key) {
			return e.loc, true
		}
	}
	return model.Location{}, false
}
