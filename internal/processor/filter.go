package processor

import (
	"strings"

	"github.com/tphakala/birdnet-notifier/internal/datastore"
)

// speciesFilter applies the whitelist and blacklist policy. Names match
// case-insensitively against both the common and the scientific name, so
// either form works in configuration.
type speciesFilter struct {
	whitelist map[string]struct{}
	blacklist map[string]struct{}
}

func newSpeciesFilter(whitelist, blacklist []string) *speciesFilter {
	return &speciesFilter{
		whitelist: nameSet(whitelist),
		blacklist: nameSet(blacklist),
	}
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// allowed reports whether the detection passes the species policy. The
// blacklist wins over the whitelist; an empty whitelist allows all.
func (f *speciesFilter) allowed(note *datastore.Note) bool {
	common := strings.ToLower(note.CommonName)
	scientific := strings.ToLower(note.ScientificName)

	if _, ok := f.blacklist[common]; ok {
		return false
	}
	if _, ok := f.blacklist[scientific]; ok {
		return false
	}
	if len(f.whitelist) == 0 {
		return true
	}
	if _, ok := f.whitelist[common]; ok {
		return true
	}
	_, ok := f.whitelist[scientific]
	return ok
}
