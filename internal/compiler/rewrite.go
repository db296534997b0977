package compiler

import (
	"strings"

	"dashshot/internal/models"
)

// rewriteSelectors returns a copy of events with every non-empty selector
// passed through fn.
func rewriteSelectors(events []models.Event, fn func(alts []string) string) []models.Event {
	out := make([]models.Event, len(events))
	for i, e := range events {
		if e.Selector != "" {
			e.Selector = fn(splitSelector(e.Selector))
		}
		out[i] = e
	}
	return out
}

// keepIDAlternative collapses a grouped selector to its first id
// alternative, or to its first alternative when none is id based.
func keepIDAlternative(alts []string) string {
	for _, a := range alts {
		if strings.HasPrefix(a, "#") {
			return a
		}
	}
	return first(alts)
}

// dropIDAlternatives strips id alternatives from a grouped selector, for
// login forms that reuse the same id on several inputs.
func dropIDAlternatives(alts []string) string {
	kept := make([]string, 0, len(alts))
	for _, a := range alts {
		if !strings.HasPrefix(a, "#") {
			kept = append(kept, a)
		}
	}
	if len(kept) > 0 {
		return strings.Join(kept, ",")
	}
	return first(alts)
}

func first(alts []string) string {
	if len(alts) == 0 {
		return ""
	}
	return alts[0]
}
