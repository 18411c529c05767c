package logbridge

import (
	"strings"

	"github.com/wippyai/wasm-fmu/fmi2"
)

// Standard FMI 2.0 log categories.
const (
	LogEvents                = "logEvents"
	LogSingularLinearSystems = "logSingularLinearSystems"
	LogNonlinearSystems      = "logNonlinearSystems"
	LogDynamicStateSelection = "logDynamicStateSelection"
	LogStatusWarning         = "logStatusWarning"
	LogStatusDiscard         = "logStatusDiscard"
	LogStatusError           = "logStatusError"
	LogStatusFatal           = "logStatusFatal"
	LogStatusPending         = "logStatusPending"
	LogAll                   = "logAll"
)

// Predicate decides whether a record belongs to a category.
type Predicate func(Record) bool

func categoryIn(names ...string) Predicate {
	return func(r Record) bool {
		c := strings.ToLower(r.Category)
		for _, n := range names {
			if c == n {
				return true
			}
		}
		return false
	}
}

func statusIs(s fmi2.Status) Predicate {
	return func(r Record) bool { return r.Status == s }
}

var standard = map[string]Predicate{
	LogEvents:                categoryIn("logevents", "event", "events"),
	LogSingularLinearSystems: categoryIn("logsingularlinearsystems", "singularlinearsystem", "singularlinearsystems", "sls"),
	LogNonlinearSystems:      categoryIn("lognonlinearsystems", "nonlinearsystem", "nonlinearsystems", "nls"),
	LogDynamicStateSelection: categoryIn("logdynamicstateselection", "dynamicstateselection", "dss"),
	LogStatusWarning:         statusIs(fmi2.Warning),
	LogStatusDiscard:         statusIs(fmi2.Discard),
	LogStatusError:           statusIs(fmi2.Error),
	LogStatusFatal:           statusIs(fmi2.Fatal),
	LogStatusPending:         statusIs(fmi2.Pending),
	LogAll:                   func(Record) bool { return true },
}

// StandardCategories lists the FMI 2.0 categories in declaration order.
func StandardCategories() []string {
	return []string{
		LogEvents, LogSingularLinearSystems, LogNonlinearSystems, LogDynamicStateSelection,
		LogStatusWarning, LogStatusDiscard, LogStatusError, LogStatusFatal, LogStatusPending, LogAll,
	}
}

// Matches reports whether r belongs to category. Unknown categories match by exact name.
func Matches(category string, r Record) bool {
	if p, ok := standard[category]; ok {
		return p(r)
	}
	return r.Category == category
}

// StatusCategory returns the category a component uses for its own record of status s.
func StatusCategory(s fmi2.Status) string {
	switch s {
	case fmi2.Warning:
		return LogStatusWarning
	case fmi2.Discard:
		return LogStatusDiscard
	case fmi2.Error:
		return LogStatusError
	case fmi2.Fatal:
		return LogStatusFatal
	case fmi2.Pending:
		return LogStatusPending
	default:
		return LogEvents
	}
}
