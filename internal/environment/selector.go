// Package environment maps the execution context onto the set of browser
// environments handed to the test runner.
package environment

import (
	"os"
	"strings"

	"github.com/Paintersrp/rune2e/internal/config"
)

// Set is an ordered list of target environment names.
type Set []string

// String renders the set in the comma separated form test runners accept.
func (s Set) String() string {
	return strings.Join(s, ",")
}

// Selector chooses between the extended CI set and the default set.
type Selector struct {
	// Variable names the environment variable whose presence marks a CI run.
	Variable string
	CI       Set
	Default  Set
}

// FromConfig builds a selector from the environments section.
func FromConfig(spec config.EnvironmentsSpec) Selector {
	return Selector{
		Variable: spec.CIVariable,
		CI:       append(Set(nil), spec.CI...),
		Default:  append(Set(nil), spec.Default...),
	}
}

// InCI reports whether the indicator variable is set to a non-empty value.
func (s Selector) InCI(lookup func(string) (string, bool)) bool {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	value, ok := lookup(s.Variable)
	return ok && value != ""
}

// Select returns a copy of the CI set when the indicator is present and of
// the default set otherwise.
func (s Selector) Select(lookup func(string) (string, bool)) Set {
	if s.InCI(lookup) {
		return append(Set(nil), s.CI...)
	}
	return append(Set(nil), s.Default...)
}
