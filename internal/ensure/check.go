// Package ensure evaluates location postconditions against the page's current URL.
package ensure

import (
	"regexp"

	"github.com/xkilldash9x/scenario-cli/api/schemas"
)

// Check verifies actual against a. The literal location is checked first, then the
// pattern. A pattern that does not compile is a *schemas.MalformedScenarioError; a
// condition that does not hold is a *schemas.AssertionFailure.
func Check(actual string, a schemas.EnsureAction) error {
	if a.Location != nil && actual != *a.Location {
		return &schemas.AssertionFailure{Expected: *a.Location, Actual: actual}
	}

	if a.LocationRegexp != nil {
		re, err := regexp.Compile(*a.LocationRegexp)
		if err != nil {
			return &schemas.MalformedScenarioError{Field: "location_regexp", Reason: "invalid pattern", Err: err}
		}
		if !re.MatchString(actual) {
			return &schemas.AssertionFailure{Expected: *a.LocationRegexp, Actual: actual, Pattern: true}
		}
	}
	return nil
}
