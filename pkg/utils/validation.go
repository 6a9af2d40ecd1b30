package utils

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidIdentifier is returned for labels or index names that cannot be
// interpolated into a Cypher statement.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidateIdentifier checks that s is safe to splice into Cypher as a label,
// relationship type or index name. Cypher cannot bind these as parameters.
func ValidateIdentifier(s string) error {
	if !identifierPattern.MatchString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, s)
	}
	return nil
}
