package schema

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Validator checks whether a candidate value is acceptable for a
// setting. Store.Set rejects the write with SetError when Validate
// returns a non-nil error.
type Validator interface {
	Validate(text string) error
}

// newValidator resolves a validator pragma from a definition file.
// Two forms are supported: the bare name "integer"/"boolean", and
// "regex:<pattern>" for anything else.
func newValidator(spec string) (Validator, error) {
	switch {
	case spec == "integer":
		return integerValidator{}, nil
	case spec == "boolean":
		return booleanValidator{}, nil
	case strings.HasPrefix(spec, "regex:"):
		pattern := strings.TrimPrefix(spec, "regex:")
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("schema: bad regex validator %q: %w", pattern, err)
		}
		return regexValidator{re: re}, nil
	default:
		return nil, fmt.Errorf("schema: unknown validator %q", spec)
	}
}

type integerValidator struct{}

func (integerValidator) Validate(text string) error {
	if _, err := strconv.ParseInt(text, 10, 64); err != nil {
		return fmt.Errorf("schema: %q is not an integer", text)
	}
	return nil
}

type booleanValidator struct{}

func (booleanValidator) Validate(text string) error {
	switch strings.ToLower(text) {
	case "true", "false", "1", "0", "yes", "no", "on", "off":
		return nil
	default:
		return fmt.Errorf("schema: %q is not a boolean", text)
	}
}

type regexValidator struct {
	re *regexp.Regexp
}

func (v regexValidator) Validate(text string) error {
	if !v.re.MatchString(text) {
		return fmt.Errorf("schema: %q does not match %s", text, v.re.String())
	}
	return nil
}
