package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Validator checks a single field value
type Validator interface {
	Validate(value interface{}) error
}

// MinValidator validates minimum values for numbers
type MinValidator struct {
	Min float64
}

// Validate implements the Validator interface
func (v *MinValidator) Validate(value interface{}) error {
	if value == nil {
		return nil // Nullable fields are validated separately
	}

	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("expected numeric value")
	}
	if n < v.Min {
		return fmt.Errorf("must be at least %v", v.Min)
	}
	return nil
}

// MaxValidator validates maximum values for numbers
type MaxValidator struct {
	Max float64
}

// Validate implements the Validator interface
func (v *MaxValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	n, ok := toFloat64(value)
	if !ok {
		return fmt.Errorf("expected numeric value")
	}
	if n > v.Max {
		return fmt.Errorf("must be at most %v", v.Max)
	}
	return nil
}

// PatternValidator validates string values against a regex pattern
type PatternValidator struct {
	Pattern *regexp.Regexp
}

// Validate implements the Validator interface
func (v *PatternValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern validation requires string value")
	}

	if !v.Pattern.MatchString(strVal) {
		return fmt.Errorf("does not match required pattern")
	}

	return nil
}

// EmailValidator validates email addresses
type EmailValidator struct{}

// Validate implements the Validator interface
func (v *EmailValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("email validation requires string value")
	}

	if strings.TrimSpace(strVal) == "" {
		return fmt.Errorf("email address cannot be empty")
	}

	if _, err := mail.ParseAddress(strVal); err != nil {
		return fmt.Errorf("must be a valid email address")
	}

	return nil
}

// URLValidator validates absolute URLs
type URLValidator struct{}

// Validate implements the Validator interface
func (v *URLValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("URL validation requires string value")
	}

	parsedURL, err := url.Parse(strVal)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return fmt.Errorf("must be a valid URL")
	}

	return nil
}

// LengthValidator bounds the length of strings (in runes) and lists.
// A zero Max means no upper bound.
type LengthValidator struct {
	Min int
	Max int
}

// Validate implements the Validator interface
func (v *LengthValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	var n int
	if s, ok := value.(string); ok {
		n = utf8.RuneCountInString(s)
	} else {
		val := reflect.ValueOf(value)
		if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
			return fmt.Errorf("length validation requires string or list value")
		}
		n = val.Len()
	}

	if n < v.Min {
		return fmt.Errorf("must have a length of at least %d", v.Min)
	}
	if v.Max > 0 && n > v.Max {
		return fmt.Errorf("must have a length of at most %d", v.Max)
	}
	return nil
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
