// Package validation builds record validators out of small composable rules.
// A checker runs every rule and reports all failures, not just the first.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// Rule checks one aspect of a record and returns nil when it holds
type Rule func(record map[string]interface{}) error

// Checker combines rules into a record validator. The result can be assigned
// to an entity's Validator.
func Checker(rules ...Rule) func(record map[string]interface{}) []error {
	return func(record map[string]interface{}) []error {
		var errs []error
		for _, rule := range rules {
			if err := rule(record); err != nil {
				errs = append(errs, err)
			}
		}
		return errs
	}
}

// Field applies value validators to one field of the record
func Field(name string, validators ...Validator) Rule {
	return func(record map[string]interface{}) error {
		value := record[name]
		for _, v := range validators {
			if err := v.Validate(value); err != nil {
				return NewFieldError(name, err.Error())
			}
		}
		return nil
	}
}

// Required fails when the field is missing, nil or renders as an empty string
func Required(field string) Rule {
	return func(record map[string]interface{}) error {
		v, ok := record[field]
		if !ok || v == nil || fmt.Sprint(v) == "" {
			return NewFieldError(field, "is required")
		}
		return nil
	}
}

// IsNumber accepts numeric values and strings holding a finite number
func IsNumber(field string) Rule {
	return func(record map[string]interface{}) error {
		if isNumber(record[field]) {
			return nil
		}
		return NewFieldError(field, "must be a number")
	}
}

// IsArray accepts slices and arrays
func IsArray(field string) Rule {
	return func(record map[string]interface{}) error {
		if kindOf(record[field]) == reflect.Slice || kindOf(record[field]) == reflect.Array {
			return nil
		}
		return NewFieldError(field, "must be an array")
	}
}

// IsObject accepts maps
func IsObject(field string) Rule {
	return func(record map[string]interface{}) error {
		if kindOf(record[field]) == reflect.Map {
			return nil
		}
		return NewFieldError(field, "must be an object")
	}
}

// HasKeys fails when any of the keys is absent from the record
func HasKeys(keys ...string) Rule {
	return func(record map[string]interface{}) error {
		if record == nil {
			return NewFieldError(RecordField, "is null")
		}
		var missing []string
		for _, k := range keys {
			if _, ok := record[k]; !ok {
				missing = append(missing, k)
			}
		}
		if len(missing) > 0 {
			return NewFieldError(RecordField, "must have values for keys: "+strings.Join(missing, " "))
		}
		return nil
	}
}

// If runs rule only for records matching condition
func If(condition func(record map[string]interface{}) bool, rule Rule) Rule {
	return func(record map[string]interface{}) error {
		if condition(record) {
			return rule(record)
		}
		return nil
	}
}

func isNumber(v interface{}) bool {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	}
	f, ok := toFloat64(v)
	return ok && !math.IsInf(f, 0) && !math.IsNaN(f)
}

func kindOf(v interface{}) reflect.Kind {
	if v == nil {
		return reflect.Invalid
	}
	return reflect.TypeOf(v).Kind()
}
