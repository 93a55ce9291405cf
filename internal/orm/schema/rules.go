package schema

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/wormsql/worm/internal/orm/validation"
)

// validateDoc is the YAML shape of the declarative rules of an entity
type validateDoc struct {
	Required []string             `yaml:"required"`
	Numbers  []string             `yaml:"numbers"`
	Arrays   []string             `yaml:"arrays"`
	Objects  []string             `yaml:"objects"`
	Emails   []string             `yaml:"emails"`
	URLs     []string             `yaml:"urls"`
	Patterns map[string]string    `yaml:"patterns"`
	Lengths  map[string]lengthDoc `yaml:"lengths"`
	Min      map[string]float64   `yaml:"min"`
	Max      map[string]float64   `yaml:"max"`
}

type lengthDoc struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

func (v *validateDoc) validator(table string) (ValidatorFunc, error) {
	var rules []validation.Rule

	for _, f := range v.Required {
		rules = append(rules, validation.Required(f))
	}
	for _, f := range v.Numbers {
		rules = append(rules, validation.IsNumber(f))
	}
	for _, f := range v.Arrays {
		rules = append(rules, validation.IsArray(f))
	}
	for _, f := range v.Objects {
		rules = append(rules, validation.IsObject(f))
	}
	for _, f := range v.Emails {
		rules = append(rules, validation.Field(f, &validation.EmailValidator{}))
	}
	for _, f := range v.URLs {
		rules = append(rules, validation.Field(f, &validation.URLValidator{}))
	}

	for _, f := range sortedKeys(v.Patterns) {
		re, err := regexp.Compile(v.Patterns[f])
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: bad pattern: %v", ErrInvalidSchema, table, f, err)
		}
		rules = append(rules, validation.Field(f, &validation.PatternValidator{Pattern: re}))
	}
	for _, f := range sortedKeys(v.Lengths) {
		l := v.Lengths[f]
		rules = append(rules, validation.Field(f, &validation.LengthValidator{Min: l.Min, Max: l.Max}))
	}
	for _, f := range sortedKeys(v.Min) {
		rules = append(rules, validation.Field(f, &validation.MinValidator{Min: v.Min[f]}))
	}
	for _, f := range sortedKeys(v.Max) {
		rules = append(rules, validation.Field(f, &validation.MaxValidator{Max: v.Max[f]}))
	}

	if len(rules) == 0 {
		return nil, nil
	}
	return validation.Checker(rules...), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
