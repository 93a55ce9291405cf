package query

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\$(\d+)`)

// Renumber rewrites the local placeholders of a WHERE fragment so they follow
// offset already-bound parameters. A slice parameter expands its placeholder
// into one placeholder per element; an empty slice becomes NULL. It returns the
// rewritten fragment and the flattened parameters.
func Renumber(fragment string, params []interface{}, offset int) (string, []interface{}, error) {
	starts := make([]int, len(params))
	widths := make([]int, len(params))
	flat := make([]interface{}, 0, len(params))

	next := offset + 1
	for i, p := range params {
		starts[i] = next
		if items, ok := expand(p); ok {
			widths[i] = len(items)
			flat = append(flat, items...)
		} else {
			widths[i] = 1
			flat = append(flat, p)
		}
		next += widths[i]
	}

	var rangeErr error
	out := placeholderPattern.ReplaceAllStringFunc(fragment, func(match string) string {
		n, err := strconv.Atoi(match[1:])
		if err != nil || n < 1 || n > len(params) {
			if rangeErr == nil {
				rangeErr = fmt.Errorf("%w: %s in %q with %d params", ErrPlaceholderOutOfRange, match, fragment, len(params))
			}
			return match
		}

		i := n - 1
		if widths[i] == 0 {
			return "NULL"
		}
		if _, isList := expand(params[i]); !isList {
			return "$" + strconv.Itoa(starts[i])
		}

		parts := make([]string, widths[i])
		for j := range parts {
			parts[j] = "$" + strconv.Itoa(starts[i]+j)
		}
		return strings.Join(parts, ",")
	})
	if rangeErr != nil {
		return "", nil, rangeErr
	}

	return out, flat, nil
}

// expand returns the elements of a slice or array parameter. Byte slices are
// scalar values and are not expanded.
func expand(p interface{}) ([]interface{}, bool) {
	if p == nil {
		return nil, false
	}
	if _, isBytes := p.([]byte); isBytes {
		return nil, false
	}

	v := reflect.ValueOf(p)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}

	items := make([]interface{}, v.Len())
	for i := range items {
		items[i] = v.Index(i).Interface()
	}
	return items, true
}
