package tracking

import (
	"strings"

	"github.com/wormsql/worm/internal/orm/schema"
)

// privatePrefix marks keys that carry tracking metadata rather than data
const privatePrefix = "__"

// Sanitize returns a deep copy of a record without keys prefixed "__"
func Sanitize(record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	result := make(map[string]interface{}, len(record))
	for k, v := range record {
		if strings.HasPrefix(k, privatePrefix) {
			continue
		}
		result[k] = schema.CopyValue(v)
	}
	return result
}
