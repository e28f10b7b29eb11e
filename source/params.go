package source

import "strings"

// Param returns the named request parameter as a trimmed string, or "" when
// absent or not a string. Planner-produced params are decoded from JSON, so
// string is the only type adapters look for.
func Param(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
