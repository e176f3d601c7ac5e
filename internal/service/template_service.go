// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"
)

// Built-in placeholder names the materializer derives from the event itself.
const (
	VarEventTitle = "event_title"
	VarEventDate  = "event_date"
	VarEventTime  = "event_time"
)

// RenderTemplate substitutes {placeholder} tokens. Built-ins are matched
// case-insensitively first, then manual variables by exact key. The order
// matters: a manual key colliding with a built-in name never wins. Tokens
// with no value are left verbatim.
func RenderTemplate(template string, builtins, manual map[string]string) string {
	result := template
	for k, v := range builtins {
		pattern := regexp.MustCompile(`(?i)` + regexp.QuoteMeta("{"+k+"}"))
		result = pattern.ReplaceAllLiteralString(result, v)
	}
	for k, v := range manual {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
