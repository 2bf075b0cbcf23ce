package logutil

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sqlStringPattern  = regexp.MustCompile(`'(?:[^']|'')*'`)
	sqlParamPattern   = regexp.MustCompile(`\$\d+`)
	sqlNumericPattern = regexp.MustCompile(`\b\d+(?:\.\d+)?(?:[eE][+-]?\d+)?\b`)
	sqlUUIDPattern    = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
)

// SanitizeSQL replaces literal values in a SQL statement with placeholders
// so credentials and PII never reach the log stream. Positional parameters
// ($1, $2, ...) carry no data and are kept as-is.
func SanitizeSQL(query string) string {
	query = sqlStringPattern.ReplaceAllString(query, "'<redacted>'")

	// Park positional parameters so the numeric pass does not eat them.
	params := sqlParamPattern.FindAllString(query, -1)
	for i, p := range params {
		query = strings.Replace(query, p, "\x00"+strconv.Itoa(i)+"\x00", 1)
	}

	// UUIDs before bare numerics, or the numeric pass would chew up their
	// digit-only segments.
	query = sqlUUIDPattern.ReplaceAllString(query, "<uuid>")
	query = sqlNumericPattern.ReplaceAllString(query, "<num>")

	for i, p := range params {
		query = strings.Replace(query, "\x00"+strconv.Itoa(i)+"\x00", p, 1)
	}
	return query
}
