package core

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ============================================================================
// CANONICAL MESSAGE ENCODING
// Signed payloads must serialize to identical bytes on every node or
// signatures will not reproducibly verify. This is the single most important
// portability contract in the engine, so the encoding is deliberately dumb:
// sorted keys, one key=value pair per line, RFC 3339 UTC timestamps, floats
// with a fixed 6-digit mantissa.
// ============================================================================

// CanonicalMap encodes a flat string→value map deterministically.
// Supported value types: string, bool, int, int64, float64, time.Time.
func CanonicalMap(fields map[string]interface{}) []byte {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalValue(fields[k]))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func canonicalValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', 6, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		// Unknown types still encode deterministically via %v, but callers
		// should stick to the supported set.
		return fmt.Sprintf("%v", t)
	}
}
