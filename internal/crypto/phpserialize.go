package crypto

import (
	"sort"
	"strconv"
	"strings"
)

// PHPSerializeStringMap builds the exact PHP serialize() byte sequence
// for an associative array of strings, keys sorted lexicographically:
// a:N:{s:L1:"k1";s:L2:"v1";...}. This is the canonicalization Paddle's
// p_signature verification requires — a legacy wire quirk, not a
// general-purpose serializer.
func PHPSerializeStringMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("a:")
	b.WriteString(strconv.Itoa(len(keys)))
	b.WriteString(":{")
	for _, k := range keys {
		writePHPString(&b, k)
		writePHPString(&b, m[k])
	}
	b.WriteString("}")
	return b.String()
}

func writePHPString(b *strings.Builder, s string) {
	b.WriteString("s:")
	b.WriteString(strconv.Itoa(len(s)))
	b.WriteString(":\"")
	b.WriteString(s)
	b.WriteString("\";")
}

// ParseFormToStringMap converts an already-parsed form's non-array
// values into the map PHPSerializeStringMap expects, dropping the field
// named excludeKey (p_signature itself).
func ParseFormToStringMap(form map[string][]string, excludeKey string) map[string]string {
	out := make(map[string]string, len(form))
	for k, v := range form {
		if k == excludeKey || len(v) == 0 {
			continue
		}
		out[k] = v[0]
	}
	return out
}
