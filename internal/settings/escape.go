package settings

import "strings"

// escapeValue and unescapeValue implement the wire escaping shared by
// Store.Serialize/Deserialize and by internal/persistence: a value's
// text may itself contain the field separator, so '|', '\', '\n' and
// '\r' are escaped before a record is written as a single line.
var escapeReplacer = strings.NewReplacer(
	`\`, `\S`,
	"|", `\P`,
	"\n", `\n`,
	"\r", `\r`,
)

// EscapeValue escapes '\', '|', '\n' and '\r' in s so it can be stored
// as the single-line text field of a record wire encoding. It is
// exported for internal/persistence, which shares this wire format.
func EscapeValue(s string) string {
	return escapeReplacer.Replace(s)
}

// UnescapeValue reverses EscapeValue.
func UnescapeValue(s string) string {
	return unescapeValue(s)
}

func escapeValue(s string) string {
	return escapeReplacer.Replace(s)
}

func unescapeValue(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 >= len(s) {
			b.WriteByte(s[i])
			continue
		}
		switch s[i+1] {
		case 'S':
			b.WriteByte('\\')
		case 'P':
			b.WriteByte('|')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
			continue
		}
		i++
	}
	return b.String()
}
