package flow

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	orderNumberPatterns = []*regexp.Regexp{
		// Standalone run of 6-12 digits; letters count as word characters.
		regexp.MustCompile(`(?:^|[^\p{L}\p{N}_])(\d{6,12})(?:$|[^\p{L}\p{N}_])`),
		regexp.MustCompile(`[№#]\s*(\d+)`),
		regexp.MustCompile(`(?i)заказ\s*(\d+)`),
	}

	amountPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(\d+)\s*руб`),
		regexp.MustCompile(`(\d+)\s*₽`),
		regexp.MustCompile(`(?i)(\d+)\s*тысяч`),
		regexp.MustCompile(`(?i)(\d+\.?\d*)\s*тыс`),
	}

	addressPatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{"city", regexp.MustCompile(`(?i)(?:^|[\s,])г\.\s*([^\s,]+)`)},
		{"city", regexp.MustCompile(`(?i)город\s+([^\s,]+)`)},
		{"street", regexp.MustCompile(`(?i)ул\.\s*([^,\d]+)`)},
		{"street", regexp.MustCompile(`(?i)улица\s+([^,\d]+)`)},
		{"house", regexp.MustCompile(`(?i)(?:^|[\s,])д\.\s*(\d+)`)},
		{"house", regexp.MustCompile(`(?i)дом\s+(\d+)`)},
		{"apartment", regexp.MustCompile(`(?i)кв\.\s*(\d+)`)},
		{"apartment", regexp.MustCompile(`(?i)квартира\s+(\d+)`)},
	}

	addressOrder = []struct{ key, prefix string }{
		{"city", "г. "},
		{"street", "ул. "},
		{"house", "д. "},
		{"apartment", "кв. "},
	}
)

// keywordGroup maps a label to the substrings that signal it.
type keywordGroup struct {
	label string
	words []string
}

// matchGroup returns the label of the first group with a word in text.
func matchGroup(groups []keywordGroup, text string) string {
	for _, g := range groups {
		if containsAny(text, g.words) {
			return g.label
		}
	}
	return ""
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

func blank(message string) bool {
	return strings.TrimSpace(message) == ""
}

func firstSubmatch(patterns []*regexp.Regexp, text string) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

func extractOrderNumber(message string) string {
	return firstSubmatch(orderNumberPatterns, message)
}

func extractAmount(message string) string {
	return firstSubmatch(amountPatterns, message)
}

// extractAddress returns the address components found in message.
func extractAddress(message string) map[string]string {
	parts := make(map[string]string)
	for _, p := range addressPatterns {
		if _, ok := parts[p.key]; ok {
			continue
		}
		if m := p.re.FindStringSubmatch(message); m != nil {
			if v := strings.TrimSpace(m[1]); v != "" {
				parts[p.key] = v
			}
		}
	}
	return parts
}

func formatAddress(parts map[string]string) string {
	out := make([]string, 0, len(addressOrder))
	for _, a := range addressOrder {
		if v, ok := parts[a.key]; ok {
			out = append(out, a.prefix+v)
		}
	}
	return strings.Join(out, ", ")
}

// addressParts reads the accumulated address, tolerating entities that
// arrived from the caller as map[string]any.
func addressParts(v any) map[string]string {
	out := make(map[string]string)
	switch m := v.(type) {
	case map[string]string:
		for k, s := range m {
			out[k] = s
		}
	case map[string]any:
		for k, s := range m {
			out[k] = toString(s)
		}
	}
	return out
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
	}
	return fmt.Sprint(v)
}

// orderNumberFor finds an order number in the turn: the message first,
// then the entities supplied with it.
func orderNumberFor(sc *SessionContext, message string) string {
	if n := extractOrderNumber(message); n != "" {
		return n
	}
	return sc.TurnEntity("order_number")
}
