package catalog

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/andresuchdata/imgsync/internal/domain"
)

// ParseImageList decodes the serialized image URL column. It accepts a JSON
// array of strings or the quoted list literal form (['a', "b"]) and rejects
// everything else.
func ParseImageList(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: image url list", domain.ErrMissingField)
	}

	if !strings.HasPrefix(raw, "[") {
		return nil, malformed("not a list")
	}

	var urls []string
	if err := json.Unmarshal([]byte(raw), &urls); err != nil {
		urls, err = parseListLiteral(raw)
		if err != nil {
			return nil, err
		}
	}

	for i, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			return nil, malformed("empty url at position %d", i+1)
		}
		urls[i] = u
	}
	return urls, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedImageList, fmt.Sprintf(format, args...))
}

func parseListLiteral(s string) ([]string, error) {
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, malformed("not a list literal")
	}
	body := s[1 : len(s)-1]

	urls := []string{}
	expectValue := true
	for i := skipSpace(body, 0); i < len(body); i = skipSpace(body, i) {
		if !expectValue {
			if body[i] != ',' {
				return nil, malformed("expected ',' at offset %d", i+1)
			}
			expectValue = true
			i++
			continue
		}

		if body[i] != '\'' && body[i] != '"' {
			return nil, malformed("unexpected %q at offset %d", body[i], i+1)
		}
		val, next, err := readQuoted(body, i)
		if err != nil {
			return nil, err
		}
		urls = append(urls, val)
		expectValue = false
		i = next
	}

	return urls, nil
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// readQuoted reads the string literal starting at s[start] and returns its value
// and the offset just past the closing quote.
func readQuoted(s string, start int) (string, int, error) {
	quote := s[start]
	var sb strings.Builder
	for i := start + 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == quote:
			return sb.String(), i + 1, nil
		case c == '\\' && i+1 < len(s):
			i++
			switch s[i] {
			case '\\', '\'', '"':
				sb.WriteByte(s[i])
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(s[i])
			}
		default:
			sb.WriteByte(c)
		}
	}
	return "", 0, malformed("unterminated string at offset %d", start+1)
}
