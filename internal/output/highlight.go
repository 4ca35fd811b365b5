package output

import (
	"strings"

	"github.com/mgutz/ansi"
)

// jsonTokenType identifies the kind of JSON token for syntax coloring.
type jsonTokenType int

const (
	jsonTokenKey jsonTokenType = iota
	jsonTokenString
	jsonTokenNumber
	jsonTokenBool
	jsonTokenNull
	jsonTokenPunct
	jsonTokenWhitespace
)

type jsonToken struct {
	typ   jsonTokenType
	value string
}

// tokenStyle maps token types to ansi styles. Missing entries print plain.
var tokenStyle = map[jsonTokenType]string{
	jsonTokenKey:    "blue",
	jsonTokenString: "green",
	jsonTokenNumber: "yellow",
	jsonTokenBool:   "magenta",
	jsonTokenNull:   "black+h",
}

// highlightJSON wraps the tokens of a JSON document in terminal colour codes.
func highlightJSON(input string) string {
	if input == "" {
		return ""
	}

	var sb strings.Builder
	sb.Grow(len(input) * 2)
	for _, tok := range tokenizeJSON(input) {
		if style, ok := tokenStyle[tok.typ]; ok {
			sb.WriteString(ansi.Color(tok.value, style))
			continue
		}
		sb.WriteString(tok.value)
	}
	return sb.String()
}

// tokenizeJSON breaks a JSON string into typed tokens.
func tokenizeJSON(input string) []jsonToken {
	tokens := make([]jsonToken, 0, 128)
	i := 0

	for i < len(input) {
		ch := input[i]

		switch {
		case ch == '"':
			j := i + 1
			for j < len(input) {
				if input[j] == '\\' {
					j += 2
					continue
				}
				if input[j] == '"' {
					j++
					break
				}
				j++
			}
			if j > len(input) {
				j = len(input)
			}
			tokens = append(tokens, jsonToken{typ: jsonTokenString, value: input[i:j]})
			i = j

		case ch == '-' || (ch >= '0' && ch <= '9'):
			j := i + 1
			for j < len(input) && isNumberByte(input[j]) {
				j++
			}
			tokens = append(tokens, jsonToken{typ: jsonTokenNumber, value: input[i:j]})
			i = j

		case strings.HasPrefix(input[i:], "true"):
			tokens = append(tokens, jsonToken{typ: jsonTokenBool, value: "true"})
			i += 4

		case strings.HasPrefix(input[i:], "false"):
			tokens = append(tokens, jsonToken{typ: jsonTokenBool, value: "false"})
			i += 5

		case strings.HasPrefix(input[i:], "null"):
			tokens = append(tokens, jsonToken{typ: jsonTokenNull, value: "null"})
			i += 4

		case isSpace(ch):
			j := i + 1
			for j < len(input) && isSpace(input[j]) {
				j++
			}
			tokens = append(tokens, jsonToken{typ: jsonTokenWhitespace, value: input[i:j]})
			i = j

		default:
			tokens = append(tokens, jsonToken{typ: jsonTokenPunct, value: string(ch)})
			i++
		}
	}

	// Strings followed by a colon are object keys.
	for idx := 0; idx < len(tokens); idx++ {
		if tokens[idx].typ != jsonTokenString {
			continue
		}
		for j := idx + 1; j < len(tokens); j++ {
			if tokens[j].typ == jsonTokenWhitespace {
				continue
			}
			if tokens[j].typ == jsonTokenPunct && tokens[j].value == ":" {
				tokens[idx].typ = jsonTokenKey
			}
			break
		}
	}

	return tokens
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' || c == '+' || c == '-'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
