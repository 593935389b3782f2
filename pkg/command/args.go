package command

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// quotes maps opening quote marks to their closing mark
var quotes = map[rune]rune{
	'"': '"',
	'“': '”',
	'‘': '’',
	'«': '»',
	'「': '」',
}

func isQuote(r rune) bool {
	if _, ok := quotes[r]; ok {
		return true
	}
	for _, closing := range quotes {
		if closing == r {
			return true
		}
	}
	return false
}

// view walks the argument text of a message
type view struct {
	s   string
	pos int
}

func (v *view) eof() bool {
	return v.pos >= len(v.s)
}

func (v *view) skipSpace() {
	for !v.eof() {
		r, size := utf8.DecodeRuneInString(v.s[v.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		v.pos += size
	}
}

// rest returns the remaining text with surrounding space trimmed
func (v *view) rest() string {
	out := strings.TrimSpace(v.s[v.pos:])
	v.pos = len(v.s)
	return out
}

// word reads one bare token without quote handling
func (v *view) word() string {
	v.skipSpace()
	start := v.pos
	for !v.eof() {
		r, size := utf8.DecodeRuneInString(v.s[v.pos:])
		if unicode.IsSpace(r) {
			break
		}
		v.pos += size
	}
	return v.s[start:v.pos]
}

// quotedWord reads one token, honouring quotes and backslash escapes
func (v *view) quotedWord() (string, error) {
	v.skipSpace()
	if v.eof() {
		return "", nil
	}

	first, size := utf8.DecodeRuneInString(v.s[v.pos:])
	closing, quoted := quotes[first]
	if quoted {
		v.pos += size
	}

	var sb strings.Builder
	if !quoted {
		sb.WriteRune(first)
		v.pos += size
		if isQuote(first) {
			return "", unexpectedQuote(first)
		}
	}

	for {
		if v.eof() {
			if quoted {
				return "", errors.NewBuilder(errors.KindExpectedClosingQuote).
					WithMessagef("Expected closing %c.", closing).
					Build()
			}
			return sb.String(), nil
		}

		r, size := utf8.DecodeRuneInString(v.s[v.pos:])
		v.pos += size

		if r == '\\' && !v.eof() {
			next, nsize := utf8.DecodeRuneInString(v.s[v.pos:])
			if quoted && (next == closing || next == first) {
				v.pos += nsize
				sb.WriteRune(next)
				continue
			}
		}

		if quoted && r == closing {
			if v.eof() {
				return sb.String(), nil
			}
			next, _ := utf8.DecodeRuneInString(v.s[v.pos:])
			if !unicode.IsSpace(next) {
				return "", errors.NewBuilder(errors.KindInvalidEndOfQuotedString).
					WithMessagef("Expected space after closing quotation but received %q", next).
					Build()
			}
			return sb.String(), nil
		}

		if !quoted && isQuote(r) {
			return "", unexpectedQuote(r)
		}
		if !quoted && unicode.IsSpace(r) {
			return sb.String(), nil
		}
		sb.WriteRune(r)
	}
}

func unexpectedQuote(r rune) error {
	return errors.NewBuilder(errors.KindUnexpectedQuote).
		WithMessagef("Unexpected quote mark, %q, in non-quoted string", r).
		Build()
}

// Split tokenizes text the way command arguments are parsed
func Split(text string) ([]string, error) {
	v := &view{s: text}
	var out []string
	for {
		v.skipSpace()
		if v.eof() {
			return out, nil
		}
		word, err := v.quotedWord()
		if err != nil {
			return nil, err
		}
		out = append(out, word)
	}
}

// bindArgs converts the remaining text into named values for params
func bindArgs(params []Param, v *view) (map[string]string, []string, error) {
	values := make(map[string]string, len(params))
	var raw []string

	for _, p := range params {
		var (
			value string
			err   error
		)
		if p.Rest {
			value = v.rest()
		} else {
			value, err = v.quotedWord()
			if err != nil {
				return nil, nil, err
			}
		}

		if value == "" {
			if p.Optional {
				continue
			}
			return nil, nil, errors.NewBuilder(errors.KindMissingArgument).
				WithMessagef("%s is a required argument that is missing.", p.Name).
				Build()
		}

		if p.Type == ParamInt {
			if _, err := strconv.Atoi(value); err != nil {
				return nil, nil, errors.NewBuilder(errors.KindBadArgument).
					WithMessagef("Converting to \"int\" failed for parameter \"%s\".", p.Name).
					Build()
			}
		}

		values[p.Name] = value
		raw = append(raw, value)
	}
	return values, raw, nil
}

func validateParams(cmd *Command) error {
	for i, p := range cmd.Params {
		if p.Rest && i != len(cmd.Params)-1 {
			return fmt.Errorf("command %s: rest parameter %s must be last", cmd.QualifiedName(), p.Name)
		}
		if p.Name == "" {
			return fmt.Errorf("command %s: parameter %d has no name", cmd.QualifiedName(), i)
		}
	}
	return nil
}
