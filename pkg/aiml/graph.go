package aiml

import (
	"strings"
	"unicode"
)

// Section markers joining the input, that and topic parts of a match path.
// Normalisation can never produce them from user text.
const (
	markerThat  = "<THAT>"
	markerTopic = "<TOPIC>"
	emptyWord   = "<NONE>"
)

const (
	sectionInput = iota
	sectionThat
	sectionTopic
)

// graphNode is one word of the pattern trie
type graphNode struct {
	children   map[string]*graphNode
	underscore *graphNode
	star       *graphNode
	template   *node
}

func newGraphNode() *graphNode {
	return &graphNode{children: make(map[string]*graphNode)}
}

// capture is one wildcard binding
type capture struct {
	section int
	text    string
}

// match holds the bindings of a successful lookup
type match struct {
	template *node
	captures []capture
}

// star returns the index'th (1-based) binding of section, or "" when absent
func (m *match) star(section, index int) string {
	n := 0
	for _, c := range m.captures {
		if c.section != section {
			continue
		}
		n++
		if n == index {
			return c.text
		}
	}
	return ""
}

// add inserts path and returns true when it replaced an existing template
func (g *graphNode) add(path []string, tmpl *node) bool {
	cur := g
	for _, word := range path {
		var next **graphNode
		switch word {
		case "_":
			next = &cur.underscore
		case "*":
			next = &cur.star
		default:
			child, ok := cur.children[word]
			if !ok {
				child = newGraphNode()
				cur.children[word] = child
			}
			cur = child
			continue
		}
		if *next == nil {
			*next = newGraphNode()
		}
		cur = *next
	}
	replaced := cur.template != nil
	cur.template = tmpl
	return replaced
}

// match walks the trie with AIML priority: "_" first, then exact words, then
// "*". Wildcards bind one or more words and never cross a section marker.
func (g *graphNode) match(words []string, section int, captures []capture) (*match, bool) {
	if len(words) == 0 {
		if g.template == nil {
			return nil, false
		}
		return &match{template: g.template, captures: captures}, true
	}

	if g.underscore != nil {
		if m, ok := g.underscore.matchWildcard(words, section, captures); ok {
			return m, true
		}
	}

	if child, ok := g.children[strings.ToUpper(words[0])]; ok {
		next := section
		switch words[0] {
		case markerThat:
			next = sectionThat
		case markerTopic:
			next = sectionTopic
		}
		if m, ok := child.match(words[1:], next, captures); ok {
			return m, true
		}
	}

	if g.star != nil {
		if m, ok := g.star.matchWildcard(words, section, captures); ok {
			return m, true
		}
	}
	return nil, false
}

func (g *graphNode) matchWildcard(words []string, section int, captures []capture) (*match, bool) {
	for i := 1; i <= len(words); i++ {
		if isMarker(words[i-1]) {
			break
		}
		bound := strings.Join(words[:i], " ")
		if bound == emptyWord {
			bound = ""
		}
		next := append(captures[:len(captures):len(captures)], capture{section: section, text: bound})
		if m, ok := g.match(words[i:], section, next); ok {
			return m, true
		}
	}
	return nil, false
}

func isMarker(word string) bool {
	return word == markerThat || word == markerTopic
}

// normalize reduces text to words of letters and digits. Case is kept so
// wildcard bindings echo the user's spelling; lookups compare in upper case.
func normalize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// patternWords splits a stored pattern, keeping wildcards
func patternWords(pattern string) []string {
	var out []string
	for _, field := range strings.Fields(strings.ToUpper(pattern)) {
		if field == "*" || field == "_" {
			out = append(out, field)
			continue
		}
		out = append(out, normalize(field)...)
	}
	return out
}

// path joins the three sections. An empty section becomes a single
// placeholder so wildcards can still bind it.
func path(input, that, topic []string) []string {
	out := make([]string, 0, len(input)+len(that)+len(topic)+4)
	out = append(out, orEmpty(input)...)
	out = append(out, markerThat)
	out = append(out, orEmpty(that)...)
	out = append(out, markerTopic)
	return append(out, orEmpty(topic)...)
}

func orEmpty(words []string) []string {
	if len(words) == 0 {
		return []string{emptyWord}
	}
	return words
}

// sentences splits input on terminal punctuation
func sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';'
	})
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
