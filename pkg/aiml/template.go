package aiml

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// node is a parsed element or, when name is empty, a run of character data
type node struct {
	name     string
	attrs    map[string]string
	children []*node
	text     string
}

func (n *node) attr(name string) string {
	return n.attrs[name]
}

// textContent flattens n to its character data
func (n *node) textContent() string {
	if n.name == "" {
		return n.text
	}
	var sb strings.Builder
	for _, c := range n.children {
		sb.WriteString(c.textContent())
	}
	return sb.String()
}

// child returns the first direct child element called name
func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// parseDocument reads an XML document into a node tree rooted at its
// document element.
func parseDocument(r io.Reader) (*node, error) {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charsetReader
	dec.Entity = xml.HTMLEntity

	var stack []*node
	var root *node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &node{name: strings.ToLower(t.Name.Local), attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[strings.ToLower(a.Name.Local)] = a.Value
			}
			if len(stack) == 0 {
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, &node{text: string(t)})
		}
	}

	if root == nil {
		return nil, fmt.Errorf("empty document")
	}
	return root, nil
}

// charsetReader accepts the Latin-1 declarations common in older scripts
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	switch strings.ToLower(label) {
	case "iso-8859-1", "latin1", "latin-1", "windows-1252":
		return latin1Reader(input), nil
	case "us-ascii", "ascii":
		return input, nil
	}
	return nil, fmt.Errorf("unsupported charset %q", label)
}

func latin1Reader(r io.Reader) io.Reader {
	return &latin1{r: bufio.NewReader(r)}
}

// latin1 transcodes single byte Latin-1 input to UTF-8
type latin1 struct {
	r       *bufio.Reader
	pending []byte
}

func (l *latin1) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(l.pending) > 0 {
			c := copy(p[n:], l.pending)
			l.pending = l.pending[c:]
			n += c
			continue
		}
		b, err := l.r.ReadByte()
		if err != nil {
			if n > 0 {
				return n, nil
			}
			return 0, err
		}
		if b < utf8.RuneSelf {
			p[n] = b
			n++
			continue
		}
		l.pending = utf8.AppendRune(l.pending[:0], rune(b))
	}
	return n, nil
}

// evaluator renders one template within a single Respond call
type evaluator struct {
	k       *Kernel
	session *session
	match   *match
	depth   int
}

func (e *evaluator) render(n *node) string {
	var sb strings.Builder
	for _, c := range n.children {
		sb.WriteString(e.eval(c))
	}
	return sb.String()
}

func (e *evaluator) eval(n *node) string {
	switch n.name {
	case "":
		return n.text
	case "star":
		return e.match.star(sectionInput, index(n))
	case "thatstar":
		return e.match.star(sectionThat, index(n))
	case "topicstar":
		return e.match.star(sectionTopic, index(n))
	case "srai":
		return e.k.respondSentence(e.render(n), e.session, e.depth+1)
	case "sr":
		return e.k.respondSentence(e.match.star(sectionInput, 1), e.session, e.depth+1)
	case "random":
		items := listItems(n)
		if len(items) == 0 {
			return ""
		}
		return e.render(items[e.k.rand(len(items))])
	case "condition":
		return e.condition(n)
	case "get":
		return e.session.predicates[n.attr("name")]
	case "bot":
		return e.k.bot[n.attr("name")]
	case "set":
		value := strings.TrimSpace(e.render(n))
		e.session.predicates[n.attr("name")] = value
		return value
	case "think":
		e.render(n)
		return ""
	case "uppercase":
		return strings.ToUpper(e.render(n))
	case "lowercase":
		return strings.ToLower(e.render(n))
	case "formal":
		return formal(e.render(n))
	case "sentence":
		return sentenceCase(e.render(n))
	case "input":
		return e.session.input(index(n))
	case "that":
		return e.session.that(index(n))
	case "id":
		return e.session.id
	case "size":
		return strconv.Itoa(e.k.size)
	case "version":
		return Version
	case "date":
		return e.k.now().Format("Monday, January 2, 2006")
	case "li":
		// only meaningful inside random or condition
		return ""
	}
	return e.render(n)
}

// condition supports the three AIML forms: a single name/value block, a
// named list and a list whose items carry their own name.
func (e *evaluator) condition(n *node) string {
	name, value := n.attr("name"), n.attr("value")
	if _, ok := n.attrs["value"]; ok && name != "" {
		if predicateMatches(e.session.predicates[name], value) {
			return e.render(n)
		}
		return ""
	}

	for _, li := range listItems(n) {
		liName := li.attr("name")
		if liName == "" {
			liName = name
		}
		liValue, hasValue := li.attrs["value"]
		if !hasValue {
			return e.render(li)
		}
		if predicateMatches(e.session.predicates[liName], liValue) {
			return e.render(li)
		}
	}
	return ""
}

func predicateMatches(actual, want string) bool {
	if want == "*" {
		return actual != ""
	}
	return strings.EqualFold(strings.TrimSpace(actual), strings.TrimSpace(want))
}

func listItems(n *node) []*node {
	var items []*node
	for _, c := range n.children {
		if c.name == "li" {
			items = append(items, c)
		}
	}
	return items
}

func index(n *node) int {
	raw := n.attr("index")
	if raw == "" {
		return 1
	}
	// "2,1" style indexes select the sentence; only the first number is used
	if i := strings.IndexByte(raw, ','); i >= 0 {
		raw = raw[:i]
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 1 {
		return 1
	}
	return v
}

func formal(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

func sentenceCase(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}
