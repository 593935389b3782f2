// Package aiml is a pattern/template conversational engine reading AIML
// scripts. It covers the subset of AIML 1.0 used by chatter bots: wildcard
// patterns with that/topic context, recursive reduction, random answers,
// conditions and per-session predicates.
package aiml

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

// Version is reported by the <version/> tag
const Version = "chatter-aiml 1.0"

// DefaultMaxRecursion bounds srai chains
const DefaultMaxRecursion = 32

// historyLength is the number of inputs and responses kept per session
const historyLength = 10

// Config configures a Kernel
type Config struct {
	// Bot holds bot predicates read by <bot name="..."/>
	Bot          map[string]string
	MaxRecursion int
	Logger       *logger.Logger
	// Rand returns an int in [0, n). Defaults to math/rand/v2.
	Rand func(n int) int
	Now  func() time.Time
}

// Kernel holds the learned categories and the conversation sessions. It is
// safe for concurrent use; responses are computed one at a time.
type Kernel struct {
	mu       sync.Mutex
	root     *graphNode
	size     int
	sessions map[string]*session

	bot          map[string]string
	maxRecursion int
	log          *logger.Logger
	rand         func(int) int
	now          func() time.Time
}

type session struct {
	id         string
	predicates map[string]string
	inputs     []string
	outputs    []string
}

func newSession(id string) *session {
	return &session{id: id, predicates: make(map[string]string)}
}

func (s *session) input(i int) string { return nth(s.inputs, i) }

func (s *session) that(i int) string { return nth(s.outputs, i) }

func (s *session) topic() []string { return normalize(s.predicates["topic"]) }

// lastOutput is the final sentence of the previous response, the <that>
// context for the next match
func (s *session) lastOutput() []string {
	last := s.that(1)
	parts := sentences(last)
	if len(parts) == 0 {
		return nil
	}
	return normalize(parts[len(parts)-1])
}

// nth returns the i'th most recent entry (1-based)
func nth(history []string, i int) string {
	if i < 1 || i > len(history) {
		return ""
	}
	return history[len(history)-i]
}

func push(history []string, v string) []string {
	history = append(history, v)
	if len(history) > historyLength {
		history = history[len(history)-historyLength:]
	}
	return history
}

// NewKernel creates an empty kernel
func NewKernel(cfg Config) *Kernel {
	if cfg.MaxRecursion <= 0 {
		cfg.MaxRecursion = DefaultMaxRecursion
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithComponent("aiml")
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.IntN
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	bot := make(map[string]string, len(cfg.Bot))
	for k, v := range cfg.Bot {
		bot[strings.ToLower(k)] = v
	}

	return &Kernel{
		root:         newGraphNode(),
		sessions:     make(map[string]*session),
		bot:          bot,
		maxRecursion: cfg.MaxRecursion,
		log:          cfg.Logger,
		rand:         cfg.Rand,
		now:          cfg.Now,
	}
}

// Learn loads the categories of one AIML file and returns how many were
// added.
func (k *Kernel) Learn(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open aiml file: %w", err)
	}
	defer f.Close()

	n, err := k.LearnReader(f)
	if err != nil {
		return n, fmt.Errorf("failed to learn %s: %w", path, err)
	}
	return n, nil
}

// LearnReader loads the categories of one AIML document
func (k *Kernel) LearnReader(r io.Reader) (int, error) {
	doc, err := parseDocument(r)
	if err != nil {
		return 0, err
	}
	if doc.name != "aiml" {
		return 0, fmt.Errorf("document element is <%s>, want <aiml>", doc.name)
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	learned := 0
	for _, c := range doc.children {
		switch c.name {
		case "category":
			if k.addCategory(c, "*") {
				learned++
			}
		case "topic":
			topic := c.attr("name")
			if topic == "" {
				topic = "*"
			}
			for _, cat := range c.children {
				if cat.name == "category" && k.addCategory(cat, topic) {
					learned++
				}
			}
		}
	}
	return learned, nil
}

// addCategory stores one category; a repeated pattern replaces the earlier
// template.
func (k *Kernel) addCategory(c *node, topic string) bool {
	pattern, tmpl := c.child("pattern"), c.child("template")
	if pattern == nil || tmpl == nil {
		return false
	}

	that := "*"
	if t := c.child("that"); t != nil {
		that = k.patternText(t)
	}

	words := patternWords(k.patternText(pattern))
	if len(words) == 0 {
		return false
	}

	p := append(words, markerThat)
	p = append(p, orWildcard(patternWords(that))...)
	p = append(p, markerTopic)
	p = append(p, orWildcard(patternWords(topic))...)

	if !k.root.add(p, tmpl) {
		k.size++
	}
	return true
}

func orWildcard(words []string) []string {
	if len(words) == 0 {
		return []string{"*"}
	}
	return words
}

// patternText flattens a pattern, substituting bot predicates
func (k *Kernel) patternText(n *node) string {
	var sb strings.Builder
	for _, c := range n.children {
		switch c.name {
		case "":
			sb.WriteString(c.text)
		case "bot":
			sb.WriteString(" " + k.bot[c.attr("name")] + " ")
		default:
			sb.WriteString(k.patternText(c))
		}
	}
	return sb.String()
}

// LearnDir learns every .aiml and .xml file below dir in lexical order and
// returns the number of files learned. A directory without scripts is not
// an error; failing files are skipped and reported together.
func (k *Kernel) LearnDir(dir string) (int, error) {
	ctx := context.Background()
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".aiml", ".xml":
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan aiml directory: %w", err)
	}

	if len(files) == 0 {
		k.log.WarnContext(ctx, "no .aiml or .xml files found", "directory", dir)
		return 0, nil
	}

	var errs error
	learned := 0
	for _, f := range files {
		n, err := k.Learn(f)
		if err != nil {
			k.log.ErrorEvent(ctx, "aiml file skipped", err, slog.String("file", f))
			errs = multierr.Append(errs, err)
			continue
		}
		learned++
		k.log.DebugContext(ctx, "aiml file learned", "file", f, "categories", n)
	}

	k.log.InfoContext(ctx, "aiml kernel loaded", "files", learned, "categories", k.NumCategories())
	return learned, errs
}

// NumCategories returns the number of distinct categories learned
func (k *Kernel) NumCategories() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.size
}

// ResetBrain forgets every category and session
func (k *Kernel) ResetBrain() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.root = newGraphNode()
	k.size = 0
	k.sessions = make(map[string]*session)
}

// Predicate returns a session predicate
func (k *Kernel) Predicate(name, sessionID string) string {
	k.mu.Lock()
	defer k.mu.Unlock()
	if s, ok := k.sessions[sessionID]; ok {
		return s.predicates[name]
	}
	return ""
}

// SetPredicate sets a session predicate, creating the session if needed
func (k *Kernel) SetPredicate(name, value, sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.session(sessionID).predicates[name] = value
}

// DeleteSession drops the state kept for sessionID
func (k *Kernel) DeleteSession(sessionID string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.sessions, sessionID)
}

func (k *Kernel) session(id string) *session {
	s, ok := k.sessions[id]
	if !ok {
		s = newSession(id)
		k.sessions[id] = s
	}
	return s
}

// Respond answers input within sessionID. Each sentence is answered on its
// own and the answers are joined. An input nothing matches yields "".
func (k *Kernel) Respond(input, sessionID string) string {
	k.mu.Lock()
	defer k.mu.Unlock()

	s := k.session(sessionID)
	var answers []string
	for _, sentence := range sentences(input) {
		s.inputs = push(s.inputs, sentence)
		answer := k.respondSentence(sentence, s, 0)
		if answer != "" {
			answers = append(answers, answer)
		}
		s.outputs = push(s.outputs, answer)
	}
	return strings.Join(answers, " ")
}

// respondSentence matches one sentence; k.mu must be held
func (k *Kernel) respondSentence(sentence string, s *session, depth int) string {
	if depth > k.maxRecursion {
		k.log.Warn("aiml recursion limit reached", "session", s.id, "input", sentence)
		return ""
	}

	words := normalize(sentence)
	if len(words) == 0 {
		return ""
	}

	m, ok := k.root.match(path(words, s.lastOutput(), s.topic()), sectionInput, nil)
	if !ok {
		return ""
	}

	e := &evaluator{k: k, session: s, match: m, depth: depth}
	return collapse(e.render(m.template))
}

// collapse normalises template whitespace
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
