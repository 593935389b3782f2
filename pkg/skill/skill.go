// Package skill adapts a conversational engine to batch requests with
// per-conversation state and a two-tier confidence.
package skill

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Defaults used by DefaultConfig
const (
	DefaultPositiveConfidence = 0.7
	DefaultNullConfidence     = 0.3
	DefaultNullResponse       = "I don't know what to answer you"
)

// Engine answers text within a session. *aiml.Kernel satisfies it.
type Engine interface {
	Respond(input, sessionID string) string
}

// State is the per-conversation state a caller persists between calls
type State struct {
	SessionID string            `json:"user_id"`
	Values    map[string]string `json:"values,omitempty"`
}

// Config tunes the adapter
type Config struct {
	PositiveConfidence float64
	NullConfidence     float64
	NullResponse       string
	// NewID generates session ids; defaults to time based UUIDs in hex.
	NewID func() string
}

// DefaultConfig returns the stock confidences and null response
func DefaultConfig() Config {
	return Config{
		PositiveConfidence: DefaultPositiveConfidence,
		NullConfidence:     DefaultNullConfidence,
		NullResponse:       DefaultNullResponse,
	}
}

// Skill answers batches of utterances through an Engine
type Skill struct {
	engine Engine
	cfg    Config
}

// New creates a Skill. Confidences are used as given, zero included; an
// empty null response takes DefaultNullResponse since it could not be sent.
func New(engine Engine, cfg Config) *Skill {
	if cfg.NullResponse == "" {
		cfg.NullResponse = DefaultNullResponse
	}
	if cfg.NewID == nil {
		cfg.NewID = newSessionID
	}
	return &Skill{engine: engine, cfg: cfg}
}

func newSessionID() string {
	id, err := uuid.NewUUID()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}

// Result is the answer to one utterance
type Result struct {
	Response   string
	Confidence float64
	State      State

	// Null is set when the engine had no answer and the null response was used
	Null bool
}

// Step answers one utterance. A state without a session id gets a fresh one.
func (s *Skill) Step(utterance string, state State) Result {
	if state.SessionID == "" {
		state.SessionID = s.cfg.NewID()
	}

	response := s.engine.Respond(utterance, state.SessionID)
	if response == "" {
		return Result{Response: s.cfg.NullResponse, Confidence: s.cfg.NullConfidence, State: state, Null: true}
	}
	return Result{Response: response, Confidence: s.cfg.PositiveConfidence, State: state}
}

// Respond answers a batch. states may be nil; otherwise it must match
// utterances in length. Items are answered in order, so callers sharing a
// session id across concurrent batches must serialise them.
func (s *Skill) Respond(utterances []string, states []State) ([]string, []float64, []State, error) {
	if states != nil && len(states) != len(utterances) {
		return nil, nil, nil, fmt.Errorf("got %d states for %d utterances", len(states), len(utterances))
	}

	responses := make([]string, len(utterances))
	confidences := make([]float64, len(utterances))
	out := make([]State, len(utterances))
	for i, u := range utterances {
		var st State
		if states != nil {
			st = states[i]
		}
		res := s.Step(u, st)
		responses[i], confidences[i], out[i] = res.Response, res.Confidence, res.State
	}
	return responses, confidences, out, nil
}
