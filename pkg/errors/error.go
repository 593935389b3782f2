// Package errors provides the structured failure type that flows from command
// dispatch and extension management into the error classifier.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Severity levels for failures
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// MaxCauseDepth bounds every walk over a cause chain.
const MaxCauseDepth = 32

// CommandRef describes the command a failure was raised from.
type CommandRef struct {
	Name          string   `json:"name"`
	QualifiedName string   `json:"qualified_name"`
	Parent        string   `json:"parent,omitempty"`
	Signature     string   `json:"signature,omitempty"`
	Aliases       []string `json:"aliases,omitempty"`
	Help          string   `json:"help,omitempty"`

	// HasErrorHandler is set when the command handles its own failures.
	HasErrorHandler bool `json:"has_error_handler,omitempty"`
}

// String returns the qualified command name
func (c *CommandRef) String() string {
	if c == nil {
		return ""
	}
	if c.QualifiedName != "" {
		return c.QualifiedName
	}
	return c.Name
}

// Context is the attribute bag inspected by classification rules
type Context struct {
	Command            *CommandRef   `json:"command,omitempty"`
	MissingPermissions []string      `json:"missing_permissions,omitempty"`
	MissingRole        string        `json:"missing_role,omitempty"`
	Bucket             BucketType    `json:"bucket,omitempty"`
	RetryAfter         time.Duration `json:"retry_after,omitempty"`
	HTTPStatus         int           `json:"http_status,omitempty"`
	APICode            int           `json:"api_code,omitempty"`
	Extension          string        `json:"extension,omitempty"`
	ChannelName        string        `json:"channel_name,omitempty"`
	GuildName          string        `json:"guild_name,omitempty"`

	// Handled marks a failure that a per-command override already dealt with.
	Handled bool `json:"handled,omitempty"`
}

// Failure is a structured description of an error raised anywhere in the bot
type Failure struct {
	Kind     Kind     `json:"kind"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	TraceID  string   `json:"trace_id"`

	Context   Context   `json:"context"`
	Timestamp time.Time `json:"timestamp"`

	cause error
}

// Error implements the error interface
func (f *Failure) Error() string {
	if f.cause != nil && f.Message != f.cause.Error() {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Unwrap returns the underlying cause
func (f *Failure) Unwrap() error {
	return f.cause
}

// Cause returns the underlying cause, or nil
func (f *Failure) Cause() error {
	return f.cause
}

// Is reports kind equality so that errors.Is works against kind sentinels.
func (f *Failure) Is(target error) bool {
	t, ok := target.(*Failure)
	if !ok {
		return false
	}
	return t.TraceID == "" && t.Kind == f.Kind
}

// FormatJSON returns the failure as indented JSON
func (f *Failure) FormatJSON() (string, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Builder constructs Failure instances with a fluent API
type Builder struct {
	f *Failure
}

func generateTraceID() string {
	return "tr_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// NewBuilder creates a builder pre-filled from the kind definition
func NewBuilder(kind Kind) *Builder {
	def := Lookup(kind)
	return &Builder{
		f: &Failure{
			Kind:      kind,
			Category:  def.Category,
			Severity:  def.Severity,
			Message:   def.Message,
			TraceID:   generateTraceID(),
			Timestamp: time.Now(),
		},
	}
}

// Wrap attaches a cause
func (b *Builder) Wrap(cause error) *Builder {
	b.f.cause = cause
	if cause != nil && b.f.Message == Lookup(b.f.Kind).Message {
		b.f.Message = cause.Error()
	}
	return b
}

// WithMessage sets a custom message
func (b *Builder) WithMessage(msg string) *Builder {
	b.f.Message = msg
	return b
}

// WithMessagef sets a formatted message
func (b *Builder) WithMessagef(format string, args ...any) *Builder {
	b.f.Message = fmt.Sprintf(format, args...)
	return b
}

// WithSeverity overrides the default severity
func (b *Builder) WithSeverity(sev Severity) *Builder {
	b.f.Severity = sev
	return b
}

// WithCommand attaches the command descriptor
func (b *Builder) WithCommand(cmd *CommandRef) *Builder {
	b.f.Context.Command = cmd
	return b
}

// WithMissingPermissions records the missing permission names
func (b *Builder) WithMissingPermissions(perms ...string) *Builder {
	b.f.Context.MissingPermissions = append(b.f.Context.MissingPermissions, perms...)
	return b
}

// WithMissingRole records the missing role
func (b *Builder) WithMissingRole(role string) *Builder {
	b.f.Context.MissingRole = role
	return b
}

// WithCooldown records the cooldown bucket and remaining time
func (b *Builder) WithCooldown(bucket BucketType, retryAfter time.Duration) *Builder {
	b.f.Context.Bucket = bucket
	b.f.Context.RetryAfter = retryAfter
	return b
}

// WithHTTP records the transport status and API error code
func (b *Builder) WithHTTP(status, apiCode int) *Builder {
	b.f.Context.HTTPStatus = status
	b.f.Context.APICode = apiCode
	return b
}

// WithExtension records the extension identifier
func (b *Builder) WithExtension(id string) *Builder {
	b.f.Context.Extension = id
	return b
}

// WithLocation records channel and guild names
func (b *Builder) WithLocation(channel, guild string) *Builder {
	b.f.Context.ChannelName = channel
	b.f.Context.GuildName = guild
	return b
}

// Build returns the failure
func (b *Builder) Build() *Failure {
	return b.f
}

// New creates a failure with a kind and message
func New(kind Kind, message string) *Failure {
	return NewBuilder(kind).WithMessage(message).Build()
}

// Newf creates a failure with a formatted message
func Newf(kind Kind, format string, args ...any) *Failure {
	return NewBuilder(kind).WithMessagef(format, args...).Build()
}

// Wrap wraps cause with kind
func Wrap(kind Kind, cause error) *Failure {
	return NewBuilder(kind).Wrap(cause).Build()
}

// Sentinel returns a kind-only value usable as an errors.Is target.
func Sentinel(kind Kind) error {
	return &Failure{Kind: kind}
}

// As returns the outermost Failure in err's chain.
func As(err error) (*Failure, bool) {
	for _, e := range Chain(err) {
		if f, ok := e.(*Failure); ok {
			return f, true
		}
	}
	return nil, false
}

// IsKind reports whether any Failure in err's chain has the given kind
func IsKind(err error, kind Kind) bool {
	for _, e := range Chain(err) {
		if f, ok := e.(*Failure); ok && f.Kind == kind {
			return true
		}
	}
	return false
}

// Chain flattens the single-cause chain of err, outermost first. The walk stops
// after MaxCauseDepth links.
func Chain(err error) []error {
	var chain []error
	for err != nil && len(chain) < MaxCauseDepth {
		chain = append(chain, err)
		err = stderrors.Unwrap(err)
	}
	return chain
}

// KindName names err for display: the Failure kind, or the Go type of a
// foreign error.
func KindName(err error) string {
	if err == nil {
		return ""
	}
	if f, ok := err.(*Failure); ok {
		return string(f.Kind)
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.String()
}

// Message returns the human message of err without the kind prefix
func Message(err error) string {
	if err == nil {
		return ""
	}
	if f, ok := err.(*Failure); ok {
		return f.Message
	}
	return err.Error()
}

// PanicError carries a recovered panic value
type PanicError struct {
	Value any
	Stack string
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", p.Value)
}
