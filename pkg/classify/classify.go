// Package classify maps failures to the single chat message a user sees and
// decides whether the failure is re-raised to the supervisor.
//
// Rules are tried in a fixed order and the first match wins. Classification
// is pure: the same failure always yields the same result.
package classify

import (
	"fmt"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// Rule identifies which entry of the chain produced a result
type Rule int

const (
	RuleSuppressed Rule = iota + 1
	RulePermission
	RuleRateLimit
	RuleInput
	RuleContext
	RuleAuthorization
	RuleTransport
	RuleTable
	RuleInvocation
	RuleFallback
)

var ruleNames = map[Rule]string{
	RuleSuppressed:    "suppressed",
	RulePermission:    "permission",
	RuleRateLimit:     "ratelimit",
	RuleInput:         "input",
	RuleContext:       "context",
	RuleAuthorization: "authorization",
	RuleTransport:     "transport",
	RuleTable:         "table",
	RuleInvocation:    "invocation",
	RuleFallback:      "fallback",
}

func (r Rule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return "unknown"
}

// Rules returns the chain in priority order
func Rules() []Rule {
	return []Rule{
		RuleSuppressed, RulePermission, RuleRateLimit, RuleInput, RuleContext,
		RuleAuthorization, RuleTransport, RuleTable, RuleInvocation, RuleFallback,
	}
}

// LogLevel tells the caller how to log the failure
type LogLevel int

const (
	LogNone LogLevel = iota
	LogWarn
	LogError
)

// Result is the outcome of classifying one failure
type Result struct {
	Rule        Rule
	Title       string
	Description string
	Severity    errors.Severity

	// Silent results produce no message
	Silent bool
	Log    LogLevel

	// Failure is the failure that was classified, nil for foreign errors
	Failure *errors.Failure

	// Propagate is non-nil when the error must reach the supervisor
	Propagate error
}

type rule struct {
	id    Rule
	match func(err error, f *errors.Failure) (Result, bool)
}

var chain = []rule{
	{RuleSuppressed, suppressed},
	{RulePermission, permission},
	{RuleRateLimit, rateLimit},
	{RuleInput, input},
	{RuleContext, contextRestriction},
	{RuleAuthorization, authorization},
	{RuleTransport, transport},
	{RuleTable, table},
	{RuleInvocation, invocation},
}

// Classify runs err through the rule chain. It is total: every non-nil error
// produces a result, falling back to a generic unhandled message.
func Classify(err error) Result {
	if err == nil {
		return Result{Rule: RuleSuppressed, Silent: true, Severity: errors.SeverityNone}
	}

	f, ok := errors.As(err)
	if ok {
		for _, r := range chain {
			if res, matched := r.match(err, f); matched {
				res.Rule = r.id
				res.Failure = f
				return res
			}
		}
	}

	res := fallback(err)
	res.Failure = f
	return res
}

func warn(title, description string) Result {
	return Result{Title: title, Description: description, Severity: errors.SeverityWarning}
}

func suppressed(_ error, f *errors.Failure) (Result, bool) {
	if f.Context.Handled || (f.Context.Command != nil && f.Context.Command.HasErrorHandler) || f.Kind == errors.KindCommandNotFound {
		return Result{Silent: true, Severity: errors.SeverityNone}, true
	}
	return Result{}, false
}

func permission(_ error, f *errors.Failure) (Result, bool) {
	switch f.Kind {
	case errors.KindBotMissingPermissions:
		return warn(fmt.Sprintf("I need the **%s** permission(s) to run this command.", JoinMissing(HumanizePermissions(f.Context.MissingPermissions))), ""), true
	case errors.KindMissingPermissions:
		return warn(fmt.Sprintf("You need the **%s** permission(s) to use this command.", JoinMissing(HumanizePermissions(f.Context.MissingPermissions))), ""), true
	case errors.KindBotMissingRole:
		return warn(fmt.Sprintf("I need the **%s** role to run this command.", f.Context.MissingRole), ""), true
	case errors.KindMissingRole:
		return warn(fmt.Sprintf("You need the **%s** role to use this command.", f.Context.MissingRole), ""), true
	}
	return Result{}, false
}

func rateLimit(_ error, f *errors.Failure) (Result, bool) {
	switch f.Kind {
	case errors.KindCommandOnCooldown:
		return warn("Command on cooldown", fmt.Sprintf("The command `%s` is on cooldown %s You can retry in %s",
			commandName(f), ScopePhrase(f.Context.Bucket), FormatRetry(f.Context.RetryAfter))), true
	case errors.KindMaxConcurrencyReached:
		return warn("Command is busy", fmt.Sprintf("The command `%s` is already running as many times as allowed %s Try again once it finishes.",
			commandName(f), ScopePhrase(f.Context.Bucket))), true
	}
	return Result{}, false
}

func input(_ error, f *errors.Failure) (Result, bool) {
	switch f.Kind {
	case errors.KindUserInput, errors.KindMissingArgument, errors.KindBadArgument,
		errors.KindExpectedClosingQuote, errors.KindUnexpectedQuote:
		return warn("Invalid command syntax", SyntaxHelp(f.Context.Command, f.Message)), true
	}
	return Result{}, false
}

func contextRestriction(_ error, f *errors.Failure) (Result, bool) {
	name := commandName(f)
	switch f.Kind {
	case errors.KindPrivateMessageOnly:
		return warn("", fmt.Sprintf("❌ The command `%s` can be used only in private messages.", name)), true
	case errors.KindNoPrivateMessage:
		return warn("", fmt.Sprintf("❌ The command `%s` can not be used in private messages.", name)), true
	case errors.KindNSFWChannelRequired:
		return warn("Error", fmt.Sprintf("The command `%s` can only be ran in a NSFW channel.", name)), true
	case errors.KindDisabledCommand:
		return warn("Error", fmt.Sprintf("The command `%s` has been disabled.", name)), true
	}
	return Result{}, false
}

func authorization(_ error, f *errors.Failure) (Result, bool) {
	switch f.Kind {
	case errors.KindNotOwner:
		return warn("", "❌ This command is only for the bot owners."), true
	case errors.KindCheckFailure:
		return warn("", "❌ You don't have enough permission to run this command."), true
	}
	return Result{}, false
}

// bulkDeleteTooOld is the API error code for deleting messages older than
// two weeks
const bulkDeleteTooOld = 50034

func transport(_ error, f *errors.Failure) (Result, bool) {
	inner, ok := innerFailure(f)
	if !ok {
		return Result{}, false
	}

	switch inner.Kind {
	case errors.KindHTTP:
		if inner.Context.APICode == bulkDeleteTooOld {
			return warn("❌ You can only bulk delete messages that are under 14 days old", ""), true
		}
	case errors.KindCannotEmbedLinks:
		return warn("I need to be able to send embeds to show menus. Please give me permission to Embed Links.", ""), true
	case errors.KindCannotAddReactions:
		return warn("I need to be able to add reactions to show menus. Please give me permission to Add Reactions", ""), true
	case errors.KindCannotReadMessageHistory:
		return warn("I need to be able to read message history to show menus. Please give me permission to Read Message History", ""), true
	case errors.KindForbidden, errors.KindCannotSendMessages:
		res := warn(fmt.Sprintf("I am missing permissions for %s in %s.", qualifiedName(f), location(f)), "")
		res.Log = LogWarn
		return res, true
	}
	return Result{}, false
}

func table(_ error, f *errors.Failure) (Result, bool) {
	name := commandName(f)
	ext := f.Context.Extension

	var msg string
	switch f.Kind {
	case errors.KindInvalidEndOfQuotedString:
		msg = fmt.Sprintf("The quoted argument must be separated from the others with space in `%s`", name)
	case errors.KindExtensionNotFound:
		msg = fmt.Sprintf("The extension `%s` could not be found.", ext)
	case errors.KindExtensionAlreadyLoaded:
		msg = fmt.Sprintf("The extension `%s` is already loaded.", ext)
	case errors.KindExtensionNotLoaded:
		msg = fmt.Sprintf("The extension `%s` is not loaded.", ext)
	case errors.KindNoEntryPoint:
		msg = fmt.Sprintf("The extension `%s` has no setup function.", ext)
	case errors.KindDiscoveryFailed:
		msg = fmt.Sprintf("The extension `%s` could not be imported.", ext)
	default:
		return Result{}, false
	}
	return warn("Error", msg), true
}

func invocation(_ error, f *errors.Failure) (Result, bool) {
	if !isWrapper(f.Kind) {
		return Result{}, false
	}
	cause := f.Cause()
	if cause == nil {
		return Result{}, false
	}

	return Result{
		Title: "Unhandled Error",
		Description: fmt.Sprintf("An error has occurred which isn't properly handled.\n**Error log**\n```%s: %s```",
			errors.KindName(cause), errors.Message(cause)),
		Severity:  errors.SeverityError,
		Log:       LogError,
		Propagate: cause,
	}, true
}

func fallback(err error) Result {
	return Result{
		Rule:  RuleFallback,
		Title: "Unhandled exception",
		Description: fmt.Sprintf("An error has occurred which isn't properly handled.\n**Error**\n```%s: %s```",
			errors.KindName(err), errors.Message(err)),
		Severity:  errors.SeverityError,
		Log:       LogError,
		Propagate: err,
	}
}

func isWrapper(kind errors.Kind) bool {
	return kind == errors.KindCommandInvoke || kind == errors.KindExtensionFailed
}

// innerFailure unwraps exactly one invocation wrapper and returns the first
// failure found in its cause.
func innerFailure(f *errors.Failure) (*errors.Failure, bool) {
	if !isWrapper(f.Kind) || f.Cause() == nil {
		return nil, false
	}
	return errors.As(f.Cause())
}
