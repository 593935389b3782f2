package errors

import (
	"sort"
	"sync"
)

// Kind identifies a failure variant. The set is closed: classification
// matches on these values, never on Go types.
type Kind string

const (
	KindCommandNotFound Kind = "CommandNotFound"

	KindBotMissingPermissions Kind = "BotMissingPermissions"
	KindMissingPermissions    Kind = "MissingPermissions"
	KindBotMissingRole        Kind = "BotMissingRole"
	KindMissingRole           Kind = "MissingRole"

	KindCommandOnCooldown     Kind = "CommandOnCooldown"
	KindMaxConcurrencyReached Kind = "MaxConcurrencyReached"

	KindUserInput                Kind = "UserInputError"
	KindMissingArgument          Kind = "MissingRequiredArgument"
	KindBadArgument              Kind = "BadArgument"
	KindExpectedClosingQuote     Kind = "ExpectedClosingQuoteError"
	KindUnexpectedQuote          Kind = "UnexpectedQuoteError"
	KindInvalidEndOfQuotedString Kind = "InvalidEndOfQuotedStringError"

	KindNoPrivateMessage    Kind = "NoPrivateMessage"
	KindPrivateMessageOnly  Kind = "PrivateMessageOnly"
	KindNSFWChannelRequired Kind = "NSFWChannelRequired"
	KindDisabledCommand     Kind = "DisabledCommand"

	KindNotOwner     Kind = "NotOwner"
	KindCheckFailure Kind = "CheckFailure"

	KindHTTP                     Kind = "HTTPException"
	KindForbidden                Kind = "Forbidden"
	KindCannotEmbedLinks         Kind = "CannotEmbedLinks"
	KindCannotAddReactions       Kind = "CannotAddReactions"
	KindCannotReadMessageHistory Kind = "CannotReadMessageHistory"
	KindCannotSendMessages       Kind = "CannotSendMessages"

	KindCommandInvoke   Kind = "CommandInvokeError"
	KindExtensionFailed Kind = "ExtensionFailed"

	KindExtensionNotFound      Kind = "ExtensionNotFound"
	KindExtensionAlreadyLoaded Kind = "ExtensionAlreadyLoaded"
	KindExtensionNotLoaded     Kind = "ExtensionNotLoaded"
	KindNoEntryPoint           Kind = "NoEntryPointError"
	KindDiscoveryFailed        Kind = "DiscoveryFailed"

	KindUnknown Kind = "Exception"
)

// Category groups kinds the way the classifier reasons about them
type Category string

const (
	CategorySuppressed    Category = "suppressed"
	CategoryPermission    Category = "permission"
	CategoryRateLimit     Category = "ratelimit"
	CategoryInput         Category = "input"
	CategoryContext       Category = "context"
	CategoryAuthorization Category = "authorization"
	CategoryTransport     Category = "transport"
	CategoryInvocation    Category = "invocation"
	CategoryExtension     Category = "extension"
	CategoryGeneric       Category = "generic"
)

// BucketType is the scope a cooldown or concurrency limit applies to
type BucketType string

const (
	BucketDefault  BucketType = "default"
	BucketUser     BucketType = "user"
	BucketGuild    BucketType = "guild"
	BucketChannel  BucketType = "channel"
	BucketMember   BucketType = "member"
	BucketCategory BucketType = "category"
	BucketRole     BucketType = "role"
)

// KindDefinition defines a kind's properties
type KindDefinition struct {
	Kind     Kind     `json:"kind"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Help     string   `json:"help"`
}

var (
	kinds   = make(map[Kind]KindDefinition)
	kindsMu sync.RWMutex
)

var defaultKinds = []KindDefinition{
	{KindCommandNotFound, CategorySuppressed, SeverityNone, "command not found", "Unknown commands are ignored"},

	{KindBotMissingPermissions, CategoryPermission, SeverityWarning, "bot is missing permissions", "Grant the listed permissions to the bot role"},
	{KindMissingPermissions, CategoryPermission, SeverityWarning, "invoker is missing permissions", "The invoking member lacks the listed permissions"},
	{KindBotMissingRole, CategoryPermission, SeverityWarning, "bot is missing a role", "Assign the role to the bot"},
	{KindMissingRole, CategoryPermission, SeverityWarning, "invoker is missing a role", "The invoking member lacks the role"},

	{KindCommandOnCooldown, CategoryRateLimit, SeverityWarning, "command is on cooldown", "Retry after the remaining time"},
	{KindMaxConcurrencyReached, CategoryRateLimit, SeverityWarning, "command concurrency limit reached", "Retry once running invocations finish"},

	{KindUserInput, CategoryInput, SeverityWarning, "invalid command input", "Check the command syntax"},
	{KindMissingArgument, CategoryInput, SeverityWarning, "a required argument is missing", "Check the command syntax"},
	{KindBadArgument, CategoryInput, SeverityWarning, "an argument could not be converted", "Check the command syntax"},
	{KindExpectedClosingQuote, CategoryInput, SeverityWarning, "expected closing quote", "Close every quoted argument"},
	{KindUnexpectedQuote, CategoryInput, SeverityWarning, "unexpected quote mark", "Quotes may only open an argument"},
	{KindInvalidEndOfQuotedString, CategoryInput, SeverityWarning, "expected space after closing quote", "Separate quoted arguments with spaces"},

	{KindNoPrivateMessage, CategoryContext, SeverityWarning, "command cannot be used in private messages", "Use the command in a server"},
	{KindPrivateMessageOnly, CategoryContext, SeverityWarning, "command can only be used in private messages", "Use the command in a DM"},
	{KindNSFWChannelRequired, CategoryContext, SeverityWarning, "command requires an NSFW channel", "Use the command in an NSFW channel"},
	{KindDisabledCommand, CategoryContext, SeverityWarning, "command is disabled", "Ask an operator to enable it"},

	{KindNotOwner, CategoryAuthorization, SeverityWarning, "invoker is not a bot owner", "Owner-only command"},
	{KindCheckFailure, CategoryAuthorization, SeverityWarning, "a command check failed", "The invoker is not allowed to run this command"},

	{KindHTTP, CategoryTransport, SeverityError, "gateway request failed", "Inspect the HTTP status and API code"},
	{KindForbidden, CategoryTransport, SeverityWarning, "gateway request forbidden", "The bot lacks channel permissions"},
	{KindCannotEmbedLinks, CategoryTransport, SeverityWarning, "bot cannot embed links", "Grant Embed Links"},
	{KindCannotAddReactions, CategoryTransport, SeverityWarning, "bot cannot add reactions", "Grant Add Reactions"},
	{KindCannotReadMessageHistory, CategoryTransport, SeverityWarning, "bot cannot read message history", "Grant Read Message History"},
	{KindCannotSendMessages, CategoryTransport, SeverityWarning, "bot cannot send messages", "Grant Send Messages"},

	{KindCommandInvoke, CategoryInvocation, SeverityError, "command raised an error", "See the wrapped cause"},
	{KindExtensionFailed, CategoryInvocation, SeverityError, "extension setup failed", "See the wrapped cause"},

	{KindExtensionNotFound, CategoryExtension, SeverityWarning, "extension not found", "Check the name against the discovered extensions"},
	{KindExtensionAlreadyLoaded, CategoryExtension, SeverityWarning, "extension already loaded", "Unload or reload it instead"},
	{KindExtensionNotLoaded, CategoryExtension, SeverityWarning, "extension not loaded", "Load it first"},
	{KindNoEntryPoint, CategoryExtension, SeverityWarning, "extension has no setup entry point", "Export a Setup function"},
	{KindDiscoveryFailed, CategoryExtension, SeverityError, "extension import failed during discovery", "See the wrapped cause"},

	{KindUnknown, CategoryGeneric, SeverityError, "unhandled error", "No additional help available"},
}

func init() {
	for _, def := range defaultKinds {
		kinds[def.Kind] = def
	}
}

// Register adds or replaces a kind definition
func Register(def KindDefinition) {
	kindsMu.Lock()
	defer kindsMu.Unlock()
	kinds[def.Kind] = def
}

// Lookup retrieves a kind definition. Unknown kinds resolve to a generic
// definition so construction never fails.
func Lookup(kind Kind) KindDefinition {
	kindsMu.RLock()
	defer kindsMu.RUnlock()

	if def, ok := kinds[kind]; ok {
		return def
	}
	return KindDefinition{
		Kind:     kind,
		Category: CategoryGeneric,
		Severity: SeverityError,
		Message:  "unknown error",
		Help:     "No additional help available",
	}
}

// AllKinds returns every registered kind, sorted
func AllKinds() []KindDefinition {
	kindsMu.RLock()
	defer kindsMu.RUnlock()

	result := make([]KindDefinition, 0, len(kinds))
	for _, def := range kinds {
		result = append(result, def)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

// KindsByCategory returns every kind in a category
func KindsByCategory(category Category) []KindDefinition {
	var result []KindDefinition
	for _, def := range AllKinds() {
		if def.Category == category {
			result = append(result, def)
		}
	}
	return result
}
