package classify

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
)

// JoinMissing joins capability names: more than two items become
// "A, B, and C", two or fewer are joined with " and ".
func JoinMissing(items []string) string {
	if len(items) > 2 {
		return strings.Join(items[:len(items)-1], ", ") + ", and " + items[len(items)-1]
	}
	return strings.Join(items, " and ")
}

// HumanizePermissions turns API permission names into display names:
// "ban_members" becomes "Ban Members", "manage_guild" becomes "Manage Server".
func HumanizePermissions(perms []string) []string {
	out := make([]string, len(perms))
	for i, p := range perms {
		p = strings.ReplaceAll(p, "_", " ")
		p = strings.ReplaceAll(p, "guild", "server")
		out[i] = titleCase(p)
	}
	return out
}

func titleCase(s string) string {
	var sb strings.Builder
	upper := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if upper {
				sb.WriteRune(unicode.ToUpper(r))
			} else {
				sb.WriteRune(unicode.ToLower(r))
			}
			upper = false
			continue
		}
		upper = true
		sb.WriteRune(r)
	}
	return sb.String()
}

var scopePhrases = map[errors.BucketType]string{
	errors.BucketDefault:  "for the whole bot.",
	errors.BucketUser:     "for you.",
	errors.BucketGuild:    "for this server.",
	errors.BucketChannel:  "for this channel.",
	errors.BucketMember:   "for you in this server.",
	errors.BucketCategory: "for this channel category.",
	errors.BucketRole:     "for your role.",
}

// ScopePhrase returns the human phrase for a bucket. An unset bucket is the
// global one.
func ScopePhrase(bucket errors.BucketType) string {
	if phrase, ok := scopePhrases[bucket]; ok {
		return phrase
	}
	return scopePhrases[errors.BucketDefault]
}

// FormatRetry renders a wait in seconds with at most two decimals
func FormatRetry(d time.Duration) string {
	secs := math.Round(d.Seconds()*100) / 100
	return strconv.FormatFloat(secs, 'f', -1, 64)
}

// SyntaxHelp renders the invalid-syntax body for a command
func SyntaxHelp(cmd *errors.CommandRef, reason string) string {
	name, help, signature := "", "", ""
	var aliases []string
	if cmd != nil {
		name = displayName(cmd)
		help = cmd.Help
		signature = cmd.Signature
		for _, alias := range cmd.Aliases {
			if cmd.Parent != "" {
				alias = cmd.Parent + " " + alias
			}
			aliases = append(aliases, "`"+alias+"`")
		}
	}
	if help == "" {
		help = "No description provided."
	}
	sort.Strings(aliases)

	aliasList := strings.Join(aliases, ", ")
	if aliasList == "" {
		aliasList = "None"
	}

	var sb strings.Builder
	sb.WriteString("The command syntax you used is incorrect.\n")
	sb.WriteString("**`" + reason + "`**\n")
	sb.WriteString("**Command Description**\n")
	sb.WriteString(help + "\n")
	sb.WriteString("**Command syntax**\n")
	sb.WriteString("```" + strings.TrimSpace(name+" "+signature) + "```\n")
	sb.WriteString("Aliases: " + aliasList)
	return sb.String()
}

func displayName(cmd *errors.CommandRef) string {
	if cmd.Parent != "" {
		return cmd.Parent + " " + cmd.Name
	}
	if cmd.QualifiedName != "" {
		return cmd.QualifiedName
	}
	return cmd.Name
}

func commandName(f *errors.Failure) string {
	if f.Context.Command == nil {
		return ""
	}
	return f.Context.Command.String()
}

func qualifiedName(f *errors.Failure) string {
	if f.Context.Command == nil {
		return "this command"
	}
	return displayName(f.Context.Command)
}

func location(f *errors.Failure) string {
	switch {
	case f.Context.ChannelName != "" && f.Context.GuildName != "":
		return "#" + f.Context.ChannelName + " in " + f.Context.GuildName
	case f.Context.ChannelName != "":
		return "#" + f.Context.ChannelName
	default:
		return "this channel"
	}
}
