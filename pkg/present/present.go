// Package present renders bot output: classified failures, administrative
// reports and chat replies. Every function is pure; callers gather the data.
package present

import (
	"fmt"
	"strings"
	"time"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/classify"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
)

// MaxReplyLength caps chat replies
const MaxReplyLength = 1800

// maxMessageLength is the platform limit for message content
const maxMessageLength = 2000

// Error renders a classification result as a red embed
func Error(res classify.Result) gateway.Embed {
	return gateway.Embed{
		Title:       res.Title,
		Description: res.Description,
		Color:       gateway.ColorRed,
	}
}

// Success renders a green confirmation embed
func Success(description string) gateway.Embed {
	return gateway.Embed{Description: description, Color: gateway.ColorGreen}
}

// Info renders a blue informational embed
func Info(title, description string) gateway.Embed {
	return gateway.Embed{Title: title, Description: description, Color: gateway.ColorBlue}
}

// Exception renders an administrative failure with its detail in a code block
func Exception(err error) gateway.Embed {
	return Info("Exception", CodeBlock("", err.Error()))
}

// Uptime formats d as "D days, H hr, M mins, and S secs". The days part is
// omitted below one day.
func Uptime(d time.Duration) string {
	total := int(d / time.Second)
	hours, rem := total/3600, total%3600
	minutes, seconds := rem/60, rem%60
	days, hours := hours/24, hours%24

	if days > 0 {
		return fmt.Sprintf("%d days, %d hr, %d mins, and %d secs", days, hours, minutes, seconds)
	}
	return fmt.Sprintf("%d hr, %d mins, and %d secs", hours, minutes, seconds)
}

// CodeBlock fences text, truncating it to fit in one message
func CodeBlock(lang, text string) string {
	const fence = "```"
	budget := maxMessageLength - len(fence)*2 - len(lang) - 2
	text = truncate(text, budget)
	return fence + lang + "\n" + text + "\n" + fence
}

// EvalOutput renders captured output and the result of an evaluation
func EvalOutput(stdout, result string, err error) string {
	var sb strings.Builder
	sb.WriteString(stdout)
	switch {
	case err != nil:
		if stdout != "" && !strings.HasSuffix(stdout, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(err.Error())
	case result != "":
		sb.WriteString(result)
	}
	if sb.Len() == 0 {
		sb.WriteString("<no output>")
	}
	return CodeBlock("go", sb.String())
}

// inputStrip lists characters removed from chat input before it reaches the
// engine
var inputStrip = strings.NewReplacer(
	"/", "", "'", "", ".", "", `\`, "", "(", "", ")", "", `"`, "",
	"\n", "", "@", "", "<", "", ">", "",
)

// SanitizeInput strips markup and mention characters from a chat message
func SanitizeInput(text string) string {
	return inputStrip.Replace(text)
}

var outputStrip = strings.NewReplacer("://", "", "@", "")

// ChatReply formats an engine response for author. Links and mentions are
// defused and the result is capped at MaxReplyLength characters.
func ChatReply(author, response string) string {
	reply := fmt.Sprintf("`%s`: %s", author, outputStrip.Replace(response))
	return truncate(reply, MaxReplyLength)
}

// truncate cuts s to at most n runes
func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
