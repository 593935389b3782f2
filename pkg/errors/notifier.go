package errors

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// AlertSender posts an alert message to a channel
type AlertSender interface {
	SendAlert(ctx context.Context, channelID, content string) error
}

// maxAlertLength is the message size limit of the chat platform
const maxAlertLength = 2000

// Notifier formats supervised failures into operator alerts
type Notifier struct {
	resolver *AlertResolver
	sender   AlertSender
}

// NewNotifier creates a notifier. A nil sender disables alerts.
func NewNotifier(resolver *AlertResolver, sender AlertSender) *Notifier {
	return &Notifier{resolver: resolver, sender: sender}
}

// Enabled reports whether alerts can be delivered
func (n *Notifier) Enabled() bool {
	return n != nil && n.sender != nil && n.resolver != nil
}

// Notify posts an alert for f
func (n *Notifier) Notify(ctx context.Context, f *Failure, origin Origin, repeats int, trail []Breadcrumb) error {
	if !n.Enabled() {
		return nil
	}

	target, err := n.resolver.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve alert target: %w", err)
	}

	if err := n.sender.SendAlert(ctx, target.ChannelID, FormatAlert(f, origin, repeats, trail)); err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	return nil
}

// FormatAlert renders the alert body for f
func FormatAlert(f *Failure, origin Origin, repeats int, trail []Breadcrumb) string {
	var sb strings.Builder

	sb.WriteString(formatHeader(f))
	sb.WriteString("\n")
	sb.WriteString(truncate(f.Message, 300))
	sb.WriteString("\n\n")
	sb.WriteString(formatMetadata(f, origin, repeats))

	if len(trail) > 0 {
		sb.WriteString("\n\n**Recent events**\n")
		for _, b := range trail {
			line := fmt.Sprintf("`%s` %s/%s", b.Timestamp.UTC().Format("15:04:05"), b.Component, b.Event)
			if b.Detail != "" {
				line += ": " + truncate(b.Detail, 80)
			}
			sb.WriteString(line + "\n")
		}
	}

	body := sb.String()
	if js, err := f.FormatJSON(); err == nil {
		room := maxAlertLength - len(body) - len("\n```json\n\n```")
		if room > 100 {
			body += "\n```json\n" + truncate(js, room) + "\n```"
		}
	}
	return truncate(body, maxAlertLength)
}

func formatHeader(f *Failure) string {
	var emoji string
	switch f.Severity {
	case SeverityCritical:
		emoji = "🔴"
	case SeverityError:
		emoji = "❌"
	case SeverityWarning:
		emoji = "⚠️"
	default:
		emoji = "ℹ️"
	}
	return fmt.Sprintf("%s **%s**: %s", emoji, strings.ToUpper(string(f.Severity)), f.Kind)
}

func formatMetadata(f *Failure, origin Origin, repeats int) string {
	var lines []string

	lines = append(lines, fmt.Sprintf("🏷️ Trace ID: `%s`", f.TraceID))
	if cmd := f.Context.Command.String(); cmd != "" {
		lines = append(lines, fmt.Sprintf("⌨️ Command: `%s`", cmd))
	}
	if f.Context.Extension != "" {
		lines = append(lines, fmt.Sprintf("🧩 Extension: `%s`", f.Context.Extension))
	}
	if origin.UserID != "" {
		who := origin.UserID
		if origin.UserName != "" {
			who = fmt.Sprintf("%s (%s)", origin.UserName, origin.UserID)
		}
		lines = append(lines, "👤 Author: "+who)
	}
	if origin.GuildID != "" {
		where := origin.GuildID
		if origin.GuildName != "" {
			where = fmt.Sprintf("%s (%s)", origin.GuildName, origin.GuildID)
		}
		lines = append(lines, "🏠 Server: "+where)
	}
	if origin.Content != "" {
		lines = append(lines, "💬 Message: "+truncate(origin.Content, 200))
	}
	lines = append(lines, "⏰ "+f.Timestamp.UTC().Format("2006-01-02 15:04:05 UTC"))
	if repeats > 0 {
		lines = append(lines, fmt.Sprintf("🔁 Repeated %d times since last alert", repeats))
	}

	return strings.Join(lines, "\n")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	cut := n - 3
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
