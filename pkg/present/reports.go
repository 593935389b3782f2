package present

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/extension"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/gateway"
)

// Snapshot is the bot state shown by the status reports
type Snapshot struct {
	BotName   string
	AvatarURL string
	Creator   string
	Version   string

	Guilds   int
	Members  int
	Commands int
	Uptime   time.Duration

	ShardCount int
	// CurrentShard is the invoking guild's shard, -1 in direct messages.
	CurrentShard int
}

// Runtime describes the process hosting the bot
type Runtime struct {
	GoVersion  string
	OS         string
	Arch       string
	Hostname   string
	PID        int
	Goroutines int
	CPUs       int
	MaxProcs   int

	HeapAlloc uint64
	HeapInuse uint64
	Sys       uint64
	NumGC     uint32
}

// ReadRuntime samples the current process
func ReadRuntime() Runtime {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	host, _ := os.Hostname()

	return Runtime{
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		Hostname:   host,
		PID:        os.Getpid(),
		Goroutines: runtime.NumGoroutine(),
		CPUs:       runtime.NumCPU(),
		MaxProcs:   runtime.GOMAXPROCS(0),
		HeapAlloc:  mem.HeapAlloc,
		HeapInuse:  mem.HeapInuse,
		Sys:        mem.Sys,
		NumGC:      mem.NumGC,
	}
}

func bullet(sb *strings.Builder, label, value string) {
	fmt.Fprintf(sb, "• %s: **`%s`**\n", label, value)
}

func generalField(s Snapshot) gateway.EmbedField {
	var sb strings.Builder
	bullet(&sb, "Servers", fmt.Sprint(s.Guilds))
	bullet(&sb, "Members", fmt.Sprint(s.Members))
	bullet(&sb, "Commands", fmt.Sprint(s.Commands))
	bullet(&sb, "Uptime", Uptime(s.Uptime))
	return gateway.EmbedField{Name: "**❯ General**", Value: sb.String()}
}

func shardField(s Snapshot) gateway.EmbedField {
	var sb strings.Builder
	bullet(&sb, "Shard count", fmt.Sprint(s.ShardCount))
	if s.CurrentShard >= 0 {
		bullet(&sb, "Current shard", fmt.Sprint(s.CurrentShard))
	}
	return gateway.EmbedField{Name: "**❯ Shard info**", Value: sb.String()}
}

func decorate(embed gateway.Embed, s Snapshot) gateway.Embed {
	if s.BotName != "" {
		embed.Author = &gateway.EmbedAuthor{Name: s.BotName + "'s Stats", IconURL: s.AvatarURL}
	}
	if s.Creator != "" {
		embed.Footer = &gateway.EmbedFooter{Text: "Made by " + s.Creator + "."}
	}
	return embed
}

// Status renders the short status report
func Status(s Snapshot, rt Runtime) gateway.Embed {
	var system strings.Builder
	bullet(&system, "Go", rt.GoVersion+" on "+rt.OS+"/"+rt.Arch)
	if s.Version != "" {
		bullet(&system, "Bot", s.Version)
	}

	embed := gateway.Embed{
		Title: "BOT STATUS",
		Color: gateway.ColorBlue,
		Fields: []gateway.EmbedField{
			generalField(s),
			{Name: "**❯ System**", Value: system.String()},
			shardField(s),
		},
	}
	return decorate(embed, s)
}

// Stats renders the full statistics report including memory usage
func Stats(s Snapshot, rt Runtime) gateway.Embed {
	embed := Status(s, rt)
	embed.Title = "BOT STATISTICS"

	var mem strings.Builder
	bullet(&mem, "Heap in use", humanize.Bytes(rt.HeapInuse))
	bullet(&mem, "Heap allocated", humanize.Bytes(rt.HeapAlloc))
	bullet(&mem, "Reserved from OS", humanize.Bytes(rt.Sys))
	bullet(&mem, "GC cycles", humanize.Comma(int64(rt.NumGC)))
	fmt.Fprintf(&mem, "• PID: `%d`\n", rt.PID)
	bullet(&mem, "Goroutines", fmt.Sprint(rt.Goroutines))
	bullet(&mem, "Core count", fmt.Sprintf("%d / GOMAXPROCS %d", rt.CPUs, rt.MaxProcs))

	var host strings.Builder
	bullet(&host, "System", rt.OS)
	bullet(&host, "Node Name", rt.Hostname)
	bullet(&host, "Machine", rt.Arch)

	embed.Fields = append(embed.Fields,
		gateway.EmbedField{Name: "**❯ Memory info**", Value: mem.String()},
		gateway.EmbedField{Name: "**❯ System info**", Value: host.String()},
	)
	return embed
}

// SocketStats renders gateway event counts with the per-minute rate
func SocketStats(counts map[string]int, since time.Duration) gateway.Embed {
	total := 0
	names := make([]string, 0, len(counts))
	for name, n := range counts {
		total += n
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %d", name, counts[name])
	}

	perMinute := 0.0
	if minutes := since.Minutes(); minutes > 0 {
		perMinute = float64(total) / minutes
	}

	return Info("Socket stats", fmt.Sprintf("%s socket events observed (%.2f/minute):\n`{%s}`",
		humanize.Comma(int64(total)), perMinute, strings.Join(parts, ", ")))
}

// Shards renders per-shard latency
func Shards(shards []gateway.ShardInfo) gateway.Embed {
	ids := make([]string, len(shards))
	var sb strings.Builder
	for i, sh := range shards {
		ids[i] = fmt.Sprint(sh.ID)
		fmt.Fprintf(&sb, "**`[%d]`**:\n", sh.ID)
		if sh.Connected {
			fmt.Fprintf(&sb, "Latency: **`%dms`**\n", sh.Latency.Round(time.Millisecond).Milliseconds())
		} else {
			sb.WriteString("Latency: **`disconnected`**\n")
		}
		fmt.Fprintf(&sb, "Shard count: `%d`\n", sh.Count)
	}

	return Info("Cluster info", fmt.Sprintf("Clusters IDs: `[%s]`\n%s", strings.Join(ids, ", "), sb.String()))
}

var statusMarks = map[extension.Status]string{
	extension.StatusLoaded:   "✅",
	extension.StatusUnloaded: "⏸",
	extension.StatusFailed:   "❌",
}

// Extensions renders the extension records
func Extensions(records []extension.Record) gateway.Embed {
	if len(records) == 0 {
		return Info("Extensions", "No extensions discovered.")
	}

	var sb strings.Builder
	for _, rec := range records {
		fmt.Fprintf(&sb, "%s `%s` %s", statusMarks[rec.Status], rec.ID, rec.Status)
		if n := len(rec.Commands); n > 0 {
			fmt.Fprintf(&sb, " (%d %s)", n, plural(n, "command", "commands"))
		}
		sb.WriteByte('\n')
		if rec.LastError != nil {
			fmt.Fprintf(&sb, "  ↳ %s\n", truncate(errors.Message(rec.LastError), 200))
		}
	}
	return Info("Extensions", sb.String())
}

// Failures renders stored unhandled failures
func Failures(items []errors.StoredFailure, now time.Time) gateway.Embed {
	if len(items) == 0 {
		return Success("No unresolved failures.")
	}

	var sb strings.Builder
	for _, item := range items {
		fmt.Fprintf(&sb, "`%s` **%s**", item.TraceID, item.Kind)
		if item.Command != "" {
			fmt.Fprintf(&sb, " in `%s`", item.Command)
		}
		if item.Extension != "" {
			fmt.Fprintf(&sb, " from `%s`", item.Extension)
		}
		fmt.Fprintf(&sb, "\n%s · %s %s, last %s\n",
			truncate(item.Message, 120),
			humanize.Comma(int64(item.Occurrences)),
			plural(item.Occurrences, "time", "times"),
			humanize.RelTime(item.LastSeen, now, "ago", "from now"))
	}

	embed := Info("Unresolved failures", truncate(sb.String(), 4000))
	embed.Color = gateway.ColorRed
	return embed
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
