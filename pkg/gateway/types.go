// Package gateway is the chat platform collaborator: a REST client for
// outbound requests, a websocket session delivering dispatch events and a
// cache of the guilds and channels the bot can see.
package gateway

import (
	"encoding/json"
	"time"
)

// Embed colors
const (
	ColorRed   = 0xe74c3c
	ColorGreen = 0x2ecc71
	ColorBlue  = 0x3498db
)

// User represents a platform user
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator,omitempty"`
	Avatar        string `json:"avatar,omitempty"`
	Bot           bool   `json:"bot,omitempty"`
}

// Member is a user's membership in a guild
type Member struct {
	User  *User    `json:"user,omitempty"`
	Nick  string   `json:"nick,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// Message represents a MESSAGE_CREATE payload
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	GuildID   string    `json:"guild_id,omitempty"`
	Author    User      `json:"author"`
	Member    *Member   `json:"member,omitempty"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Embeds    []Embed   `json:"embeds,omitempty"`
}

// IsPrivate reports whether the message was sent in a direct message
func (m *Message) IsPrivate() bool {
	return m.GuildID == ""
}

// Embed represents a rich embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	URL         string       `json:"url,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Author      *EmbedAuthor `json:"author,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField represents a field in an embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedAuthor is the author line of an embed
type EmbedAuthor struct {
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}

// EmbedFooter is the footer line of an embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// MessageReference points at the message being replied to
type MessageReference struct {
	MessageID string `json:"message_id"`
	ChannelID string `json:"channel_id,omitempty"`
	GuildID   string `json:"guild_id,omitempty"`
}

// MessageSend is the body of a create or edit message request
type MessageSend struct {
	Content   string            `json:"content,omitempty"`
	Embeds    []Embed           `json:"embeds,omitempty"`
	Reference *MessageReference `json:"message_reference,omitempty"`
}

// Channel types
const (
	ChannelTypeGuildText     = 0
	ChannelTypeDM            = 1
	ChannelTypeGuildCategory = 4
)

// Channel represents a guild channel or DM
type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	GuildID  string `json:"guild_id,omitempty"`
	Name     string `json:"name,omitempty"`
	NSFW     bool   `json:"nsfw,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
}

// Guild represents a GUILD_CREATE payload
type Guild struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id,omitempty"`
	MemberCount int       `json:"member_count,omitempty"`
	Channels    []Channel `json:"channels,omitempty"`
	Unavailable bool      `json:"unavailable,omitempty"`

	// Shard is filled in by the session that received the guild
	Shard int `json:"-"`
}

// UnavailableGuild is the payload of GUILD_DELETE and of the READY guild list
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

// Ready is the READY dispatch payload
type Ready struct {
	Version          int                `json:"v"`
	User             User               `json:"user"`
	Guilds           []UnavailableGuild `json:"guilds"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url,omitempty"`
	Shard            []int              `json:"shard,omitempty"`
}

// Emoji identifies a reaction emoji
type Emoji struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// APIName is the form used in reaction endpoints
func (e Emoji) APIName() string {
	if e.ID != "" {
		return e.Name + ":" + e.ID
	}
	return e.Name
}

// ReactionAdd is the MESSAGE_REACTION_ADD payload
type ReactionAdd struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id,omitempty"`
	Emoji     Emoji  `json:"emoji"`
}

// Team owns an application when the bot belongs to a developer team
type Team struct {
	ID      string       `json:"id"`
	OwnerID string       `json:"owner_user_id"`
	Members []TeamMember `json:"members"`
}

// TeamMember is one member of a Team
type TeamMember struct {
	User User `json:"user"`
}

// Application is the bot's OAuth2 application
type Application struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Owner *User  `json:"owner,omitempty"`
	Team  *Team  `json:"team,omitempty"`
}

// OwnerIDs returns the users that own the application
func (a *Application) OwnerIDs() []string {
	if a == nil {
		return nil
	}
	if a.Team != nil {
		ids := make([]string, 0, len(a.Team.Members))
		for _, m := range a.Team.Members {
			ids = append(ids, m.User.ID)
		}
		return ids
	}
	if a.Owner != nil {
		return []string{a.Owner.ID}
	}
	return nil
}

// ActivityType enumerates presence activity kinds
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
)

// ParseActivityType maps "playing", "watching" and "listening"
func ParseActivityType(s string) (ActivityType, bool) {
	switch s {
	case "playing":
		return ActivityPlaying, true
	case "watching":
		return ActivityWatching, true
	case "listening":
		return ActivityListening, true
	}
	return 0, false
}

func (t ActivityType) String() string {
	switch t {
	case ActivityPlaying:
		return "playing"
	case ActivityWatching:
		return "watching"
	case ActivityListening:
		return "listening"
	}
	return "unknown"
}

// Activity is shown in the bot's presence
type Activity struct {
	Name string       `json:"name"`
	Type ActivityType `json:"type"`
}

// Presence is the op 3 payload
type Presence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// NewPresence returns an online presence with one activity
func NewPresence(kind ActivityType, name string) Presence {
	return Presence{
		Activities: []Activity{{Name: name, Type: kind}},
		Status:     "online",
	}
}

// GatewayBot is the response of GET /gateway/bot
type GatewayBot struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"`
}

// Event is one dispatch delivered by a session. Data holds the decoded
// payload for the event types the runtime consumes and is nil otherwise.
type Event struct {
	Type  string
	Shard int
	Seq   int64
	Raw   json.RawMessage
	Data  any
}
