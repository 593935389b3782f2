package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/errors"
	"github.com/janaSunrise/AIML-discord-chatter-bot/pkg/logger"
)

const (
	// DefaultBaseURL is the REST API root
	DefaultBaseURL = "https://discord.com/api/v10"

	// DefaultRateLimit is the global request budget per second
	DefaultRateLimit = 50
	DefaultRateBurst = 10
)

// ClientConfig configures the REST client
type ClientConfig struct {
	Token      string
	BaseURL    string
	HTTPClient *http.Client
	RateLimit  float64
	RateBurst  int
	Logger     *logger.Logger
}

// Client issues REST requests on behalf of the bot. The underlying
// *http.Client is shared and never mutated.
type Client struct {
	http    *http.Client
	baseURL string
	token   string
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewClient creates a REST client
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global().WithComponent("rest")
	}

	return &Client{
		http:    cfg.HTTPClient,
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		log:     cfg.Logger,
	}
}

// HTTPClient returns the shared HTTP client
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// SendMessage posts a message to a channel
func (c *Client) SendMessage(ctx context.Context, channelID string, msg MessageSend) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPost, "/channels/"+channelID+"/messages", msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendContent posts a plain text message
func (c *Client) SendContent(ctx context.Context, channelID, content string) (*Message, error) {
	return c.SendMessage(ctx, channelID, MessageSend{Content: content})
}

// SendEmbed posts a single embed
func (c *Client) SendEmbed(ctx context.Context, channelID string, embed Embed) (*Message, error) {
	return c.SendMessage(ctx, channelID, MessageSend{Embeds: []Embed{embed}})
}

// EditMessage replaces the content and embeds of a message
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg MessageSend) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodPatch, "/channels/"+channelID+"/messages/"+messageID, msg, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessage fetches a single message
func (c *Client) GetMessage(ctx context.Context, channelID, messageID string) (*Message, error) {
	var out Message
	if err := c.do(ctx, http.MethodGet, "/channels/"+channelID+"/messages/"+messageID, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddReaction reacts to a message as the bot
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, emoji string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/@me", channelID, messageID, url.PathEscape(emoji))
	return c.do(ctx, http.MethodPut, path, nil, nil)
}

// RemoveUserReaction removes another user's reaction
func (c *Client) RemoveUserReaction(ctx context.Context, channelID, messageID, emoji, userID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s/reactions/%s/%s", channelID, messageID, url.PathEscape(emoji), userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ClearReactions removes every reaction from a message
func (c *Client) ClearReactions(ctx context.Context, channelID, messageID string) error {
	return c.do(ctx, http.MethodDelete, "/channels/"+channelID+"/messages/"+messageID+"/reactions", nil, nil)
}

// CreateDM opens a direct message channel with a user
func (c *Client) CreateDM(ctx context.Context, userID string) (*Channel, error) {
	var out Channel
	body := map[string]string{"recipient_id": userID}
	if err := c.do(ctx, http.MethodPost, "/users/@me/channels", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetCurrentApplication fetches the bot's application, used for ownership
func (c *Client) GetCurrentApplication(ctx context.Context) (*Application, error) {
	var out Application
	if err := c.do(ctx, http.MethodGet, "/oauth2/applications/@me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetGatewayBot returns the websocket URL and the recommended shard count
func (c *Client) GetGatewayBot(ctx context.Context) (*GatewayBot, error) {
	var out GatewayBot
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// apiError is the JSON error body returned by the API
type apiError struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.NewBuilder(errors.KindHTTP).Wrap(err).Build()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", "DiscordBot (https://github.com/janaSunrise/AIML-discord-chatter-bot, "+logger.Version+")")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.NewBuilder(errors.KindHTTP).Wrap(err).Build()
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewBuilder(errors.KindHTTP).
			Wrap(err).
			WithHTTP(resp.StatusCode, 0).
			Build()
	}

	if resp.StatusCode >= 400 {
		failure := mapAPIError(resp.StatusCode, data)
		c.log.Debug("api request failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"api_code", failure.Context.APICode,
		)
		return failure
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// mapAPIError converts an error response to a Failure: 403 becomes
// Forbidden, everything else HTTP, both carrying status and API code.
func mapAPIError(status int, body []byte) *errors.Failure {
	var apiErr apiError
	_ = json.Unmarshal(body, &apiErr)

	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(status)
	}

	kind := errors.KindHTTP
	if status == http.StatusForbidden {
		kind = errors.KindForbidden
	}

	b := errors.NewBuilder(kind).
		WithMessagef("%d %s (error code: %d): %s", status, http.StatusText(status), apiErr.Code, msg).
		WithHTTP(status, apiErr.Code)
	if status == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
		b = b.WithCooldown(errors.BucketDefault, time.Duration(apiErr.RetryAfter*float64(time.Second)))
	}
	return b.Build()
}
