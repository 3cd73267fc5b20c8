package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bracketline/notify-engine/internal/domain"
	"github.com/bracketline/notify-engine/internal/ratelimit"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	// DefaultDiscordBaseURL is the Discord REST API root.
	DefaultDiscordBaseURL = "https://discord.com/api/v10"

	defaultDiscordTimeout = 10 * time.Second
)

// Discord JSON error codes relevant to DM delivery.
const (
	discordCodeUnknownUser      = 10013
	discordCodeCannotSendToUser = 50007
)

type dmChannelRequest struct {
	RecipientID string `json:"recipient_id"`
}

type dmChannelResponse struct {
	ID string `json:"id"`
}

type discordMessage struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds,omitempty"`
}

type discordAPIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// DiscordHandler delivers notifications as Discord direct messages: it
// resolves the user's linked Discord account, opens a DM channel, and posts a
// short text line with a rich embed. All transport failures are classified
// into an Outcome; only a rate-limit response leaves the row retryable.
type DiscordHandler struct {
	client     *resty.Client
	limiter    ratelimit.RateLimiter
	formatters map[domain.EventType]formatterFunc
	logger     *zap.Logger
}

func NewDiscordHandler(baseURL, botToken string, limiter ratelimit.RateLimiter, logger *zap.Logger) (*DiscordHandler, error) {
	if strings.TrimSpace(botToken) == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}

	client := resty.New()
	client.SetTimeout(defaultDiscordTimeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Bot "+strings.TrimSpace(botToken))

	return NewDiscordHandlerWithClient(baseURL, client, limiter, logger)
}

func NewDiscordHandlerWithClient(baseURL string, client *resty.Client, limiter ratelimit.RateLimiter, logger *zap.Logger) (*DiscordHandler, error) {
	trimmedBaseURL := strings.TrimSpace(baseURL)
	if trimmedBaseURL == "" {
		trimmedBaseURL = DefaultDiscordBaseURL
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client.SetBaseURL(strings.TrimRight(trimmedBaseURL, "/"))
	client.SetRetryCount(0)
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultDiscordTimeout)
	}

	return &DiscordHandler{
		client:     client,
		limiter:    limiter,
		formatters: defaultFormatters(),
		logger:     logger,
	}, nil
}

func (h *DiscordHandler) Send(ctx context.Context, user *domain.User, eventType domain.EventType, payload map[string]any) (Outcome, error) {
	if h == nil || h.client == nil {
		return Outcome{}, fmt.Errorf("discord handler is not initialized")
	}

	if user == nil || user.DiscordID == nil || strings.TrimSpace(*user.DiscordID) == "" {
		return failed("user has no linked discord account"), nil
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx, strings.ToLower(domain.MethodDiscord.String())); err != nil {
			return Outcome{}, fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	channelID, outcome := h.openDMChannel(ctx, strings.TrimSpace(*user.DiscordID))
	if outcome != nil {
		return *outcome, nil
	}

	content, embed := h.formatMessage(eventType, payload)
	return h.postMessage(ctx, channelID, content, embed), nil
}

func (h *DiscordHandler) formatMessage(eventType domain.EventType, payload map[string]any) (string, *discordEmbed) {
	if formatter, ok := h.formatters[eventType]; ok {
		return formatter(payload)
	}
	return formatFallback(eventType, payload)
}

// openDMChannel resolves the DM channel for a Discord user id. A non-nil
// Outcome means resolution failed and the row is done for this attempt.
func (h *DiscordHandler) openDMChannel(ctx context.Context, discordID string) (string, *Outcome) {
	var channel dmChannelResponse

	response, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(dmChannelRequest{RecipientID: discordID}).
		SetResult(&channel).
		Post("/users/@me/channels")
	if outcome := classifyDiscordFailure(response, err); outcome != nil {
		return "", outcome
	}

	if strings.TrimSpace(channel.ID) == "" {
		outcome := failed("discord returned an empty dm channel")
		return "", &outcome
	}

	return channel.ID, nil
}

func (h *DiscordHandler) postMessage(ctx context.Context, channelID, content string, embed *discordEmbed) Outcome {
	message := discordMessage{Content: content}
	if embed != nil {
		message.Embeds = []discordEmbed{*embed}
	}

	response, err := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(fmt.Sprintf("/channels/%s/messages", channelID))
	if outcome := classifyDiscordFailure(response, err); outcome != nil {
		return *outcome
	}

	return sent()
}

// classifyDiscordFailure maps a Discord API response onto the delivery
// taxonomy. Only an explicit rate-limit signal (HTTP 429) is retryable; every
// other transport failure is terminal. Returns nil on success.
func classifyDiscordFailure(response *resty.Response, err error) *Outcome {
	if err != nil {
		outcome := failed(fmt.Sprintf("discord request failed: %v", err))
		return &outcome
	}
	if response == nil {
		outcome := failed("discord returned an empty response")
		return &outcome
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	if statusCode == http.StatusTooManyRequests {
		outcome := retrying("discord rate limit hit")
		return &outcome
	}

	apiErr := parseDiscordError(response.Body())
	switch {
	case apiErr != nil && apiErr.Code == discordCodeCannotSendToUser:
		outcome := failed("recipient has direct messages disabled")
		return &outcome
	case apiErr != nil && apiErr.Code == discordCodeUnknownUser,
		statusCode == http.StatusNotFound:
		outcome := failed("discord user could not be resolved")
		return &outcome
	}

	message := fmt.Sprintf("discord returned status %d", statusCode)
	if apiErr != nil && strings.TrimSpace(apiErr.Message) != "" {
		message = fmt.Sprintf("%s: %s", message, apiErr.Message)
	}
	outcome := failed(message)
	return &outcome
}

func parseDiscordError(body []byte) *discordAPIError {
	if len(body) == 0 {
		return nil
	}

	var apiErr discordAPIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return nil
	}
	if apiErr.Code == 0 && strings.TrimSpace(apiErr.Message) == "" {
		return nil
	}
	return &apiErr
}
