package delivery

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bracketline/notify-engine/internal/domain"
)

// Discord embed accent colors per event family.
const (
	colorBlue   = 0x3498DB
	colorGreen  = 0x2ECC71
	colorRed    = 0xE74C3C
	colorPurple = 0x9B59B6
	colorGold   = 0xF1C40F
	colorTeal   = 0x1ABC9C
	colorGray   = 0x95A5A6
)

const embedFooterText = "Bracketline notifications"

type embedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type embedFooter struct {
	Text string `json:"text"`
}

type discordEmbed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []embedField `json:"fields,omitempty"`
	Footer      *embedFooter `json:"footer,omitempty"`
}

// formatterFunc produces the short text line and the rich embed for one event
// type. Formatters substitute defaults for missing payload keys instead of
// failing, so producers can enqueue partial payloads.
type formatterFunc func(payload map[string]any) (string, *discordEmbed)

func defaultFormatters() map[domain.EventType]formatterFunc {
	return map[domain.EventType]formatterFunc{
		domain.EventMatchScheduled:      formatMatchScheduled,
		domain.EventMatchCanceled:       formatMatchCanceled,
		domain.EventMatchResult:         formatMatchResult,
		domain.EventTournamentStarted:   formatTournamentStarted,
		domain.EventTournamentCompleted: formatTournamentCompleted,
		domain.EventOrgMemberJoined:     formatOrgMemberJoined,
	}
}

func formatMatchScheduled(payload map[string]any) (string, *discordEmbed) {
	return "A new match has been scheduled for you.", &discordEmbed{
		Title:       "Match Scheduled",
		Description: fmt.Sprintf("Your match against %s is on the calendar.", payloadString(payload, "opponent")),
		Color:       colorBlue,
		Fields: []embedField{
			{Name: "Opponent", Value: payloadString(payload, "opponent"), Inline: true},
			{Name: "Tournament", Value: payloadString(payload, "tournament"), Inline: true},
			{Name: "Scheduled For", Value: payloadString(payload, "scheduled_at")},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

func formatMatchCanceled(payload map[string]any) (string, *discordEmbed) {
	return "One of your matches has been canceled.", &discordEmbed{
		Title:       "Match Canceled",
		Description: fmt.Sprintf("The match against %s will not be played.", payloadString(payload, "opponent")),
		Color:       colorRed,
		Fields: []embedField{
			{Name: "Opponent", Value: payloadString(payload, "opponent"), Inline: true},
			{Name: "Tournament", Value: payloadString(payload, "tournament"), Inline: true},
			{Name: "Reason", Value: payloadString(payload, "reason")},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

func formatMatchResult(payload map[string]any) (string, *discordEmbed) {
	return "A match result has been recorded.", &discordEmbed{
		Title:       "Match Result",
		Description: fmt.Sprintf("Result against %s is in.", payloadString(payload, "opponent")),
		Color:       colorGreen,
		Fields: []embedField{
			{Name: "Opponent", Value: payloadString(payload, "opponent"), Inline: true},
			{Name: "Score", Value: payloadString(payload, "score"), Inline: true},
			{Name: "Outcome", Value: payloadString(payload, "outcome"), Inline: true},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

func formatTournamentStarted(payload map[string]any) (string, *discordEmbed) {
	return "A tournament you are registered for has started.", &discordEmbed{
		Title:       "Tournament Started",
		Description: fmt.Sprintf("%s is underway.", payloadString(payload, "tournament")),
		Color:       colorPurple,
		Fields: []embedField{
			{Name: "Tournament", Value: payloadString(payload, "tournament"), Inline: true},
			{Name: "Format", Value: payloadString(payload, "format"), Inline: true},
			{Name: "Teams", Value: payloadString(payload, "team_count"), Inline: true},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

func formatTournamentCompleted(payload map[string]any) (string, *discordEmbed) {
	return "A tournament you played in has finished.", &discordEmbed{
		Title:       "Tournament Completed",
		Description: fmt.Sprintf("%s has wrapped up.", payloadString(payload, "tournament")),
		Color:       colorGold,
		Fields: []embedField{
			{Name: "Tournament", Value: payloadString(payload, "tournament"), Inline: true},
			{Name: "Winner", Value: payloadString(payload, "winner"), Inline: true},
			{Name: "Your Placement", Value: payloadString(payload, "placement"), Inline: true},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

func formatOrgMemberJoined(payload map[string]any) (string, *discordEmbed) {
	return "Someone joined your organization.", &discordEmbed{
		Title:       "New Organization Member",
		Description: fmt.Sprintf("%s joined %s.", payloadString(payload, "member"), payloadString(payload, "organization")),
		Color:       colorTeal,
		Fields: []embedField{
			{Name: "Organization", Value: payloadString(payload, "organization"), Inline: true},
			{Name: "Member", Value: payloadString(payload, "member"), Inline: true},
			{Name: "Role", Value: payloadString(payload, "role"), Inline: true},
		},
		Footer: &embedFooter{Text: embedFooterText},
	}
}

// formatFallback renders a generic dump of the raw payload so event types
// without a dedicated formatter stay deliverable.
func formatFallback(eventType domain.EventType, payload map[string]any) (string, *discordEmbed) {
	keys := make([]string, 0, len(payload))
	for key := range payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", key, payload[key]))
	}
	description := strings.Join(lines, "\n")
	if description == "" {
		description = "No event details were provided."
	}

	return fmt.Sprintf("Notification: %s", eventType), &discordEmbed{
		Title:       eventType.String(),
		Description: description,
		Color:       colorGray,
		Footer:      &embedFooter{Text: embedFooterText},
	}
}

// payloadString extracts a printable value for key, substituting "TBD" for
// missing or empty entries.
func payloadString(payload map[string]any, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return "TBD"
	}

	text := strings.TrimSpace(fmt.Sprintf("%v", value))
	if text == "" {
		return "TBD"
	}
	return text
}
