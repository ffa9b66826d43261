package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/shyim/db-vault/internal/notification"
)

func init() {
	notification.Register(&DiscordType{})
}

// Embed colors
const (
	colorGreen  = 3066993
	colorOrange = 15105570
	colorRed    = 15158332
	colorPurple = 10181046
)

// DiscordType implements NotifierType for Discord
type DiscordType struct{}

// Name returns the notifier type identifier
func (t *DiscordType) Name() string {
	return "discord"
}

// Create instantiates a Discord notifier from options
func (t *DiscordType) Create(name string, options map[string]string) (notification.Notifier, error) {
	webhookURL, ok := options["webhook-url"]
	if !ok || webhookURL == "" {
		return nil, fmt.Errorf("discord notifier %q requires 'webhook-url' option", name)
	}

	username := options["username"]
	if username == "" {
		username = "db-vault"
	}

	return &DiscordNotifier{
		name:       name,
		webhookURL: webhookURL,
		username:   username,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// DiscordNotifier sends notifications via Discord Webhooks
type DiscordNotifier struct {
	name       string
	webhookURL string
	username   string
	client     *http.Client
}

type payload struct {
	Username string  `json:"username"`
	Embeds   []embed `json:"embeds"`
}

type embed struct {
	Title     string  `json:"title"`
	Color     int     `json:"color"`
	Fields    []field `json:"fields"`
	Timestamp string  `json:"timestamp,omitempty"`
}

type field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Name returns the notifier instance name
func (d *DiscordNotifier) Name() string {
	return d.name
}

// Type returns the notifier type
func (d *DiscordNotifier) Type() string {
	return "discord"
}

// Send sends a notification to Discord
func (d *DiscordNotifier) Send(ctx context.Context, event notification.Event) error {
	body, err := json.Marshal(payload{
		Username: d.username,
		Embeds:   []embed{d.createEmbed(event)},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord API returned status %d", resp.StatusCode)
	}

	return nil
}

// createEmbed creates a Discord embed for an event
func (d *DiscordNotifier) createEmbed(event notification.Event) embed {
	var color int
	switch event.Severity() {
	case notification.SeverityCritical:
		color = colorPurple
	case notification.SeverityError:
		color = colorRed
	case notification.SeverityWarning:
		color = colorOrange
	default:
		color = colorGreen
	}

	var fields []field
	if event.Source != "" {
		fields = append(fields, field{Name: "Source", Value: fmt.Sprintf("`%s`", event.Source), Inline: true})
	}
	if event.Stage != "" {
		fields = append(fields, field{Name: "Stage", Value: fmt.Sprintf("`%s`", event.Stage), Inline: true})
	}
	if event.Artifact != "" {
		fields = append(fields, field{Name: "Artifact", Value: fmt.Sprintf("`%s`", event.Artifact)})
	}
	if event.Size > 0 {
		fields = append(fields, field{Name: "Size", Value: notification.FormatSize(event.Size), Inline: true})
	}
	if event.Duration > 0 {
		fields = append(fields, field{Name: "Duration", Value: event.Duration.Round(time.Millisecond).String(), Inline: true})
	}
	if event.Type == notification.EventSweepCompleted {
		fields = append(fields,
			field{Name: "Deleted", Value: strconv.Itoa(event.Deleted), Inline: true},
			field{Name: "Failed", Value: strconv.Itoa(event.Failed), Inline: true},
		)
	}
	if event.Error != nil {
		fields = append(fields, field{Name: "Error", Value: fmt.Sprintf("```%s```", event.Error.Error())})
	}

	e := embed{
		Title:  event.Title(),
		Color:  color,
		Fields: fields,
	}
	if !event.Timestamp.IsZero() {
		e.Timestamp = event.Timestamp.Format(time.RFC3339)
	}
	return e
}
