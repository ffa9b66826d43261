package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shyim/db-vault/internal/notification"
)

func init() {
	notification.Register(&TelegramType{})
}

const defaultAPIURL = "https://api.telegram.org"

// TelegramType implements NotifierType for Telegram
type TelegramType struct{}

// Name returns the notifier type identifier
func (t *TelegramType) Name() string {
	return "telegram"
}

// Create instantiates a Telegram notifier from options
func (t *TelegramType) Create(name string, options map[string]string) (notification.Notifier, error) {
	token, ok := options["token"]
	if !ok || token == "" {
		return nil, fmt.Errorf("telegram notifier %q requires 'token' option", name)
	}

	chatID, ok := options["chat-id"]
	if !ok || chatID == "" {
		return nil, fmt.Errorf("telegram notifier %q requires 'chat-id' option", name)
	}

	apiURL := strings.TrimRight(options["api-url"], "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	return &TelegramNotifier{
		name:   name,
		token:  token,
		chatID: chatID,
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// TelegramNotifier sends notifications via Telegram Bot API
type TelegramNotifier struct {
	name   string
	token  string
	chatID string
	apiURL string
	client *http.Client
}

type message struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

// Name returns the notifier instance name
func (t *TelegramNotifier) Name() string {
	return t.name
}

// Type returns the notifier type
func (t *TelegramNotifier) Type() string {
	return "telegram"
}

// Send sends a notification to Telegram
func (t *TelegramNotifier) Send(ctx context.Context, event notification.Event) error {
	body, err := json.Marshal(message{
		ChatID:    t.chatID,
		Text:      t.formatMessage(event),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.apiURL, t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the URL contains the bot token
		return errors.New("failed to send request to telegram API")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API returned status %d", resp.StatusCode)
	}

	return nil
}

// formatMessage formats an event into a Telegram message
func (t *TelegramNotifier) formatMessage(event notification.Event) string {
	var emoji string
	switch event.Severity() {
	case notification.SeverityCritical:
		emoji = "🚨"
	case notification.SeverityError:
		emoji = "❌"
	case notification.SeverityWarning:
		emoji = "⚠️"
	default:
		emoji = "✅"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", emoji, html.EscapeString(event.Title()))

	if event.Source != "" {
		fmt.Fprintf(&b, "🗄 Source: <code>%s</code>\n", html.EscapeString(event.Source))
	}
	if event.Artifact != "" {
		fmt.Fprintf(&b, "📦 Artifact: <code>%s</code>\n", html.EscapeString(event.Artifact))
	}
	if event.Stage != "" {
		fmt.Fprintf(&b, "🔧 Stage: <code>%s</code>\n", html.EscapeString(event.Stage))
	}
	if event.Size > 0 {
		fmt.Fprintf(&b, "📊 Size: %s\n", notification.FormatSize(event.Size))
	}
	if event.Duration > 0 {
		fmt.Fprintf(&b, "⏱ Duration: %s\n", event.Duration.Round(time.Millisecond))
	}
	if event.Type == notification.EventSweepCompleted {
		fmt.Fprintf(&b, "🗑 Deleted: %d, failed: %d\n", event.Deleted, event.Failed)
	}
	if event.Error != nil {
		fmt.Fprintf(&b, "\n⚠️ Error: <code>%s</code>", html.EscapeString(event.Error.Error()))
	}

	return b.String()
}
