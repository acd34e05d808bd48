// Package mattermost provides webhook client for sending admin alerts to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/aimd54/hero-rewards/internal/config"
	"github.com/aimd54/hero-rewards/internal/models"
	"github.com/aimd54/hero-rewards/pkg/logger"
)

const botUsername = "Hero Rewards"

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        log,
	}
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}
	if msg.Username == "" {
		msg.Username = botUsername
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// SendConfigurationAlert warns admins that the active grade table is inconsistent.
func (c *Client) SendConfigurationAlert(ctx context.Context, version uint, message string) error {
	title := "Grade table is misconfigured"
	if version > 0 {
		title = fmt.Sprintf("Grade table v%d is misconfigured", version)
	}

	return c.SendMessage(ctx, &Message{
		Text: "### ⚠️ Grade configuration error",
		Attachments: []Attachment{{
			Fallback: title + ": " + message,
			Color:    "#d24b4e",
			Title:    title,
			Text:     message,
			Footer:   "Automatic promotions are paused until the table is fixed with PUT /api/v1/admin/grade-table.",
		}},
	})
}

// SendGradeOverrideNotice informs the admin channel of a manual grade adjustment.
func (c *Client) SendGradeOverrideNotice(ctx context.Context, consumerID string, from, to models.Level, actorID, reason string) error {
	return c.SendMessage(ctx, &Message{
		Text: fmt.Sprintf("#### 🛠️ Grade adjusted by @%s", actorID),
		Attachments: []Attachment{{
			Fallback: fmt.Sprintf("%s: %s → %s", consumerID, from, to),
			Color:    "#3f7fbf",
			Fields: []Field{
				{Short: true, Title: "Consumer", Value: consumerID},
				{Short: true, Title: "Change", Value: fmt.Sprintf("%s → %s", from, to)},
				{Short: false, Title: "Reason", Value: reason},
			},
		}},
	})
}
