// Package notify posts reports to a Discord channel webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mcoot/clanadmin/internal/dependencies/clock"
)

// MessageLimit is the longest message content Discord accepts
const MessageLimit = 2000

const (
	fenceOpen  = "```\n"
	fenceClose = "\n```"
)

// Notifier posts a titled report somewhere staff will read it
type Notifier interface {
	Post(ctx context.Context, title, body string) error
}

// Config holds the webhook settings. An empty WebhookURL disables posting.
type Config struct {
	WebhookURL string        `yaml:"webhook_url"`
	Username   string        `yaml:"username"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the webhook defaults
func DefaultConfig() Config {
	return Config{
		Username: "Clan Admin",
		Timeout:  10 * time.Second,
	}
}

// Discord posts to a channel webhook
type Discord struct {
	cfg        Config
	httpClient *http.Client
	clock      clock.Clock
	logger     *slog.Logger
}

// NewDiscord creates a webhook notifier
func NewDiscord(cfg Config, clk clock.Clock, logger *slog.Logger) *Discord {
	return &Discord{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		clock:  clk,
		logger: logger,
	}
}

type webhookMessage struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

type rateLimited struct {
	RetryAfter float64 `json:"retry_after"`
}

// Post sends the body as one or more code-block messages, the first headed by the title
func (d *Discord) Post(ctx context.Context, title, body string) error {
	heading := ""
	if title != "" {
		heading = "**" + title + "**\n"
	}
	budget := MessageLimit - len(fenceOpen) - len(fenceClose)

	chunks := Chunk(body, budget-len(heading))
	for i, chunk := range chunks {
		content := fenceOpen + chunk + fenceClose
		if i == 0 {
			content = heading + content
		}
		if err := d.send(ctx, content); err != nil {
			return fmt.Errorf("failed to post message %d of %d: %w", i+1, len(chunks), err)
		}
	}
	d.logger.Info("report posted", slog.String("title", title), slog.Int("messages", len(chunks)))
	return nil
}

// send posts one message, waiting out a single rate limit response
func (d *Discord) send(ctx context.Context, content string) error {
	data, err := json.Marshal(webhookMessage{Content: content, Username: d.cfg.Username})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.WebhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			var rl rateLimited
			_ = json.Unmarshal(body, &rl)
			wait := time.Duration(rl.RetryAfter * float64(time.Second))
			d.logger.Warn("webhook rate limited", slog.Duration("retry_after", wait))
			if err := d.clock.Sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		return nil
	}
}

// Chunk splits text into pieces of at most max bytes, breaking between lines
// where possible. Lines longer than max are split.
func Chunk(text string, max int) []string {
	if max <= 0 {
		max = 1
	}
	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > max {
			flush()
			cut := max
			for cut > 1 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		extra := len(line)
		if current.Len() > 0 {
			extra++
		}
		if current.Len()+extra > max {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		chunks = append(chunks, "")
	}
	return chunks
}
