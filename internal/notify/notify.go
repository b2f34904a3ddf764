// Package notify delivers run summaries to a chat channel.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"options-anomaly-trader/internal/config"
)

// MaxMessageLen is the largest message body a webhook accepts.
const MaxMessageLen = 2000

// Notifier sends a plain-text message.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

// New returns a webhook notifier when one is configured, and a log notifier
// otherwise.
func New(cfg config.Notify, logger *zap.Logger) Notifier {
	if !cfg.Enabled || cfg.WebhookURL == "" {
		return NewLogNotifier(logger)
	}
	return NewWebhookNotifier(cfg.WebhookURL, logger)
}

// LogNotifier writes messages to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that logs every message at info level.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Send logs text.
func (n *LogNotifier) Send(_ context.Context, text string) error {
	n.logger.Info("notification", zap.String("text", text))
	return nil
}

// WebhookNotifier posts messages to a chat webhook as {"content": text}.
// Long messages are split on line boundaries.
type WebhookNotifier struct {
	client  *resty.Client
	url     string
	limiter *rate.Limiter
	logger  *zap.Logger
}

type webhookPayload struct {
	Content string `json:"content"`
}

// NewWebhookNotifier creates a notifier for the given webhook URL.
func NewWebhookNotifier(url string, logger *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client: resty.New().
			SetTimeout(10*time.Second).
			SetHeader("Content-Type", "application/json"),
		url:     url,
		limiter: rate.NewLimiter(rate.Limit(1), 2),
		logger:  logger.Named("notify"),
	}
}

// Send posts text, split into as many messages as the webhook limit needs.
func (n *WebhookNotifier) Send(ctx context.Context, text string) error {
	for i, part := range Split(text, MaxMessageLen) {
		if err := n.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
		resp, err := n.client.R().
			SetContext(ctx).
			SetBody(webhookPayload{Content: part}).
			Post(n.url)
		if err != nil {
			return fmt.Errorf("webhook request failed: %w", err)
		}
		if resp.IsError() {
			return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode(), resp.String())
		}
		n.logger.Debug("webhook message sent", zap.Int("part", i), zap.Int("length", len(part)))
	}
	return nil
}

const fence = "```"

// Split breaks text into chunks of at most max bytes, preferring line
// boundaries. A single overlong line is cut on a rune boundary. A code block
// that spans chunks is closed at the end of one and reopened in the next.
func Split(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}
	budget := max
	hasFence := strings.Contains(text, fence)
	if hasFence {
		// room to close and reopen a fence around every chunk
		budget -= 2 * (len(fence) + 1)
	}
	parts := splitLines(text, budget)
	if hasFence {
		balanceFences(parts)
	}
	return parts
}

func splitLines(text string, max int) []string {
	var parts []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			parts = append(parts, strings.TrimSuffix(b.String(), "\n"))
			b.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > max {
			flush()
			cut := max
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			if cut == 0 {
				_, cut = utf8.DecodeRuneInString(line)
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if b.Len()+len(line) > max {
			flush()
		}
		b.WriteString(line)
	}
	flush()
	return parts
}

func balanceFences(parts []string) {
	open := false
	for i := range parts {
		if open {
			parts[i] = fence + "\n" + parts[i]
		}
		if strings.Count(parts[i], fence)%2 == 1 {
			parts[i] += "\n" + fence
			open = true
		} else {
			open = false
		}
	}
}
