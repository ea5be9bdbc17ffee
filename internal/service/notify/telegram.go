package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	domrepo "MarketPulse/internal/domain/repository"
	xhttp "MarketPulse/pkg/http"
	applogger "MarketPulse/pkg/logger"
)

type TelegramConfig struct {
	BotToken  string
	BaseURL   string
	Timeout   time.Duration
	ParseMode string
}

// Telegram delivers alert notifications through the Bot API. A send is
// attempted once; every failure is logged and reported as false.
type Telegram struct {
	cfg     TelegramConfig
	client  *xhttp.Client
	metrics domrepo.Metrics
	logger  *applogger.Logger
}

var _ domrepo.Notifier = (*Telegram)(nil)

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

func NewTelegram(cfg TelegramConfig, client *xhttp.Client, m domrepo.Metrics, l *applogger.Logger) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if client == nil {
		client = xhttp.NewClient(xhttp.WithTimeout(cfg.Timeout))
	}
	return &Telegram{
		cfg:     cfg,
		client:  client,
		metrics: m,
		logger:  l.With(applogger.Component("notify.telegram")),
	}
}

func (t *Telegram) Send(ctx context.Context, destination string, n models.Notification) bool {
	if t.cfg.BotToken == "" {
		t.logger.Warn("telegram bot token not configured")
		return false
	}
	if destination == "" {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var resp apiResponse
	err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: "POST",
		URL:    t.endpoint("sendMessage"),
		Body: sendMessageRequest{
			ChatID:    destination,
			Text:      FormatMessage(n),
			ParseMode: t.cfg.ParseMode,
		},
	}, &resp)
	t.metrics.RecordLatency("telegram_send", time.Since(start).Seconds())

	if err == nil && !resp.OK {
		err = fmt.Errorf("gateway rejected message: %s", resp.Description)
	}
	if err != nil {
		t.logger.Warn("telegram send failed",
			applogger.String("chat_id", destination),
			applogger.String("symbol", n.Instrument.String()),
			applogger.Error(describe(err)))
		return false
	}
	return true
}

// Verify checks the bot token with getMe.
func (t *Telegram) Verify(ctx context.Context) error {
	if t.cfg.BotToken == "" {
		return errors.New("telegram bot token not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	var resp apiResponse
	if err := t.client.SendAndParse(ctx, &xhttp.RequestOptions{Method: "GET", URL: t.endpoint("getMe")}, &resp); err != nil {
		return fmt.Errorf("telegram getMe: %w", describe(err))
	}
	if !resp.OK {
		return fmt.Errorf("telegram getMe: %s", resp.Description)
	}
	return nil
}

func (t *Telegram) endpoint(method string) string {
	return t.cfg.BaseURL + "/bot" + t.cfg.BotToken + "/" + method
}

// describe keeps the bot token out of logs; url errors embed the full URL.
func describe(err error) error {
	if se, ok := xhttp.AsStatusError(err); ok {
		return se
	}
	if xhttp.IsTimeout(err) {
		return errors.New("timeout")
	}
	return errors.New(redact(err.Error()))
}

func redact(s string) string {
	i := strings.Index(s, "/bot")
	if i < 0 {
		return s
	}
	j := strings.IndexByte(s[i+4:], '/')
	if j < 0 {
		return s[:i] + "/bot***"
	}
	return s[:i] + "/bot***" + s[i+4+j:]
}

// FormatMessage renders a notification as Telegram Markdown.
func FormatMessage(n models.Notification) string {
	var b strings.Builder
	b.WriteString("🔔 *Price Alert Triggered*\n\n")
	fmt.Fprintf(&b, "*Symbol:* %s\n", n.Instrument.String())
	fmt.Fprintf(&b, "*Asset Type:* %s\n", strings.ToUpper(string(n.Instrument.Segment)))
	fmt.Fprintf(&b, "*Alert Type:* %s\n", strings.ToUpper(strings.ReplaceAll(string(n.Kind), "_", " ")))
	if n.TargetPrice != 0 {
		fmt.Fprintf(&b, "*Target Price:* $%.4f\n", n.TargetPrice)
	}
	if n.CurrentPrice != 0 {
		fmt.Fprintf(&b, "*Current Price:* $%.4f\n", n.CurrentPrice)
	}
	if n.Degraded {
		b.WriteString("_Price taken from cache, upstream unavailable_\n")
	}
	if n.Message != "" {
		fmt.Fprintf(&b, "\n*Message:* %s\n", n.Message)
	}
	fmt.Fprintf(&b, "\n_Generated at %s_", n.GeneratedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	return b.String()
}
