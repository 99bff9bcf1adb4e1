package deliver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
	"golang.org/x/time/rate"

	"newsgate/internal/event"
	logx "newsgate/pkg/logx"
)

type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
	// RatePerSec bounds sends toward the Bot API. Default 3.
	RatePerSec int
}

// Telegram delivers alerts to one chat (optionally a forum topic thread).
type Telegram struct {
	bot      *tele.Bot
	chat     *tele.Chat
	threadID int
	limiter  *rate.Limiter
	log      logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 3
	}

	b, err := tele.NewBot(tele.Settings{Token: cfg.Token})
	if err != nil {
		return nil, err
	}
	return &Telegram{
		bot:      b,
		chat:     &tele.Chat{ID: cfg.ChatID},
		threadID: cfg.ThreadID,
		limiter:  rate.NewLimiter(rate.Limit(rps), rps),
		log:      log,
	}, nil
}

// SetRate retunes the send limiter without recreating the bot session.
func (t *Telegram) SetRate(perSec int) {
	if perSec <= 0 {
		perSec = 3
	}
	t.limiter.SetLimit(rate.Limit(perSec))
	t.limiter.SetBurst(perSec)
}

// Deliver sends one alert. Rate limiting honors ctx cancellation; the send
// itself is bounded by the caller's ctx deadline.
func (t *Telegram) Deliver(ctx context.Context, a event.Alert) event.Outcome {
	if err := t.limiter.Wait(ctx); err != nil {
		return failure(a.ItemID, Transient(err))
	}

	opts := &tele.SendOptions{DisableWebPagePreview: true}
	if t.threadID != 0 {
		opts.ThreadID = t.threadID
	}
	_, err := t.bot.Send(t.chat, renderAlert(a), opts)
	if err != nil {
		return failure(a.ItemID, classifyTelegramErr(err))
	}
	return success(a.ItemID)
}

func renderAlert(a event.Alert) string {
	var b strings.Builder
	if a.Ticker != "" {
		fmt.Fprintf(&b, "[%s] ", a.Ticker)
	}
	b.WriteString(a.Title)
	if a.Score != 0 {
		fmt.Fprintf(&b, " (score %.2f)", a.Score)
	}
	if a.URL != "" {
		b.WriteString("\n")
		b.WriteString(a.URL)
	}
	return b.String()
}

// classifyTelegramErr maps Bot API failures onto the retry taxonomy.
// Flood control (429) and 5xx are transient; other 4xx mean the payload or
// target is bad and retrying would loop forever.
func classifyTelegramErr(err error) error {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Transient(err)
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != 429 {
			return Permanent(err)
		}
		return Transient(err)
	}
	// Network-level errors, timeouts, unknown shapes: retry next cycle.
	return Transient(err)
}
