package deliver

import (
	"context"

	"newsgate/internal/event"
	logx "newsgate/pkg/logx"
)

// Log writes alerts to the logger instead of a real channel. It backs
// dry runs and local development; every delivery succeeds.
type Log struct {
	log logx.Logger
}

func NewLog(log logx.Logger) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log}
}

func (l *Log) Deliver(_ context.Context, a event.Alert) event.Outcome {
	l.log.Info("alert",
		logx.String("item_id", a.ItemID),
		logx.String("ticker", a.Ticker),
		logx.String("title", a.Title),
		logx.String("url", a.URL),
	)
	return success(a.ItemID)
}
