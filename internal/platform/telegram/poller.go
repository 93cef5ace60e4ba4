package telegram

import (
	"context"
	"time"

	"gptgate/internal/common/logger"
)

// Poller drives the getUpdates long-poll loop and hands each update to a
// handler. Handlers run in their own goroutines so one slow conversation
// never blocks the others.
type Poller struct {
	client  *Client
	timeout int
	offset  int64
}

func NewPoller(client *Client, timeoutSec int) *Poller {
	return &Poller{client: client, timeout: timeoutSec}
}

// Run polls until ctx is cancelled. Transient API failures are logged and
// retried after a short pause.
func (p *Poller) Run(ctx context.Context, handle func(ctx context.Context, upd Update)) error {
	for {
		updates, err := p.client.GetUpdates(ctx, p.offset, p.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error().Err(err).Msg("getUpdates failed")
			select {
			case <-time.After(3 * time.Second):
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		for _, upd := range updates {
			if upd.UpdateID >= p.offset {
				p.offset = upd.UpdateID + 1
			}
			go handle(ctx, upd)
		}
	}
}
