package client

import (
	"context"
	"errors"
	"io"
	"time"

	"studydesk/pkg/domain"
)

// State tracks where a send-and-poll interaction currently is.
type State string

const (
	StateIdle     State = "idle"
	StateSent     State = "sent"
	StatePolling  State = "polling"
	StateResolved State = "resolved"
	StateTimedOut State = "timed_out"
	StateFailed   State = "failed"
)

// ErrPollTimeout means the poll window elapsed without a new assistant
// message. It is recoverable: the reply may still land later, so callers
// should offer a retry rather than treat the chat as broken.
var ErrPollTimeout = errors.New("timed out waiting for assistant reply")

// ErrRetryExhausted means a bounded retry loop ran out of budget.
var ErrRetryExhausted = errors.New("retry budget exhausted")

// PollConfig controls the fixed-interval message poll.
type PollConfig struct {
	Interval time.Duration // spacing between polls, default 2s
	Timeout  time.Duration // total poll window, default 60s
}

func (cfg PollConfig) withDefaults() PollConfig {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return cfg
}

// MessagePoller sends one user message and polls for the persisted
// assistant reply. One poller handles one interaction; create a new one per
// send. Polls never overlap: the loop is a single timer-driven goroutine.
type MessagePoller struct {
	client *Client
	chatID string
	cfg    PollConfig
	state  State
}

// NewMessagePoller prepares a poller for one chat interaction.
func NewMessagePoller(c *Client, chatID string, cfg PollConfig) *MessagePoller {
	return &MessagePoller{
		client: c,
		chatID: chatID,
		cfg:    cfg.withDefaults(),
		state:  StateIdle,
	}
}

// State reports the current lifecycle state. Not safe for concurrent use
// with Send; observe it between calls or after Send returns.
func (p *MessagePoller) State() State {
	return p.state
}

// Send posts the message, drains the streamed reply, then polls the
// transcript until the assistant message is visible or the window elapses.
// The returned message is the persisted assistant reply. A timeout returns
// ErrPollTimeout with state TimedOut. Cancelling ctx stops the loop
// immediately without committing any client-side state.
func (p *MessagePoller) Send(ctx context.Context, content string) (domain.Message, error) {
	baseline, err := p.client.Messages(ctx, p.chatID)
	if err != nil {
		p.state = StateFailed
		return domain.Message{}, err
	}
	sentAt := time.Now()

	stream, err := p.client.SendMessage(ctx, p.chatID, content)
	if err != nil {
		p.state = StateFailed
		return domain.Message{}, err
	}
	p.state = StateSent
	// The stream is the live reply; persistence is confirmed by polling.
	// Draining keeps the connection healthy even if we ignore the bytes.
	_, copyErr := io.Copy(io.Discard, stream)
	stream.Close()
	_ = copyErr // a truncated stream is exactly what polling is for

	p.state = StatePolling
	msg, err := p.await(ctx, len(baseline), sentAt)
	switch {
	case err == nil:
		p.state = StateResolved
	case errors.Is(err, ErrPollTimeout):
		p.state = StateTimedOut
	default:
		p.state = StateFailed
	}
	return msg, err
}

// await re-fetches the transcript on a fixed interval until a new
// assistant message appears. Resolution requires either the message count
// to grow past baseline or an assistant message authored at or after
// sentAt.
func (p *MessagePoller) await(ctx context.Context, baseline int, sentAt time.Time) (domain.Message, error) {
	deadline := time.Now().Add(p.cfg.Timeout)
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		messages, err := p.client.Messages(ctx, p.chatID)
		if err == nil {
			if msg, ok := assistantReply(messages, baseline, sentAt); ok {
				return msg, nil
			}
		} else if ctx.Err() != nil {
			return domain.Message{}, ctx.Err()
		}
		// Transient fetch errors just wait for the next tick.
		if time.Now().After(deadline) {
			return domain.Message{}, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return domain.Message{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func assistantReply(messages []domain.Message, baseline int, sentAt time.Time) (domain.Message, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Sender != domain.SenderAssistant {
			continue
		}
		if len(messages) > baseline+1 || !msg.CreatedAt.Before(sentAt.Truncate(time.Second)) {
			return msg, true
		}
	}
	return domain.Message{}, false
}

// GenerateQuizRetry calls quiz generation repeatedly until it succeeds or
// the wall-clock budget runs out. Spacing between attempts is fixed. On
// exhaustion the last error is wrapped with ErrRetryExhausted.
func (c *Client) GenerateQuizRetry(ctx context.Context, chatID string, budget, spacing time.Duration) (domain.ClientQuiz, error) {
	if budget <= 0 {
		budget = 30 * time.Second
	}
	if spacing <= 0 {
		spacing = 2 * time.Second
	}
	deadline := time.Now().Add(budget)
	var lastErr error
	for {
		quiz, err := c.GenerateQuiz(ctx, chatID)
		if err == nil {
			return quiz, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return domain.ClientQuiz{}, ctx.Err()
		}
		if time.Now().Add(spacing).After(deadline) {
			return domain.ClientQuiz{}, errors.Join(ErrRetryExhausted, lastErr)
		}
		select {
		case <-ctx.Done():
			return domain.ClientQuiz{}, ctx.Err()
		case <-time.After(spacing):
		}
	}
}
