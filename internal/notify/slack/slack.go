// Package slack delivers notify events to a Slack channel.
package slack

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/zulandar/soundcheck/internal/notify"
)

// maxRetries is the max number of retries for rate-limited API calls.
const maxRetries = 3

// poster abstracts the Slack API method we use, enabling test mocks.
type poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts events to one Slack channel.
type Sink struct {
	client  poster
	channel string
}

// Opts holds parameters for creating a Sink.
type Opts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string
	// For testing: inject a mock client instead of the real Slack API.
	Client poster
}

// New creates a Slack Sink.
func New(opts Opts) (*Sink, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("slack: bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("slack: channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Sink{client: client, channel: opts.Channel}, nil
}

func (s *Sink) Name() string { return "slack" }

// Deliver posts ev as a message with one attachment.
func (s *Sink) Deliver(ctx context.Context, ev notify.Event) error {
	msg := notify.Format(ev)
	options := buildMessageOptions(msg)
	err := retryOnRateLimit(ctx, func() error {
		_, _, postErr := s.client.PostMessageContext(ctx, s.channel, options...)
		return postErr
	})
	if err != nil {
		return fmt.Errorf("slack: post message: %w", err)
	}
	return nil
}

func buildMessageOptions(msg notify.Message) []slackapi.MsgOption {
	att := slackapi.Attachment{
		Title:    msg.Title,
		Text:     msg.Body,
		Color:    msg.Color,
		Fallback: msg.Title,
	}
	for _, f := range msg.Fields {
		att.Fields = append(att.Fields, slackapi.AttachmentField{
			Title: f.Name,
			Value: f.Value,
			Short: f.Short,
		})
	}
	return []slackapi.MsgOption{
		slackapi.MsgOptionText(msg.Title, false),
		slackapi.MsgOptionAttachments(att),
	}
}

// retryOnRateLimit retries fn while Slack answers with a rate limit.
func retryOnRateLimit(ctx context.Context, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		var rle *slackapi.RateLimitedError
		if !errors.As(err, &rle) {
			return err
		}
		if attempt == maxRetries {
			return err
		}

		wait := rle.RetryAfter
		if wait <= 0 {
			wait = time.Duration(math.Pow(2, float64(attempt))) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
