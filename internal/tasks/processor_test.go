package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymhub/api/internal/queue"
)

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func message(t *testing.T, event queue.Event) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return redis.XMessage{ID: "1-0", Values: map[string]interface{}{
		"type":    string(event.Type),
		"payload": string(payload),
	}}
}

func TestProcessorSendsAdminWelcome(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(sender, "https://app.gymhub.test/login", zerolog.Nop())

	err := p.Handle(context.Background(), message(t, queue.Event{
		Type:      queue.EventAdminProvisioned,
		Recipient: "owner@example.com",
		Data:      map[string]string{"name": "Dana", "planName": "Pro"},
	}))
	require.NoError(t, err)

	require.Len(t, sender.sent, 1)
	mail := sender.sent[0]
	assert.Equal(t, "owner@example.com", mail.to)
	assert.Contains(t, mail.body, "Dana")
	assert.Contains(t, mail.body, "Pro plan")
	assert.Contains(t, mail.body, "https://app.gymhub.test/login")
}

func TestProcessorRendersEveryEventType(t *testing.T) {
	p := NewProcessor(&fakeSender{}, "", zerolog.Nop())
	for _, typ := range []queue.EventType{
		queue.EventAdminProvisioned,
		queue.EventGymCreated,
		queue.EventMFAEnabled,
		queue.EventMFADisabled,
		queue.EventPasswordChanged,
	} {
		subject, body, ok := p.render(queue.Event{Type: typ})
		assert.True(t, ok, typ)
		assert.NotEmpty(t, subject, typ)
		assert.NotEmpty(t, body, typ)
	}
}

func TestProcessorReturnsSendErrorsForRetry(t *testing.T) {
	p := NewProcessor(&fakeSender{err: errors.New("dial tcp: refused")}, "", zerolog.Nop())

	err := p.Handle(context.Background(), message(t, queue.Event{Type: queue.EventGymCreated, Recipient: "a@example.com"}))
	assert.Error(t, err)
}

func TestProcessorDropsUnusableMessages(t *testing.T) {
	sender := &fakeSender{}
	p := NewProcessor(sender, "", zerolog.Nop())

	assert.NoError(t, p.Handle(context.Background(), redis.XMessage{ID: "1-0", Values: map[string]interface{}{"type": "x"}}))
	assert.NoError(t, p.Handle(context.Background(), message(t, queue.Event{Type: "unknown", Recipient: "a@example.com"})))
	assert.NoError(t, p.Handle(context.Background(), message(t, queue.Event{Type: queue.EventMFAEnabled})))
	assert.Empty(t, sender.sent)
}
