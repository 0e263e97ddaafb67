package tasks

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"gymhub/api/internal/queue"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Processor turns notification events into emails.
type Processor struct {
	sender   Sender
	loginURL string
	logger   zerolog.Logger
}

func NewProcessor(sender Sender, loginURL string, logger zerolog.Logger) *Processor {
	return &Processor{
		sender:   sender,
		loginURL: loginURL,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	event, err := queue.DecodeEvent(msg.Values)
	if err != nil {
		// Undecodable messages would be retried forever; drop them.
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("discarding malformed notification")
		return nil
	}

	subject, body, ok := p.render(event)
	if !ok {
		p.logger.Warn().Str("type", string(event.Type)).Msg("unknown notification type")
		return nil
	}
	if event.Recipient == "" {
		p.logger.Warn().Str("type", string(event.Type)).Str("message_id", msg.ID).Msg("notification without recipient")
		return nil
	}

	if err := p.sender.Send(ctx, event.Recipient, subject, body); err != nil {
		return err
	}
	p.logger.Info().
		Str("type", string(event.Type)).
		Str("message_id", msg.ID).
		Msg("notification sent")
	return nil
}

func (p *Processor) render(event queue.Event) (string, string, bool) {
	name := event.Data["name"]
	if name == "" {
		name = "there"
	}

	switch event.Type {
	case queue.EventAdminProvisioned:
		return "Your GymHub administrator account",
			fmt.Sprintf("Hi %s,\n\nA GymHub administrator account has been created for %s on the %s plan.\n"+
				"Your platform contact will share your temporary password with you. Sign in at %s and change it right away.\n",
				name, event.Recipient, event.Data["planName"], p.loginURL), true
	case queue.EventGymCreated:
		return "Your gym is ready",
			fmt.Sprintf("Hi %s,\n\n%s has been created. You can now add branches, staff and members at %s.\n",
				name, event.Data["gymName"], p.loginURL), true
	case queue.EventMFAEnabled:
		return "Two-factor authentication enabled",
			fmt.Sprintf("Hi %s,\n\nTwo-factor authentication is now enabled on your account. "+
				"Store your backup codes somewhere safe.\n", name), true
	case queue.EventMFADisabled:
		return "Two-factor authentication disabled",
			fmt.Sprintf("Hi %s,\n\nTwo-factor authentication was disabled on your account. "+
				"If this was not you, reset your password immediately.\n", name), true
	case queue.EventPasswordChanged:
		return "Your password was changed",
			fmt.Sprintf("Hi %s,\n\nYour GymHub password was changed and all other sessions were signed out. "+
				"If this was not you, contact support.\n", name), true
	default:
		return "", "", false
	}
}
