package alerts

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Provider delivers one alert event over one channel.
type Provider interface {
	Name() string
	Send(ctx context.Context, event Event) error
}

// Notifier fans an event out to every registered provider.
type Notifier struct {
	providers []Provider
}

// NewNotifier builds a notifier over the given providers.
func NewNotifier(providers ...Provider) *Notifier {
	return &Notifier{providers: providers}
}

// Dispatch sends the event to all providers and reports whether every
// one of them succeeded. Partial failure still counts as not sent so
// the budget is only consumed for deliveries the user actually saw on
// every channel.
func (n *Notifier) Dispatch(ctx context.Context, event Event) bool {
	if len(n.providers) == 0 {
		return false
	}
	ok := true
	for _, p := range n.providers {
		if err := p.Send(ctx, event); err != nil {
			log.Error().Err(err).
				Str("provider", p.Name()).
				Str("rule_id", event.RuleID).
				Str("symbol", event.Symbol).
				Msg("Notification delivery failed")
			ok = false
		}
	}
	return ok
}

// ConsoleProvider logs deliveries. Used in development and as the
// fallback channel when push is not configured.
type ConsoleProvider struct{}

func (ConsoleProvider) Name() string { return "console" }

func (ConsoleProvider) Send(_ context.Context, event Event) error {
	log.Info().
		Str("rule_id", event.RuleID).
		Str("symbol", event.Symbol).
		Str("priority", string(event.Priority)).
		Float64("value", event.Value).
		Float64("threshold", event.Threshold).
		Strs("chips", event.Chips).
		Msg(event.Message)
	return nil
}

// PushSender abstracts the vendor push client so tests can capture
// payloads without network access.
type PushSender interface {
	Push(ctx context.Context, token string, payload map[string]interface{}) error
}

// TokenResolver maps a rule's user to registered device tokens.
type TokenResolver interface {
	Tokens(ctx context.Context, userID string) ([]string, error)
}

// FCMProvider shapes events into FCM-style push payloads: notification
// title/body, a data map for client routing, a collapse key so newer
// alerts for the same rule replace unread ones, and channel priority
// mapped from rule priority.
type FCMProvider struct {
	sender   PushSender
	resolver TokenResolver
	userID   func(event Event) string
}

// NewFCMProvider builds a push provider. userID extracts the owning
// user from the event payload.
func NewFCMProvider(sender PushSender, resolver TokenResolver, userID func(Event) string) *FCMProvider {
	return &FCMProvider{sender: sender, resolver: resolver, userID: userID}
}

func (FCMProvider) Name() string { return "fcm" }

// BuildPayload is exported for payload-shape tests.
func (p *FCMProvider) BuildPayload(event Event) map[string]interface{} {
	androidPriority := "normal"
	if event.Priority == PriorityHigh {
		androidPriority = "high"
	}
	return map[string]interface{}{
		"notification": map[string]interface{}{
			"title": fmt.Sprintf("%s alert", event.Symbol),
			"body":  event.Message,
		},
		"data": map[string]string{
			"rule_id":  event.RuleID,
			"symbol":   event.Symbol,
			"event_id": event.ID,
			"priority": string(event.Priority),
		},
		"android": map[string]interface{}{
			"collapse_key": event.CollapseKey(),
			"priority":     androidPriority,
		},
	}
}

func (p *FCMProvider) Send(ctx context.Context, event Event) error {
	uid := p.userID(event)
	tokens, err := p.resolver.Tokens(ctx, uid)
	if err != nil {
		return fmt.Errorf("resolve tokens for user %s: %w", uid, err)
	}
	if len(tokens) == 0 {
		log.Debug().Str("user", uid).Msg("No push tokens registered, skipping push")
		return nil
	}

	payload := p.BuildPayload(event)
	var lastErr error
	for _, token := range tokens {
		if err := p.sender.Push(ctx, token, payload); err != nil {
			lastErr = fmt.Errorf("push to device: %w", err)
		}
	}
	return lastErr
}
