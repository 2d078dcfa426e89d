package circuitbreaker

import "context"

// Sender is any outbound channel addressed by a recipient string (a phone number for SMS).
type Sender interface {
	Send(ctx context.Context, to, message string) error
	Name() string
}

// ProtectedSender routes Send through a breaker.
type ProtectedSender struct {
	sender  Sender
	breaker *Breaker
}

func Protect(s Sender, b *Breaker) *ProtectedSender {
	return &ProtectedSender{sender: s, breaker: b}
}

func (p *ProtectedSender) Send(ctx context.Context, to, message string) error {
	return p.breaker.Execute(ctx, func(ctx context.Context) error {
		return p.sender.Send(ctx, to, message)
	})
}

func (p *ProtectedSender) Name() string {
	return p.sender.Name()
}
