// internal/domain/mail/client.go
package mail

import (
	"context"

	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
)

// Message is a rendered email ready for a transport.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Composer renders the email for one member delivery.
type Composer interface {
	Build(ctx context.Context, d *mission.MemberDelivery, recipient *squad.Member) (*Message, error)
}

// Transport hands a message to the mail server.
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}
