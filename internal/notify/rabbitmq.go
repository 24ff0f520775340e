package notify

import "context"

type publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
}

// RabbitSink publishes each event to the bookings exchange, routed by type.
type RabbitSink struct {
	pub publisher
}

func NewRabbitSink(pub publisher) *RabbitSink {
	return &RabbitSink{pub: pub}
}

func (s *RabbitSink) Notify(ctx context.Context, ev Event) error {
	return s.pub.Publish(ctx, string(ev.Type), ev)
}
