package ports

import "route-optimizer-service/internal/domain"

// Port: fan-out of route updates to presentation collaborators.
// Topic identifies one session's stream.
type UpdatePublisher interface {
	Publish(topic string, update domain.RouteUpdate)
}

// Subscribers receive the latest update only; intermediate updates may be
// dropped when the consumer is slow. The returned func releases the subscription.
type UpdateSubscriber interface {
	Subscribe(topic string) (<-chan domain.RouteUpdate, func(), error)
}

type UpdateBroker interface {
	UpdatePublisher
	UpdateSubscriber
}
