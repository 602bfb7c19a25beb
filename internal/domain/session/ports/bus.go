package ports

import "context"

// Bus carries state-change events from the manager to inbound adapters.
type Bus interface {
	Publish(ctx context.Context, topic string, event interface{}) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Subscription interface {
	C() <-chan interface{}
	Close() error
}

// TopicJibriState carries model.JibriState values.
const TopicJibriState = "jibri.state"
