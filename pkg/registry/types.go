// Package registry holds the topics a node owns: their subscriber lists and
// the single persisted payload slot of each topic.
//
// A Registry is owned by one node event loop and is not safe for concurrent
// use. Subscriber delivery functions are called on that loop and must not
// block.
package registry

import "time"

// Payload is one published message as seen by a subscriber.
type Payload struct {
	Topic string
	Data  []byte
	// Origin is the selfId of the node that published.
	Origin    string
	Persisted bool
	Time      time.Time
}

// SubInfo is reported to a topic's owner each time a subscriber attaches.
type SubInfo struct {
	Topic string
	// Origin is the selfId of the node whose subscription attached.
	Origin string
}

// SubscriberHandler is notified when a subscriber attaches to a topic.
type SubscriberHandler func(SubInfo)

// SubscriberKind tells local callback subscribers from forwarded chains.
type SubscriberKind int

const (
	// LocalSubscriber delivers to a callback on this node.
	LocalSubscriber SubscriberKind = iota
	// RelaySubscriber forwards payloads back along an inbound chain.
	RelaySubscriber
)

func (k SubscriberKind) String() string {
	if k == RelaySubscriber {
		return "relay"
	}
	return "local"
}

// Subscriber is one Active subscription terminating on a topic.
type Subscriber struct {
	ID     uint64
	Kind   SubscriberKind
	Origin string
	// Deliver hands a payload toward the subscriber. An error means the
	// subscriber is unreachable; the topic prunes it.
	Deliver func(Payload) error
}
