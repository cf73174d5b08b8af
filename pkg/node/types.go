package node

import (
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
	"github.com/DeBrosOfficial/cogmesh/pkg/registry"
)

// Payload is a published message delivered to a subscriber.
type Payload = registry.Payload

// SubInfo reports a subscriber attaching to a topic this node owns.
type SubInfo = registry.SubInfo

// QueryInfo describes the node or topic a query path resolved to.
type QueryInfo = protocol.QueryInfo

// TopicInfo is a (topicId, type) pair.
type TopicInfo = protocol.TopicInfo

// SubscriberHandler is a streaming callback: it fires once per subscriber
// attaching to the topic, for as long as the topic is registered.
type SubscriberHandler = registry.SubscriberHandler

// PayloadHandler is a streaming callback: it fires for every payload on the
// subscription until Unsubscribe or until the subscription fails.
type PayloadHandler func(Payload)

// QueryHandler is a one-shot callback: it fires exactly once per accepted
// Query, with Success=false when the path could not be resolved or a link
// failed on the way.
type QueryHandler func(QueryInfo)

// SubState is the lifecycle stage of a subscription.
type SubState int

const (
	// Pending subscriptions wait for the chain to be confirmed.
	Pending SubState = iota
	// Active subscriptions receive payloads.
	Active
	// Failed subscriptions lost their chain. Failed is terminal; subscribe
	// again to recover.
	Failed
)

func (s SubState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Active:
		return "active"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// NodeType is the QueryInfo type reported for a node target.
const NodeType = "node"
