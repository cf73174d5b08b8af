package protocol

import (
	"fmt"
	"time"
)

// FrameType identifies a link frame.
type FrameType string

const (
	// FrameSubscribe extends a chain one hop toward its topic.
	FrameSubscribe FrameType = "subscribe"
	// FrameSubAck confirms (or refuses) a chain from the target side.
	FrameSubAck FrameType = "sub_ack"
	// FrameUnsubscribe tears a chain down toward the target.
	FrameUnsubscribe FrameType = "unsubscribe"
	// FrameSubClosed tells the subscriber side a chain is gone.
	FrameSubClosed FrameType = "sub_closed"
	// FramePayload carries a published payload back along a chain.
	FramePayload FrameType = "payload"
	// FramePublishAt publishes on a topic addressed by path.
	FramePublishAt FrameType = "publish_at"
	// FrameQuery asks the addressed node to describe itself.
	FrameQuery FrameType = "query"
	// FrameQueryResult answers a query along the reverse route.
	FrameQueryResult FrameType = "query_result"
)

// Frame is the single envelope exchanged on links. Which fields are set
// depends on Type.
type Frame struct {
	Type FrameType `json:"type" cbor:"type"`
	// Chain is the chain id for subscription frames and the request id for
	// query frames. Ids are scoped to one link.
	Chain     string     `json:"chain,omitempty" cbor:"chain,omitempty"`
	Path      string     `json:"path,omitempty" cbor:"path,omitempty"`
	Origin    string     `json:"origin,omitempty" cbor:"origin,omitempty"`
	Topic     string     `json:"topic,omitempty" cbor:"topic,omitempty"`
	Data      []byte     `json:"data,omitempty" cbor:"data,omitempty"`
	Persisted bool       `json:"persisted,omitempty" cbor:"persisted,omitempty"`
	Timestamp int64      `json:"ts,omitempty" cbor:"ts,omitempty"` // unix milliseconds
	Code      string     `json:"code,omitempty" cbor:"code,omitempty"`
	Reason    string     `json:"reason,omitempty" cbor:"reason,omitempty"`
	Info      *QueryInfo `json:"info,omitempty" cbor:"info,omitempty"`
}

// Validate checks the fields each frame type needs.
func (f *Frame) Validate() error {
	switch f.Type {
	case FrameSubscribe, FrameQuery, FrameSubAck, FrameUnsubscribe, FrameSubClosed:
		if f.Chain == "" {
			return fmt.Errorf("%s frame without chain id", f.Type)
		}
	case FramePayload:
		if f.Chain == "" || f.Topic == "" {
			return fmt.Errorf("payload frame without chain or topic")
		}
	case FramePublishAt:
		if f.Path == "" {
			return fmt.Errorf("publish_at frame without path")
		}
	case FrameQueryResult:
		if f.Chain == "" || f.Info == nil {
			return fmt.Errorf("query_result frame without id or info")
		}
	default:
		return fmt.Errorf("unknown frame type %q", f.Type)
	}
	return nil
}

// Time returns the frame timestamp.
func (f *Frame) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

// TopicInfo names a topic and its type tag.
type TopicInfo struct {
	ID   string `json:"id" cbor:"id"`
	Type string `json:"type" cbor:"type"`
}

// QueryInfo describes the node (or topic) a query path resolved to.
// When Success is false only Path is meaningful.
type QueryInfo struct {
	Success  bool        `json:"success" cbor:"success"`
	Path     string      `json:"path" cbor:"path"`
	SelfID   string      `json:"self_id,omitempty" cbor:"self_id,omitempty"`
	ParentID string      `json:"parent_id,omitempty" cbor:"parent_id,omitempty"`
	Name     string      `json:"name,omitempty" cbor:"name,omitempty"`
	Type     string      `json:"type,omitempty" cbor:"type,omitempty"`
	Children []string    `json:"children,omitempty" cbor:"children,omitempty"`
	Topics   []TopicInfo `json:"topics,omitempty" cbor:"topics,omitempty"`
	Error    string      `json:"error,omitempty" cbor:"error,omitempty"`
}

// HasTopic reports whether the described node owns id with type typ.
func (q QueryInfo) HasTopic(id, typ string) bool {
	for _, t := range q.Topics {
		if t.ID == id && t.Type == typ {
			return true
		}
	}
	return false
}

// Failed returns a failed QueryInfo that keeps the requested path.
func Failed(path string, err error) QueryInfo {
	info := QueryInfo{Path: path}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}
