package registry

import "github.com/DeBrosOfficial/cogmesh/pkg/protocol"

// Topic is a named, typed channel owned by the node.
type Topic struct {
	ID   string
	Type string

	onSub     SubscriberHandler
	subs      []*Subscriber
	persisted *Payload

	// lost counts subscribers dropped with their link since the last
	// publish. The next publish reports them as unreached.
	lost int
}

// Info returns the topic's id and type.
func (t *Topic) Info() protocol.TopicInfo {
	return protocol.TopicInfo{ID: t.ID, Type: t.Type}
}

// OnSubscriber returns the handler registered with the topic, or nil.
func (t *Topic) OnSubscriber() SubscriberHandler { return t.onSub }

// Count returns the number of attached subscribers.
func (t *Topic) Count() int { return len(t.subs) }

// Subscribers returns the attached subscribers in attach order.
func (t *Topic) Subscribers() []*Subscriber {
	out := make([]*Subscriber, len(t.subs))
	copy(out, t.subs)
	return out
}

// Lost returns the number of subscribers dropped with their link that no
// publish has reported yet.
func (t *Topic) Lost() int { return t.lost }

// Persisted returns the stored payload, if any.
func (t *Topic) Persisted() (Payload, bool) {
	if t.persisted == nil {
		return Payload{}, false
	}
	return *t.persisted, true
}

// Seed fills the persisted slot from durable storage. A payload persisted
// after p was stored wins; Seed reports whether the slot changed.
func (t *Topic) Seed(p Payload) bool {
	if t.persisted != nil && !t.persisted.Time.Before(p.Time) {
		return false
	}
	p.Topic = t.ID
	p.Persisted = true
	t.persisted = &p
	return true
}

func (t *Topic) attach(s *Subscriber) { t.subs = append(t.subs, s) }

func (t *Topic) detach(id uint64) bool {
	for i, s := range t.subs {
		if s.ID == id {
			t.subs = append(t.subs[:i], t.subs[i+1:]...)
			return true
		}
	}
	return false
}
