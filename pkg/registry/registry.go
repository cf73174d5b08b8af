package registry

import (
	"sort"
	"time"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

// Registry maps topic ids to the topics a node owns.
type Registry struct {
	topics map[string]*Topic
	nextID uint64
	now    func() time.Time
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		topics: make(map[string]*Topic),
		now:    time.Now,
	}
}

// Register creates an empty topic. It fails with DUPLICATE_TOPIC when id is
// already registered.
func (r *Registry) Register(id, typ string, onSub SubscriberHandler) (*Topic, error) {
	if id == "" {
		return nil, errors.NewValidationError("topic", "topic id must not be empty", id)
	}
	if _, exists := r.topics[id]; exists {
		return nil, errors.NewDuplicateTopicError(id)
	}
	t := &Topic{ID: id, Type: typ, onSub: onSub}
	r.topics[id] = t
	return t, nil
}

// Get returns the topic registered under id.
func (r *Registry) Get(id string) (*Topic, bool) {
	t, ok := r.topics[id]
	return t, ok
}

// Count returns the subscriber count of id, 0 for unknown topics.
func (r *Registry) Count(id string) int {
	if t, ok := r.topics[id]; ok {
		return t.Count()
	}
	return 0
}

// Len returns the number of registered topics.
func (r *Registry) Len() int { return len(r.topics) }

// Topics lists the owned topics sorted by id.
func (r *Registry) Topics() []protocol.TopicInfo {
	out := make([]protocol.TopicInfo, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Attach adds a subscriber to topic id and assigns it an id. The caller is
// responsible for reporting the attach to the topic's SubscriberHandler.
func (r *Registry) Attach(id string, kind SubscriberKind, origin string, deliver func(Payload) error) (*Topic, *Subscriber, error) {
	t, ok := r.topics[id]
	if !ok {
		return nil, nil, errors.NewUnknownTopicError(id)
	}
	r.nextID++
	s := &Subscriber{ID: r.nextID, Kind: kind, Origin: origin, Deliver: deliver}
	t.attach(s)
	return t, s, nil
}

// Detach removes subscriber sub from topic id.
func (r *Registry) Detach(id string, sub uint64) bool {
	t, ok := r.topics[id]
	if !ok {
		return false
	}
	return t.detach(sub)
}

// Lose detaches subscriber sub from topic id because its link went down.
// Unlike Detach, the loss is reported by the topic's next publish.
func (r *Registry) Lose(id string, sub uint64) bool {
	t, ok := r.topics[id]
	if !ok || !t.detach(sub) {
		return false
	}
	t.lost++
	return true
}

// PublishResult reports how a publish went.
type PublishResult struct {
	Delivered int

	// Pruned are the subscribers whose delivery failed. They have already
	// been detached.
	Pruned []*Subscriber

	// Lost counts subscribers whose link went down before this publish.
	Lost int
}

// Failed returns the number of subscribers the publish could not reach.
func (res PublishResult) Failed() int { return len(res.Pruned) + res.Lost }

// Err returns a LINK_DOWN delivery error when any subscriber was unreachable.
func (res PublishResult) Err(topic string) error {
	if res.Failed() == 0 {
		return nil
	}
	return errors.NewDeliveryError(topic, res.Delivered, res.Failed())
}

// Publish delivers data to every subscriber of id independently. A failed
// delivery prunes that subscriber only. When persist is set the payload
// replaces the topic's persisted slot before delivery.
func (r *Registry) Publish(id string, data []byte, origin string, persist bool) (PublishResult, error) {
	t, ok := r.topics[id]
	if !ok {
		return PublishResult{}, errors.NewUnknownTopicError(id)
	}

	p := Payload{
		Topic:     id,
		Data:      data,
		Origin:    origin,
		Persisted: persist,
		Time:      r.now(),
	}
	if persist {
		stored := p
		t.persisted = &stored
	}

	res := PublishResult{Lost: t.lost}
	t.lost = 0
	for _, s := range t.Subscribers() {
		if err := s.Deliver(p); err != nil {
			t.detach(s.ID)
			res.Pruned = append(res.Pruned, s)
			continue
		}
		res.Delivered++
	}
	return res, nil
}

// Reset drops every topic and returns them so the caller can release their
// subscribers.
func (r *Registry) Reset() []*Topic {
	out := make([]*Topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	r.topics = make(map[string]*Topic)
	return out
}
