package node

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/address"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
	"github.com/DeBrosOfficial/cogmesh/pkg/registry"
)

// routeKey identifies a forwarded chain: every consumer that needs the same
// remaining path over the same link shares one route.
type routeKey struct {
	link string
	rest string
}

// route is a chain this node opened toward a remote topic. Its consumers are
// local subscriptions and inbound chains relayed through this node.
type route struct {
	key    routeKey
	chain  string
	peer   *peer
	origin string
	state  SubState
	topic  string
	// last is the latest persisted payload seen on the chain, replayed to
	// consumers that join after activation.
	last   *Payload
	locals []*subscription
	relays []*inbound
}

func (r *route) idle() bool { return len(r.locals) == 0 && len(r.relays) == 0 }

// subscription is one Subscribe call. It terminates either on a local topic
// (topic, subID) or on a route.
type subscription struct {
	path    string
	handler PayloadHandler
	state   SubState
	topic   string
	subID   uint64
	route   *route
}

// inbound is a chain a peer opened on this node. It terminates either on a
// local topic (topic, subID) or continues on a route.
type inbound struct {
	peer   *peer
	chain  string
	origin string
	topic  string
	subID  uint64
	route  *route
}

func (c *core) peerFor(step address.Step) *peer {
	switch step.Hop {
	case address.HopParent:
		return c.parent
	case address.HopChild:
		return c.children[step.Child]
	default:
		return nil
	}
}

func (c *core) subscribe(path string, h PayloadHandler) error {
	step, err := address.Parse(path).Resolve(c, address.TopicMode)
	if err != nil {
		return err
	}

	sub := &subscription{path: path, handler: h}

	if step.Local() {
		topic, s, err := c.topics.Attach(step.Target, registry.LocalSubscriber, c.selfID, c.localDelivery(sub))
		if err != nil {
			return err
		}
		sub.topic, sub.subID, sub.state = topic.ID, s.ID, Active
		c.addSub(sub)
		c.notifySubscriber(topic, c.selfID)
		if p, ok := topic.Persisted(); ok {
			c.deliver(sub, p)
		}
		return nil
	}

	r, err := c.openRoute(c.peerFor(step), step.Rest.String(), c.selfID)
	if err != nil {
		return err
	}
	sub.route, sub.state = r, r.state
	r.locals = append(r.locals, sub)
	c.addSub(sub)
	if r.state == Active && r.last != nil {
		c.deliver(sub, *r.last)
	}

	c.logger.ComponentDebug(logging.ComponentRouter, "Subscribed over link",
		zap.String("path", path),
		zap.String("via", r.peer.remote()),
		zap.String("chain", r.chain),
		zap.Int("consumers", len(r.locals)+len(r.relays)))
	return nil
}

func (c *core) unsubscribe(path string) error {
	subs := c.subs[path]
	if len(subs) == 0 {
		return errors.WithCode(errors.CodeNoRoute, fmt.Sprintf("no active subscription for %q", path), nil)
	}
	sub := subs[0]
	c.removeSub(sub)

	if sub.route == nil {
		c.topics.Detach(sub.topic, sub.subID)
		return nil
	}
	r := sub.route
	r.locals = without(r.locals, sub)
	c.releaseRoute(r)
	return nil
}

func (c *core) subscriptionState(path string) (SubState, bool) {
	if subs := c.subs[path]; len(subs) > 0 {
		return subs[0].state, true
	}
	if _, failed := c.failed[path]; failed {
		return Failed, true
	}
	return Pending, false
}

func (c *core) addSub(sub *subscription) {
	c.subs[sub.path] = append(c.subs[sub.path], sub)
	delete(c.failed, sub.path)
}

func (c *core) removeSub(sub *subscription) {
	subs := without(c.subs[sub.path], sub)
	if len(subs) == 0 {
		delete(c.subs, sub.path)
		return
	}
	c.subs[sub.path] = subs
}

func (c *core) localDelivery(sub *subscription) func(Payload) error {
	return func(p Payload) error {
		c.deliver(sub, p)
		return nil
	}
}

func (c *core) deliver(sub *subscription, p Payload) {
	h := sub.handler
	c.dispatch(func() { h(p) })
}

func (c *core) notifySubscriber(t *registry.Topic, origin string) {
	h := t.OnSubscriber()
	if h == nil {
		return
	}
	info := SubInfo{Topic: t.ID, Origin: origin}
	c.dispatch(func() { h(info) })
}

// openRoute returns the route for rest over p, creating it when none exists.
func (c *core) openRoute(p *peer, rest, origin string) (*route, error) {
	if p == nil {
		return nil, errors.NewLinkDownError("", nil)
	}
	key := routeKey{link: p.link.ID(), rest: rest}
	if r, ok := c.routes[key]; ok {
		return r, nil
	}

	r := &route{
		key:    key,
		chain:  uuid.NewString(),
		peer:   p,
		origin: origin,
		state:  Pending,
	}
	err := c.send(p, &protocol.Frame{
		Type:   protocol.FrameSubscribe,
		Chain:  r.chain,
		Path:   rest,
		Origin: origin,
	})
	if err != nil {
		return nil, errors.NewLinkDownError(p.remote(), err)
	}
	c.routes[key] = r
	p.routes[r.chain] = r
	return r, nil
}

// releaseRoute tears r down once nothing consumes it.
func (c *core) releaseRoute(r *route) {
	if !r.idle() {
		return
	}
	c.closeRoute(r)
	_ = c.send(r.peer, &protocol.Frame{Type: protocol.FrameUnsubscribe, Chain: r.chain})

	c.logger.ComponentDebug(logging.ComponentRouter, "Route released",
		zap.String("via", r.peer.remote()),
		zap.String("path", r.key.rest))
}

func (c *core) closeRoute(r *route) {
	if c.routes[r.key] == r {
		delete(c.routes, r.key)
	}
	delete(r.peer.routes, r.chain)
}

// failRoute ends a route whose chain is gone. Local subscriptions become
// Failed and relayed chains are closed downstream with the same code.
func (c *core) failRoute(r *route, code, reason string) {
	c.closeRoute(r)

	for _, sub := range r.locals {
		sub.state = Failed
		c.removeSub(sub)
		c.failed[sub.path] = struct{}{}
	}
	relays := r.relays
	r.locals, r.relays = nil, nil
	for _, in := range relays {
		delete(in.peer.inbound, in.chain)
		_ = c.send(in.peer, &protocol.Frame{
			Type:   protocol.FrameSubClosed,
			Chain:  in.chain,
			Code:   code,
			Reason: reason,
		})
	}

	c.logger.ComponentDebug(logging.ComponentRouter, "Route failed",
		zap.String("via", r.peer.remote()),
		zap.String("path", r.key.rest),
		zap.String("code", code),
		zap.String("reason", reason))
}

// activate marks a route Active and confirms it to relayed chains.
func (c *core) activate(r *route, topic string) {
	if r.state == Active {
		return
	}
	r.state = Active
	if topic != "" {
		r.topic = topic
	}
	for _, sub := range r.locals {
		sub.state = Active
	}
	for _, in := range append([]*inbound(nil), r.relays...) {
		_ = c.send(in.peer, &protocol.Frame{Type: protocol.FrameSubAck, Chain: in.chain, Topic: r.topic})
	}
}

func (c *core) handleSubscribe(p *peer, f *protocol.Frame) {
	if _, dup := p.inbound[f.Chain]; dup {
		return
	}
	in := &inbound{peer: p, chain: f.Chain, origin: f.Origin}

	step, err := address.Parse(f.Path).Resolve(c, address.TopicMode)
	if err != nil {
		c.refuse(p, f.Chain, err)
		return
	}

	if step.Local() {
		topic, s, err := c.topics.Attach(step.Target, registry.RelaySubscriber, f.Origin, c.relayDelivery(in))
		if err != nil {
			c.refuse(p, f.Chain, err)
			return
		}
		in.topic, in.subID = topic.ID, s.ID
		p.inbound[in.chain] = in
		c.relays[s.ID] = in

		c.logger.ComponentDebug(logging.ComponentRouter, "Forwarded subscriber attached",
			zap.String("topic", topic.ID),
			zap.String("origin", f.Origin),
			zap.String("via", p.remote()))

		_ = c.send(p, &protocol.Frame{Type: protocol.FrameSubAck, Chain: in.chain, Topic: topic.ID})
		c.notifySubscriber(topic, f.Origin)
		if pl, ok := topic.Persisted(); ok {
			_ = c.send(p, payloadFrame(in.chain, pl))
		}
		return
	}

	r, err := c.openRoute(c.peerFor(step), step.Rest.String(), f.Origin)
	if err != nil {
		c.refuse(p, f.Chain, err)
		return
	}
	in.route = r
	r.relays = append(r.relays, in)
	p.inbound[in.chain] = in

	if r.state == Active {
		_ = c.send(p, &protocol.Frame{Type: protocol.FrameSubAck, Chain: in.chain, Topic: r.topic})
		if r.last != nil {
			_ = c.send(p, payloadFrame(in.chain, *r.last))
		}
	}
}

func (c *core) refuse(p *peer, chain string, err error) {
	c.logger.ComponentDebug(logging.ComponentRouter, "Refusing forwarded subscription",
		zap.String("via", p.remote()),
		zap.Error(err))
	_ = c.send(p, &protocol.Frame{
		Type:   protocol.FrameSubClosed,
		Chain:  chain,
		Code:   errors.GetErrorCode(err),
		Reason: err.Error(),
	})
}

func (c *core) relayDelivery(in *inbound) func(Payload) error {
	return func(p Payload) error {
		return c.send(in.peer, payloadFrame(in.chain, p))
	}
}

func (c *core) handleSubAck(p *peer, f *protocol.Frame) {
	if r, ok := p.routes[f.Chain]; ok {
		c.activate(r, f.Topic)
	}
}

func (c *core) handlePayload(p *peer, f *protocol.Frame) {
	r, ok := p.routes[f.Chain]
	if !ok {
		return
	}
	c.activate(r, f.Topic)

	pl := Payload{
		Topic:     f.Topic,
		Data:      f.Data,
		Origin:    f.Origin,
		Persisted: f.Persisted,
		Time:      f.Time(),
	}
	if pl.Persisted {
		last := pl
		r.last = &last
	}

	for _, sub := range r.locals {
		c.deliver(sub, pl)
	}
	for _, in := range append([]*inbound(nil), r.relays...) {
		_ = c.send(in.peer, payloadFrame(in.chain, pl))
	}
}

func (c *core) handleUnsubscribe(p *peer, f *protocol.Frame) {
	if in, ok := p.inbound[f.Chain]; ok {
		c.dropInbound(in, false)
	}
}

func (c *core) handleSubClosed(p *peer, f *protocol.Frame) {
	r, ok := p.routes[f.Chain]
	if !ok {
		return
	}
	c.logger.ComponentInfo(logging.ComponentRouter, "Remote closed subscription",
		zap.String("via", p.remote()),
		zap.String("path", r.key.rest),
		zap.String("code", f.Code),
		zap.String("reason", f.Reason))
	c.failRoute(r, f.Code, f.Reason)
}

// dropInbound releases a chain a peer opened here: the topic loses a
// subscriber or the route it relayed into loses a consumer. A subscriber
// lost with its link is reported by the topic's next publish.
func (c *core) dropInbound(in *inbound, lost bool) {
	if cur, ok := in.peer.inbound[in.chain]; !ok || cur != in {
		return
	}
	delete(in.peer.inbound, in.chain)

	if in.route == nil {
		if lost {
			c.topics.Lose(in.topic, in.subID)
		} else {
			c.topics.Detach(in.topic, in.subID)
		}
		delete(c.relays, in.subID)
		return
	}
	r := in.route
	r.relays = without(r.relays, in)
	c.releaseRoute(r)
}

func payloadFrame(chain string, p Payload) *protocol.Frame {
	return &protocol.Frame{
		Type:      protocol.FramePayload,
		Chain:     chain,
		Topic:     p.Topic,
		Data:      p.Data,
		Origin:    p.Origin,
		Persisted: p.Persisted,
		Timestamp: p.Time.UnixMilli(),
	}
}

func without[T comparable](items []T, item T) []T {
	for i, it := range items {
		if it == item {
			return append(items[:i:i], items[i+1:]...)
		}
	}
	return items
}
