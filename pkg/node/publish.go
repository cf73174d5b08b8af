package node

import (
	"time"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/address"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
	"github.com/DeBrosOfficial/cogmesh/pkg/registry"
)

func (c *core) publish(topicID string, data []byte, origin string, persist bool) error {
	res, err := c.topics.Publish(topicID, data, origin, persist)
	if err != nil {
		return err
	}

	if persist {
		if t, ok := c.topics.Get(topicID); ok {
			if p, ok := t.Persisted(); ok {
				c.save(p)
			}
		}
	}

	if res.Failed() > 0 {
		c.prune(res.Pruned)
		c.logger.ComponentWarn(logging.ComponentRouter, "Publish missed unreachable subscribers",
			zap.String("topic", topicID),
			zap.Int("delivered", res.Delivered),
			zap.Int("pruned", len(res.Pruned)),
			zap.Int("lost", res.Lost))
	}
	return res.Err(topicID)
}

// prune forgets inbound chains whose registry subscriber was dropped during
// a publish.
func (c *core) prune(pruned []*registry.Subscriber) {
	for _, s := range pruned {
		in, ok := c.relays[s.ID]
		if !ok {
			continue
		}
		delete(c.relays, s.ID)
		if cur, ok := in.peer.inbound[in.chain]; ok && cur == in {
			delete(in.peer.inbound, in.chain)
		}
	}
}

func (c *core) publishAt(path string, data []byte, origin string) error {
	step, err := address.Parse(path).Resolve(c, address.TopicMode)
	if err != nil {
		return err
	}
	if step.Local() {
		return c.publish(step.Target, data, origin, false)
	}

	p := c.peerFor(step)
	err = c.send(p, &protocol.Frame{
		Type:      protocol.FramePublishAt,
		Path:      step.Rest.String(),
		Data:      data,
		Origin:    origin,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return errors.NewLinkDownError(p.remote(), err)
	}
	return nil
}

func (c *core) handlePublishAt(p *peer, f *protocol.Frame) {
	if err := c.publishAt(f.Path, f.Data, f.Origin); err != nil {
		c.logger.ComponentWarn(logging.ComponentRouter, "Forwarded publish failed",
			zap.String("path", f.Path),
			zap.String("origin", f.Origin),
			zap.String("via", p.remote()),
			zap.Error(err))
	}
}
