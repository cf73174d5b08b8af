package node

import (
	"context"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/persist"
	"github.com/DeBrosOfficial/cogmesh/pkg/registry"
)

// save writes a persisted payload to the store off the loop.
func (c *core) save(p Payload) {
	rec := persist.Record{
		Topic:    p.Topic,
		Data:     p.Data,
		Origin:   p.Origin,
		StoredAt: p.Time,
	}
	err := c.pool.Submit(func(ctx context.Context) (any, error) {
		return nil, c.store.Save(ctx, rec)
	}, func(_ any, err error) {
		if err != nil {
			c.logger.ComponentError(logging.ComponentStore, "Failed to save persisted payload",
				zap.String("topic", rec.Topic),
				zap.Error(err))
		}
	})
	if err != nil {
		c.logger.ComponentWarn(logging.ComponentStore, "Persisted payload not saved",
			zap.String("topic", rec.Topic),
			zap.Error(err))
	}
}

// restore loads the stored payload of a newly registered topic and seeds its
// slot back on the loop, unless the topic was dropped or re-registered
// meanwhile.
func (c *core) restore(t *registry.Topic) {
	id := t.ID
	err := c.pool.Submit(func(ctx context.Context) (any, error) {
		rec, ok, err := c.store.Load(ctx, id)
		if err != nil || !ok {
			return nil, err
		}
		return rec, nil
	}, func(v any, err error) {
		if err != nil {
			c.logger.ComponentError(logging.ComponentStore, "Failed to load persisted payload",
				zap.String("topic", id),
				zap.Error(err))
			return
		}
		rec, ok := v.(persist.Record)
		if !ok {
			return
		}
		c.post(func() {
			cur, ok := c.topics.Get(id)
			if !ok || cur != t {
				return
			}
			if t.Seed(Payload{Data: rec.Data, Origin: rec.Origin, Time: rec.StoredAt}) {
				c.logger.ComponentDebug(logging.ComponentStore, "Restored persisted payload",
					zap.String("topic", id),
					zap.Time("stored_at", rec.StoredAt))
			}
		})
	})
	if err != nil {
		c.logger.ComponentWarn(logging.ComponentStore, "Persisted payload not restored",
			zap.String("topic", id),
			zap.Error(err))
	}
}
