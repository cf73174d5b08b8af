package node

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/address"
	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

// pendingQuery waits for a query_result on one link.
type pendingQuery struct {
	path  string
	reply func(QueryInfo)
}

func failedQuery(path string, err error) QueryInfo {
	return protocol.Failed(path, err)
}

func (c *core) query(path string, h QueryHandler) error {
	reply := func(info QueryInfo) {
		info.Path = path
		c.dispatch(func() { h(info) })
	}
	return c.resolveQuery(path, reply)
}

// resolveQuery answers locally or forwards one hop. reply is called exactly
// once, now or when the result (or the link failure) arrives.
func (c *core) resolveQuery(path string, reply func(QueryInfo)) error {
	step, err := address.Parse(path).Resolve(c, address.NodeMode)
	if err != nil {
		reply(failedQuery(path, err))
		return err
	}

	if step.Local() {
		info, err := c.describe(step.Target)
		reply(info)
		return err
	}

	p := c.peerFor(step)
	id := uuid.NewString()
	p.queries[id] = &pendingQuery{path: path, reply: reply}

	if err := c.send(p, &protocol.Frame{
		Type:  protocol.FrameQuery,
		Chain: id,
		Path:  step.Rest.String(),
	}); err != nil {
		err = errors.NewLinkDownError(p.remote(), err)
		// A send that found the link closed has already failed the query.
		if q, still := p.queries[id]; still {
			delete(p.queries, id)
			q.reply(failedQuery(path, err))
		}
		return err
	}
	return nil
}

// describe reports this node, or one of its topics when target is set.
func (c *core) describe(target string) (QueryInfo, error) {
	info := QueryInfo{
		Success:  true,
		SelfID:   c.selfID,
		ParentID: c.parentID(),
		Children: c.childIDs(),
		Topics:   c.topics.Topics(),
	}
	if target == "" {
		info.Name, info.Type = c.selfID, NodeType
		return info, nil
	}

	t, ok := c.topics.Get(target)
	if !ok {
		err := errors.NewUnknownTopicError(target)
		return failedQuery(target, err), err
	}
	info.Name, info.Type = t.ID, t.Type
	return info, nil
}

func (c *core) handleQuery(p *peer, f *protocol.Frame) {
	reply := func(info QueryInfo) {
		info.Path = f.Path
		_ = c.send(p, &protocol.Frame{
			Type:  protocol.FrameQueryResult,
			Chain: f.Chain,
			Info:  &info,
		})
	}
	if err := c.resolveQuery(f.Path, reply); err != nil {
		c.logger.ComponentDebug(logging.ComponentQuery, "Forwarded query failed",
			zap.String("path", f.Path),
			zap.String("via", p.remote()),
			zap.Error(err))
	}
}

func (c *core) handleQueryResult(p *peer, f *protocol.Frame) {
	q, ok := p.queries[f.Chain]
	if !ok {
		return
	}
	delete(p.queries, f.Chain)
	q.reply(*f.Info)
}
