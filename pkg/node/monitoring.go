package node

import (
	"context"
	"errors"
	"time"

	"github.com/mackerelio/go-osstat/cpu"
	"github.com/mackerelio/go-osstat/memory"
	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
)

const cpuSampleWindow = 3 * time.Second

// Status is a snapshot of a node's routing tables.
type Status struct {
	Children  int
	HasParent bool
	Topics    int
	Routes    int
	Subs      int
	Inbound   int
}

// Status returns a snapshot of the running node's tables.
func (n *Node) Status() (Status, error) {
	var st Status
	err := n.do(func(c *core) error {
		st = c.status()
		return nil
	})
	return st, err
}

func (c *core) status() Status {
	st := Status{
		Children:  len(c.children),
		HasParent: c.parent != nil,
		Topics:    c.topics.Len(),
		Routes:    len(c.routes),
	}
	for _, subs := range c.subs {
		st.Subs += len(subs)
	}
	for _, p := range c.peers {
		st.Inbound += len(p.inbound)
	}
	return st
}

// GetCPUUsagePercent samples CPU counters twice, interval apart.
func GetCPUUsagePercent(ctx context.Context, interval time.Duration) (uint64, error) {
	before, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	select {
	case <-time.After(interval):
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	after, err := cpu.Get()
	if err != nil {
		return 0, err
	}
	idle := float64(after.Idle - before.Idle)
	total := float64(after.Total - before.Total)
	if total == 0 {
		return 0, errors.New("failed to get CPU usage")
	}
	usagePercent := (1.0 - idle/total) * 100.0
	return uint64(usagePercent), nil
}

// startMonitoring logs table sizes and system usage every interval.
func (c *core) startMonitoring(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.stopMonitor = cancel

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last Status
		firstCheck := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			var st Status
			if err := c.call(func() error {
				st = c.status()
				return nil
			}); err != nil {
				return
			}
			if !firstCheck && st.Children < last.Children {
				c.logger.ComponentInfo(logging.ComponentNode, "Node lost children",
					zap.Int("current_children", st.Children),
					zap.Int("previous_children", last.Children))
			}
			last, firstCheck = st, false

			c.logSystemUsage(ctx, st)
		}
	}()
}

func (c *core) logSystemUsage(ctx context.Context, st Status) {
	fields := []zap.Field{
		zap.Int("children", st.Children),
		zap.Bool("has_parent", st.HasParent),
		zap.Int("topics", st.Topics),
		zap.Int("routes", st.Routes),
		zap.Int("subscriptions", st.Subs),
		zap.Int("inbound_chains", st.Inbound),
		zap.Int("workers_running", c.pool.Running()),
	}

	if mem, err := memory.Get(); err == nil && mem.Total > 0 {
		fields = append(fields, zap.Float64("memory_usage_percent", float64(mem.Used)/float64(mem.Total)*100))
	}
	if usage, err := GetCPUUsagePercent(ctx, cpuSampleWindow); err == nil {
		fields = append(fields, zap.Uint64("cpu_usage", usage))
	} else if ctx.Err() == nil {
		c.logger.ComponentDebug(logging.ComponentNode, "Failed to get CPU usage", zap.Error(err))
	}

	c.logger.ComponentInfo(logging.ComponentNode, "Node status", fields...)
}
