// Package cli implements the cogmesh command line client. Every command runs
// an ephemeral leaf node linked under the target node and talks to the tree
// through it.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/node"
)

// Options select the node the session attaches to.
type Options struct {
	Parent  string // ws:// URL of the node to link under
	Token   string
	Codec   string
	Timeout time.Duration
	Verbose bool
	// CACertFile is trusted when the parent serves wss://.
	CACertFile string
}

// Session is a running ephemeral leaf node.
type Session struct {
	Node    *node.Node
	timeout time.Duration
}

// Connect starts a leaf node on a free loopback port and links it to
// opts.Parent.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	if opts.Parent == "" {
		return nil, fmt.Errorf("a parent URL is required")
	}

	cfg := config.DefaultConfig()
	cfg.Node.ID = "cli-" + strings.SplitN(uuid.NewString(), "-", 2)[0]
	cfg.Node.ListenHost = "127.0.0.1"
	cfg.Node.Port = 0
	cfg.Node.ParentHost = opts.Parent
	cfg.Node.BearerToken = opts.Token
	cfg.Security.CACertFile = opts.CACertFile
	cfg.Workers.Size = 1
	if opts.Codec != "" {
		cfg.Link.Codec = opts.Codec
	}
	if opts.Timeout > 0 {
		cfg.Link.HandshakeTimeout = opts.Timeout
	}

	logger := logging.NewNop()
	if opts.Verbose {
		var err error
		logger, err = logging.New(logging.Options{Level: "debug", EnableColors: true})
		if err != nil {
			return nil, err
		}
	}

	n, err := node.New(cfg, node.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Session{Node: n, timeout: timeout}, nil
}

// Close stops the leaf node.
func (s *Session) Close() error { return s.Node.Stop() }

// Paths given on the command line are relative to the node the session is
// linked under, so they gain one leading "..".
func (s *Session) remote(path string) string {
	path = strings.TrimPrefix(path, "./")
	if path == "" || path == "." {
		return "../"
	}
	return "../" + path
}
