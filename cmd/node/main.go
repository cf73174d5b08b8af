package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/DeBrosOfficial/cogmesh/pkg/certutil"
	"github.com/DeBrosOfficial/cogmesh/pkg/config"
	"github.com/DeBrosOfficial/cogmesh/pkg/logging"
	"github.com/DeBrosOfficial/cogmesh/pkg/node"
)

// topicFlags collects repeated -topic id:type values.
type topicFlags []topicSpec

type topicSpec struct{ id, typ string }

func (f *topicFlags) String() string {
	parts := make([]string, 0, len(*f))
	for _, t := range *f {
		parts = append(parts, t.id+":"+t.typ)
	}
	return strings.Join(parts, ",")
}

func (f *topicFlags) Set(v string) error {
	id, typ, ok := strings.Cut(v, ":")
	if !ok || id == "" || typ == "" {
		return fmt.Errorf("expected id:type, got %q", v)
	}
	*f = append(*f, topicSpec{id: id, typ: typ})
	return nil
}

type nodeFlags struct {
	configPath string
	id         string
	host       string
	port       int
	parent     string
	token      string
	codec      string
	logLevel   string
	tlsDir     string
	topics     topicFlags
}

func parseFlags() *nodeFlags {
	f := &nodeFlags{}
	flag.StringVar(&f.configPath, "config", "", "Config YAML file, or a name under ~/.cogmesh (overrides defaults)")
	flag.StringVar(&f.id, "id", "", "Node identifier, unique among the parent's children")
	flag.StringVar(&f.host, "host", "", "Interface to listen on")
	flag.IntVar(&f.port, "port", -1, "Listen port (0 picks a free port)")
	flag.StringVar(&f.parent, "parent", "", "Parent URL, e.g. ws://10.0.0.1:8080")
	flag.StringVar(&f.token, "token", "", "Bearer token presented to the parent")
	flag.StringVar(&f.codec, "codec", "", "Link codec: json or cbor")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flag.StringVar(&f.tlsDir, "tls-dir", "", "Serve wss:// with a certificate issued from the CA in this directory")
	flag.Var(&f.topics, "topic", "Topic to register as id:type (repeatable)")
	flag.Parse()
	return f
}

// loadConfig applies flags over the config file over the defaults.
func loadConfig(f *nodeFlags) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if f.configPath != "" {
		path := f.configPath
		// A bare name that is not in the working directory is looked up
		// in ~/.cogmesh.
		if _, err := os.Stat(path); err != nil {
			if p, err := config.DefaultPath(path); err == nil {
				path = p
			}
		}
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.id != "" {
		cfg.Node.ID = f.id
	}
	if f.host != "" {
		cfg.Node.ListenHost = f.host
	}
	if f.port >= 0 {
		cfg.Node.Port = f.port
	}
	if f.parent != "" {
		cfg.Node.ParentHost = f.parent
	}
	if f.token != "" {
		cfg.Node.BearerToken = f.token
	}
	if f.codec != "" {
		cfg.Link.Codec = f.codec
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if f.tlsDir != "" {
		if err := issueCertificate(cfg, f.tlsDir); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// issueCertificate points the TLS settings at a certificate for this node,
// creating the tree CA and the certificate on first use.
func issueCertificate(cfg *config.Config, dir string) error {
	if cfg.Node.ID == "" {
		return fmt.Errorf("-tls-dir requires a node id")
	}
	hosts := []string{"localhost", "127.0.0.1"}
	if h := cfg.Node.ListenHost; h != "" && h != "0.0.0.0" && h != "::" {
		hosts = append(hosts, h)
	}
	if name, err := os.Hostname(); err == nil {
		hosts = append(hosts, name)
	}

	certs := certutil.NewManager(dir)
	certFile, keyFile, err := certs.EnsureNodeCertificate(cfg.Node.ID, hosts)
	if err != nil {
		return err
	}
	cfg.Security.TLSCertFile = certFile
	cfg.Security.TLSKeyFile = keyFile
	if cfg.Security.CACertFile == "" {
		cfg.Security.CACertFile = certs.CAFile()
	}
	return nil
}

func main() {
	f := parseFlags()

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(logging.Options{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		OutputFile:   cfg.Logging.OutputFile,
		EnableColors: true,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}

	n, err := node.New(cfg, node.WithLogger(logger))
	if err != nil {
		logger.ComponentError(logging.ComponentNode, "Invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := n.Start(ctx); err != nil {
		logger.ComponentError(logging.ComponentNode, "Failed to start node", zap.Error(err))
		os.Exit(1)
	}

	for _, t := range f.topics {
		err := n.RegisterTopic(t.id, t.typ, func(si node.SubInfo) {
			logger.ComponentInfo(logging.ComponentNode, "New subscriber",
				zap.String("topic", si.Topic),
				zap.String("origin", si.Origin))
		})
		if err != nil {
			logger.ComponentError(logging.ComponentNode, "Failed to register topic",
				zap.String("topic", t.id), zap.Error(err))
			_ = n.Stop()
			os.Exit(1)
		}
	}

	logger.ComponentInfo(logging.ComponentNode, "Node configuration summary",
		zap.String("id", cfg.Node.ID),
		zap.String("addr", n.Addr()),
		zap.String("parent", cfg.Node.ParentHost),
		zap.String("codec", cfg.Link.Codec),
		zap.String("persistence", cfg.Persistence.Backend),
		zap.String("topics", f.topics.String()))

	<-ctx.Done()
	logger.ComponentInfo(logging.ComponentNode, "Shutting down node...")
	if err := n.Stop(); err != nil {
		logger.ComponentError(logging.ComponentNode, "Shutdown failed", zap.Error(err))
		os.Exit(1)
	}
	logger.ComponentInfo(logging.ComponentNode, "Node shutdown complete")
}
