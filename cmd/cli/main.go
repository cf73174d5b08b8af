package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeBrosOfficial/cogmesh/pkg/cli"
)

// version metadata populated via -ldflags at build time
var (
	version = "dev"
	commit  = ""
)

var (
	parent  = os.Getenv("COGMESH_PARENT")
	token   = os.Getenv("COGMESH_TOKEN")
	caCert  = os.Getenv("COGMESH_CA_CERT")
	codec   = ""
	format  = "table"
	timeout = 10 * time.Second
	verbose = false
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]
	args := parseGlobalFlags(os.Args[2:])

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "version":
		fmt.Printf("cogmesh %s", version)
		if commit != "" {
			fmt.Printf(" (commit %s)", commit)
		}
		fmt.Println()

	case "info":
		info, err := cli.FetchInfo(ctx, requireParent(), options())
		if err != nil {
			fail(err)
		}
		if err := cli.PrintQueryInfo(os.Stdout, info, format); err != nil {
			fail(err)
		}

	case "query":
		path := ""
		if len(args) > 0 {
			path = args[0]
		}
		withSession(ctx, func(s *cli.Session) error {
			return s.Query(ctx, os.Stdout, path, format)
		})

	case "publish":
		if len(args) < 2 {
			usage("publish <path> <data>")
		}
		withSession(ctx, func(s *cli.Session) error {
			return s.Publish(os.Stdout, args[0], []byte(args[1]))
		})

	case "subscribe":
		if len(args) < 1 {
			usage("subscribe <path> [duration]")
		}
		subCtx := ctx
		if len(args) > 1 {
			d, err := time.ParseDuration(args[1])
			if err != nil {
				fail(err)
			}
			var cancel context.CancelFunc
			subCtx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		withSession(ctx, func(s *cli.Session) error {
			return s.Subscribe(subCtx, os.Stdout, args[0], format)
		})

	case "watch":
		if len(args) < 1 {
			usage("watch <path>")
		}
		withSession(ctx, func(s *cli.Session) error {
			return s.Watch(ctx, args[0])
		})

	case "help", "--help", "-h":
		showHelp()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		showHelp()
		os.Exit(1)
	}
}

// parseGlobalFlags strips global flags from args and returns the rest.
func parseGlobalFlags(args []string) []string {
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() string {
			if i+1 >= len(args) {
				usage(arg + " requires a value")
			}
			i++
			return args[i]
		}
		switch arg {
		case "-p", "--parent":
			parent = next()
		case "--token":
			token = next()
		case "--codec":
			codec = next()
		case "--ca-cert":
			caCert = next()
		case "-f", "--format":
			format = next()
		case "-t", "--timeout":
			d, err := time.ParseDuration(next())
			if err != nil {
				fail(err)
			}
			timeout = d
		case "-v", "--verbose":
			verbose = true
		default:
			rest = append(rest, arg)
		}
	}
	return rest
}

func withSession(ctx context.Context, fn func(*cli.Session) error) {
	s, err := cli.Connect(ctx, options())
	if err != nil {
		fail(err)
	}
	err = fn(s)
	_ = s.Close()
	if err != nil {
		fail(err)
	}
}

func options() cli.Options {
	return cli.Options{
		Parent:     requireParent(),
		Token:      token,
		Codec:      codec,
		Timeout:    timeout,
		Verbose:    verbose,
		CACertFile: caCert,
	}
}

func requireParent() string {
	if parent == "" {
		usage("<command> --parent ws://host:port (or set COGMESH_PARENT)")
	}
	return parent
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, cli.Failure(err.Error()))
	os.Exit(1)
}

func usage(msg string) {
	fmt.Fprintf(os.Stderr, "Usage: cogmesh %s\n", msg)
	os.Exit(1)
}

func showHelp() {
	fmt.Printf("cogmesh - hierarchical topic broker client\n\n")
	fmt.Printf("Usage: cogmesh <command> [args...] --parent ws://host:port\n\n")

	fmt.Printf("Commands:\n")
	fmt.Printf("  info                          - Describe the node over HTTP\n")
	fmt.Printf("  query [path]                  - Describe the node or topic at path\n")
	fmt.Printf("  publish <path> <data>         - Publish data to the topic at path\n")
	fmt.Printf("  subscribe <path> [duration]   - Print payloads from the topic at path\n")
	fmt.Printf("  watch <path>                  - Interactive view: stream and publish\n")
	fmt.Printf("  version                       - Show version\n\n")

	fmt.Printf("Global Flags:\n")
	fmt.Printf("  -p, --parent <url>            - Node to attach to (default: $COGMESH_PARENT)\n")
	fmt.Printf("  --token <token>               - Bearer token (default: $COGMESH_TOKEN)\n")
	fmt.Printf("  --codec <json|cbor>           - Link codec (default: json)\n")
	fmt.Printf("  --ca-cert <file>              - CA trusted for wss:// (default: $COGMESH_CA_CERT)\n")
	fmt.Printf("  -f, --format <format>         - Output format: table, json (default: table)\n")
	fmt.Printf("  -t, --timeout <duration>      - Operation timeout (default: 10s)\n")
	fmt.Printf("  -v, --verbose                 - Log the client node's activity\n\n")

	fmt.Printf("Paths are relative to the attached node: \"blackboard\" is its topic,\n")
	fmt.Printf("\"B/blackboard\" a topic of its child B, \"../blackboard\" one of its parent.\n")
}
