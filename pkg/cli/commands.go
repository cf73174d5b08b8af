package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	json "github.com/goccy/go-json"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/link"
	"github.com/DeBrosOfficial/cogmesh/pkg/node"
	"github.com/DeBrosOfficial/cogmesh/pkg/tlsutil"
)

// Query resolves path and prints what it names.
func (s *Session) Query(ctx context.Context, w io.Writer, path, format string) error {
	results := make(chan node.QueryInfo, 1)
	if err := s.Node.Query(s.remote(path), func(info node.QueryInfo) { results <- info }); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case info := <-results:
		info.Path = path
		if err := PrintQueryInfo(w, info, format); err != nil {
			return err
		}
		if !info.Success {
			return fmt.Errorf("query %q failed: %s", path, info.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("query %q: %w", path, ctx.Err())
	}
}

// Publish delivers data to the topic at path.
func (s *Session) Publish(w io.Writer, path string, data []byte) error {
	if err := s.Node.PublishAt(s.remote(path), data); err != nil {
		return err
	}
	fmt.Fprintln(w, Success(fmt.Sprintf("Published %d bytes to %s", len(data), path)))
	return nil
}

// Subscribe prints payloads from the topic at path until ctx is done or the
// subscription fails.
func (s *Session) Subscribe(ctx context.Context, w io.Writer, path, format string) error {
	remote := s.remote(path)
	ctx, cancel := context.WithCancel(ctx)
	payloads := make(chan node.Payload, 64)
	err := s.Node.Subscribe(remote, func(p node.Payload) {
		select {
		case payloads <- p:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		return err
	}
	defer s.Node.Unsubscribe(remote)
	defer cancel()

	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("Subscribed to %s (Ctrl+C to stop)", path)))

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case p := <-payloads:
			if err := PrintPayload(w, p, format); err != nil {
				return err
			}
		case <-ticker.C:
			if state, ok := s.Node.SubscriptionState(remote); ok && state == node.Failed {
				return errors.WithCode(errors.CodeLinkDown, fmt.Sprintf("subscription to %s failed", path), nil)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// FetchInfo reads a node's description from its HTTP info endpoint without
// linking to it.
func FetchInfo(ctx context.Context, host string, opts Options) (node.QueryInfo, error) {
	var info node.QueryInfo

	u, err := url.Parse(host)
	if err != nil {
		return info, err
	}
	switch u.Scheme {
	case "ws", "":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + link.InfoPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return info, err
	}
	client := http.DefaultClient
	if u.Scheme == "https" {
		tc, err := tlsutil.ClientConfig(tlsutil.ClientOptions{CACertFile: opts.CACertFile}, u.Hostname())
		if err != nil {
			return info, err
		}
		client = tlsutil.NewHTTPClient(opts.Timeout, tc)
	}
	resp, err := client.Do(req)
	if err != nil {
		return info, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		he := errors.DecodeHTTPError(resp.StatusCode, body)
		return info, fmt.Errorf("info request failed with status %d: %s", he.Status, he.Message)
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return info, fmt.Errorf("failed to decode info: %w", err)
	}
	return info, nil
}

// PrintQueryInfo writes info as JSON or as a styled table.
func PrintQueryInfo(w io.Writer, info node.QueryInfo, format string) error {
	if format == "json" {
		return printJSON(w, info)
	}

	if !info.Success {
		fmt.Fprintln(w, Failure(fmt.Sprintf("%s: %s", displayPath(info.Path), info.Error)))
		return nil
	}

	rows := []string{
		titleStyle.Render(displayPath(info.Path)),
		row("name", info.Name),
		row("type", info.Type),
		row("node", info.SelfID),
		row("parent", orNone(info.ParentID)),
		row("children", orNone(strings.Join(info.Children, ", "))),
	}
	if len(info.Topics) == 0 {
		rows = append(rows, row("topics", orNone("")))
	}
	for i, t := range info.Topics {
		label := ""
		if i == 0 {
			label = "topics"
		}
		rows = append(rows, row(label, t.ID+" "+mutedStyle.Render("("+t.Type+")")))
	}

	fmt.Fprintln(w, boxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	return nil
}

// PrintPayload writes one received payload.
func PrintPayload(w io.Writer, p node.Payload, format string) error {
	if format == "json" {
		return printJSON(w, p)
	}
	fmt.Fprintf(w, "%s %s %s\n",
		mutedStyle.Render(p.Time.Format("15:04:05")),
		titleStyle.Render(p.Origin),
		string(p.Data))
	return nil
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

func orNone(s string) string {
	if s == "" {
		return mutedStyle.Render("none")
	}
	return s
}

func displayPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
