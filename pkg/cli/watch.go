package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/node"
)

const watchHistory = 200

type payloadMsg node.Payload

type publishedMsg struct{ err error }

type subscriptionLostMsg struct{}

// WatchModel is the bubbletea model of the watch command: the payload stream
// of one topic above an input line that publishes to the same topic.
type WatchModel struct {
	path     string
	input    textinput.Model
	payloads <-chan node.Payload
	publish  func([]byte) error
	lines    []string
	status   string
	err      error
	lost     bool
	height   int
}

// NewWatchModel creates a model reading payloads and sending input lines
// through publish.
func NewWatchModel(path string, payloads <-chan node.Payload, publish func([]byte) error) WatchModel {
	ti := textinput.New()
	ti.Placeholder = "type a payload and press enter"
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 60

	return WatchModel{
		path:     path,
		input:    ti,
		payloads: payloads,
		publish:  publish,
	}
}

// Init starts the cursor blink and the payload reader.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForPayload(m.payloads))
}

func waitForPayload(ch <-chan node.Payload) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-ch
		if !ok {
			return subscriptionLostMsg{}
		}
		return payloadMsg(p)
	}
}

func publishLine(publish func([]byte) error, line string) tea.Cmd {
	return func() tea.Msg {
		return publishedMsg{err: publish([]byte(line))}
	}
}

// Update handles keys, payloads and publish results.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.input.Reset()
			return m, publishLine(m.publish, line)
		}

	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.input.Width = msg.Width - 4
		return m, nil

	case payloadMsg:
		p := node.Payload(msg)
		m.lines = append(m.lines, fmt.Sprintf("%s %s %s",
			mutedStyle.Render(p.Time.Format("15:04:05")),
			titleStyle.Render(p.Origin),
			string(p.Data)))
		if len(m.lines) > watchHistory {
			m.lines = m.lines[len(m.lines)-watchHistory:]
		}
		return m, waitForPayload(m.payloads)

	case publishedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = "published"
		}
		return m, nil

	case subscriptionLostMsg:
		m.lost = true
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the stream, the status line and the input.
func (m WatchModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("watching " + displayPath(m.path)))
	b.WriteString("\n\n")

	lines := m.lines
	if m.height > 8 && len(lines) > m.height-8 {
		lines = lines[len(lines)-(m.height-8):]
	}
	if len(lines) == 0 {
		b.WriteString(mutedStyle.Render("no payloads yet"))
		b.WriteString("\n")
	}
	for _, l := range lines {
		b.WriteString(l)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	switch {
	case m.lost:
		b.WriteString(Failure("subscription lost"))
	case m.err != nil:
		b.WriteString(Failure(m.err.Error()))
	case m.status != "":
		b.WriteString(Success(m.status))
	}
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("enter: publish • esc: quit"))
	return b.String()
}

// Watch runs the interactive view for the topic at path until the user quits
// or ctx is done.
func (s *Session) Watch(ctx context.Context, path string) error {
	remote := s.remote(path)
	payloads := make(chan node.Payload, 64)
	if err := s.Node.Subscribe(remote, func(p node.Payload) {
		select {
		case payloads <- p:
		default:
		}
	}); err != nil {
		return err
	}
	defer s.Node.Unsubscribe(remote)

	model := NewWatchModel(path, payloads, func(data []byte) error {
		return s.Node.PublishAt(remote, data)
	})
	prog := tea.NewProgram(model, tea.WithContext(ctx), tea.WithAltScreen())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if state, ok := s.Node.SubscriptionState(remote); ok && state == node.Failed {
					prog.Send(subscriptionLostMsg{})
					return
				}
			case <-stop:
				return
			}
		}
	}()

	_, err := prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
