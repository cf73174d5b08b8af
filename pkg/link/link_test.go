package link

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DeBrosOfficial/cogmesh/pkg/errors"
	"github.com/DeBrosOfficial/cogmesh/pkg/protocol"
)

type testAcceptor struct {
	links  chan *Link
	reject error
}

func newTestAcceptor() *testAcceptor {
	return &testAcceptor{links: make(chan *Link, 4)}
}

func (a *testAcceptor) Admit(hs Handshake) (func(*Link), error) {
	if a.reject != nil {
		return nil, a.reject
	}
	return func(l *Link) {
		if l != nil {
			a.links <- l
		}
	}, nil
}

func testOptions() Options {
	return Options{
		WriteTimeout:  time.Second,
		PingInterval:  200 * time.Millisecond,
		PongWait:      time.Second,
		MaxFrameBytes: 1 << 20,
		OutboundQueue: 16,
	}
}

func startServer(t *testing.T, acceptor Acceptor, tokens ...string) *Server {
	t.Helper()
	codecs, err := protocol.NewRegistry()
	require.NoError(t, err)

	s := NewServer(ServerConfig{
		SelfID:           "A",
		Addr:             "127.0.0.1:0",
		MaxConnections:   8,
		AcceptedTokens:   tokens,
		HandshakeTimeout: time.Second,
		Link:             testOptions(),
	}, codecs, acceptor, nil)
	require.NoError(t, s.Listen())
	s.Serve()
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func dialConfig(s *Server, codec, token string) DialConfig {
	return DialConfig{
		ParentHost:       "ws://" + s.Addr(),
		SelfID:           "B",
		Token:            token,
		Codec:            codec,
		HandshakeTimeout: time.Second,
		Link:             testOptions(),
	}
}

func dial(t *testing.T, cfg DialConfig) (*Link, error) {
	t.Helper()
	codecs, err := protocol.NewRegistry()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return Dial(ctx, cfg, codecs, nil)
}

func receive(t *testing.T, ch <-chan *protocol.Frame) *protocol.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
		return nil
	}
}

func TestDialExchangesFrames(t *testing.T) {
	for _, codec := range []string{"json", "cbor"} {
		t.Run(codec, func(t *testing.T) {
			acceptor := newTestAcceptor()
			s := startServer(t, acceptor)

			child, err := dial(t, dialConfig(s, codec, "token"))
			require.NoError(t, err)
			assert.Equal(t, "A", child.Remote())
			assert.Equal(t, ToParent, child.Direction())
			assert.Equal(t, Connecting, child.State())

			var parent *Link
			select {
			case parent = <-acceptor.links:
			case <-time.After(2 * time.Second):
				t.Fatal("child link not accepted")
			}
			assert.Equal(t, "B", parent.Remote())
			assert.Equal(t, ToChild, parent.Direction())
			assert.Equal(t, codec, parent.Codec().Name())

			childFrames := make(chan *protocol.Frame, 4)
			parentFrames := make(chan *protocol.Frame, 4)
			parentClosed := make(chan error, 1)
			child.Run(func(_ *Link, f *protocol.Frame) { childFrames <- f }, nil)
			parent.Run(func(_ *Link, f *protocol.Frame) { parentFrames <- f },
				func(_ *Link, err error) { parentClosed <- err })
			assert.Equal(t, Open, child.State())

			require.NoError(t, child.Send(&protocol.Frame{
				Type:  protocol.FrameSubscribe,
				Chain: "c1",
				Path:  "blackboard",
			}))
			got := receive(t, parentFrames)
			assert.Equal(t, protocol.FrameSubscribe, got.Type)
			assert.Equal(t, "blackboard", got.Path)

			require.NoError(t, parent.Send(&protocol.Frame{
				Type:  protocol.FramePayload,
				Chain: "c1",
				Topic: "blackboard",
				Data:  []byte{0, 1, 2},
			}))
			got = receive(t, childFrames)
			assert.Equal(t, []byte{0, 1, 2}, got.Data)

			require.NoError(t, child.Close())
			select {
			case err := <-parentClosed:
				assert.True(t, errors.IsLinkDown(err))
			case <-time.After(2 * time.Second):
				t.Fatal("parent did not notice the closed link")
			}
			assert.Equal(t, Closed, parent.State())
			assert.ErrorIs(t, child.Send(&protocol.Frame{Type: protocol.FrameUnsubscribe, Chain: "c1"}), errors.ErrLinkClosed)
		})
	}
}

func TestSendOnFullQueueDoesNotBlock(t *testing.T) {
	codecs, err := protocol.NewRegistry()
	require.NoError(t, err)
	opts := testOptions()
	opts.OutboundQueue = 1
	opts.WriteTimeout = 2 * time.Second

	acceptor := newTestAcceptor()
	s := NewServer(ServerConfig{
		SelfID:           "A",
		Addr:             "127.0.0.1:0",
		HandshakeTimeout: time.Second,
		Link:             opts,
	}, codecs, acceptor, nil)
	require.NoError(t, s.Listen())
	s.Serve()
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	// The child never runs its pumps, so nothing reads what the parent writes.
	child, err := dial(t, dialConfig(s, "json", ""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = child.Close() })

	var parent *Link
	select {
	case parent = <-acceptor.links:
	case <-time.After(2 * time.Second):
		t.Fatal("child link not accepted")
	}
	parent.Run(nil, nil)

	big := &protocol.Frame{Type: protocol.FramePayload, Chain: "c1", Data: make([]byte, 4<<20)}
	var sendErr error
	for i := 0; i < 16 && sendErr == nil; i++ {
		start := time.Now()
		sendErr = parent.Send(big)
		assert.Less(t, time.Since(start), 500*time.Millisecond, "send %d", i)
	}
	require.ErrorIs(t, sendErr, errors.ErrQueueFull)
	assert.Equal(t, Closed, parent.State())
	assert.ErrorIs(t, parent.Err(), errors.ErrQueueFull)
}

func TestCloseDoesNotWaitForStalledWriter(t *testing.T) {
	codecs, err := protocol.NewRegistry()
	require.NoError(t, err)
	opts := testOptions()
	opts.OutboundQueue = 4
	opts.WriteTimeout = 3 * time.Second

	acceptor := newTestAcceptor()
	s := NewServer(ServerConfig{
		SelfID:           "A",
		Addr:             "127.0.0.1:0",
		HandshakeTimeout: time.Second,
		Link:             opts,
	}, codecs, acceptor, nil)
	require.NoError(t, s.Listen())
	s.Serve()
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	child, err := dial(t, dialConfig(s, "json", ""))
	require.NoError(t, err)
	t.Cleanup(func() { _ = child.Close() })

	var parent *Link
	select {
	case parent = <-acceptor.links:
	case <-time.After(2 * time.Second):
		t.Fatal("child link not accepted")
	}
	parent.Run(nil, nil)

	big := &protocol.Frame{Type: protocol.FramePayload, Chain: "c1", Data: make([]byte, 4<<20)}
	require.NoError(t, parent.Send(big))
	require.NoError(t, parent.Send(big))
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, parent.Close())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, Closed, parent.State())
}

func TestDialRejectsBadToken(t *testing.T) {
	s := startServer(t, newTestAcceptor(), "good")

	_, err := dial(t, dialConfig(s, "json", "bad"))
	require.Error(t, err)
	assert.True(t, errors.IsAuthFailure(err))

	var authErr *errors.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)

	l, err := dial(t, dialConfig(s, "json", "good"))
	require.NoError(t, err)
	_ = l.Close()
}

func TestDialRejectedByAcceptor(t *testing.T) {
	acceptor := newTestAcceptor()
	acceptor.reject = errors.NewAuthError("B", http.StatusConflict, "node id already linked")
	s := startServer(t, acceptor)

	_, err := dial(t, dialConfig(s, "json", ""))
	require.Error(t, err)
	assert.True(t, errors.IsAuthFailure(err))
	assert.Contains(t, err.Error(), "already linked")
}

func TestDialUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = dial(t, DialConfig{
		ParentHost:       "ws://" + addr,
		SelfID:           "B",
		Codec:            "json",
		HandshakeTimeout: time.Second,
	})
	require.Error(t, err)
	assert.True(t, errors.IsLinkDown(err))
}

func TestListenBusyPort(t *testing.T) {
	s := startServer(t, newTestAcceptor())

	codecs, err := protocol.NewRegistry()
	require.NoError(t, err)
	busy := NewServer(ServerConfig{SelfID: "X", Addr: s.Addr()}, codecs, newTestAcceptor(), nil)

	err = busy.Listen()
	require.Error(t, err)
	assert.True(t, errors.IsPortBind(err))
	assert.NoError(t, busy.Close(context.Background()))
}

func TestHealthEndpoint(t *testing.T) {
	s := startServer(t, newTestAcceptor())
	assert.NotZero(t, s.Port())

	resp, err := http.Get("http://" + s.Addr() + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "A", body["node"])
}

func TestLinkRejectsUnaddressableNodeID(t *testing.T) {
	acceptor := newTestAcceptor()
	s := startServer(t, acceptor)

	for _, id := range []string{"", ".", "..", "x/y"} {
		cfg := dialConfig(s, "json", "")
		cfg.SelfID = id
		_, err := dial(t, cfg)
		require.Error(t, err, "id %q", id)
		assert.True(t, errors.IsAuthFailure(err), "id %q", id)

		var authErr *errors.AuthError
		require.True(t, errors.As(err, &authErr), "id %q", id)
		assert.Equal(t, http.StatusBadRequest, authErr.StatusCode, "id %q", id)
	}
	assert.Empty(t, acceptor.links)
}

func TestLinkURL(t *testing.T) {
	got, err := LinkURL("ws://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/v1/link", got)

	got, err = LinkURL("wss://example.com/mesh/")
	require.NoError(t, err)
	assert.Equal(t, "wss://example.com/mesh/v1/link", got)

	_, err = LinkURL("http://localhost:8080")
	assert.Error(t, err)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "open", Open.String())
	assert.Equal(t, "closed", Closed.String())
	assert.Equal(t, "child", ToChild.String())
	assert.Equal(t, "parent", ToParent.String())
}
