package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapflowhq/zapflow/internal/logging"
	"github.com/zapflowhq/zapflow/pkg/domain"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []domain.InboundEvent
	votes  []domain.PollVote
	seen   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{seen: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleEvent(_ context.Context, ev domain.InboundEvent) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

func (h *recordingHandler) HandleVote(_ context.Context, vote domain.PollVote) {
	h.mu.Lock()
	h.votes = append(h.votes, vote)
	h.mu.Unlock()
	h.seen <- struct{}{}
}

// gatewayServer is a minimal fake of the remote gateway endpoint.
type gatewayServer struct {
	*httptest.Server

	mu    sync.Mutex
	conns []*websocket.Conn
	recv  chan frame
}

func newGatewayServer(t *testing.T) *gatewayServer {
	t.Helper()
	gs := &gatewayServer{recv: make(chan frame, 16)}
	upgrader := websocket.Upgrader{}
	gs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		gs.mu.Lock()
		gs.conns = append(gs.conns, conn)
		gs.mu.Unlock()
		go func() {
			for {
				var f frame
				if err := conn.ReadJSON(&f); err != nil {
					return
				}
				gs.recv <- f
			}
		}()
	}))
	t.Cleanup(gs.Close)
	return gs
}

func (gs *gatewayServer) send(t *testing.T, f frame) {
	t.Helper()
	gs.mu.Lock()
	defer gs.mu.Unlock()
	require.NotEmpty(t, gs.conns, "no client connected yet")
	require.NoError(t, gs.conns[len(gs.conns)-1].WriteJSON(f))
}

func (gs *gatewayServer) url() string {
	return "ws" + strings.TrimPrefix(gs.URL, "http")
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}

func startClient(t *testing.T, gs *gatewayServer, handler Handler) *Client {
	t.Helper()
	c := NewClient(gs.url(), handler, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go c.Run(ctx)

	require.Eventually(t, func() bool {
		gs.mu.Lock()
		defer gs.mu.Unlock()
		return len(gs.conns) > 0
	}, 2*time.Second, 10*time.Millisecond)
	return c
}

func TestInboundEventAndVoteFrames(t *testing.T) {
	gs := newGatewayServer(t)
	handler := newRecordingHandler()
	startClient(t, gs, handler)

	gs.send(t, frame{Op: "event", Event: &domain.InboundEvent{
		ChatID: "chat-1", MessageID: "m1", Type: "chat", Body: "oi",
	}})
	waitFor(t, handler.seen)

	gs.send(t, frame{Op: "vote", Vote: &domain.PollVote{
		Voter: "chat-1", Selected: []string{"Sim"},
	}})
	waitFor(t, handler.seen)

	handler.mu.Lock()
	defer handler.mu.Unlock()
	require.Len(t, handler.events, 1)
	assert.Equal(t, "oi", handler.events[0].Body)
	require.Len(t, handler.votes, 1)
	assert.Equal(t, []string{"Sim"}, handler.votes[0].Selected)
}

// blockingHandler parks every event until released, so the test can
// observe whether the read loop keeps delivering frames meanwhile.
type blockingHandler struct {
	started chan string
	release chan struct{}
}

func (h *blockingHandler) HandleEvent(_ context.Context, ev domain.InboundEvent) {
	h.started <- ev.ChatID
	<-h.release
}

func (h *blockingHandler) HandleVote(_ context.Context, _ domain.PollVote) {}

func TestSlowChatDoesNotBlockOtherChats(t *testing.T) {
	gs := newGatewayServer(t)
	handler := &blockingHandler{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	defer close(handler.release)
	startClient(t, gs, handler)

	gs.send(t, frame{Op: "event", Event: &domain.InboundEvent{
		ChatID: "chat-a", MessageID: "a1", Type: "chat", Body: "oi",
	}})
	gs.send(t, frame{Op: "event", Event: &domain.InboundEvent{
		ChatID: "chat-b", MessageID: "b1", Type: "chat", Body: "oi",
	}})

	// Both handlers must start while neither has finished.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-handler.started:
			seen[id] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("second frame never reached its handler, %v started", seen)
		}
	}
	assert.True(t, seen["chat-a"])
	assert.True(t, seen["chat-b"])
}

func TestReadinessFrameTogglesReady(t *testing.T) {
	gs := newGatewayServer(t)
	c := startClient(t, gs, newRecordingHandler())

	assert.False(t, c.Ready())

	ready := true
	gs.send(t, frame{Op: "ready", Ready: &ready})
	require.Eventually(t, c.Ready, 2*time.Second, 10*time.Millisecond)

	ready = false
	gs.send(t, frame{Op: "ready", Ready: &ready})
	require.Eventually(t, func() bool { return !c.Ready() }, 2*time.Second, 10*time.Millisecond)
}

func TestSendTextFrame(t *testing.T) {
	gs := newGatewayServer(t)
	c := startClient(t, gs, newRecordingHandler())

	require.NoError(t, c.SendText(context.Background(), "chat-1", "Olá!"))

	f := <-gs.recv
	assert.Equal(t, "send_text", f.Op)
	assert.Equal(t, "chat-1", f.ChatID)
	assert.Equal(t, "Olá!", f.Text)
}

func TestSendPollFrame(t *testing.T) {
	gs := newGatewayServer(t)
	c := startClient(t, gs, newRecordingHandler())

	require.NoError(t, c.SendPoll(context.Background(), "chat-1", "Escolha:", []string{"Sim", "Não"}))

	f := <-gs.recv
	assert.Equal(t, "send_poll", f.Op)
	assert.Equal(t, "Escolha:", f.Question)
	assert.Equal(t, []string{"Sim", "Não"}, f.Options)
}

func TestSendMediaEncodesArtifact(t *testing.T) {
	gs := newGatewayServer(t)
	c := startClient(t, gs, newRecordingHandler())

	path := filepath.Join(t.TempDir(), "img.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))

	require.NoError(t, c.SendMedia(context.Background(), "chat-1", domain.OutboundMedia{
		Path:     path,
		MimeType: "image/png",
		Caption:  "legenda",
	}))

	f := <-gs.recv
	assert.Equal(t, "send_media", f.Op)
	require.NotNil(t, f.Media)
	assert.Equal(t, "image/png", f.Media.MimeType)
	assert.Equal(t, "legenda", f.Media.Caption)
	data, err := base64.StdEncoding.DecodeString(f.Media.Data)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), data)
}

func TestSendWhileDisconnectedFails(t *testing.T) {
	c := NewClient("ws://127.0.0.1:0", newRecordingHandler(), logging.NewNop())
	assert.Error(t, c.SendText(context.Background(), "chat-1", "oi"))
}

func TestFrameWireShape(t *testing.T) {
	data, err := json.Marshal(frame{Op: "send_text", ChatID: "c", Text: "t"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"op":"send_text","chatId":"c","text":"t"}`, string(data))
}
