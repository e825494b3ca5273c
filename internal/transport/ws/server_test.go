package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/course"
	"voxelfall.ai/internal/sim/tuning"
	"voxelfall.ai/internal/sim/world"
)

func startWorld(t *testing.T) *world.World {
	t.Helper()
	crs, err := course.Load("")
	if err != nil {
		t.Fatalf("course: %v", err)
	}
	w, err := world.New(world.WorldConfig{ID: "ws_test", Seed: 1, Tuning: tuning.Defaults(), Course: crs})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	w.SetLogger(log.New(io.Discard, "", 0))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func startServer(t *testing.T) string {
	t.Helper()
	w := startWorld(t)
	srv, err := NewServer(w, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("ws server: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func hello(t *testing.T, conn *websocket.Conn, name string) protocol.WelcomeMsg {
	t.Helper()
	if err := conn.WriteJSON(protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, PlayerName: name}); err != nil {
		t.Fatalf("write hello: %v", err)
	}
	var welcome protocol.WelcomeMsg
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&welcome); err != nil {
		t.Fatalf("read welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome {
		t.Fatalf("first message type=%s want WELCOME", welcome.Type)
	}
	return welcome
}

// readUntil reads messages until match accepts one or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(b, &m); err != nil {
			t.Fatalf("decode %s: %v", b, err)
		}
		if match(m) {
			return m
		}
	}
}

func TestHandshake_WelcomeThenWorldMessages(t *testing.T) {
	url := startServer(t)
	conn := dial(t, url)
	welcome := hello(t, conn, "alice")
	if welcome.PlayerID != "alice" || welcome.SessionID == "" || welcome.ProtocolVersion != protocol.Version {
		t.Fatalf("welcome=%+v", welcome)
	}
	chat := readUntil(t, conn, func(m map[string]any) bool { return m["type"] == protocol.TypeChat })
	if chat["text"] != "Welcome to the Voxel Fall!" {
		t.Fatalf("first chat=%v", chat)
	}

	if err := conn.WriteJSON(protocol.ChatMsg{Type: protocol.TypeChat, Text: "/dance"}); err != nil {
		t.Fatalf("write chat: %v", err)
	}
	reply := readUntil(t, conn, func(m map[string]any) bool {
		return m["type"] == protocol.TypeChat && strings.HasPrefix(m["text"].(string), "Unknown command")
	})
	if reply["text"] != "Unknown command /dance" {
		t.Fatalf("reply=%v", reply)
	}
}

func TestHandshake_RejectsBadHello(t *testing.T) {
	url := startServer(t)
	conn := dial(t, url)
	if err := conn.WriteJSON(map[string]any{"type": "HELLO", "protocol_version": "0.1", "player_name": "x"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestReader_InvalidMessageGetsError(t *testing.T) {
	url := startServer(t)
	conn := dial(t, url)
	hello(t, conn, "bob")
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"POS","pos":[1,2]}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	m := readUntil(t, conn, func(m map[string]any) bool { return m["type"] == protocol.TypeError })
	if m["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("error=%v", m)
	}
}

func TestReconnect_SupersedesOldConnection(t *testing.T) {
	url := startServer(t)
	old := dial(t, url)
	hello(t, old, "carol")

	fresh := dial(t, url)
	hello(t, fresh, "carol")

	m := readUntil(t, old, func(m map[string]any) bool { return m["type"] == protocol.TypeError })
	if m["code"] != protocol.ErrSuperseded {
		t.Fatalf("error=%v", m)
	}
	// The old socket is closed by the server after the notice.
	_ = old.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := old.ReadMessage(); err != nil {
			break
		}
	}

	// The new connection keeps receiving world traffic.
	readUntil(t, fresh, func(m map[string]any) bool { return m["type"] == protocol.TypeState })
}

func TestAdmit_FailedWelcomeReleasesSession(t *testing.T) {
	w := startWorld(t)
	srv, err := NewServer(w, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("ws server: %v", err)
	}

	playerID, out := srv.admit("dave", "s-dead", func([]byte) error { return errors.New("broken pipe") })
	if playerID != "" || out != nil {
		t.Fatalf("admit=%q,%v want rejection", playerID, out)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		lb, err := w.RequestLeaderboard(ctx)
		cancel()
		if err != nil {
			t.Fatalf("leaderboard: %v", err)
		}
		m := w.Metrics()
		if len(lb.Sessions) == 0 && m.Players == 0 && m.JoinsTotal == 1 {
			if m.PendingTimers != 0 {
				t.Fatalf("pending timers=%d after release", m.PendingTimers)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("session still held: sessions=%+v metrics=%+v", lb.Sessions, m)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
