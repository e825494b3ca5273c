package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/world"
)

const (
	outQueue    = 256
	joinTimeout = 5 * time.Second
)

type Server struct {
	world     *world.World
	log       *log.Logger
	validator *protocol.Validator

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) (*Server, error) {
	v, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New(os.Stdout, "[ws] ", log.LstdFlags|log.Lmicroseconds)
	}
	s := &Server{
		world:     w,
		log:       logger,
		validator: v,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		playerID, sessionID, out := s.handshake(conn)
		if playerID == "" {
			return
		}
		s.log.Printf("join player=%s session=%s remote=%s", playerID, sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// The world owns out and closes it when the session is superseded;
		// transport errors go through their own queue.
		errs := make(chan []byte, 16)

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-errs:
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
				case b, ok := <-out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"), time.Now().Add(time.Second))
						_ = conn.Close()
						cancel()
						return
					}
					if err := writeRaw(conn, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			env, code, reason := s.decode(msg)
			if code != "" {
				select {
				case errs <- errorFrame(code, reason):
				default:
				}
				continue
			}
			env.PlayerID = playerID
			env.SessionID = sessionID
			select {
			case s.world.Inbox() <- env:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.world.Leave() <- world.LeaveRequest{PlayerID: playerID, SessionID: sessionID}
		s.log.Printf("leave player=%s session=%s", playerID, sessionID)
	}
}

// decode validates one client message. A non-empty code means the message was rejected.
func (s *Server) decode(msg []byte) (env world.Envelope, code, reason string) {
	base, err := s.validator.Inbound(msg)
	if err != nil {
		return env, protocol.ErrProtoBadRequest, err.Error()
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return env, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	switch base.Type {
	case protocol.TypePos:
		var m protocol.PosMsg
		err = json.Unmarshal(msg, &m)
		env.Pos = &m
	case protocol.TypeCollision:
		var m protocol.CollisionMsg
		err = json.Unmarshal(msg, &m)
		env.Collision = &m
	case protocol.TypeChat:
		var m protocol.ChatMsg
		err = json.Unmarshal(msg, &m)
		env.Chat = &m
	default:
		return env, protocol.ErrProtoBadRequest, "unexpected message type " + base.Type
	}
	if err != nil {
		return env, protocol.ErrProtoBadRequest, err.Error()
	}
	return env, "", ""
}

func (s *Server) handshake(conn *websocket.Conn) (playerID, sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		closePolicy(conn, "expected HELLO")
		return "", "", nil
	}
	if _, err := s.validator.Inbound(msg); err != nil {
		closePolicy(conn, "bad HELLO")
		return "", "", nil
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		closePolicy(conn, "bad protocol_version")
		return "", "", nil
	}

	sessionID = uuid.NewString()
	playerID, out = s.admit(hello.PlayerName, sessionID, func(b []byte) error { return writeRaw(conn, b) })
	if playerID == "" {
		return "", "", nil
	}
	return playerID, sessionID, out
}

// admit queues the join and writes WELCOME through write. If the world is
// busy or WELCOME cannot be written, it returns an empty playerID and the
// world holds no session for sessionID.
func (s *Server) admit(name, sessionID string, write func([]byte) error) (playerID string, out chan []byte) {
	out = make(chan []byte, outQueue)
	respCh := make(chan world.JoinResponse, 1)
	req := world.JoinRequest{
		Name:      name,
		SessionID: sessionID,
		Out:       out,
		Resp:      respCh,
	}
	select {
	case s.world.Join() <- req:
	case <-time.After(joinTimeout):
		_ = write(errorFrame(protocol.ErrWorldBusy, "join queue full"))
		return "", nil
	}
	resp := <-respCh

	// WELCOME goes out before anything the world queued during the join.
	b, err := json.Marshal(resp.Welcome)
	if err == nil {
		err = write(b)
	}
	if err != nil {
		s.world.Leave() <- world.LeaveRequest{PlayerID: resp.Welcome.PlayerID, SessionID: sessionID}
		return "", nil
	}
	return resp.Welcome.PlayerID, out
}

func closePolicy(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}

func errorFrame(code, message string) []byte {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	return b
}

func writeRaw(conn *websocket.Conn, b []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
