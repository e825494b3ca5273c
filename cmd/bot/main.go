package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelfall.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "player name")
		speed = flag.Float64("speed", 8, "run speed in blocks per second")
		laps  = flag.Int("laps", 3, "finishes before disconnecting (each extra lap uses /restart)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	msgs := make(chan []byte, 256)
	go func() {
		defer close(msgs)
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				logger.Printf("read: %v", err)
				return
			}
			msgs <- msg
		}
	}()

	r := &racer{speed: *speed, lapsLeft: *laps, logger: logger}
	const reportEvery = 100 * time.Millisecond
	ticker := time.NewTicker(reportEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			r.handle(msg)
		case now := <-ticker.C:
			for _, out := range r.tick(now, reportEvery.Seconds()) {
				if err := conn.WriteJSON(out); err != nil {
					logger.Printf("write: %v", err)
					return
				}
			}
			if r.done {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
				return
			}
		}
	}
}

// racer runs straight at the finish volume once the countdown completes.
type racer struct {
	logger   *log.Logger
	speed    float64
	lapsLeft int

	playerID  string
	finish    [3]float64
	pos       [3]float64
	havePos   bool
	running   bool
	restartAt time.Time
	done      bool
}

func (r *racer) handle(msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeWelcome:
		var w protocol.WelcomeMsg
		if err := json.Unmarshal(msg, &w); err != nil {
			return
		}
		r.playerID = w.PlayerID
		r.finish = w.Course.FinishCenter
		r.logger.Printf("WELCOME player=%s session=%s course=%s finish=%v", w.PlayerID, w.SessionID, w.Course.Name, w.Course.FinishCenter)

	case protocol.TypeState:
		var s protocol.StateMsg
		if err := json.Unmarshal(msg, &s); err != nil {
			return
		}
		for _, a := range s.Avatars {
			if a.PlayerID == r.playerID && !r.havePos {
				r.pos = a.Pos
				r.havePos = true
			}
		}

	case protocol.TypeTeleport:
		// Fall recovery; pick up from the new spawn point via the next STATE.
		r.havePos = false

	case protocol.TypeChat:
		var c protocol.ChatMsg
		if err := json.Unmarshal(msg, &c); err == nil {
			r.logger.Printf("chat: %s", c.Text)
		}

	case protocol.TypeUI:
		var u protocol.UIMsg
		if err := json.Unmarshal(msg, &u); err != nil || u.Data == nil {
			return
		}
		switch u.Data["type"] {
		case "countdown":
			if n, _ := u.Data["remaining"].(float64); n == 0 {
				r.running = true
			}
		case "time":
			r.running = false
			r.havePos = false
			r.lapsLeft--
			r.logger.Printf("finished in %v s, laps left %d", u.Data["time"], r.lapsLeft)
			if r.lapsLeft <= 0 {
				r.done = true
				return
			}
			r.restartAt = time.Now().Add(time.Second)
		case "restart":
			r.running = true
		}

	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err == nil {
			r.logger.Printf("error %s: %s", e.Code, e.Message)
		}
	}
}

func (r *racer) tick(now time.Time, dt float64) []any {
	if !r.restartAt.IsZero() && !now.Before(r.restartAt) {
		r.restartAt = time.Time{}
		return []any{protocol.ChatMsg{Type: protocol.TypeChat, Text: "/restart"}}
	}
	if !r.running || !r.havePos {
		return nil
	}
	r.pos = stepToward(r.pos, r.finish, r.speed*dt)
	return []any{protocol.PosMsg{Type: protocol.TypePos, Pos: r.pos}}
}

func stepToward(from, to [3]float64, maxStep float64) [3]float64 {
	dx, dy, dz := to[0]-from[0], to[1]-from[1], to[2]-from[2]
	d := math.Sqrt(dx*dx + dy*dy + dz*dz)
	if d <= maxStep || d == 0 {
		return to
	}
	k := maxStep / d
	return [3]float64{from[0] + dx*k, from[1] + dy*k, from[2] + dz*k}
}
