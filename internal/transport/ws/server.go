// Package ws bridges WebSocket controllers to the field loop: one
// connection is one session, commands flow into Field.Inbox and state
// frames flow back over the session's out queue.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"phalanx.gg/internal/protocol"
	"phalanx.gg/internal/sim/field"
)

type Server struct {
	field *field.Field
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(f *field.Field, logger *log.Logger) *Server {
	s := &Server{
		field: f,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
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
			base, err := protocol.DecodeBase(msg)
			if err != nil {
				queueAck(out, protocol.ErrProtoBadRequest, "undecodable frame")
				continue
			}
			if base.Type != protocol.TypeCmd {
				queueAck(out, protocol.ErrProtoBadRequest, "expected CMD")
				continue
			}
			var cmd protocol.CmdMsg
			if err := json.Unmarshal(msg, &cmd); err != nil {
				queueAck(out, protocol.ErrProtoBadRequest, "malformed CMD")
				continue
			}
			if cmd.ProtocolVersion != protocol.Version {
				queueAck(out, protocol.ErrProtoBadRequest, "bad protocol_version")
				continue
			}
			s.field.Inbox() <- field.CmdEnvelope{SessionID: sessionID, Cmd: cmd}
		}

		// Cleanup.
		s.field.Leave() <- sessionID
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ControllerName == "" {
		hello.ControllerName = "controller"
	}

	maxQ := hello.Capabilities.MaxQueue
	if maxQ <= 0 {
		maxQ = 8
	}
	if limit := s.field.OutQueueFrames(); maxQ > limit {
		maxQ = limit
	}
	out = make(chan []byte, maxQ)

	respCh := make(chan field.JoinResponse, 1)
	s.field.Join() <- field.JoinRequest{
		ControllerName: hello.ControllerName,
		Out:            out,
		Resp:           respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		return "", nil
	}
	return resp.Welcome.SessionID, out
}

// queueAck rides the session's out queue so the writer goroutine stays
// the only writer on the connection. Full queue drops the ack.
func queueAck(out chan []byte, code, message string) {
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		Accepted:        false,
		Code:            code,
		Message:         message,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
