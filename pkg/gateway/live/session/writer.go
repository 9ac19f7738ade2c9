package session

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// outboundWriter is the only goroutine that writes to the socket. Priority
// frames (status, errors) always go before queued normal frames.
type outboundWriter struct {
	ws           wsWriter
	ctx          context.Context
	pingInterval time.Duration
	writeTimeout time.Duration
	priority     <-chan []byte
	normal       <-chan []byte
}

func (w *outboundWriter) Run() error {
	pingInterval := w.pingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	if w.writeTimeout <= 0 {
		w.writeTimeout = 5 * time.Second
	}
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.shutdown()
			return nil
		default:
		}

		select {
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(frame); err != nil {
				return err
			}
			continue
		default:
		}

		if w.priority == nil && w.normal == nil {
			return nil
		}

		select {
		case <-w.ctx.Done():
			w.shutdown()
			return nil
		case <-ping.C:
			if err := w.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(w.writeTimeout)); err != nil {
				return err
			}
		case frame, ok := <-w.priority:
			if !ok {
				w.priority = nil
				continue
			}
			if err := w.write(frame); err != nil {
				return err
			}
		case frame, ok := <-w.normal:
			if !ok {
				w.normal = nil
				continue
			}
			if err := w.write(frame); err != nil {
				return err
			}
		}
	}
}

// shutdown flushes a few pending priority frames so a closing status or error
// reaches the page, then sends a close frame.
func (w *outboundWriter) shutdown() {
	deadline := time.Now().Add(100 * time.Millisecond)
flush:
	for i := 0; i < 8 && w.priority != nil && time.Now().Before(deadline); i++ {
		select {
		case frame, ok := <-w.priority:
			if !ok {
				break flush
			}
			_ = w.write(frame)
		default:
			break flush
		}
	}
	_ = w.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(w.writeTimeout))
	_ = w.ws.Close()
}

func (w *outboundWriter) write(frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	if err := w.ws.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, frame)
}
