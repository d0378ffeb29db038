package live

import (
	"bufio"
	"bytes"
	"time"

	"go.uber.org/zap"
)

var heartbeatFrame = []byte(": heartbeat\n\n")

// Pump writes conn's events to w as server-sent events until a write fails or
// the connection is unregistered. A heartbeat comment is written every
// interval; a failed heartbeat is treated like a failed publish.
func (r *Registry) Pump(conn *Connection, w *bufio.Writer, interval time.Duration) error {
	defer r.Unsubscribe(conn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := flushFrame(w, []byte(": connected\n\n")); err != nil {
		return err
	}

	for {
		select {
		case <-conn.done:
			return nil
		case data := <-conn.events:
			if err := flushFrame(w, eventFrame(data)); err != nil {
				r.logger.Debug("live write failed", zap.String("connection_id", conn.ID), zap.Error(err))
				r.metrics.Incr("live.write_failed")
				return err
			}
		case <-ticker.C:
			if err := flushFrame(w, heartbeatFrame); err != nil {
				r.logger.Debug("live heartbeat failed", zap.String("connection_id", conn.ID), zap.Error(err))
				r.metrics.Incr("live.heartbeat_failed")
				return err
			}
		}
	}
}

// eventFrame formats one SSE data event; multi-line payloads get one data
// line each.
func eventFrame(data []byte) []byte {
	var buf bytes.Buffer
	for _, line := range bytes.Split(data, []byte("\n")) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	return buf.Bytes()
}

func flushFrame(w *bufio.Writer, frame []byte) error {
	if _, err := w.Write(frame); err != nil {
		return err
	}
	return w.Flush()
}
