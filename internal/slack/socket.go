package slack

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

// envelope is the outer wrapper on every Socket Mode text frame.
type envelope struct {
	Type       string `json:"type"`
	EnvelopeID string `json:"envelope_id"`
	Payload    *struct {
		Event *inboundEvent `json:"event"`
	} `json:"payload"`
}

// inboundEvent is the inner platform event carried by an events_api envelope.
type inboundEvent struct {
	Type     string       `json:"type"`
	Channel  string       `json:"channel"`
	User     string       `json:"user"`
	Text     string       `json:"text"`
	TS       string       `json:"ts"`
	ThreadTS string       `json:"thread_ts"`
	Files    []fileObject `json:"files"`
	Reaction string       `json:"reaction"`
	Item     *struct {
		Channel string `json:"channel"`
		TS      string `json:"ts"`
	} `json:"item"`
}

// fileObject is a file attachment reference on a message event.
type fileObject struct {
	Mimetype           string `json:"mimetype"`
	URLPrivateDownload string `json:"url_private_download"`
	URLPrivate         string `json:"url_private"`
	Thumb480           string `json:"thumb_480"`
	Thumb360           string `json:"thumb_360"`
	Name               string `json:"name"`
}

type socketFrame struct {
	data []byte
	err  error
}

// runSocket owns the long-lived Socket Mode connection: handshake, frame
// loop, envelope acknowledgment, and liveness probes. It exits on
// cancellation, a close frame, or a stream error, and always clears the
// connected flag on the way out.
func (c *Client) runSocket(ctx context.Context, appToken string) error {
	defer c.markDisconnected()

	slog.Info("opening socket mode connection")

	wsURL, err := c.api.OpenConnection(ctx, appToken)
	if err != nil {
		return err
	}

	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial socket mode: %w", err)
	}
	defer conn.Close()

	slog.Info("socket mode connected")

	// Liveness probes are answered from the read goroutine; WriteControl is
	// safe concurrently with the ack writes below.
	conn.SetPingHandler(func(data string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second))
	})

	frames := make(chan socketFrame)
	go func() {
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				// The loop below may already be gone after cancellation;
				// never block on the terminal frame.
				select {
				case frames <- socketFrame{err: err}:
				case <-ctx.Done():
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case frames <- socketFrame{data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("socket mode cancelled")
			return nil
		case frame := <-frames:
			if frame.err != nil {
				slog.Warn("socket mode stream ended", "error", frame.err)
				return nil
			}
			c.handleFrame(ctx, conn, frame.data)
		}
	}
}

// handleFrame decodes one inbound text frame, acks it if required, and
// dispatches any events-feed payload to the enrichment pipeline. A malformed
// frame is logged and skipped; it never terminates the connection.
func (c *Client) handleFrame(ctx context.Context, conn *websocket.Conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		slog.Warn("malformed socket frame skipped", "error", err)
		return
	}

	// The platform redelivers unacked envelopes after ~3s, so the ack goes
	// out before any enrichment work.
	if env.EnvelopeID != "" {
		ack, _ := json.Marshal(map[string]string{"envelope_id": env.EnvelopeID})
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			slog.Error("envelope ack failed", "error", err)
		}
	}

	if env.Type != "events_api" || env.Payload == nil || env.Payload.Event == nil {
		return
	}

	// Enrichment involves its own network calls; run it off the transport
	// loop so slow lookups never stall frame reads.
	go c.handleEvent(ctx, *env.Payload.Event)
}
