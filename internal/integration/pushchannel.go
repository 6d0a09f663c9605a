package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Publisher receives decoded push messages. core.EventBus satisfies it.
type Publisher interface {
	Publish(msg models.PushMessage) int
}

// closeGrace bounds how long the close frame may take to send.
const closeGrace = time.Second

// PushChannelConfig configures a PushChannel.
type PushChannelConfig struct {
	URL string
	// Greeting is sent as a text frame once the connection is open.
	// Empty disables it.
	Greeting string
	Header   http.Header
	Dialer   *websocket.Dialer
}

// PushChannel reads typed JSON messages from the server's WebSocket and
// publishes them by type.
type PushChannel struct {
	cfg PushChannelConfig
	pub Publisher
	log logrus.FieldLogger
}

// NewPushChannel creates a PushChannel publishing to pub. A nil log
// discards output.
func NewPushChannel(cfg PushChannelConfig, pub Publisher, log logrus.FieldLogger) *PushChannel {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &PushChannel{cfg: cfg, pub: pub, log: log}
}

// Run connects and dispatches messages until ctx is cancelled or the server
// closes the connection. A normal close or cancellation returns nil.
// Malformed frames are logged and skipped.
func (p *PushChannel) Run(ctx context.Context) error {
	conn, _, err := p.cfg.Dialer.DialContext(ctx, p.cfg.URL, p.cfg.Header)
	if err != nil {
		return fmt.Errorf("connecting push channel: %w", err)
	}
	defer conn.Close()
	p.log.WithField("url", p.cfg.URL).Info("push channel connected")

	if p.cfg.Greeting != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(p.cfg.Greeting)); err != nil {
			return fmt.Errorf("sending push greeting: %w", err)
		}
	}

	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(closeGrace))
		_ = conn.Close()
	})
	defer stop()

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				p.log.Info("push channel closed")
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				p.log.WithField("reason", closeErr.Text).Info("push channel closed")
			}
			return fmt.Errorf("reading push channel: %w", err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}

		msg, err := models.DecodePushMessage(data)
		if err != nil {
			p.log.WithError(err).Warn("dropping malformed push message")
			continue
		}
		p.log.WithField("type", msg.Type).Debug("push message received")
		p.pub.Publish(msg)
	}
}
