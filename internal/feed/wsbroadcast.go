package feed

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/coder/websocket"
)

// WSBroadcast subscribes to the control plane's websocket broadcast channel.
// Frames are JSON notices: {"event": "npc_created", "payload": {...}}.
// The channel is best effort; a read error ends the subscription without
// affecting the primary change stream.
type WSBroadcast struct {
	URL string
}

func (w *WSBroadcast) Subscribe(ctx context.Context, onNotice func(Notice)) (Subscription, error) {
	conn, _, err := websocket.Dial(ctx, w.URL, nil)
	if err != nil {
		return nil, err
	}

	readCtx, cancel := context.WithCancel(ctx)
	sub := &wsSubscription{conn: conn, cancel: cancel}
	go func() {
		defer conn.Close(websocket.StatusNormalClosure, "done")
		for {
			_, data, err := conn.Read(readCtx)
			if err != nil {
				if readCtx.Err() == nil {
					log.Printf("[feed] broadcast read: %v", err)
				}
				return
			}
			var n Notice
			if err := json.Unmarshal(data, &n); err != nil {
				log.Printf("[feed] bad broadcast frame: %v", err)
				continue
			}
			onNotice(n)
		}
	}()
	return sub, nil
}

type wsSubscription struct {
	once   sync.Once
	conn   *websocket.Conn
	cancel context.CancelFunc
}

func (s *wsSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.conn.Close(websocket.StatusNormalClosure, "unsubscribed")
	})
}
