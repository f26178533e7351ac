package spectator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// Watch dials wsURL and hands every event to fn. It returns nil after a
// finished event when untilFinished is set, or when the server closes normally.
func Watch(ctx context.Context, wsURL string, untilFinished bool, fn func(Event)) error {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	for {
		var ev Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if fn != nil {
			fn(ev)
		}
		if untilFinished && ev.Type == EventFinished {
			return nil
		}
	}
}
