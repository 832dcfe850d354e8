package taskdecksdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"taskdeck/internal/remote"
)

// Subscribe opens the collection's websocket change feed. The channel closes
// when ctx ends or the server drops the connection.
func (t *Table[T]) Subscribe(ctx context.Context, ownerID string) (<-chan remote.Change[T], error) {
	endpoint, err := t.client.feedURL(t.collection)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	t.client.authorize(header, ownerID)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: err.Error()}
		}
		return nil, err
	}
	out := make(chan remote.Change[T], 16)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var ch remote.Change[T]
			if err := conn.ReadJSON(&ch); err != nil {
				return
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *Client) feedURL(collection string) (string, error) {
	u, err := url.Parse(c.base() + "/" + collection + "/changes")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.ReplaceAll(u.Path, "//", "/")
	return u.String(), nil
}
