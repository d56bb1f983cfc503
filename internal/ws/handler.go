package ws

import (
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the deployment domain is known.
		return true
	},
}

// HandleConnection upgrades the request and subscribes the resulting
// connection to sessionID (or the wildcard). It returns once the pumps
// are running; teardown removes the client from the subscriber set.
func (b *Broadcaster) HandleConnection(w http.ResponseWriter, r *http.Request, sessionID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := newClient(conn, sessionID)
	b.register(client)

	go client.writePump()
	go client.readPump(func() {
		b.remove(client)
	})

	return nil
}
