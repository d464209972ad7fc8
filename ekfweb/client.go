package ekfweb

import (
	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// client is a single websocket connection in a Room.
type client struct {
	socket *websocket.Conn
	// send is a channel on which messages are sent.
	send chan []byte
	room *Room
}

// read forwards anything the client writes to the room until the socket fails.
func (c *client) read() {
	defer c.socket.Close()
	for {
		_, msg, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				glog.Warningf("ekfweb: reading from %s: %v", c.socket.RemoteAddr(), err)
			}
			return
		}
		if !c.room.Broadcast(msg) {
			return
		}
	}
}

// write sends queued messages until the room closes the send channel.
func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			glog.V(1).Infof("ekfweb: writing to %s: %v", c.socket.RemoteAddr(), err)
			return
		}
	}
	c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
