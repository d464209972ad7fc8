package ekfweb

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Path is where a Room is usually mounted.
const Path = "/ekfweb"

const (
	socketBufferSize  = 1024
	messageBufferSize = 10
)

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

// Room relays messages to every connected websocket client.  Messages come
// either from Broadcast or from any client writing to its socket.
type Room struct {
	// forward holds messages to pass on to the clients.
	forward chan []byte
	// join is a channel for clients wishing to join the room.
	join chan *client
	// leave is a channel for clients wishing to leave the room.
	leave chan *client
	// clients holds all current clients in this room.
	clients map[*client]bool
	// done is closed when Run returns.
	done chan struct{}

	nclients int32
}

// NewRoom makes a new room; it relays nothing until Run is called.
func NewRoom() *Room {
	return &Room{
		forward: make(chan []byte, messageBufferSize),
		join:    make(chan *client),
		leave:   make(chan *client),
		clients: make(map[*client]bool),
		done:    make(chan struct{}),
	}
}

// Run relays messages until ctx is cancelled, then disconnects all clients.
func (r *Room) Run(ctx context.Context) {
	defer func() {
		for c := range r.clients {
			delete(r.clients, c)
			close(c.send)
		}
		atomic.StoreInt32(&r.nclients, 0)
		close(r.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.join:
			r.clients[c] = true
			atomic.StoreInt32(&r.nclients, int32(len(r.clients)))
			glog.Infof("ekfweb: client %s joined", c.socket.RemoteAddr())
		case c := <-r.leave:
			if r.clients[c] {
				delete(r.clients, c)
				close(c.send)
			}
			atomic.StoreInt32(&r.nclients, int32(len(r.clients)))
			glog.Infof("ekfweb: client %s left", c.socket.RemoteAddr())
		case msg := <-r.forward:
			for c := range r.clients {
				select {
				case c.send <- msg:
				default:
					glog.V(1).Infof("ekfweb: client %s is behind, dropping message", c.socket.RemoteAddr())
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (r *Room) Clients() int {
	return int(atomic.LoadInt32(&r.nclients))
}

// Broadcast queues msg for all clients.  It returns false if the room has stopped.
func (r *Room) Broadcast(msg []byte) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.forward <- msg:
		return true
	case <-r.done:
		return false
	}
}

// Publish broadcasts d as JSON.
func (r *Room) Publish(d *AttitudeData) error {
	msg, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "ekfweb: marshalling attitude")
	}
	if !r.Broadcast(msg) {
		return errors.New("ekfweb: room closed")
	}
	return nil
}

func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		glog.Warningf("ekfweb: upgrading %s: %v", req.RemoteAddr, err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
		room:   r,
	}
	select {
	case r.join <- c:
	case <-r.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case r.leave <- c:
		case <-r.done:
		}
	}()
	go c.write()
	c.read()
}
