package ekfweb

import (
	"encoding/json"
	"net/url"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// Listener sends estimates to a Room in another process.
type Listener struct {
	u url.URL
	c *websocket.Conn
}

// NewListener connects to the room served at host (such as "localhost:8000") under Path.
func NewListener(host string) (*Listener, error) {
	l := &Listener{u: url.URL{Scheme: "ws", Host: host, Path: Path}}
	if err := l.connect(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Listener) connect() error {
	c, _, err := websocket.DefaultDialer.Dial(l.u.String(), nil)
	if err != nil {
		return errors.Wrapf(err, "ekfweb: connecting to %s", l.u.String())
	}
	l.c = c
	return nil
}

// Send publishes d.  If the connection has failed the message is dropped
// and one reconnection is attempted.
func (l *Listener) Send(d *AttitudeData) error {
	msg, err := json.Marshal(d)
	if err != nil {
		return errors.Wrap(err, "ekfweb: marshalling attitude")
	}
	if err := l.c.WriteMessage(websocket.TextMessage, msg); err != nil {
		glog.Warningf("ekfweb: writing to %s: %v", l.u.String(), err)
		l.c.Close()
		if err2 := l.connect(); err2 != nil {
			return errors.Wrapf(err, "ekfweb: %v", err2)
		}
		return errors.Wrap(err, "ekfweb: message dropped")
	}
	return nil
}

// Close says goodbye to the room and closes the connection.
func (l *Listener) Close() error {
	defer l.c.Close()
	err := l.c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return errors.Wrap(err, "ekfweb: closing websocket")
}
