package service

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/surgemq/linemq/commons"
	"github.com/surgemq/linemq/message"
)

var upgrader = &websocket.Upgrader{
	ReadBufferSize:  message.MaxUnitSize,
	WriteBufferSize: message.MaxUnitSize,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AddWebsocketHandler mounts a websocket bridge on mux at pattern. Every
// websocket peer gets its own stream connection to the broker at addr, e.g.
// "tcp://127.0.0.1:8080", so it behaves exactly like a stream peer: one
// websocket message is one unit, and each delivered payload arrives as one
// websocket message.
func AddWebsocketHandler(mux *http.ServeMux, pattern string, addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
	default:
		return ErrInvalidConnectionType
	}

	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(w, r, u.Scheme, u.Host)
	})

	return nil
}

func websocketHandler(w http.ResponseWriter, r *http.Request, network, addr string) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		commons.Log.Debug("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	defer ws.Close()

	conn, err := net.Dial(network, addr)
	if err != nil {
		commons.Log.Error("websocket bridge dial failed", zap.String("addr", addr), zap.Error(err))
		return
	}
	defer conn.Close()

	commons.Log.Debug("websocket bridge opened",
		zap.String("remote", r.RemoteAddr),
		zap.Stringer("local", conn.LocalAddr()))

	wc := newWebsocketConn(ws)
	errc := make(chan error, 2)

	go pump(conn, wc, errc)
	go pump(wc, conn, errc)

	// Either side ending tears down both; the deferred closes unblock the
	// other pump.
	if err := <-errc; err != nil && !isClosedErr(err) {
		commons.Log.Debug("websocket bridge closed", zap.String("remote", r.RemoteAddr), zap.Error(err))
	}
}

// pump copies one read at a time so unit boundaries survive the bridge.
func pump(dst io.Writer, src io.Reader, errc chan<- error) {
	buf := make([]byte, message.MaxUnitSize-1)

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				errc <- werr
				return
			}
		}

		if err != nil {
			errc <- err
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// websocketConn wraps a websocket.Conn to satisfy the net.Conn and
// io.ReadWriteCloser interfaces
type websocketConn struct {
	buf        *bytes.Buffer
	readMutex  sync.Mutex
	writeMutex sync.Mutex
	*websocket.Conn
}

// Read returns the rest of the current websocket message, or the next one.
// It never joins two messages in one read. Empty messages are skipped.
func (w *websocketConn) Read(p []byte) (n int, err error) {
	w.readMutex.Lock()
	defer w.readMutex.Unlock()

	for w.buf.Len() == 0 {
		_, msg, err := w.ReadMessage()
		if err != nil {
			return 0, err
		}

		w.buf.Reset()
		w.buf.Write(msg)
	}

	return w.buf.Read(p)
}

// Write sends p as one websocket message: text when p is valid UTF-8, binary
// otherwise.
func (w *websocketConn) Write(p []byte) (n int, err error) {
	mt := websocket.BinaryMessage
	if utf8.Valid(p) {
		mt = websocket.TextMessage
	}

	w.writeMutex.Lock()
	err = w.WriteMessage(mt, p)
	w.writeMutex.Unlock()

	if err != nil {
		return 0, err
	}

	return len(p), nil
}

func (w *websocketConn) SetReadDeadline(t time.Time) (err error) {
	w.readMutex.Lock()
	err = w.Conn.SetReadDeadline(t)
	w.readMutex.Unlock()
	return err
}

func (w *websocketConn) SetWriteDeadline(t time.Time) (err error) {
	w.writeMutex.Lock()
	err = w.Conn.SetWriteDeadline(t)
	w.writeMutex.Unlock()
	return err
}

func (w *websocketConn) SetDeadline(t time.Time) error {
	if err := w.SetReadDeadline(t); err != nil {
		return err
	}
	if err := w.SetWriteDeadline(t); err != nil {
		return err
	}
	return nil
}

// newWebsocketConn wraps the provided websocket.Conn and returns a new
// websocketConn instance
func newWebsocketConn(ws *websocket.Conn) *websocketConn {
	return &websocketConn{
		buf:  bytes.NewBuffer(nil),
		Conn: ws,
	}
}
