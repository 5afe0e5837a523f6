package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startBridge(t testing.TB, uri string) string {
	mux := http.NewServeMux()
	require.NoError(t, AddWebsocketHandler(mux, "/linemq", uri))

	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)

	return "ws" + strings.TrimPrefix(hs.URL, "http") + "/linemq"
}

func dialBridge(t testing.TB, wsuri string) *websocket.Conn {
	ws, _, err := websocket.DefaultDialer.Dial(wsuri, nil)
	require.NoError(t, err)

	t.Cleanup(func() { ws.Close() })

	return ws
}

func TestWebsocketBridge(t *testing.T) {
	svr := &Server{}
	uri := startServer(t, svr, "tcp")
	wsuri := startBridge(t, uri)

	ws := dialBridge(t, wsuri)
	pub := connect(t, uri)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("SUBSCRIBE chat")))
	require.Eventually(t, func() bool { return svr.Subscriptions() == 1 }, waitFor, tick)

	publish(t, pub, "tcp", "chat", "hi there")

	ws.SetReadDeadline(time.Now().Add(waitFor))
	mt, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	require.Equal(t, "hi there", string(payload))

	// Binary payloads stay binary.
	send(t, pub, "tcp", "chat|\xff\xfe")

	mt, payload, err = ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, mt)
	require.Equal(t, []byte{0xff, 0xfe}, payload)
}

func TestWebsocketEmptyFrame(t *testing.T) {
	svr := &Server{}
	uri := startServer(t, svr, "tcp")
	wsuri := startBridge(t, uri)

	ws := dialBridge(t, wsuri)
	pub := connect(t, uri)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("SUBSCRIBE empty")))
	require.Eventually(t, func() bool { return svr.Subscriptions() == 1 }, waitFor, tick)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte{}))

	// The bridge stays up and the subscription survives.
	require.Never(t, func() bool { return svr.Subscriptions() != 1 }, quietFor, tick)

	publish(t, pub, "tcp", "empty", "still here")

	ws.SetReadDeadline(time.Now().Add(waitFor))
	_, payload, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, "still here", string(payload))
}

func TestWebsocketPublish(t *testing.T) {
	svr := &Server{}
	uri := startServer(t, svr, "tcp")
	wsuri := startBridge(t, uri)

	ws := dialBridge(t, wsuri)
	sub := connect(t, uri)

	subscribe(t, svr, sub, "from-ws")

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("from-ws|hello")))

	expectPayload(t, sub, "hello")
}

func TestWebsocketDisconnectPurges(t *testing.T) {
	svr := &Server{}
	uri := startServer(t, svr, "tcp")
	wsuri := startBridge(t, uri)

	ws := dialBridge(t, wsuri)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("SUBSCRIBE gone")))
	require.Eventually(t, func() bool { return svr.Subscriptions() == 1 }, waitFor, tick)

	ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ws.Close()

	require.Eventually(t, func() bool {
		return svr.Subscriptions() == 0 && svr.Connections() == 0
	}, waitFor, tick)
}

func TestWebsocketHandlerScheme(t *testing.T) {
	mux := http.NewServeMux()

	require.ErrorIs(t, AddWebsocketHandler(mux, "/udp", "udp://127.0.0.1:8080"), ErrInvalidConnectionType)
	require.NoError(t, AddWebsocketHandler(mux, "/tcp", "tcp://127.0.0.1:8080"))
}
