package eventsub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// frameSize is how much of a message is handed to the session per read.
	frameSize = 8192

	handshakeTimeout = 10 * time.Second
	writeWait        = 5 * time.Second
)

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer overrides the default dialer (10s handshake timeout).
	Dialer *websocket.Dialer
}

// Dial connects to url and returns a frame-streaming Conn.
func (d *WebsocketDialer) Dial(ctx context.Context, url string, header http.Header) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		}
	}

	ws, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake response body is not used
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: HTTP %d: %w", url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &wsConn{ws: ws, buf: make([]byte, frameSize)}, nil
}

// wsConn streams each websocket message in frameSize chunks.
type wsConn struct {
	ws *websocket.Conn

	// Reads happen on the session's receive goroutine only.
	reader io.Reader
	kind   FrameKind
	buf    []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *wsConn) ReadFrame() (Frame, error) {
	if c.reader == nil {
		msgType, r, err := c.ws.NextReader()
		if err != nil {
			return readFailure(err)
		}
		c.reader = r
		c.kind = FrameText
		if msgType == websocket.BinaryMessage {
			c.kind = FrameBinary
		}
	}

	n, err := c.reader.Read(c.buf)
	data := make([]byte, n)
	copy(data, c.buf[:n])

	switch {
	case errors.Is(err, io.EOF):
		c.reader = nil
		return Frame{Kind: c.kind, Data: data, Final: true}, nil
	case err != nil:
		c.reader = nil
		return readFailure(err)
	default:
		return Frame{Kind: c.kind, Data: data}, nil
	}
}

// readFailure maps a gorilla read error onto the Conn contract. A close
// frame from the remote becomes FrameClose. Gorilla reports a dropped TCP
// connection as close code 1006, which is never sent on the wire, so it
// stays an error. Timeouts are rewrapped by gorilla and must be made to
// match os.ErrDeadlineExceeded again.
func readFailure(err error) (Frame, error) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code != websocket.CloseAbnormalClosure {
		return Frame{Kind: FrameClose, Final: true, CloseCode: ce.Code, CloseText: ce.Text}, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return Frame{}, fmt.Errorf("%w: %w", os.ErrDeadlineExceeded, err)
	}
	return Frame{}, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) SetReadDeadline(t time.Time) error {
	return c.ws.SetReadDeadline(t)
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		c.writeMu.Unlock()
		if errors.Is(werr, websocket.ErrCloseSent) {
			werr = nil
		}
		c.closeErr = errors.Join(werr, c.ws.Close())
	})
	return c.closeErr
}
