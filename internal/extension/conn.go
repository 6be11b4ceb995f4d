package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/browser"
)

const writeTimeout = 10 * time.Second

// ErrDisconnected is returned by browser calls once the extension is gone.
var ErrDisconnected = errors.New("extension disconnected")

type rpcReply struct {
	result gjson.Result
	err    string
}

// conn is one extension connection. It is also the browser.Browser the
// connection's agent drives: every call becomes an RPC frame answered by
// the extension.
type conn struct {
	ctx        context.Context
	ws         *websocket.Conn
	rpcTimeout time.Duration
	logger     *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[string]chan rpcReply
	done    chan struct{}
	closed  bool

	work sync.WaitGroup
}

var _ browser.Browser = (*conn)(nil)

func newConn(ctx context.Context, ws *websocket.Conn, rpcTimeout time.Duration, logger *slog.Logger) *conn {
	return &conn{
		ctx:        ctx,
		ws:         ws,
		rpcTimeout: rpcTimeout,
		logger:     logger,
		pending:    make(map[string]chan rpcReply),
		done:       make(chan struct{}),
	}
}

// serve reads frames until the socket closes. Requests run in their own
// goroutines so RPC replies keep flowing while the agent works.
func (c *conn) serve(session *bridge.Session) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read ended", "error", err)
			}
			return
		}
		if !gjson.ValidBytes(data) {
			c.writeFrame(errorFrame("", "Error: malformed message."))
			continue
		}

		msg := gjson.ParseBytes(data)
		id := msg.Get("id").String()
		switch typ := msg.Get("type").String(); typ {
		case typeProcessTranscript:
			text := msg.Get("payload").String()
			c.work.Add(1)
			go func() {
				defer c.work.Done()
				res := session.Submit(c.ctx, text, c.notify)
				c.writeFrame(resultFrame(id, res))
			}()
		case typeResetChat:
			c.writeFrame(resultFrame(id, session.Reset(c.ctx)))
		case typeRPCResult:
			c.deliver(id, rpcReply{result: msg.Get("result"), err: msg.Get("error").String()})
		default:
			c.logger.Warn("unknown message type", "type", typ)
			c.writeFrame(errorFrame(id, "Error: unknown message type."))
		}
	}
}

// close fails pending RPCs and waits for in-flight requests.
func (c *conn) close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
	c.mu.Unlock()
	c.work.Wait()
}

func (c *conn) writeFrame(b []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		c.logger.Debug("websocket write failed", "error", err)
		return err
	}
	return nil
}

func (c *conn) notify(p agent.Progress) {
	c.writeFrame(statusFrame(p))
}

func (c *conn) deliver(id string, r rpcReply) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	delete(c.pending, id)
	c.mu.Unlock()
	if !ok {
		c.logger.Warn("rpc result for unknown call", "id", id)
		return
	}
	ch <- r
}

func (c *conn) call(ctx context.Context, method string, params any) (gjson.Result, error) {
	id := strconv.FormatInt(c.nextID.Add(1), 10)
	ch := make(chan rpcReply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return gjson.Result{}, ErrDisconnected
	}
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.writeFrame(rpcFrame(id, method, params)); err != nil {
		return gjson.Result{}, fmt.Errorf("sending %s: %w", method, err)
	}

	timer := time.NewTimer(c.rpcTimeout)
	defer timer.Stop()
	select {
	case r := <-ch:
		if r.err != "" {
			return gjson.Result{}, errors.New(r.err)
		}
		return r.result, nil
	case <-ctx.Done():
		return gjson.Result{}, ctx.Err()
	case <-c.done:
		return gjson.Result{}, ErrDisconnected
	case <-timer.C:
		return gjson.Result{}, fmt.Errorf("%s: no reply from extension after %s", method, c.rpcTimeout)
	}
}

func (c *conn) ActiveTab(ctx context.Context) (*browser.Tab, error) {
	res, err := c.call(ctx, methodGetActiveTab, nil)
	if err != nil {
		return nil, err
	}
	if !res.IsObject() {
		return nil, browser.ErrNoActiveTab
	}
	return parseTab(res), nil
}

func (c *conn) OpenTab(ctx context.Context, url string, active bool) (*browser.Tab, error) {
	res, err := c.call(ctx, methodCreateTab, map[string]any{"url": url, "active": active})
	if err != nil {
		return nil, err
	}
	tab := parseTab(res)
	if tab.URL == "" {
		tab.URL = url
	}
	return tab, nil
}

func (c *conn) PageText(ctx context.Context, tabID int) (string, error) {
	res, err := c.call(ctx, methodGetText, map[string]any{"tabId": tabID})
	if err != nil {
		return "", err
	}
	return res.String(), nil
}

func (c *conn) CreateBookmark(ctx context.Context, b browser.Bookmark) (*browser.Bookmark, error) {
	params := map[string]any{"title": b.Title}
	if b.URL != "" {
		params["url"] = b.URL
	}
	if b.ParentID != "" {
		params["parentId"] = b.ParentID
	}
	res, err := c.call(ctx, methodCreateBookmark, params)
	if err != nil {
		return nil, err
	}
	out := browser.Bookmark{
		ID:       res.Get("id").String(),
		ParentID: res.Get("parentId").String(),
		Title:    res.Get("title").String(),
		URL:      res.Get("url").String(),
	}
	if out.Title == "" {
		out.Title = b.Title
	}
	return &out, nil
}

func parseTab(res gjson.Result) *browser.Tab {
	return &browser.Tab{
		ID:    int(res.Get("id").Int()),
		URL:   res.Get("url").String(),
		Title: res.Get("title").String(),
	}
}
