// Package wsconn is the cluster transport: one long-lived gorilla/websocket
// connection per peer pair, carrying the registrar's envelopes, used to
// realize the registry.Cluster interface the registrar depends on. It plays
// the role spec.md §9's Design Notes assign to "a straightforward
// implementation" of the out-of-scope cluster membership transport, and is
// adapted from the connection-hub pattern in the teacher's
// internal/websocket/monitor.go. Peers are kept in a mutex-guarded map, each
// served by its own write-loop and read-loop goroutine, and SendTo never
// blocks.
package wsconn

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regnode/internal/registry"
)

const (
	writeBufferCap = 256
	handshakePath  = "/_registrar"
	dialTimeout    = 5 * time.Second
)

type handshake struct {
	Node string `json:"node"`
}

// Cluster implements registry.Cluster over gorilla/websocket connections.
// It is also an http.Handler: mount it on the registrar's listen address at
// handshakePath ("/_registrar") to accept inbound peer dials.
type Cluster struct {
	self     registry.NodeID
	upgrader websocket.Upgrader
	logger   *log.Logger

	membership chan registry.MembershipEvent
	inbound    chan registry.InboundFrame

	mu    sync.Mutex
	peers map[registry.NodeID]*peerConn
}

// New creates a Cluster identifying itself as self. Dial peer addresses and
// mount Cluster's http.Handler before calling registry.New's Run.
func New(self registry.NodeID, logger *log.Logger) *Cluster {
	if logger == nil {
		logger = log.Default()
	}
	return &Cluster{
		self:       self,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		logger:     logger,
		membership: make(chan registry.MembershipEvent, 64),
		inbound:    make(chan registry.InboundFrame, 256),
		peers:      make(map[registry.NodeID]*peerConn),
	}
}

func (c *Cluster) LocalNodeIdentity() registry.NodeID { return c.self }

func (c *Cluster) NodeTotalOrder(a, b registry.NodeID) int {
	return strings.Compare(string(a), string(b))
}

func (c *Cluster) SubscribeMembership() <-chan registry.MembershipEvent { return c.membership }
func (c *Cluster) Inbound() <-chan registry.InboundFrame                { return c.inbound }

func (c *Cluster) SendTo(node registry.NodeID, payload []byte) error {
	c.mu.Lock()
	p, ok := c.peers[node]
	c.mu.Unlock()
	if !ok {
		return nil // best-effort: silently dropped, recovered by eventual DOWN + sync
	}
	select {
	case p.writeCh <- payload:
	default:
		c.logger.Printf("wsconn: write buffer full for %s, dropping frame", node)
	}
	return nil
}

// Connected reports whether a live connection to node currently exists, for
// use by a membership/discovery layer deciding whether to (re)dial.
func (c *Cluster) Connected(node registry.NodeID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.peers[node]
	return ok
}

func (c *Cluster) WatchPeer(node registry.NodeID) (<-chan struct{}, error) {
	c.mu.Lock()
	p, ok := c.peers[node]
	c.mu.Unlock()
	if !ok {
		return nil, errors.New("wsconn: no live connection to " + string(node))
	}
	return p.done, nil
}

// ServeHTTP accepts an inbound peer dial at handshakePath.
func (c *Cluster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != handshakePath {
		http.NotFound(w, r)
		return
	}
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Printf("wsconn: upgrade failed: %v", err)
		return
	}
	peer, err := c.readHandshake(conn)
	if err != nil {
		c.logger.Printf("wsconn: handshake failed: %v", err)
		conn.Close()
		return
	}
	if err := c.writeHandshake(conn); err != nil {
		c.logger.Printf("wsconn: handshake failed: %v", err)
		conn.Close()
		return
	}
	c.adopt(peer, conn)
}

// Dial opens an outbound connection to addr, expected to be another
// Cluster's handshakePath endpoint (e.g. "ws://10.0.0.2:9100/_registrar").
func (c *Cluster) Dial(addr string) error {
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(addr, nil)
	if err != nil {
		return err
	}
	if err := c.writeHandshake(conn); err != nil {
		conn.Close()
		return err
	}
	peer, err := c.readHandshake(conn)
	if err != nil {
		conn.Close()
		return err
	}
	c.adopt(peer, conn)
	return nil
}

func (c *Cluster) readHandshake(conn *websocket.Conn) (registry.NodeID, error) {
	var hs handshake
	if err := conn.ReadJSON(&hs); err != nil {
		return "", err
	}
	if hs.Node == "" {
		return "", errors.New("wsconn: empty handshake node id")
	}
	return registry.NodeID(hs.Node), nil
}

func (c *Cluster) writeHandshake(conn *websocket.Conn) error {
	return conn.WriteJSON(handshake{Node: string(c.self)})
}

func (c *Cluster) adopt(peer registry.NodeID, conn *websocket.Conn) {
	p := &peerConn{
		conn:    conn,
		writeCh: make(chan []byte, writeBufferCap),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	if old, exists := c.peers[peer]; exists {
		old.close()
	}
	c.peers[peer] = p
	c.mu.Unlock()

	go c.writeLoop(peer, p)
	go c.readLoop(peer, p)

	c.membership <- registry.MembershipEvent{Kind: registry.NodeUp, Node: peer}
}

func (c *Cluster) writeLoop(peer registry.NodeID, p *peerConn) {
	for {
		select {
		case payload, ok := <-p.writeCh:
			if !ok {
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Printf("wsconn: write to %s failed: %v", peer, err)
				c.drop(peer, p)
				return
			}
		case <-p.done:
			return
		}
	}
}

func (c *Cluster) readLoop(peer registry.NodeID, p *peerConn) {
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			c.drop(peer, p)
			return
		}
		frame := registry.InboundFrame{From: peer, Payload: append([]byte(nil), data...)}
		c.inbound <- frame
	}
}

func (c *Cluster) drop(peer registry.NodeID, p *peerConn) {
	c.mu.Lock()
	if c.peers[peer] == p {
		delete(c.peers, peer)
	}
	c.mu.Unlock()
	p.close()
	c.membership <- registry.MembershipEvent{Kind: registry.NodeDown, Node: peer}
}

type peerConn struct {
	conn    *websocket.Conn
	writeCh chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func (p *peerConn) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}
