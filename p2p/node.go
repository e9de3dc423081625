package p2p

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ordishs/gocore"

	"github.com/steake/bitcell/errors"
	"github.com/steake/bitcell/model"
	"github.com/steake/bitcell/ulogger"
)

const (
	// handshakeTimeout bounds the symmetric handshake exchange.
	handshakeTimeout = 5 * time.Second

	// readTimeout is the per-request read deadline on established
	// connections. A timeout here is a keepalive miss, not a protocol
	// error.
	readTimeout = 90 * time.Second

	// pingInterval drives keepalive pings.
	pingInterval = 30 * time.Second
)

type peerConn struct {
	id   model.PublicKey
	conn net.Conn

	// writeMu serializes frames on the shared connection.
	writeMu sync.Mutex
}

func (p *peerConn) send(msg *Message) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	return WriteMessage(p.conn, msg)
}

// Node runs the accept loop and the per-peer read loops. Inbound blocks and
// transactions funnel into bounded channels; a full channel drops the
// message and relies on re-gossip, which keeps a slow consumer from
// stalling the network task.
type Node struct {
	logger  ulogger.Logger
	localID model.PublicKey

	mu        sync.RWMutex
	peers     map[model.PublicKey]*peerConn
	bootstrap []string

	blockCh chan *model.Block
	txCh    chan *model.Transaction

	listener net.Listener
}

// NewNode creates a network node identified by localID.
func NewNode(logger ulogger.Logger, localID model.PublicKey) *Node {
	initPrometheusMetrics()

	return &Node{
		logger:  logger,
		localID: localID,
		peers:   make(map[model.PublicKey]*peerConn),
		blockCh: make(chan *model.Block, 64),
		txCh:    make(chan *model.Transaction, 1024),
	}
}

// Blocks returns the inbound block channel.
func (n *Node) Blocks() <-chan *model.Block {
	return n.blockCh
}

// Transactions returns the inbound transaction channel.
func (n *Node) Transactions() <-chan *model.Transaction {
	return n.txCh
}

// AddBootstrapPeer queues an address to dial on Start.
func (n *Node) AddBootstrapPeer(address string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.bootstrap = append(n.bootstrap, address)
}

// Start listens on the configured address and dials bootstrap peers. It
// blocks until ctx is cancelled.
func (n *Node) Start(ctx context.Context) error {
	listenAddress, _ := gocore.Config().Get("p2p_listenAddress", ":9333")

	listener, err := net.Listen("tcp", listenAddress)
	if err != nil {
		return errors.New(errors.ERR_ERROR, "p2p listen on %s failed", listenAddress, err)
	}
	n.listener = listener

	n.logger.Infof("[P2P] listening on %s", listenAddress)

	go n.pingLoop(ctx)

	n.mu.RLock()
	bootstrap := append([]string(nil), n.bootstrap...)
	n.mu.RUnlock()
	for _, addr := range bootstrap {
		go func(addr string) {
			if err := n.Connect(ctx, addr); err != nil {
				n.logger.Warnf("[P2P] bootstrap dial %s failed: %v", addr, err)
			}
		}(addr)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			n.logger.Warnf("[P2P] accept failed: %v", err)
			continue
		}

		go n.handleInbound(ctx, conn)
	}
}

// Connect dials a peer and runs the handshake.
func (n *Node) Connect(ctx context.Context, address string) error {
	dialer := net.Dialer{Timeout: handshakeTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return err
	}

	peer, err := n.handshake(conn, true)
	if err != nil {
		_ = conn.Close()
		return err
	}

	go n.readLoop(ctx, peer)
	return nil
}

func (n *Node) handleInbound(ctx context.Context, conn net.Conn) {
	peer, err := n.handshake(conn, false)
	if err != nil {
		n.logger.Debugf("[P2P] inbound handshake failed: %v", err)
		_ = conn.Close()
		return
	}

	n.readLoop(ctx, peer)
}

// handshake performs the symmetric exchange. The initiator sends first; on
// mismatch or timeout the connection is dropped.
func (n *Node) handshake(conn net.Conn, initiator bool) (*peerConn, error) {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	ours, err := NewMessage(MessageHandshake, &Handshake{PeerID: n.localID})
	if err != nil {
		return nil, err
	}

	var theirs *Message
	if initiator {
		if err := WriteMessage(conn, ours); err != nil {
			return nil, err
		}
		theirs, err = ReadMessage(conn)
	} else {
		theirs, err = ReadMessage(conn)
		if err == nil {
			err = WriteMessage(conn, ours)
		}
	}
	if err != nil {
		return nil, err
	}

	if theirs.Type != MessageHandshake {
		return nil, errors.NewInvalidArgumentError("expected handshake, got %s", theirs.Type)
	}

	var hs Handshake
	if err := theirs.DecodeBody(&hs); err != nil {
		return nil, err
	}
	if hs.PeerID.IsZero() || hs.PeerID == n.localID {
		return nil, errors.NewInvalidArgumentError("invalid peer id in handshake")
	}

	peer := &peerConn{id: hs.PeerID, conn: conn}

	n.mu.Lock()
	if old, ok := n.peers[hs.PeerID]; ok {
		_ = old.conn.Close()
	}
	n.peers[hs.PeerID] = peer
	count := len(n.peers)
	n.mu.Unlock()

	prometheusP2PPeers.Set(float64(count))
	n.logger.Infof("[P2P] peer %s connected (%d total)", hs.PeerID, count)

	return peer, nil
}

func (n *Node) removePeer(peer *peerConn) {
	n.mu.Lock()
	if current, ok := n.peers[peer.id]; ok && current == peer {
		delete(n.peers, peer.id)
	}
	count := len(n.peers)
	n.mu.Unlock()

	_ = peer.conn.Close()
	prometheusP2PPeers.Set(float64(count))
}

// readLoop pumps frames from one peer until error or cancellation.
func (n *Node) readLoop(ctx context.Context, peer *peerConn) {
	defer n.removePeer(peer)

	for {
		if ctx.Err() != nil {
			return
		}

		_ = peer.conn.SetReadDeadline(time.Now().Add(readTimeout))
		msg, err := ReadMessage(peer.conn)
		if err != nil {
			n.logger.Debugf("[P2P] peer %s read failed: %v", peer.id, err)
			return
		}

		prometheusP2PMessages.WithLabelValues(msg.Type.String()).Inc()

		if err := n.handleMessage(peer, msg); err != nil {
			n.logger.Debugf("[P2P] peer %s message %s rejected: %v", peer.id, msg.Type, err)
		}
	}
}

func (n *Node) handleMessage(peer *peerConn, msg *Message) error {
	switch msg.Type {
	case MessagePing:
		pong, _ := NewMessage(MessagePong, nil)
		return peer.send(pong)

	case MessagePong:
		return nil

	case MessageBlock:
		var block model.Block
		if err := msg.DecodeBody(&block); err != nil {
			return err
		}
		select {
		case n.blockCh <- &block:
		default:
			// Back-pressure: drop and rely on re-gossip.
		}
		return nil

	case MessageTransaction:
		var tx model.Transaction
		if err := msg.DecodeBody(&tx); err != nil {
			return err
		}
		select {
		case n.txCh <- &tx:
		default:
		}
		return nil

	case MessageGetPeers:
		n.mu.RLock()
		addrs := make([]string, 0, len(n.peers))
		for _, p := range n.peers {
			addrs = append(addrs, p.conn.RemoteAddr().String())
		}
		n.mu.RUnlock()

		reply, err := NewMessage(MessagePeers, &Peers{Addresses: addrs})
		if err != nil {
			return err
		}
		return peer.send(reply)

	case MessagePeers:
		var peers Peers
		if err := msg.DecodeBody(&peers); err != nil {
			return err
		}
		n.mu.Lock()
		n.bootstrap = append(n.bootstrap, peers.Addresses...)
		n.mu.Unlock()
		return nil

	case MessageHandshake:
		return errors.NewInvalidArgumentError("unexpected handshake after connect")

	default:
		return errors.NewInvalidArgumentError("unknown message type %d", msg.Type)
	}
}

func (n *Node) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping, _ := NewMessage(MessagePing, nil)
			n.broadcast(ping)
		}
	}
}

func (n *Node) broadcast(msg *Message) {
	n.mu.RLock()
	peers := make([]*peerConn, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}
	n.mu.RUnlock()

	for _, p := range peers {
		if err := p.send(msg); err != nil {
			n.logger.Debugf("[P2P] send to %s failed: %v", p.id, err)
			n.removePeer(p)
		}
	}
}

// BroadcastBlock gossips a block to all peers.
func (n *Node) BroadcastBlock(block *model.Block) error {
	msg, err := NewMessage(MessageBlock, block)
	if err != nil {
		return err
	}
	n.broadcast(msg)
	return nil
}

// BroadcastTransaction gossips a transaction to all peers.
func (n *Node) BroadcastTransaction(tx *model.Transaction) error {
	msg, err := NewMessage(MessageTransaction, tx)
	if err != nil {
		return err
	}
	n.broadcast(msg)
	return nil
}

// PeerCount returns the number of connected peers.
func (n *Node) PeerCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return len(n.peers)
}

// ConnectedPeers lists connected peer IDs.
func (n *Node) ConnectedPeers() []model.PublicKey {
	n.mu.RLock()
	defer n.mu.RUnlock()

	out := make([]model.PublicKey, 0, len(n.peers))
	for id := range n.peers {
		out = append(out, id)
	}
	return out
}
