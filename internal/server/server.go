package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/npezzotti/go-chatroom/internal/bridge"
	"github.com/npezzotti/go-chatroom/internal/database"
	"github.com/npezzotti/go-chatroom/internal/feed"
	"github.com/npezzotti/go-chatroom/internal/kv"
	"github.com/npezzotti/go-chatroom/internal/presence"
	"github.com/npezzotti/go-chatroom/internal/rooms"
	"github.com/npezzotti/go-chatroom/internal/stats"
	"github.com/npezzotti/go-chatroom/internal/types"
)

const defaultStoreTimeout = 2 * time.Second

// Options holds the collaborators of a ChatServer.
type Options struct {
	KV           kv.Store
	Presence     *presence.Store
	Rooms        *rooms.Index
	Feed         *feed.Feed
	Store        database.ConversationStore
	Bridge       *bridge.Bridge
	StoreTimeout time.Duration
}

type stopReq struct {
	done chan struct{}
}

type registerReq struct {
	client *Client
	done   chan struct{}
}

type joinReq struct {
	client *Client
	roomId string
	done   chan struct{}
}

// ChatServer routes events between the sockets connected to this instance,
// the shared stores and the fan-out bridge. Its maps are owned by the Run
// goroutine.
type ChatServer struct {
	log          *slog.Logger
	stats        stats.StatsProvider
	kv           kv.Store
	presence     *presence.Store
	rooms        *rooms.Index
	feed         *feed.Feed
	store        database.ConversationStore
	bridge       *bridge.Bridge
	storeTimeout time.Duration
	now          func() time.Time

	clients map[*Client]struct{}
	// userMap is the set of local sockets of each user; presence changes
	// only when it goes from empty to non-empty and back.
	userMap map[types.ID]map[*Client]struct{}
	groups  map[string]*group

	registerChan   chan *registerReq
	deRegisterChan chan *Client
	joinChan       chan *joinReq
	broadcastChan  chan *ServerMessage
	stop           chan stopReq
	done           chan struct{}
}

func NewChatServer(logger *slog.Logger, opts Options, su stats.StatsProvider) (*ChatServer, error) {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = defaultStoreTimeout
	}

	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumOnlineUsers")
	su.RegisterMetric("NumMessages")

	return &ChatServer{
		log:            logger.With("component", "chat_server"),
		stats:          su,
		kv:             opts.KV,
		presence:       opts.Presence,
		rooms:          opts.Rooms,
		feed:           opts.Feed,
		store:          opts.Store,
		bridge:         opts.Bridge,
		storeTimeout:   opts.StoreTimeout,
		now:            Now,
		clients:        make(map[*Client]struct{}),
		userMap:        make(map[types.ID]map[*Client]struct{}),
		groups:         make(map[string]*group),
		registerChan:   make(chan *registerReq, 256),
		deRegisterChan: make(chan *Client, 256),
		joinChan:       make(chan *joinReq, 256),
		broadcastChan:  make(chan *ServerMessage, 1024),
		stop:           make(chan stopReq),
		done:           make(chan struct{}),
	}, nil
}

func (cs *ChatServer) Run() {
	for {
		select {
		case req := <-cs.registerChan:
			cs.log.Debug("adding connection", "user_id", req.client.user.Id, "username", req.client.user.Username)
			cs.handleRegister(req.client)
			close(req.done)
		case client := <-cs.deRegisterChan:
			cs.log.Debug("removing connection", "user_id", client.user.Id, "username", client.user.Username)
			cs.handleDeRegister(client)
		case req := <-cs.joinChan:
			cs.handleJoin(req)
			close(req.done)
		case msg := <-cs.broadcastChan:
			cs.handleBroadcast(msg)
		case req := <-cs.stop:
			cs.handleStop()
			close(cs.done)
			close(req.done)
			return
		}
	}
}

// RegisterClient hands a newly authenticated socket to the hub and waits
// until the user's presence is updated. It returns false once the server is
// shut down.
func (cs *ChatServer) RegisterClient(c *Client) bool {
	req := &registerReq{client: c, done: make(chan struct{})}
	select {
	case cs.registerChan <- req:
	case <-cs.done:
		return false
	}

	select {
	case <-req.done:
		return true
	case <-cs.done:
		return false
	}
}

func (cs *ChatServer) deRegisterClient(c *Client) {
	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

// joinRoom returns once the socket is in the room's delivery group, so
// frames the socket sends afterwards are ordered after the join.
func (cs *ChatServer) joinRoom(c *Client, roomId string) {
	req := &joinReq{client: c, roomId: roomId, done: make(chan struct{})}
	select {
	case cs.joinChan <- req:
	case <-cs.done:
		return
	}

	select {
	case <-req.done:
	case <-cs.done:
	}
}

// broadcast queues a message for local delivery.
func (cs *ChatServer) broadcast(msg *ServerMessage) {
	select {
	case cs.broadcastChan <- msg:
	case <-cs.done:
	}
}

func (cs *ChatServer) storeContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), cs.storeTimeout)
}

// addClient reports whether c is the user's first local socket.
func (cs *ChatServer) addClient(c *Client) bool {
	cs.clients[c] = struct{}{}
	cs.stats.Incr("NumActiveClients")

	sockets, ok := cs.userMap[c.user.Id]
	if !ok {
		sockets = make(map[*Client]struct{})
		cs.userMap[c.user.Id] = sockets
	}
	sockets[c] = struct{}{}

	return len(sockets) == 1
}

// removeClient reports whether c was the user's last local socket.
func (cs *ChatServer) removeClient(c *Client) bool {
	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	cs.stats.Decr("NumActiveClients")
	cs.leaveAllGroups(c)

	sockets := cs.userMap[c.user.Id]
	delete(sockets, c)
	if len(sockets) > 0 {
		return false
	}
	delete(cs.userMap, c.user.Id)
	return true
}

func (cs *ChatServer) handleRegister(c *Client) {
	if !cs.addClient(c) {
		return
	}

	ctx, cancel := cs.storeContext()
	defer cancel()

	if err := cs.presence.MarkOnline(ctx, c.user.Id); err != nil {
		cs.log.Error("failed to mark user online", "user_id", c.user.Id, "err", err)
	}
	cs.stats.Incr("NumOnlineUsers")

	snapshot := types.UserPresence{Id: c.user.Id, Username: c.user.Username, Online: true}
	cs.handleBroadcast(UserConnected(snapshot, c))
	cs.publish(ctx, EventUserConnected, snapshot)
}

func (cs *ChatServer) handleDeRegister(c *Client) {
	if !cs.removeClient(c) {
		return
	}
	cs.userOffline(c.user)
}

func (cs *ChatServer) userOffline(user types.User) {
	ctx, cancel := cs.storeContext()
	defer cancel()

	if err := cs.presence.MarkOffline(ctx, user.Id); err != nil {
		cs.log.Error("failed to mark user offline", "user_id", user.Id, "err", err)
	}
	cs.stats.Decr("NumOnlineUsers")

	snapshot := types.UserPresence{Id: user.Id, Username: user.Username, Online: false}
	cs.handleBroadcast(UserDisconnected(snapshot))
	cs.publish(ctx, EventUserDisconnected, snapshot)
}

func (cs *ChatServer) handleJoin(req *joinReq) {
	if _, ok := cs.clients[req.client]; !ok {
		return
	}
	cs.joinGroup(req.roomId, req.client)
}

func (cs *ChatServer) handleBroadcast(msg *ServerMessage) {
	recipients := cs.clients
	if msg.RoomId != "" {
		g, ok := cs.groups[msg.RoomId]
		if !ok {
			return
		}
		recipients = g.clients
	}

	for c := range recipients {
		if c == msg.SkipClient {
			continue
		}
		c.queueMessage(msg)
	}
}

// handleStop stops every local socket and takes their users offline.
func (cs *ChatServer) handleStop() {
	cs.log.Info("shutting down clients", "clients", len(cs.clients))
	for c := range cs.clients {
		c.stopClient()
	}

	users := make([]types.User, 0, len(cs.userMap))
	for _, sockets := range cs.userMap {
		for c := range sockets {
			users = append(users, c.user)
			break
		}
	}
	for c := range cs.clients {
		cs.removeClient(c)
	}
	for _, u := range users {
		cs.userOffline(u)
	}
}

func (cs *ChatServer) publish(ctx context.Context, eventType string, payload any) {
	if err := cs.bridge.Publish(ctx, eventType, payload); err != nil {
		cs.log.Error("failed to publish event", "event", eventType, "err", err)
	}
}

// Shutdown stops the hub and all local sockets, waiting until done or ctx
// expires.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("received shutdown signal")

	req := stopReq{done: make(chan struct{})}
	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
