package server

// group is the local delivery group of a room: the sockets on this instance
// that joined it. Groups are created on first join and dropped when their
// last socket leaves.
type group struct {
	roomId  string
	clients map[*Client]struct{}
}

func (cs *ChatServer) joinGroup(roomId string, c *Client) {
	g, ok := cs.groups[roomId]
	if !ok {
		g = &group{roomId: roomId, clients: make(map[*Client]struct{})}
		cs.groups[roomId] = g
	}
	g.clients[c] = struct{}{}
	if c.rooms == nil {
		c.rooms = make(map[string]struct{})
	}
	c.rooms[roomId] = struct{}{}
}

func (cs *ChatServer) leaveGroup(roomId string, c *Client) {
	delete(c.rooms, roomId)

	g, ok := cs.groups[roomId]
	if !ok {
		return
	}
	delete(g.clients, c)
	if len(g.clients) == 0 {
		delete(cs.groups, roomId)
	}
}

func (cs *ChatServer) leaveAllGroups(c *Client) {
	for roomId := range c.rooms {
		cs.leaveGroup(roomId, c)
	}
}
