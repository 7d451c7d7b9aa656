package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans notification payloads out to the live connections of each user.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
	done      chan struct{}
	closeOnce sync.Once
}

// message couples payload with the receiving user.
type message struct {
	userID  string
	payload []byte
	sent    chan int
}

// subscription defines register/unregister requests.
type subscription struct {
	userID string
	client Subscriber
	ack    chan struct{}
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
		done:      make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for _, clients := range h.clients {
				for c := range clients {
					c.Close()
				}
			}
			h.clients = make(map[string]map[Subscriber]struct{})
			h.mu.Unlock()
			return
		case sub := <-h.register:
			if h.closed() {
				sub.client.Close()
				close(sub.ack)
				continue
			}
			h.mu.Lock()
			if _, ok := h.clients[sub.userID]; !ok {
				h.clients[sub.userID] = make(map[Subscriber]struct{})
			}
			h.clients[sub.userID][sub.client] = struct{}{}
			h.mu.Unlock()
			close(sub.ack)
		case sub := <-h.unreg:
			h.mu.Lock()
			if clients, ok := h.clients[sub.userID]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.userID)
				}
			}
			h.mu.Unlock()
			close(sub.ack)
		case msg := <-h.broadcast:
			if h.closed() {
				msg.sent <- 0
				continue
			}
			delivered := 0
			h.mu.Lock()
			if clients, ok := h.clients[msg.userID]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
						continue
					}
					delivered++
				}
				if len(clients) == 0 {
					delete(h.clients, msg.userID)
				}
			}
			h.mu.Unlock()
			msg.sent <- delivered
		}
	}
}

// Register adds a client to a user's stream.
func (h *Hub) Register(userID string, client Subscriber) {
	ack := make(chan struct{})
	select {
	case h.register <- subscription{userID: userID, client: client, ack: ack}:
		<-ack
	case <-h.done:
		client.Close()
	}
}

// Unregister removes a client.
func (h *Hub) Unregister(userID string, client Subscriber) {
	ack := make(chan struct{})
	select {
	case h.unreg <- subscription{userID: userID, client: client, ack: ack}:
		<-ack
	case <-h.done:
	}
}

// SendToUser delivers payload to every connection of userID and reports how
// many received it.
func (h *Hub) SendToUser(userID string, payload []byte) int {
	sent := make(chan int, 1)
	select {
	case h.broadcast <- message{userID: userID, payload: payload, sent: sent}:
		return <-sent
	case <-h.done:
		return 0
	}
}

// Connections reports how many clients userID has registered.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

func (h *Hub) closed() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Close disconnects every client and stops the hub.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}
