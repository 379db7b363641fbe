package websocket

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"ridematch/internal/models"
	"ridematch/pkg/logger"
	"ridematch/pkg/metrics"
)

// RoomAuthorizer decides whether a connected user may follow a ride.
type RoomAuthorizer interface {
	CanJoinRideTopic(ctx context.Context, principal models.Principal, rideID string) bool
}

// EventSource is the dispatch bus as seen by the hub.
type EventSource interface {
	Subscribe(ctx context.Context, patterns ...string) (<-chan *models.DispatchEvent, error)
}

// Hub keeps connected clients grouped in rooms named after dispatch topics.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex

	authorizer RoomAuthorizer
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// Message is a control frame exchanged with clients. Dispatch events are
// forwarded as-is.
type Message struct {
	Type      string `json:"type"`
	Topic     string `json:"topic,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

const (
	MessageWelcome = "welcome"
	MessageJoin    = "join_room"
	MessageLeave   = "leave_room"
	MessageJoined  = "joined"
	MessageLeft    = "left"
	MessagePing    = "ping"
	MessagePong    = "pong"
	MessageError   = "error"
)

func NewHub(authorizer RoomAuthorizer, m *metrics.Metrics, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rooms:      make(map[string]map[*Client]bool),
		authorizer: authorizer,
		metrics:    m,
		logger:     log.WithComponent("websocket_hub"),
	}
}

// Run processes registrations until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return
		}
	}
}

// Register hands client to the run loop. It fails once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Relay forwards every dispatch event to the matching room until ctx is
// done or the source closes the subscription.
func (h *Hub) Relay(ctx context.Context, source EventSource) error {
	events, err := source.Subscribe(ctx, "vehicle:*", "ride:*", "user:*")
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			h.Deliver(event)
		}
	}
}

// Deliver sends event to everyone in the room named by its topic, skipping
// drivers listed in ExcludedDrivers.
func (h *Hub) Deliver(event *models.DispatchEvent) {
	out := *event
	out.ExcludedDrivers = nil
	data, err := json.Marshal(&out)
	if err != nil {
		h.logger.WithError(err).WithField("event", event.Type).Error("Failed to encode dispatch event")
		return
	}

	var slow []*Client
	h.mutex.RLock()
	for client := range h.rooms[event.Topic] {
		if isExcluded(client.Principal.ID, event.ExcludedDrivers) {
			continue
		}
		if !client.enqueue(data) {
			slow = append(slow, client)
		}
	}
	h.mutex.RUnlock()

	for _, client := range slow {
		h.logger.WithUserID(client.Principal.ID).Warn("Client send buffer full, disconnecting")
		h.removeClient(client)
	}
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize reports how many clients follow topic.
func (h *Hub) RoomSize(topic string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[topic])
}

// autoRooms are joined on connect: the personal room and, for drivers, one
// room per ride vehicle type they can serve.
func autoRooms(p models.Principal) []string {
	rooms := []string{models.UserTopic(p.ID)}
	if p.IsDriver() {
		for _, v := range models.EligibleRideTypes(p.VehicleType) {
			if v.IsSpecified() {
				rooms = append(rooms, v.Topic())
			}
		}
	}
	return rooms
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	h.clients[client] = true
	for _, room := range autoRooms(client.Principal) {
		h.joinRoom(client, room)
	}
	client.enqueue(encodeMessage(Message{Type: MessageWelcome, Timestamp: time.Now().Unix()}))
	h.mutex.Unlock()

	h.metrics.WebSocketClients.Inc()
	h.logger.WithUserID(client.Principal.ID).WithField("role", client.Principal.Role).Debug("Client registered")
}

// reply sends a control message to one client if it is still connected.
func (h *Hub) reply(client *Client, msg Message) {
	msg.Timestamp = time.Now().Unix()
	data := encodeMessage(msg)

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.clients[client] {
		client.enqueue(data)
	}
}

func encodeMessage(msg Message) []byte {
	data, _ := json.Marshal(msg)
	return data
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for roomID := range client.rooms {
		h.leaveRoom(client, roomID)
	}

	h.metrics.WebSocketClients.Dec()
	h.logger.WithUserID(client.Principal.ID).Debug("Client unregistered")
}

func (h *Hub) closeAll() {
	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		h.removeClient(client)
	}
}

// JoinRide subscribes client to ride:<rideID> after an authorization check.
func (h *Hub) JoinRide(ctx context.Context, client *Client, rideID string) bool {
	rideID = strings.TrimSpace(rideID)
	if rideID == "" || h.authorizer == nil || !h.authorizer.CanJoinRideTopic(ctx, client.Principal, rideID) {
		return false
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	if _, ok := h.clients[client]; !ok {
		return false
	}
	h.joinRoom(client, models.RideTopic(rideID))
	return true
}

func (h *Hub) LeaveRoom(client *Client, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.leaveRoom(client, roomID)
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) leaveRoom(client *Client, roomID string) {
	if room, exists := h.rooms[roomID]; exists {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

func isExcluded(userID string, excluded []string) bool {
	for _, id := range excluded {
		if id == userID {
			return true
		}
	}
	return false
}
