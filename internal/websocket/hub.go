package websocket

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"curriculum-planner/internal/services"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type tokenParser interface {
	ParseUserID(tokenStr string) (uuid.UUID, error)
}

type editChecker interface {
	CanEdit(ctx context.Context, subjectID, userID uuid.UUID) (bool, error)
}

// client serializes writes; gorilla connections allow one concurrent writer.
type client struct {
	conn   *websocket.Conn
	userID uuid.UUID
	mu     sync.Mutex
}

func (c *client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans subject updates from Redis pub/sub out to every editor that has
// the subject open. One subscription is held per subject with listeners.
type Hub struct {
	mu          sync.RWMutex
	clients     map[uuid.UUID][]*client
	cancelFuncs map[uuid.UUID]context.CancelFunc
	redisClient *redis.Client
	tokens      tokenParser
	subjects    editChecker
}

func NewHub(redisClient *redis.Client, tokens tokenParser, subjects editChecker) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID][]*client),
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
		redisClient: redisClient,
		tokens:      tokens,
		subjects:    subjects,
	}
}

// HandleWebSocket expects ?token=<access token>&subject_id=<uuid>.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, subjectID, status := h.authorize(r)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	// Clear the deadline the HTTP server set before the hijack.
	conn.SetReadDeadline(time.Time{})

	c := &client{conn: conn, userID: userID}
	h.register(subjectID, c)

	// Reads only detect disconnects; clients send nothing we act on.
	go func() {
		defer h.unregister(subjectID, c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *Hub) authorize(r *http.Request) (uuid.UUID, uuid.UUID, int) {
	q := r.URL.Query()

	tokenStr := q.Get("token")
	if tokenStr == "" {
		return uuid.Nil, uuid.Nil, http.StatusUnauthorized
	}
	userID, err := h.tokens.ParseUserID(tokenStr)
	if err != nil {
		return uuid.Nil, uuid.Nil, http.StatusUnauthorized
	}

	subjectID, err := uuid.Parse(q.Get("subject_id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, http.StatusBadRequest
	}

	ok, err := h.subjects.CanEdit(r.Context(), subjectID, userID)
	if err != nil {
		log.Error().Err(err).Str("subject_id", subjectID.String()).Msg("websocket access check failed")
		return uuid.Nil, uuid.Nil, http.StatusInternalServerError
	}
	if !ok {
		return uuid.Nil, uuid.Nil, http.StatusForbidden
	}
	return userID, subjectID, http.StatusOK
}

func (h *Hub) register(subjectID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[subjectID] = append(h.clients[subjectID], c)

	if len(h.clients[subjectID]) == 1 && h.redisClient != nil {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[subjectID] = cancel
		go h.subscribe(ctx, subjectID)
	}

	log.Debug().
		Str("subject_id", subjectID.String()).
		Str("user_id", c.userID.String()).
		Int("listeners", len(h.clients[subjectID])).
		Msg("websocket connected")
}

func (h *Hub) unregister(subjectID uuid.UUID, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.conn.Close()

	list := h.clients[subjectID]
	for i, other := range list {
		if other == c {
			h.clients[subjectID] = append(list[:i], list[i+1:]...)
			break
		}
	}

	if len(h.clients[subjectID]) == 0 {
		delete(h.clients, subjectID)
		if cancel, ok := h.cancelFuncs[subjectID]; ok {
			cancel()
			delete(h.cancelFuncs, subjectID)
		}
	}

	log.Debug().Str("subject_id", subjectID.String()).Str("user_id", c.userID.String()).Msg("websocket disconnected")
}

func (h *Hub) subscribe(ctx context.Context, subjectID uuid.UUID) {
	pubsub := h.redisClient.Subscribe(ctx, services.SubjectChannel(subjectID))
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(subjectID, []byte(msg.Payload))
		}
	}
}

func (h *Hub) broadcast(subjectID uuid.UUID, data []byte) {
	h.mu.RLock()
	list := append([]*client(nil), h.clients[subjectID]...)
	h.mu.RUnlock()

	for _, c := range list {
		if err := c.write(data); err != nil {
			log.Debug().Err(err).Str("subject_id", subjectID.String()).Msg("websocket write failed")
		}
	}
}

// Listeners reports how many connections are open for a subject.
func (h *Hub) Listeners(subjectID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[subjectID])
}

// Shutdown closes every connection and drops all subscriptions.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, list := range h.clients {
		for _, c := range list {
			c.conn.Close()
		}
		if cancel, ok := h.cancelFuncs[id]; ok {
			cancel()
		}
	}
	h.clients = make(map[uuid.UUID][]*client)
	h.cancelFuncs = make(map[uuid.UUID]context.CancelFunc)
}
