// Package live is the operator-facing decision stream: it carries this
// domain's fields (cgroup id, tracker id, path, mode, decision) over a
// ring-buffer-of-recent-events, broadcast-channel, and gorilla/websocket
// ping/pong shape.
package live

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gws "github.com/gorilla/websocket"
)

// LogEntry is a structured decision/observation record for JSON
// serialization over the websocket, and for logfmt debug traces that
// get parsed back into one.
type LogEntry struct {
	Time       string          `json:"time"`
	Event      string          `json:"event"`
	Cgid       *uint64         `json:"cgid,omitempty"`
	TrackerID  *uint64         `json:"tracker,omitempty"`
	Policy     *uint64         `json:"policy,omitempty"`
	Path       string          `json:"path,omitempty"`
	Mode       string          `json:"mode,omitempty"`
	Decision   string          `json:"decision,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Len        *int            `json:"len,omitempty"`
	Err        string          `json:"err,omitempty"`
	InstanceID string          `json:"instance_id,omitempty"`
	Seq        uint64          `json:"seq,omitempty"`
	StartedAt  string          `json:"started_at,omitempty"`
	UptimeSec  *int64          `json:"uptime_s,omitempty"`
	LastSeq    *uint64         `json:"last_seq,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventRingBuffer maintains a fixed-size buffer of recent events.
type EventRingBuffer struct {
	events []LogEntry
	head   int
	tail   int
	size   int
	count  int
	mutex  sync.RWMutex
	full   bool
}

// NewEventRingBuffer creates a new ring buffer with the specified size.
func NewEventRingBuffer(size int) *EventRingBuffer {
	if size <= 0 {
		size = 25000
	}
	return &EventRingBuffer{
		events: make([]LogEntry, size),
		size:   size,
	}
}

// Add adds a new event to the ring buffer.
func (rb *EventRingBuffer) Add(event LogEntry) {
	rb.mutex.Lock()
	defer rb.mutex.Unlock()

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size

	if rb.full {
		rb.tail = (rb.tail + 1) % rb.size
	} else {
		rb.count++
		if rb.head == rb.tail && rb.count > 0 {
			rb.full = true
		}
	}
}

// GetAll returns all events in chronological order (oldest first).
func (rb *EventRingBuffer) GetAll() []LogEntry {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if rb.count == 0 {
		return []LogEntry{}
	}

	result := make([]LogEntry, rb.count)
	if !rb.full {
		copy(result, rb.events[:rb.count])
	} else {
		tailToEnd := rb.size - rb.tail
		copy(result, rb.events[rb.tail:])
		copy(result[tailToEnd:], rb.events[:rb.head])
	}
	return result
}

// GetTail returns up to the last n events (chronological order).
func (rb *EventRingBuffer) GetTail(n int) []LogEntry {
	if n <= 0 {
		return []LogEntry{}
	}
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()

	if rb.count == 0 {
		return []LogEntry{}
	}

	if !rb.full {
		if n >= rb.count {
			out := make([]LogEntry, rb.count)
			copy(out, rb.events[:rb.count])
			return out
		}
		out := make([]LogEntry, n)
		copy(out, rb.events[rb.count-n:rb.count])
		return out
	}

	toTake := n
	if toTake > rb.size {
		toTake = rb.size
	}
	if toTake > rb.count {
		toTake = rb.count
	}
	start := (rb.head - toTake + rb.size) % rb.size
	out := make([]LogEntry, toTake)
	if start < rb.head {
		copy(out, rb.events[start:rb.head])
	} else {
		first := rb.size - start
		copy(out, rb.events[start:])
		copy(out[first:], rb.events[:rb.head])
	}
	return out
}

// GetBulkNDJSON returns all events formatted as NDJSON for bulk transmission.
func (rb *EventRingBuffer) GetBulkNDJSON() []byte {
	events := rb.GetAll()
	if len(events) == 0 {
		return []byte{}
	}
	var result strings.Builder
	for _, event := range events {
		if jsonData, err := json.Marshal(event); err == nil {
			result.Write(jsonData)
			result.WriteByte('\n')
		}
	}
	return []byte(result.String())
}

// GetCount returns the current number of events in the buffer.
func (rb *EventRingBuffer) GetCount() int {
	rb.mutex.RLock()
	defer rb.mutex.RUnlock()
	return rb.count
}

// WebSocketHub manages websocket client connections and broadcasts.
type WebSocketHub struct {
	clients     map[string]*client
	broadcast   chan []byte
	register    chan *client
	unregister  chan *client
	unicast     chan clientSend
	incoming    chan ClientMessage
	mutex       sync.RWMutex
	eventBuffer *EventRingBuffer
	instanceID  string
	seq         uint64
	startTime   time.Time
	bulkMaxEvents int
	bulkMaxBytes  int
}

const writeDeadline = 5 * time.Second
const heartbeatInterval = 10 * time.Second
const pongWait = 60 * time.Second
const pingInterval = 30 * time.Second

var upgrader = gws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type client struct {
	id      string
	conn    *gws.Conn
	send    chan []byte
	hub     *WebSocketHub
	closed  chan struct{}
	closeMu sync.Mutex
}

type clientSend struct {
	clientID string
	payload  []byte
}

// ClientMessage represents an inbound message from a websocket client.
type ClientMessage struct {
	ClientID string
	Payload  []byte
}

// NewWebSocketHub creates a new WebSocket hub.
func NewWebSocketHub(bufferSize, bulkMaxEvents, bulkMaxBytes int) *WebSocketHub {
	hub := &WebSocketHub{
		clients:       make(map[string]*client),
		broadcast:     make(chan []byte, 256),
		register:      make(chan *client),
		unregister:    make(chan *client),
		unicast:       make(chan clientSend, 128),
		incoming:      make(chan ClientMessage, 256),
		eventBuffer:   NewEventRingBuffer(bufferSize),
		instanceID:    uuid.NewString(),
		startTime:     time.Now(),
		bulkMaxEvents: bulkMaxEvents,
		bulkMaxBytes:  bulkMaxBytes,
	}
	hub.emitHello()
	return hub
}

// Run starts the hub's main loop.
func (h *WebSocketHub) Run() {
	heartbeatTicker := time.NewTicker(heartbeatInterval)
	defer heartbeatTicker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			log.Printf("live: client connected, total %d", len(h.clients))

		case client := <-h.unregister:
			h.removeClient(client.id)

		case message := <-h.broadcast:
			for _, client := range h.snapshotClients() {
				h.enqueue(client, message)
			}

		case msg := <-h.unicast:
			if c := h.getClient(msg.clientID); c != nil {
				h.enqueue(c, msg.payload)
			}

		case <-heartbeatTicker.C:
			h.emitHeartbeat()
		}
	}
}

func (h *WebSocketHub) snapshotClients() []*client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

func (h *WebSocketHub) getClient(id string) *client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.clients[id]
}

// enqueue delivers payload to c's send buffer, dropping the oldest
// queued message to make room rather than the newest. Guarded by
// closeMu so a concurrent teardown can't close c.send out from under
// a send attempt here.
func (h *WebSocketHub) enqueue(c *client, payload []byte) {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	select {
	case <-c.closed:
		return
	default:
	}

	for {
		select {
		case c.send <- payload:
			return
		default:
		}
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func (h *WebSocketHub) removeClient(id string) {
	h.mutex.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
	}
	h.mutex.Unlock()

	if ok && c != nil {
		c.close()
	}
	log.Printf("live: client disconnected, total %d", len(h.clients))
}

func (h *WebSocketHub) getHistoricalEvents() ([]byte, int) {
	if h.bulkMaxEvents <= 0 && h.bulkMaxBytes <= 0 {
		data := h.eventBuffer.GetBulkNDJSON()
		return data, h.eventBuffer.GetCount()
	}

	maxEvents := h.bulkMaxEvents
	if maxEvents <= 0 {
		maxEvents = h.eventBuffer.GetCount()
	}
	events := h.eventBuffer.GetTail(maxEvents)

	if h.bulkMaxBytes > 0 {
		return encodeNDJSONLimited(events, h.bulkMaxBytes)
	}
	var sb strings.Builder
	included := 0
	for _, e := range events {
		if jsonData, err := json.Marshal(e); err == nil {
			sb.Write(jsonData)
			sb.WriteByte('\n')
			included++
		}
	}
	return []byte(sb.String()), included
}

// encodeNDJSONLimited encodes events as NDJSON, ensuring the output
// does not exceed maxBytes, preferring the most recent events while
// preserving chronological order.
func encodeNDJSONLimited(events []LogEntry, maxBytes int) ([]byte, int) {
	if maxBytes <= 0 {
		var sb strings.Builder
		included := 0
		for _, e := range events {
			if jsonData, err := json.Marshal(e); err == nil {
				sb.Write(jsonData)
				sb.WriteByte('\n')
				included++
			}
		}
		return []byte(sb.String()), included
	}

	budget := maxBytes
	startIdx := len(events)
	for i := len(events) - 1; i >= 0; i-- {
		jsonData, err := json.Marshal(events[i])
		if err != nil {
			continue
		}
		cost := len(jsonData) + 1
		if cost > budget {
			break
		}
		budget -= cost
		startIdx = i
	}

	if startIdx == len(events) {
		return []byte{}, 0
	}

	var sb strings.Builder
	included := 0
	for i := startIdx; i < len(events); i++ {
		if jsonData, err := json.Marshal(events[i]); err == nil {
			sb.Write(jsonData)
			sb.WriteByte('\n')
			included++
		}
	}
	return []byte(sb.String()), included
}

// EmitJSON publishes a structured event with the provided payload to all clients.
func (h *WebSocketHub) EmitJSON(event string, payload any) {
	if strings.TrimSpace(event) == "" {
		return
	}
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			log.Printf("live: failed to marshal payload for %s: %v", event, err)
			return
		}
		raw = data
	}
	h.emit(LogEntry{Event: event, Payload: raw})
}

// Incoming returns a channel for consuming raw messages from clients.
func (h *WebSocketHub) Incoming() <-chan ClientMessage {
	return h.incoming
}

// SendToClient queues a payload to a specific client by ID.
func (h *WebSocketHub) SendToClient(clientID string, payload []byte) error {
	if clientID == "" {
		return fmt.Errorf("client id required")
	}
	if h.getClient(clientID) == nil {
		return fmt.Errorf("client %s not found", clientID)
	}
	h.unicast <- clientSend{clientID: clientID, payload: payload}
	return nil
}

// BroadcastLog sends a logfmt debug-trace line (as gate.Engine emits)
// to all connected clients, parsed into a structured LogEntry.
func (h *WebSocketHub) BroadcastLog(logfmtEntry string) {
	h.emit(parseLogfmtToJSON(logfmtEntry))
}

// BroadcastDecision is the typed counterpart to BroadcastLog, for
// callers (cmd/execwalld) that already hold structured fields instead
// of a logfmt line.
func (h *WebSocketHub) BroadcastDecision(event string, cgid, tracker uint64, path, mode, decision string) {
	h.emit(LogEntry{
		Event:     event,
		Cgid:      &cgid,
		TrackerID: &tracker,
		Path:      path,
		Mode:      mode,
		Decision:  decision,
	})
}

func (h *WebSocketHub) emit(entry LogEntry) {
	if entry.Time == "" {
		entry.Time = time.Now().Format(time.RFC3339)
	}
	entry.InstanceID = h.instanceID
	entry.Seq = atomic.AddUint64(&h.seq, 1)

	h.eventBuffer.Add(entry)

	if jsonData, err := json.Marshal(entry); err == nil {
		select {
		case h.broadcast <- jsonData:
		default:
		}
	}
}

// RecentEvents returns the newest events from the ring buffer. When
// limit <= 0 all buffered events are returned.
func (h *WebSocketHub) RecentEvents(limit int) []LogEntry {
	if limit <= 0 {
		return h.eventBuffer.GetAll()
	}
	return h.eventBuffer.GetTail(limit)
}

func (h *WebSocketHub) emitHello() {
	h.emit(LogEntry{
		Time:      time.Now().Format(time.RFC3339),
		Event:     "execwall.hello",
		StartedAt: h.startTime.Format(time.RFC3339),
	})
}

func (h *WebSocketHub) emitHeartbeat() {
	lastSeq := atomic.LoadUint64(&h.seq)
	uptime := int64(time.Since(h.startTime).Seconds())
	h.emit(LogEntry{
		Time:      time.Now().Format(time.RFC3339),
		Event:     "execwall.heartbeat",
		UptimeSec: &uptime,
		LastSeq:   &lastSeq,
	})
}

// HandleWebSocket handles websocket connections.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: websocket upgrade failed: %v", err)
		return
	}

	bulkEvents, included := h.getHistoricalEvents()
	if err := conn.WriteMessage(gws.TextMessage, bulkEvents); err != nil {
		log.Printf("live: failed to send bulk message: %v", err)
		conn.Close()
		return
	}
	log.Printf("live: sent bulk message with %d historical events (%d bytes)", included, len(bulkEvents))

	c := newClient(h, conn)
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func newClient(h *WebSocketHub, conn *gws.Conn) *client {
	return &client{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    h,
		closed: make(chan struct{}),
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, payload, err := c.conn.ReadMessage()
		if err != nil {
			if gws.IsUnexpectedCloseError(err, gws.CloseGoingAway, gws.CloseAbnormalClosure) {
				log.Printf("live: websocket read error (client %s): %v", c.id, err)
			}
			break
		}
		if msgType != gws.TextMessage {
			continue
		}
		select {
		case c.hub.incoming <- ClientMessage{ClientID: c.id, Payload: payload}:
		default:
			log.Printf("live: dropping inbound message (client %s), channel full", c.id)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				_ = c.conn.WriteMessage(gws.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(gws.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(gws.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			return
		}
	}
}

func (c *client) close() {
	c.closeMu.Lock()
	select {
	case <-c.closed:
	default:
		close(c.closed)
		close(c.send)
		_ = c.conn.Close()
	}
	c.closeMu.Unlock()
}

// parseLogfmtToJSON converts a gate.Engine debug-trace logfmt line into
// a LogEntry.
func parseLogfmtToJSON(logfmt string) LogEntry {
	entry := LogEntry{}
	re := regexp.MustCompile(`(\w+)=("(?:[^"\\]|\\.)*"|[^\s]+)`)
	matches := re.FindAllStringSubmatch(logfmt, -1)

	for _, match := range matches {
		if len(match) != 3 {
			continue
		}
		key := match[1]
		value := match[2]
		if strings.HasPrefix(value, `"`) && strings.HasSuffix(value, `"`) {
			value = strings.Trim(value, `"`)
			value = strings.ReplaceAll(value, `\"`, `"`)
		}

		switch key {
		case "time":
			entry.Time = value
		case "event":
			entry.Event = value
		case "cgid":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				entry.Cgid = &v
			}
		case "tracker":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				entry.TrackerID = &v
			}
		case "policy":
			if v, err := strconv.ParseUint(value, 10, 64); err == nil {
				entry.Policy = &v
			}
		case "path":
			entry.Path = value
		case "mode":
			entry.Mode = value
		case "decision":
			entry.Decision = value
		case "reason":
			entry.Reason = value
		case "len":
			if v, err := strconv.Atoi(value); err == nil {
				entry.Len = &v
			}
		case "err":
			entry.Err = value
		}
	}

	return entry
}
