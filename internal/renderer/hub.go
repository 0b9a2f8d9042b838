package renderer

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/willie68/go_tilefeed/internal/logging"
	"github.com/willie68/go_tilefeed/internal/mercantile"
	"github.com/willie68/go_tilefeed/internal/model"
)

const (
	// sendChannelSize max number of messages queued for a client
	sendChannelSize = 16
	pingPeriod      = (60 * 9 * time.Second) / 10
	broadcastSize   = 256
)

// Input is where client messages go to, implemented by the controller
type Input interface {
	SetCameraPosition(lat, lon, alt float64)
	RequestTile(id mercantile.TileID)
	SelectPoi(id string)
	DeselectPoi(id string)
}

// Hub is a Renderer streaming all callbacks to the connected websocket clients
type Hub struct {
	log        *slog.Logger
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	broadcast  chan Message
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	inputLock sync.RWMutex
	input     Input
}

// NewHub creates the hub and starts its loop, stop it with Shutdown
func NewHub(ctx context.Context) *Hub {
	ctx, cancel := context.WithCancel(ctx)
	h := &Hub{
		log:        logging.New("hub"),
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Message, broadcastSize),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go h.start()
	return h
}

// SetInput sets the receiver of client messages
func (h *Hub) SetInput(in Input) {
	h.inputLock.Lock()
	defer h.inputLock.Unlock()
	h.input = in
}

func (h *Hub) getInput() Input {
	h.inputLock.RLock()
	defer h.inputLock.RUnlock()
	return h.input
}

func (h *Hub) start() {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client connected", "clientID", client.ID)
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client disconnected", "clientID", client.ID)
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Warn("client too slow, disconnecting", "clientID", client.ID)
					go client.Close()
				}
			}
			h.mu.RUnlock()
		case <-h.ctx.Done():
			return
		}
	}
}

// Len number of connected clients
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues the message for all clients
func (h *Hub) Broadcast(message Message) {
	select {
	case h.broadcast <- message:
	case <-h.ctx.Done():
	}
}

// ServeHTTP upgrades the request to a websocket and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.log.Warn("websocket accept failed", "error", err)
		return
	}
	c := newClient(uuid.NewString(), conn, h)
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		c.Close()
		return
	}
	go c.writePump()
	c.readPump()
}

// Shutdown closes all clients and stops the loop
func (h *Hub) Shutdown() {
	h.cancel()
	<-h.done
	h.mu.Lock()
	for _, client := range h.clients {
		client.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) OnTileAvailable(id mercantile.TileID) {
	h.Broadcast(newMessage(TypeTile, tileData(id)))
}

func (h *Hub) OnPoiAvailable(pois []model.Poi) {
	h.Broadcast(newMessage(TypePois, poiData(pois)))
}

func (h *Hub) OnPoiSelected(id string) {
	h.Broadcast(newMessage(TypePoiSelected, SelectionData{ID: id}))
}

func (h *Hub) OnPoiDeselected(id string) {
	h.Broadcast(newMessage(TypePoiDeselected, SelectionData{ID: id}))
}

// Client one websocket connection of the hub
type Client struct {
	ID     string
	Conn   *websocket.Conn
	hub    *Hub
	send   chan Message
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newClient(id string, conn *websocket.Conn, hub *Hub) *Client {
	ctx, cancel := context.WithCancel(hub.ctx)
	return &Client{
		ID:     id,
		Conn:   conn,
		hub:    hub,
		send:   make(chan Message, sendChannelSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		if err := c.Conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
			c.hub.log.Debug("failed to close connection", "clientID", c.ID, "error", err)
		}
		c.cancel()
	})
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.Close()
	}()

	for {
		var msg Message
		if err := wsjson.Read(c.ctx, c.Conn, &msg); err != nil {
			c.hub.log.Debug("read failed", "clientID", c.ID, "error", err)
			return
		}
		c.handleMessage(msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			if err := wsjson.Write(c.ctx, c.Conn, msg); err != nil {
				c.hub.log.Warn("failed to write message", "clientID", c.ID, "error", err)
				return
			}
		case <-ticker.C:
			if err := c.Conn.Ping(c.ctx); err != nil {
				c.hub.log.Debug("failed to ping client", "clientID", c.ID, "error", err)
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) handleMessage(msg Message) {
	in := c.hub.getInput()
	if in == nil {
		c.hub.log.Debug("no input, message ignored", "clientID", c.ID, "type", msg.Type)
		return
	}
	switch msg.Type {
	case TypeCamera:
		var cam CameraData
		if err := json.Unmarshal(msg.Data, &cam); err != nil {
			c.hub.log.Warn("failed to unmarshal camera", "clientID", c.ID, "error", err)
			return
		}
		in.SetCameraPosition(cam.Lat, cam.Lon, cam.Alt)
	case TypeRequest:
		var td TileData
		if err := json.Unmarshal(msg.Data, &td); err != nil {
			c.hub.log.Warn("failed to unmarshal tile request", "clientID", c.ID, "error", err)
			return
		}
		in.RequestTile(td.TileID())
	case TypeSelect, TypeDeselect:
		var sel SelectionData
		if err := json.Unmarshal(msg.Data, &sel); err != nil || sel.ID == "" {
			c.hub.log.Warn("invalid selection", "clientID", c.ID, "error", err)
			return
		}
		if msg.Type == TypeSelect {
			in.SelectPoi(sel.ID)
		} else {
			in.DeselectPoi(sel.ID)
		}
	default:
		c.hub.log.Debug("received unknown type message", "clientID", c.ID, "type", msg.Type)
	}
}
