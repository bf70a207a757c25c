// Package chat provides a client for the chat server: a thin REST wrapper,
// a websocket connection, and a local State that reconciles server events
// into a render-ready view.
package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a chat API client.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	ws     *websocket.Conn
	wsMu   sync.Mutex // guards writes to ws
	ackSeq atomic.Int64

	acksMu sync.Mutex
	acks   map[int64]chan AckPayload
}

// NewClient creates a new client for the given server.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		acks:       make(map[int64]chan AckPayload),
	}
}

// User mirrors the server's user shape.
type User struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email,omitempty"`
	IsOnline bool      `json:"isOnline"`
	LastSeen string    `json:"lastSeen,omitempty"`
}

// RegisterResponse is the response from registration.
type RegisterResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Register creates a user and stores the issued token on the client.
func (c *Client) Register(username, email string) (*RegisterResponse, error) {
	body, _ := json.Marshal(map[string]string{"username": username, "email": email})
	respBody, err := c.doRequest("POST", "/api/users", body)
	if err != nil {
		return nil, err
	}

	var resp RegisterResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	c.Token = resp.Token
	return &resp, nil
}

// ListUsers returns every other user.
func (c *Client) ListUsers() ([]User, error) {
	respBody, err := c.doRequest("GET", "/api/users", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Users []User `json:"users"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// HistoryPage is one page of direct message history, oldest first.
type HistoryPage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"hasMore"`
}

// GetHistory fetches messages exchanged with another user. Pass a zero time
// for the newest page.
func (c *Client) GetHistory(otherID uuid.UUID, before time.Time, limit int) (*HistoryPage, error) {
	path := fmt.Sprintf("/api/messages/%s?limit=%d", otherID, limit)
	if !before.IsZero() {
		path += "&before=" + url.QueryEscape(before.Format(time.RFC3339))
	}

	respBody, err := c.doRequest("GET", path, nil)
	if err != nil {
		return nil, err
	}

	var page HistoryPage
	if err := json.Unmarshal(respBody, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) doRequest(method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.Unmarshal(respBody, &errResp)
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, errResp.Error)
	}

	return respBody, nil
}

// Connect opens the websocket and starts the read loop, feeding every
// server event into state. It returns once the socket is established.
func (c *Client) Connect(state *State) error {
	wsURL := strings.Replace(c.BaseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(c.Token)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	c.ws = ws

	go c.readLoop(state)
	return nil
}

// Close shuts the websocket down.
func (c *Client) Close() error {
	if c.ws == nil {
		return nil
	}
	return c.ws.Close()
}

func (c *Client) readLoop(state *State) {
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var evt Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			continue
		}

		if evt.Event == "ack" && evt.Ack != 0 {
			var ack AckPayload
			json.Unmarshal(evt.Data, &ack)
			c.deliverAck(evt.Ack, ack)
			continue
		}

		state.Apply(&evt)
	}
}

func (c *Client) deliverAck(seq int64, ack AckPayload) {
	c.acksMu.Lock()
	ch := c.acks[seq]
	delete(c.acks, seq)
	c.acksMu.Unlock()
	if ch != nil {
		ch <- ack
	}
}

// Emit sends an event without waiting for acknowledgement.
func (c *Client) Emit(event string, data any) error {
	return c.write(Event{Event: event}, data, 0)
}

// EmitWithAck sends an event and waits for the server's acknowledgement.
func (c *Client) EmitWithAck(event string, data any, timeout time.Duration) (AckPayload, error) {
	seq := c.ackSeq.Add(1)
	ch := make(chan AckPayload, 1)

	c.acksMu.Lock()
	c.acks[seq] = ch
	c.acksMu.Unlock()

	if err := c.write(Event{Event: event}, data, seq); err != nil {
		c.acksMu.Lock()
		delete(c.acks, seq)
		c.acksMu.Unlock()
		return AckPayload{}, err
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-time.After(timeout):
		c.acksMu.Lock()
		delete(c.acks, seq)
		c.acksMu.Unlock()
		return AckPayload{}, fmt.Errorf("ack timeout for %s", event)
	}
}

func (c *Client) write(evt Event, data any, ack int64) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	evt.Data = raw
	evt.Ack = ack

	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	return c.ws.WriteJSON(evt)
}

// SendDirect sends a direct message and returns the server-assigned ID.
func (c *Client) SendDirect(to uuid.UUID, content string) (string, error) {
	ack, err := c.EmitWithAck("message:send", map[string]any{
		"receiverId": to,
		"content":    content,
	}, 10*time.Second)
	if err != nil {
		return "", err
	}
	if !ack.OK {
		return "", fmt.Errorf("send rejected: %s", ack.Error)
	}
	return ack.ID, nil
}

// MarkRead acknowledges a direct message.
func (c *Client) MarkRead(messageID string) error {
	return c.Emit("message:read", map[string]string{"messageId": messageID})
}

// StartTyping signals the peer that this user is typing.
func (c *Client) StartTyping(to uuid.UUID) error {
	return c.Emit("typing", map[string]any{"to": to})
}

// StopTyping clears the typing indicator.
func (c *Client) StopTyping(to uuid.UUID) error {
	return c.Emit("stop_typing", map[string]any{"to": to})
}

// JoinGroup subscribes this connection to a group's events.
func (c *Client) JoinGroup(groupID uuid.UUID) error {
	ack, err := c.EmitWithAck("group:join", map[string]any{"groupId": groupID}, 10*time.Second)
	if err != nil {
		return err
	}
	if !ack.OK {
		return fmt.Errorf("join rejected: %s", ack.Error)
	}
	return nil
}

// SendGroup sends a message to a group.
func (c *Client) SendGroup(groupID uuid.UUID, content string) (string, error) {
	ack, err := c.EmitWithAck("group:message:send", map[string]any{
		"groupId": groupID,
		"content": content,
	}, 10*time.Second)
	if err != nil {
		return "", err
	}
	if !ack.OK {
		return "", fmt.Errorf("send rejected: %s", ack.Error)
	}
	return ack.ID, nil
}
