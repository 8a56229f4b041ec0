package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/pubsub"
)

// frame mirrors the websocket messages of the api service: "hello" and
// "event" from the broker, "ack" back from the subscriber.
type frame struct {
	Type  string        `json:"type"`
	ID    int           `json:"id,omitempty"`
	Event *pubsub.Event `json:"event,omitempty"`
}

// Client talks to a remote broker over its HTTP API, receiving events on
// a websocket. It implements the Server interface.
type Client struct {
	URL  string
	HTTP *http.Client

	mu sync.Mutex
	ws *websocket.Conn
}

func NewClient(url string) *Client {
	return &Client{URL: strings.TrimRight(url, "/"), HTTP: http.DefaultClient}
}

func (c *Client) dial(query string, notify Notify) (int, error) {
	url := "ws" + strings.TrimPrefix(c.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "dialing broker")
	}
	var hello frame
	if err := ws.ReadJSON(&hello); err != nil {
		ws.Close()
		return 0, errors.Wrap(err, "reading hello")
	}
	if hello.Type != "hello" {
		ws.Close()
		return 0, errors.Errorf("unexpected frame %q", hello.Type)
	}

	c.mu.Lock()
	if c.ws != nil {
		c.ws.Close()
	}
	c.ws = ws
	c.mu.Unlock()

	go c.readPump(ws, notify)
	return hello.ID, nil
}

// readPump delivers event frames to the agent and acks each one. It ends
// when the connection drops; the broker then holds events until rebind.
func (c *Client) readPump(ws *websocket.Conn, notify Notify) {
	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		if f.Type != "event" || f.Event == nil {
			continue
		}
		notify(f.Event)
		ws.WriteJSON(frame{Type: "ack", ID: f.Event.ID})
	}
}

func (c *Client) Register(notify Notify) (int, error) {
	return c.dial("", notify)
}

func (c *Client) Rebind(id int, notify Notify) error {
	_, err := c.dial(fmt.Sprintf("?id=%d", id), notify)
	return err
}

func (c *Client) postJSON(path string, body, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Post(c.URL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return errors.Wrap(err, "posting "+path)
	}
	return decodeResponse(resp, out)
}

func (c *Client) post(path string, out interface{}) error {
	resp, err := c.HTTP.Post(c.URL+path, "", nil)
	if err != nil {
		return errors.Wrap(err, "posting "+path)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("server returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Advertise(topic *pubsub.Topic) (int, error) {
	var ret map[string]int
	err := c.postJSON("/topics", topic, &ret)
	if err != nil {
		return 0, err
	}
	if ret["id"] != 0 {
		topic.ID = ret["id"]
	}
	return ret["id"], nil
}

func (c *Client) SubscribeTopic(subID, topicID int) (bool, error) {
	var ok bool
	err := c.post(fmt.Sprintf("/subscribe?id=%d&topic=%d", subID, topicID), &ok)
	return ok, err
}

func (c *Client) SubscribeKeyword(subID int, keyword string) (bool, error) {
	var ok bool
	err := c.post(fmt.Sprintf("/subscribe?id=%d&keyword=%s", subID, keyword), &ok)
	return ok, err
}

func (c *Client) UnsubscribeTopic(subID, topicID int) (bool, error) {
	var ok bool
	err := c.post(fmt.Sprintf("/unsubscribe?id=%d&topic=%d", subID, topicID), &ok)
	return ok, err
}

func (c *Client) UnsubscribeKeyword(subID int, keyword string) (bool, error) {
	var ok bool
	err := c.post(fmt.Sprintf("/unsubscribe?id=%d&keyword=%s", subID, keyword), &ok)
	return ok, err
}

func (c *Client) UnsubscribeAll(subID int) (bool, error) {
	var ok bool
	err := c.post(fmt.Sprintf("/unsubscribe?id=%d&all=1", subID), &ok)
	return ok, err
}

func (c *Client) Publish(ev *pubsub.Event) (int, error) {
	body := map[string]interface{}{
		"topic":    ev.Topic.ID,
		"title":    ev.Title,
		"content":  ev.Content,
		"keywords": ev.Keywords,
	}
	var ret map[string]int
	if err := c.postJSON("/publish", body, &ret); err != nil {
		return 0, err
	}
	if ret["id"] != 0 {
		ev.ID = ret["id"]
	}
	return ret["id"], nil
}

func (c *Client) Topics() ([]*pubsub.Topic, error) {
	resp, err := c.HTTP.Get(c.URL + "/topics")
	if err != nil {
		return nil, errors.Wrap(err, "getting topics")
	}
	var topics []*pubsub.Topic
	err = decodeResponse(resp, &topics)
	return topics, err
}

func (c *Client) Offline(id int) error {
	err := c.post(fmt.Sprintf("/offline?id=%d", id), nil)
	c.Close()
	return err
}

func (c *Client) Remove(id int) error {
	req, err := http.NewRequest("DELETE", fmt.Sprintf("%s/subscribers/%d", c.URL, id), nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return errors.Wrap(err, "removing subscriber")
	}
	c.Close()
	return decodeResponse(resp, nil)
}

// Close drops the websocket, leaving the subscription state on the
// broker untouched.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		c.ws.Close()
		c.ws = nil
	}
}
