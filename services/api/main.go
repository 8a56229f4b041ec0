// Package api is a service exposing the broker's publish/subscribe
// operations over HTTP.
//
// The endpoints supported are:
//
// http://localhost:8723/topics - list advertised topics (GET) or advertise a new one (POST)
//
// http://localhost:8723/subscribe?id=1&topic=2 - subscribe to a topic
//
// http://localhost:8723/subscribe?id=1&keyword=rain - subscribe to a keyword
//
// http://localhost:8723/unsubscribe?id=1&topic=2|keyword=rain|all=1 - unsubscribe
//
// http://localhost:8723/publish - publish an event (POST)
//
// http://localhost:8723/subscribers - current subscriber ids and memberships
//
// http://localhost:8723/subscribers/1 - remove a subscriber for good (DELETE)
//
// http://localhost:8723/offline?id=1 - mark a subscriber temporarily away
//
// ws://localhost:8723/ws - the subscriber connection: register (or rebind
// with ?id=) and receive event frames, answering each with an ack frame.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/mcrae/pubsub/pubsub"
	"github.com/mcrae/pubsub/services"
)

// Service api
type Service struct {
}

// ID of the service
func (service *Service) ID() string {
	return "api"
}

const notifyTimeout = 10 * time.Second

func errorResponse(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), 500)
}

func jsonResponse(w http.ResponseWriter, obj interface{}) {
	w.Header().Add("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	err := enc.Encode(obj)
	if err != nil {
		errorResponse(w, err)
	}
}

func apiIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Content-Type", "text/html")
	w.Write([]byte("<html>pubsub broker is listening</html>"))
}

func apiTopics(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, services.Broker.Topics())
}

func apiTopicsAdvertise(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string   `json:"name"`
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, err)
		return
	}
	topic := pubsub.NewTopic(body.Name, body.Keywords...)
	id := services.Broker.AdvertiseTopic(topic)
	jsonResponse(w, map[string]int{"id": id})
}

func intParam(r *http.Request, name string) (int, bool) {
	value, err := strconv.Atoi(r.URL.Query().Get(name))
	return value, err == nil
}

func apiSubscribe(w http.ResponseWriter, r *http.Request) {
	subID, ok := intParam(r, "id")
	if !ok {
		errorResponse(w, errors.New("id parameter required"))
		return
	}
	if topicID, ok := intParam(r, "topic"); ok {
		jsonResponse(w, services.Broker.SubscribeTopic(subID, topicID))
		return
	}
	if keyword := r.URL.Query().Get("keyword"); keyword != "" {
		jsonResponse(w, services.Broker.SubscribeKeyword(subID, keyword))
		return
	}
	errorResponse(w, errors.New("topic or keyword parameter required"))
}

func apiUnsubscribe(w http.ResponseWriter, r *http.Request) {
	subID, ok := intParam(r, "id")
	if !ok {
		errorResponse(w, errors.New("id parameter required"))
		return
	}
	if topicID, ok := intParam(r, "topic"); ok {
		jsonResponse(w, services.Broker.UnsubscribeTopic(subID, topicID))
		return
	}
	if keyword := r.URL.Query().Get("keyword"); keyword != "" {
		jsonResponse(w, services.Broker.UnsubscribeKeyword(subID, keyword))
		return
	}
	if r.URL.Query().Get("all") != "" {
		jsonResponse(w, services.Broker.UnsubscribeAll(subID))
		return
	}
	errorResponse(w, errors.New("topic, keyword or all parameter required"))
}

func apiPublish(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Topic    int      `json:"topic"`
		Title    string   `json:"title"`
		Content  string   `json:"content"`
		Keywords []string `json:"keywords"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		errorResponse(w, err)
		return
	}
	topic := services.Broker.Topic(body.Topic)
	if topic == nil {
		jsonResponse(w, map[string]int{"id": 0})
		return
	}
	ev := pubsub.NewEvent(topic, body.Title, body.Content, body.Keywords...)
	id := services.Broker.Publish(ev)
	jsonResponse(w, map[string]int{"id": id})
}

func apiSubscribers(w http.ResponseWriter, r *http.Request) {
	topics, keywords := services.Broker.Subscribers()
	jsonResponse(w, map[string]interface{}{
		"ids":      services.Broker.SubscriberIDs(),
		"topics":   topics,
		"keywords": keywords,
	})
}

func apiSubscribersRemove(w http.ResponseWriter, r *http.Request) {
	params := mux.Vars(r)
	subID, err := strconv.Atoi(params["id"])
	if err != nil {
		errorResponse(w, err)
		return
	}
	services.Broker.RemovePermanently(subID)
	jsonResponse(w, true)
}

func apiOffline(w http.ResponseWriter, r *http.Request) {
	subID, ok := intParam(r, "id")
	if !ok {
		errorResponse(w, errors.New("id parameter required"))
		return
	}
	services.Broker.MarkOffline(subID)
	jsonResponse(w, true)
}

// Frame is a websocket message in either direction. The broker sends
// "hello" on connect and "event" for each delivery; the subscriber
// answers events with "ack".
type Frame struct {
	Type  string        `json:"type"`
	ID    int           `json:"id,omitempty"`
	Event *pubsub.Event `json:"event,omitempty"`
}

// wsConn adapts a websocket to the broker's Conn interface. Notifies are
// serialized: each writes an event frame and waits for the matching ack.
// Any write, read or timeout failure reports the subscriber unreachable;
// the broker keeps the event pending and retries later.
type wsConn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	acks   chan int
	closed chan struct{}
}

func newWsConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		ws:     ws,
		acks:   make(chan int, 1),
		closed: make(chan struct{}),
	}
}

// hello sends the id frame under the write lock, so it cannot interleave
// with event frames once the connection is bound.
func (c *wsConn) hello(id int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(notifyTimeout))
	return c.ws.WriteJSON(Frame{Type: "hello", ID: id})
}

func (c *wsConn) Notify(ev *pubsub.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.closed:
		return errors.New("subscriber disconnected")
	default:
	}
	c.ws.SetWriteDeadline(time.Now().Add(notifyTimeout))
	if err := c.ws.WriteJSON(Frame{Type: "event", Event: ev}); err != nil {
		return errors.Wrap(err, "writing event frame")
	}
	select {
	case id := <-c.acks:
		if id != ev.ID {
			return errors.Errorf("ack for event %d, expected %d", id, ev.ID)
		}
		return nil
	case <-c.closed:
		return errors.New("subscriber disconnected")
	case <-time.After(notifyTimeout):
		return errors.New("ack timeout")
	}
}

// readLoop pumps acks until the peer goes away.
func (c *wsConn) readLoop() {
	defer close(c.closed)
	for {
		var frame Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type != "ack" {
			continue
		}
		select {
		case c.acks <- frame.ID:
		default:
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func apiWs(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Error upgrading websocket:", err)
		return
	}
	defer ws.Close()

	conn := newWsConn(ws)
	var subID int
	if id, ok := intParam(r, "id"); ok {
		// Rebinding can release held events at once; the hello frame
		// must precede them on the socket.
		if err := conn.hello(id); err != nil {
			return
		}
		subID = services.Broker.Rebind(id, conn)
		log.Printf("Subscriber %d rebound", subID)
	} else {
		subID = services.Broker.RegisterSubscriber(conn)
		log.Printf("Subscriber %d registered", subID)
		if err := conn.hello(subID); err != nil {
			services.Broker.MarkOfflineIf(subID, conn)
			return
		}
	}

	conn.readLoop()
	// Only this connection's teardown may mark the subscriber away: the
	// subscriber may already be rebound on a newer socket.
	if services.Broker.MarkOfflineIf(subID, conn) {
		log.Printf("Subscriber %d offline", subID)
	}
}

// Router returns the endpoint routing for the service.
func Router() *mux.Router {
	router := mux.NewRouter()
	router.Path("/").HandlerFunc(apiIndex)
	router.Path("/topics").Methods("GET").HandlerFunc(apiTopics)
	router.Path("/topics").Methods("POST").HandlerFunc(apiTopicsAdvertise)
	router.Path("/subscribe").Methods("POST").HandlerFunc(apiSubscribe)
	router.Path("/unsubscribe").Methods("POST").HandlerFunc(apiUnsubscribe)
	router.Path("/publish").Methods("POST").HandlerFunc(apiPublish)
	router.Path("/subscribers").Methods("GET").HandlerFunc(apiSubscribers)
	router.Path("/subscribers/{id}").Methods("DELETE").HandlerFunc(apiSubscribersRemove)
	router.Path("/offline").Methods("POST").HandlerFunc(apiOffline)
	router.Path("/ws").HandlerFunc(apiWs)
	return router
}

type loggingHandler struct {
	Handler http.Handler
}

func (service loggingHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Printf("%s %s\n", req.Method, req.RequestURI)
	service.Handler.ServeHTTP(w, req)
}

func httpEndpoint() {
	var handler http.Handler = Router()
	handler = loggingHandler{Handler: handler}
	http.Handle("/", handler)
	addr := services.Config.ApiListen()
	log.Println("Listening on " + addr)
	err := http.ListenAndServe(addr, nil)
	if err != nil {
		log.Fatalln(err)
	}
}

// Run the service
func (service *Service) Run() error {
	httpEndpoint()
	return nil
}
