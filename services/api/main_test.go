package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcrae/pubsub/config"
	"github.com/mcrae/pubsub/pubsub"
	"github.com/mcrae/pubsub/services"
)

func Example_interfaces() {
	var _ services.Service = (*Service)(nil)
	// Output:
}

func ExampleIndex() {
	rec := httptest.NewRecorder()
	r := http.Request{}
	apiIndex(rec, &r)
	fmt.Println(rec.Body)
	// Output:
	// <html>pubsub broker is listening</html>
}

func setup(t *testing.T) *httptest.Server {
	services.Config = config.ExampleConfig
	services.Broker = pubsub.NewBroker()
	services.Broker.RetryInterval = 5 * time.Millisecond
	services.Broker.Start()
	srv := httptest.NewServer(Router())
	t.Cleanup(func() {
		srv.Close()
		services.Broker.Stop()
	})
	return srv
}

func postJSON(t *testing.T, url string, body interface{}) map[string]int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	var ret map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

func postBool(t *testing.T, url string) bool {
	t.Helper()
	resp, err := http.Post(url, "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	var ret bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	return ret
}

// dialWs connects a subscriber, returns its assigned id and a channel of
// delivered events. Every event frame is acked.
func dialWs(t *testing.T, srv *httptest.Server, query string) (*websocket.Conn, int, chan *pubsub.Event) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	var hello Frame
	require.NoError(t, ws.ReadJSON(&hello))
	require.Equal(t, "hello", hello.Type)

	events := make(chan *pubsub.Event, 16)
	go func() {
		for {
			var frame Frame
			if err := ws.ReadJSON(&frame); err != nil {
				close(events)
				return
			}
			if frame.Type != "event" {
				continue
			}
			ws.WriteJSON(Frame{Type: "ack", ID: frame.Event.ID})
			events <- frame.Event
		}
	}()
	return ws, hello.ID, events
}

func receive(t *testing.T, events chan *pubsub.Event) *pubsub.Event {
	t.Helper()
	select {
	case ev := <-events:
		require.NotNil(t, ev)
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return nil
	}
}

func TestEndToEnd(t *testing.T) {
	srv := setup(t)

	// advertise
	ret := postJSON(t, srv.URL+"/topics", map[string]interface{}{
		"name": "Weather", "keywords": []string{"rain", "sun"},
	})
	assert.Equal(t, 1, ret["id"])
	dup := postJSON(t, srv.URL+"/topics", map[string]interface{}{"name": "Weather"})
	assert.Equal(t, 0, dup["id"])

	// register + subscribe
	_, subID, events := dialWs(t, srv, "")
	assert.Equal(t, 1, subID)
	assert.True(t, postBool(t, fmt.Sprintf("%s/subscribe?id=%d&topic=1", srv.URL, subID)))
	assert.False(t, postBool(t, fmt.Sprintf("%s/subscribe?id=%d&topic=1", srv.URL, subID)))

	// publish delivers over the websocket
	pub := postJSON(t, srv.URL+"/publish", map[string]interface{}{
		"topic": 1, "title": "Storm", "content": "heavy rain",
	})
	assert.Equal(t, 1, pub["id"])
	ev := receive(t, events)
	assert.Equal(t, "Storm", ev.Title)
	assert.Equal(t, []string{"rain", "sun"}, ev.Keywords, "topic keywords by default")
	assert.Equal(t, 0, services.Broker.PendingEvents())

	// unknown topic publish is rejected
	bad := postJSON(t, srv.URL+"/publish", map[string]interface{}{"topic": 9, "title": "x"})
	assert.Equal(t, 0, bad["id"])
}

func TestOfflineRetryOverWs(t *testing.T) {
	srv := setup(t)
	postJSON(t, srv.URL+"/topics", map[string]interface{}{"name": "Weather"})

	ws, subID, _ := dialWs(t, srv, "")
	assert.True(t, postBool(t, fmt.Sprintf("%s/subscribe?id=%d&topic=1", srv.URL, subID)))

	// drop the connection; the broker marks the subscriber offline
	ws.Close()
	deadline := time.Now().Add(2 * time.Second)
	for services.Broker.ConnAlive(subID) && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	pub := postJSON(t, srv.URL+"/publish", map[string]interface{}{
		"topic": 1, "title": "Storm", "content": "x",
	})
	assert.NotEqual(t, 0, pub["id"])
	assert.Equal(t, 1, services.Broker.PendingEvents())

	// rebind under the old id; the retry loop catches up
	_, rebound, events := dialWs(t, srv, fmt.Sprintf("?id=%d", subID))
	assert.Equal(t, subID, rebound)
	ev := receive(t, events)
	assert.Equal(t, "Storm", ev.Title)
}

// A subscriber that rebinds on a fresh socket while the old one is still
// open must stay reachable once the old socket finally closes.
func TestRebindSurvivesStaleClose(t *testing.T) {
	srv := setup(t)
	postJSON(t, srv.URL+"/topics", map[string]interface{}{"name": "Weather"})

	stale, subID, _ := dialWs(t, srv, "")
	assert.True(t, postBool(t, fmt.Sprintf("%s/subscribe?id=%d&topic=1", srv.URL, subID)))

	_, rebound, events := dialWs(t, srv, fmt.Sprintf("?id=%d", subID))
	assert.Equal(t, subID, rebound)
	stale.Close()

	// Give the old connection's teardown time to run; it must not knock
	// the rebound subscriber offline.
	time.Sleep(100 * time.Millisecond)
	assert.True(t, services.Broker.ConnAlive(subID), "fresh socket still bound")

	pub := postJSON(t, srv.URL+"/publish", map[string]interface{}{
		"topic": 1, "title": "Storm", "content": "x",
	})
	assert.NotEqual(t, 0, pub["id"])
	ev := receive(t, events)
	assert.Equal(t, "Storm", ev.Title)
	assert.Equal(t, 0, services.Broker.PendingEvents())
}

func TestSubscribersEndpoint(t *testing.T) {
	srv := setup(t)
	postJSON(t, srv.URL+"/topics", map[string]interface{}{"name": "Weather"})
	_, subID, _ := dialWs(t, srv, "")
	postBool(t, fmt.Sprintf("%s/subscribe?id=%d&topic=1", srv.URL, subID))
	postBool(t, fmt.Sprintf("%s/subscribe?id=%d&keyword=rain", srv.URL, subID))

	resp, err := http.Get(srv.URL + "/subscribers")
	require.NoError(t, err)
	defer resp.Body.Close()
	var ret struct {
		IDs      []int            `json:"ids"`
		Topics   map[string][]int `json:"topics"`
		Keywords map[string][]int `json:"keywords"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ret))
	assert.Equal(t, []int{subID}, ret.IDs)
	assert.Equal(t, []int{subID}, ret.Topics["Weather"])
	assert.Equal(t, []int{subID}, ret.Keywords["rain"])

	// permanent removal cascades
	req, _ := http.NewRequest("DELETE", fmt.Sprintf("%s/subscribers/%d", srv.URL, subID), nil)
	_, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Empty(t, services.Broker.SubscriberIDs())
}
