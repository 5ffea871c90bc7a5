package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// dialTestConn upgrades an httptest server connection and hands the server
// side to serve. It returns the client side for assertions.
func dialTestConn(t *testing.T, serve func(conn *websocket.Conn)) *websocket.Conn {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		serve(conn)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestSenderConcurrentWrites(t *testing.T) {
	const writers = 4
	const perWriter = 25

	client := dialTestConn(t, func(conn *websocket.Conn) {
		sender := NewSender(conn)
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < perWriter; j++ {
					if n%2 == 0 {
						sender.Send(PongResponse{Event: EventPong})
					} else {
						sender.Send(ChangeNotification{Event: EventChange, Type: "updated"})
					}
				}
			}(i)
		}
		wg.Wait()
	})

	for i := 0; i < writers*perWriter; i++ {
		_, raw, err := client.ReadMessage()
		if err != nil {
			t.Fatalf("read %d failed: %v", i, err)
		}
		var env struct {
			Event Event `json:"event"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("read %d not valid JSON: %v", i, err)
		}
		if env.Event != EventPong && env.Event != EventChange {
			t.Fatalf("read %d unexpected event %q", i, env.Event)
		}
	}
}

func TestSenderError(t *testing.T) {
	client := dialTestConn(t, func(conn *websocket.Conn) {
		sender := NewSender(conn)
		if err := sender.SendError("unknown action"); err != nil {
			t.Errorf("send error failed: %v", err)
		}
	})

	var resp ErrorResponse
	if err := client.ReadJSON(&resp); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if resp.Event != EventError || resp.Error != "unknown action" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}
