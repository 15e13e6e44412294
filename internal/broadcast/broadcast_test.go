package broadcast_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/gorilla/websocket"
	"github.com/jmerrifield20/vitalsguard/internal/broadcast"
	"go.uber.org/zap"
)

var ctx = context.Background()

// ── Hub ───────────────────────────────────────────────────────────────────

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	return ws
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_publishToSubscribers(t *testing.T) {
	hub := broadcast.NewHub(nil, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := dial(t, srv, "?topic="+broadcast.VitalsTopic("p1"))
	defer ws.Close()
	waitFor(t, func() bool { return hub.TopicCount(broadcast.VitalsTopic("p1")) == 1 })

	if err := hub.Publish(ctx, broadcast.VitalsTopic("p1"), map[string]int{"heartRate": 80}); err != nil {
		t.Fatal(err)
	}

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg broadcast.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Topic != "/topic/vitals/p1" || !strings.Contains(string(msg.Data), `"heartRate":80`) {
		t.Errorf("unexpected message %s", raw)
	}
}

func TestHub_subscribeMessage(t *testing.T) {
	hub := broadcast.NewHub([]string{"*"}, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := dial(t, srv, "")
	defer ws.Close()
	ws.WriteJSON(broadcast.ClientMessage{Action: "subscribe", Topics: []string{broadcast.WardTopic}})
	waitFor(t, func() bool { return hub.TopicCount(broadcast.WardTopic) == 1 })

	ws.WriteJSON(broadcast.ClientMessage{Action: "unsubscribe", Topics: []string{broadcast.WardTopic}})
	waitFor(t, func() bool { return hub.TopicCount(broadcast.WardTopic) == 0 })
}

func TestHub_disconnectUnregisters(t *testing.T) {
	hub := broadcast.NewHub(nil, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := dial(t, srv, "?topic=/topic/ward")
	waitFor(t, func() bool { return hub.ClientCount() == 1 })
	ws.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestHub_rejectsUnknownOrigin(t *testing.T) {
	hub := broadcast.NewHub([]string{"https://dashboard.example"}, zap.NewNop())
	srv := httptest.NewServer(hub)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	hdr := map[string][]string{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, hdr); err == nil {
		t.Error("handshake from a foreign origin should fail")
	}
}

func TestHub_publishWithoutSubscribers(t *testing.T) {
	hub := broadcast.NewHub(nil, zap.NewNop())
	if err := hub.Publish(ctx, "/topic/nobody", "x"); err != nil {
		t.Errorf("publishing to an empty topic should succeed: %v", err)
	}
}

// ── Kafka ─────────────────────────────────────────────────────────────────

func TestKafkaTopic(t *testing.T) {
	cases := []struct{ channel, topic, key string }{
		{"/topic/vitals/p1", "vg.vitals", "p1"},
		{"/topic/ward", "vg.ward", ""},
		{"/topic/alerts", "vg.alerts", ""},
	}
	for _, tc := range cases {
		topic, key := broadcast.KafkaTopic("vg.", tc.channel)
		if topic != tc.topic || key != tc.key {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.channel, topic, key, tc.topic, tc.key)
		}
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(m *sarama.ProducerMessage) error {
		if m.Topic != "vitalsguard.vitals" {
			return errors.New("wrong topic " + m.Topic)
		}
		key, _ := m.Key.Encode()
		if string(key) != "p1" {
			return errors.New("wrong key " + string(key))
		}
		return nil
	})

	pub := broadcast.NewKafkaPublisher(producer, "vitalsguard.")
	if err := pub.Publish(ctx, broadcast.VitalsTopic("p1"), map[string]int{"heartRate": 80}); err != nil {
		t.Fatal(err)
	}
	if err := pub.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKafkaPublisher_sendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	pub := broadcast.NewKafkaPublisher(producer, "")
	if err := pub.Publish(ctx, broadcast.WardTopic, "x"); !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Errorf("expected ErrOutOfBrokers, got %v", err)
	}
	pub.Close()
}

// ── Multi ─────────────────────────────────────────────────────────────────

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, string, any) error {
	f.calls++
	return errors.New("down")
}

func TestMulti_attemptsEveryPublisher(t *testing.T) {
	a, b := &failingPublisher{}, &failingPublisher{}
	err := broadcast.Multi{a, b}.Publish(ctx, broadcast.WardTopic, "x")
	if err == nil {
		t.Error("expected joined error")
	}
	if a.calls != 1 || b.calls != 1 {
		t.Errorf("every publisher should be attempted: %d, %d", a.calls, b.calls)
	}
}
