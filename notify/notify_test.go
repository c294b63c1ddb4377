package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *log.Logger {
	l := log.New()
	l.SetOutput(io.Discard)
	return l
}

func sampleEvent() Event {
	return Event{
		Type:     RequestCreated,
		To:       []string{"Alice@Example.edu", "alice@example.edu"},
		ToAdmins: true,
		Subject:  "New request <OSC-1>",
		Payload:  map[string]any{"item": "Oscilloscope", "unit": "OSC-1"},
		At:       time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
	}
}

func TestMailerRecipientsAndMessage(t *testing.T) {
	m := NewMailer(SMTPConfig{Host: "smtp.example.edu", Port: "587", Username: "bot@example.edu", AppName: "Lab"},
		[]string{"ops@example.edu", "alice@example.edu"}, quiet())

	var gotTo []string
	var gotMsg string
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.edu:587", addr)
		assert.Equal(t, "bot@example.edu", from)
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	require.NoError(t, m.Notify(context.Background(), sampleEvent()))
	assert.Equal(t, []string{"alice@example.edu", "ops@example.edu"}, gotTo)
	assert.Contains(t, gotMsg, "Subject: [Lab] New request <OSC-1>")
	assert.Contains(t, gotMsg, "New request &lt;OSC-1&gt;")
	// payload 按 key 排序
	assert.Less(t, strings.Index(gotMsg, "item"), strings.Index(gotMsg, "unit"))

	m.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay refused") }
	err := m.Notify(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "relay refused")
}

func TestMailerDevModeAndNoRecipients(t *testing.T) {
	m := NewMailer(SMTPConfig{}, nil, quiet())
	m.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send must not be called without SMTP host")
		return nil
	}
	assert.NoError(t, m.Notify(context.Background(), sampleEvent()))
	assert.NoError(t, m.Notify(context.Background(), Event{Type: UserBlocked, ToAdmins: true}))
}

func TestWebhookPostsEventAndTrips(t *testing.T) {
	var fail atomic.Bool
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		var ev Event
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil || ev.Type != RequestCreated {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	wh := NewWebhook(srv.URL, time.Second)
	require.NoError(t, wh.Notify(context.Background(), sampleEvent()))
	assert.Equal(t, "closed", wh.State())

	fail.Store(true)
	for i := 0; i < 3; i++ {
		assert.Error(t, wh.Notify(context.Background(), sampleEvent()))
	}
	assert.Equal(t, "open", wh.State())

	before := hits.Load()
	err := wh.Notify(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "is open")
	assert.Equal(t, before, hits.Load())
}

type failing struct{}

func (failing) Notify(context.Context, Event) error { return errors.New("down") }

func TestMultiDeliversToAll(t *testing.T) {
	a, b := &Recorder{}, &Recorder{}
	err := Multi{a, failing{}, b}.Notify(context.Background(), sampleEvent())
	assert.ErrorContains(t, err, "down")
	assert.Len(t, a.Events(), 1)
	assert.Len(t, b.Events(), 1)
}

func TestAsyncWait(t *testing.T) {
	rec := &Recorder{}
	as := NewAsync(Multi{rec, failing{}}, "test", time.Second, quiet())
	for i := 0; i < 5; i++ {
		assert.NoError(t, as.Notify(context.Background(), sampleEvent()))
	}
	as.Wait()
	assert.Len(t, rec.OfType(RequestCreated), 5)
}
