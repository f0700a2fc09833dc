package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/slack-go/slack/slackevents"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAdapter struct {
	platform string
	failCast bool

	mu        sync.Mutex
	handler   MessageHandler
	sent      []*OutboundMessage
	broadcast []*BroadcastMessage
}

func (f *fakeAdapter) Platform() string              { return f.platform }
func (f *fakeAdapter) Connect(context.Context) error { return nil }
func (f *fakeAdapter) OnMessage(h MessageHandler)    { f.handler = h }
func (f *fakeAdapter) Close() error                  { return nil }
func (f *fakeAdapter) Send(_ context.Context, m *OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, m)
	return nil
}
func (f *fakeAdapter) Broadcast(_ context.Context, m *BroadcastMessage) error {
	if f.failCast {
		return errors.New("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, m)
	return nil
}

func TestGatewayRoutesInbound(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	a := &fakeAdapter{platform: "slack"}
	gw.Register(a)

	var got *InboundMessage
	gw.SetHandler(func(m *InboundMessage) { got = m })
	a.handler(&InboundMessage{Platform: "slack", Content: "/praise"})
	require.NotNil(t, got)
	assert.Equal(t, "/praise", got.Content)

	require.NoError(t, gw.Send(context.Background(), &OutboundMessage{Platform: "slack", Content: "hi"}))
	assert.Len(t, a.sent, 1)

	err := gw.Send(context.Background(), &OutboundMessage{Platform: "irc"})
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestGatewayBroadcastFiltersAndReports(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	slackA := &fakeAdapter{platform: "slack"}
	discordA := &fakeAdapter{platform: "discord", failCast: true}
	gw.Register(slackA)
	gw.Register(discordA)

	assert.Equal(t, []string{"discord", "slack"}, gw.Adapters())

	reached, err := gw.Broadcast(context.Background(), &BroadcastMessage{Type: BroadcastCreation})
	require.Error(t, err)
	assert.Equal(t, []string{"slack"}, reached)

	reached, err = gw.Broadcast(context.Background(), &BroadcastMessage{Type: BroadcastCreation, Platforms: []string{"slack"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"slack"}, reached)
	assert.Len(t, slackA.broadcast, 2)

	statuses := gw.StatusAll()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Connected)
}

func TestBroadcasterHistory(t *testing.T) {
	gw := NewGateway(zap.NewNop())
	gw.Register(&fakeAdapter{platform: "slack"})
	b := NewBroadcaster(gw, zap.NewNop())
	b.limit = 3

	assert.Error(t, b.Send(context.Background(), &BroadcastMessage{}))

	for i := 0; i < 5; i++ {
		require.NoError(t, b.Announce(context.Background(), "nova", BroadcastCreation, "poem", "words"))
	}
	h := b.History(0)
	assert.Len(t, h, 3)
	assert.Equal(t, []string{"slack"}, h[0].Targets)
	assert.Len(t, b.History(1), 1)
}

func TestRESTAdapterRoundTrip(t *testing.T) {
	a := NewRESTAdapter(time.Second, zap.NewNop())
	a.OnMessage(func(m *InboundMessage) {
		_ = a.Send(context.Background(), &OutboundMessage{Platform: "rest", ChannelID: m.ChannelID, Content: "echo " + m.Content})
	})
	srv := httptest.NewServer(a.Routes())
	defer srv.Close()

	body, _ := json.Marshal(map[string]string{"user_id": "u1", "content": "/status"})
	resp, err := http.Post(srv.URL+"/message", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out OutboundMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "echo /status", out.Content)
}

func TestRESTAdapterRejectsEmpty(t *testing.T) {
	a := NewRESTAdapter(time.Second, zap.NewNop())
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", bytes.NewBufferString(`{"content":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRESTAdapterTimeout(t *testing.T) {
	a := NewRESTAdapter(20*time.Millisecond, zap.NewNop())
	rec := httptest.NewRecorder()
	a.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/message", bytes.NewBufferString(`{"content":"hi"}`)))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
}

func TestSlackInboundMentorChannel(t *testing.T) {
	ev := &slackevents.MessageEvent{Channel: "C1", User: "U1", Text: "/praise", TimeStamp: "1.0"}
	msg := slackInbound(ev, "C1")
	require.NotNil(t, msg)
	assert.Equal(t, "1.0", msg.ReplyTo)

	assert.Nil(t, slackInbound(ev, "C2"))
	assert.NotNil(t, slackInbound(ev, ""))
}

func TestDiscordInboundFilters(t *testing.T) {
	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "m1", ChannelID: "D1", Content: "/alter mellow",
		Author: &discordgo.User{ID: "u1", Username: "mentor"},
	}}
	msg := discordInbound(m, "D1")
	require.NotNil(t, msg)
	assert.Equal(t, "mentor", msg.UserName)

	assert.Nil(t, discordInbound(m, "D2"))
	m.Author.Bot = true
	assert.Nil(t, discordInbound(m, ""))
}
