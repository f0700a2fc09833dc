package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"
)

// SlackAdapter talks to the mentor over Slack Socket Mode. Broadcasts go to
// the configured mentor channel only.
type SlackAdapter struct {
	client   *slack.Client
	socket   *socketmode.Client
	channel  string
	handler  MessageHandler
	personas map[string]*AgentPersona

	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	logger      *zap.Logger
}

// NewSlackAdapter creates a Slack adapter. botToken is the xoxb- token,
// appToken the xapp- token used by Socket Mode.
func NewSlackAdapter(botToken, appToken, mentorChannel string, logger *zap.Logger) *SlackAdapter {
	client := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &SlackAdapter{
		client:   client,
		socket:   socketmode.New(client, socketmode.OptionLog(zap.NewStdLog(logger))),
		channel:  mentorChannel,
		personas: make(map[string]*AgentPersona),
		logger:   logger,
	}
}

func (a *SlackAdapter) Platform() string { return "slack" }

func (a *SlackAdapter) OnMessage(h MessageHandler) { a.handler = h }

// SetPersona registers how an agent's messages are displayed.
func (a *SlackAdapter) SetPersona(agentID string, persona *AgentPersona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[agentID] = persona
}

// Connect starts the Socket Mode loop in the background.
func (a *SlackAdapter) Connect(ctx context.Context) error {
	go a.handleEvents(ctx)
	go func() {
		if err := a.socket.RunContext(ctx); err != nil {
			a.logger.Error("slack socket mode error", zap.Error(err))
			a.mu.Lock()
			a.connected = false
			a.mu.Unlock()
		}
	}()
	a.mu.Lock()
	a.connected = true
	a.connectedAt = time.Now()
	a.mu.Unlock()
	a.logger.Info("slack adapter connected via socket mode", zap.String("mentor_channel", a.channel))
	return nil
}

func (a *SlackAdapter) handleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.socket.Events:
			if !ok {
				return
			}
			a.processEvent(evt)
		}
	}
}

func (a *SlackAdapter) processEvent(evt socketmode.Event) {
	if evt.Type != socketmode.EventTypeEventsAPI {
		return
	}
	eventsAPI, ok := evt.Data.(slackevents.EventsAPIEvent)
	if !ok {
		return
	}
	if evt.Request != nil {
		a.socket.Ack(*evt.Request)
	}
	if eventsAPI.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := eventsAPI.InnerEvent.Data.(*slackevents.MessageEvent); ok && ev.BotID == "" {
		if msg := slackInbound(ev, a.channel); msg != nil && a.handler != nil {
			a.handler(msg)
		}
	}
}

// slackInbound normalizes a message event. Messages outside the mentor
// channel are ignored when one is configured.
func slackInbound(ev *slackevents.MessageEvent, mentorChannel string) *InboundMessage {
	if mentorChannel != "" && ev.Channel != mentorChannel {
		return nil
	}
	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}
	return &InboundMessage{
		Platform:  "slack",
		ChannelID: ev.Channel,
		UserID:    ev.User,
		UserName:  ev.User,
		Content:   ev.Text,
		Timestamp: time.Now(),
		ReplyTo:   thread,
	}
}

// Send posts a message, threading it when ReplyTo is set.
func (a *SlackAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Content, false)}
	if msg.ReplyTo != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ReplyTo))
	}
	opts = append(opts, a.personaOpts(msg.AgentID)...)

	if _, _, err := a.client.PostMessage(msg.ChannelID, opts...); err != nil {
		a.logger.Error("slack send failed", zap.String("channel", msg.ChannelID), zap.Error(err))
		return fmt.Errorf("slack send: %w", err)
	}
	return nil
}

func (a *SlackAdapter) personaOpts(agentID string) []slack.MsgOption {
	a.mu.RLock()
	p, ok := a.personas[agentID]
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	opts := []slack.MsgOption{slack.MsgOptionUsername(p.Name)}
	switch {
	case p.IconURL != "":
		opts = append(opts, slack.MsgOptionIconURL(p.IconURL))
	case p.Emoji != "":
		opts = append(opts, slack.MsgOptionIconEmoji(p.Emoji))
	}
	return opts
}

// Broadcast posts to the mentor channel.
func (a *SlackAdapter) Broadcast(ctx context.Context, msg *BroadcastMessage) error {
	if a.channel == "" {
		return fmt.Errorf("slack: no mentor channel configured")
	}
	return a.Send(ctx, &OutboundMessage{
		Platform:  "slack",
		ChannelID: a.channel,
		AgentID:   msg.AgentID,
		Content:   fmt.Sprintf("*[%s] %s*\n%s", msg.Type, msg.Title, msg.Content),
	})
}

// Close is a no-op; cancelling the Connect context stops the socket.
func (a *SlackAdapter) Close() error { return nil }

func (a *SlackAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{Platform: "slack", Connected: a.connected, Details: "channel=" + a.channel}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
	}
	return s
}
