package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

// DiscordAdapter talks to the mentor through a Discord bot.
type DiscordAdapter struct {
	token    string
	channel  string
	session  *discordgo.Session
	handler  MessageHandler
	personas map[string]*AgentPersona

	mu          sync.RWMutex
	connected   bool
	connectedAt time.Time
	lastError   string
	logger      *zap.Logger
}

// NewDiscordAdapter creates a Discord adapter bound to a mentor channel.
func NewDiscordAdapter(token, mentorChannel string, logger *zap.Logger) *DiscordAdapter {
	return &DiscordAdapter{
		token:    token,
		channel:  mentorChannel,
		personas: make(map[string]*AgentPersona),
		logger:   logger,
	}
}

func (a *DiscordAdapter) Platform() string { return "discord" }

func (a *DiscordAdapter) OnMessage(h MessageHandler) { a.handler = h }

// SetPersona registers how an agent's messages are displayed.
func (a *DiscordAdapter) SetPersona(agentID string, persona *AgentPersona) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.personas[agentID] = persona
}

// Connect opens the Discord gateway websocket.
func (a *DiscordAdapter) Connect(_ context.Context) error {
	session, err := discordgo.New("Bot " + a.token)
	if err != nil {
		a.fail(fmt.Sprintf("session create: %v", err))
		return fmt.Errorf("discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentsMessageContent
	session.AddHandler(a.onMessageCreate)

	if err := session.Open(); err != nil {
		a.fail(fmt.Sprintf("open failed: %v", err))
		return fmt.Errorf("discord open: %w", err)
	}

	a.mu.Lock()
	a.session = session
	a.connected = true
	a.connectedAt = time.Now()
	a.lastError = ""
	a.mu.Unlock()

	a.logger.Info("discord adapter connected",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(session.State.Guilds)),
		zap.String("mentor_channel", a.channel))
	return nil
}

func (a *DiscordAdapter) fail(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connected = false
	a.lastError = reason
}

func (a *DiscordAdapter) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}
	if msg := discordInbound(m, a.channel); msg != nil && a.handler != nil {
		a.handler(msg)
	}
}

// discordInbound normalizes a message. Bot authors and messages outside the
// mentor channel are dropped.
func discordInbound(m *discordgo.MessageCreate, mentorChannel string) *InboundMessage {
	if m.Author == nil || m.Author.Bot {
		return nil
	}
	if mentorChannel != "" && m.ChannelID != mentorChannel {
		return nil
	}
	return &InboundMessage{
		Platform:  "discord",
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		UserName:  m.Author.Username,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		ReplyTo:   m.ID,
	}
}

// Send posts a plain message prefixed with the agent's persona name.
func (a *DiscordAdapter) Send(_ context.Context, msg *OutboundMessage) error {
	a.mu.RLock()
	session := a.session
	persona, ok := a.personas[msg.AgentID]
	a.mu.RUnlock()
	if session == nil {
		return fmt.Errorf("discord: not connected")
	}

	content := msg.Content
	if ok {
		content = fmt.Sprintf("**[%s]** %s", persona.Name, msg.Content)
	}
	if _, err := session.ChannelMessageSend(msg.ChannelID, content); err != nil {
		return fmt.Errorf("discord send: %w", err)
	}
	return nil
}

// Broadcast posts to the mentor channel.
func (a *DiscordAdapter) Broadcast(ctx context.Context, msg *BroadcastMessage) error {
	if a.channel == "" {
		return fmt.Errorf("discord: no mentor channel configured")
	}
	return a.Send(ctx, &OutboundMessage{
		Platform:  "discord",
		ChannelID: a.channel,
		AgentID:   msg.AgentID,
		Content:   fmt.Sprintf("**[%s] %s**\n%s", msg.Type, msg.Title, msg.Content),
	})
}

// Close shuts down the Discord session.
func (a *DiscordAdapter) Close() error {
	a.mu.Lock()
	session := a.session
	a.session = nil
	a.connected = false
	a.mu.Unlock()
	if session != nil {
		return session.Close()
	}
	return nil
}

func (a *DiscordAdapter) Status() AdapterStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := AdapterStatus{
		Platform:  "discord",
		Connected: a.connected,
		Error:     a.lastError,
	}
	if a.connected {
		t := a.connectedAt
		s.ConnectedAt = &t
		guilds := 0
		if a.session != nil && a.session.State != nil {
			guilds = len(a.session.State.Guilds)
		}
		s.Details = fmt.Sprintf("channel=%s, guilds=%d", a.channel, guilds)
	}
	return s
}
