// Package router turns inbound chat messages into mentor commands.
package router

import (
	"context"
	"strings"
	"time"

	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/command"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"go.uber.org/zap"
)

// Sender delivers replies. *gateway.Gateway satisfies it.
type Sender interface {
	Send(ctx context.Context, msg *gateway.OutboundMessage) error
}

// ContactRecorder notes that the mentor talked to an agent.
type ContactRecorder interface {
	RecordContact(ctx context.Context, agentID, contactID, summary string, boost float64, at time.Time) error
}

// MessageRouter dispatches slash commands and records plain messages as
// social contact with the addressed agents.
type MessageRouter struct {
	sender   Sender
	commands *command.Registry
	agents   *autonomy.Registry
	contacts ContactRecorder
	timeout  time.Duration
	logger   *zap.Logger
}

// New creates a MessageRouter. contacts may be nil.
func New(sender Sender, commands *command.Registry, agents *autonomy.Registry,
	contacts ContactRecorder, logger *zap.Logger) *MessageRouter {
	return &MessageRouter{
		sender:   sender,
		commands: commands,
		agents:   agents,
		contacts: contacts,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// Handle routes one inbound message. It matches gateway.MessageHandler.
func (mr *MessageRouter) Handle(msg *gateway.InboundMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), mr.timeout)
	defer cancel()

	agentID, content := mr.resolveAgent(msg.Content)
	mr.logger.Info("routing message",
		zap.String("platform", msg.Platform),
		zap.String("channel", msg.ChannelID),
		zap.String("user", msg.UserName),
		zap.String("agent", agentID),
	)

	if strings.HasPrefix(content, "/") {
		cc := &command.CommandContext{
			Platform:  msg.Platform,
			ChannelID: msg.ChannelID,
			UserID:    msg.UserID,
			UserName:  msg.UserName,
			AgentID:   agentID,
		}
		result, err := mr.commands.Dispatch(ctx, content, cc)
		if err != nil {
			mr.logger.Error("command dispatch error", zap.Error(err))
			mr.sendReply(ctx, msg, agentID, "Command error: "+err.Error())
			return
		}
		mr.sendReply(ctx, msg, agentID, result.Content)
		return
	}

	mr.recordContact(ctx, msg, agentID, content)
}

// recordContact treats a plain message as mentor contact with the addressed
// agent, or every agent when none is addressed.
func (mr *MessageRouter) recordContact(ctx context.Context, msg *gateway.InboundMessage, agentID, content string) {
	if mr.contacts == nil {
		return
	}
	targets := []string{agentID}
	if agentID == "" {
		targets = mr.agents.IDs()
	}
	contactID := msg.UserID
	if contactID == "" {
		contactID = "mentor"
	}
	at := msg.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	for _, id := range targets {
		if err := mr.contacts.RecordContact(ctx, id, contactID, truncate(content, 120), 0.05, at); err != nil {
			mr.logger.Warn("contact not recorded", zap.String("agent", id), zap.Error(err))
		}
	}
}

// resolveAgent finds an "@id" mention of a running agent and strips it.
func (mr *MessageRouter) resolveAgent(content string) (string, string) {
	content = strings.TrimSpace(content)
	for _, id := range mr.agents.IDs() {
		mention := "@" + id
		if idx := strings.Index(content, mention); idx >= 0 {
			end := idx + len(mention)
			if end < len(content) && content[end] != ' ' {
				continue
			}
			clean := strings.TrimSpace(content[:idx] + content[end:])
			return id, strings.Join(strings.Fields(clean), " ")
		}
	}
	return "", content
}

func (mr *MessageRouter) sendReply(ctx context.Context, orig *gateway.InboundMessage, agentID, text string) {
	err := mr.sender.Send(ctx, &gateway.OutboundMessage{
		Platform:  orig.Platform,
		ChannelID: orig.ChannelID,
		AgentID:   agentID,
		Content:   text,
		ReplyTo:   orig.ReplyTo,
	})
	if err != nil {
		mr.logger.Error("send reply failed", zap.Error(err))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
