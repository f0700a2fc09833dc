package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/nuka-drive/internal/autonomy"
	"github.com/nidhogg/nuka-drive/internal/command"
	"github.com/nidhogg/nuka-drive/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	mu  sync.Mutex
	out []*gateway.OutboundMessage
}

func (f *fakeSender) Send(_ context.Context, m *gateway.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, m)
	return nil
}

type contact struct{ agent, from, summary string }

type fakeContacts struct{ got []contact }

func (f *fakeContacts) RecordContact(_ context.Context, agentID, contactID, summary string, _ float64, _ time.Time) error {
	f.got = append(f.got, contact{agentID, contactID, summary})
	return nil
}

func setup(t *testing.T, ids ...string) (*MessageRouter, *fakeSender, *fakeContacts) {
	t.Helper()
	agents := autonomy.NewRegistry()
	for _, id := range ids {
		agents.Register(autonomy.New(autonomy.Options{ID: id}, zap.NewNop()))
	}
	reg := command.NewRegistry()
	reg.Register(&command.Command{
		Name: "whoami",
		Handler: func(_ context.Context, args string, cc *command.CommandContext) (*command.CommandResult, error) {
			return &command.CommandResult{Content: cc.AgentID + "|" + args}, nil
		},
	})
	sender := &fakeSender{}
	contacts := &fakeContacts{}
	return New(sender, reg, agents, contacts, zap.NewNop()), sender, contacts
}

func TestHandleCommandWithMention(t *testing.T) {
	mr, sender, _ := setup(t, "nova", "echo")
	mr.Handle(&gateway.InboundMessage{Platform: "slack", ChannelID: "C1", Content: "@echo /whoami hello", ReplyTo: "1.0"})

	require.Len(t, sender.out, 1)
	assert.Equal(t, "echo|hello", sender.out[0].Content)
	assert.Equal(t, "echo", sender.out[0].AgentID)
	assert.Equal(t, "1.0", sender.out[0].ReplyTo)
	assert.Equal(t, "C1", sender.out[0].ChannelID)
}

func TestHandleCommandTrailingMention(t *testing.T) {
	mr, sender, _ := setup(t, "nova")
	mr.Handle(&gateway.InboundMessage{Platform: "discord", Content: "/whoami now @nova"})
	require.Len(t, sender.out, 1)
	assert.Equal(t, "nova|now", sender.out[0].Content)
}

func TestMentionMustMatchWholeID(t *testing.T) {
	mr, _, _ := setup(t, "nova")
	id, content := mr.resolveAgent("@novak /status")
	assert.Empty(t, id)
	assert.Equal(t, "@novak /status", content)
}

func TestPlainMessageRecordsContact(t *testing.T) {
	mr, sender, contacts := setup(t, "nova", "echo")

	mr.Handle(&gateway.InboundMessage{UserID: "U1", Content: "@nova how are you?"})
	require.Len(t, contacts.got, 1)
	assert.Equal(t, contact{"nova", "U1", "how are you?"}, contacts.got[0])

	mr.Handle(&gateway.InboundMessage{Content: "good morning everyone"})
	require.Len(t, contacts.got, 3)
	assert.Equal(t, "echo", contacts.got[1].agent)
	assert.Equal(t, "mentor", contacts.got[1].from)
	assert.Equal(t, "nova", contacts.got[2].agent)

	assert.Empty(t, sender.out)
}
