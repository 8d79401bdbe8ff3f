package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbeoliero/deskline/internal/entity"
	"github.com/mbeoliero/deskline/internal/event"
	"github.com/mbeoliero/deskline/pkg/constant"
	"github.com/mbeoliero/deskline/pkg/errcode"
)

const (
	visitorId = "v___visitor1"
	agentA    = "ag__1"
	agentB    = "ag__2"
)

func TestScenario_HandOffAndClose(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()

	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, aConn := h.connect(t, agentA, constant.RoleAgent, "a")
	b, bConn := h.connect(t, agentB, constant.RoleAgent, "b")

	c1 := h.createConversation(t, visitor)
	assert.Equal(t, constant.ConvStatusWaiting, c1.Status)

	_, err := h.coord.Join(ctx, visitor, c1.Id)
	require.NoError(t, err)
	_, err = h.coord.Join(ctx, a, c1.Id)
	require.NoError(t, err)

	hello := h.send(t, visitor, c1.Id, "hello")
	assert.Equal(t, constant.ConvStatusActive, h.conv(t, c1.Id).Status)
	got := aConn.ofType(event.NewMessage)
	require.Len(t, got, 1)
	assert.Equal(t, hello.Id, got[0].Data.(*entity.MessageInfo).Id)

	h.send(t, a, c1.Id, "hi")
	require.Len(t, vConn.ofType(event.NewMessage), 2)
	assert.Equal(t, int64(1), h.conv(t, c1.Id).UnreadCount)

	conv, err := h.coord.Transfer(ctx, a, c1.Id, agentB, "shift change")
	require.NoError(t, err)
	assert.Equal(t, constant.ConvStatusTransferred, conv.Status)
	assert.Len(t, conv.TransferHistory, 1)
	assert.Equal(t, agentB, conv.AgentId)

	assigned := bConn.ofType(event.NewConversationAssigned)
	require.Len(t, assigned, 1)
	data := assigned[0].Data.(*event.TransferredData)
	assert.Equal(t, agentA, data.FromAgent)
	assert.Equal(t, "shift change", data.Reason)
	assert.Contains(t, data.Message.Content, "shift change")
	assert.Len(t, vConn.ofType(event.ConversationTransferred), 1)
	assert.Empty(t, bConn.ofType(event.ConversationTransferred))

	_, err = h.coord.Join(ctx, b, c1.Id)
	require.NoError(t, err)
	conv, err = h.coord.Close(ctx, b, c1.Id)
	require.NoError(t, err)
	assert.Equal(t, constant.ConvStatusClosed, conv.Status)
	assert.NotZero(t, conv.EndTime)
	assert.Len(t, vConn.ofType(event.ConversationClosed), 1)

	_, err = h.coord.SendMessage(ctx, visitor, &SendMessageRequest{ConversationId: c1.Id, Content: "still there?"})
	assert.True(t, errors.Is(err, errcode.ErrInvalidState))
	assert.True(t, errors.Is(err, errcode.ErrConversationClosed))

	msgs := h.store.messages(c1.Id)
	require.Len(t, msgs, 4)
	assert.Equal(t, constant.MsgTypeSystem, msgs[2].MsgType)
	assert.Equal(t, constant.MsgTypeSystem, msgs[3].MsgType)
}

func TestSendMessage_VisitorActivatesWaiting(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	h.send(t, visitor, conv.Id, "anyone?")

	stored := h.conv(t, conv.Id)
	assert.Equal(t, constant.ConvStatusActive, stored.Status)
	assert.Empty(t, stored.AgentId)
	assert.Equal(t, "anyone?", stored.LastMessage)
	assert.Equal(t, int64(1), stored.LastSeq)
}

func TestSendMessage_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	cases := []struct {
		name string
		req  *SendMessageRequest
		want *errcode.Error
	}{
		{"blank", &SendMessageRequest{ConversationId: conv.Id, Content: "   "}, errcode.ErrEmptyContent},
		{"bad type", &SendMessageRequest{ConversationId: conv.Id, Content: "x", MsgType: "gif"}, errcode.ErrInvalidMessageType},
		{"system", &SendMessageRequest{ConversationId: conv.Id, Content: "x", MsgType: constant.MsgTypeSystem}, errcode.ErrInvalidMessageType},
		{"unknown conversation", &SendMessageRequest{ConversationId: "nope", Content: "x"}, errcode.ErrConversationNotFound},
		{"unknown reply", &SendMessageRequest{ConversationId: conv.Id, Content: "x", ReplyTo: "missing"}, errcode.ErrInvalidReplyTo},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.coord.SendMessage(ctx, visitor, tc.req)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	assert.Empty(t, h.store.messages(conv.Id))
	assert.Equal(t, constant.ConvStatusWaiting, h.conv(t, conv.Id).Status)
}

func TestSendMessage_AttachmentWithoutText(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	msg, err := h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{
		ConversationId: conv.Id,
		MsgType:        constant.MsgTypeImage,
		Attachment:     &entity.Attachment{Url: "https://cdn/x.png", MimeType: "image/png"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/x.png", msg.Attachment.Url)
}

func TestSendMessage_ReplyToOtherConversation(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	c1 := h.createConversation(t, visitor)
	c2 := h.createConversation(t, visitor)
	m1 := h.send(t, visitor, c1.Id, "first")

	_, err := h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{ConversationId: c2.Id, Content: "x", ReplyTo: m1.Id})
	assert.True(t, errors.Is(err, errcode.ErrInvalidReplyTo))

	reply, err := h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{ConversationId: c1.Id, Content: "x", ReplyTo: m1.Id})
	require.NoError(t, err)
	assert.Equal(t, m1.Id, reply.ReplyTo)
}

func TestSendMessage_OtherVisitorDenied(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	other, _ := h.connect(t, "v___other", constant.RoleVisitor, "o")
	conv := h.createConversation(t, visitor)

	_, err := h.coord.SendMessage(t.Context(), other, &SendMessageRequest{ConversationId: conv.Id, Content: "x"})
	assert.True(t, errors.Is(err, errcode.ErrPermissionDenied))

	_, err = h.coord.Join(t.Context(), other, conv.Id)
	assert.True(t, errors.Is(err, errcode.ErrPermissionDenied))
}

func TestSendMessage_ConcurrentOrdering(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	_, watcher := h.connect(t, agentB, constant.RoleAgent, "watch")
	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(t.Context(), &Participant{Id: agentB, Role: constant.RoleAgent, Conn: watcher}, conv.Id)
	require.NoError(t, err)

	const senders, perSender = 10, 10
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := visitor
			if i%2 == 1 {
				p = a
			}
			for j := 0; j < perSender; j++ {
				_, err := h.coord.SendMessage(context.Background(), p, &SendMessageRequest{
					ConversationId: conv.Id,
					Content:        fmt.Sprintf("s%d-m%d", i, j),
				})
				assert.NoError(t, err)
			}
		}(i)
	}
	wg.Wait()

	stored := h.store.messages(conv.Id)
	require.Len(t, stored, senders*perSender)
	seen := make(map[string]bool)
	for i, m := range stored {
		assert.Equal(t, int64(i+1), m.Seq)
		assert.False(t, seen[m.Content], "duplicate %s", m.Content)
		seen[m.Content] = true
		if i > 0 {
			assert.GreaterOrEqual(t, m.Timestamp, stored[i-1].Timestamp)
		}
	}

	broadcast := watcher.ofType(event.NewMessage)
	require.Len(t, broadcast, len(stored))
	for i, evt := range broadcast {
		assert.Equal(t, stored[i].Id, evt.Data.(*entity.MessageInfo).Id)
	}

	final := h.conv(t, conv.Id)
	assert.Equal(t, int64(senders*perSender), final.LastSeq)
	assert.Equal(t, int64(senders/2*perSender), final.UnreadCount)
}

func TestSendMessage_ClientMsgIdDedupe(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)

	req := &SendMessageRequest{ConversationId: conv.Id, Content: "hello", ClientMsgId: "c-1"}
	first, err := h.coord.SendMessage(t.Context(), visitor, req)
	require.NoError(t, err)
	second, err := h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{ConversationId: conv.Id, Content: "hello", ClientMsgId: "c-1"})
	require.NoError(t, err)

	assert.Equal(t, first.Id, second.Id)
	assert.Len(t, h.store.messages(conv.Id), 1)
	assert.Len(t, vConn.ofType(event.NewMessage), 1)
	assert.Equal(t, int64(1), h.conv(t, conv.Id).UnreadCount)
}

func TestSendMessage_StoreFailureNoBroadcast(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)

	h.store.fail.Store(true)
	_, err = h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{ConversationId: conv.Id, Content: "hello"})
	assert.True(t, errors.Is(err, errcode.ErrStoreUnavailable))
	assert.Empty(t, vConn.ofType(event.NewMessage))

	stored := h.conv(t, conv.Id)
	assert.Equal(t, constant.ConvStatusWaiting, stored.Status)
	assert.Zero(t, stored.UnreadCount)

	h.store.fail.Store(false)
	msg := h.send(t, visitor, conv.Id, "hello")
	assert.Equal(t, int64(1), msg.Seq)
}

func TestSendMessage_StoreTimeoutReleasesLock(t *testing.T) {
	h := newHarness(t)
	h.coord.opts.StoreTimeout = 50 * time.Millisecond
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	h.store.appendCh = make(chan struct{})
	_, err := h.coord.SendMessage(t.Context(), visitor, &SendMessageRequest{ConversationId: conv.Id, Content: "slow"})
	assert.True(t, errors.Is(err, errcode.ErrStoreUnavailable))
	assert.Equal(t, 0, h.coord.locks.Len())

	h.store.appendCh = nil
	h.send(t, visitor, conv.Id, "fast")
}

func TestSendMessage_CompletesAfterCallerGone(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	h.store.appendCh = make(chan struct{})
	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		cancel()
		time.Sleep(20 * time.Millisecond)
		h.store.appendCh <- struct{}{}
	}()

	_, err := h.coord.SendMessage(ctx, visitor, &SendMessageRequest{ConversationId: conv.Id, Content: "in flight"})
	require.NoError(t, err)
	assert.Len(t, h.store.messages(conv.Id), 1)
}

func TestUnreadCount_MarkRead(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, aConn := h.connect(t, agentA, constant.RoleAgent, "a")
	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)
	_, err = h.coord.Join(t.Context(), a, conv.Id)
	require.NoError(t, err)

	h.send(t, visitor, conv.Id, "1")
	h.send(t, visitor, conv.Id, "2")
	h.send(t, a, conv.Id, "reply")
	h.send(t, visitor, conv.Id, "3")
	assert.Equal(t, int64(3), h.conv(t, conv.Id).UnreadCount)

	_, err = h.coord.MarkRead(t.Context(), visitor, conv.Id, nil)
	assert.True(t, errors.Is(err, errcode.ErrAgentOnly))

	read, err := h.coord.MarkRead(t.Context(), a, conv.Id, nil)
	require.NoError(t, err)
	assert.Len(t, read, 3)
	assert.Zero(t, h.conv(t, conv.Id).UnreadCount)
	assert.Len(t, vConn.ofType(event.MessagesRead), 1)
	assert.Empty(t, aConn.ofType(event.MessagesRead))

	before := h.store.messages(conv.Id)
	read, err = h.coord.MarkRead(t.Context(), a, conv.Id, nil)
	require.NoError(t, err)
	assert.Empty(t, read)
	assert.Equal(t, before, h.store.messages(conv.Id))
	assert.Zero(t, h.conv(t, conv.Id).UnreadCount)

	h.send(t, visitor, conv.Id, "4")
	assert.Equal(t, int64(1), h.conv(t, conv.Id).UnreadCount)
}

func TestTransfer_History(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	b, _ := h.connect(t, agentB, constant.RoleAgent, "b")
	conv := h.createConversation(t, visitor)

	_, err := h.coord.Transfer(ctx, a, conv.Id, agentB, "")
	assert.True(t, errors.Is(err, errcode.ErrNoAgentAssigned))

	_, err = h.coord.Join(ctx, a, conv.Id)
	require.NoError(t, err)

	_, err = h.coord.Transfer(ctx, visitor, conv.Id, agentB, "")
	assert.True(t, errors.Is(err, errcode.ErrPermissionDenied))
	_, err = h.coord.Transfer(ctx, a, conv.Id, agentA, "")
	assert.True(t, errors.Is(err, errcode.ErrAlreadyAssigned))
	_, err = h.coord.Transfer(ctx, a, conv.Id, visitorId, "")
	assert.True(t, errors.Is(err, errcode.ErrNotFound))
	_, err = h.coord.Transfer(ctx, a, conv.Id, "", "")
	assert.True(t, errors.Is(err, errcode.ErrValidation))

	targets := []string{agentB, "ag__3", agentA}
	for i, to := range targets {
		caller := a
		if i == 1 {
			caller = b
		}
		got, err := h.coord.Transfer(ctx, caller, conv.Id, to, fmt.Sprintf("r%d", i))
		require.NoError(t, err)
		require.Len(t, got.TransferHistory, i+1)
		assert.Equal(t, got.TransferHistory[len(got.TransferHistory)-1].ToAgent, got.AgentId)
	}

	stored := h.conv(t, conv.Id)
	assert.Len(t, stored.TransferHistory, 3)
	assert.Equal(t, agentA, stored.AgentId)
	assert.Equal(t, "Conversation transferred to another agent. Reason: r2", stored.LastMessage)
}

func TestClose_Twice(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	conv := h.createConversation(t, visitor)

	_, err := h.coord.Close(t.Context(), visitor, conv.Id)
	require.NoError(t, err)
	_, err = h.coord.Close(t.Context(), visitor, conv.Id)
	assert.True(t, errors.Is(err, errcode.ErrInvalidState))
	assert.Len(t, h.store.messages(conv.Id), 1)
}

func TestRate_Boundaries(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")

	for _, score := range []int{0, 6} {
		conv := h.createConversation(t, visitor)
		_, err := h.coord.Rate(t.Context(), visitor, conv.Id, score, "")
		assert.True(t, errors.Is(err, errcode.ErrValidation), "score %d", score)
		assert.Nil(t, h.conv(t, conv.Id).Rating)
	}
	for _, score := range []int{1, 5} {
		conv := h.createConversation(t, visitor)
		got, err := h.coord.Rate(t.Context(), visitor, conv.Id, score, " thanks ")
		require.NoError(t, err, "score %d", score)
		assert.Equal(t, score, got.Rating.Score)
		assert.Equal(t, "thanks", h.conv(t, conv.Id).Rating.Comment)
	}
}

func TestRate_OnceAndVisitorOnly(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	conv := h.createConversation(t, visitor)

	_, err := h.coord.Rate(t.Context(), a, conv.Id, 4, "")
	assert.True(t, errors.Is(err, errcode.ErrVisitorOnly))

	_, err = h.coord.Rate(t.Context(), visitor, conv.Id, 4, "")
	require.NoError(t, err)
	_, err = h.coord.Rate(t.Context(), visitor, conv.Id, 5, "")
	assert.True(t, errors.Is(err, errcode.ErrAlreadyRated))
	assert.Equal(t, 4, h.conv(t, conv.Id).Rating.Score)
}

func TestEditAndDeleteMessage(t *testing.T) {
	h := newHarness(t)
	ctx := t.Context()
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(ctx, visitor, conv.Id)
	require.NoError(t, err)
	msg := h.send(t, a, conv.Id, "helo")

	_, err = h.coord.EditMessage(ctx, visitor, msg.Id, "x")
	assert.True(t, errors.Is(err, errcode.ErrAgentOnly))
	_, err = h.coord.EditMessage(ctx, a, "missing", "x")
	assert.True(t, errors.Is(err, errcode.ErrMessageNotFound))

	edited, err := h.coord.EditMessage(ctx, a, msg.Id, "hello")
	require.NoError(t, err)
	edited, err = h.coord.EditMessage(ctx, a, msg.Id, "hello!")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Equal(t, "helo", edited.OriginalContent)
	assert.Equal(t, "hello!", edited.Content)

	_, err = h.coord.EditMessage(ctx, a, msg.Id, "hello!")
	require.NoError(t, err)
	assert.Len(t, vConn.ofType(event.MessageEdited), 2)

	deleted, err := h.coord.DeleteMessage(ctx, a, msg.Id)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, agentA, deleted.DeletedBy)
	_, err = h.coord.DeleteMessage(ctx, a, msg.Id)
	require.NoError(t, err)

	deletedEvents := vConn.ofType(event.MessageDeleted)
	require.Len(t, deletedEvents, 1)
	assert.Empty(t, deletedEvents[0].Data.(*entity.MessageInfo).Content)

	_, err = h.coord.EditMessage(ctx, a, msg.Id, "again")
	assert.True(t, errors.Is(err, errcode.ErrMessageDeleted))

	h.send(t, visitor, conv.Id, "visible")
	history, err := h.coord.History(ctx, visitor, conv.Id, entity.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "visible", history[0].Content)
}

func TestTyping_RequiresJoin(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, aConn := h.connect(t, agentA, constant.RoleAgent, "a")
	conv := h.createConversation(t, visitor)

	err := h.coord.Typing(t.Context(), visitor, conv.Id, true)
	assert.True(t, errors.Is(err, errcode.ErrNotJoined))

	_, err = h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)
	_, err = h.coord.Join(t.Context(), a, conv.Id)
	require.NoError(t, err)

	require.NoError(t, h.coord.Typing(t.Context(), visitor, conv.Id, true))
	require.NoError(t, h.coord.Typing(t.Context(), visitor, conv.Id, false))
	assert.Len(t, aConn.ofType(event.UserTyping), 1)
	assert.Len(t, aConn.ofType(event.UserStoppedTyping), 1)
	assert.Empty(t, vConn.ofType(event.UserTyping))
	assert.Empty(t, h.store.messages(conv.Id))
}

func TestJoinLeave_Notifications(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	conv := h.createConversation(t, visitor)

	_, err := h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)
	joined, err := h.coord.Join(t.Context(), a, conv.Id)
	require.NoError(t, err)
	assert.Equal(t, agentA, joined.AgentId)
	assert.Equal(t, constant.ConvStatusActive, joined.Status)

	_, err = h.coord.Join(t.Context(), a, conv.Id)
	require.NoError(t, err)
	assert.Len(t, vConn.ofType(event.UserJoined), 1)

	require.NoError(t, h.coord.Leave(t.Context(), a, conv.Id))
	require.NoError(t, h.coord.Leave(t.Context(), a, conv.Id))
	assert.Len(t, vConn.ofType(event.UserLeft), 1)

	_, err = h.coord.Join(t.Context(), a, "missing")
	assert.True(t, errors.Is(err, errcode.ErrNotFound))
}

func TestDisconnect_AgentGoesOffline(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, aConn := h.connect(t, agentA, constant.RoleAgent, "a")
	assert.Equal(t, constant.StatusOnline, h.mirror.get(agentA))

	conv := h.createConversation(t, visitor)
	_, err := h.coord.Join(t.Context(), visitor, conv.Id)
	require.NoError(t, err)
	_, err = h.coord.Join(t.Context(), a, conv.Id)
	require.NoError(t, err)
	vConn.reset()

	h.coord.Disconnect(t.Context(), aConn)

	assert.Empty(t, h.registry.Lookup(agentA))
	left := vConn.ofType(event.UserLeft)
	require.Len(t, left, 1)
	assert.Equal(t, agentA, left[0].Data.(*event.ParticipantData).ParticipantId)

	status := vConn.ofType(event.AgentStatusChanged)
	require.Len(t, status, 1)
	assert.Equal(t, constant.StatusOffline, status[0].Data.(*event.AgentStatusData).Status)
	assert.Equal(t, constant.StatusOffline, h.mirror.get(agentA))

	h.coord.Disconnect(t.Context(), aConn)
	assert.Len(t, vConn.ofType(event.AgentStatusChanged), 1)

	h.send(t, visitor, conv.Id, "still persisted")
	assert.Len(t, h.store.messages(conv.Id), 1)
}

func TestDisconnect_OtherTabKeepsAgentOnline(t *testing.T) {
	h := newHarness(t)
	_, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	_, tab1 := h.connect(t, agentA, constant.RoleAgent, "a1")
	_, _ = h.connect(t, agentA, constant.RoleAgent, "a2")
	vConn.reset()

	h.coord.Disconnect(t.Context(), tab1)

	assert.Len(t, h.registry.Lookup(agentA), 1)
	assert.Empty(t, vConn.ofType(event.AgentStatusChanged))
	status, conns := h.coord.AgentStatus(agentA)
	assert.Equal(t, constant.StatusOnline, status)
	assert.Equal(t, 1, conns)
}

func TestSetStatus(t *testing.T) {
	h := newHarness(t)
	visitor, vConn := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	vConn.reset()

	require.NoError(t, h.coord.SetStatus(t.Context(), a, constant.StatusBusy))
	require.NoError(t, h.coord.SetStatus(t.Context(), a, constant.StatusBusy))
	assert.Len(t, vConn.ofType(event.AgentStatusChanged), 1)
	assert.Equal(t, constant.StatusBusy, h.mirror.get(agentA))

	h.connect(t, agentB, constant.RoleAgent, "b")
	assert.Equal(t, map[string]string{agentA: constant.StatusBusy, agentB: constant.StatusOnline}, h.coord.OnlineAgents())

	assert.True(t, errors.Is(h.coord.SetStatus(t.Context(), a, "sleeping"), errcode.ErrInvalidStatus))
	assert.True(t, errors.Is(h.coord.SetStatus(t.Context(), visitor, constant.StatusAway), errcode.ErrAgentOnly))
}

func TestCreateConversation(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	ctx := t.Context()

	conv, err := h.coord.CreateConversation(ctx, visitor, &CreateConversationRequest{
		SiteId: "site-1", Email: "x@y.z", Priority: constant.PriorityHigh, Subject: "billing",
	})
	require.NoError(t, err)
	assert.False(t, conv.IsAnonymous)
	assert.Equal(t, constant.PriorityHigh, conv.Priority)
	assert.Equal(t, visitorId, conv.VisitorId)

	conv = h.createConversation(t, visitor)
	assert.True(t, conv.IsAnonymous)
	assert.Equal(t, constant.PriorityNormal, conv.Priority)

	_, err = h.coord.CreateConversation(ctx, visitor, &CreateConversationRequest{SiteId: "site-2"})
	assert.True(t, errors.Is(err, errcode.ErrSiteInactive))
	_, err = h.coord.CreateConversation(ctx, visitor, &CreateConversationRequest{SiteId: "missing"})
	assert.True(t, errors.Is(err, errcode.ErrNotFound))
	_, err = h.coord.CreateConversation(ctx, visitor, &CreateConversationRequest{SiteId: "site-1", Priority: "asap"})
	assert.True(t, errors.Is(err, errcode.ErrInvalidPriority))
	_, err = h.coord.CreateConversation(ctx, a, &CreateConversationRequest{SiteId: "site-1"})
	assert.True(t, errors.Is(err, errcode.ErrVisitorOnly))
}

func TestListConversations(t *testing.T) {
	h := newHarness(t)
	visitor, _ := h.connect(t, visitorId, constant.RoleVisitor, "v")
	a, _ := h.connect(t, agentA, constant.RoleAgent, "a")
	h.createConversation(t, visitor)
	c2 := h.createConversation(t, visitor)
	h.send(t, visitor, c2.Id, "hi")

	waiting, err := h.coord.ListConversations(t.Context(), a, entity.ConversationFilter{Status: constant.ConvStatusWaiting})
	require.NoError(t, err)
	assert.Len(t, waiting, 1)

	h.coord.SetAuthorizer(NewSiteAuthorizer(map[string][]string{agentA: {"site-9"}}))
	visible, err := h.coord.ListConversations(t.Context(), a, entity.ConversationFilter{})
	require.NoError(t, err)
	assert.Empty(t, visible)

	_, err = h.coord.ListConversations(t.Context(), visitor, entity.ConversationFilter{})
	assert.True(t, errors.Is(err, errcode.ErrAgentOnly))
}
