// internal/messaging/service_test.go

package messaging

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory Repository for service tests
type fakeRepo struct {
	users         map[int64]*UserInfo
	conversations map[int64]*Conversation
	byDirectKey   map[string]int64
	messages      map[int64]*Message
	receipts      map[int64]map[int64]time.Time // messageID -> userID -> readAt
	hidden        map[int64]map[int64]bool      // messageID -> userID
	nextConvID    int64
	nextMsgID     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:         make(map[int64]*UserInfo),
		conversations: make(map[int64]*Conversation),
		byDirectKey:   make(map[string]int64),
		messages:      make(map[int64]*Message),
		receipts:      make(map[int64]map[int64]time.Time),
		hidden:        make(map[int64]map[int64]bool),
	}
}

func (f *fakeRepo) addUser(id int64, username string) {
	f.users[id] = &UserInfo{ID: id, Username: username}
}

func (f *fakeRepo) GetDirectConversation(_ context.Context, a, b int64) (*Conversation, error) {
	if id, ok := f.byDirectKey[directKey(a, b)]; ok {
		return f.conversations[id], nil
	}
	return nil, errConversationNotFound
}

func (f *fakeRepo) CreateDirectConversation(_ context.Context, a, b int64) (*Conversation, bool, error) {
	key := directKey(a, b)
	if id, ok := f.byDirectKey[key]; ok {
		return f.conversations[id], false, nil
	}
	f.nextConvID++
	conv := &Conversation{
		ID:           f.nextConvID,
		LastActivity: time.Now(),
		IsActive:     true,
		Participants: []*UserInfo{f.users[a], f.users[b]},
	}
	f.conversations[conv.ID] = conv
	f.byDirectKey[key] = conv.ID
	return conv, true, nil
}

func (f *fakeRepo) GetConversation(_ context.Context, id int64) (*Conversation, error) {
	if conv, ok := f.conversations[id]; ok {
		return conv, nil
	}
	return nil, errConversationNotFound
}

func (f *fakeRepo) GetUserConversations(_ context.Context, userID int64, limit, offset int) ([]*Conversation, error) {
	var out []*Conversation
	for _, conv := range f.conversations {
		for _, p := range conv.Participants {
			if p.ID == userID {
				out = append(out, conv)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeRepo) IsParticipant(_ context.Context, conversationID, userID int64) (bool, error) {
	conv, ok := f.conversations[conversationID]
	if !ok {
		return false, nil
	}
	for _, p := range conv.Participants {
		if p.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) TouchConversation(_ context.Context, conversationID, messageID int64, at time.Time) error {
	conv := f.conversations[conversationID]
	conv.LastMessageID = &messageID
	if at.After(conv.LastActivity) {
		conv.LastActivity = at
	}
	return nil
}

func (f *fakeRepo) CreateMessage(_ context.Context, m *Message) error {
	f.nextMsgID++
	m.ID = f.nextMsgID
	stored := *m
	f.messages[m.ID] = &stored
	return nil
}

func (f *fakeRepo) GetMessage(_ context.Context, id int64) (*Message, error) {
	if m, ok := f.messages[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, errMessageNotFound
}

func (f *fakeRepo) GetConversationMessages(_ context.Context, conversationID, viewerID int64, limit, offset int) ([]*Message, error) {
	var out []*Message
	for id := f.nextMsgID; id >= 1; id-- { // newest first
		m, ok := f.messages[id]
		if !ok || m.ConversationID != conversationID || m.IsDeleted {
			continue
		}
		if f.hidden[id][viewerID] {
			continue
		}
		copied := *m
		for uid, at := range f.receipts[id] {
			copied.ReadBy = append(copied.ReadBy, &ReadReceipt{MessageID: id, UserID: uid, ReadAt: at})
		}
		out = append(out, &copied)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) MarkMessageRead(_ context.Context, messageID, userID int64) error {
	if f.receipts[messageID] == nil {
		f.receipts[messageID] = make(map[int64]time.Time)
	}
	if _, ok := f.receipts[messageID][userID]; !ok {
		f.receipts[messageID][userID] = time.Now()
	}
	return nil
}

func (f *fakeRepo) MarkMessagesRead(ctx context.Context, messageIDs []int64, userID int64) error {
	for _, id := range messageIDs {
		if err := f.MarkMessageRead(ctx, id, userID); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeRepo) HideMessageForUser(_ context.Context, messageID, userID int64) error {
	if f.hidden[messageID] == nil {
		f.hidden[messageID] = make(map[int64]bool)
	}
	f.hidden[messageID][userID] = true
	return nil
}

func (f *fakeRepo) DeleteMessageForEveryone(_ context.Context, messageID int64) error {
	m := f.messages[messageID]
	m.IsDeleted = true
	now := time.Now()
	m.DeletedAt = &now
	return nil
}

func (f *fakeRepo) UnreadCountForUser(_ context.Context, userID int64) (int, error) {
	count := 0
	for id, m := range f.messages {
		if m.RecipientID != userID || m.IsDeleted {
			continue
		}
		if _, read := f.receipts[id][userID]; !read {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) UnreadCountForConversation(_ context.Context, conversationID, userID int64) (int, error) {
	count := 0
	for id, m := range f.messages {
		if m.ConversationID != conversationID || m.RecipientID != userID || m.IsDeleted {
			continue
		}
		if _, read := f.receipts[id][userID]; !read {
			count++
		}
	}
	return count, nil
}

func (f *fakeRepo) GetUserInfo(_ context.Context, userID int64) (*UserInfo, error) {
	if u, ok := f.users[userID]; ok {
		return u, nil
	}
	return nil, errUserNotFound
}

// recordingPublisher captures published events
type recordingPublisher struct {
	newMessages []*Message
	deleted     []*MessageDeletedEvent
}

func (p *recordingPublisher) PublishNewMessage(m *Message) {
	p.newMessages = append(p.newMessages, m)
}

func (p *recordingPublisher) PublishMessageDeleted(_, _ int64, e *MessageDeletedEvent) {
	p.deleted = append(p.deleted, e)
}

func newTestService(t *testing.T) (Service, *fakeRepo, *recordingPublisher) {
	t.Helper()
	repo := newFakeRepo()
	repo.addUser(1, "alice")
	repo.addUser(2, "bob")
	repo.addUser(3, "carol")
	svc := NewService(repo, MaxTextLength)
	pub := &recordingPublisher{}
	svc.SetPublisher(pub)
	return svc, repo, pub
}

func sendText(t *testing.T, svc Service, from, to int64, text string) *Message {
	t.Helper()
	msg, err := svc.SendMessage(context.Background(), from, &SendMessageRequest{
		RecipientID: to,
		Content:     text,
	})
	require.NoError(t, err)
	return msg
}

func TestStartConversation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	view, created, err := svc.StartConversation(ctx, 1, &StartConversationRequest{RecipientID: 2})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, view.OtherParticipant)
	assert.Equal(t, "bob", view.OtherParticipant.Username)
	assert.Equal(t, "bob", view.DisplayName)

	// Same pair, either direction, resolves to the same conversation
	again, created, err := svc.StartConversation(ctx, 2, &StartConversationRequest{RecipientID: 1})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, view.ID, again.ID)
}

func TestStartConversationWithSelf(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.StartConversation(context.Background(), 1, &StartConversationRequest{RecipientID: 1})
	assert.ErrorIs(t, err, ErrSelfMessage)
}

func TestStartConversationUnknownRecipient(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, _, err := svc.StartConversation(context.Background(), 1, &StartConversationRequest{RecipientID: 99})
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestSendMessage(t *testing.T) {
	svc, repo, pub := newTestService(t)

	msg := sendText(t, svc, 1, 2, "hello bob")
	assert.NotZero(t, msg.ID)
	assert.Equal(t, TypeText, msg.Type)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "hello bob", *msg.Text)
	assert.Equal(t, "alice", msg.Sender.Username)
	assert.Equal(t, "bob", msg.Recipient.Username)

	// The conversation was created implicitly and points at the message
	conv, err := repo.GetDirectConversation(context.Background(), 1, 2)
	require.NoError(t, err)
	require.NotNil(t, conv.LastMessageID)
	assert.Equal(t, msg.ID, *conv.LastMessageID)

	// Fan-out happened after persistence
	require.Len(t, pub.newMessages, 1)
	assert.Equal(t, msg.ID, pub.newMessages[0].ID)
}

func TestSendMessageValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SendMessage(ctx, 1, &SendMessageRequest{RecipientID: 1, Content: "hi"})
	assert.ErrorIs(t, err, ErrSelfMessage)

	_, err = svc.SendMessage(ctx, 1, &SendMessageRequest{RecipientID: 2, Content: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = svc.SendMessage(ctx, 1, &SendMessageRequest{
		RecipientID: 2,
		Content:     strings.Repeat("a", MaxTextLength+1),
	})
	assert.ErrorIs(t, err, ErrMessageTooLong)

	_, err = svc.SendMessage(ctx, 1, &SendMessageRequest{RecipientID: 2, Type: TypeImage})
	assert.ErrorIs(t, err, ErrMissingMedia)

	_, err = svc.SendMessage(ctx, 1, &SendMessageRequest{RecipientID: 99, Content: "hi"})
	assert.ErrorIs(t, err, ErrRecipientNotFound)
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	// The bound is measured in characters, so multi-byte text at the limit
	// is accepted
	msg, err := svc.SendMessage(ctx, 1, &SendMessageRequest{
		RecipientID: 2,
		Content:     strings.Repeat("ñ", MaxTextLength),
	})
	require.NoError(t, err)
	assert.NotZero(t, msg.ID)

	_, err = svc.SendMessage(ctx, 1, &SendMessageRequest{
		RecipientID: 2,
		Content:     strings.Repeat("ñ", MaxTextLength+1),
	})
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestSendMediaMessage(t *testing.T) {
	svc, _, _ := newTestService(t)

	msg, err := svc.SendMessage(context.Background(), 1, &SendMessageRequest{
		RecipientID: 2,
		Type:        TypeImage,
		Content:     "check this out",
		Media: &MediaDescriptor{
			URL:      "https://cdn.example.com/messages/abc.jpg",
			Filename: "abc.jpg",
			Size:     1024,
			MimeType: "image/jpeg",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, TypeImage, msg.Type)
	require.NotNil(t, msg.MediaURL)
	assert.Equal(t, "https://cdn.example.com/messages/abc.jpg", *msg.MediaURL)
	require.NotNil(t, msg.Text)
	assert.Equal(t, "check this out", *msg.Text)
}

func TestGetConversationMessagesOrderAndReadReceipts(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	first := sendText(t, svc, 1, 2, "first")
	second := sendText(t, svc, 1, 2, "second")
	reply := sendText(t, svc, 2, 1, "reply")

	// Bob fetches the page: oldest first, and alice's messages become read
	messages, conv, err := svc.GetConversationMessages(ctx, first.ConversationID, 2, 1, 50)
	require.NoError(t, err)
	require.NotNil(t, conv)
	assert.Equal(t, first.ConversationID, conv.ID)
	require.Len(t, messages, 3)
	assert.Equal(t, first.ID, messages[0].ID)
	assert.Equal(t, second.ID, messages[1].ID)
	assert.Equal(t, reply.ID, messages[2].ID)

	_, bobReadFirst := repo.receipts[first.ID][2]
	assert.True(t, bobReadFirst)
	_, bobReadSecond := repo.receipts[second.ID][2]
	assert.True(t, bobReadSecond)

	// Bob never gets a receipt on his own message
	_, bobReadOwn := repo.receipts[reply.ID][2]
	assert.False(t, bobReadOwn)

	// Fetching cleared bob's unread count for the conversation
	unread, err := repo.UnreadCountForConversation(ctx, first.ConversationID, 2)
	require.NoError(t, err)
	assert.Zero(t, unread)
}

func TestGetConversationMessagesRequiresParticipant(t *testing.T) {
	svc, _, _ := newTestService(t)

	msg := sendText(t, svc, 1, 2, "private")

	_, _, err := svc.GetConversationMessages(context.Background(), msg.ConversationID, 3, 1, 50)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = svc.GetConversationMessages(context.Background(), 999, 1, 1, 50)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestMarkMessageRead(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	msg := sendText(t, svc, 1, 2, "hello")

	require.NoError(t, svc.MarkMessageRead(ctx, msg.ID, 2))
	readAt, ok := repo.receipts[msg.ID][2]
	require.True(t, ok)

	// Marking again keeps the original timestamp
	require.NoError(t, svc.MarkMessageRead(ctx, msg.ID, 2))
	assert.Equal(t, readAt, repo.receipts[msg.ID][2])

	// The sender marking their own message is a no-op
	require.NoError(t, svc.MarkMessageRead(ctx, msg.ID, 1))
	_, senderRead := repo.receipts[msg.ID][1]
	assert.False(t, senderRead)

	assert.ErrorIs(t, svc.MarkMessageRead(ctx, 9999, 2), ErrMessageNotFound)
	assert.ErrorIs(t, svc.MarkMessageRead(ctx, msg.ID, 3), ErrNotParticipant)
}

func TestDeleteMessageForMe(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	msg := sendText(t, svc, 1, 2, "oops")

	// Recipient hides it for themselves; sender still sees it
	require.NoError(t, svc.DeleteMessage(ctx, msg.ID, 2, "me"))

	bobView, _, err := svc.GetConversationMessages(ctx, msg.ConversationID, 2, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, bobView)

	aliceView, _, err := svc.GetConversationMessages(ctx, msg.ConversationID, 1, 1, 50)
	require.NoError(t, err)
	require.Len(t, aliceView, 1)

	// Delete-for-me is silent
	assert.Empty(t, pub.deleted)
}

func TestDeleteMessageForEveryone(t *testing.T) {
	svc, _, pub := newTestService(t)
	ctx := context.Background()

	msg := sendText(t, svc, 1, 2, "retracted")

	// Only the sender may delete for everyone
	err := svc.DeleteMessage(ctx, msg.ID, 2, "everyone")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, svc.DeleteMessage(ctx, msg.ID, 1, "everyone"))

	for _, viewer := range []int64{1, 2} {
		view, _, err := svc.GetConversationMessages(ctx, msg.ConversationID, viewer, 1, 50)
		require.NoError(t, err)
		assert.Empty(t, view)
	}

	require.Len(t, pub.deleted, 1)
	assert.Equal(t, msg.ID, pub.deleted[0].MessageID)
	assert.Equal(t, msg.ConversationID, pub.deleted[0].ConversationID)
}

func TestDeleteMessageDefaultsToMe(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	msg := sendText(t, svc, 1, 2, "keep for alice")
	require.NoError(t, svc.DeleteMessage(ctx, msg.ID, 2, ""))

	aliceView, _, err := svc.GetConversationMessages(ctx, msg.ConversationID, 1, 1, 50)
	require.NoError(t, err)
	assert.Len(t, aliceView, 1)

	// Unrecognized values behave like delete-for-me as well
	second := sendText(t, svc, 1, 2, "typo mode")
	require.NoError(t, svc.DeleteMessage(ctx, second.ID, 2, "just-me"))

	bobView, _, err := svc.GetConversationMessages(ctx, second.ConversationID, 2, 1, 50)
	require.NoError(t, err)
	assert.Empty(t, bobView)

	aliceView, _, err = svc.GetConversationMessages(ctx, second.ConversationID, 1, 1, 50)
	require.NoError(t, err)
	assert.Len(t, aliceView, 2)
}

func TestUnreadCount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sendText(t, svc, 1, 2, "one")
	sendText(t, svc, 1, 2, "two")
	msg := sendText(t, svc, 3, 2, "three")

	count, err := svc.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, svc.MarkMessageRead(ctx, msg.ID, 2))

	count, err = svc.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Deleted-for-everyone messages stop counting
	require.NoError(t, svc.DeleteMessage(ctx, 1, 1, "everyone"))
	count, err = svc.UnreadCount(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestListConversations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	sendText(t, svc, 1, 2, "hi bob")
	sendText(t, svc, 3, 1, "hi alice")

	views, err := svc.ListConversations(ctx, 1, 1, 20)
	require.NoError(t, err)
	require.Len(t, views, 2)

	for _, view := range views {
		require.NotNil(t, view.OtherParticipant)
		assert.NotEqual(t, int64(1), view.OtherParticipant.ID)
		assert.NotNil(t, view.LastMessage)
	}

	// Bob has one conversation with one unread message
	bobViews, err := svc.ListConversations(ctx, 2, 1, 20)
	require.NoError(t, err)
	require.Len(t, bobViews, 1)
	assert.Equal(t, 1, bobViews[0].UnreadCount)
}
