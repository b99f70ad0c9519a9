package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/talkincode/waconsole/internal/driver"
)

// ChatSummary is the per-request dashboard view of one chat. It is derived
// from the client's state on every call and never cached.
type ChatSummary struct {
	ChatID             string    `json:"chat_id"`
	ContactName        string    `json:"contact_name"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastActivityAt     time.Time `json:"last_activity_at"`
	UnreadCount        int       `json:"unread_count"`
	IsGroup            bool      `json:"is_group"`
}

// ChatDelta reports a chat whose activity moved past the caller's cursor.
type ChatDelta struct {
	ChatID         string    `json:"chat_id"`
	ContactName    string    `json:"contact_name"`
	LastActivityAt time.Time `json:"last_activity_at"`
	UnreadCount    int       `json:"unread_count"`
}

// MessageDelta reports one message newer than the caller's cursor.
type MessageDelta struct {
	MessageID string    `json:"message_id"`
	ChatID    string    `json:"chat_id"`
	Body      string    `json:"body"`
	FromMe    bool      `json:"from_me"`
	Timestamp time.Time `json:"timestamp"`
}

// SyncDelta is the incremental sync result.
type SyncDelta struct {
	Since    time.Time      `json:"since"`
	Chats    []ChatDelta    `json:"chats"`
	Messages []MessageDelta `json:"messages"`
}

// SyncCoordinator assembles chat views through the retry executor. Full
// sync returns a bounded page; incremental sync is a polling scan over the
// tail of each chat.
type SyncCoordinator struct {
	exec      *Executor
	pageSize  int
	scanDepth int
}

func NewSyncCoordinator(exec *Executor, pageSize, scanDepth int) *SyncCoordinator {
	if pageSize < 1 {
		pageSize = 10
	}
	if scanDepth < 1 {
		scanDepth = 20
	}
	return &SyncCoordinator{exec: exec, pageSize: pageSize, scanDepth: scanDepth}
}

// FullSync fetches all chats, sorts unread-first then newest-first and
// truncates to the page size. An unstable connection propagates; an
// exhausted retry budget degrades to an empty page.
func (s *SyncCoordinator) FullSync(ctx context.Context, c driver.Client) ([]ChatSummary, error) {
	var chats []driver.Chat
	err := s.exec.RunProbed(ctx, "full sync", c, func(ctx context.Context) error {
		var oerr error
		chats, oerr = c.GetChats(ctx)
		return oerr
	})
	if err != nil {
		if errors.Is(err, ErrConnectionUnstable) {
			return nil, err
		}
		zap.L().Warn("full sync degraded to empty page", zap.Error(err))
		return []ChatSummary{}, nil
	}

	out := make([]ChatSummary, 0, len(chats))
	for _, ch := range chats {
		out = append(out, summarize(ch))
	}
	SortChatPage(out)
	if len(out) > s.pageSize {
		out = out[:s.pageSize]
	}
	return out, nil
}

// IncrementalSync reports chats and messages with activity after since.
// Degradation mirrors FullSync.
func (s *SyncCoordinator) IncrementalSync(ctx context.Context, c driver.Client, since time.Time) (*SyncDelta, error) {
	var chats []driver.Chat
	err := s.exec.RunProbed(ctx, "incremental sync", c, func(ctx context.Context) error {
		var oerr error
		chats, oerr = c.GetChats(ctx)
		return oerr
	})
	if err != nil {
		if errors.Is(err, ErrConnectionUnstable) {
			return nil, err
		}
		zap.L().Warn("incremental sync degraded to empty delta", zap.Error(err))
		return &SyncDelta{Since: since, Chats: []ChatDelta{}, Messages: []MessageDelta{}}, nil
	}

	delta := &SyncDelta{Since: since, Chats: []ChatDelta{}, Messages: []MessageDelta{}}
	for _, ch := range chats {
		if ch.LastActivityAt.After(since) {
			delta.Chats = append(delta.Chats, ChatDelta{
				ChatID:         ch.ID,
				ContactName:    ch.Name,
				LastActivityAt: ch.LastActivityAt,
				UnreadCount:    ch.UnreadCount,
			})
		}
		msgs := s.tailMessages(ctx, c, ch.ID)
		for _, msg := range msgs {
			if msg.Timestamp.After(since) {
				delta.Messages = append(delta.Messages, MessageDelta{
					MessageID: msg.ID,
					ChatID:    msg.ChatID,
					Body:      msg.Body,
					FromMe:    msg.FromMe,
					Timestamp: msg.Timestamp,
				})
			}
		}
	}
	return delta, nil
}

// tailMessages fetches the last scanDepth messages of one chat. A failed
// chat is skipped, not fatal to the whole delta.
func (s *SyncCoordinator) tailMessages(ctx context.Context, c driver.Client, chatID string) []driver.Message {
	var msgs []driver.Message
	err := s.exec.Run(ctx, "fetch messages", func(ctx context.Context) error {
		var oerr error
		msgs, oerr = c.FetchMessages(ctx, chatID, s.scanDepth)
		return oerr
	})
	if err != nil {
		zap.L().Debug("message tail fetch skipped",
			zap.String("chat_id", chatID), zap.Error(err))
		return nil
	}
	return msgs
}

// SortChatPage orders chats with unread ones first, newest activity first
// within each group. The sort is stable so equal keys keep client order.
func SortChatPage(chats []ChatSummary) {
	sort.SliceStable(chats, func(i, j int) bool {
		iu, ju := chats[i].UnreadCount > 0, chats[j].UnreadCount > 0
		if iu != ju {
			return iu
		}
		return chats[i].LastActivityAt.After(chats[j].LastActivityAt)
	})
}

func summarize(ch driver.Chat) ChatSummary {
	return ChatSummary{
		ChatID:             ch.ID,
		ContactName:        ch.Name,
		LastMessagePreview: ch.LastMessagePreview,
		LastActivityAt:     ch.LastActivityAt,
		UnreadCount:        ch.UnreadCount,
		IsGroup:            ch.IsGroup,
	}
}
