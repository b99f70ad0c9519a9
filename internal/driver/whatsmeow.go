package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	waTypes "go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/talkincode/waconsole/config"
)

// recentMessagesPerChat bounds the in-memory message window kept per chat.
const recentMessagesPerChat = 50

// MeowFactory creates whatsmeow-backed clients with per-clientID sqlite
// credential stores under the configured session directory.
type MeowFactory struct {
	cfg *config.SessionConfig
}

func NewMeowFactory(cfg *config.SessionConfig) *MeowFactory {
	return &MeowFactory{cfg: cfg}
}

// NewClient opens (or creates) the credential store for clientID and wraps
// a whatsmeow client around it. The client is not connected yet.
func (f *MeowFactory) NewClient(ctx context.Context, clientID string) (Client, error) {
	if err := os.MkdirAll(f.cfg.StoreDir, 0o755); err != nil {
		return nil, fmt.Errorf("create session store dir: %w", err)
	}
	dbPath := filepath.Join(f.cfg.StoreDir, fmt.Sprintf("client_%s.db", clientID))
	container, err := sqlstore.New(ctx, "sqlite3", fmt.Sprintf("file:%s?_foreign_keys=on", dbPath), waLog.Noop)
	if err != nil {
		return nil, fmt.Errorf("open credential store for %s: %w", clientID, err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		zap.L().Debug("driver: no stored device, creating fresh one", zap.String("client_id", clientID))
		device = container.NewDevice()
	}
	return &meowClient{
		clientID: clientID,
		cfg:      f.cfg,
		cli:      whatsmeow.NewClient(device, waLog.Noop),
		chats:    make(map[string]*chatRecord),
	}, nil
}

type chatRecord struct {
	name    string
	isGroup bool
	unread  int
	recent  []Message // newest last, capped at recentMessagesPerChat
}

// meowClient adapts a whatsmeow client to the driver.Client interface.
// Chat summaries and the recent-message window are maintained from
// observed traffic since the underlying protocol exposes no history API.
type meowClient struct {
	clientID string
	cfg      *config.SessionConfig
	cli      *whatsmeow.Client

	handlerMu sync.Mutex
	handler   EventHandler

	chatsMu sync.RWMutex
	chats   map[string]*chatRecord
}

func (c *meowClient) SetEventHandler(h EventHandler) {
	c.handlerMu.Lock()
	c.handler = h
	c.handlerMu.Unlock()
}

func (c *meowClient) emit(evt Event) {
	c.handlerMu.Lock()
	h := c.handler
	c.handlerMu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (c *meowClient) Connect(ctx context.Context) error {
	c.cli.AddEventHandler(c.handleMeowEvent)

	if c.cli.Store.ID == nil {
		// Fresh pairing: the QR channel must be requested before Connect.
		qrChan, err := c.cli.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		if err := c.cli.Connect(); err != nil {
			return fmt.Errorf("connect for pairing: %w", err)
		}
		go c.consumeQRChannel(qrChan)
		return nil
	}

	if err := c.cli.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *meowClient) consumeQRChannel(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			png, err := qrcode.Encode(item.Code, qrcode.Medium, 256)
			if err != nil {
				zap.L().Warn("driver: qr png render failed", zap.String("client_id", c.clientID), zap.Error(err))
			}
			if c.cfg.DebugQRTerminal {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.H, os.Stdout)
			}
			c.emit(&QREvent{Code: item.Code, Image: png})
		case "timeout":
			c.emit(&ErrorEvent{Err: fmt.Errorf("pairing timed out for %s", c.clientID)})
			return
		case "success":
			// events.Connected follows and produces the ReadyEvent.
			return
		}
	}
}

func (c *meowClient) handleMeowEvent(raw interface{}) {
	switch evt := raw.(type) {
	case *events.Connected:
		phone := ""
		if c.cli.Store.ID != nil {
			phone = c.cli.Store.ID.User
		}
		c.emit(&ReadyEvent{PhoneNumber: phone})
	case *events.Message:
		msg := c.mapMessage(evt)
		if msg.Body == "" {
			return
		}
		c.trackMessage(evt.Info.Chat, evt.Info.PushName, msg)
		c.emit(&MessageEvent{Message: msg})
	case *events.Receipt:
		code := AckPending
		switch evt.Type {
		case waTypes.ReceiptTypeDelivered:
			code = AckDelivered
		case waTypes.ReceiptTypeRead:
			code = AckRead
		default:
			return
		}
		for _, id := range evt.MessageIDs {
			c.emit(&AckEvent{MessageID: id, ChatID: evt.Chat.String(), Code: code})
		}
	case *events.ChatPresence:
		c.emit(&StateEvent{
			ChatID:      evt.Chat.String(),
			Participant: evt.Sender.User,
			State:       string(evt.State),
		})
	case *events.Disconnected:
		c.emit(&DisconnectedEvent{Reason: "stream closed"})
	case *events.LoggedOut:
		c.emit(&AuthFailureEvent{Reason: evt.Reason.String()})
	case *events.StreamError:
		c.emit(&ErrorEvent{Err: fmt.Errorf("stream error: %s", evt.Code)})
	}
}

func (c *meowClient) mapMessage(evt *events.Message) Message {
	body := ""
	if conv := evt.Message.GetConversation(); conv != "" {
		body = conv
	} else if ext := evt.Message.GetExtendedTextMessage(); ext != nil {
		body = ext.GetText()
	}
	return Message{
		ID:        evt.Info.ID,
		ChatID:    evt.Info.Chat.String(),
		Body:      body,
		FromMe:    evt.Info.IsFromMe,
		IsGroup:   evt.Info.IsGroup,
		Timestamp: evt.Info.Timestamp,
	}
}

func (c *meowClient) trackMessage(chat waTypes.JID, pushName string, msg Message) {
	c.chatsMu.Lock()
	defer c.chatsMu.Unlock()
	rec, ok := c.chats[msg.ChatID]
	if !ok {
		rec = &chatRecord{isGroup: chat.Server == waTypes.GroupServer}
		c.chats[msg.ChatID] = rec
	}
	if pushName != "" && !msg.FromMe {
		rec.name = pushName
	}
	if !msg.FromMe {
		rec.unread++
	}
	rec.recent = append(rec.recent, msg)
	if len(rec.recent) > recentMessagesPerChat {
		rec.recent = rec.recent[len(rec.recent)-recentMessagesPerChat:]
	}
}

func (c *meowClient) Disconnect() {
	c.cli.Disconnect()
}

func (c *meowClient) Logout(ctx context.Context) error {
	if c.cli.Store.ID == nil {
		c.cli.Disconnect()
		return nil
	}
	return c.cli.Logout(ctx)
}

func (c *meowClient) GetState(ctx context.Context) (string, error) {
	switch {
	case c.cli.IsConnected() && c.cli.IsLoggedIn():
		return StateConnected, nil
	case c.cli.IsConnected():
		return StateConnecting, nil
	default:
		return StateDisconnected, fmt.Errorf("client %s not connected", c.clientID)
	}
}

func (c *meowClient) GetChats(ctx context.Context) ([]Chat, error) {
	if _, err := c.GetState(ctx); err != nil {
		return nil, err
	}
	c.chatsMu.RLock()
	defer c.chatsMu.RUnlock()
	out := make([]Chat, 0, len(c.chats))
	for id, rec := range c.chats {
		chat := Chat{
			ID:          id,
			Name:        rec.name,
			UnreadCount: rec.unread,
			IsGroup:     rec.isGroup,
		}
		if n := len(rec.recent); n > 0 {
			last := rec.recent[n-1]
			chat.LastMessagePreview = last.Body
			chat.LastActivityAt = last.Timestamp
		}
		out = append(out, chat)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return out, nil
}

func (c *meowClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]Message, error) {
	if _, err := c.GetState(ctx); err != nil {
		return nil, err
	}
	c.chatsMu.Lock()
	defer c.chatsMu.Unlock()
	rec, ok := c.chats[chatID]
	if !ok {
		return nil, nil
	}
	// Reading a chat clears its unread counter, matching dashboard behavior.
	rec.unread = 0
	n := len(rec.recent)
	if limit > 0 && limit < n {
		n = limit
	}
	msgs := make([]Message, n)
	copy(msgs, rec.recent[len(rec.recent)-n:])
	return msgs, nil
}

func (c *meowClient) SendMessage(ctx context.Context, chatID string, text string) (Message, error) {
	jid, err := waTypes.ParseJID(chatID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}
	resp, err := c.cli.SendMessage(ctx, jid, &waE2E.Message{Conversation: proto.String(text)})
	if err != nil {
		return Message{}, fmt.Errorf("send message: %w", err)
	}
	msg := Message{
		ID:        resp.ID,
		ChatID:    chatID,
		Body:      text,
		FromMe:    true,
		IsGroup:   jid.Server == waTypes.GroupServer,
		Timestamp: resp.Timestamp,
	}
	c.trackMessage(jid, "", msg)
	return msg, nil
}

func (c *meowClient) IsRegisteredUser(ctx context.Context, phone string) (bool, error) {
	resp, err := c.cli.IsOnWhatsApp([]string{phone})
	if err != nil {
		return false, fmt.Errorf("registration check for %s: %w", phone, err)
	}
	if len(resp) == 0 {
		return false, nil
	}
	return resp[0].IsIn, nil
}

func (c *meowClient) ProfilePictureURL(ctx context.Context) (string, error) {
	if c.cli.Store.ID == nil {
		return "", fmt.Errorf("no authenticated device")
	}
	info, err := c.cli.GetProfilePictureInfo(c.cli.Store.ID.ToNonAD(), &whatsmeow.GetProfilePictureParams{Preview: true})
	if err != nil {
		return "", err
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// ensure interface compliance
var (
	_ Client  = (*meowClient)(nil)
	_ Factory = (*MeowFactory)(nil)
)
