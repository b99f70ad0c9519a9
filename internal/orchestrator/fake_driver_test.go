package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talkincode/waconsole/internal/driver"
)

// fakeClient is a scriptable driver.Client for orchestrator tests.
type fakeClient struct {
	mu      sync.Mutex
	state   string
	handler driver.EventHandler

	chats        []driver.Chat
	messages     map[string][]driver.Message
	chatsErr     error
	sendErr      error
	stateErr     error
	registered   map[string]bool
	registerErr  error
	connectErr   error
	avatarURL    string
	sendCalls    int32
	chatsCalls   int32
	stateCalls   int32
	checkCalls   int32
	disconnected int32
	loggedOut    int32
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		state:      driver.StateConnected,
		messages:   map[string][]driver.Message{},
		registered: map[string]bool{},
	}
}

func (f *fakeClient) setState(s string) {
	f.mu.Lock()
	f.state = s
	f.mu.Unlock()
}

func (f *fakeClient) emit(ev driver.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeClient) SetEventHandler(h driver.EventHandler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeClient) Connect(ctx context.Context) error {
	return f.connectErr
}

func (f *fakeClient) Disconnect() {
	atomic.AddInt32(&f.disconnected, 1)
}

func (f *fakeClient) Logout(ctx context.Context) error {
	atomic.AddInt32(&f.loggedOut, 1)
	return nil
}

func (f *fakeClient) GetState(ctx context.Context) (string, error) {
	atomic.AddInt32(&f.stateCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state, f.stateErr
}

func (f *fakeClient) GetChats(ctx context.Context) ([]driver.Chat, error) {
	atomic.AddInt32(&f.chatsCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chats, f.chatsErr
}

func (f *fakeClient) FetchMessages(ctx context.Context, chatID string, limit int) ([]driver.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[chatID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID, text string) (driver.Message, error) {
	atomic.AddInt32(&f.sendCalls, 1)
	if f.sendErr != nil {
		return driver.Message{}, f.sendErr
	}
	return driver.Message{
		ID:        fmt.Sprintf("sent-%d", atomic.LoadInt32(&f.sendCalls)),
		ChatID:    chatID,
		Body:      text,
		FromMe:    true,
		Timestamp: time.Now(),
	}, nil
}

func (f *fakeClient) IsRegisteredUser(ctx context.Context, phone string) (bool, error) {
	atomic.AddInt32(&f.checkCalls, 1)
	if f.registerErr != nil {
		return false, f.registerErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered[phone], nil
}

func (f *fakeClient) ProfilePictureURL(ctx context.Context) (string, error) {
	return f.avatarURL, nil
}

var _ driver.Client = (*fakeClient)(nil)

// fakeFactory hands out one prepared client per clientID.
type fakeFactory struct {
	mu      sync.Mutex
	clients map[string]*fakeClient
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{clients: map[string]*fakeClient{}}
}

func (f *fakeFactory) NewClient(ctx context.Context, clientID string) (driver.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		c = newFakeClient()
		f.clients[clientID] = c
	}
	return c, nil
}

func (f *fakeFactory) client(clientID string) *fakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[clientID]
	if !ok {
		c = newFakeClient()
		f.clients[clientID] = c
	}
	return c
}

var _ driver.Factory = (*fakeFactory)(nil)
