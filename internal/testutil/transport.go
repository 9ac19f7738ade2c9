package testutil

import (
	"context"
	"sync"

	"github.com/vango-go/vai-duet/pkg/core/live"
)

// FakeTransport is an in-memory live.Transport for tests.
type FakeTransport struct {
	mu sync.Mutex

	// Error injection
	ConnectErr    error
	DisconnectErr error
	SendErr       error

	// Call tracking
	Configs         []live.Config
	ConnectCalls    int
	DisconnectCalls int
	connected       bool
	Realtime        []live.Chunk
	Texts           []string
	ToolResponses   []live.ToolResponseBatch

	// OnToolResponse runs after a tool response is recorded.
	OnToolResponse func(live.ToolResponseBatch)

	Calls chan live.ToolCallBatch
	drops chan error
}

// NewFakeTransport creates a FakeTransport with a buffered tool-call channel.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		Calls: make(chan live.ToolCallBatch, 8),
		drops: make(chan error, 4),
	}
}

func (f *FakeTransport) Configure(cfg live.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Configs = append(f.Configs, cfg.Clone())
}

func (f *FakeTransport) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ConnectCalls++
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *FakeTransport) Disconnect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.DisconnectCalls++
	f.connected = false
	return f.DisconnectErr
}

func (f *FakeTransport) SendRealtimeInput(chunk live.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Realtime = append(f.Realtime, chunk)
	return nil
}

func (f *FakeTransport) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Texts = append(f.Texts, text)
	return nil
}

func (f *FakeTransport) SendToolResponse(batch live.ToolResponseBatch) error {
	f.mu.Lock()
	if f.SendErr != nil {
		err := f.SendErr
		f.mu.Unlock()
		return err
	}
	f.ToolResponses = append(f.ToolResponses, batch)
	hook := f.OnToolResponse
	f.mu.Unlock()
	if hook != nil {
		hook(batch)
	}
	return nil
}

func (f *FakeTransport) ToolCalls() <-chan live.ToolCallBatch {
	return f.Calls
}

// ConfigsSnapshot returns a copy of the configs pushed so far.
func (f *FakeTransport) ConfigsSnapshot() []live.Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]live.Config(nil), f.Configs...)
}

// TextsSnapshot returns a copy of the texts sent so far.
func (f *FakeTransport) TextsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Texts...)
}

// RealtimeSnapshot returns a copy of the realtime chunks sent so far.
func (f *FakeTransport) RealtimeSnapshot() []live.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]live.Chunk(nil), f.Realtime...)
}

// ToolResponsesSnapshot returns a copy of the tool responses sent so far.
func (f *FakeTransport) ToolResponsesSnapshot() []live.ToolResponseBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]live.ToolResponseBatch(nil), f.ToolResponses...)
}

func (f *FakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *FakeTransport) Drops() <-chan error {
	return f.drops
}

// Drop simulates the remote end closing an open session.
func (f *FakeTransport) Drop(cause error) {
	f.mu.Lock()
	was := f.connected
	f.connected = false
	f.mu.Unlock()
	if !was {
		return
	}
	select {
	case f.drops <- cause:
	default:
	}
}
