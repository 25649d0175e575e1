package api

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/matheus3301/pchat/internal/bus"
	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/store"
	intsync "github.com/matheus3301/pchat/internal/sync"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type fixedIdentity string

func (f fixedIdentity) UserID() string { return string(f) }

type harness struct {
	db      *store.DB
	bus     *bus.Bus
	machine *status.Machine
	client  *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	// Use a short path to avoid macOS 104-char Unix socket limit.
	tmpDir, err := os.MkdirTemp("/tmp", "pchat-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	b := bus.New()
	db, err := store.Open(filepath.Join(tmpDir, "pchat.db"), b)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	machine := status.NewMachine(b)
	engine := intsync.NewEngine(db, b, nil)
	svc := NewControlService("test", machine, db, engine, fixedIdentity("me"), b)

	srv, err := NewServer(filepath.Join(tmpDir, "c.sock"), svc, nil)
	if err != nil {
		t.Fatal(err)
	}
	go func() { _ = srv.Start() }()
	t.Cleanup(func() { srv.Stop(context.Background()) })

	c, err := Dial(filepath.Join(tmpDir, "c.sock"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })

	return &harness{db: db, bus: b, machine: machine, client: c}
}

func ctx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

func field(s *structpb.Struct, key string) *structpb.Value {
	return s.GetFields()[key]
}

func TestGetStatus(t *testing.T) {
	h := newHarness(t)
	if err := h.machine.Transition(status.SignedOut); err != nil {
		t.Fatal(err)
	}

	resp, err := h.client.GetStatus(ctx(t))
	if err != nil {
		t.Fatalf("GetStatus error = %v", err)
	}
	if got := field(resp, "session").GetStringValue(); got != "test" {
		t.Errorf("session = %q, want test", got)
	}
	if got := field(resp, "status").GetStringValue(); got != string(status.SignedOut) {
		t.Errorf("status = %q, want SIGNED_OUT", got)
	}
	if got := field(resp, "user_id").GetStringValue(); got != "me" {
		t.Errorf("user_id = %q, want me", got)
	}
	if got := field(resp, "message_count").GetNumberValue(); got != 0 {
		t.Errorf("message_count = %v, want 0", got)
	}
}

func TestInjectAndListMessages(t *testing.T) {
	h := newHarness(t)

	for i, text := range []string{"one", "two", "three"} {
		id, err := h.client.InjectMessage(ctx(t), "c1", "u2", "Ann Lee", text)
		if err != nil {
			t.Fatalf("InjectMessage(%d) error = %v", i, err)
		}
		if id == "" {
			t.Fatal("InjectMessage returned no id")
		}
	}

	resp, err := h.client.ListMessages(ctx(t), "c1", 2)
	if err != nil {
		t.Fatalf("ListMessages error = %v", err)
	}
	list := field(resp, "messages").GetListValue().GetValues()
	if len(list) != 2 {
		t.Fatalf("got %d messages, want 2", len(list))
	}
	if !field(resp, "has_more").GetBoolValue() {
		t.Error("has_more = false, want true")
	}
	last := list[1].GetStructValue()
	if got := field(last, "user_fullname").GetStringValue(); got != "Ann Lee" {
		t.Errorf("user_fullname = %q", got)
	}

	stored, _ := h.db.ListChatMessages("c1")
	if len(stored) != 3 || stored[0].UserInitials != "AL" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestValidationErrors(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{"list without chat", func() error {
			_, err := h.client.ListMessages(ctx(t), "", 0)
			return err
		}, codes.InvalidArgument},
		{"inject without user", func() error {
			_, err := h.client.InjectMessage(ctx(t), "c1", "", "", "hi")
			return err
		}, codes.InvalidArgument},
		{"typing of local user", func() error {
			return h.client.SetTyping(ctx(t), "c1", "me", true)
		}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if got := grpcstatus.Code(err); got != tt.want {
				t.Errorf("code = %v, want %v (err = %v)", got, tt.want, err)
			}
		})
	}
}

func TestSetTyping(t *testing.T) {
	h := newHarness(t)
	if err := h.client.SetTyping(ctx(t), "c1", "u2", true); err != nil {
		t.Fatal(err)
	}
	a, _ := h.db.GetAction("c1", "u2")
	if a == nil || !a.Typing {
		t.Errorf("action = %+v, want typing", a)
	}
}

func TestWatchEvents(t *testing.T) {
	h := newHarness(t)

	watchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *structpb.Struct, 10)
	done := make(chan error, 1)
	go func() {
		done <- h.client.WatchEvents(watchCtx, "session.", func(evt *structpb.Struct) { got <- evt })
	}()

	// The subscription is registered once the stream is open.
	deadline := time.Now().Add(2 * time.Second)
	for h.bus.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if err := h.machine.Transition(status.Connecting); err != nil {
		t.Fatal(err)
	}

	select {
	case evt := <-got:
		if k := field(evt, "kind").GetStringValue(); k != bus.KindStatusChanged {
			t.Errorf("kind = %q, want %q", k, bus.KindStatusChanged)
		}
		payload := field(evt, "payload").GetStructValue()
		if to := field(payload, "to").GetStringValue(); to != string(status.Connecting) {
			t.Errorf("to = %q, want CONNECTING", to)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for streamed event")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WatchEvents error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WatchEvents did not return after cancel")
	}
}
