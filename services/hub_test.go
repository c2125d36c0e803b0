package services

import (
	"context"
	"testing"
	"time"

	"github.com/greenloop/ecotrack/models"
)

// A client whose pump never drains must not block the publisher: extra
// snapshots are dropped once the buffer is full.
func TestEnqueueDropsInsteadOfBlocking(t *testing.T) {
	client := NewWSClient(1, nil)

	accepted := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < clientSendBuffer*3; i++ {
			if client.Enqueue(Snapshot{State: StateReady}) {
				accepted++
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full buffer")
	}
	if accepted != clientSendBuffer {
		t.Fatalf("accepted %d snapshots, want exactly the buffer size %d", accepted, clientSendBuffer)
	}
}

func TestEnqueueAfterUnregister(t *testing.T) {
	hub := NewHub()
	client := NewWSClient(1, nil)
	hub.Register(client)
	hub.Unregister(client)

	if client.Enqueue(Snapshot{State: StateReady}) {
		t.Fatal("Enqueue accepted a snapshot for an unregistered client")
	}
	// and broadcasting to the user no longer reaches it
	hub.BroadcastSnapshot(1, Snapshot{State: StateReady})
}

// A stalled websocket client must not pin the session mutex: mutations keep
// completing even when the client's writer never drains a single snapshot.
func TestStalledClientDoesNotBlockMutations(t *testing.T) {
	fs := newFakeRecordStore()
	user := models.User{Username: "ivy", Email: "ivy@example.com"}
	if err := fs.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	hub := NewHub()
	stalled := NewWSClient(user.ID, nil) // WritePump intentionally not started
	hub.Register(stalled)
	defer hub.Unregister(stalled)

	m := NewManager(fs, hub.BroadcastSnapshot)
	sess, err := m.Attach(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < clientSendBuffer*2; i++ {
			h := models.Habit{Title: "Walk", Points: 5, Date: testNow}
			if _, err := sess.AddHabit(context.Background(), &h); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("AddHabit: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("mutations deadlocked behind a stalled websocket client")
	}

	if got := len(stalled.send); got != clientSendBuffer {
		t.Fatalf("stalled client holds %d snapshots, want a full buffer of %d", got, clientSendBuffer)
	}
}
