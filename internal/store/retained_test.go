package store

import (
	"context"
	"testing"
)

func TestRetainedLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	levels := []string{"a", "b"}

	rec := &RetainedRecord{Type: RecordPublish, QoS: 1, Retain: true, TopicName: "a/b", PacketID: 11, Payload: []byte("retained")}
	if err := s.AddRetained(ctx, levels, 11, rec).Await(); err != nil {
		t.Fatalf("AddRetained: %v", err)
	}

	ids, err := s.GetRetainedList(ctx, levels)
	if err != nil {
		t.Fatalf("GetRetainedList: %v", err)
	}
	if len(ids) != 1 || ids[0] != 11 {
		t.Fatalf("expected [11], got %v", ids)
	}

	got, ok, err := s.GetRetained(ctx, levels, 11)
	if err != nil || !ok {
		t.Fatalf("GetRetained: ok=%v err=%v", ok, err)
	}
	if string(got.Payload) != "retained" || !got.Retain {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := s.ClearAllRetained(ctx, levels); err != nil {
		t.Fatalf("ClearAllRetained: %v", err)
	}
	ids, err = s.GetRetainedList(ctx, levels)
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty retained list after clear, got %v err=%v", ids, err)
	}
	if _, ok, _ := s.GetRetained(ctx, levels, 11); ok {
		t.Fatal("expected retained record gone after clear")
	}
}

func TestRetainedKeepsAllUntilCleared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	levels := []string{"a", "b"}

	for i := uint16(1); i <= 3; i++ {
		rec := &RetainedRecord{Type: RecordPublish, QoS: 0, TopicName: "a/b", PacketID: i, Payload: []byte{byte(i)}}
		if err := s.AddRetained(ctx, levels, i, rec).Await(); err != nil {
			t.Fatalf("AddRetained(%d): %v", i, err)
		}
	}

	ids, err := s.GetRetainedList(ctx, levels)
	if err != nil {
		t.Fatalf("GetRetainedList: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("expected 3 retained records accumulated, got %v", ids)
	}
}
