package store

import (
	"context"
	"testing"
)

func TestConnectedNodeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateConnectedNode(ctx, "client-1", "node-a").Await(); err != nil {
		t.Fatalf("UpdateConnectedNode: %v", err)
	}

	node, ok, err := s.GetConnectedNode(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetConnectedNode: %v", err)
	}
	if !ok || node != "node-a" {
		t.Fatalf("expected client-1 on node-a, got %q ok=%v", node, ok)
	}

	members, _, err := s.ScanConnectedClients(ctx, "node-a", 0, 100)
	if err != nil {
		t.Fatalf("ScanConnectedClients: %v", err)
	}
	if len(members) != 1 || members[0] != "client-1" {
		t.Fatalf("expected [client-1], got %v", members)
	}

	if err := s.RemoveConnectedNode(ctx, "client-1", "node-a"); err != nil {
		t.Fatalf("RemoveConnectedNode: %v", err)
	}
	_, ok, err = s.GetConnectedNode(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetConnectedNode after remove: %v", err)
	}
	if ok {
		t.Fatal("expected no connected node after removal")
	}
}

// TestRemoveConnectedNodeDoesNotClobberNewerBinding exercises the CHECKDEL
// guard: a disconnect for the stale node must not erase a rebind that has
// already happened on a different node.
func TestRemoveConnectedNodeDoesNotClobberNewerBinding(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateConnectedNode(ctx, "client-1", "node-a").Await(); err != nil {
		t.Fatalf("UpdateConnectedNode node-a: %v", err)
	}
	if err := s.UpdateConnectedNode(ctx, "client-1", "node-b").Await(); err != nil {
		t.Fatalf("UpdateConnectedNode node-b: %v", err)
	}

	if err := s.RemoveConnectedNode(ctx, "client-1", "node-a"); err != nil {
		t.Fatalf("RemoveConnectedNode stale node-a: %v", err)
	}

	node, ok, err := s.GetConnectedNode(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetConnectedNode: %v", err)
	}
	if !ok || node != "node-b" {
		t.Fatalf("expected rebind to node-b to survive, got %q ok=%v", node, ok)
	}
}

func TestSessionFlag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.GetSession(ctx, "client-1"); err != nil || ok {
		t.Fatalf("expected absent session, got ok=%v err=%v", ok, err)
	}

	if err := s.UpdateSession(ctx, "client-1", true); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	clean, ok, err := s.GetSession(ctx, "client-1")
	if err != nil || !ok || !clean {
		t.Fatalf("expected clean=true ok=true, got clean=%v ok=%v err=%v", clean, ok, err)
	}

	if err := s.RemoveSession(ctx, "client-1"); err != nil {
		t.Fatalf("RemoveSession: %v", err)
	}
	if _, ok, _ := s.GetSession(ctx, "client-1"); ok {
		t.Fatal("expected session flag gone after RemoveSession")
	}
}

func TestNextPacketIDWrapsAndNeverEmitsZero(t *testing.T) {
	s := newTestStore(t)
	s.packetIDLimit = 3
	ctx := context.Background()

	want := []uint16{1, 2, 3, 1, 2}
	for i, w := range want {
		got, err := s.NextPacketID(ctx, "client-1")
		if err != nil {
			t.Fatalf("NextPacketID[%d]: %v", i, err)
		}
		if got != w {
			t.Fatalf("NextPacketID[%d] = %d, want %d", i, got, w)
		}
		if got == 0 {
			t.Fatalf("NextPacketID must never emit 0")
		}
	}
}

func TestQoS2Dedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.AddQoS2MessageId(ctx, "client-1", 42)
	if err != nil || !added {
		t.Fatalf("expected first add to report new, got added=%v err=%v", added, err)
	}
	added, err = s.AddQoS2MessageId(ctx, "client-1", 42)
	if err != nil || added {
		t.Fatalf("expected re-add of same id to report not-new, got added=%v err=%v", added, err)
	}

	removed, err := s.RemoveQoS2MessageId(ctx, "client-1", 42)
	if err != nil || !removed {
		t.Fatalf("expected removal to report present, got removed=%v err=%v", removed, err)
	}

	if _, err := s.AddQoS2MessageId(ctx, "client-1", 7); err != nil {
		t.Fatalf("AddQoS2MessageId: %v", err)
	}
	if err := s.ClearQoS2(ctx, "client-1"); err != nil {
		t.Fatalf("ClearQoS2: %v", err)
	}
	removed, err = s.RemoveQoS2MessageId(ctx, "client-1", 7)
	if err != nil || removed {
		t.Fatalf("expected dedup set empty after ClearQoS2, got removed=%v err=%v", removed, err)
	}
}

func TestInFlightCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := &InFlightRecord{Type: RecordPublish, QoS: 1, TopicName: "a/b", PacketID: 5, Payload: []byte("hello")}
	if err := s.AddInFlight(ctx, "client-1", 5, rec).Await(); err != nil {
		t.Fatalf("AddInFlight: %v", err)
	}

	ids, err := s.GetAllInFlightIds(ctx, "client-1")
	if err != nil {
		t.Fatalf("GetAllInFlightIds: %v", err)
	}
	if len(ids) != 1 || ids[0] != 5 {
		t.Fatalf("expected [5], got %v", ids)
	}

	got, ok, err := s.GetInFlight(ctx, "client-1", 5)
	if err != nil || !ok {
		t.Fatalf("GetInFlight: ok=%v err=%v", ok, err)
	}
	if got.TopicName != "a/b" || string(got.Payload) != "hello" || got.QoS != 1 {
		t.Fatalf("unexpected record: %+v", got)
	}

	if err := s.RemoveInFlight(ctx, "client-1", 5).Await(); err != nil {
		t.Fatalf("RemoveInFlight: %v", err)
	}
	if _, ok, _ := s.GetInFlight(ctx, "client-1", 5); ok {
		t.Fatal("expected in-flight record gone after removal")
	}
	ids, err = s.GetAllInFlightIds(ctx, "client-1")
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty in-flight list, got %v err=%v", ids, err)
	}
}

func TestClearAllInFlightDrainsEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := uint16(1); i <= 5; i++ {
		rec := &InFlightRecord{Type: RecordPublish, QoS: 1, TopicName: "a/b", PacketID: i}
		if err := s.AddInFlight(ctx, "client-1", i, rec).Await(); err != nil {
			t.Fatalf("AddInFlight(%d): %v", i, err)
		}
	}

	if err := s.ClearAllInFlight(ctx, "client-1"); err != nil {
		t.Fatalf("ClearAllInFlight: %v", err)
	}

	ids, err := s.GetAllInFlightIds(ctx, "client-1")
	if err != nil || len(ids) != 0 {
		t.Fatalf("expected empty in-flight list after clear, got %v err=%v", ids, err)
	}
	for i := uint16(1); i <= 5; i++ {
		if _, ok, _ := s.GetInFlight(ctx, "client-1", i); ok {
			t.Fatalf("expected record %d gone after ClearAllInFlight", i)
		}
	}
}

func TestRemoveAllSessionStatePurgesEverything(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpdateSession(ctx, "client-1", true); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}
	if err := s.UpdateSubscription(ctx, "client-1", []string{"a", "b"}, 1); err != nil {
		t.Fatalf("UpdateSubscription: %v", err)
	}
	if _, err := s.AddQoS2MessageId(ctx, "client-1", 9); err != nil {
		t.Fatalf("AddQoS2MessageId: %v", err)
	}
	rec := &InFlightRecord{Type: RecordPublish, QoS: 1, TopicName: "a/b", PacketID: 9}
	if err := s.AddInFlight(ctx, "client-1", 9, rec).Await(); err != nil {
		t.Fatalf("AddInFlight: %v", err)
	}

	if err := s.RemoveAllSessionState(ctx, "client-1"); err != nil {
		t.Fatalf("RemoveAllSessionState: %v", err)
	}

	if _, ok, _ := s.GetSession(ctx, "client-1"); ok {
		t.Error("expected session flag gone")
	}
	subs, err := s.GetClientSubscriptions(ctx, "client-1")
	if err != nil || len(subs) != 0 {
		t.Errorf("expected no subscriptions, got %v err=%v", subs, err)
	}
	if removed, _ := s.RemoveQoS2MessageId(ctx, "client-1", 9); removed {
		t.Error("expected QoS2 dedup set cleared")
	}
	if ids, _ := s.GetAllInFlightIds(ctx, "client-1"); len(ids) != 0 {
		t.Errorf("expected no in-flight ids, got %v", ids)
	}
}
