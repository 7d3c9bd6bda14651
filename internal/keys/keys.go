// Package keys builds the deterministic Redis key strings for every logical
// entity in the data model. Every function here is a pure string builder —
// no I/O — so the key schema stays identical across every broker node.
package keys

import (
	"strconv"
	"strings"

	"github.com/qttmesh/core/internal/topic"
)

func joinLevels(levels []string) string {
	return strings.Join(levels, "/")
}

// ConnectedClients is the presence set for a node: connected_clients(node).
func ConnectedClients(node string) string {
	return "connected_clients:" + node
}

// ConnectedNode is the reverse pointer: connected_node(clientId).
func ConnectedNode(clientID string) string {
	return "connected_node:" + clientID
}

// Session is the clean/persistent session flag: session(clientId).
func Session(clientID string) string {
	return "session:" + clientID
}

// NextPacketID is the packet-id allocator counter: next_packet_id(clientId).
func NextPacketID(clientID string) string {
	return "next_packet_id:" + clientID
}

// QoS2Set is the inbound QoS2 dedup set: qos2_set(clientId).
func QoS2Set(clientID string) string {
	return "qos2_set:" + clientID
}

// InFlightList is the ordered in-flight packet-id list: in_flight_list(clientId).
func InFlightList(clientID string) string {
	return "in_flight_list:" + clientID
}

// InFlightMsg is an in-flight message record: in_flight_msg(clientId, packetId).
func InFlightMsg(clientID string, packetID uint16) string {
	return "in_flight_msg:" + clientID + ":" + strconv.Itoa(int(packetID))
}

// Subscription is a client's topic->QoS map: subscription(clientId).
func Subscription(clientID string) string {
	return "subscription:" + clientID
}

// TopicName is the exact-topic subscriber map: topic_name(levels).
func TopicName(levels []string) string {
	return "topic_name:" + joinLevels(levels)
}

// TopicFilter is the wildcard-filter subscriber map: topic_filter(levels).
func TopicFilter(levels []string) string {
	return "topic_filter:" + joinLevels(levels)
}

// TopicFilterChild is a trie node's child-label counter map:
// topic_filter_child(prefix). The prefix length is encoded ahead of the
// joined levels so a k-level prefix can never collide with a different
// prefix that happens to join to the same string (e.g. the empty root
// prefix versus a one-level prefix whose sole level is "").
func TopicFilterChild(prefix []string) string {
	return "topic_filter_child:" + strconv.Itoa(len(prefix)) + ":" + joinLevels(prefix)
}

// TopicRetainList is the ordered retained packet-id list for a topic:
// topic_retain_list(levels).
func TopicRetainList(levels []string) string {
	return "topic_retain_list:" + joinLevels(levels)
}

// TopicRetainMsg is a retained message record: topic_retain_msg(levels, packetId).
func TopicRetainMsg(levels []string, packetID uint16) string {
	return "topic_retain_msg:" + joinLevels(levels) + ":" + strconv.Itoa(int(packetID))
}

// ChildEnd and ChildHash/ChildPlus are the reserved trie edge labels used as
// hash fields within a TopicFilterChild counter map.
const (
	ChildEnd  = topic.End
	ChildHash = "#"
	ChildPlus = "+"
)
