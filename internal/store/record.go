package store

import (
	"encoding/binary"

	"github.com/qttmesh/core/internal/errs"
)

// RecordType distinguishes the two kinds of in-flight/retained record the
// core stores: a queued PUBLISH, or a PUBREL marker awaiting PUBCOMP.
type RecordType byte

const (
	RecordPublish RecordType = iota
	RecordPubrel
)

// InFlightRecord mirrors the in_flight_msg(clientId, packetId) entity of the
// data model. For RecordPubrel only Type, QoS (always 1) and PacketID are
// meaningful; the remaining fields are zero.
type InFlightRecord struct {
	Type      RecordType
	Retain    bool
	QoS       byte
	Dup       bool
	TopicName string
	PacketID  uint16
	Payload   []byte
}

// RetainedRecord has the same shape as an in-flight PUBLISH record.
type RetainedRecord = InFlightRecord

// Encode serializes the record to a transparent 8-bit binary frame: every
// byte of Payload is preserved exactly, so the encoding is safe for
// arbitrary MQTT application payloads (never route them through a text
// codec such as UTF-8 or JSON string escaping).
//
// Frame layout:
//
//	1 byte   type
//	1 byte   flags (bit0=retain, bit1=dup)
//	1 byte   qos
//	2 bytes  packetId (big-endian)
//	2 bytes  topicName length (big-endian) + topicName bytes
//	4 bytes  payload length (big-endian) + payload bytes
func (r *InFlightRecord) Encode() []byte {
	topicBytes := []byte(r.TopicName)
	buf := make([]byte, 0, 1+1+1+2+2+len(topicBytes)+4+len(r.Payload))

	buf = append(buf, byte(r.Type))

	var flags byte
	if r.Retain {
		flags |= 0x01
	}
	if r.Dup {
		flags |= 0x02
	}
	buf = append(buf, flags)
	buf = append(buf, r.QoS)

	var pid [2]byte
	binary.BigEndian.PutUint16(pid[:], r.PacketID)
	buf = append(buf, pid[:]...)

	var tlen [2]byte
	binary.BigEndian.PutUint16(tlen[:], uint16(len(topicBytes)))
	buf = append(buf, tlen[:]...)
	buf = append(buf, topicBytes...)

	var plen [4]byte
	binary.BigEndian.PutUint32(plen[:], uint32(len(r.Payload)))
	buf = append(buf, plen[:]...)
	buf = append(buf, r.Payload...)

	return buf
}

// DecodeInFlightRecord parses the frame written by Encode. A malformed frame
// (short buffer, length fields that run past the end of the buffer, or an
// unknown record type) is a ContractViolation: the caller drops the record.
func DecodeInFlightRecord(raw []byte) (*InFlightRecord, error) {
	const minLen = 1 + 1 + 1 + 2 + 2 + 4
	if len(raw) < minLen {
		return nil, errs.New(errs.Contract, "store.DecodeInFlightRecord", errShortRecord)
	}

	r := &InFlightRecord{}
	off := 0

	switch RecordType(raw[off]) {
	case RecordPublish, RecordPubrel:
		r.Type = RecordType(raw[off])
	default:
		return nil, errs.New(errs.Contract, "store.DecodeInFlightRecord", errUnknownRecordType)
	}
	off++

	flags := raw[off]
	r.Retain = flags&0x01 != 0
	r.Dup = flags&0x02 != 0
	off++

	r.QoS = raw[off]
	off++

	r.PacketID = binary.BigEndian.Uint16(raw[off : off+2])
	off += 2

	tlen := int(binary.BigEndian.Uint16(raw[off : off+2]))
	off += 2
	if off+tlen > len(raw) {
		return nil, errs.New(errs.Contract, "store.DecodeInFlightRecord", errShortRecord)
	}
	r.TopicName = string(raw[off : off+tlen])
	off += tlen

	if off+4 > len(raw) {
		return nil, errs.New(errs.Contract, "store.DecodeInFlightRecord", errShortRecord)
	}
	plen := int(binary.BigEndian.Uint32(raw[off : off+4]))
	off += 4
	if off+plen > len(raw) {
		return nil, errs.New(errs.Contract, "store.DecodeInFlightRecord", errShortRecord)
	}
	r.Payload = make([]byte, plen)
	copy(r.Payload, raw[off:off+plen])

	return r, nil
}
