package schema

import (
	"fmt"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs. The payload never carries sender identity; the message
// type is the whole protocol tag.
const (
	MsgRequest = uint32(protocol.KindRequest)
	MsgRelease = uint32(protocol.KindRelease)
	MsgGrant   = uint32(protocol.KindGrant)
	MsgDeny    = uint32(protocol.KindDeny)
)

// Optional field IDs.
const (
	FieldTimestampMS uint16 = 1
	FieldSequence    uint16 = 2
	FieldReason      uint16 = 3
)

type Requirement struct {
	ID       uint16
	Type     uint8
	Required bool
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var common = []Requirement{
	{ID: FieldTimestampMS, Type: tlv.TypeU64},
	{ID: FieldSequence, Type: tlv.TypeU64},
}

var requirements = map[uint32][]Requirement{
	MsgRequest: common,
	MsgRelease: common,
	MsgGrant:   common,
	MsgDeny:    append(append([]Requirement{}, common...), Requirement{ID: FieldReason, Type: tlv.TypeString}),
}

// Known reports whether messageType belongs to the protocol.
func Known(messageType uint32) bool {
	_, ok := requirements[messageType]
	return ok
}

// Validate enforces required fields and the declared type of every known field
// that is present. Unknown field ids are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema.Validate unknown message_type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Required {
				return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
			}
			continue
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema.Validate type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Uint32("message_type", messageType).Int("fields", len(fields)).Msg("schema.Validate ok")
	return nil
}
