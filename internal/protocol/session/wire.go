package session

import (
	"errors"
	"io"

	"github.com/danmuck/tablectl/internal/protocol"
	"github.com/danmuck/tablectl/internal/protocol/frame"
	"github.com/danmuck/tablectl/internal/protocol/schema"
	"github.com/danmuck/tablectl/internal/protocol/tlv"
)

// WireMessage is one framed protocol message. Only Kind is mandatory.
type WireMessage struct {
	MessageID   uint64
	Kind        protocol.Kind
	Sequence    uint64
	TimestampMS uint64
	Reason      string
}

func EncodeMessageFrame(m WireMessage) ([]byte, error) {
	fields := make([]tlv.Field, 0, 3)
	if m.TimestampMS != 0 {
		fields = append(fields, tlv.U64Field(schema.FieldTimestampMS, m.TimestampMS))
	}
	if m.Sequence != 0 {
		fields = append(fields, tlv.U64Field(schema.FieldSequence, m.Sequence))
	}
	if m.Reason != "" {
		fields = append(fields, tlv.StringField(schema.FieldReason, m.Reason))
	}
	messageType := uint32(m.Kind)
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var flags uint32
	if m.Kind.Outbound() {
		flags = frame.FlagIsResponse
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			MessageID:   m.MessageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, frame.DefaultLimits())
}

// DecodeMessageFrame parses f. On error the returned message still carries
// the raw Kind from the header so callers can report what arrived.
func DecodeMessageFrame(f frame.Frame) (WireMessage, error) {
	out := WireMessage{
		MessageID: f.Header.MessageID,
		Kind:      protocol.Kind(f.Header.MessageType),
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return out, err
	}
	if err := schema.Validate(f.Header.MessageType, fields); err != nil {
		return out, err
	}
	if v, ok := tlv.GetField(fields, schema.FieldTimestampMS); ok {
		if out.TimestampMS, err = tlv.U64FromBytes(v.Value); err != nil {
			return out, err
		}
	}
	if v, ok := tlv.GetField(fields, schema.FieldSequence); ok {
		if out.Sequence, err = tlv.U64FromBytes(v.Value); err != nil {
			return out, err
		}
	}
	if v, ok := tlv.GetField(fields, schema.FieldReason); ok {
		out.Reason = string(v.Value)
	}
	return out, nil
}

// IsUnknownKind reports whether err came from a frame whose message type is
// outside the protocol. Such frames are protocol violations, not transport
// noise.
func IsUnknownKind(err error) bool {
	var ve schema.ValidationError
	return errors.As(err, &ve) && ve.FieldID == 0
}

// ReadMessage reads and decodes one framed message from the stream.
func ReadMessage(r io.Reader) (WireMessage, error) {
	fr, err := frame.ReadFrame(r, frame.DefaultLimits())
	if err != nil {
		return WireMessage{}, err
	}
	return DecodeMessageFrame(fr)
}
