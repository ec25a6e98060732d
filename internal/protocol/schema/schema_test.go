package schema

import (
	"errors"
	"testing"

	"github.com/danmuck/tablectl/internal/protocol/tlv"
	"github.com/danmuck/tablectl/internal/testutil/testlog"
)

func TestValidateAcceptsBareTags(t *testing.T) {
	testlog.Start(t)
	for _, msg := range []uint32{MsgRequest, MsgRelease, MsgGrant, MsgDeny} {
		if err := Validate(msg, nil); err != nil {
			t.Fatalf("validate bare message_type=%d: %v", msg, err)
		}
	}
}

func TestValidateUnknownFieldsIgnored(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U64Field(FieldTimestampMS, 1),
		{ID: 9999, Type: 7, Value: []byte{0x01}},
	}
	if err := Validate(MsgRequest, fields); err != nil {
		t.Fatalf("validate with unknown field: %v", err)
	}
}

func TestValidateUnknownMessageType(t *testing.T) {
	testlog.Start(t)
	err := Validate(99, nil)
	var ve ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.FieldID != 0 || ve.Reason != "unknown message_type" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
	if Known(99) || !Known(MsgDeny) {
		t.Fatalf("Known disagrees with the requirement table")
	}
}

func TestValidateTypeMismatchDeterministic(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{
		tlv.U64Field(FieldSequence, 4),
		tlv.U32Field(FieldReason, 1),
	}
	err := Validate(MsgDeny, fields)
	ve, ok := err.(ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if ve.FieldID != FieldReason || ve.Reason != "type mismatch" {
		t.Fatalf("unexpected validation error: %+v", ve)
	}
}

func TestReasonOnlyKnownOnDeny(t *testing.T) {
	testlog.Start(t)
	fields := []tlv.Field{tlv.U32Field(FieldReason, 1)}
	if err := Validate(MsgGrant, fields); err != nil {
		t.Fatalf("reason is not a grant field and must be ignored: %v", err)
	}
}
