package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownKind = errors.New("protocol: unknown message kind")
	ErrEmptyFrame  = errors.New("protocol: empty frame")
)

// Codec defines the contract for message serialization and deserialization.
type Codec interface {
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// jsonEnvelope is the wire shape of the reliable channel: {"t": kind, "d": payload}.
type jsonEnvelope struct {
	Type Kind            `json:"t"`
	Data json.RawMessage `json:"d"`
}

// JSONCodec encodes control messages. They are infrequent and easy to inspect.
type JSONCodec struct{}

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", msg.Kind())
	}
	return json.Marshal(jsonEnvelope{Type: msg.Kind(), Data: data})
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	var env jsonEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	msg, err := New(env.Type)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(env.Data, msg); err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Type)
	}
	return msg, nil
}

type msgpackEnvelope struct {
	Type Kind               `msgpack:"t"`
	Data msgpack.RawMessage `msgpack:"d"`
}

// MsgpackCodec encodes the high-rate state channel.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(msg Message) ([]byte, error) {
	data, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", msg.Kind())
	}
	return msgpack.Marshal(msgpackEnvelope{Type: msg.Kind(), Data: data})
}

func (MsgpackCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}
	var env msgpackEnvelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}
	msg, err := New(env.Type)
	if err != nil {
		return nil, err
	}
	if err := msgpack.Unmarshal(env.Data, msg); err != nil {
		return nil, errors.Wrapf(err, "decode %s", env.Type)
	}
	return msg, nil
}

// Marshal encodes msg with the codec of its channel.
func Marshal(msg Message) ([]byte, error) {
	if msg.Kind().Reliable() {
		return JSONCodec{}.Encode(msg)
	}
	return MsgpackCodec{}.Encode(msg)
}

// Unmarshal decodes a frame received on the reliable or unreliable channel.
func Unmarshal(reliable bool, data []byte) (Message, error) {
	if reliable {
		return JSONCodec{}.Decode(data)
	}
	return MsgpackCodec{}.Decode(data)
}
