package protocol

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ErrUnknownEvent is returned when a decoded frame names no known event kind.
var ErrUnknownEvent = errors.New("unknown event")

// Codec turns events into frames and back for one negotiated Format.
type Codec interface {
	Format() Format
	Encode(Event) ([]byte, error)
	Decode([]byte) (Event, error)
}

// CodecFor returns the codec serving the given format.
func CodecFor(f Format) (Codec, error) {
	switch f {
	case FormatBinary:
		return binaryCodec{}, nil
	case FormatJSON:
		return jsonCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, int(f))
	}
}

// binaryCodec writes the protobuf wire format of a google.protobuf.Struct.
type binaryCodec struct{}

func (binaryCodec) Format() Format { return FormatBinary }

func (binaryCodec) Encode(e Event) ([]byte, error) {
	s, err := e.toStruct()
	if err != nil {
		return nil, err
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

func (binaryCodec) Decode(data []byte) (Event, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return eventFromStruct(s)
}

// jsonCodec writes the canonical JSON mapping of the same Struct, which is a
// plain JSON object keyed by field name.
type jsonCodec struct{}

func (jsonCodec) Format() Format { return FormatJSON }

func (jsonCodec) Encode(e Event) ([]byte, error) {
	s, err := e.toStruct()
	if err != nil {
		return nil, err
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return data, nil
}

func (jsonCodec) Decode(data []byte) (Event, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	return eventFromStruct(s)
}

// toStruct converts the Event to a protobuf Struct, leaving out empty fields.
func (e Event) toStruct() (*structpb.Struct, error) {
	fields := map[string]any{"kind": e.Kind.String()}
	for key, value := range map[string]string{
		"id":            e.ID,
		"username":      e.Username,
		"discriminator": e.Discriminator,
		"channel":       e.Channel,
		"author":        e.Author,
		"peer":          e.Peer,
		"content":       e.Content,
		"reason":        e.Reason,
	} {
		if value != "" {
			fields[key] = value
		}
	}
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to encode event: %w", err)
	}
	return s, nil
}

func eventFromStruct(s *structpb.Struct) (Event, error) {
	get := func(key string) string {
		return s.GetFields()[key].GetStringValue()
	}

	kindName := get("kind")
	kind := eventKindFromString(kindName)
	if kind == EventUnknown {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, kindName)
	}

	return Event{
		Kind:          kind,
		ID:            get("id"),
		Username:      get("username"),
		Discriminator: get("discriminator"),
		Channel:       get("channel"),
		Author:        get("author"),
		Peer:          get("peer"),
		Content:       get("content"),
		Reason:        get("reason"),
	}, nil
}
