package store

import (
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/omochice/monrst/internal/model"
)

// Records are stored as protobuf-encoded google.protobuf.Struct values, one
// field per entity attribute.

func marshalRecord(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal failed: %w", err)
	}
	return data, nil
}

type record struct {
	fields map[string]*structpb.Value
	err    error
}

func unmarshalRecord(data []byte) (*record, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("unmarshal failed: %w", err)
	}
	return &record{fields: s.GetFields()}, nil
}

func (r *record) string(key string) string {
	return r.fields[key].GetStringValue()
}

func (r *record) id(key string) model.ID {
	return r.parseID(r.string(key))
}

func (r *record) parseID(s string) model.ID {
	id, err := uuid.Parse(s)
	if err != nil && r.err == nil {
		r.err = fmt.Errorf("corrupted record: %w", err)
	}
	return id
}

func encodeUser(u model.User) ([]byte, error) {
	return marshalRecord(map[string]any{
		"id":            u.ID.String(),
		"username":      u.Username,
		"discriminator": u.Discriminator.String(),
		"online":        u.Online,
	})
}

func decodeUser(data []byte) (model.User, error) {
	r, err := unmarshalRecord(data)
	if err != nil {
		return model.User{}, err
	}
	discriminator, err := model.ParseDiscriminator(r.string("discriminator"))
	if err != nil {
		return model.User{}, fmt.Errorf("corrupted record: %w", err)
	}
	u := model.User{
		ID:            r.id("id"),
		Username:      r.string("username"),
		Discriminator: discriminator,
		Online:        r.fields["online"].GetBoolValue(),
	}
	return u, r.err
}

func encodeChannel(c model.Channel) ([]byte, error) {
	return marshalRecord(map[string]any{
		"id":    c.ID.String(),
		"kind":  int(c.Kind),
		"users": []any{c.Users[0].String(), c.Users[1].String()},
	})
}

func decodeChannel(data []byte) (model.Channel, error) {
	r, err := unmarshalRecord(data)
	if err != nil {
		return model.Channel{}, err
	}
	users := r.fields["users"].GetListValue().GetValues()
	if len(users) != 2 {
		return model.Channel{}, fmt.Errorf("corrupted record: channel has %d users", len(users))
	}
	c := model.Channel{
		ID:    r.id("id"),
		Kind:  model.ChannelKind(r.fields["kind"].GetNumberValue()),
		Users: [2]model.ID{r.parseID(users[0].GetStringValue()), r.parseID(users[1].GetStringValue())},
	}
	return c, r.err
}

func encodeMessage(m model.Message) ([]byte, error) {
	return marshalRecord(map[string]any{
		"id":      m.ID.String(),
		"channel": m.Channel.String(),
		"author":  m.Author.String(),
		"content": m.Content,
	})
}

func decodeMessage(data []byte) (model.Message, error) {
	r, err := unmarshalRecord(data)
	if err != nil {
		return model.Message{}, err
	}
	m := model.Message{
		ID:      r.id("id"),
		Channel: r.id("channel"),
		Author:  r.id("author"),
		Content: r.string("content"),
	}
	return m, r.err
}

func encodeServer(s model.Server) ([]byte, error) {
	return marshalRecord(map[string]any{
		"id":          s.ID.String(),
		"owner":       s.Owner.String(),
		"name":        s.Name,
		"description": s.Description,
	})
}

func decodeServer(data []byte) (model.Server, error) {
	r, err := unmarshalRecord(data)
	if err != nil {
		return model.Server{}, err
	}
	s := model.Server{
		ID:          r.id("id"),
		Owner:       r.id("owner"),
		Name:        r.string("name"),
		Description: r.string("description"),
	}
	return s, r.err
}
