package protocol

// EventKind represents the type of event
type EventKind int

const (
	EventUnknown EventKind = iota
	EventPing
	EventPong
	EventRegisterUser
	EventUserRegistered
	EventOpenDirectMessage
	EventChannelOpened
	EventSendMessage
	EventMessageSent
	EventDeleteChannel
	EventChannelDeleted
	EventError
)

var eventKindNames = map[EventKind]string{
	EventPing:              "ping",
	EventPong:              "pong",
	EventRegisterUser:      "register_user",
	EventUserRegistered:    "user_registered",
	EventOpenDirectMessage: "open_direct_message",
	EventChannelOpened:     "channel_opened",
	EventSendMessage:       "send_message",
	EventMessageSent:       "message_sent",
	EventDeleteChannel:     "delete_channel",
	EventChannelDeleted:    "channel_deleted",
	EventError:             "error",
}

// String returns the wire name of the kind.
func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

func eventKindFromString(s string) EventKind {
	for kind, name := range eventKindNames {
		if name == s {
			return kind
		}
	}
	return EventUnknown
}

// Event is a single frame exchanged on an admitted connection. Which fields
// are meaningful depends on Kind:
//
//	register_user        Username
//	user_registered      ID, Username, Discriminator
//	open_direct_message  Author, Peer
//	channel_opened       ID, Author, Peer
//	send_message         Channel, Author, Content
//	message_sent         ID, Channel, Author, Content
//	delete_channel       Channel
//	channel_deleted      Channel
//	error                Reason
//
// Identifiers travel as their canonical UUID text.
type Event struct {
	Kind          EventKind
	ID            string
	Username      string
	Discriminator string
	Channel       string
	Author        string
	Peer          string
	Content       string
	Reason        string
}

// ErrorEvent builds the reply sent when a client event could not be served.
func ErrorEvent(err error) Event {
	return Event{Kind: EventError, Reason: err.Error()}
}
