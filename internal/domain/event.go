package domain

// EventKind tags the inbound event union.
type EventKind string

const (
	EventText   EventKind = "text"
	EventButton EventKind = "button"
	EventForm   EventKind = "form"
	EventImage  EventKind = "image"
)

// Event is a normalized inbound message from the chat channel. Exactly one of
// the payload fields matching Kind is set.
type Event struct {
	Kind    EventKind
	Shopper string

	Text   string
	Button ButtonReply
	Form   map[string]string
	Image  ImageRef
}

// ButtonReply is a tap on an interactive button previously sent by us.
type ButtonReply struct {
	ID    string
	Title string
}

// ImageRef is an opaque reference to an uploaded image, resolvable only by
// the messaging provider.
type ImageRef struct {
	ProviderID string
	Caption    string
}

// Button is an outbound interactive choice. At most three may be attached to
// a message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
