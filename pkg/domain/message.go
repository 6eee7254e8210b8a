package domain

import "strings"

// IncomingEvent is a normalized inbound message. The set of implementations is
// closed: FreeText and MenuSelection.
type IncomingEvent interface {
	// RawInput is the text the validation rules see.
	RawInput() string
	incomingEvent()
}

// FreeText is a typed message.
type FreeText struct {
	Raw string `json:"raw"`
}

// MenuSelection is a structured reply carrying an explicit option id, such as
// an interactive list or button reply.
type MenuSelection struct {
	OptionID string `json:"option_id"`
}

func (e FreeText) RawInput() string      { return e.Raw }
func (e MenuSelection) RawInput() string { return e.OptionID }

func (FreeText) incomingEvent()      {}
func (MenuSelection) incomingEvent() {}

// MessageKind tells the transport how to present an outgoing message.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageChoice MessageKind = "choice"
)

// OutgoingMessage is a transport-neutral reply.
type OutgoingMessage struct {
	Kind    MessageKind  `json:"kind"`
	Body    string       `json:"body"`
	Options []OptionView `json:"options,omitempty"`
}

// OptionView is a selectable option rendered for the user.
type OptionView struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Text builds a plain text message.
func Text(body string) OutgoingMessage {
	return OutgoingMessage{Kind: MessageText, Body: body}
}

// WithNotice prefixes the message body with notice on its own paragraph.
func (m OutgoingMessage) WithNotice(notice string) OutgoingMessage {
	notice = strings.TrimSpace(notice)
	switch {
	case notice == "":
	case m.Body == "":
		m.Body = notice
	default:
		m.Body = notice + "\n\n" + m.Body
	}
	return m
}
