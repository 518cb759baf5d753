package mvc

// MessageType classifies a user-facing message.
type MessageType string

const (
	MessageInfo    MessageType = "info"
	MessageError   MessageType = "error"
	MessageSuccess MessageType = "success"
)

// Message is one user-facing message.
type Message struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// Messages collects the messages produced while handling one request.
type Messages struct {
	title string
	items []Message
}

// Add appends messages as they are.
func (m *Messages) Add(msgs ...Message) {
	m.items = append(m.items, msgs...)
}

// Info adds an informational message.
func (m *Messages) Info(text string) { m.Add(Message{Type: MessageInfo, Message: text}) }

// Error adds an error message.
func (m *Messages) Error(text string) { m.Add(Message{Type: MessageError, Message: text}) }

// Success adds a success message.
func (m *Messages) Success(text string) { m.Add(Message{Type: MessageSuccess, Message: text}) }

// SetTitle sets the heading shown above the messages.
func (m *Messages) SetTitle(title string) { m.title = title }

// Title returns the heading, if any.
func (m *Messages) Title() string { return m.title }

// All returns a copy of every message in insertion order.
func (m *Messages) All() []Message {
	out := make([]Message, len(m.items))
	copy(out, m.items)
	return out
}

// Texts returns the message texts.
func (m *Messages) Texts() []string {
	out := make([]string, 0, len(m.items))
	for _, msg := range m.items {
		out = append(out, msg.Message)
	}
	return out
}

// Errors returns the texts of error messages only.
func (m *Messages) Errors() []string {
	var out []string
	for _, msg := range m.items {
		if msg.Type == MessageError {
			out = append(out, msg.Message)
		}
	}
	return out
}

// HasErrors reports whether an error message was added.
func (m *Messages) HasErrors() bool {
	for _, msg := range m.items {
		if msg.Type == MessageError {
			return true
		}
	}
	return false
}

// Len returns the number of messages.
func (m *Messages) Len() int { return len(m.items) }

// Reset drops all messages and the title.
func (m *Messages) Reset() {
	m.title = ""
	m.items = nil
}
