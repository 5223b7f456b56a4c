package agentloop

// Role identifies who produced a message in the conversation.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn in the conversation. Messages are immutable once
// appended; ordering is the only sequencing mechanism.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SystemMessage creates a system Message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage creates a user Message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage creates an assistant Message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Conversation is the append-only message log for one interaction. It always
// begins with exactly one system message; Reset discards everything else so
// each user query starts from a clean slate.
//
// A Conversation is owned by a single Loop and is not safe for concurrent
// use; the loop runs one interaction at a time.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation seeded with the system prompt.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []Message{SystemMessage(systemPrompt)},
	}
}

// Append adds a message to the end of the log.
func (c *Conversation) Append(msg Message) {
	c.messages = append(c.messages, msg)
}

// Messages returns a copy of the log so callers cannot mutate history.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages in the log.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message, or false if the log is empty.
func (c *Conversation) Last() (Message, bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Reset discards all messages except the original system message. Starting a
// new user query goes through here so no message from a previous interaction
// leaks into the next one.
func (c *Conversation) Reset() {
	if len(c.messages) == 0 {
		return
	}
	c.messages = c.messages[:1]
}
