package chat

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleDeveloper = "developer"
)

// Message is one turn of a conversation. Role is the raw author name until rendered.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NormalizeRole maps the bot's own name to "assistant", keeps "developer" and
// "assistant", and maps everything else to "user".
func NormalizeRole(role, botName string) string {
	switch {
	case role == botName:
		return RoleAssistant
	case role == RoleDeveloper || role == RoleAssistant:
		return role
	default:
		return RoleUser
	}
}

// Render normalizes roles for a provider call. The input is not modified.
func Render(history []Message, botName string) []Message {
	out := make([]Message, 0, len(history))
	for _, m := range history {
		out = append(out, Message{Role: NormalizeRole(m.Role, botName), Content: m.Content})
	}
	return out
}

// EmbedField mirrors the name/value pair of a platform rich embed.
type EmbedField struct {
	Name  string
	Value string
}

// PlatformMessage is the part of a messaging platform message needed to rebuild history.
type PlatformMessage struct {
	AuthorName string
	Content    string
	// system-generated first message of a thread
	ThreadStarter bool
	// fields of the first embed of the message the starter refers to
	StarterFields []EmbedField
}

// FromPlatform converts a platform message. Thread starters yield the prompt embedded in
// the starter's "message" field (first field if none is named so); other messages need
// non-empty text.
func FromPlatform(pm PlatformMessage) (Message, bool) {
	if pm.ThreadStarter && len(pm.StarterFields) > 0 {
		field := pm.StarterFields[0]
		for _, f := range pm.StarterFields {
			if f.Name == "message" {
				field = f
				break
			}
		}
		return Message{Role: pm.AuthorName, Content: field.Value}, true
	}
	if pm.Content != "" {
		return Message{Role: pm.AuthorName, Content: pm.Content}, true
	}
	return Message{}, false
}

// History converts platform messages listed newest first into an oldest-first history,
// dropping messages without usable content.
func History(newestFirst []PlatformMessage) []Message {
	out := make([]Message, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if m, ok := FromPlatform(newestFirst[i]); ok {
			out = append(out, m)
		}
	}
	return out
}
