package ai

// IntentResult is the agent reply. Agents disagree on where they put the
// destination, so every known slot is kept and resolved by the caller.
type IntentResult struct {
	// Intent is a free-form label such as "navigate", "start" or "chat".
	Intent string `json:"intent,omitempty"`

	// Destination is usually a string but some agents send an entity object.
	Destination any `json:"destination,omitempty"`

	// Args, Parameters and Data are the nested payloads agents use for slot values.
	Args       map[string]any `json:"args,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Data       map[string]any `json:"data,omitempty"`

	// Text, Message and Reply are alternative names for the speakable reply.
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
	Reply   string `json:"reply,omitempty"`

	// OutputAudio is base64 MP3 speech rendered by the agent itself.
	OutputAudio string `json:"outputAudio,omitempty"`
}

// SpokenText returns the first non-empty reply field.
func (r *IntentResult) SpokenText() string {
	if r == nil {
		return ""
	}
	switch {
	case r.Text != "":
		return r.Text
	case r.Message != "":
		return r.Message
	default:
		return r.Reply
	}
}
