package ai

import (
	"context"
)

// LLMProvider is the remote conversational agent consulted for voice commands.
// Implementations may be swapped (Vapi agent endpoint, Gemini) through config.
type LLMProvider interface {
	// ParseUserIntent sends one spoken transcript to the agent and returns its
	// structured reply. currentContext carries hints such as "phase" and
	// "user_location"; providers may ignore it.
	ParseUserIntent(ctx context.Context, userMessage string, currentContext map[string]string) (*IntentResult, error)
}

// Context keys the navigation session fills in.
const (
	ContextPhase    = "phase"
	ContextLocation = "user_location"
	// ContextUID is the session owner; used for usage accounting, not sent to agents.
	ContextUID = "uid"
)
