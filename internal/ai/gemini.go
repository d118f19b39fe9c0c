package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is fast enough for a spoken round trip.
const DefaultGeminiModel = "gemini-2.0-flash"

var errEmptyCandidate = errors.New("gemini: no text in reply")

const navigatorInstruction = `You are the voice front end of a walking and transit navigation assistant for blind and low-vision users.

RULES:
1. If the user names a place to go, set "intent": "navigate" and put the place in "destination" exactly as a maps search would need it (landmark or address, no filler words).
2. If the phase is "ready" and the user confirms they want to begin, set "intent": "start" and "destination": null.
3. Otherwise set "intent": "chat" and "destination": null.
4. "reply" is one short spoken sentence. No markdown, no lists, no emoji. It will be read aloud.

Output JSON Schema:
{
  "intent": "navigate" | "start" | "chat",
  "destination": "string or null",
  "reply": "string"
}`

// GeminiProvider asks a Gemini model for a JSON intent.
type GeminiProvider struct {
	client *genai.Client
	model  *genai.GenerativeModel
}

func NewGeminiProvider(ctx context.Context, apiKey string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	model := client.GenerativeModel(DefaultGeminiModel)
	model.ResponseMIMEType = "application/json"
	model.SetTemperature(0.2)
	model.SystemInstruction = genai.NewUserContent(genai.Text(navigatorInstruction))

	return &GeminiProvider{client: client, model: model}, nil
}

func (p *GeminiProvider) Close() {
	p.client.Close()
}

// ParseUserIntent sends the transcript with the session context as one user turn.
func (p *GeminiProvider) ParseUserIntent(ctx context.Context, userMessage string, currentContext map[string]string) (*IntentResult, error) {
	resp, err := p.model.GenerateContent(ctx, genai.Text(userTurn(currentContext, userMessage)))
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	raw, err := candidateText(resp)
	if err != nil {
		return nil, err
	}
	return decodeIntent(raw)
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errEmptyCandidate
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", errEmptyCandidate
	}
	return b.String(), nil
}

// decodeIntent parses a JSON agent reply, tolerating markdown fences.
func decodeIntent(raw string) (*IntentResult, error) {
	body := stripFences(raw)
	var result IntentResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("gemini: decode reply %q: %w", body, err)
	}
	return &result, nil
}

// userTurn prefixes the transcript with the phase and position the model needs.
// The owner uid is never included.
func userTurn(ctxMap map[string]string, message string) string {
	phase := ctxMap[ContextPhase]
	if phase == "" {
		phase = "idle"
	}
	loc := ctxMap[ContextLocation]
	if loc == "" {
		loc = "UNKNOWN_LOCATION"
	}
	return fmt.Sprintf("Navigation Phase: %s\nUser Location: %s\n\nUser Message: %s", phase, loc, message)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
