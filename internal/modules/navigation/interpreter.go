// README: Interpreter turns a spoken transcript into a start command or a destination.
package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"bridgetalk/internal/ai"
)

type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandStart
	CommandRoute
)

func (k CommandKind) String() string {
	switch k {
	case CommandStart:
		return "start"
	case CommandRoute:
		return "route"
	default:
		return "none"
	}
}

// Command is the interpretation of one transcript. Speech and Audio are the
// agent's reply and are played whatever the kind.
type Command struct {
	Kind        CommandKind
	Destination string
	Speech      string
	Audio       string
	// Fallback is set when the destination came from local prefix matching
	// after the agent failed.
	Fallback bool
	Err      error
}

var (
	startWords     = []string{"start", "begin", "go"}
	replyStarts    = []string{"start", "begin"}
	payloadKeys    = []string{"destination", "location", "address", "place", "geo-city", "geo_city", "city", "sys.any"}
	fallbackPrefix = []string{"navigate to", "go to", "take me to", "find", "search for", "directions to"}
)

const minDestinationLen = 3

type Interpreter struct {
	agent   ai.LLMProvider
	timeout time.Duration
}

// NewInterpreter accepts a nil agent; every transcript then goes through
// local prefix matching.
func NewInterpreter(agent ai.LLMProvider, timeout time.Duration) *Interpreter {
	return &Interpreter{agent: agent, timeout: timeout}
}

// Interpret resolves a transcript heard in phase. hints is passed to the agent.
func (in *Interpreter) Interpret(ctx context.Context, phase Phase, transcript string, hints map[string]string) Command {
	if phase == PhaseReady && containsAny(transcript, startWords) {
		return Command{Kind: CommandStart}
	}

	res, err := in.ask(ctx, transcript, hints)
	if err != nil {
		agentFallbacks.Inc()
		log.Printf("navigation: agent failed, using prefix fallback: %v", err)
		return fallbackCommand(transcript, err)
	}

	cmd := Command{Speech: res.SpokenText(), Audio: res.OutputAudio}
	if dest := strings.TrimSpace(ExtractDestination(res)); len(dest) >= minDestinationLen {
		cmd.Kind = CommandRoute
		cmd.Destination = dest
		return cmd
	}
	if phase == PhaseReady && (strings.EqualFold(strings.TrimSpace(res.Intent), "start") || containsAny(cmd.Speech, replyStarts)) {
		cmd.Kind = CommandStart
	}
	return cmd
}

func (in *Interpreter) ask(ctx context.Context, transcript string, hints map[string]string) (*ai.IntentResult, error) {
	if in.agent == nil {
		return nil, ErrNoAgent
	}
	if in.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.timeout)
		defer cancel()
	}
	res, err := in.agent.ParseUserIntent(ctx, transcript, hints)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("agent returned an empty reply")
	}
	return res, nil
}

// ExtractDestination reads the destination from an agent reply: the top-level
// field first, then args, parameters and data in that order.
func ExtractDestination(res *ai.IntentResult) string {
	if res == nil {
		return ""
	}
	if v := slotString(res.Destination); v != "" {
		return v
	}
	for _, payload := range []map[string]any{res.Args, res.Parameters, res.Data} {
		if v := payloadDestination(payload); v != "" {
			return v
		}
	}
	return ""
}

func payloadDestination(payload map[string]any) string {
	for _, key := range payloadKeys {
		if v := slotString(payload[key]); v != "" {
			return v
		}
	}
	return ""
}

// slotString unwraps one slot value. Objects prefer "original", then "value",
// then their JSON text. Other scalar types are not destinations.
func slotString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if len(val) == 0 {
			return ""
		}
		for _, k := range []string{"original", "value"} {
			if s := truthyString(val[k]); s != "" {
				return s
			}
		}
		return jsonString(val)
	case []any:
		if len(val) == 0 {
			return ""
		}
		return jsonString(val)
	default:
		return ""
	}
}

func truthyString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if !val {
			return ""
		}
		return "true"
	case float64:
		if val == 0 {
			return ""
		}
		return fmt.Sprint(val)
	default:
		return jsonString(val)
	}
}

func jsonString(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// fallbackCommand strips a known command prefix from the transcript.
func fallbackCommand(transcript string, cause error) Command {
	if dest := PrefixDestination(transcript); dest != "" {
		return Command{
			Kind:        CommandRoute,
			Destination: dest,
			Speech:      "I'll try to find " + dest,
			Fallback:    true,
			Err:         cause,
		}
	}
	return Command{Speech: textAgentConfused, Err: cause}
}

// PrefixDestination returns the lower-cased remainder after the first
// matching command prefix, or "".
func PrefixDestination(transcript string) string {
	t := strings.ToLower(strings.TrimSpace(transcript))
	for _, prefix := range fallbackPrefix {
		if strings.HasPrefix(t, prefix) {
			return strings.TrimSpace(t[len(prefix):])
		}
	}
	return ""
}

func containsAny(s string, words []string) bool {
	s = strings.ToLower(s)
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
