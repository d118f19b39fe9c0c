package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"bridgetalk/internal/ai"
)

type fakeAgent struct {
	res   *ai.IntentResult
	err   error
	calls int
	hints map[string]string
}

func (f *fakeAgent) ParseUserIntent(ctx context.Context, msg string, hints map[string]string) (*ai.IntentResult, error) {
	f.calls++
	f.hints = hints
	return f.res, f.err
}

func TestInterpretStartWordsSkipAgent(t *testing.T) {
	agent := &fakeAgent{res: &ai.IntentResult{Destination: "central park"}}
	in := NewInterpreter(agent, time.Second)

	cmd := in.Interpret(context.Background(), PhaseReady, "let's start now", nil)
	if cmd.Kind != CommandStart {
		t.Fatalf("kind = %v, want start", cmd.Kind)
	}
	if agent.calls != 0 {
		t.Errorf("agent called %d times, want 0", agent.calls)
	}
}

func TestInterpretStartWordsOnlyWhenReady(t *testing.T) {
	agent := &fakeAgent{res: &ai.IntentResult{Text: "Where to?"}}
	in := NewInterpreter(agent, time.Second)

	cmd := in.Interpret(context.Background(), PhaseIdle, "go", nil)
	if cmd.Kind != CommandNone || agent.calls != 1 {
		t.Fatalf("cmd = %+v calls = %d", cmd, agent.calls)
	}
	if cmd.Speech != "Where to?" {
		t.Errorf("speech = %q", cmd.Speech)
	}
}

func TestInterpretFallbackOnAgentFailure(t *testing.T) {
	in := NewInterpreter(&fakeAgent{err: errors.New("connection refused")}, time.Second)

	cmd := in.Interpret(context.Background(), PhaseIdle, "Navigate to Central Park", nil)
	if cmd.Kind != CommandRoute || cmd.Destination != "central park" {
		t.Fatalf("cmd = %+v, want route to central park", cmd)
	}
	if !cmd.Fallback || cmd.Err == nil {
		t.Errorf("fallback = %v err = %v", cmd.Fallback, cmd.Err)
	}
	if cmd.Speech != "I'll try to find central park" {
		t.Errorf("speech = %q", cmd.Speech)
	}
}

func TestInterpretFallbackWithoutPrefix(t *testing.T) {
	in := NewInterpreter(nil, 0)

	cmd := in.Interpret(context.Background(), PhaseIdle, "what's the weather", nil)
	if cmd.Kind != CommandNone || cmd.Fallback {
		t.Fatalf("cmd = %+v", cmd)
	}
	if !errors.Is(cmd.Err, ErrNoAgent) {
		t.Errorf("err = %v, want ErrNoAgent", cmd.Err)
	}
	if cmd.Speech != textAgentConfused {
		t.Errorf("speech = %q", cmd.Speech)
	}
}

func TestInterpretNilReplyIsFailure(t *testing.T) {
	in := NewInterpreter(&fakeAgent{}, 0)
	cmd := in.Interpret(context.Background(), PhaseIdle, "take me to the zoo", nil)
	if cmd.Kind != CommandRoute || cmd.Destination != "the zoo" {
		t.Fatalf("cmd = %+v", cmd)
	}
}

func TestInterpretShortDestinationIgnored(t *testing.T) {
	in := NewInterpreter(&fakeAgent{res: &ai.IntentResult{Destination: "ok", Text: "Sure"}}, 0)
	cmd := in.Interpret(context.Background(), PhaseIdle, "ok", nil)
	if cmd.Kind != CommandNone {
		t.Fatalf("kind = %v, want none", cmd.Kind)
	}
}

func TestInterpretAgentReplyStarts(t *testing.T) {
	agent := &fakeAgent{res: &ai.IntentResult{Message: "Okay, let's begin."}}
	in := NewInterpreter(agent, 0)

	cmd := in.Interpret(context.Background(), PhaseReady, "yes please", map[string]string{"phase": "ready"})
	if cmd.Kind != CommandStart {
		t.Fatalf("kind = %v, want start", cmd.Kind)
	}
	if agent.hints["phase"] != "ready" {
		t.Errorf("hints = %v", agent.hints)
	}
}

func TestInterpretAgentStartIntent(t *testing.T) {
	agent := &fakeAgent{res: &ai.IntentResult{Intent: "start", Reply: "Okay, off we head."}}
	in := NewInterpreter(agent, 0)

	cmd := in.Interpret(context.Background(), PhaseReady, "yes please", nil)
	if cmd.Kind != CommandStart || cmd.Speech != "Okay, off we head." {
		t.Fatalf("cmd = %+v, want start with reply", cmd)
	}
	// Without an armed route the same reply is only spoken.
	if cmd := in.Interpret(context.Background(), PhaseIdle, "yes please", nil); cmd.Kind != CommandNone {
		t.Fatalf("idle kind = %v, want none", cmd.Kind)
	}
}

func TestInterpretKeepsAgentAudio(t *testing.T) {
	in := NewInterpreter(&fakeAgent{res: &ai.IntentResult{
		Args:        map[string]any{"location": "Times Square"},
		OutputAudio: "bXAz",
		Reply:       "Finding Times Square",
	}}, 0)

	cmd := in.Interpret(context.Background(), PhaseIdle, "times square", nil)
	if cmd.Kind != CommandRoute || cmd.Destination != "Times Square" {
		t.Fatalf("cmd = %+v", cmd)
	}
	if cmd.Audio != "bXAz" || cmd.Speech != "Finding Times Square" {
		t.Errorf("audio = %q speech = %q", cmd.Audio, cmd.Speech)
	}
}

func TestExtractDestination(t *testing.T) {
	cases := []struct {
		name string
		res  *ai.IntentResult
		want string
	}{
		{"nil", nil, ""},
		{"top level", &ai.IntentResult{Destination: "Union Square", Args: map[string]any{"destination": "other"}}, "Union Square"},
		{"args before parameters", &ai.IntentResult{
			Args:       map[string]any{"city": "Boston"},
			Parameters: map[string]any{"destination": "Chicago"},
		}, "Boston"},
		{"parameters before data", &ai.IntentResult{
			Parameters: map[string]any{"geo-city": "Paris"},
			Data:       map[string]any{"destination": "Rome"},
		}, "Paris"},
		{"key order", &ai.IntentResult{Data: map[string]any{"sys.any": "b", "address": "a"}}, "a"},
		{"original", &ai.IntentResult{Destination: map[string]any{"original": "the mall", "value": "Mall"}}, "the mall"},
		{"value", &ai.IntentResult{Args: map[string]any{"place": map[string]any{"value": "Library"}}}, "Library"},
		{"json object", &ai.IntentResult{Args: map[string]any{"place": map[string]any{"lat": 1.5}}}, `{"lat":1.5}`},
		{"empty object", &ai.IntentResult{Destination: map[string]any{}, Args: map[string]any{"geo_city": "Oslo"}}, "Oslo"},
		{"numbers ignored", &ai.IntentResult{Args: map[string]any{"destination": 42.0}}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractDestination(tc.res); got != tc.want {
				t.Errorf("ExtractDestination = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPrefixDestination(t *testing.T) {
	cases := map[string]string{
		"navigate to central park":  "central park",
		"  Take me to THE Museum  ": "the museum",
		"find coffee":               "coffee",
		"search for pharmacy":       "pharmacy",
		"directions to airport":     "airport",
		"go to":                     "",
		"hello there":               "",
	}
	for in, want := range cases {
		if got := PrefixDestination(in); got != want {
			t.Errorf("PrefixDestination(%q) = %q, want %q", in, got, want)
		}
	}
}
