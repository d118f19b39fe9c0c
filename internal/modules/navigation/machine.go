// README: Machine is the synchronous navigation state machine: phases, step tracking, announcements.
package navigation

import (
	"fmt"
	"regexp"

	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/types"
)

const (
	DefaultAnnounceMeters = 50.0
	DefaultAdvanceMeters  = 15.0
)

// Spoken and displayed texts.
const (
	textIdle          = "Tap screen to begin navigation"
	textListening     = "Listening... Where do you want to go?"
	textProcessing    = "Finding route..."
	textPrompt        = "Where do you want to go?"
	textStartTap      = "Starting navigation. I will guide you with turn by turn directions."
	textStartVoice    = "Starting navigation."
	textArrived       = "You have arrived at your destination!"
	textJourneyDone   = "Journey complete!"
	textStopped       = "Navigation stopped."
	textAgentConfused = "I'm having trouble understanding. Please try again."
)

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// StripHTML removes markup from a step instruction.
func StripHTML(s string) string {
	return htmlTag.ReplaceAllString(s, "")
}

// Announcer speaks text on behalf of the machine.
type Announcer interface {
	Say(text string)
}

type Thresholds struct {
	AnnounceMeters float64
	AdvanceMeters  float64
}

func (t Thresholds) withDefaults() Thresholds {
	if t.AnnounceMeters <= 0 {
		t.AnnounceMeters = DefaultAnnounceMeters
	}
	if t.AdvanceMeters <= 0 {
		t.AdvanceMeters = DefaultAdvanceMeters
	}
	return t
}

// TapResult tells the session what a screen tap did.
type TapResult int

const (
	TapIgnored TapResult = iota
	TapStarted
	TapRepeated
	// TapPrompt means the caller should ask for a destination and listen
	// once the prompt has been spoken.
	TapPrompt
)

// Action is what the session must do after a command was resolved.
type Action int

const (
	ActionNone Action = iota
	ActionRoute
	ActionStart
)

// Journey describes the route most recently started.
type Journey struct {
	Destination string
	Mode        TravelMode
	StepCount   int
}

// Progress reports what one position fix did.
type Progress struct {
	Distance  float64
	Announced bool
	Advanced  bool
	Arrived   bool
}

// Machine holds one navigation session's state. It is not safe for
// concurrent use; the session loop is its only caller.
type Machine struct {
	th  Thresholds
	say Announcer

	phase       Phase
	destination string
	route       *Route

	// armed is set while a route waits for "start", including while the user
	// is talking from READY.
	armed         bool
	current       int
	lastAnnounced int
	position      *types.Point
	instruction   string
	errCode       ErrorCode
	errDetail     string
	locTrouble    bool
	journey       Journey
}

func NewMachine(th Thresholds, say Announcer) *Machine {
	return &Machine{
		th:            th.withDefaults(),
		say:           say,
		phase:         PhaseIdle,
		lastAnnounced: -1,
		instruction:   textIdle,
	}
}

func (m *Machine) Phase() Phase { return m.phase }

// Armed reports whether a route is waiting for "start".
func (m *Machine) Armed() bool { return m.armed }

// Position is the most recent fix seen in any phase.
func (m *Machine) Position() (types.Point, bool) {
	if m.position == nil {
		return types.Point{}, false
	}
	return *m.position, true
}

// Journey returns the route most recently started.
func (m *Machine) Journey() Journey { return m.journey }

// Route returns the current route, if any.
func (m *Machine) Route() (Route, bool) {
	if m.route == nil {
		return Route{}, false
	}
	return *m.route, true
}

// Snapshot returns the externally visible state without identity fields.
func (m *Machine) Snapshot() Snapshot {
	s := Snapshot{
		Phase:                  m.phase,
		Destination:            m.destination,
		CurrentStepIndex:       m.current,
		LastAnnouncedStepIndex: m.lastAnnounced,
		Instruction:            m.instruction,
		Error:                  m.errCode,
		ErrorDetail:            m.errDetail,
	}
	if m.route != nil {
		s.StepCount = len(m.route.Steps)
	}
	if m.position != nil {
		p := *m.position
		s.CurrentPosition = &p
	}
	return s
}

// Listen enters LISTENING. Not allowed while a route request is in flight or
// while navigating.
func (m *Machine) Listen() bool {
	switch m.phase {
	case PhaseProcessing, PhaseNavigating:
		return false
	}
	m.phase = PhaseListening
	m.clearError()
	m.instruction = textListening
	return true
}

// Transcript moves LISTENING to PROCESSING and returns the phase the
// transcript should be interpreted in.
func (m *Machine) Transcript(text string) (Phase, bool) {
	if m.phase != PhaseListening {
		return "", false
	}
	m.phase = PhaseProcessing
	m.instruction = textProcessing
	if m.armed {
		return PhaseReady, true
	}
	return PhaseIdle, true
}

// Interim shows a partial transcript while listening.
func (m *Machine) Interim(text string) {
	if m.phase == PhaseListening && text != "" {
		m.instruction = text
	}
}

// Processing records a destination whose route request is in flight.
func (m *Machine) Processing(destination string) {
	m.phase = PhaseProcessing
	m.destination = destination
	m.instruction = textProcessing
	m.clearError()
}

// RouteReady stores a new route and speaks its summary.
func (m *Machine) RouteReady(route Route, summary string) {
	if len(route.Steps) == 0 {
		m.Fail(&Failure{Code: CodeRouteNotFound, Spoken: msgRouteGeneric, Detail: "Route not found"})
		return
	}
	r := route
	m.route = &r
	m.armed = true
	m.phase = PhaseReady
	m.current = 0
	m.lastAnnounced = -1
	m.clearError()
	m.instruction = summary
	m.say.Say(summary)
}

// Fail enters ERROR with a spoken reason. An armed route is dropped.
func (m *Machine) Fail(f *Failure) {
	m.phase = PhaseError
	m.armed = false
	m.route = nil
	m.errCode = f.Code
	m.errDetail = f.Detail
	if f.Detail != "" {
		m.instruction = f.Detail
	}
	if f.Spoken != "" {
		m.say.Say(f.Spoken)
	}
}

// Start begins turn-by-turn guidance on the armed route and immediately
// applies the latest known position.
func (m *Machine) Start(spoken string) (Progress, bool) {
	if !m.armed || m.route == nil || len(m.route.Steps) == 0 {
		return Progress{}, false
	}
	m.armed = false
	m.journey = Journey{Destination: m.destination, Mode: m.route.TravelMode, StepCount: len(m.route.Steps)}
	m.phase = PhaseNavigating
	m.current = 0
	m.lastAnnounced = -1
	m.clearError()
	m.instruction = StripHTML(m.route.Steps[0].InstructionHTML)
	m.say.Say(spoken)
	if m.position == nil {
		return Progress{}, true
	}
	return m.Observe(*m.position), true
}

// Observe records a fix and, while navigating, runs step tracking.
func (m *Machine) Observe(pos types.Point) Progress {
	p := pos
	m.position = &p
	m.locTrouble = false
	if m.phase != PhaseNavigating || m.route == nil {
		return Progress{}
	}

	steps := m.route.Steps
	if m.current >= len(steps) {
		m.arrive()
		return Progress{Arrived: true}
	}

	step := steps[m.current]
	d := location.HaversineMeters(pos, step.EndLocation)
	res := Progress{Distance: d}

	if d <= m.th.AnnounceMeters && m.lastAnnounced != m.current {
		clean := StripHTML(step.InstructionHTML)
		m.instruction = clean
		m.say.Say(fmt.Sprintf("In %s, %s", step.DistanceText, clean))
		m.lastAnnounced = m.current
		res.Announced = true
	}

	if d < m.th.AdvanceMeters {
		res.Advanced = true
		if m.current+1 < len(steps) {
			m.current++
		} else {
			m.arrive()
			res.Arrived = true
		}
	}
	return res
}

// Tap handles a screen tap.
func (m *Machine) Tap() (TapResult, Progress) {
	switch m.phase {
	case PhaseListening, PhaseProcessing:
		return TapIgnored, Progress{}
	case PhaseReady:
		p, ok := m.Start(textStartTap)
		if !ok {
			return TapIgnored, Progress{}
		}
		return TapStarted, p
	case PhaseNavigating:
		m.RepeatInstruction()
		return TapRepeated, Progress{}
	default:
		if m.phase == PhaseError {
			m.phase = PhaseIdle
			m.clearError()
		}
		return TapPrompt, Progress{}
	}
}

// RepeatInstruction speaks the current step again.
func (m *Machine) RepeatInstruction() bool {
	if m.phase != PhaseNavigating || m.route == nil || m.current >= len(m.route.Steps) {
		return false
	}
	m.say.Say("Current instruction: " + StripHTML(m.route.Steps[m.current].InstructionHTML))
	return true
}

// Cancel stops guidance and drops the route. It reports whether the user was
// navigating.
func (m *Machine) Cancel() bool {
	wasNavigating := m.phase == PhaseNavigating
	hadRoute := m.route != nil
	m.phase = PhaseIdle
	m.route = nil
	m.armed = false
	m.destination = ""
	m.current = 0
	m.lastAnnounced = -1
	m.clearError()
	m.instruction = textIdle
	if wasNavigating || hadRoute {
		m.say.Say(textStopped)
	}
	return wasNavigating
}

// ResolveCommand applies an interpreted command while PROCESSING.
func (m *Machine) ResolveCommand(cmd Command) (Action, Progress) {
	if m.phase != PhaseProcessing {
		return ActionNone, Progress{}
	}
	switch cmd.Kind {
	case CommandRoute:
		m.Processing(cmd.Destination)
		return ActionRoute, Progress{}
	case CommandStart:
		if p, ok := m.Start(textStartVoice); ok {
			return ActionStart, p
		}
	}

	if cmd.Err != nil && !cmd.Fallback {
		m.phase = PhaseIdle
		m.armed = false
		m.route = nil
		m.errCode = CodeRemoteAgent
		m.errDetail = "Agent Error: " + cmd.Err.Error()
		m.instruction = textIdle
		return ActionNone, Progress{}
	}
	m.settle()
	return ActionNone, Progress{}
}

// RecognitionEnded handles a recognition that finished without a transcript.
func (m *Machine) RecognitionEnded() {
	if m.phase == PhaseListening {
		m.settle()
	}
}

// RecognitionFailed surfaces a recognizer error.
func (m *Machine) RecognitionFailed(spoken, detail string) {
	m.Fail(&Failure{Code: CodeSpeechRecognition, Spoken: spoken, Detail: detail})
}

// LocationTrouble speaks a transient location problem once per streak of
// errors; the next fix ends the streak.
func (m *Machine) LocationTrouble(spoken string) bool {
	if m.locTrouble {
		return false
	}
	m.locTrouble = true
	m.say.Say(spoken)
	return true
}

// settle returns to READY when a route is armed, else IDLE.
func (m *Machine) settle() {
	if m.armed && m.route != nil {
		m.phase = PhaseReady
		m.instruction = "Ready! Tap or say 'Start'"
		return
	}
	m.phase = PhaseIdle
	m.instruction = textIdle
}

func (m *Machine) arrive() {
	m.say.Say(textArrived)
	m.phase = PhaseIdle
	m.instruction = textJourneyDone
	m.destination = ""
	m.route = nil
	m.armed = false
}

func (m *Machine) clearError() {
	m.errCode = ""
	m.errDetail = ""
}
