package navigation

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"bridgetalk/internal/types"
)

// metersPerDegreeLat is exact for the haversine sphere along a meridian.
const metersPerDegreeLat = 6371000.0 * 3.141592653589793 / 180

type recordingAnnouncer struct {
	said []string
}

func (r *recordingAnnouncer) Say(text string) { r.said = append(r.said, text) }

func (r *recordingAnnouncer) count(prefix string) int {
	n := 0
	for _, s := range r.said {
		if strings.HasPrefix(s, prefix) {
			n++
		}
	}
	return n
}

// north returns the point d meters north of p.
func north(p types.Point, d float64) types.Point {
	return types.Point{Lat: p.Lat + d/metersPerDegreeLat, Lng: p.Lng}
}

func testRoute() Route {
	base := types.Point{Lat: 40.0, Lng: -73.0}
	return Route{
		Steps: []RouteStep{
			{EndLocation: base, InstructionHTML: "Head <b>north</b> on Main St", DistanceText: "200 m", TravelMode: TravelWalking},
			{EndLocation: north(base, 500), InstructionHTML: "Turn <b>left</b> onto 5th Ave", DistanceText: "500 m", TravelMode: TravelWalking},
			{EndLocation: north(base, 900), InstructionHTML: "Destination will be on the <div>right</div>", DistanceText: "400 m", TravelMode: TravelWalking},
		},
		TotalDistanceText: "1.1 km",
		TotalDurationText: "14 mins",
		TravelMode:        TravelWalking,
	}
}

func navigatingMachine(t *testing.T) (*Machine, *recordingAnnouncer) {
	t.Helper()
	say := &recordingAnnouncer{}
	m := NewMachine(Thresholds{}, say)
	m.Processing("central park")
	m.RouteReady(testRoute(), "summary")
	if _, ok := m.Start("go"); !ok {
		t.Fatal("Start failed")
	}
	say.said = nil
	return m, say
}

func TestStripHTML(t *testing.T) {
	got := StripHTML(`Turn <b>left</b> onto <span class="x">Main</span> St<div style="font-size:0.9em">Pass by a cafe</div>`)
	want := "Turn left onto Main StPass by a cafe"
	if got != want {
		t.Errorf("StripHTML = %q, want %q", got, want)
	}
}

func TestAnnouncementExactlyOnce(t *testing.T) {
	m, say := navigatingMachine(t)
	end := testRoute().Steps[0].EndLocation

	var announcedAt []int
	for i, d := range []float64{60, 45, 40, 30, 45, 20} {
		if p := m.Observe(north(end, d)); p.Announced {
			announcedAt = append(announcedAt, i)
		}
	}
	if len(announcedAt) != 1 || announcedAt[0] != 1 {
		t.Fatalf("announced at fixes %v, want [1]", announcedAt)
	}
	if say.count("In 200 m, Head north on Main St") != 1 {
		t.Errorf("said = %q", say.said)
	}
	snap := m.Snapshot()
	if snap.CurrentStepIndex != 0 || snap.LastAnnouncedStepIndex != 0 {
		t.Errorf("indices = %d/%d, want 0/0", snap.CurrentStepIndex, snap.LastAnnouncedStepIndex)
	}
	if snap.Instruction != "Head north on Main St" {
		t.Errorf("instruction = %q", snap.Instruction)
	}
}

func TestSingleFixAnnouncesAndAdvances(t *testing.T) {
	m, say := navigatingMachine(t)
	route := testRoute()

	p := m.Observe(north(route.Steps[0].EndLocation, 5))
	if !p.Announced || !p.Advanced {
		t.Fatalf("progress = %+v, want announced and advanced", p)
	}
	if got := m.Snapshot().CurrentStepIndex; got != 1 {
		t.Fatalf("current = %d, want 1", got)
	}

	p = m.Observe(route.Steps[1].EndLocation)
	if !p.Announced || !p.Advanced {
		t.Fatalf("progress = %+v, want announced and advanced", p)
	}
	if say.count("In 500 m, Turn left onto 5th Ave") != 1 {
		t.Errorf("said = %q", say.said)
	}
}

func TestAdvancementMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	route := testRoute()
	for run := 0; run < 50; run++ {
		m, _ := navigatingMachine(t)
		prev := 0
		for i := 0; i < 200 && m.Phase() == PhaseNavigating; i++ {
			target := route.Steps[rng.Intn(len(route.Steps))].EndLocation
			pos := north(target, rng.Float64()*120-60)
			m.Observe(pos)
			cur := m.Snapshot().CurrentStepIndex
			if cur < prev {
				t.Fatalf("run %d fix %d: index went %d -> %d", run, i, prev, cur)
			}
			if cur > prev+1 {
				t.Fatalf("run %d fix %d: index jumped %d -> %d", run, i, prev, cur)
			}
			if m.Phase() == PhaseNavigating && cur >= len(route.Steps) {
				t.Fatalf("index %d out of range while navigating", cur)
			}
			if snap := m.Snapshot(); snap.LastAnnouncedStepIndex > snap.CurrentStepIndex {
				t.Fatalf("last announced %d > current %d", snap.LastAnnouncedStepIndex, snap.CurrentStepIndex)
			}
			prev = cur
		}
	}
}

func TestArrivalIsTerminal(t *testing.T) {
	m, say := navigatingMachine(t)
	route := testRoute()
	for _, st := range route.Steps[:2] {
		m.Observe(st.EndLocation)
	}
	if m.Snapshot().CurrentStepIndex != 2 {
		t.Fatalf("current = %d, want 2", m.Snapshot().CurrentStepIndex)
	}

	last := route.Steps[2].EndLocation
	p := m.Observe(north(last, 10))
	if !p.Arrived {
		t.Fatalf("progress = %+v, want arrived", p)
	}
	for i := 0; i < 5; i++ {
		if p := m.Observe(north(last, float64(i))); p != (Progress{}) {
			t.Fatalf("fix after arrival produced %+v", p)
		}
	}

	if got := say.count(textArrived); got != 1 {
		t.Errorf("arrival announced %d times, want 1", got)
	}
	snap := m.Snapshot()
	if snap.Phase != PhaseIdle || snap.Instruction != textJourneyDone || snap.StepCount != 0 {
		t.Errorf("snapshot after arrival = %+v", snap)
	}
	if _, ok := m.Start("again"); ok {
		t.Errorf("Start succeeded without a new route")
	}
}

func TestStartAppliesKnownPosition(t *testing.T) {
	say := &recordingAnnouncer{}
	m := NewMachine(Thresholds{}, say)
	route := testRoute()

	m.Processing("somewhere")
	// A fix arriving while the route request is pending.
	m.Observe(north(route.Steps[0].EndLocation, 30))
	m.RouteReady(route, "summary")

	p, ok := m.Start(textStartVoice)
	if !ok {
		t.Fatal("Start failed")
	}
	if !p.Announced {
		t.Errorf("pending fix was not applied on start: %+v", p)
	}
	if m.Journey().StepCount != 3 || m.Journey().Destination != "somewhere" {
		t.Errorf("journey = %+v", m.Journey())
	}
}

func TestTapByPhase(t *testing.T) {
	say := &recordingAnnouncer{}
	m := NewMachine(Thresholds{}, say)

	if res, _ := m.Tap(); res != TapPrompt {
		t.Fatalf("idle tap = %v, want prompt", res)
	}

	m.Listen()
	if res, _ := m.Tap(); res != TapIgnored {
		t.Fatalf("listening tap = %v, want ignored", res)
	}

	m.Processing("x")
	if res, _ := m.Tap(); res != TapIgnored {
		t.Fatalf("processing tap = %v, want ignored", res)
	}

	m.RouteReady(testRoute(), "summary")
	if res, _ := m.Tap(); res != TapStarted || m.Phase() != PhaseNavigating {
		t.Fatalf("ready tap = %v phase %v", res, m.Phase())
	}
	if say.said[len(say.said)-1] != textStartTap {
		t.Errorf("start text = %q", say.said[len(say.said)-1])
	}

	if res, _ := m.Tap(); res != TapRepeated {
		t.Fatalf("navigating tap = %v, want repeated", res)
	}
	if say.said[len(say.said)-1] != "Current instruction: Head north on Main St" {
		t.Errorf("repeat text = %q", say.said[len(say.said)-1])
	}

	m.Fail(&Failure{Code: CodeLocationUnavailable, Spoken: "x", Detail: "y"})
	if res, _ := m.Tap(); res != TapPrompt || m.Phase() != PhaseIdle || m.Snapshot().Error != "" {
		t.Fatalf("error tap = %v phase %v err %q", res, m.Phase(), m.Snapshot().Error)
	}
}

func TestRouteReadyRejectsEmptyRoute(t *testing.T) {
	m := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m.Processing("x")
	m.RouteReady(Route{}, "summary")
	if snap := m.Snapshot(); snap.Phase != PhaseError || snap.Error != CodeRouteNotFound {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestListenFromReadyKeepsRouteArmed(t *testing.T) {
	m := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m.Processing("x")
	m.RouteReady(testRoute(), "summary")

	if !m.Listen() {
		t.Fatal("Listen from ready refused")
	}
	phase, ok := m.Transcript("let's start now")
	if !ok || phase != PhaseReady {
		t.Fatalf("Transcript = %v, %v; want ready", phase, ok)
	}
	if action, _ := m.ResolveCommand(Command{Kind: CommandStart}); action != ActionStart {
		t.Fatalf("action = %v, want start", action)
	}
	if m.Phase() != PhaseNavigating {
		t.Fatalf("phase = %v", m.Phase())
	}
	if m.Listen() {
		t.Errorf("Listen allowed while navigating")
	}
}

func TestResolveCommandWithoutAction(t *testing.T) {
	m := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m.Processing("x")
	m.RouteReady(testRoute(), "summary")
	m.Listen()
	m.Transcript("hmm")
	m.ResolveCommand(Command{Speech: "How can I help?"})
	if m.Phase() != PhaseReady {
		t.Errorf("phase = %v, want ready with armed route", m.Phase())
	}

	m2 := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m2.Listen()
	m2.Transcript("blah")
	m2.ResolveCommand(Command{Speech: textAgentConfused, Err: errors.New("timeout")})
	snap := m2.Snapshot()
	if snap.Phase != PhaseIdle || snap.Error != CodeRemoteAgent {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestResolveCommandRoute(t *testing.T) {
	m := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m.Listen()
	m.Transcript("navigate to central park")
	action, _ := m.ResolveCommand(Command{Kind: CommandRoute, Destination: "central park", Fallback: true, Err: errors.New("down")})
	if action != ActionRoute {
		t.Fatalf("action = %v", action)
	}
	if snap := m.Snapshot(); snap.Phase != PhaseProcessing || snap.Destination != "central park" || snap.Error != "" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestRecognitionEndedSettles(t *testing.T) {
	m := NewMachine(Thresholds{}, &recordingAnnouncer{})
	m.Listen()
	m.RecognitionEnded()
	if m.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want idle", m.Phase())
	}
}

func TestLocationTroubleOncePerStreak(t *testing.T) {
	say := &recordingAnnouncer{}
	m := NewMachine(Thresholds{}, say)
	if !m.LocationTrouble("lost") || m.LocationTrouble("lost") {
		t.Fatal("streak not deduplicated")
	}
	m.Observe(types.Point{Lat: 1, Lng: 1})
	if !m.LocationTrouble("lost") {
		t.Fatal("new streak not spoken")
	}
	if say.count("lost") != 2 {
		t.Errorf("said = %v", say.said)
	}
}

func TestCancel(t *testing.T) {
	m, say := navigatingMachine(t)
	if !m.Cancel() {
		t.Fatal("Cancel did not report navigating")
	}
	if snap := m.Snapshot(); snap.Phase != PhaseIdle || snap.StepCount != 0 || snap.Destination != "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if say.count(textStopped) != 1 {
		t.Errorf("said = %v", say.said)
	}
}

func TestCustomThresholds(t *testing.T) {
	m := NewMachine(Thresholds{AnnounceMeters: 100, AdvanceMeters: 30}, &recordingAnnouncer{})
	m.Processing("x")
	m.RouteReady(testRoute(), "s")
	m.Start("go")
	end := testRoute().Steps[0].EndLocation
	if p := m.Observe(north(end, 90)); !p.Announced || p.Advanced {
		t.Errorf("90 m: %+v", p)
	}
	if p := m.Observe(north(end, 25)); !p.Advanced {
		t.Errorf("25 m: %+v", p)
	}
}
