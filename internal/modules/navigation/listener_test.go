package navigation

import (
	"context"
	"errors"
	"testing"
	"time"

	"bridgetalk/internal/speech"
)

type fakeRecognizer struct {
	started []speech.RecognitionRequest
	aborted []int64
	err     error
}

func (f *fakeRecognizer) Start(ctx context.Context, req speech.RecognitionRequest) error {
	if f.err != nil {
		return f.err
	}
	f.started = append(f.started, req)
	return nil
}

func (f *fakeRecognizer) Abort(id int64) { f.aborted = append(f.aborted, id) }

// manualTimers collects scheduled retries so tests can fire them.
type manualTimers struct {
	pending []func()
	delays  []time.Duration
	stopped int
}

func (m *manualTimers) schedule(d time.Duration, fn func()) func() {
	m.pending = append(m.pending, fn)
	m.delays = append(m.delays, d)
	return func() { m.stopped++ }
}

func (m *manualTimers) fire() {
	fns := m.pending
	m.pending = nil
	for _, fn := range fns {
		fn()
	}
}

func newTestListener(rec speech.Recognizer) (*Listener, *manualTimers, *int) {
	timers := &manualTimers{}
	retries := 0
	var l *Listener
	l = NewListener(rec, ListenerOptions{}, timers.schedule, func() {
		retries++
		_, _ = l.Start(context.Background(), false)
	})
	return l, timers, &retries
}

func TestListenerRetriesSilenceOnce(t *testing.T) {
	rec := &fakeRecognizer{}
	l, timers, retries := newTestListener(rec)

	id, err := l.Start(context.Background(), true)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if v := l.Failed(id, speech.ErrNoSpeech); v != VerdictRetry {
		t.Fatalf("first no-speech = %v, want retry", v)
	}
	if len(timers.delays) != 1 || timers.delays[0] != DefaultRetryDelay {
		t.Fatalf("delays = %v", timers.delays)
	}
	timers.fire()
	if *retries != 1 || len(rec.started) != 2 {
		t.Fatalf("retries = %d starts = %d", *retries, len(rec.started))
	}

	if v := l.Failed(l.Active(), speech.ErrNoSpeech); v != VerdictSurface {
		t.Fatalf("second no-speech = %v, want surface", v)
	}
	if len(timers.pending) != 0 {
		t.Errorf("unexpected retry scheduled")
	}
}

func TestListenerFreshStartResetsBudget(t *testing.T) {
	rec := &fakeRecognizer{}
	l, timers, _ := newTestListener(rec)

	id, _ := l.Start(context.Background(), true)
	l.Failed(id, speech.ErrNoSpeech)
	timers.fire()
	l.Failed(l.Active(), speech.ErrNoSpeech)

	id, _ = l.Start(context.Background(), true)
	if v := l.Failed(id, speech.ErrNoSpeech); v != VerdictRetry {
		t.Errorf("verdict after fresh start = %v, want retry", v)
	}
}

func TestListenerIgnoresStaleIDs(t *testing.T) {
	rec := &fakeRecognizer{}
	l, _, _ := newTestListener(rec)

	first, _ := l.Start(context.Background(), true)
	second, _ := l.Start(context.Background(), true)
	if first == second {
		t.Fatal("recognition ids repeated")
	}
	if len(rec.aborted) != 1 || rec.aborted[0] != first {
		t.Errorf("aborted = %v, want [%d]", rec.aborted, first)
	}

	if l.Accept(first, true) {
		t.Error("stale transcript accepted")
	}
	if v := l.Failed(first, speech.ErrNetwork); v != VerdictIgnore {
		t.Errorf("stale error = %v, want ignore", v)
	}
	if l.Ended(first) {
		t.Error("stale end accepted")
	}
	if !l.Accept(second, false) || l.Active() != second {
		t.Error("interim transcript should keep recognition live")
	}
	if !l.Accept(second, true) || l.Active() != 0 {
		t.Error("final transcript should complete recognition")
	}
}

func TestListenerAbortedIsIgnored(t *testing.T) {
	l, _, _ := newTestListener(&fakeRecognizer{})
	id, _ := l.Start(context.Background(), true)
	if v := l.Failed(id, speech.ErrAborted); v != VerdictIgnore {
		t.Errorf("aborted = %v, want ignore", v)
	}
}

func TestListenerOtherErrorsSurface(t *testing.T) {
	for _, kind := range []speech.ErrorKind{speech.ErrNotAllowed, speech.ErrNetwork, speech.ErrAudioCapture} {
		l, _, _ := newTestListener(&fakeRecognizer{})
		id, _ := l.Start(context.Background(), true)
		if v := l.Failed(id, kind); v != VerdictSurface {
			t.Errorf("%s = %v, want surface", kind, v)
		}
	}
}

func TestListenerReleaseCancelsRetry(t *testing.T) {
	rec := &fakeRecognizer{}
	l, timers, retries := newTestListener(rec)

	id, _ := l.Start(context.Background(), true)
	l.Failed(id, speech.ErrNoSpeech)
	l.Release()
	if timers.stopped != 1 {
		t.Errorf("stopped = %d, want 1", timers.stopped)
	}
	// The timer already fired before Release could stop it.
	timers.fire()
	if *retries != 0 {
		t.Errorf("retry ran after release")
	}
}

func TestListenerStartErrors(t *testing.T) {
	l, _, _ := newTestListener(nil)
	if _, err := l.Start(context.Background(), true); !errors.Is(err, speech.ErrNoRecognizer) {
		t.Errorf("err = %v, want ErrNoRecognizer", err)
	}

	boom := errors.New("busy")
	l, _, _ = newTestListener(&fakeRecognizer{err: boom})
	if _, err := l.Start(context.Background(), true); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if l.Active() != 0 {
		t.Errorf("active = %d after failed start", l.Active())
	}
}

func TestRecognitionMessage(t *testing.T) {
	spoken, _ := recognitionMessage(speech.ErrNotAllowed)
	if spoken != "Please allow microphone access in your browser settings." {
		t.Errorf("not-allowed = %q", spoken)
	}
	spoken, detail := recognitionMessage(speech.ErrAudioCapture)
	if spoken != "I didn't catch that. Tap to try again." || detail != "Speech error: audio-capture" {
		t.Errorf("audio-capture = %q / %q", spoken, detail)
	}
}
