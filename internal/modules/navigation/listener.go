// README: Listener owns the session's speech recognizer: one recognition at a time, silence retried once.
package navigation

import (
	"context"
	"time"

	"bridgetalk/internal/speech"
)

const DefaultRetryDelay = 400 * time.Millisecond

// Verdict is what the session should do with a recognizer error.
type Verdict int

const (
	// VerdictIgnore covers stale recognitions and our own aborts.
	VerdictIgnore Verdict = iota
	// VerdictRetry means a restart has been scheduled.
	VerdictRetry
	VerdictSurface
)

// Scheduler runs fn after d on the session loop. The returned func cancels it.
type Scheduler func(d time.Duration, fn func()) (stop func())

type ListenerOptions struct {
	Lang       string
	Interim    bool
	RetryDelay time.Duration
	MaxRetries int
}

// Listener is driven only from the session loop.
type Listener struct {
	rec      speech.Recognizer
	opts     ListenerOptions
	schedule Scheduler
	onRetry  func()

	nextID    int64
	active    int64
	retries   int
	stopTimer func()
	// retryGen invalidates a retry whose timer already fired.
	retryGen int
}

// NewListener wires a recognizer. onRetry runs on the loop when a silence
// retry is due and should call Start(ctx, false).
func NewListener(rec speech.Recognizer, opts ListenerOptions, schedule Scheduler, onRetry func()) *Listener {
	if opts.Lang == "" {
		opts.Lang = "en-US"
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 1
	}
	return &Listener{rec: rec, opts: opts, schedule: schedule, onRetry: onRetry}
}

// Start aborts any in-flight recognition and starts a new one. fresh resets
// the silence retry budget; the retry path passes false.
func (l *Listener) Start(ctx context.Context, fresh bool) (int64, error) {
	if l.rec == nil {
		return 0, speech.ErrNoRecognizer
	}
	l.cancelTimer()
	l.abortActive()
	if fresh {
		l.retries = 0
	}

	l.nextID++
	id := l.nextID
	err := l.rec.Start(ctx, speech.RecognitionRequest{
		ID:      id,
		Lang:    l.opts.Lang,
		Interim: l.opts.Interim,
	})
	if err != nil {
		return 0, err
	}
	l.active = id
	return id, nil
}

// Active returns the live recognition id, 0 when idle.
func (l *Listener) Active() int64 { return l.active }

// Accept reports whether a transcript for id is current. A final transcript
// completes the recognition.
func (l *Listener) Accept(id int64, final bool) bool {
	if id == 0 || id != l.active {
		return false
	}
	if final {
		l.active = 0
	}
	return true
}

// Ended reports whether id was the live recognition.
func (l *Listener) Ended(id int64) bool {
	if id == 0 || id != l.active {
		return false
	}
	l.active = 0
	return true
}

// Failed classifies a recognizer error and schedules the silence retry.
func (l *Listener) Failed(id int64, kind speech.ErrorKind) Verdict {
	if id == 0 || id != l.active {
		return VerdictIgnore
	}
	l.active = 0
	switch kind {
	case speech.ErrAborted:
		return VerdictIgnore
	case speech.ErrNoSpeech:
		if l.retries < l.opts.MaxRetries {
			l.retries++
			l.cancelTimer()
			gen := l.retryGen
			l.stopTimer = l.schedule(l.opts.RetryDelay, func() {
				if gen != l.retryGen {
					return
				}
				l.stopTimer = nil
				l.onRetry()
			})
			recognitionRetries.Inc()
			return VerdictRetry
		}
	}
	return VerdictSurface
}

// Release cancels a pending retry and aborts the live recognition.
func (l *Listener) Release() {
	l.cancelTimer()
	l.abortActive()
}

func (l *Listener) abortActive() {
	if l.active != 0 {
		l.rec.Abort(l.active)
		l.active = 0
	}
}

func (l *Listener) cancelTimer() {
	l.retryGen++
	if l.stopTimer != nil {
		l.stopTimer()
		l.stopTimer = nil
	}
}

// recognitionMessage is the spoken sentence for a surfaced recognizer error.
func recognitionMessage(kind speech.ErrorKind) (spoken, detail string) {
	switch kind {
	case speech.ErrNotAllowed:
		return "Please allow microphone access in your browser settings.", "Microphone access denied"
	case speech.ErrNoSpeech:
		return "I didn't hear anything. Tap to try again.", "No speech detected"
	case speech.ErrNetwork:
		return "Please check your internet connection.", "Speech network error"
	default:
		return "I didn't catch that. Tap to try again.", "Speech error: " + string(kind)
	}
}
