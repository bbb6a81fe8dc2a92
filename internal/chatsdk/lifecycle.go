package chatsdk

import (
	"sync"
	"time"

	"chatsdk/go-backend/internal/engine"
)

// Stage is the life stage of the client's engine session.
type Stage string

const (
	StageUninitialized Stage = "uninitialized"
	StageInitializing  Stage = "initializing"
	StageReady         Stage = "ready"
	StageStarted       Stage = "started"
	StageStopped       Stage = "stopped"
	StageDestroyed     Stage = "destroyed"
)

// Stages lists every stage in lifecycle order.
func Stages() []Stage {
	return []Stage{StageUninitialized, StageInitializing, StageReady, StageStarted, StageStopped, StageDestroyed}
}

// HasHandle reports whether a usable engine session exists in this stage.
func (s Stage) HasHandle() bool {
	switch s {
	case StageReady, StageStarted, StageStopped:
		return true
	default:
		return false
	}
}

// activeSession is present exactly while the engine handle may be used.
type activeSession struct {
	handle engine.Handle
}

// pendingInit buffers an init completion that arrived before Create returned.
type pendingInit struct {
	status    engine.Status
	payload   []byte
	createdAt time.Time
}

// lifecycle owns the stage and the session. mu guards the fields; gate is held
// shared across every engine call that dereferences the handle and exclusively
// while the handle is created or destroyed, so no call can race a destroy.
// The engine is never called with mu held, which keeps synchronous
// completions from deadlocking.
type lifecycle struct {
	gate sync.RWMutex

	mu          sync.Mutex
	stage       Stage
	session     *activeSession
	created     bool
	earlyInit   *pendingInit
	transitions int
	onChange    func(from, to Stage)
}

func newLifecycle(onChange func(from, to Stage)) *lifecycle {
	return &lifecycle{stage: StageUninitialized, onChange: onChange}
}

func (l *lifecycle) current() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stage
}

func (l *lifecycle) transitionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transitions
}

// beginInit moves Uninitialized to Initializing. Caller holds gate.
func (l *lifecycle) beginInit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.stage {
	case StageUninitialized:
	case StageDestroyed:
		return ErrDestroyed
	default:
		return ErrAlreadyInitialized
	}
	l.created = false
	l.earlyInit = nil
	l.transitionLocked(StageInitializing)
	return nil
}

// abortInit rolls back a Create that failed synchronously. Caller holds gate.
func (l *lifecycle) abortInit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage == StageInitializing {
		l.transitionLocked(StageUninitialized)
	}
	l.session = nil
	l.created = false
	l.earlyInit = nil
}

// attach records the handle returned by Create. An init completion that was
// delivered before Create returned is applied now and handed back so the
// caller can emit it once the gate is released, together with the handle to
// release when that completion reported failure. Caller holds gate.
func (l *lifecycle) attach(h engine.Handle) (*pendingInit, engine.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage != StageInitializing {
		return nil, nil
	}
	l.session = &activeSession{handle: h}
	l.created = true
	early := l.earlyInit
	if early == nil {
		return nil, nil
	}
	l.earlyInit = nil
	return early, l.finishInitLocked(early.status)
}

// completeInit applies the engine's init outcome and returns the handle to
// release when initialization failed. When Create has not returned yet the
// outcome is buffered for attach and deferred is true.
func (l *lifecycle) completeInit(outcome pendingInit) (failed engine.Handle, deferred bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage != StageInitializing {
		return nil, false
	}
	if !l.created {
		l.earlyInit = &outcome
		return nil, true
	}
	return l.finishInitLocked(outcome.status), false
}

func (l *lifecycle) finishInitLocked(status engine.Status) engine.Handle {
	if status.OK() {
		l.transitionLocked(StageReady)
		return nil
	}
	var failed engine.Handle
	if l.session != nil {
		failed = l.session.handle
	}
	l.session = nil
	l.created = false
	l.transitionLocked(StageUninitialized)
	return failed
}

// acquire returns the handle when the current stage is one of allowed. On
// success the caller holds gate shared and must call release.
func (l *lifecycle) acquire(notAllowed error, allowed ...Stage) (engine.Handle, error) {
	l.gate.RLock()
	l.mu.Lock()
	stage := l.stage
	session := l.session
	l.mu.Unlock()

	if session == nil || !stageIn(stage, allowed) {
		l.gate.RUnlock()
		return nil, notAllowed
	}
	return session.handle, nil
}

func (l *lifecycle) release() {
	l.gate.RUnlock()
}

// acquireExclusive is acquire for calls that end the session. On success the
// caller holds gate exclusively and must call releaseExclusive.
func (l *lifecycle) acquireExclusive(notAllowed error, allowed ...Stage) (engine.Handle, error) {
	l.gate.Lock()
	l.mu.Lock()
	stage := l.stage
	session := l.session
	l.mu.Unlock()

	if session == nil || !stageIn(stage, allowed) {
		l.gate.Unlock()
		return nil, notAllowed
	}
	return session.handle, nil
}

func (l *lifecycle) releaseExclusive() {
	l.gate.Unlock()
}

// markDestroyed invalidates the session. Caller holds gate exclusively.
func (l *lifecycle) markDestroyed() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.session = nil
	l.transitionLocked(StageDestroyed)
}

// completeStart moves Ready/Stopped to Started when the engine reports success.
func (l *lifecycle) completeStart(status engine.Status) {
	if !status.OK() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage == StageReady || l.stage == StageStopped {
		l.transitionLocked(StageStarted)
	}
}

// completeStop moves Started to Stopped regardless of the reported status.
func (l *lifecycle) completeStop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stage == StageStarted {
		l.transitionLocked(StageStopped)
	}
}

func (l *lifecycle) transitionLocked(next Stage) {
	if l.stage == next {
		return
	}
	prev := l.stage
	l.stage = next
	l.transitions++
	if l.onChange != nil {
		l.onChange(prev, next)
	}
}

func stageIn(stage Stage, allowed []Stage) bool {
	for _, s := range allowed {
		if s == stage {
			return true
		}
	}
	return false
}
