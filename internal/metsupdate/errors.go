package metsupdate

import (
	"context"
	"errors"
	"fmt"
)

// State is a pipeline stage.
type State string

const (
	StateInit          State = "INIT"
	StateBackedUp      State = "BACKED_UP"
	StateScanned       State = "SCANNED"
	StateReconciled    State = "RECONCILED"
	StateValidated     State = "VALIDATED"
	StateWritten       State = "WRITTEN"
	StateDryRunSkipped State = "DRY_RUN_SKIPPED"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Kind classifies a fatal failure.
type Kind string

const (
	KindFilesystem Kind = "filesystem"
	KindParse      Kind = "parse"
	KindWrite      Kind = "write"
	KindValidation Kind = "validation"
	KindCanceled   Kind = "canceled"
	KindLocked     Kind = "locked"
)

var (
	ErrFilesystem = errors.New("filesystem error")
	ErrParse      = errors.New("parse error")
	ErrWrite      = errors.New("write error")
	ErrValidation = errors.New("validation error")
	ErrCanceled   = errors.New("run canceled")
	ErrLocked     = errors.New("workspace locked")
)

var kindSentinels = map[Kind]error{
	KindFilesystem: ErrFilesystem,
	KindParse:      ErrParse,
	KindWrite:      ErrWrite,
	KindValidation: ErrValidation,
	KindCanceled:   ErrCanceled,
	KindLocked:     ErrLocked,
}

// StageError is a fatal failure. State is the last state the run reached
// before it failed.
type StageError struct {
	State State
	Kind  Kind
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s error after %s: %v", e.Kind, e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, metsupdate.ErrParse).
func (e *StageError) Is(target error) bool {
	s, ok := kindSentinels[e.Kind]
	return ok && s == target
}

func stageError(state State, kind Kind, err error) *StageError {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		kind = KindCanceled
	}
	return &StageError{State: state, Kind: kind, Err: err}
}
