package ingest

import (
	"errors"
	"fmt"
)

// Outcome classes. Every pipeline failure wraps exactly one of them.
var (
	// ErrSuspended means the system is locked down; retry later.
	ErrSuspended = errors.New("service suspended")
	// ErrValidation means the reading is malformed.
	ErrValidation = errors.New("invalid reading")
	// ErrUpstreamUnavailable means a mandatory collaborator failed.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrInternal means the ledger could not record the transaction.
	ErrInternal = errors.New("internal error")
)

// Upstream failures, each an ErrUpstreamUnavailable.
var (
	ErrStorage      = fmt.Errorf("%w: storage", ErrUpstreamUnavailable)
	ErrEncryption   = fmt.Errorf("%w: encryption authority", ErrUpstreamUnavailable)
	ErrContentStore = fmt.Errorf("%w: content store", ErrUpstreamUnavailable)
)

// Step names a pipeline stage.
type Step string

const (
	StepGate     Step = "lockdown_check"
	StepValidate Step = "validate"
	StepPersist  Step = "persist_reading"
	StepPolicy   Step = "build_policy"
	StepEncrypt  Step = "encrypt"
	StepStore    Step = "store_ciphertext"
	StepLedger   Step = "ledger_append"
)

// StepError reports which stage aborted the pipeline.
type StepError struct {
	Step Step
	Kind error // one of the outcome sentinels above
	Err  error // underlying cause, may be nil
}

func (e *StepError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ingest %s: %v", e.Step, e.Kind)
	}
	return fmt.Sprintf("ingest %s: %v: %v", e.Step, e.Kind, e.Err)
}

// Unwrap exposes both the outcome class and the cause to errors.Is/As.
func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func stepErr(step Step, kind, cause error) *StepError {
	return &StepError{Step: step, Kind: kind, Err: cause}
}
