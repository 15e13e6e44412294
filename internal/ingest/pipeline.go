// Package ingest runs the vitals ingestion pipeline: gate on lockdown,
// persist the raw reading, broadcast it, encrypt the sensitive subset under a
// consent-aware disclosure policy, store the ciphertext, and chain the
// transaction into the ledger.
//
// Encryption is fail-closed: when the authority cannot produce a ciphertext
// nothing is stored and nothing is chained.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmerrifield20/vitalsguard/internal/analytics"
	"github.com/jmerrifield20/vitalsguard/internal/broadcast"
	"github.com/jmerrifield20/vitalsguard/internal/consent"
	"github.com/jmerrifield20/vitalsguard/internal/policy"
	"github.com/jmerrifield20/vitalsguard/internal/trustledger"
	"github.com/jmerrifield20/vitalsguard/internal/vitals"
	"github.com/jmerrifield20/vitalsguard/internal/worker"
	"go.uber.org/zap"
)

// LedgerAction is the action recorded for every successful upload.
const LedgerAction = "Vitals Upload"

// Gate reports whether the system is locked down.
type Gate interface {
	IsLockdown() bool
}

// ReadingStore persists raw readings.
type ReadingStore interface {
	SaveReading(ctx context.Context, r *vitals.Reading) error
}

// GrantSource lists a patient's approved, unexpired consent grants.
type GrantSource interface {
	ActiveGrants(ctx context.Context, patientID string) ([]*consent.Grant, error)
}

// Encrypter delegates encryption to the external authority.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext, policy string) (string, error)
}

// ContentStore stores ciphertext and returns its handle.
type ContentStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

// Appender chains a transaction into the ledger.
type Appender interface {
	Append(ctx context.Context, subjectID, storageHandle, action string) (*trustledger.Block, error)
}

// Analyzer runs predictive analytics on a reading.
type Analyzer interface {
	Analyze(ctx context.Context, reading any) (*analytics.Result, error)
}

// Submitter runs best-effort background work.
type Submitter interface {
	Submit(name string, fn worker.Task) error
}

// Deps bundles the pipeline's collaborators. Broadcast and Analytics may be nil.
type Deps struct {
	Gate      Gate
	Readings  ReadingStore
	Grants    GrantSource
	Encrypter Encrypter
	Content   ContentStore
	Ledger    Appender
	Broadcast broadcast.Publisher
	Analytics Analyzer
	Workers   Submitter
}

// Config holds pipeline configuration.
type Config struct {
	BaseRole       string        // role in the base disclosure clause, e.g. "Doctor"
	BaseDepartment string        // department in the base clause, e.g. "Cardiology"
	StorageTimeout time.Duration // bound on reading, consent and content store calls
	EncryptTimeout time.Duration // bound on the encryption authority call
}

// Result is returned for a successfully ingested reading.
type Result struct {
	ReadingID     string `json:"readingId"`
	ContentHandle string `json:"contentHandle"`
	TxHash        string `json:"txHash"`
	Policy        string `json:"policy"`
}

// OutcomeRecordFunc is an optional callback run once per Ingest call with
// "success" or the name of the failing step.
type OutcomeRecordFunc func(outcome string)

// Pipeline orchestrates one reading at a time; it is safe for concurrent use.
type Pipeline struct {
	deps      Deps
	cfg       Config
	validate  *validator.Validate
	onOutcome OutcomeRecordFunc
	logger    *zap.Logger
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, logger *zap.Logger) *Pipeline {
	if cfg.BaseRole == "" {
		cfg.BaseRole = "Doctor"
	}
	if cfg.BaseDepartment == "" {
		cfg.BaseDepartment = "Cardiology"
	}
	if cfg.StorageTimeout == 0 {
		cfg.StorageTimeout = 5 * time.Second
	}
	if cfg.EncryptTimeout == 0 {
		cfg.EncryptTimeout = 5 * time.Second
	}
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// SetOutcomeRecorder configures the metrics callback.
func (p *Pipeline) SetOutcomeRecorder(fn OutcomeRecordFunc) {
	p.onOutcome = fn
}

// Ingest runs the pipeline for r. On failure the returned error is a
// *StepError naming the stage; no ledger entry exists for a failed call.
func (p *Pipeline) Ingest(ctx context.Context, r vitals.Reading) (*Result, error) {
	res, err := p.ingest(ctx, &r)
	if p.onOutcome != nil {
		var se *StepError
		if errors.As(err, &se) {
			p.onOutcome(string(se.Step))
		} else {
			p.onOutcome("success")
		}
	}
	return res, err
}

func (p *Pipeline) ingest(ctx context.Context, r *vitals.Reading) (*Result, error) {
	// 1. Lockdown gate: nothing is touched while suspended.
	if p.deps.Gate.IsLockdown() {
		return nil, stepErr(StepGate, ErrSuspended, nil)
	}

	if err := p.validate.Struct(r); err != nil {
		return nil, stepErr(StepValidate, ErrValidation, err)
	}
	if r.RecordedAt.IsZero() {
		r.RecordedAt = time.Now().UTC()
	}

	// 2. Persist raw reading.
	if err := p.withTimeout(ctx, p.cfg.StorageTimeout, func(ctx context.Context) error {
		return p.deps.Readings.SaveReading(ctx, r)
	}); err != nil {
		return nil, stepErr(StepPersist, ErrStorage, err)
	}

	// 3. Best-effort broadcast.
	p.broadcast(*r)

	// 4. Disclosure policy from the base clause plus approved consents.
	var grants []*consent.Grant
	if err := p.withTimeout(ctx, p.cfg.StorageTimeout, func(ctx context.Context) error {
		var err error
		grants, err = p.deps.Grants.ActiveGrants(ctx, r.PatientID)
		return err
	}); err != nil {
		return nil, stepErr(StepPolicy, ErrStorage, err)
	}
	node, err := policy.BuildDisclosurePolicy(p.cfg.BaseRole, p.cfg.BaseDepartment, grants)
	if err != nil {
		return nil, stepErr(StepPolicy, ErrInternal, err)
	}
	expr := node.String()

	// 5. Fail-closed encryption of the sensitive subset.
	var ciphertext string
	if err := p.withTimeout(ctx, p.cfg.EncryptTimeout, func(ctx context.Context) error {
		var err error
		ciphertext, err = p.deps.Encrypter.Encrypt(ctx, SensitivePayload(*r), expr)
		return err
	}); err != nil {
		return nil, stepErr(StepEncrypt, ErrEncryption, err)
	}
	if ciphertext == "" {
		return nil, stepErr(StepEncrypt, ErrEncryption, fmt.Errorf("empty ciphertext"))
	}

	// 6. Content-addressed storage.
	var handle string
	if err := p.withTimeout(ctx, p.cfg.StorageTimeout, func(ctx context.Context) error {
		var err error
		handle, err = p.deps.Content.Put(ctx, []byte(ciphertext))
		return err
	}); err != nil {
		return nil, stepErr(StepStore, ErrContentStore, err)
	}

	// 7. Ledger. A failure here orphans the stored ciphertext.
	block, err := p.deps.Ledger.Append(ctx, r.PatientID, handle, LedgerAction)
	if err != nil {
		p.logger.Error("ledger append failed, ciphertext orphaned",
			zap.String("patient_id", r.PatientID),
			zap.String("content_handle", handle),
			zap.Error(err),
		)
		return nil, stepErr(StepLedger, ErrInternal, err)
	}

	// 8. Best-effort analytics.
	p.analyze(*r)

	p.logger.Info("reading ingested",
		zap.String("patient_id", r.PatientID),
		zap.String("content_handle", handle),
		zap.String("tx_hash", block.Hash),
	)
	return &Result{
		ReadingID:     r.ID.String(),
		ContentHandle: handle,
		TxHash:        block.Hash,
		Policy:        expr,
	}, nil
}

// SensitivePayload is the plaintext handed to the encryption authority.
func SensitivePayload(r vitals.Reading) string {
	return fmt.Sprintf("HR:%d,SpO2:%d", r.HeartRate, r.SpO2)
}

func (p *Pipeline) withTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}

func (p *Pipeline) broadcast(r vitals.Reading) {
	if p.deps.Broadcast == nil {
		return
	}
	p.submit("broadcast", func(ctx context.Context) error {
		return broadcastReading(ctx, p.deps.Broadcast, r)
	})
}

func broadcastReading(ctx context.Context, pub broadcast.Publisher, r vitals.Reading) error {
	if err := pub.Publish(ctx, broadcast.VitalsTopic(r.PatientID), r); err != nil {
		return err
	}
	return pub.Publish(ctx, broadcast.WardTopic, r)
}

func (p *Pipeline) analyze(r vitals.Reading) {
	if p.deps.Analytics == nil {
		return
	}
	p.submit("analytics", func(ctx context.Context) error {
		res, err := p.deps.Analytics.Analyze(ctx, r)
		if err != nil {
			return fmt.Errorf("analyze %s: %w", r.PatientID, err)
		}
		if res.Elevated() && p.deps.Broadcast != nil {
			return p.deps.Broadcast.Publish(ctx, broadcast.AlertsTopic, res.Fields)
		}
		return nil
	})
}

// submit hands fn to the worker pool. Failures are logged by the pool; a
// rejected submission is logged here.
func (p *Pipeline) submit(name string, fn worker.Task) {
	if err := p.deps.Workers.Submit(name, fn); err != nil {
		p.logger.Warn("background task not scheduled", zap.String("task", name), zap.Error(err))
	}
}
