package trustledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLedger is an in-memory, thread-safe Ledger implementation and the
// default ledger of a vitalsd process.
type MemoryLedger struct {
	mu     sync.RWMutex
	blocks []*Block
	now    func() time.Time
}

// New creates a MemoryLedger holding only the genesis block.
func New() *MemoryLedger {
	l, err := newMemoryLedger(time.Now)
	if err != nil {
		// sha256 over an in-memory buffer cannot fail.
		panic(err)
	}
	return l
}

func newMemoryLedger(now func() time.Time) (*MemoryLedger, error) {
	genesis, err := newGenesis(now())
	if err != nil {
		return nil, err
	}
	return &MemoryLedger{blocks: []*Block{genesis}, now: now}, nil
}

// Append implements Ledger. Reading the tip, sealing and appending happen
// under a single write lock.
func (l *MemoryLedger) Append(_ context.Context, subjectID, storageHandle, action string) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prev := l.blocks[len(l.blocks)-1]
	b, err := newBlock(len(l.blocks), prev.Hash, FormatPayload(subjectID, storageHandle, action), l.now())
	if err != nil {
		return nil, err
	}
	l.blocks = append(l.blocks, b)
	cp := *b
	return &cp, nil
}

// Chain implements Ledger.
func (l *MemoryLedger) Chain(_ context.Context) ([]Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = *b
	}
	return out, nil
}

// Get implements Ledger.
func (l *MemoryLedger) Get(_ context.Context, index int) (*Block, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if index < 0 || index >= len(l.blocks) {
		return nil, fmt.Errorf("index %d out of range", index)
	}
	cp := *l.blocks[index]
	return &cp, nil
}

// Len implements Ledger.
func (l *MemoryLedger) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.blocks), nil
}

// Verify implements Ledger.
func (l *MemoryLedger) Verify(ctx context.Context) error {
	chain, err := l.Chain(ctx)
	if err != nil {
		return err
	}
	return VerifyBlocks(chain)
}

// Root implements Ledger.
func (l *MemoryLedger) Root(_ context.Context) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.blocks[len(l.blocks)-1].Hash, nil
}
