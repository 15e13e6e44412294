package trustledger

import "context"

// Ledger is the interface for the append-only hash-chained transaction log.
// Both MemoryLedger and PostgresLedger implement this interface.
type Ledger interface {
	// Append seals a new block for (subjectID, storageHandle, action) chained to
	// the current tip. Appends are serialised; a failed append leaves the
	// chain untouched.
	Append(ctx context.Context, subjectID, storageHandle, action string) (*Block, error)

	// Chain returns a snapshot of every block, genesis first. Mutating the
	// returned slice does not affect the ledger.
	Chain(ctx context.Context) ([]Block, error)

	// Get returns the block at the given zero-based index.
	Get(ctx context.Context, index int) (*Block, error)

	// Len returns the total number of blocks (including genesis).
	Len(ctx context.Context) (int, error)

	// Verify walks the entire chain and checks hash consistency.
	// Returns nil if the chain is intact.
	Verify(ctx context.Context) error

	// Root returns the hash of the most recent block (the chain tip).
	Root(ctx context.Context) (string, error)
}
