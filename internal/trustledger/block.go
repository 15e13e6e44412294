package trustledger

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// GenesisPrevHash is the previous-hash value carried by the genesis block.
const GenesisPrevHash = "0"

// Genesis payload fields.
const (
	genesisSubject = "SYSTEM"
	genesisHandle  = "GENESIS_BLOCK"
	genesisAction  = "System Initialized"
)

// ErrDigest is returned when a block digest cannot be computed. It indicates a
// defect rather than a retryable condition.
var ErrDigest = errors.New("ledger digest computation failed")

// Block is a single transaction record in the ledger.
type Block struct {
	Index     int       `json:"index"`
	PrevHash  string    `json:"previousHash"`
	Hash      string    `json:"hash"`
	Payload   string    `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
	Nonce     int64     `json:"nonce"`
}

// FormatPayload renders the block payload for a transaction.
func FormatPayload(subjectID, storageHandle, action string) string {
	return "Patient:" + subjectID + "|Content:" + storageHandle + "|Action:" + action
}

// ComputeHash returns the hex SHA-256 digest of
// PrevHash ‖ Timestamp ‖ Payload ‖ Nonce. Anyone holding an exported block can
// recompute it.
func ComputeHash(b *Block) (string, error) {
	h := sha256.New()
	if _, err := fmt.Fprintf(h, "%s%s%s%d",
		b.PrevHash, b.Timestamp.UTC().Format(time.RFC3339Nano), b.Payload, b.Nonce,
	); err != nil {
		return "", fmt.Errorf("%w: %v", ErrDigest, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// newBlock builds and seals a block chained to prevHash. Timestamps are kept at
// microsecond precision so they survive a round trip through PostgreSQL.
func newBlock(index int, prevHash, payload string, now time.Time) (*Block, error) {
	b := &Block{
		Index:     index,
		PrevHash:  prevHash,
		Payload:   payload,
		Timestamp: now.UTC().Truncate(time.Microsecond),
	}
	hash, err := ComputeHash(b)
	if err != nil {
		return nil, err
	}
	b.Hash = hash
	return b, nil
}

func newGenesis(now time.Time) (*Block, error) {
	return newBlock(0, GenesisPrevHash, FormatPayload(genesisSubject, genesisHandle, genesisAction), now)
}

// VerifyBlocks checks an ordered chain without trusting whoever produced it:
// exactly one genesis block at index 0, every PrevHash links to its
// predecessor and every Hash is reproducible from the stored fields.
func VerifyBlocks(blocks []Block) error {
	if len(blocks) == 0 {
		return errors.New("empty chain")
	}
	for i := range blocks {
		curr := &blocks[i]
		if curr.Index != i {
			return fmt.Errorf("block at position %d has index %d", i, curr.Index)
		}
		if i == 0 {
			if curr.PrevHash != GenesisPrevHash {
				return fmt.Errorf("genesis block has previous hash %q", curr.PrevHash)
			}
		} else {
			if curr.PrevHash == GenesisPrevHash {
				return fmt.Errorf("second genesis block at index %d", i)
			}
			if curr.PrevHash != blocks[i-1].Hash {
				return fmt.Errorf("hash chain broken at index %d", i)
			}
		}
		want, err := ComputeHash(curr)
		if err != nil {
			return err
		}
		if curr.Hash != want {
			return fmt.Errorf("block %d has invalid hash", i)
		}
	}
	return nil
}
