// Package trustledger implements the tamper-evident audit ledger for vitals
// uploads and security events.
//
// The chain begins with a genesis block whose PrevHash is "0". Every
// subsequent block records the hash of its predecessor, and every hash is the
// SHA-256 of PrevHash ‖ Timestamp ‖ Payload ‖ Nonce, so an exported chain can
// be re-verified by a third party with VerifyBlocks.
//
// Two implementations of the Ledger interface are provided:
//   - MemoryLedger: in-process, the default.
//   - PostgresLedger: durable, shared between instances.
package trustledger
