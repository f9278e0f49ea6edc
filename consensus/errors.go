package consensus

import "errors"

// Production-side errors.
var (
	// ErrEmptyProducerSlot is returned when the local key does not hold the
	// production slot of the requested round.
	ErrEmptyProducerSlot = errors.New("producer does not hold this round's slot")
	// ErrProofGenerationFailed wraps a permanent oracle failure. Transient
	// conditions (timeouts, cancelled contexts) are returned as themselves.
	ErrProofGenerationFailed = errors.New("proof generation failed")
	// ErrStateRootMismatch means the oracle's reported post-state disagrees
	// with the locally derived one. Both derivations are ours, so one of the
	// two components is broken.
	ErrStateRootMismatch = errors.New("oracle and local state roots disagree")
)

// Block rejection reasons.
var (
	ErrWrongHeight      = errors.New("block height does not extend the head")
	ErrWrongParent      = errors.New("parent hash does not match the head")
	ErrRoundNotAdvanced = errors.New("round does not advance past the head")
	ErrWrongProducer    = errors.New("producer does not match the round's selection")
	ErrBadTx            = errors.New("invalid transaction")
	ErrTxRootMismatch   = errors.New("tx root does not match the body")
	ErrGovRootMismatch  = errors.New("governance root does not match the body")
	ErrGovDisabled      = errors.New("governance payloads carried while the upgrade is off")
	ErrEvidenceDisabled = errors.New("evidence carried while the upgrade is off")
	ErrBadEvidence      = errors.New("evidence does not adjudicate")
	ErrBlockOversized   = errors.New("block exceeds a size rule")
	ErrWrongStateRoot   = errors.New("state root does not match the recomputed transition")
	ErrProofMismatch    = errors.New("proof bundle does not match the proof root")
	ErrOutputsMismatch  = errors.New("proof outputs do not match the block")
	ErrInvalidProof     = errors.New("proof does not verify")
	ErrBadHeaderSig     = errors.New("header signature does not recover the producer")
)

// Payload admission errors.
var (
	ErrBadProposal  = errors.New("proposal does not validate")
	ErrBadVote      = errors.New("vote does not validate")
	ErrKnownPayload = errors.New("payload already pending")
	ErrQueueFull    = errors.New("payload queue full")
)

// Engine lifecycle errors.
var (
	ErrAlreadyStarted = errors.New("engine already started")
	ErrEngineHalted   = errors.New("engine halted")
)
