// Package opera defines the network rules and configuration parameters for a
// ZK-SAC network.
//
// This package provides:
//   - Network identification constants (MainNet, TestNet, FakeNet)
//   - Block production rules and limits
//   - Validator eligibility rules (stake and performance thresholds)
//   - Economic parameters including fees, rewards and slashing
//   - Governance rules for on-chain parameter changes
//   - Proof oracle rules (proving timeouts and parallelism)
//
// The Rules type serves as the central configuration structure that defines
// all consensus-critical parameters for a given network deployment. Rules are
// part of the replicated state: approved governance proposals mutate them
// through ApplyProtocolChanges, and every node derives the same updated Rules
// at the same block height.

package opera

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/nzengi/zk-sac-engine/inter"
)

// Network identification constants
const (
	// MainNetworkID is the chain ID for the production network (0x5ac = 1452 in decimal)
	MainNetworkID uint64 = 0x5ac

	// TestNetworkID is the chain ID for the public testnet (0x5ac2 = 23234 in decimal)
	TestNetworkID uint64 = 0x5ac2

	// FakeNetworkID is the chain ID for local/fake networks used in testing (0x5ac3 = 23235 in decimal)
	FakeNetworkID uint64 = 0x5ac3

	// StakeUnit is the quantum used to scale raw stake down to consensus weights.
	// Raw stake is tracked in the smallest token denomination; dividing by
	// StakeUnit keeps accumulated weights within the consensus integer range.
	StakeUnit uint64 = 1e9
)

// Hard bounds for governable parameters, enforced by ValidateProtocolChange.
// A value outside these bounds can never become part of the rules, regardless
// of how the vote went.
const (
	minBlockSize     = uint64(1024)
	maxBlockSizeCap  = uint64(inter.ProtocolMaxMsgSize) // a block must fit in one protocol message
	maxBlockTxsCap   = uint64(1000000)
	minRoundInterval = inter.Timestamp(50 * time.Millisecond)
	maxRoundInterval = inter.Timestamp(time.Hour)
	minProofTimeout  = inter.Timestamp(100 * time.Millisecond)
	maxProofTimeout  = inter.Timestamp(time.Hour)
	maxWindowBlocks  = uint64(10000000)
	minThresholdBP   = uint64(5000) // approval below a simple majority is never acceptable
	maxRatioBP       = uint64(10000)
)

// RulesRLP (RLP stands for Recursive Length Prefix, Ethereum's serialization
// format) is the RLP-serializable version of Rules. It contains all network
// configuration parameters that are committed into the world state, so a
// governance change to any of them shows up in the state root of the block
// that applies it. The Upgrades field is excluded from RLP encoding.
type RulesRLP struct {
	Name      string // Network name identifier (e.g., "main", "test", "fake")
	NetworkID uint64 // Chain ID for transaction signing and network identification

	// Blockchain options - block production limits
	Blocks BlocksRules

	// Validator options - eligibility thresholds and score bookkeeping
	Validators ValidatorsRules

	// Economy options - fees, rewards and slashing
	Economy EconomyRules

	// Governance options - on-chain parameter change process
	Governance GovernanceRules

	// Oracle options - proof generation limits
	Oracle OracleRules

	// Upgrades - protocol feature flags (not RLP-encoded)
	Upgrades Upgrades `rlp:"-"`
}

// Rules describes the complete configuration for a ZK-SAC network.
// This is the main type used throughout the codebase to access network parameters.
type Rules RulesRLP

// BlocksRules defines the block production limits.
type BlocksRules struct {
	// MaxBlockSize is the maximum encoded size of a block in bytes.
	// Oversized blocks are rejected before any other verification.
	MaxBlockSize uint64

	// MaxBlockTxs is the maximum number of transactions in a single block
	MaxBlockTxs uint32

	// MaxExtraData is the maximum size of the header's free-form extra data
	MaxExtraData uint32

	// RoundInterval is the target wall-clock spacing between production rounds.
	// A producer that fails to deliver within its round is recorded as missed
	// and the round is reassigned.
	RoundInterval inter.Timestamp
}

// ValidatorsRules defines validator eligibility thresholds and the score
// bookkeeping applied by block processing.
type ValidatorsRules struct {
	// MinStake is the minimum stake, in the smallest token denomination,
	// required for producer selection
	MinStake uint64

	// MinScore is the minimum performance score required for producer selection
	MinScore inter.ScoreBP

	// ScoreReward is added to a validator's score for every produced block
	ScoreReward inter.ScoreBP

	// ScorePenalty is subtracted from a validator's score for every missed round
	ScorePenalty inter.ScoreBP
}

// EconomyRules defines fees, rewards and slashing.
type EconomyRules struct {
	// MinFee is the minimum fee accepted from a transaction.
	// Transactions below the floor never leave the pool.
	MinFee uint64

	// SlashRatioBP is the fraction of stake burned on proven misbehaviour,
	// in basis points (500 = 5%)
	SlashRatioBP uint32

	// RewardRatioBP is the annualized reward rate on producer stake,
	// in basis points (400 = 4% per year)
	RewardRatioBP uint32
}

// GovernanceRules defines the on-chain parameter change process.
type GovernanceRules struct {
	// VotingPeriod is the default voting window length, in blocks, used by
	// proposal builders when no explicit window is requested
	VotingPeriod idx.Block

	// MinVotingPeriod and MaxVotingPeriod bound the voting window a proposal
	// may request for itself
	MinVotingPeriod idx.Block
	MaxVotingPeriod idx.Block

	// QuorumBP is the minimum fraction of total stake that must vote, in
	// basis points. Proposals may request a stricter quorum, never a weaker one.
	QuorumBP uint32

	// ApprovalThresholdBP is the minimum fraction of the snapshot's total
	// stake that must approve, in basis points. Proposals may request a
	// stricter threshold.
	ApprovalThresholdBP uint32

	// ExecutionDeadline is the number of blocks after the voting window closes
	// in which an approved proposal must execute before it expires
	ExecutionDeadline idx.Block

	// MaxChangesPerProposal caps the parameter changes a single proposal may carry
	MaxChangesPerProposal uint32
}

// OracleRules defines the proof generation limits.
type OracleRules struct {
	// ProofTimeout is the maximum wall time for proving a single block
	// before the round is abandoned
	ProofTimeout inter.Timestamp

	// MaxParallelProofs is the number of proving jobs allowed to run concurrently
	MaxParallelProofs uint32

	// Retries is how many times a timed-out proving call is retried with
	// identical inputs before the round is declared missed
	Retries uint32

	// MemoryLimit is the prover memory budget in bytes
	MemoryLimit uint64
}

// Upgrades defines protocol feature flags for a network.
// Unlike the numeric parameters, these are node configuration rather than
// replicated state, so they are excluded from RLP encoding.
type Upgrades struct {
	Gov      bool // accept and execute governance payloads
	Evidence bool // accept and adjudicate misbehaviour evidence
}

// MainNetRules returns the configuration rules for the production network.
// This is the conservative, production-ready parameter set.
func MainNetRules() Rules {
	return Rules{
		Name:       "main",
		NetworkID:  MainNetworkID,
		Blocks:     DefaultBlocksRules(),
		Validators: DefaultValidatorsRules(),
		Economy:    DefaultEconomyRules(),
		Governance: DefaultGovernanceRules(),
		Oracle:     DefaultOracleRules(),
		Upgrades: Upgrades{
			Gov:      true,
			Evidence: true,
		},
	}
}

// TestNetRules returns the configuration rules for the public testnet.
// Testnet uses the same parameters as mainnet for realistic testing.
func TestNetRules() Rules {
	return Rules{
		Name:       "test",
		NetworkID:  TestNetworkID,
		Blocks:     DefaultBlocksRules(),
		Validators: DefaultValidatorsRules(),
		Economy:    DefaultEconomyRules(),
		Governance: DefaultGovernanceRules(),
		Oracle:     DefaultOracleRules(),
		Upgrades: Upgrades{
			Gov:      true,
			Evidence: true,
		},
	}
}

// FakeNetRules returns the configuration rules for fake/local networks.
// Fake networks use accelerated parameters for faster testing and development:
//   - Much shorter rounds (200ms vs 4s)
//   - A single-token stake threshold and no score floor
//   - No transaction fee floor
//   - Short voting windows and execution deadlines
//   - Tighter proving timeouts
func FakeNetRules() Rules {
	return Rules{
		Name:       "fake",
		NetworkID:  FakeNetworkID,
		Blocks:     FakeNetBlocksRules(),
		Validators: FakeNetValidatorsRules(),
		Economy:    FakeNetEconomyRules(),
		Governance: FakeNetGovernanceRules(),
		Oracle:     FakeNetOracleRules(),
		Upgrades: Upgrades{
			Gov:      true,
			Evidence: true,
		},
	}
}

// DefaultBlocksRules returns the mainnet block production limits.
func DefaultBlocksRules() BlocksRules {
	return BlocksRules{
		MaxBlockSize:  1000000, // 1MB encoded block
		MaxBlockTxs:   10000,   // 10K transactions per block
		MaxExtraData:  128,     // 128 bytes of header extra data
		RoundInterval: inter.Timestamp(4 * time.Second),
	}
}

// FakeNetBlocksRules returns accelerated block rules for fake networks.
func FakeNetBlocksRules() BlocksRules {
	cfg := DefaultBlocksRules()
	cfg.RoundInterval = inter.Timestamp(200 * time.Millisecond) // 200ms rounds vs 4s
	return cfg
}

// DefaultValidatorsRules returns the mainnet validator thresholds.
func DefaultValidatorsRules() ValidatorsRules {
	return ValidatorsRules{
		MinStake:     32000000000, // 32 whole tokens at the 1e9 denomination
		MinScore:     5000,        // 0.5 performance score floor
		ScoreReward:  10,          // +0.001 per produced block
		ScorePenalty: 100,         // -0.01 per missed round
	}
}

// FakeNetValidatorsRules returns relaxed validator thresholds for fake networks.
// Any funded genesis account can validate, and a low score never disqualifies.
func FakeNetValidatorsRules() ValidatorsRules {
	cfg := DefaultValidatorsRules()
	cfg.MinStake = StakeUnit // a single whole token
	cfg.MinScore = 0
	return cfg
}

// DefaultEconomyRules returns the mainnet economy configuration.
func DefaultEconomyRules() EconomyRules {
	return EconomyRules{
		MinFee:        1,   // non-zero fee floor
		SlashRatioBP:  500, // 5% of stake burned per proven offence
		RewardRatioBP: 400, // 4% annual reward on producer stake
	}
}

// FakeNetEconomyRules returns the fake network economy configuration.
// The fee floor is dropped so tests can submit zero-fee transactions.
func FakeNetEconomyRules() EconomyRules {
	cfg := DefaultEconomyRules()
	cfg.MinFee = 0
	return cfg
}

// DefaultGovernanceRules returns the mainnet governance configuration.
// Windows are denominated in blocks; at the default 4s round interval the
// default voting window is about one day.
func DefaultGovernanceRules() GovernanceRules {
	return GovernanceRules{
		VotingPeriod:          21600,  // about one day of 4s rounds
		MinVotingPeriod:       100,    // about 7 minutes
		MaxVotingPeriod:       648000, // about 30 days
		QuorumBP:              3300,   // 33% of total stake must vote
		ApprovalThresholdBP:   6700,   // 67% of total stake must approve
		ExecutionDeadline:     21600,  // about one day to execute after the window closes
		MaxChangesPerProposal: 16,
	}
}

// FakeNetGovernanceRules returns short governance windows for fake networks.
func FakeNetGovernanceRules() GovernanceRules {
	cfg := DefaultGovernanceRules()
	cfg.VotingPeriod = 10
	cfg.MinVotingPeriod = 2
	cfg.MaxVotingPeriod = 10000
	cfg.ExecutionDeadline = 100
	return cfg
}

// DefaultOracleRules returns the mainnet proof oracle configuration.
func DefaultOracleRules() OracleRules {
	return OracleRules{
		ProofTimeout:      inter.Timestamp(30 * time.Second),
		MaxParallelProofs: 16,      // matches the default circuit budget
		Retries:           1,       // one retry after a timeout, then the round is missed
		MemoryLimit:       1 << 30, // 1GB prover memory
	}
}

// FakeNetOracleRules returns tight proving limits for fake networks.
func FakeNetOracleRules() OracleRules {
	cfg := DefaultOracleRules()
	cfg.ProofTimeout = inter.Timestamp(2 * time.Second)
	cfg.MaxParallelProofs = 4
	cfg.MemoryLimit = 1 << 28 // 256MB
	return cfg
}

// Errors returned when governance payloads cannot be validated or applied.
var (
	ErrUnknownParam    = errors.New("unknown protocol parameter")
	ErrParamOutOfRange = errors.New("protocol parameter out of range")
	ErrNoChanges       = errors.New("proposal carries no changes")
	ErrTooManyChanges  = errors.New("proposal carries too many changes")
	ErrBadVotingPeriod = errors.New("proposal voting period out of bounds")
	ErrWeakQuorum      = errors.New("proposal quorum below the network floor")
	ErrWeakThreshold   = errors.New("proposal approval threshold below the network floor")
)

// ValidateProtocolChange checks that a single parameter change is applicable:
// the parameter must be known and the value within its hard bounds.
func ValidateProtocolChange(c inter.ProtocolChange) error {
	switch c.Param {
	case inter.ParamMaxBlockSize:
		if c.Value < minBlockSize || c.Value > maxBlockSizeCap {
			return rangeErr(c, minBlockSize, maxBlockSizeCap)
		}
	case inter.ParamMaxBlockTxs:
		if c.Value < 1 || c.Value > maxBlockTxsCap {
			return rangeErr(c, 1, maxBlockTxsCap)
		}
	case inter.ParamRoundInterval:
		if c.Value < uint64(minRoundInterval) || c.Value > uint64(maxRoundInterval) {
			return rangeErr(c, uint64(minRoundInterval), uint64(maxRoundInterval))
		}
	case inter.ParamMinStake:
		if c.Value < 1 {
			return rangeErr(c, 1, math.MaxUint64)
		}
	case inter.ParamMinScore:
		if c.Value > uint64(inter.ScoreMax) {
			return rangeErr(c, 0, uint64(inter.ScoreMax))
		}
	case inter.ParamSlashRatio:
		if c.Value > maxRatioBP {
			return rangeErr(c, 0, maxRatioBP)
		}
	case inter.ParamRewardRatio:
		if c.Value > maxRatioBP {
			return rangeErr(c, 0, maxRatioBP)
		}
	case inter.ParamVotingPeriod:
		if c.Value < 1 || c.Value > maxWindowBlocks {
			return rangeErr(c, 1, maxWindowBlocks)
		}
	case inter.ParamApprovalThreshold:
		if c.Value < minThresholdBP || c.Value > maxRatioBP {
			return rangeErr(c, minThresholdBP, maxRatioBP)
		}
	case inter.ParamQuorum:
		if c.Value < 1 || c.Value > maxRatioBP {
			return rangeErr(c, 1, maxRatioBP)
		}
	case inter.ParamExecutionDeadline:
		if c.Value < 1 || c.Value > maxWindowBlocks {
			return rangeErr(c, 1, maxWindowBlocks)
		}
	case inter.ParamProofTimeout:
		if c.Value < uint64(minProofTimeout) || c.Value > uint64(maxProofTimeout) {
			return rangeErr(c, uint64(minProofTimeout), uint64(maxProofTimeout))
		}
	default:
		return fmt.Errorf("%w: id=%d", ErrUnknownParam, uint8(c.Param))
	}
	return nil
}

func rangeErr(c inter.ProtocolChange, lo, hi uint64) error {
	return fmt.Errorf("%w: %s=%d, allowed [%d, %d]", ErrParamOutOfRange, c.Param, c.Value, lo, hi)
}

// ValidateProposal checks a governance proposal's parameters against the
// current rules. The requested voting window must be within bounds, quorum
// and approval threshold must be at least as strict as the network floors,
// and every carried change must pass ValidateProtocolChange. Rejecting an
// invalid proposal here, before voting starts, guarantees an out-of-range
// value can never reach the rules no matter how the vote goes.
// Signature validity is the caller's concern.
func (r Rules) ValidateProposal(p *inter.GovernanceProposal) error {
	if len(p.Changes) == 0 {
		return ErrNoChanges
	}
	if uint32(len(p.Changes)) > r.Governance.MaxChangesPerProposal {
		return fmt.Errorf("%w: %d > %d", ErrTooManyChanges, len(p.Changes), r.Governance.MaxChangesPerProposal)
	}
	if p.VotingPeriod < r.Governance.MinVotingPeriod || p.VotingPeriod > r.Governance.MaxVotingPeriod {
		return fmt.Errorf("%w: %d, allowed [%d, %d]", ErrBadVotingPeriod,
			p.VotingPeriod, r.Governance.MinVotingPeriod, r.Governance.MaxVotingPeriod)
	}
	if uint64(p.QuorumBP) > maxRatioBP || uint64(p.ThresholdBP) > maxRatioBP {
		return fmt.Errorf("%w: ratio above 100%%", ErrParamOutOfRange)
	}
	if p.QuorumBP < r.Governance.QuorumBP {
		return fmt.Errorf("%w: %d, floor %d", ErrWeakQuorum, p.QuorumBP, r.Governance.QuorumBP)
	}
	if p.ThresholdBP < r.Governance.ApprovalThresholdBP {
		return fmt.Errorf("%w: %d, floor %d", ErrWeakThreshold, p.ThresholdBP, r.Governance.ApprovalThresholdBP)
	}
	for _, c := range p.Changes {
		if err := ValidateProtocolChange(c); err != nil {
			return err
		}
	}
	return nil
}

// ApplyProtocolChanges returns a copy of the rules with the given parameter
// changes applied in order. The receiver is never modified. If any change is
// invalid, the original rules are returned together with the error.
func (r Rules) ApplyProtocolChanges(changes []inter.ProtocolChange) (Rules, error) {
	cp := r.Copy()
	for _, c := range changes {
		if err := ValidateProtocolChange(c); err != nil {
			return r, err
		}
		switch c.Param {
		case inter.ParamMaxBlockSize:
			cp.Blocks.MaxBlockSize = c.Value
		case inter.ParamMaxBlockTxs:
			cp.Blocks.MaxBlockTxs = uint32(c.Value)
		case inter.ParamRoundInterval:
			cp.Blocks.RoundInterval = inter.Timestamp(c.Value)
		case inter.ParamMinStake:
			cp.Validators.MinStake = c.Value
		case inter.ParamMinScore:
			cp.Validators.MinScore = inter.ScoreBP(c.Value)
		case inter.ParamSlashRatio:
			cp.Economy.SlashRatioBP = uint32(c.Value)
		case inter.ParamRewardRatio:
			cp.Economy.RewardRatioBP = uint32(c.Value)
		case inter.ParamVotingPeriod:
			cp.Governance.VotingPeriod = idx.Block(c.Value)
		case inter.ParamApprovalThreshold:
			cp.Governance.ApprovalThresholdBP = uint32(c.Value)
		case inter.ParamQuorum:
			cp.Governance.QuorumBP = uint32(c.Value)
		case inter.ParamExecutionDeadline:
			cp.Governance.ExecutionDeadline = idx.Block(c.Value)
		case inter.ParamProofTimeout:
			cp.Oracle.ProofTimeout = inter.Timestamp(c.Value)
		}
	}
	return cp, nil
}

// Copy returns a copy of the rules.
// All fields are value types, so a plain struct copy is sufficient.
func (r Rules) Copy() Rules {
	cp := r
	return cp
}

// String returns a JSON representation of Rules for debugging and logging.
func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
