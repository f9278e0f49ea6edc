package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NodeFlags holds knobs specific to the local node instance (identity, validator key).

func NodeFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "identity",
			Usage: "Custom node name, carried in produced headers and logs",
		},
		cli.StringFlag{
			Name:  "validator.keyfile",
			Usage: "Path to a hex-encoded secp256k1 validator key (fakenet slots derive their own)",
		},
	}
}

// RulesFlags exposes the governable network parameters for network bring-up.
// They tune the genesis rules of a fresh chain; a chain resumed from a
// snapshot keeps its replicated rules. The two disable flags are node-local
// feature gates and apply always.
func RulesFlags() []cli.Flag {
	return []cli.Flag{
		cli.DurationFlag{
			Name:  "block.interval",
			Usage: "Target wall-clock spacing between production rounds",
		},
		cli.IntFlag{
			Name:  "block.maxtxs",
			Usage: "Maximum transactions per block",
		},
		cli.Uint64Flag{
			Name:  "block.maxsize",
			Usage: "Maximum encoded block size in bytes",
		},
		cli.Uint64Flag{
			Name:  "validator.minstake",
			Usage: "Minimum stake for producer eligibility, in the smallest denomination",
		},
		cli.Float64Flag{
			Name:  "validator.slashratio",
			Usage: "Fraction of stake burned on proven misbehaviour (0.05 = 5%)",
		},
		cli.Float64Flag{
			Name:  "validator.rewardrate",
			Usage: "Annualized reward rate on producer stake (0.04 = 4%)",
		},
		cli.Uint64Flag{
			Name:  "gov.votingperiod",
			Usage: "Default governance voting window, in blocks",
		},
		cli.Float64Flag{
			Name:  "gov.threshold",
			Usage: "Fraction of snapshot stake required to approve a proposal (0.67 = 67%)",
		},
		cli.DurationFlag{
			Name:  "oracle.timeout",
			Usage: "Maximum wall time for proving a single block",
		},
		cli.IntFlag{
			Name:  "oracle.retries",
			Usage: "Times a timed-out proving call is retried before the round is missed",
		},
		cli.BoolFlag{
			Name:  "gov.disable",
			Usage: "Reject governance payloads in blocks",
		},
		cli.BoolFlag{
			Name:  "evidence.disable",
			Usage: "Reject misbehaviour evidence in blocks",
		},
	}
}
