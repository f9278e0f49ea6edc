package flags

import (
	"gopkg.in/urfave/cli.v1"
)

// NetworkFlags covers network selection and the snapshot store.

func NetworkFlags() []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:  "fakenet",
			Usage: "Join a fake network as validator n of k (format n/k, slot 0 observes without producing)",
			Value: "1/1",
		},
		cli.StringFlag{
			Name:  "genesis",
			Usage: "Path to a JSON genesis file (replaces --fakenet)",
		},
		cli.StringFlag{
			Name:  "db.preset",
			Usage: "Snapshot store sizing profile (lite|default|full)",
			Value: "default",
		},
		cli.IntFlag{
			Name:  "cache",
			Usage: "Megabytes of memory allocated to the store cache (overrides the preset)",
		},
		cli.IntFlag{
			Name:  "handles",
			Usage: "File handles allocated to the store (overrides the preset)",
		},
	}
}

// TxPoolFlags isolates transaction-pool tuning knobs.
func TxPoolFlags() []cli.Flag {
	return []cli.Flag{
		cli.IntFlag{
			Name:  "txpool.maxsize",
			Usage: "Maximum number of pending transactions held in the pool",
			Value: 16384,
		},
		cli.Uint64Flag{
			Name:  "txpool.minfee",
			Usage: "Local fee floor for pool admission (the network floor still applies)",
		},
	}
}
