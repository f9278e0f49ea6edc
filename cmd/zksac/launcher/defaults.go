package launcher

// Defaults bundles the baseline configuration values the launcher uses
// before config files and flags override them.

type Defaults struct {
	Node    NodeDefaults
	Chain   ChainDefaults
	Store   StoreDefaults
	TxPool  TxPoolDefaults
	Logging LoggingDefaults
}

// NodeDefaults captures top-level node settings.

type NodeDefaults struct {
	DataDir string // filesystem root where the node keeps its snapshot store; "~" expands to the home directory
	Name    string // node identity carried in produced headers and surfaced in logs
}

// ChainDefaults selects the network joined when no genesis file is given.
type ChainDefaults struct {
	FakeNetValidator int // fakenet slot this node takes; 0 observes without producing
	FakeNetSize      int // number of validator slots in the fake network
}

// StoreDefaults configures the snapshot store.
type StoreDefaults struct {
	Directory string // store directory below the datadir
	Preset    string // sizing profile resolved via integration.GetPresetByName
}

// TxPoolDefaults tunes the transaction pool.
type TxPoolDefaults struct {
	MaxSize int    // pending set capacity; a full pool evicts its worst entry
	MinFee  uint64 // local admission fee floor on top of the network's
}

// LoggingDefaults controls log verbosity and format.
type LoggingDefaults struct {
	Verbosity int    // 0=fatal, 1=error, 2=warn, 3=info, 4=debug, 5=trace
	Format    string // text or json
	Color     bool   // ANSI colors, best disabled when piping to files
}

// DefaultConfig returns a fully populated Defaults instance.

func DefaultConfig() Defaults {
	return Defaults{
		Node: NodeDefaults{
			DataDir: "~/.zksac",
			Name:    "zksac",
		},
		Chain: ChainDefaults{
			FakeNetValidator: 1,
			FakeNetSize:      1,
		},
		Store: StoreDefaults{
			Directory: "snapdata",
			Preset:    "default",
		},
		TxPool: TxPoolDefaults{
			MaxSize: 16384,
			MinFee:  0,
		},
		Logging: LoggingDefaults{
			Verbosity: 3,
			Format:    "text",
			Color:     true,
		},
	}
}
