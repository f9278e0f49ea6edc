package launcher

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"gopkg.in/urfave/cli.v1"

	"github.com/nzengi/zk-sac-engine/integration"
	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
	"github.com/nzengi/zk-sac-engine/opera/genesis"
	"github.com/nzengi/zk-sac-engine/txpool"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node   NodeConfig
	Chain  ChainConfig
	Rules  opera.Rules
	TxPool txpool.Config
	Store  StoreConfig
}

type NodeConfig struct {
	DataDir string
	Name    string
	Logging LoggingConfig
}

type LoggingConfig struct {
	Verbosity int
	Format    string
	Color     bool
	SentryDSN string
}

// ChainConfig selects the network the node joins and the identity it
// joins with.
type ChainConfig struct {
	// FakeNetValidator and FakeNetSize pick the slot this node takes in the
	// deterministic fake network. Slot 0 observes without producing.
	FakeNetValidator int
	FakeNetSize      int

	// GenesisFile, when set, replaces the fake network with a genesis
	// specification decoded from JSON.
	GenesisFile string

	// KeyFile is the hex-encoded validator key for genesis-file networks.
	KeyFile string
}

type StoreConfig struct {
	// Directory is the snapshot store location below the datadir.
	Directory string

	// Preset names the sizing profile. CacheMB and Handles override the
	// profile where non-zero.
	Preset  string
	CacheMB int
	Handles int
}

// MakeAllConfigs merges defaults, the optional config file and CLI flag
// overrides into a single config struct.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := defaultConfig()

	if file := ctx.String("config"); file != "" {
		if err := loadConfigFile(resolvePath(file), &cfg); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", file, err)
		}
	}
	if err := applyCLIOverrides(ctx, &cfg); err != nil {
		return Config{}, err
	}

	preset, err := integration.GetPresetByName(cfg.Store.Preset)
	if err != nil {
		return Config{}, err
	}
	sizing := integration.StorePreset{CacheMB: cfg.Store.CacheMB, Handles: cfg.Store.Handles}
	integration.ApplyPreset(&sizing, preset)
	cfg.Store.CacheMB, cfg.Store.Handles = sizing.CacheMB, sizing.Handles

	return cfg, nil
}

func defaultConfig() Config {
	d := DefaultConfig()
	return Config{
		Node: NodeConfig{
			DataDir: resolvePath(d.Node.DataDir),
			Name:    d.Node.Name,
			Logging: LoggingConfig{
				Verbosity: d.Logging.Verbosity,
				Format:    d.Logging.Format,
				Color:     d.Logging.Color,
			},
		},
		Chain: ChainConfig{
			FakeNetValidator: d.Chain.FakeNetValidator,
			FakeNetSize:      d.Chain.FakeNetSize,
		},
		Rules: opera.FakeNetRules(),
		TxPool: txpool.Config{
			MaxSize: d.TxPool.MaxSize,
			MinFee:  d.TxPool.MinFee,
		},
		Store: StoreConfig{
			Directory: d.Store.Directory,
			Preset:    d.Store.Preset,
		},
	}
}

// loadConfigFile decodes a JSON document over cfg, so a file only needs the
// fields it wants to change. The Rules section follows the same JSON shape
// that `zksac dumprules` prints.
func loadConfigFile(path string, cfg *Config) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, cfg)
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) error {
	if ctx.IsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.String("datadir"))
	}
	if ctx.IsSet("identity") {
		cfg.Node.Name = ctx.String("identity")
	}
	if ctx.IsSet("log.format") {
		cfg.Node.Logging.Format = ctx.String("log.format")
	}
	if ctx.IsSet("log.verbosity") {
		cfg.Node.Logging.Verbosity = ctx.Int("log.verbosity")
	}
	if ctx.IsSet("log.color") {
		cfg.Node.Logging.Color = ctx.Bool("log.color")
	}
	if ctx.IsSet("sentry.dsn") {
		cfg.Node.Logging.SentryDSN = ctx.String("sentry.dsn")
	}

	if ctx.IsSet("fakenet") {
		validator, size, err := ParseFakeNet(ctx.String("fakenet"))
		if err != nil {
			return err
		}
		cfg.Chain.FakeNetValidator = validator
		cfg.Chain.FakeNetSize = size
	}
	if ctx.IsSet("genesis") {
		cfg.Chain.GenesisFile = resolvePath(ctx.String("genesis"))
	}
	if ctx.IsSet("validator.keyfile") {
		cfg.Chain.KeyFile = resolvePath(ctx.String("validator.keyfile"))
	}

	if ctx.IsSet("db.preset") {
		cfg.Store.Preset = ctx.String("db.preset")
	}
	if ctx.IsSet("cache") {
		cfg.Store.CacheMB = ctx.Int("cache")
	}
	if ctx.IsSet("handles") {
		cfg.Store.Handles = ctx.Int("handles")
	}

	if ctx.IsSet("txpool.maxsize") {
		cfg.TxPool.MaxSize = ctx.Int("txpool.maxsize")
	}
	if ctx.IsSet("txpool.minfee") {
		cfg.TxPool.MinFee = ctx.Uint64("txpool.minfee")
	}

	applyRulesOverrides(ctx, &cfg.Rules)
	return nil
}

// applyRulesOverrides maps the rules flags onto r. Fractional flags are
// converted to basis points here, at the configuration boundary; consensus
// state never holds floats.
func applyRulesOverrides(ctx *cli.Context, r *opera.Rules) {
	if ctx.IsSet("block.interval") {
		r.Blocks.RoundInterval = inter.Timestamp(ctx.Duration("block.interval"))
	}
	if ctx.IsSet("block.maxtxs") {
		r.Blocks.MaxBlockTxs = uint32(ctx.Int("block.maxtxs"))
	}
	if ctx.IsSet("block.maxsize") {
		r.Blocks.MaxBlockSize = ctx.Uint64("block.maxsize")
	}
	if ctx.IsSet("validator.minstake") {
		r.Validators.MinStake = ctx.Uint64("validator.minstake")
	}
	if ctx.IsSet("validator.slashratio") {
		r.Economy.SlashRatioBP = toBasisPoints(ctx.Float64("validator.slashratio"))
	}
	if ctx.IsSet("validator.rewardrate") {
		r.Economy.RewardRatioBP = toBasisPoints(ctx.Float64("validator.rewardrate"))
	}
	if ctx.IsSet("gov.votingperiod") {
		r.Governance.VotingPeriod = idx.Block(ctx.Uint64("gov.votingperiod"))
	}
	if ctx.IsSet("gov.threshold") {
		r.Governance.ApprovalThresholdBP = toBasisPoints(ctx.Float64("gov.threshold"))
	}
	if ctx.IsSet("oracle.timeout") {
		r.Oracle.ProofTimeout = inter.Timestamp(ctx.Duration("oracle.timeout"))
	}
	if ctx.IsSet("oracle.retries") {
		r.Oracle.Retries = uint32(ctx.Int("oracle.retries"))
	}
	if ctx.Bool("gov.disable") {
		r.Upgrades.Gov = false
	}
	if ctx.Bool("evidence.disable") {
		r.Upgrades.Evidence = false
	}
}

func toBasisPoints(fraction float64) uint32 {
	return uint32(math.Round(fraction * 10000))
}

// ParseFakeNet parses a --fakenet value "n/k": this node takes validator
// slot n of a k-validator fake network. Slot 0 joins without a producer slot.
func ParseFakeNet(s string) (validator, size int, err error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid fakenet %q, expected n/k", s)
	}
	validator, err = strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid fakenet validator in %q: %w", s, err)
	}
	size, err = strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid fakenet size in %q: %w", s, err)
	}
	if size < 1 || validator < 0 || validator > size {
		return 0, 0, fmt.Errorf("invalid fakenet %q: need 0 <= n <= k and k >= 1", s)
	}
	return validator, size, nil
}

func readGenesisFile(path string) (genesis.Genesis, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return genesis.Genesis{}, fmt.Errorf("read genesis file %s: %w", path, err)
	}
	var g genesis.Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return genesis.Genesis{}, fmt.Errorf("decode genesis file %s: %w", path, err)
	}
	return g, nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
