// Package launcher wires configuration, logging, storage and the consensus
// engine into a runnable node behind a cli.App.
//
// Key concepts:
//   - Launch: parse args, run the selected command (the node by default)
//   - Config: defaults, then config file, then flag overrides
//   - run: bring the engine up on the snapshot store and wait for a signal
//
// Usage:
//
//	zksac --fakenet 1/3 --block.interval 1s
//	zksac dumprules --fakenet 1/3
package launcher

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/evalphobia/logrus_sentry"
	"github.com/sirupsen/logrus"
	"gopkg.in/urfave/cli.v1"

	"github.com/nzengi/zk-sac-engine/consensus"
	"github.com/nzengi/zk-sac-engine/flags"
	"github.com/nzengi/zk-sac-engine/integration"
	"github.com/nzengi/zk-sac-engine/opera/genesis"
	"github.com/nzengi/zk-sac-engine/snapstore"
	"github.com/nzengi/zk-sac-engine/txpool"
)

var app = flags.NewApp()

func init() {
	app.Action = runNode
	app.Flags = nodeFlags()
	app.Commands = []cli.Command{
		versionCommand,
		dumpRulesCommand,
	}
}

func nodeFlags() []cli.Flag {
	var fs []cli.Flag
	fs = append(fs, flags.CommonFlags()...)
	fs = append(fs, flags.NetworkFlags()...)
	fs = append(fs, flags.TxPoolFlags()...)
	fs = append(fs, flags.NodeFlags()...)
	fs = append(fs, flags.RulesFlags()...)
	return fs
}

// Launch parses args and runs the selected command, the node itself by default.
func Launch(args []string) error {
	return app.Run(args)
}

func runNode(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	log, err := makeLogger(cfg.Node.Logging)
	if err != nil {
		return err
	}

	g, err := makeGenesis(cfg)
	if err != nil {
		return err
	}
	key, err := nodeKey(cfg)
	if err != nil {
		return err
	}

	if err := ensureDir(cfg.Node.DataDir); err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	eng, err := integration.MakeEngine(store, &g, consensus.Options{
		Key:   key,
		Pool:  txpool.New(cfg.TxPool),
		Log:   log,
		Extra: []byte(cfg.Node.Name),
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := eng.Start(runCtx); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"network":   g.Rules.Name,
		"validator": eng.Address().String(),
		"datadir":   cfg.Node.DataDir,
	}).Info("Node started")

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc

	log.Info("Shutting down")
	eng.Stop()
	return eng.Halted()
}

// makeGenesis resolves the chain the node joins: a genesis file when given,
// the deterministic fake network otherwise. Rule flags tune the fake network
// only; a genesis file is the network's identity and wins, except for the
// node-local Upgrades gates.
func makeGenesis(cfg Config) (genesis.Genesis, error) {
	if cfg.Chain.GenesisFile != "" {
		g, err := readGenesisFile(cfg.Chain.GenesisFile)
		if err != nil {
			return genesis.Genesis{}, err
		}
		g.Rules.Upgrades = cfg.Rules.Upgrades
		return g, nil
	}
	if cfg.Chain.FakeNetSize < 1 {
		return genesis.Genesis{}, fmt.Errorf("fakenet size %d, need at least one validator", cfg.Chain.FakeNetSize)
	}
	g := genesis.FakeGenesis(cfg.Chain.FakeNetSize, genesis.FakeBalance, genesis.FakeStake)
	g.Rules = cfg.Rules
	return g, nil
}

// nodeKey resolves the validator signing key. Fakenet slots derive their
// deterministic key; slot 0 gets a throwaway key outside the validator set,
// so the node validates without ever winning production. Other networks read
// the configured key file.
func nodeKey(cfg Config) (*ecdsa.PrivateKey, error) {
	if cfg.Chain.GenesisFile == "" {
		return genesis.FakeKey(cfg.Chain.FakeNetValidator), nil
	}
	if cfg.Chain.KeyFile == "" {
		return nil, errors.New("a validator key file is required outside fakenet (--validator.keyfile)")
	}
	key, err := crypto.LoadECDSA(cfg.Chain.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load validator key %s: %w", cfg.Chain.KeyFile, err)
	}
	return key, nil
}

func openStore(cfg Config) (*snapstore.Store, error) {
	dir := filepath.Join(cfg.Node.DataDir, cfg.Store.Directory)
	store, err := snapstore.NewLevelDBStore(dir, cfg.Store.CacheMB, cfg.Store.Handles)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store %s: %w", dir, err)
	}
	return store, nil
}

// makeLogger builds the node's root logger and attaches the Sentry hook when
// a DSN is configured.
func makeLogger(cfg LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetLevel(verbosityLevel(cfg.Verbosity))

	switch cfg.Format {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "", "text":
		log.SetFormatter(&logrus.TextFormatter{
			ForceColors:   cfg.Color,
			FullTimestamp: true,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q (text|json)", cfg.Format)
	}

	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []logrus.Level{
			logrus.PanicLevel,
			logrus.FatalLevel,
			logrus.ErrorLevel,
		})
		if err != nil {
			return nil, fmt.Errorf("sentry hook: %w", err)
		}
		hook.StacktraceConfiguration.Enable = true
		log.Hooks.Add(hook)
	}
	return log, nil
}

func verbosityLevel(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.FatalLevel
	case v == 1:
		return logrus.ErrorLevel
	case v == 2:
		return logrus.WarnLevel
	case v == 3:
		return logrus.InfoLevel
	case v == 4:
		return logrus.DebugLevel
	default:
		return logrus.TraceLevel
	}
}

var versionCommand = cli.Command{
	Action: printVersion,
	Name:   "version",
	Usage:  "Print version numbers",
}

func printVersion(ctx *cli.Context) error {
	fmt.Fprintln(app.Writer, app.Name, "version", app.Version)
	return nil
}

var dumpRulesCommand = cli.Command{
	Action: dumpRules,
	Name:   "dumprules",
	Usage:  "Print the effective network rules as JSON",
	Flags:  nodeFlags(),
}

func dumpRules(ctx *cli.Context) error {
	cfg, err := MakeAllConfigs(ctx)
	if err != nil {
		return err
	}
	rules := cfg.Rules
	if cfg.Chain.GenesisFile != "" {
		g, err := readGenesisFile(cfg.Chain.GenesisFile)
		if err != nil {
			return err
		}
		g.Rules.Upgrades = cfg.Rules.Upgrades
		rules = g.Rules
	}
	b, err := json.MarshalIndent(&rules, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(app.Writer, string(b))
	return nil
}
