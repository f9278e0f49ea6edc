package test

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gopkg.in/urfave/cli.v1"

	"github.com/nzengi/zk-sac-engine/cmd/zksac/launcher"
	"github.com/nzengi/zk-sac-engine/flags"
	"github.com/nzengi/zk-sac-engine/integration"
	"github.com/nzengi/zk-sac-engine/inter"
	"github.com/nzengi/zk-sac-engine/opera"
)

// helper to run MakeAllConfigs with a synthetic CLI context.

func runConfigFromArgs(t *testing.T, args []string) launcher.Config {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true

	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.NetworkFlags()...)
	app.Flags = append(app.Flags, flags.TxPoolFlags()...)
	app.Flags = append(app.Flags, flags.NodeFlags()...)
	app.Flags = append(app.Flags, flags.RulesFlags()...)

	var got launcher.Config
	app.Action = func(c *cli.Context) error {
		var err error
		got, err = launcher.MakeAllConfigs(c)
		return err
	}

	if err := app.Run(append([]string{"zksac"}, args...)); err != nil {
		t.Fatalf("app.Run failed: %v", err)
	}
	return got
}

// TestMakeAllConfigs_flagOverrides verifies that every command-line flag we
// declare correctly overrides the corresponding field in the aggregated
// Config struct. Each sub-test feeds custom CLI arguments into a synthetic
// app, invokes launcher.MakeAllConfigs, and checks the bits of the resulting
// struct that should have changed.
func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg launcher.Config)
	}{
		{
			name: "datadir and identity",
			args: []string{"--datadir", "/tmp/zksac-test/node-data", "--identity", "relay-7"},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.Node.DataDir != filepath.Join("/tmp/zksac-test/node-data") {
					t.Fatalf("DataDir = %q, want /tmp/zksac-test/node-data", cfg.Node.DataDir)
				}
				if cfg.Node.Name != "relay-7" {
					t.Fatalf("Name = %q, want relay-7", cfg.Node.Name)
				}
			},
		},
		{
			name: "fakenet slot",
			args: []string{"--fakenet", "2/5"},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.Chain.FakeNetValidator != 2 || cfg.Chain.FakeNetSize != 5 {
					t.Fatalf("fakenet = %d/%d, want 2/5", cfg.Chain.FakeNetValidator, cfg.Chain.FakeNetSize)
				}
				if cfg.Rules.NetworkID != opera.FakeNetworkID {
					t.Fatalf("NetworkID = %d, want the fakenet id", cfg.Rules.NetworkID)
				}
			},
		},
		{
			name: "block rules",
			args: []string{"--block.interval", "1s", "--block.maxtxs", "500", "--block.maxsize", "2097152"},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.Rules.Blocks.RoundInterval != inter.Timestamp(time.Second) {
					t.Fatalf("RoundInterval = %d, want 1s", cfg.Rules.Blocks.RoundInterval)
				}
				if cfg.Rules.Blocks.MaxBlockTxs != 500 {
					t.Fatalf("MaxBlockTxs = %d, want 500", cfg.Rules.Blocks.MaxBlockTxs)
				}
				if cfg.Rules.Blocks.MaxBlockSize != 2097152 {
					t.Fatalf("MaxBlockSize = %d, want 2097152", cfg.Rules.Blocks.MaxBlockSize)
				}
			},
		},
		{
			name: "economics and governance to basis points",
			args: []string{
				"--validator.minstake", "5000000000",
				"--validator.slashratio", "0.1",
				"--validator.rewardrate", "0.04",
				"--gov.votingperiod", "40",
				"--gov.threshold", "0.67",
			},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.Rules.Validators.MinStake != 5000000000 {
					t.Fatalf("MinStake = %d, want 5000000000", cfg.Rules.Validators.MinStake)
				}
				if cfg.Rules.Economy.SlashRatioBP != 1000 {
					t.Fatalf("SlashRatioBP = %d, want 1000", cfg.Rules.Economy.SlashRatioBP)
				}
				if cfg.Rules.Economy.RewardRatioBP != 400 {
					t.Fatalf("RewardRatioBP = %d, want 400", cfg.Rules.Economy.RewardRatioBP)
				}
				if cfg.Rules.Governance.VotingPeriod != 40 {
					t.Fatalf("VotingPeriod = %d, want 40", cfg.Rules.Governance.VotingPeriod)
				}
				if cfg.Rules.Governance.ApprovalThresholdBP != 6700 {
					t.Fatalf("ApprovalThresholdBP = %d, want 6700", cfg.Rules.Governance.ApprovalThresholdBP)
				}
			},
		},
		{
			name: "oracle and feature gates",
			args: []string{"--oracle.timeout", "2s", "--oracle.retries", "5", "--gov.disable", "--evidence.disable"},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.Rules.Oracle.ProofTimeout != inter.Timestamp(2*time.Second) {
					t.Fatalf("ProofTimeout = %d, want 2s", cfg.Rules.Oracle.ProofTimeout)
				}
				if cfg.Rules.Oracle.Retries != 5 {
					t.Fatalf("Retries = %d, want 5", cfg.Rules.Oracle.Retries)
				}
				if cfg.Rules.Upgrades.Gov || cfg.Rules.Upgrades.Evidence {
					t.Fatalf("Upgrades = %+v, want both gates off", cfg.Rules.Upgrades)
				}
			},
		},
		{
			name: "txpool and store sizing",
			args: []string{"--txpool.maxsize", "100", "--txpool.minfee", "7", "--db.preset", "lite", "--handles", "17"},
			want: func(t *testing.T, cfg launcher.Config) {
				if cfg.TxPool.MaxSize != 100 || cfg.TxPool.MinFee != 7 {
					t.Fatalf("TxPool = %+v, want MaxSize 100 MinFee 7", cfg.TxPool)
				}
				lite := integration.LitePreset()
				if cfg.Store.CacheMB != lite.CacheMB {
					t.Fatalf("CacheMB = %d, want the lite preset's %d", cfg.Store.CacheMB, lite.CacheMB)
				}
				// the explicit flag beats the preset
				if cfg.Store.Handles != 17 {
					t.Fatalf("Handles = %d, want 17", cfg.Store.Handles)
				}
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := runConfigFromArgs(t, test.args)
			test.want(t, cfg)
		})
	}
}

// TestMakeAllConfigs_configFile verifies the defaults -> file -> flags
// precedence: the file overrides defaults, flags override the file.
func TestMakeAllConfigs_configFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "zksac-config")
	if err != nil {
		t.Fatalf("TempDir failed: %v", err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.json")
	body := `{
		"Node":   {"Name": "from-file"},
		"TxPool": {"MaxSize": 77, "MinFee": 3}
	}`
	if err := ioutil.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	cfg := runConfigFromArgs(t, []string{"--config", path, "--txpool.maxsize", "99"})

	if cfg.Node.Name != "from-file" {
		t.Fatalf("Name = %q, want the file's from-file", cfg.Node.Name)
	}
	if cfg.TxPool.MaxSize != 99 {
		t.Fatalf("MaxSize = %d, want the flag's 99 over the file's 77", cfg.TxPool.MaxSize)
	}
	if cfg.TxPool.MinFee != 3 {
		t.Fatalf("MinFee = %d, want the file's 3", cfg.TxPool.MinFee)
	}
}

// TestParseFakeNet exercises the n/k parser directly.
func TestParseFakeNet(t *testing.T) {
	validator, size, err := launcher.ParseFakeNet("2/5")
	if err != nil {
		t.Fatalf("ParseFakeNet(2/5) failed: %v", err)
	}
	if validator != 2 || size != 5 {
		t.Fatalf("ParseFakeNet(2/5) = %d/%d", validator, size)
	}

	// slot 0 is the observer slot
	if _, _, err := launcher.ParseFakeNet("0/3"); err != nil {
		t.Fatalf("ParseFakeNet(0/3) failed: %v", err)
	}

	for _, bad := range []string{"5", "0/0", "6/5", "-1/5", "x/2", "2/x", ""} {
		if _, _, err := launcher.ParseFakeNet(bad); err == nil {
			t.Fatalf("ParseFakeNet(%q) should fail", bad)
		}
	}
}
