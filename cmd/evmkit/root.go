package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/branched-services/go-evmkit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "EVMKIT"

// app carries what every subcommand needs: resolved configuration, output
// streams and the chain connection factory.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
	logger log.Logger

	// dial connects to the configured chain. The returned func releases it.
	dial func(ctx context.Context) (evmkit.Backend, func(), error)
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	return newApp(stdout, stderr).rootCmd()
}

func newApp(stdout, stderr io.Writer) *app {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
		logger: log.NewLogger(log.DiscardHandler()),
	}
	a.dial = a.dialNode
	return a
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "evmkit",
		Short: "Compile, deploy and sign for EVM contracts",
		Long: `evmkit wraps solc, deploys artifacts to a node and produces
ecrecover-compatible authorization signatures.

Settings resolve in order: flags, EVMKIT_* environment variables, then an
evmkit.yaml config file. The private key is read from --key or
EVMKIT_PRIVATE_KEY; without one, transactions are sent from the node's
unlocked accounts.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default ./evmkit.yaml)")
	flags.String("rpc", "http://localhost:8545", "node RPC endpoint")
	flags.String("key", "", "hex private key (or EVMKIT_PRIVATE_KEY)")
	flags.String("from", "", "sender address (default: key address or first node account)")
	flags.Duration("timeout", evmkit.DefaultReceiptTimeout, "receipt wait timeout")
	flags.Duration("poll", evmkit.DefaultPollInterval, "receipt poll interval")
	flags.Int("verbosity", 3, "log level: 0=crit 1=error 2=warn 3=info 4=debug 5=trace")
	flags.Bool("json", false, "print results as JSON")

	root.AddCommand(
		a.compileCmd(),
		a.deployCmd(),
		a.signCmd(),
		a.recoverCmd(),
		a.accountsCmd(),
		a.callCmd(),
		a.sendCmd(),
	)
	return root
}

// init binds flags and environment to viper, reads the optional config file
// and installs the logger.
func (a *app) init(cmd *cobra.Command) error {
	v := a.v
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("key", envPrefix+"_PRIVATE_KEY"); err != nil {
		return err
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("evmkit")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "evmkit"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}

	level := log.FromLegacyLevel(v.GetInt("verbosity"))
	a.logger = log.NewLogger(log.NewTerminalHandlerWithLevel(a.stderr, level, false))
	return nil
}

// privateKey returns the configured key, or nil when none is set.
func (a *app) privateKey() (*evmkit.PrivateKey, error) {
	raw := a.v.GetString("key")
	if raw == "" {
		return nil, nil
	}
	return evmkit.HexToPrivateKey(raw)
}

func (a *app) requireKey() (*evmkit.PrivateKey, error) {
	key, err := a.privateKey()
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, errors.New("no private key: set --key or " + envPrefix + "_PRIVATE_KEY")
	}
	return key, nil
}

// dialNode signs locally when a key is configured and otherwise relies on
// the node's unlocked accounts.
func (a *app) dialNode(ctx context.Context) (evmkit.Backend, func(), error) {
	url := a.v.GetString("rpc")
	key, err := a.privateKey()
	if err != nil {
		return nil, nil, err
	}

	if key == nil {
		node, err := evmkit.Dial(ctx, url)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to %s: %w", url, err)
		}
		return node, node.Close, nil
	}

	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		key.Destroy()
		return nil, nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	backend, err := evmkit.NewKeyedBackend(ctx, client, key)
	if err != nil {
		client.Close()
		key.Destroy()
		return nil, nil, err
	}
	a.logger.Debug("Signing locally", "account", key.Address(), "chainid", backend.ChainID())
	return backend, func() {
		client.Close()
		key.Destroy()
	}, nil
}

func (a *app) deployer(backend evmkit.Backend) *evmkit.Deployer {
	return evmkit.NewDeployer(backend,
		evmkit.WithReceiptTimeout(a.v.GetDuration("timeout")),
		evmkit.WithPollInterval(a.v.GetDuration("poll")),
		evmkit.WithDeployLogger(a.logger),
	)
}

// sender resolves --from, falling back to the backend's first account.
func (a *app) sender(ctx context.Context, d *evmkit.Deployer) (common.Address, error) {
	if from := a.v.GetString("from"); from != "" {
		if !common.IsHexAddress(from) {
			return common.Address{}, fmt.Errorf("invalid --from address %q", from)
		}
		return common.HexToAddress(from), nil
	}
	return d.DefaultSender(ctx)
}

// commandContext bounds a command by the receipt timeout plus a grace period
// for submission.
func (a *app) commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	timeout := a.v.GetDuration("timeout")
	if timeout <= 0 {
		return context.WithCancel(cmd.Context())
	}
	return context.WithTimeout(cmd.Context(), timeout+30*time.Second)
}
