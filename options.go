package evmkit

import (
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// Default deployment settings.
const (
	DefaultReceiptTimeout = 2 * time.Minute
	DefaultPollInterval   = 500 * time.Millisecond
)

// CompilerOption configures a Compiler.
type CompilerOption func(*compilerConfig)

// DeployOption configures a Deployer.
type DeployOption func(*deployConfig)

// compilerConfig holds the fixed compiler toolchain settings.
type compilerConfig struct {
	solcPath     string
	version      string
	optimize     bool
	optimizeRuns int
	evmVersion   string
	basePath     string
	allowPaths   []string
	logger       log.Logger
}

// defaultCompilerConfig returns the default compiler configuration.
func defaultCompilerConfig() *compilerConfig {
	return &compilerConfig{
		solcPath:     "solc",
		optimizeRuns: 200,
		logger:       log.Root(),
	}
}

// WithSolcPath sets the solc executable. Default is "solc" looked up in PATH.
func WithSolcPath(path string) CompilerOption {
	return func(c *compilerConfig) {
		c.solcPath = path
	}
}

// WithSolcVersion pins the compiler version, e.g. "0.8.24". Compile fails with
// ErrCompilerVersion when the executable reports a different version.
func WithSolcVersion(version string) CompilerOption {
	return func(c *compilerConfig) {
		c.version = version
	}
}

// WithOptimizer enables the optimizer with the given runs.
func WithOptimizer(runs int) CompilerOption {
	return func(c *compilerConfig) {
		c.optimize = true
		if runs > 0 {
			c.optimizeRuns = runs
		}
	}
}

// WithEVMVersion sets the target EVM version, e.g. "paris".
func WithEVMVersion(version string) CompilerOption {
	return func(c *compilerConfig) {
		c.evmVersion = version
	}
}

// WithBasePath sets the solc base path used for import resolution.
func WithBasePath(path string) CompilerOption {
	return func(c *compilerConfig) {
		c.basePath = path
	}
}

// WithAllowPaths adds directories solc may read imports from.
func WithAllowPaths(paths ...string) CompilerOption {
	return func(c *compilerConfig) {
		c.allowPaths = append(c.allowPaths, paths...)
	}
}

// WithCompilerLogger sets the logger. Default is log.Root().
func WithCompilerLogger(logger log.Logger) CompilerOption {
	return func(c *compilerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// deployConfig holds the receipt wait settings.
type deployConfig struct {
	receiptTimeout time.Duration
	pollInterval   time.Duration
	logger         log.Logger
}

// defaultDeployConfig returns the default deploy configuration.
func defaultDeployConfig() *deployConfig {
	return &deployConfig{
		receiptTimeout: DefaultReceiptTimeout,
		pollInterval:   DefaultPollInterval,
		logger:         log.Root(),
	}
}

// WithReceiptTimeout bounds the wait for inclusion. Non-positive values are
// ignored, so the wait is always bounded even when ctx has no deadline.
func WithReceiptTimeout(d time.Duration) DeployOption {
	return func(c *deployConfig) {
		if d > 0 {
			c.receiptTimeout = d
		}
	}
}

// WithPollInterval sets how often the receipt is polled.
func WithPollInterval(d time.Duration) DeployOption {
	return func(c *deployConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithDeployLogger sets the logger. Default is log.Root().
func WithDeployLogger(logger log.Logger) DeployOption {
	return func(c *deployConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}
