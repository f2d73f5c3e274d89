package evmkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var solcVersionRegexp = regexp.MustCompile(`Version:\s*(\S+)`)

// Compiler runs a pinned solc executable. The toolchain settings are fixed at
// construction; callers only choose what to compile.
//
// A Compiler holds no mutable state and is safe for concurrent use.
type Compiler struct {
	config *compilerConfig
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	config := defaultCompilerConfig()
	for _, opt := range opts {
		opt(config)
	}
	return &Compiler{config: config}
}

// combinedOutput is the shape of `solc --combined-json abi,bin,bin-runtime`.
type combinedOutput struct {
	Contracts map[string]combinedContract `json:"contracts"`
	Version   string                      `json:"version"`
}

type combinedContract struct {
	ABI        json.RawMessage `json:"abi"`
	Bin        string          `json:"bin"`
	BinRuntime string          `json:"bin-runtime"`
}

// Compile builds sourcePath and returns the artifact for contractName.
//
// It fails with NotFoundError if sourcePath does not exist and with
// CompilationError if solc rejects the source or its output has no deployable
// contract named contractName. No partial artifact is ever returned.
func (c *Compiler) Compile(ctx context.Context, sourcePath, contractName string) (*Artifact, error) {
	info, err := os.Stat(sourcePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: sourcePath, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("evmkit: stat source: %w", err)
	}
	if info.IsDir() {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Err: errors.New("source is a directory")}
	}

	if c.config.version != "" {
		if err := c.checkVersion(ctx); err != nil {
			return nil, err
		}
	}

	logger := c.config.logger.With("source", sourcePath, "contract", contractName)
	logger.Debug("Compiling contract", "solc", c.config.solcPath)

	stdout, stderr, err := c.run(ctx, c.compileArgs(sourcePath)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CompilationError{
				Source:      sourcePath,
				Contract:    contractName,
				Diagnostics: stderr,
				Err:         fmt.Errorf("solc exited with status %d", exitErr.ExitCode()),
			}
		}
		return nil, err
	}
	if warnings := strings.TrimSpace(stderr); warnings != "" {
		logger.Warn("Compiler diagnostics", "output", warnings)
	}

	var out combinedOutput
	if err := json.Unmarshal(stdout, &out); err != nil {
		return nil, &CompilationError{
			Source:      sourcePath,
			Contract:    contractName,
			Diagnostics: stderr,
			Err:         fmt.Errorf("parse solc output: %w", err),
		}
	}

	entry, err := selectContract(out.Contracts, sourcePath, contractName)
	if err != nil {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Diagnostics: stderr, Err: err}
	}
	if strings.TrimSpace(entry.Bin) == "" {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Err: ErrNoBytecode}
	}

	abiJSON, err := normalizeABI(entry.ABI)
	if err != nil {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Err: fmt.Errorf("decode abi: %w", err)}
	}
	bytecode, err := decodeBytecodeHex(entry.Bin)
	if err != nil {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Err: fmt.Errorf("decode bin: %w", err)}
	}
	runtime, err := decodeBytecodeHex(entry.BinRuntime)
	if err != nil {
		return nil, &CompilationError{Source: sourcePath, Contract: contractName, Err: fmt.Errorf("decode bin-runtime: %w", err)}
	}

	logger.Info("Compiled contract", "version", out.Version, "size", len(bytecode))

	return &Artifact{
		ContractName:     contractName,
		ABI:              abiJSON,
		Bytecode:         bytecode,
		DeployedBytecode: runtime,
		CompilerVersion:  out.Version,
	}, nil
}

// Version returns the full version string reported by solc, e.g.
// "0.8.24+commit.e11b9ed9.Linux.g++".
func (c *Compiler) Version(ctx context.Context) (string, error) {
	stdout, stderr, err := c.run(ctx, "--version")
	if err != nil {
		return "", fmt.Errorf("evmkit: solc --version: %w: %s", err, strings.TrimSpace(stderr))
	}
	m := solcVersionRegexp.FindSubmatch(stdout)
	if m == nil {
		return "", fmt.Errorf("evmkit: unrecognized solc --version output %q", strings.TrimSpace(string(stdout)))
	}
	return string(m[1]), nil
}

func (c *Compiler) checkVersion(ctx context.Context) error {
	got, err := c.Version(ctx)
	if err != nil {
		return err
	}
	if got != c.config.version && !strings.HasPrefix(got, c.config.version+"+") {
		return fmt.Errorf("%w: pinned %s, found %s", ErrCompilerVersion, c.config.version, got)
	}
	return nil
}

func (c *Compiler) compileArgs(sourcePath string) []string {
	args := []string{"--combined-json", "abi,bin,bin-runtime"}
	if c.config.optimize {
		args = append(args, "--optimize", "--optimize-runs", strconv.Itoa(c.config.optimizeRuns))
	}
	if c.config.evmVersion != "" {
		args = append(args, "--evm-version", c.config.evmVersion)
	}
	if c.config.basePath != "" {
		args = append(args, "--base-path", c.config.basePath)
	}
	if len(c.config.allowPaths) > 0 {
		args = append(args, "--allow-paths", strings.Join(c.config.allowPaths, ","))
	}
	return append(args, "--", sourcePath)
}

func (c *Compiler) run(ctx context.Context, args ...string) ([]byte, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.config.solcPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, stderr.String(), fmt.Errorf("evmkit: solc interrupted: %w", ctxErr)
		}
		if errors.Is(err, exec.ErrNotFound) {
			return nil, "", fmt.Errorf("evmkit: solc executable %q: %w", c.config.solcPath, err)
		}
		return nil, stderr.String(), err
	}
	return stdout.Bytes(), stderr.String(), nil
}

// selectContract finds "<path>:<name>" in the combined output. The entry from
// sourcePath itself wins; otherwise the name must be unique across all sources.
func selectContract(contracts map[string]combinedContract, sourcePath, name string) (combinedContract, error) {
	for _, p := range []string{sourcePath, filepath.ToSlash(filepath.Clean(sourcePath))} {
		if entry, ok := contracts[p+":"+name]; ok {
			return entry, nil
		}
	}

	keys := make([]string, 0, len(contracts))
	for key := range contracts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var matches []string
	available := make([]string, 0, len(keys))
	for _, key := range keys {
		i := strings.LastIndex(key, ":")
		if key[i+1:] == name {
			matches = append(matches, key)
		}
		available = append(available, key[i+1:])
	}

	switch len(matches) {
	case 1:
		return contracts[matches[0]], nil
	case 0:
		return combinedContract{}, fmt.Errorf("%w: %q (available: %s)", ErrContractNotFound, name, strings.Join(available, ", "))
	default:
		return combinedContract{}, fmt.Errorf("%w: %q is ambiguous (%s)", ErrContractNotFound, name, strings.Join(matches, ", "))
	}
}

// normalizeABI unwraps the string-encoded ABI older solc versions emit.
func normalizeABI(raw json.RawMessage) (json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("missing abi")
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return json.RawMessage(s), nil
}
