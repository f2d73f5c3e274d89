package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/branched-services/go-evmkit"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (a *app) compileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile <source.sol> <Contract>",
		Short: "Compile a contract with solc and write its artifact",
		Long: `Compile runs solc on the source file and selects the named contract.
The artifact is written to --out, or printed to stdout when --out is empty.

Examples:
  evmkit compile contracts/Authorizer.sol Authorizer -o Authorizer.json
  evmkit compile Token.sol Token --solc-version 0.8.24 --optimize-runs 200`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := a.compiler().Compile(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			out := a.v.GetString("out")
			if out == "" {
				return a.printJSON(artifact)
			}
			if err := evmkit.SaveArtifact(out, artifact); err != nil {
				return err
			}
			a.logger.Info("Wrote artifact", "path", out)

			if a.jsonOut() {
				return a.printJSON(map[string]any{
					"contract":        artifact.ContractName,
					"path":            out,
					"compilerVersion": artifact.CompilerVersion,
					"bytecodeSize":    len(artifact.Bytecode),
				})
			}
			a.printf("Compiled %s (%d bytes) to %s\n", artifact.ContractName, len(artifact.Bytecode), out)
			return nil
		},
	}
	cmd.Flags().StringP("out", "o", "", "artifact output path")
	addCompilerFlags(cmd.Flags())
	return cmd
}

func addCompilerFlags(flags *pflag.FlagSet) {
	flags.String("solc", "solc", "solc executable")
	flags.String("solc-version", "", "required solc version, e.g. 0.8.24")
	flags.Int("optimize-runs", 0, "enable the optimizer with this many runs")
	flags.String("evm-version", "", "target EVM version")
	flags.String("base-path", "", "solc base path for imports")
	flags.StringSlice("allow-paths", nil, "extra directories solc may read")
}

func (a *app) compiler() *evmkit.Compiler {
	opts := []evmkit.CompilerOption{
		evmkit.WithSolcPath(a.v.GetString("solc")),
		evmkit.WithCompilerLogger(a.logger),
	}
	if version := a.v.GetString("solc-version"); version != "" {
		opts = append(opts, evmkit.WithSolcVersion(version))
	}
	if runs := a.v.GetInt("optimize-runs"); runs > 0 {
		opts = append(opts, evmkit.WithOptimizer(runs))
	}
	if evm := a.v.GetString("evm-version"); evm != "" {
		opts = append(opts, evmkit.WithEVMVersion(evm))
	}
	if base := a.v.GetString("base-path"); base != "" {
		opts = append(opts, evmkit.WithBasePath(base))
	}
	if paths := a.v.GetStringSlice("allow-paths"); len(paths) > 0 {
		opts = append(opts, evmkit.WithAllowPaths(paths...))
	}
	return evmkit.NewCompiler(opts...)
}

// loadArtifact compiles .sol sources and reads anything else as an artifact
// file. A bare ABI array is accepted for binding existing contracts.
func (a *app) loadArtifact(ctx context.Context, path, contract string) (*evmkit.Artifact, error) {
	if strings.EqualFold(filepath.Ext(path), ".sol") {
		if contract == "" {
			contract = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return a.compiler().Compile(ctx, path, contract)
	}

	data, err := os.ReadFile(path)
	if err == nil && strings.HasPrefix(strings.TrimSpace(string(data)), "[") {
		return &evmkit.Artifact{
			ContractName: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
			ABI:          data,
		}, nil
	}
	return evmkit.LoadArtifact(path)
}
