package main

import (
	"github.com/spf13/cobra"
)

const defaultGasLimit = 3_000_000

func (a *app) deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy <artifact.json|source.sol> [constructor-args...]",
		Short: "Deploy a contract and wait for it to be mined",
		Long: `Deploy submits the artifact's bytecode with ABI-encoded constructor
arguments and blocks until the contract has code on chain.

Arguments are converted to the constructor's input types: integers accept
decimal or 0x hex, arrays accept JSON ("[1,2]").

Examples:
  evmkit deploy out/Authorizer.sol/Authorizer.json 0xf39F...2266
  evmkit deploy contracts/Token.sol "My Token" 1000000 --contract Token --gas 5000000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			artifact, err := a.loadArtifact(ctx, args[0], a.v.GetString("contract"))
			if err != nil {
				return err
			}

			backend, release, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer release()

			d := a.deployer(backend)
			sender, err := a.sender(ctx, d)
			if err != nil {
				return err
			}

			contract, err := d.Deploy(ctx, artifact, sender, a.v.GetUint64("gas"), stringArgs(args[1:])...)
			if err != nil {
				return err
			}

			if a.jsonOut() {
				return a.printJSON(map[string]any{
					"contract": artifact.ContractName,
					"address":  contract.Address(),
					"txHash":   contract.TxHash(),
					"sender":   sender,
				})
			}
			a.printf("Deployed %s\n", artifact.ContractName)
			a.printf("  Address: %s\n", contract.Address().Hex())
			a.printf("  TX Hash: %s\n", contract.TxHash().Hex())
			a.printf("  Sender:  %s\n", sender.Hex())
			return nil
		},
	}
	cmd.Flags().String("contract", "", "contract name when deploying from source (default: file name)")
	cmd.Flags().Uint64("gas", defaultGasLimit, "gas limit for the creation transaction")
	addCompilerFlags(cmd.Flags())
	return cmd
}
