package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/branched-services/go-evmkit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

const contractArgsUsage = "<address> <artifact.json|abi.json> <method> [args...]"

// bind resolves the contract address and ABI from the first two arguments.
func (a *app) bind(ctx context.Context, d *evmkit.Deployer, args []string) (*evmkit.DeployedContract, error) {
	if !common.IsHexAddress(args[0]) {
		return nil, fmt.Errorf("invalid contract address %q", args[0])
	}
	artifact, err := a.loadArtifact(ctx, args[1], "")
	if err != nil {
		return nil, err
	}
	contract, err := d.At(common.HexToAddress(args[0]), artifact)
	if err != nil {
		return nil, err
	}
	if !contract.HasMethod(args[2]) {
		return nil, fmt.Errorf("%w: %q (have %v)", evmkit.ErrMethodNotFound, args[2], contract.MethodNames())
	}
	return contract, nil
}

func (a *app) callCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "call " + contractArgsUsage,
		Short: "Execute a read-only contract call",
		Long: `Call runs eth_call against the latest block and prints the decoded outputs.

Example:
  evmkit call 0x5FbDB2315678afecb367f032d93F642f64180aa3 Authorizer.json digest 1 0xB5eF...44fD 100`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			backend, release, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer release()

			contract, err := a.bind(ctx, a.deployer(backend), args)
			if err != nil {
				return err
			}
			call, err := contract.Invoke(args[2], stringArgs(args[3:])...)
			if err != nil {
				return err
			}

			var from common.Address
			if f := a.v.GetString("from"); f != "" {
				from = common.HexToAddress(f)
			}
			out, err := contract.CallWith(ctx, from, call)
			if err != nil {
				return err
			}

			if a.jsonOut() {
				return a.printJSON(out)
			}
			for _, v := range out {
				a.printf("%v\n", formatOutput(v))
			}
			return nil
		},
	}
}

func (a *app) sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send " + contractArgsUsage,
		Short: "Send a contract transaction and wait for it to be mined",
		Long: `Send submits a state-changing call and blocks until it is mined. A reverted
transaction fails with the decoded revert reason.

Example:
  evmkit send 0x5FbD...0aa3 Authorizer.json redeem 1 0xB5eF...44fD 100 27 0x... 0x...
  evmkit send 0x... Vault.json deposit --value 0.9ether`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			var value *big.Int
			if raw := a.v.GetString("value"); raw != "" && raw != "0" {
				v, err := evmkit.ParseValue(raw)
				if err != nil {
					return fmt.Errorf("invalid --value: %w", err)
				}
				value = v
			}

			backend, release, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer release()

			d := a.deployer(backend)
			contract, err := a.bind(ctx, d, args)
			if err != nil {
				return err
			}
			sender, err := a.sender(ctx, d)
			if err != nil {
				return err
			}

			receipt, err := contract.Transact(ctx, sender, a.v.GetUint64("gas"), value, args[2], stringArgs(args[3:])...)
			if err != nil {
				return err
			}

			if a.jsonOut() {
				return a.printJSON(map[string]any{
					"txHash":  receipt.TxHash,
					"block":   receipt.BlockNumber,
					"gasUsed": receipt.GasUsed,
					"status":  receipt.Status,
				})
			}
			a.printf("Transaction mined\n")
			a.printf("  TX Hash:  %s\n", receipt.TxHash.Hex())
			a.printf("  Block:    %s\n", receipt.BlockNumber)
			a.printf("  Gas used: %d\n", receipt.GasUsed)
			return nil
		},
	}
	cmd.Flags().Uint64("gas", 0, "gas limit (estimated when 0)")
	cmd.Flags().String("value", "0", "wei to attach, e.g. 0.9ether")
	return cmd
}

func formatOutput(v any) any {
	switch v := v.(type) {
	case common.Address:
		return v.Hex()
	case common.Hash:
		return v.Hex()
	case []byte:
		return fmt.Sprintf("0x%x", v)
	case [32]byte:
		return fmt.Sprintf("0x%x", v)
	}
	return v
}
