package main

import (
	"fmt"
	"strings"

	"github.com/branched-services/go-evmkit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// authorization holds the three signed message fields.
type authorization struct {
	nonce        *uint256.Int
	counterparty common.Address
	amount       *uint256.Int
}

func addAuthorizationFlags(flags *pflag.FlagSet) {
	flags.String("nonce", "", "authorization nonce (decimal or 0x hex)")
	flags.String("counterparty", "", "counterparty address")
	flags.String("amount", "", "amount in wei, or with a unit suffix (1ether, 5gwei)")
}

func (a *app) authorization() (*authorization, error) {
	nonce, err := parseUint256(a.v.GetString("nonce"))
	if err != nil {
		return nil, fmt.Errorf("invalid --nonce: %w", err)
	}

	counterparty := a.v.GetString("counterparty")
	if !common.IsHexAddress(counterparty) {
		return nil, fmt.Errorf("invalid --counterparty address %q", counterparty)
	}

	wei, err := evmkit.ParseValue(a.v.GetString("amount"))
	if err != nil {
		return nil, fmt.Errorf("invalid --amount: %w", err)
	}
	amount, overflow := uint256.FromBig(wei)
	if overflow {
		return nil, fmt.Errorf("invalid --amount: exceeds 256 bits")
	}

	return &authorization{
		nonce:        nonce,
		counterparty: common.HexToAddress(counterparty),
		amount:       amount,
	}, nil
}

func parseUint256(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("value required")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return uint256.FromHex(s)
	}
	return uint256.FromDecimal(s)
}

func (a *app) signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an authorization for an ecrecover verifier",
		Long: `Sign packs nonce (32 bytes) ‖ counterparty (20 bytes) ‖ amount (32 bytes),
hashes it with Keccak-256, applies the "\x19Ethereum Signed Message:\n32"
prefix and signs the result with the configured key.

Examples:
  EVMKIT_PRIVATE_KEY=0xac09... evmkit sign --nonce 1 \
    --counterparty 0xB5eF866Aa826E1428f38b0C9396F8348167e44fD --amount 100
  evmkit sign --nonce 7 --counterparty 0x... --amount 0.5ether --convention raw --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := a.authorization()
			if err != nil {
				return err
			}
			conv, err := evmkit.ParseRecoveryConvention(a.v.GetString("convention"))
			if err != nil {
				return err
			}

			key, err := a.requireKey()
			if err != nil {
				return err
			}
			defer key.Destroy()

			sig, err := evmkit.SignAuthorization(key, conv, auth.nonce, auth.counterparty, auth.amount)
			if err != nil {
				return err
			}
			digest := evmkit.AuthorizationDigest(auth.nonce, auth.counterparty, auth.amount)

			if a.jsonOut() {
				return a.printJSON(map[string]any{
					"signer":     key.Address(),
					"digest":     digest,
					"r":          hexutil.Encode(sig.R[:]),
					"s":          hexutil.Encode(sig.S[:]),
					"v":          sig.V,
					"convention": conv.String(),
					"signature":  sig.Hex(),
				})
			}
			a.printf("Signer:    %s\n", key.Address().Hex())
			a.printf("Digest:    %s\n", digest.Hex())
			a.printf("r:         %s\n", hexutil.Encode(sig.R[:]))
			a.printf("s:         %s\n", hexutil.Encode(sig.S[:]))
			a.printf("v:         %d\n", sig.V)
			a.printf("Signature: %s\n", sig.Hex())
			return nil
		},
	}
	addAuthorizationFlags(cmd.Flags())
	cmd.Flags().String("convention", "legacy", "recovery id encoding in v: legacy (27/28) or raw (0/1)")
	return cmd
}

func (a *app) recoverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Recover the signer of an authorization signature",
		Long: `Recover rebuilds the authorization digest and returns the address that
produced the 65-byte r ‖ s ‖ v signature. With --expect the command fails
unless the recovered address matches.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			auth, err := a.authorization()
			if err != nil {
				return err
			}
			sig, err := evmkit.ParseSignatureHex(a.v.GetString("signature"))
			if err != nil {
				return err
			}

			signer, err := evmkit.RecoverAuthorizer(auth.nonce, auth.counterparty, auth.amount, sig)
			if err != nil {
				return err
			}

			if expect := a.v.GetString("expect"); expect != "" {
				if !common.IsHexAddress(expect) {
					return fmt.Errorf("invalid --expect address %q", expect)
				}
				if common.HexToAddress(expect) != signer {
					return fmt.Errorf("signature was made by %s, not %s", signer.Hex(), common.HexToAddress(expect).Hex())
				}
			}

			if a.jsonOut() {
				return a.printJSON(map[string]any{"signer": signer})
			}
			a.printf("%s\n", signer.Hex())
			return nil
		},
	}
	addAuthorizationFlags(cmd.Flags())
	cmd.Flags().String("signature", "", "0x-prefixed 65-byte signature")
	cmd.Flags().String("expect", "", "fail unless the signer is this address")
	return cmd
}
