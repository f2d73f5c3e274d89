package main

import (
	"github.com/spf13/cobra"
)

func (a *app) accountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "accounts",
		Short: "List the accounts transactions can be sent from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			backend, release, err := a.dial(ctx)
			if err != nil {
				return err
			}
			defer release()

			accounts, err := backend.Accounts(ctx)
			if err != nil {
				return err
			}

			if a.jsonOut() {
				return a.printJSON(accounts)
			}
			for _, account := range accounts {
				a.printf("%s\n", account.Hex())
			}
			return nil
		},
	}
}
