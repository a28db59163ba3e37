package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jmerrifield20/SupplyChainLedger/internal/identity"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect the credential file",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the users in auth.users_file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		dir, err := identity.LoadDirectory(cfg.Auth.UsersFile)
		if err != nil {
			return err
		}
		users := dir.Users()
		if jsonOutput {
			return printJSON(cmd, users)
		}
		tw := newTable(cmd)
		tw.AppendHeader(table.Row{"Username", "Name", "Role"})
		for _, u := range users {
			tw.AppendRow(table.Row{u.Username, u.Name, u.Role})
		}
		tw.Render()
		return nil
	},
}

var usersHashCmd = &cobra.Command{
	Use:   "hash <password>",
	Short: "Print a bcrypt hash for a password_hash entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := identity.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	usersCmd.AddCommand(usersListCmd, usersHashCmd)
}
