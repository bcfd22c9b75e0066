package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/nexusbbs/nexusd/internal/auth"
	"github.com/nexusbbs/nexusd/internal/model"
)

func newAccountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage Nexus accounts offline",
		Long: `Manage accounts directly against nexusd's SQLite database.

This is the recovery path for a server that has lost its only enabled
admin account: "nexusd accounts create --admin" prompts interactively for
credentials, bypassing the permission-merge rules the live protocol
enforces between existing accounts.`,
	}
	cmd.AddCommand(newAccountsListCmd())
	cmd.AddCommand(newAccountsCreateCmd())
	cmd.AddCommand(newAccountsDeleteCmd())
	return cmd
}

func newAccountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			accounts, err := st.ListAccounts()
			if err != nil {
				return err
			}
			sort.Slice(accounts, func(i, j int) bool {
				return strings.ToLower(accounts[i].Username) < strings.ToLower(accounts[j].Username)
			})

			rows := make([][]string, 0, len(accounts))
			for _, a := range accounts {
				rows = append(rows, []string{
					a.Username,
					boolStr(a.IsAdmin),
					boolStr(a.IsShared),
					boolStr(a.Enabled),
					fmt.Sprintf("%d", len(a.Permissions)),
					a.CreatedAt.Format(time.RFC3339),
				})
			}
			renderTable([]string{"Username", "Admin", "Shared", "Enabled", "Perms", "Created"}, rows)
			return nil
		},
	}
}

func newAccountsCreateCmd() *cobra.Command {
	var (
		username    string
		password    string
		isAdmin     bool
		isShared    bool
		permissions []string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if username == "" {
				prompt := promptui.Prompt{Label: "Username"}
				username, err = prompt.Run()
				if err != nil {
					return err
				}
			}
			if !model.ValidUsername(username) {
				return fmt.Errorf("invalid username %q: must be 1-32 ASCII graphic characters", username)
			}

			if password == "" {
				pw := promptui.Prompt{Label: "Password", Mask: '*'}
				password, err = pw.Run()
				if err != nil {
					return err
				}
				confirm := promptui.Prompt{Label: "Confirm password", Mask: '*'}
				confirmed, err := confirm.Run()
				if err != nil {
					return err
				}
				if confirmed != password {
					return fmt.Errorf("passwords do not match")
				}
			}

			hash, err := auth.HashPassword(password)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			perms := model.PermissionSet{}
			for _, p := range permissions {
				p = strings.TrimSpace(p)
				if p != "" {
					perms[model.Permission(p)] = true
				}
			}
			if isShared {
				perms = perms.FilterShareable()
			}
			if isAdmin {
				isShared = false
				perms = nil
			}

			acct := model.Account{
				Username:     username,
				PasswordHash: hash,
				IsAdmin:      isAdmin,
				IsShared:     isShared,
				Enabled:      true,
				Permissions:  perms,
				CreatedAt:    time.Now(),
				Locale:       "en",
			}
			if err := st.CreateAccount(acct); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			fmt.Printf("created account %q (admin=%v shared=%v)\n", username, isAdmin, isShared)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "account username (prompted if omitted)")
	cmd.Flags().StringVar(&password, "password", "", "account password (prompted if omitted)")
	cmd.Flags().BoolVar(&isAdmin, "admin", false, "grant admin (implies full permissions, ignores --permissions)")
	cmd.Flags().BoolVar(&isShared, "shared", false, "create a shared account")
	cmd.Flags().StringSliceVar(&permissions, "permissions", nil, "comma-separated permission names")
	return cmd
}

func newAccountsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			username := args[0]
			if model.CanonicalUsername(username) == model.GuestUsername {
				return fmt.Errorf("the guest account cannot be deleted")
			}

			acct, err := st.GetAccount(username)
			if err != nil {
				return fmt.Errorf("lookup %q: %w", username, err)
			}
			if acct.IsAdmin && acct.Enabled {
				count, err := st.EnabledAdminCount()
				if err != nil {
					return err
				}
				if count <= 1 {
					return fmt.Errorf("refusing to delete the last enabled admin account (§3 last-admin guard)")
				}
			}
			if err := st.DeleteAccount(username); err != nil {
				return fmt.Errorf("delete account: %w", err)
			}
			fmt.Printf("deleted account %q\n", username)
			return nil
		},
	}
}

func boolStr(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
