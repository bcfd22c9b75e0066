package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newBansCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bans",
		Short: "Review and remove IP bans offline",
	}
	cmd.AddCommand(newListEntriesCmd("ban"))
	cmd.AddCommand(newDeleteEntryCmd("ban"))
	return cmd
}

func newTrustsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trusts",
		Short: "Review and remove IP trusts offline",
	}
	cmd.AddCommand(newListEntriesCmd("trust"))
	cmd.AddCommand(newDeleteEntryCmd("trust"))
	return cmd
}

func newListEntriesCmd(list string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s entries", list),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.ListEntries(list)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				expires := "never"
				if e.ExpiresAt != nil {
					expires = e.ExpiresAt.Format(time.RFC3339)
				}
				rows = append(rows, []string{e.IPOrCIDR, e.Nickname, e.Reason, e.CreatedBy, e.CreatedAt.Format(time.RFC3339), expires})
			}
			renderTable([]string{"IP/CIDR", "Nickname", "Reason", "Created By", "Created At", "Expires"}, rows)
			return nil
		},
	}
}

func newDeleteEntryCmd(list string) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <ip-or-cidr>",
		Short: fmt.Sprintf("Remove a %s entry", list),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, _, err := openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.DeleteListEntry(list, args[0]); err != nil {
				return fmt.Errorf("delete %s entry: %w", list, err)
			}
			fmt.Printf("removed %s entry %q\n", list, args[0])
			return nil
		},
	}
}
