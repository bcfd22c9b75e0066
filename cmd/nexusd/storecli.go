package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/nexusbbs/nexusd/internal/config"
	"github.com/nexusbbs/nexusd/internal/store"
)

// openStore loads config and opens the same SQLite database the daemon
// uses, for offline administration (account recovery, ban review, etc).
func openStore() (*store.Store, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	st, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store %s: %w", cfg.DatabasePath, err)
	}
	return st, cfg, nil
}

// renderTable prints headers/rows the way the teacher's dittofs-derived
// cmdutil.PrintOutput does: borderless, left-aligned, no whitespace padding.
func renderTable(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}
