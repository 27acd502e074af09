package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"imaspy/internal/backend"
	"imaspy/internal/dbentry"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// newTable returns a bordered table with a header row.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle()
		}).
		Headers(headers...)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the imaspy version and the available Data Dictionary versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := a.store.Versions()
			if err != nil {
				return err
			}
			def, err := a.store.Resolve("")
			if err != nil {
				return err
			}
			t := newTable("", "").
				Row("imaspy version", version).
				Row("Access layer language", backend.AccessLayerLanguage).
				Row("Default DD version", def).
				Row("Available DD versions", strings.Join(versions, ", ")).
				Row("Backends", strings.Join(dbentry.Backends, ", "))
			fmt.Fprintln(cmd.OutOrStdout(), t.String())
			return nil
		},
	}
}
