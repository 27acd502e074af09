package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"imaspy/internal/ids"
)

func (a *app) docCmd() *cobra.Command {
	var width int
	cmd := &cobra.Command{
		Use:   "doc <dd_version> <ids>[/<path>]",
		Short: "Show the documentation of a Data Dictionary node",
		Example: `  imaspy doc 3.39.0 core_profiles/global_quantities/ip
  imaspy doc 3.39.0 equilibrium`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := a.store.NewFactory(args[0])
			if err != nil {
				return err
			}
			name, path, _ := strings.Cut(args[1], "/")
			m, err := f.Metadata(name)
			if err != nil {
				return err
			}
			if m, err = m.Lookup(path); err != nil {
				return err
			}
			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
			if err != nil {
				return err
			}
			out, err := r.Render(nodeMarkdown(name, f.Version(), m))
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&width, "width", 100, "Word wrap width")
	return cmd
}

// nodeMarkdown documents a DD node as markdown.
func nodeMarkdown(idsName, version string, m *ids.Metadata) string {
	var b strings.Builder
	title := idsName
	if m.Path != "" {
		title += "/" + m.Path
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if m.Documentation != "" {
		fmt.Fprintf(&b, "%s\n\n", m.Documentation)
	}
	b.WriteString("| Property | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&b, "| %s | %s |\n", k, strings.ReplaceAll(v, "|", "\\|"))
		}
	}
	row("DD version", version)
	row("Data type", dataType(m))
	row("Type", m.Type.String())
	row("Units", m.Units)
	for i, c := range m.Coordinates {
		row(fmt.Sprintf("Coordinate %d", i+1), c.String())
		if sa := m.CoordinatesSameAs[i]; sa != nil && sa.String() != "" {
			row(fmt.Sprintf("Same as %d", i+1), sa.String())
		}
	}
	row("Timebase", m.TimebasePath)
	row("Lifecycle", m.LifecycleStatus)
	if m.ChangeNBCPreviousName != "" {
		row("Renamed", fmt.Sprintf("from %s in %s", m.ChangeNBCPreviousName, m.ChangeNBCVersion))
	}
	if children := m.Children(); len(children) > 0 {
		b.WriteString("\n## Children\n\n")
		for _, c := range children {
			fmt.Fprintf(&b, "- **%s** (%s)", c.Name, dataType(c))
			if c.Units != "" {
				fmt.Fprintf(&b, " [%s]", c.Units)
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

// dataType formats the DD data type, e.g. FLT_1D or struct_array.
func dataType(m *ids.Metadata) string {
	if m.DataType.IsPrimitive() {
		return fmt.Sprintf("%s_%dD", m.DataType, m.NDim)
	}
	return m.DataType.String()
}
