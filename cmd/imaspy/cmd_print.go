package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss/tree"
	"github.com/spf13/cobra"

	"imaspy/internal/backend"
	"imaspy/internal/dbentry"
	"imaspy/internal/ids"
)

// maxPrintValues is the number of array values shown per leaf.
const maxPrintValues = 6

type printOptions struct {
	all       bool
	structure bool
}

func (a *app) printCmd() *cobra.Command {
	var o printOptions
	cmd := &cobra.Command{
		Use:   "print <uri> <ids>[/<occurrence>]",
		Short: "Print the contents of an IDS as a tree",
		Long: `Prints the nodes of an IDS that hold data.

Examples:
  imaspy print imas:sqlite?path=./shot core_profiles
  imaspy print data.nc equilibrium/1 --all`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, occ, err := parseIDSSpec(args[1])
			if err != nil {
				return err
			}
			e, err := a.open(cmd.Context(), args[0], backend.ModeRead)
			if err != nil {
				return err
			}
			defer e.Close()
			t, err := e.Get(cmd.Context(), name, dbentry.GetOptions{Occurrence: occ})
			if err != nil {
				return err
			}
			label := fmt.Sprintf("%s (DD %s)", name, t.Version())
			if occ != 0 {
				label = fmt.Sprintf("%s/%d (DD %s)", name, occ, t.Version())
			}
			fmt.Fprintln(cmd.OutOrStdout(), idsTree(label, &t.Structure, o).String())
			return nil
		},
	}
	cmd.Flags().BoolVar(&o.all, "all", false, "Also print empty nodes")
	cmd.Flags().BoolVar(&o.structure, "structure", false, "Only print node names, not values")
	return cmd
}

// parseIDSSpec parses "<ids>" or "<ids>/<occurrence>".
func parseIDSSpec(s string) (string, int, error) {
	name, occStr, ok := strings.Cut(s, "/")
	if !ok {
		return name, 0, nil
	}
	occ, err := strconv.Atoi(occStr)
	if err != nil || occ < 0 {
		return "", 0, fmt.Errorf("invalid occurrence %q in %q", occStr, s)
	}
	return name, occ, nil
}

func idsTree(label string, s *ids.Structure, o printOptions) *tree.Tree {
	t := tree.Root(label)
	children := s.NonEmpty()
	if o.all {
		children = s.Children()
	}
	for _, c := range children {
		name := c.Metadata().Name
		switch n := c.(type) {
		case *ids.Structure:
			t.Child(idsTree(name, n, o))
		case *ids.StructArray:
			at := tree.Root(fmt.Sprintf("%s (%d)", name, n.Len()))
			for i, e := range n.Elements() {
				at.Child(idsTree(fmt.Sprintf("%s[%d]", name, i), e, o))
			}
			t.Child(at)
		case *ids.Primitive:
			if o.structure {
				t.Child(name)
			} else {
				t.Child(name + " = " + formatValue(n))
			}
		}
	}
	return t
}

// formatValue renders a leaf value, abbreviating long arrays.
func formatValue(p *ids.Primitive) string {
	var s string
	switch v := p.Value().(type) {
	case string:
		s = strconv.Quote(v)
	case []string:
		s = formatList(len(v), func(i int) string { return strconv.Quote(v[i]) }, []int{len(v)})
	case *ids.Array[int32]:
		s = formatList(v.Size(), func(i int) string { return strconv.Itoa(int(v.Data()[i])) }, v.Shape())
	case *ids.Array[float64]:
		s = formatList(v.Size(), func(i int) string { return strconv.FormatFloat(v.Data()[i], 'g', 6, 64) }, v.Shape())
	case *ids.Array[complex128]:
		s = formatList(v.Size(), func(i int) string { return fmt.Sprint(v.Data()[i]) }, v.Shape())
	case float64:
		s = strconv.FormatFloat(v, 'g', -1, 64)
	default:
		s = fmt.Sprint(v)
	}
	if u := p.Metadata().Units; u != "" && u != "-" {
		s += " [" + u + "]"
	}
	return s
}

func formatList(n int, item func(int) string, shape []int) string {
	parts := make([]string, 0, min(n, maxPrintValues)+1)
	for i := range min(n, maxPrintValues) {
		parts = append(parts, item(i))
	}
	if n > maxPrintValues {
		parts = append(parts, "...")
	}
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	return fmt.Sprintf("(%s) [%s]", strings.Join(dims, "x"), strings.Join(parts, ", "))
}
