package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"imaspy/internal/backend"
	"imaspy/internal/netcdf"
)

func (a *app) validateNCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate_nc <file.nc>",
		Short: "Check that a netCDF file follows the IMAS conventions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := netcdf.ValidateFile(args[0], a.store); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is a valid IMAS netCDF file\n", args[0])
			return nil
		},
	}
}

func (a *app) lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <uri>",
		Short: "List the IDSs and occurrences stored in a data entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.open(cmd.Context(), args[0], backend.ModeRead)
			if err != nil {
				return err
			}
			defer e.Close()
			all, err := e.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintf(w, "No IDSs found in %s\n", args[0])
				return nil
			}
			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			slices.Sort(names)
			t := newTable("IDS", "Occurrences")
			for _, name := range names {
				occs := make([]string, len(all[name]))
				for i, occ := range all[name] {
					occs[i] = strconv.Itoa(occ)
				}
				t.Row(name, strings.Join(occs, ", "))
			}
			fmt.Fprintln(w, t.String())
			fmt.Fprintf(w, "%s backend, DD %s\n", e.Backend(), e.DDVersion())
			return nil
		},
	}
}
