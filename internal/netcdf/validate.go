package netcdf

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"imaspy/internal/dd"
	"imaspy/internal/ids"
	"imaspy/internal/logging"
)

// InvalidEntryError reports a file that does not follow the IMAS netCDF conventions.
type InvalidEntryError struct {
	// Group is the offending group, e.g. "core_profiles/1"; empty for the file.
	Group  string
	Reason string
}

func (e *InvalidEntryError) Error() string {
	if e.Group == "" {
		return "invalid IMAS netCDF entry: " + e.Reason
	}
	return fmt.Sprintf("invalid IMAS netCDF entry %s: %s", e.Group, e.Reason)
}

func invalid(group, format string, args ...any) error {
	return &InvalidEntryError{Group: group, Reason: fmt.Sprintf(format, args...)}
}

// Attributes a variable may carry.
var allowedAttrs = []string{"_FillValue", "ancillary_variables", "coordinates", "documentation", "sparse", "units"}

// ValidateFile checks that the file at path follows the IMAS netCDF conventions. The
// DD version named by the file is loaded from store.
func ValidateFile(path string, store *dd.Store) error {
	if !strings.HasSuffix(path, ".nc") {
		return invalid("", "file name %q does not end with .nc", path)
	}
	d, err := ReadFile(path)
	if err != nil {
		return err
	}
	if d.Root.Attrs["Conventions"].Text != "IMAS" {
		return invalid("", "Conventions attribute is %q, expected \"IMAS\"", d.Root.Attrs["Conventions"].Text)
	}
	version := d.DDVersion()
	if version == "" {
		return invalid("", "data_dictionary_version attribute is missing")
	}
	f, err := store.NewFactory(version)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return Validate(d, f)
}

// Validate checks the group layout and every variable of d against the DD of f.
func Validate(d *Dataset, f *ids.Factory) error {
	timer := logging.StartTimer(logging.CategoryNetCDF, "Validate")
	defer timer.Stop()

	if len(d.Root.Variables) > 0 || len(d.Root.Dimensions) > 0 {
		return invalid("", "the root group may not contain variables or dimensions")
	}
	for _, g := range d.Root.Groups {
		if len(g.Variables) > 0 || len(g.Dimensions) > 0 {
			return invalid(g.Name, "an IDS group may not contain variables or dimensions")
		}
		if !f.Exists(g.Name) {
			return invalid(g.Name, "there is no IDS with this name in DD %s", f.Version())
		}
		for _, occ := range g.Groups {
			name := g.Name + "/" + occ.Name
			if n, err := strconv.Atoi(occ.Name); err != nil || n < 0 || strconv.Itoa(n) != occ.Name {
				return invalid(name, "%q is not a valid occurrence number", occ.Name)
			}
			t, err := f.New(g.Name)
			if err != nil {
				return err
			}
			if err := validateGroup(occ, t); err != nil {
				var ie *InvalidEntryError
				if errors.As(err, &ie) {
					return err
				}
				return invalid(name, "%v", err)
			}
		}
	}
	return nil
}

// validateGroup checks the variables of one occurrence group and reads it into t.
func validateGroup(g *Group, t *ids.Toplevel) error {
	nm, err := MetadataFor(t.Metadata())
	if err != nil {
		return err
	}
	mode, err := HomogeneousTime(g)
	if err != nil {
		return err
	}
	homogeneous := mode == ids.TimeModeHomogeneous

	for _, v := range g.Variables {
		if base, ok := strings.CutSuffix(v.Name, ":shape"); ok {
			bv := g.Variable(base)
			if bv == nil || !bv.HasAttr("sparse") {
				return fmt.Errorf("variable %s has no sparse data variable %s", v.Name, base)
			}
			if v.Type != TypeInt {
				return fmt.Errorf("variable %s has type %s, expected %s", v.Name, v.Type, TypeInt)
			}
			continue
		}
		m, err := nm.IDS.Lookup(PathOf(v.Name))
		if err != nil || m.Parent() == nil {
			return fmt.Errorf("variable %s does not correspond to a DD node of %s", v.Name, t.Name())
		}
		if want := varType(m); v.Type != want {
			return fmt.Errorf("variable %s has type %s, expected %s", v.Name, v.Type, want)
		}
		var want []string
		if m.DataType.IsPrimitive() {
			want = nm.Dimensions(m.Path, homogeneous)
		}
		if !slices.Equal(v.Dimensions, want) {
			return fmt.Errorf("variable %s has dimensions %v, expected %v", v.Name, v.Dimensions, want)
		}
		for name, a := range v.Attrs {
			if !slices.Contains(allowedAttrs, name) {
				return fmt.Errorf("variable %s has unsupported attribute %s", v.Name, name)
			}
			if name == "_FillValue" && !slices.Equal(a.Numbers, fillAttr(m).Numbers) {
				return fmt.Errorf("variable %s has _FillValue %v, expected %v", v.Name, a.Numbers, fillAttr(m).Numbers)
			}
		}
	}
	return NC2IDS(g, t)
}
