package netcdf_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imaspy/internal/backend"
	"imaspy/internal/backend/backendtest"
	"imaspy/internal/netcdf"
)

func validDataset(t *testing.T) *netcdf.Dataset {
	t.Helper()
	f := backendtest.Factory(t, "3.39.0")
	d := netcdf.NewDataset("3.39.0")
	ig, err := d.Root.CreateGroup("core_profiles")
	require.NoError(t, err)
	og, err := ig.CreateGroup("0")
	require.NoError(t, err)
	require.NoError(t, netcdf.IDS2NC(backendtest.CoreProfiles(t, f), og))
	return d
}

func TestValidate(t *testing.T) {
	f := backendtest.Factory(t, "3.39.0")
	require.NoError(t, netcdf.Validate(validDataset(t), f))

	tests := []struct {
		name   string
		modify func(d *netcdf.Dataset)
		reason string
	}{
		{"root variable", func(d *netcdf.Dataset) {
			_, _ = d.Root.CreateVariable("x", netcdf.TypeInt, nil, nil)
		}, "root group"},
		{"ids dimension", func(d *netcdf.Dataset) {
			_ = d.Root.Group("core_profiles").CreateDimension("x", 1)
		}, "IDS group"},
		{"unknown ids", func(d *netcdf.Dataset) {
			_, _ = d.Root.CreateGroup("not_an_ids")
		}, "no IDS with this name"},
		{"bad occurrence", func(d *netcdf.Dataset) {
			_, _ = d.Root.Group("core_profiles").CreateGroup("first")
		}, "not a valid occurrence number"},
		{"unknown variable", func(d *netcdf.Dataset) {
			_, _ = d.Root.Group("core_profiles").Group("0").CreateVariable("global_quantities.nope", netcdf.TypeDouble, nil, nil)
		}, "does not correspond to a DD node"},
		{"wrong type", func(d *netcdf.Dataset) {
			d.Root.Group("core_profiles").Group("0").Variable("global_quantities.ip").Type = netcdf.TypeInt
		}, "expected f8"},
		{"wrong dimensions", func(d *netcdf.Dataset) {
			v := d.Root.Group("core_profiles").Group("0").Variable("profiles_1d.electrons.temperature")
			v.Dimensions = []string{v.Dimensions[1], v.Dimensions[0]}
		}, "dimensions"},
		{"extra attribute", func(d *netcdf.Dataset) {
			d.Root.Group("core_profiles").Group("0").Variable("global_quantities.ip").Attrs["comment"] = netcdf.TextAttr("x")
		}, "unsupported attribute comment"},
		{"fill value", func(d *netcdf.Dataset) {
			d.Root.Group("core_profiles").Group("0").Variable("global_quantities.ip").Attrs["_FillValue"] = netcdf.Attr{Numbers: []float64{0}}
		}, "_FillValue"},
		{"missing time mode", func(d *netcdf.Dataset) {
			og := d.Root.Group("core_profiles").Group("0")
			og.Variable("ids_properties.homogeneous_time").Name = "ids_properties.creation_date"
		}, "homogeneous_time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := validDataset(t)
			tt.modify(d)
			err := netcdf.Validate(d, f)
			var ie *netcdf.InvalidEntryError
			require.ErrorAs(t, err, &ie)
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestValidateFile(t *testing.T) {
	store := backendtest.Store()
	dir := t.TempDir()

	err := netcdf.ValidateFile(filepath.Join(dir, "data.h5"), store)
	var ie *netcdf.InvalidEntryError
	require.ErrorAs(t, err, &ie)

	path := filepath.Join(dir, "data.nc")
	e, err := netcdf.Open(path, backend.ModeWrite, "3.39.0", 1)
	require.NoError(t, err)
	f := backendtest.Factory(t, "3.39.0")
	require.NoError(t, e.Put(context.Background(), backendtest.CoreProfiles(t, f), 0, false))
	require.NoError(t, e.Put(context.Background(), backendtest.PulseSchedule(t, f), 1, false))
	require.NoError(t, e.Close(false))
	assert.NoError(t, netcdf.ValidateFile(path, store))

	d := netcdf.NewDataset("3.39.0")
	d.Root.Attrs["Conventions"] = netcdf.TextAttr("CF-1.8")
	other := filepath.Join(dir, "other.nc")
	require.NoError(t, netcdf.Encoder{Level: 1}.WriteFile(other, d))
	require.ErrorAs(t, netcdf.ValidateFile(other, store), &ie)
	assert.Contains(t, ie.Reason, "Conventions")
}
