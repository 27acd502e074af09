package ids

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type serialized struct {
	DDVersion string   `cbor:"dd_version"`
	IDS       string   `cbor:"ids"`
	Records   []Record `cbor:"records"`
}

// Serialize encodes an IDS to CBOR. The DD version is embedded.
func Serialize(t *Toplevel) ([]byte, error) {
	data, err := cbor.Marshal(serialized{DDVersion: t.version, IDS: t.Name(), Records: Flatten(t)})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", t.Name(), err)
	}
	return data, nil
}

// SerializedVersion returns the DD version embedded in serialized data.
func SerializedVersion(data []byte) (string, error) {
	var s serialized
	if err := cbor.Unmarshal(data, &s); err != nil {
		return "", fmt.Errorf("failed to decode serialized IDS: %w", err)
	}
	return s.DDVersion, nil
}

// Deserialize decodes CBOR data produced by Serialize. The factory must use the
// DD version the data was serialized with.
func Deserialize(data []byte, f *Factory) (*Toplevel, error) {
	var s serialized
	if err := cbor.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode serialized IDS: %w", err)
	}
	if s.DDVersion != f.Version() {
		return nil, fmt.Errorf("serialized %s uses DD %s, factory uses DD %s", s.IDS, s.DDVersion, f.Version())
	}
	t, err := f.New(s.IDS)
	if err != nil {
		return nil, err
	}
	if err := Fill(t, NewRecordSet(s.Records)); err != nil {
		return nil, err
	}
	return t, nil
}
