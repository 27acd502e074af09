package ids

import (
	"fmt"
	"slices"
)

// Definitions is a parsed Data Dictionary.
type Definitions interface {
	Version() string
	IDSNames() []string
	IDS(name string) (*Metadata, bool)
}

// Factory creates IDS toplevels for one DD version.
type Factory struct {
	defs Definitions
}

// NewFactory returns a factory over parsed definitions.
func NewFactory(defs Definitions) *Factory {
	return &Factory{defs: defs}
}

// Version returns the DD version of this factory.
func (f *Factory) Version() string { return f.defs.Version() }

// Names returns the IDS names defined by the DD, sorted.
func (f *Factory) Names() []string {
	names := slices.Clone(f.defs.IDSNames())
	slices.Sort(names)
	return names
}

// Exists reports whether the DD defines the named IDS.
func (f *Factory) Exists(name string) bool {
	_, ok := f.defs.IDS(name)
	return ok
}

// Metadata returns the toplevel metadata of the named IDS.
func (f *Factory) Metadata(name string) (*Metadata, error) {
	m, ok := f.defs.IDS(name)
	if !ok {
		return nil, fmt.Errorf("%w: IDS %q does not exist in DD %s", ErrUnknownField, name, f.Version())
	}
	return m, nil
}

// New creates an empty IDS.
func (f *Factory) New(name string) (*Toplevel, error) {
	m, err := f.Metadata(name)
	if err != nil {
		return nil, err
	}
	return newToplevel(m, f.Version()), nil
}

// MustNew is like New but panics when the IDS does not exist.
func (f *Factory) MustNew(name string) *Toplevel {
	t, err := f.New(name)
	if err != nil {
		panic(err)
	}
	return t
}

// NewLazy creates a read-only IDS whose nodes are filled by loader on first access.
func (f *Factory) NewLazy(name string, loader Loader) (*Toplevel, error) {
	t, err := f.New(name)
	if err != nil {
		return nil, err
	}
	t.lazy = true
	t.loader = loader
	return t, nil
}

// Fill eagerly loads all data from loader into t, which must be a writable IDS.
func Fill(t *Toplevel, loader Loader) error {
	if t.lazy {
		return fmt.Errorf("%w: cannot fill %s", ErrReadOnly, t.Name())
	}
	return fillStructure(&t.Structure, loader)
}

func fillStructure(s *Structure, loader Loader) error {
	for _, cm := range s.meta.children {
		switch cm.DataType {
		case TypeStructure:
			if err := fillStructure(s.Struct(cm.Name), loader); err != nil {
				return err
			}
		case TypeStructArray:
			a := s.Array(cm.Name)
			n, err := loader.LoadSize(a)
			if err != nil {
				return fmt.Errorf("load %s: %w", a.Path(), err)
			}
			if n == 0 {
				continue
			}
			a.elems = a.makeElements(0, n)
			for _, e := range a.elems {
				if err := fillStructure(e, loader); err != nil {
					return err
				}
			}
		default:
			p := s.Leaf(cm.Name)
			v, err := loader.LoadValue(p)
			if err != nil {
				return fmt.Errorf("load %s: %w", p.Path(), err)
			}
			if v == nil {
				continue
			}
			if err := p.setValue(v); err != nil {
				return fmt.Errorf("load %s: %w", p.Path(), err)
			}
		}
	}
	return nil
}
