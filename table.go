package etl

import (
	"github.com/pkg/errors"
)

// Table is an ordered collection of equal-length named series plus
// table-level metadata. All operations return new tables; a Table is never
// mutated after construction except by AppendRow during building.
type Table struct {
	Meta TableMeta
	cols []*Series
	byName map[string]int
}

// NewTable builds a table from the given series. Series must have unique
// names and equal lengths.
func NewTable(shortName string, series ...*Series) (*Table, error) {
	t := &Table{Meta: TableMeta{ShortName: shortName}}
	for _, s := range series {
		if err := t.AddSeries(s); err != nil {
			return nil, errors.Wrapf(err, "building table %s", shortName)
		}
	}
	return t, nil
}

// AddSeries appends a column to the table.
func (t *Table) AddSeries(s *Series) error {
	if _, ok := t.lookup(s.Name); ok {
		return errors.Errorf("duplicate column %q", s.Name)
	}
	if len(t.cols) > 0 && s.Len() != t.Len() {
		return errors.Errorf("column %q has %d rows, table has %d", s.Name, s.Len(), t.Len())
	}
	t.cols = append(t.cols, s)
	if t.byName == nil {
		t.byName = make(map[string]int)
	}
	t.byName[s.Name] = len(t.cols) - 1
	return nil
}

func (t *Table) lookup(name string) (int, bool) {
	idx, ok := t.byName[name]
	return idx, ok
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if len(t.cols) == 0 {
		return 0
	}
	return t.cols[0].Len()
}

// NumColumns returns the number of columns.
func (t *Table) NumColumns() int { return len(t.cols) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	names := make([]string, len(t.cols))
	for i, c := range t.cols {
		names[i] = c.Name
	}
	return names
}

// Column returns the named series, or nil if absent.
func (t *Table) Column(name string) *Series {
	if idx, ok := t.lookup(name); ok {
		return t.cols[idx]
	}
	return nil
}

// HasColumn reports whether the table contains the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.lookup(name)
	return ok
}

// SetColumnMeta replaces the metadata on the named column.
func (t *Table) SetColumnMeta(name string, meta VariableMeta) error {
	idx, ok := t.lookup(name)
	if !ok {
		return errors.Errorf("no column %q", name)
	}
	t.cols[idx] = t.cols[idx].WithMeta(meta)
	return nil
}

// withCols returns a copy of the table with the given columns. Table meta is
// carried over.
func (t *Table) withCols(cols []*Series) *Table {
	out := &Table{Meta: t.Meta, cols: cols, byName: make(map[string]int, len(cols))}
	for i, c := range cols {
		out.byName[c.Name] = i
	}
	return out
}

// Select returns a table with only the named columns, in the given order.
// The primary key is trimmed to the surviving columns.
func (t *Table) Select(names ...string) (*Table, error) {
	cols := make([]*Series, 0, len(names))
	for _, name := range names {
		idx, ok := t.lookup(name)
		if !ok {
			return nil, errors.Errorf("selecting unknown column %q", name)
		}
		cols = append(cols, t.cols[idx])
	}
	out := t.withCols(cols)
	out.Meta.PrimaryKey = intersect(t.Meta.PrimaryKey, names)
	return out, nil
}

// Drop returns a table without the named columns.
func (t *Table) Drop(names ...string) (*Table, error) {
	dropping := make(map[string]struct{}, len(names))
	for _, name := range names {
		if !t.HasColumn(name) {
			return nil, errors.Errorf("dropping unknown column %q", name)
		}
		dropping[name] = struct{}{}
	}
	keep := make([]string, 0, len(t.cols))
	for _, c := range t.cols {
		if _, drop := dropping[c.Name]; !drop {
			keep = append(keep, c.Name)
		}
	}
	return t.Select(keep...)
}

// Rename renames columns according to the mapping. Metadata follows the
// column and the rename is logged in its processing history.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	cols := make([]*Series, len(t.cols))
	renamed := 0
	for i, c := range t.cols {
		if newName, ok := mapping[c.Name]; ok {
			cols[i] = c.Rename(newName)
			renamed++
		} else {
			cols[i] = c
		}
	}
	if renamed != len(mapping) {
		for old := range mapping {
			if !t.HasColumn(old) {
				return nil, errors.Errorf("renaming unknown column %q", old)
			}
		}
	}
	out := t.withCols(cols)
	pk := make([]string, len(t.Meta.PrimaryKey))
	for i, k := range t.Meta.PrimaryKey {
		if newName, ok := mapping[k]; ok {
			pk[i] = newName
		} else {
			pk[i] = k
		}
	}
	out.Meta.PrimaryKey = pk
	return out, nil
}

// Row is a lightweight view of one table row, passed to Filter predicates.
type Row struct {
	t *Table
	i int
}

// Value returns the value of the named column in this row, nil if the
// column is absent or the observation missing.
func (r Row) Value(col string) interface{} {
	s := r.t.Column(col)
	if s == nil {
		return nil
	}
	return s.At(r.i)
}

// Index returns the row's position in the table.
func (r Row) Index() int { return r.i }

// Filter returns the rows for which keep returns true. Column metadata is
// unchanged; only the row set varies.
func (t *Table) Filter(keep func(Row) bool) *Table {
	idxs := make([]int, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		if keep(Row{t, i}) {
			idxs = append(idxs, i)
		}
	}
	return t.take(idxs)
}

// take returns a table with the rows at the given indexes.
func (t *Table) take(idxs []int) *Table {
	cols := make([]*Series, len(t.cols))
	for i, c := range t.cols {
		cols[i] = c.take(idxs)
	}
	return t.withCols(cols)
}

// Head returns the first n rows (fewer if the table is shorter).
func (t *Table) Head(n int) *Table {
	if n > t.Len() {
		n = t.Len()
	}
	return t.Slice(0, n)
}

// Slice returns rows [i, j). The underlying value slices are shared.
func (t *Table) Slice(i, j int) *Table {
	cols := make([]*Series, len(t.cols))
	for k, c := range t.cols {
		cols[k] = c.slice(i, j)
	}
	return t.withCols(cols)
}

// SetPrimaryKey records the key columns in the table metadata after
// checking they exist.
func (t *Table) SetPrimaryKey(names ...string) error {
	for _, name := range names {
		if !t.HasColumn(name) {
			return errors.Errorf("primary key column %q not in table", name)
		}
	}
	t.Meta.PrimaryKey = names
	return nil
}

func intersect(keep, have []string) []string {
	haveSet := make(map[string]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}
	out := []string{}
	for _, k := range keep {
		if _, ok := haveSet[k]; ok {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
