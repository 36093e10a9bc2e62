package etl

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// JoinHow selects the join behavior for Merge.
type JoinHow string

// Supported join types.
const (
	JoinInner JoinHow = "inner"
	JoinLeft  JoinHow = "left"
)

// Merge joins two tables on the given key columns. Key columns keep the left
// side's metadata; non-key columns keep the metadata of the side they came
// from. A column present on both sides (outside the keys) is an error rather
// than silently suffixed. The merged table's dataset-level origins become
// the union of both sides'.
func Merge(left, right *Table, how JoinHow, on ...string) (*Table, error) {
	if len(on) == 0 {
		return nil, errors.New("merge requires at least one key column")
	}
	for _, k := range on {
		if !left.HasColumn(k) {
			return nil, errors.Errorf("left table missing key column %q", k)
		}
		if !right.HasColumn(k) {
			return nil, errors.Errorf("right table missing key column %q", k)
		}
	}
	keySet := make(map[string]struct{}, len(on))
	for _, k := range on {
		keySet[k] = struct{}{}
	}
	for _, name := range right.Columns() {
		if _, isKey := keySet[name]; !isKey && left.HasColumn(name) {
			return nil, errors.Errorf("column %q present on both sides of merge", name)
		}
	}

	// Hash the right side by key, keeping all matches for one-to-many joins.
	rightRows := make(map[string][]int, right.Len())
	for i := 0; i < right.Len(); i++ {
		rightRows[rowKey(right, i, on)] = append(rightRows[rowKey(right, i, on)], i)
	}

	var leftIdx, rightIdx []int
	for i := 0; i < left.Len(); i++ {
		matches, ok := rightRows[rowKey(left, i, on)]
		switch {
		case ok:
			for _, j := range matches {
				leftIdx = append(leftIdx, i)
				rightIdx = append(rightIdx, j)
			}
		case how == JoinLeft:
			leftIdx = append(leftIdx, i)
			rightIdx = append(rightIdx, -1)
		}
	}

	out, err := NewTable(left.Meta.ShortName)
	if err != nil {
		return nil, err
	}
	out.Meta = left.Meta
	out.Meta.PrimaryKey = on
	for _, c := range left.cols {
		taken := c.take(leftIdx)
		taken.Meta = taken.Meta.withStep("merge", on...)
		if err := out.AddSeries(taken); err != nil {
			return nil, err
		}
	}
	for _, c := range right.cols {
		if _, isKey := keySet[c.Name]; isKey {
			continue
		}
		taken := takeWithMissing(c, rightIdx)
		taken.Meta = taken.Meta.withStep("merge", on...)
		if err := out.AddSeries(taken); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// takeWithMissing is take but treats index -1 as a missing observation,
// which is how left joins surface unmatched rows.
func takeWithMissing(s *Series, idxs []int) *Series {
	out := &Series{Name: s.Name, Meta: s.Meta, dtype: s.dtype, values: make([]interface{}, len(idxs))}
	for i, idx := range idxs {
		if idx >= 0 {
			out.values[i] = s.values[idx]
		}
	}
	return out
}

func rowKey(t *Table, i int, on []string) string {
	parts := make([]string, len(on))
	for k, name := range on {
		parts[k] = key(t.Column(name).At(i))
	}
	return strings.Join(parts, "\x00")
}

// Concat stacks tables vertically. All tables must have the same column
// set; per-column metadata is merged across tables and unit conflicts are
// an error.
func Concat(tables ...*Table) (*Table, error) {
	if len(tables) == 0 {
		return nil, errors.New("concat of zero tables")
	}
	first := tables[0]
	for _, t := range tables[1:] {
		if t.NumColumns() != first.NumColumns() {
			return nil, errors.Errorf("concat column count mismatch: %d vs %d", first.NumColumns(), t.NumColumns())
		}
		for _, name := range first.Columns() {
			if !t.HasColumn(name) {
				return nil, errors.Errorf("concat: table %s missing column %q", t.Meta.ShortName, name)
			}
		}
	}
	out, err := NewTable(first.Meta.ShortName)
	if err != nil {
		return nil, err
	}
	out.Meta = first.Meta
	for _, name := range first.Columns() {
		merged := NewSeries(name, TypeUnknown)
		meta := first.Column(name).Meta
		for ti, t := range tables {
			c := t.Column(name)
			if ti > 0 {
				meta, err = meta.Merge(c.Meta)
				if err != nil {
					return nil, errors.Wrapf(err, "concat column %q", name)
				}
			}
			for i := 0; i < c.Len(); i++ {
				if err := merged.Append(c.At(i)); err != nil {
					return nil, errors.Wrapf(err, "concat column %q", name)
				}
			}
		}
		merged.Meta = meta.withStep("concat", name)
		if err := out.AddSeries(merged); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Pivot reshapes long data to wide: one output column per distinct value of
// the columns column, one output row per distinct index value. The derived
// wide columns inherit the value column's metadata, titled by the pivoted
// label. Duplicate (index, column) cells and null labels are errors, since
// a null cannot name an output column.
func (t *Table) Pivot(index, columns, values string) (*Table, error) {
	for _, name := range []string{index, columns, values} {
		if !t.HasColumn(name) {
			return nil, errors.Errorf("pivot: no column %q", name)
		}
	}
	idxCol, labCol, valCol := t.Column(index), t.Column(columns), t.Column(values)

	var idxOrder, labOrder []string
	idxRows := map[string]int{}
	labSeen := map[string]struct{}{}
	cells := map[string]map[string]interface{}{}
	idxVals := map[string]interface{}{}
	for i := 0; i < t.Len(); i++ {
		if labCol.IsNull(i) {
			return nil, errors.Errorf("pivot: null label in column %q at row %d", columns, i)
		}
		ik, lk := key(idxCol.At(i)), key(labCol.At(i))
		if _, ok := idxRows[ik]; !ok {
			idxRows[ik] = len(idxOrder)
			idxOrder = append(idxOrder, ik)
			idxVals[ik] = idxCol.At(i)
			cells[ik] = map[string]interface{}{}
		}
		if _, ok := labSeen[lk]; !ok {
			labSeen[lk] = struct{}{}
			labOrder = append(labOrder, lk)
		}
		if _, dup := cells[ik][lk]; dup {
			return nil, errors.Errorf("pivot: duplicate cell for %s=%v, %s=%v", index, idxCol.At(i), columns, labCol.At(i))
		}
		cells[ik][lk] = valCol.At(i)
	}
	sort.Strings(labOrder)

	out, err := NewTable(t.Meta.ShortName)
	if err != nil {
		return nil, err
	}
	out.Meta = t.Meta
	out.Meta.PrimaryKey = []string{index}

	idxOut := NewSeries(index, TypeUnknown)
	idxOut.Meta = idxCol.Meta.withStep("pivot", index, columns, values)
	for _, ik := range idxOrder {
		if err := idxOut.Append(idxVals[ik]); err != nil {
			return nil, err
		}
	}
	if err := out.AddSeries(idxOut); err != nil {
		return nil, err
	}
	for _, lk := range labOrder {
		col := NewSeries(lk, TypeUnknown)
		meta := valCol.Meta.withStep("pivot", index, columns, values)
		if meta.Title != "" {
			meta.Title = meta.Title + " - " + lk
		} else {
			meta.Title = lk
		}
		col.Meta = meta
		for _, ik := range idxOrder {
			if err := col.Append(cells[ik][lk]); err != nil {
				return nil, errors.Wrapf(err, "pivot column %q", lk)
			}
		}
		if err := out.AddSeries(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Melt reshapes wide data to long. Each value column becomes rows of
// (idVars..., variable, value). The value column's metadata is the merge of
// all melted columns'; the variable column starts with fresh metadata since
// it names columns rather than carrying observations.
func (t *Table) Melt(idVars, valueVars []string, varName, valueName string) (*Table, error) {
	for _, name := range append(append([]string{}, idVars...), valueVars...) {
		if !t.HasColumn(name) {
			return nil, errors.Errorf("melt: no column %q", name)
		}
	}
	if len(valueVars) == 0 {
		return nil, errors.New("melt requires at least one value column")
	}

	out, err := NewTable(t.Meta.ShortName)
	if err != nil {
		return nil, err
	}
	out.Meta = t.Meta
	out.Meta.PrimaryKey = append(append([]string{}, idVars...), varName)

	n := t.Len()
	for _, id := range idVars {
		src := t.Column(id)
		rep := NewSeries(id, src.DType())
		rep.Meta = src.Meta.withStep("melt", valueVars...)
		for range valueVars {
			for i := 0; i < n; i++ {
				if err := rep.Append(src.At(i)); err != nil {
					return nil, err
				}
			}
		}
		if err := out.AddSeries(rep); err != nil {
			return nil, err
		}
	}

	varCol := NewSeries(varName, TypeString)
	valueMeta := t.Column(valueVars[0]).Meta
	valCol := NewSeries(valueName, TypeUnknown)
	for vi, v := range valueVars {
		src := t.Column(v)
		if vi > 0 {
			valueMeta, err = valueMeta.Merge(src.Meta)
			if err != nil {
				return nil, errors.Wrapf(err, "melt column %q", v)
			}
		}
		for i := 0; i < n; i++ {
			if err := varCol.Append(v); err != nil {
				return nil, err
			}
			if err := valCol.Append(src.At(i)); err != nil {
				return nil, errors.Wrapf(err, "melt column %q", v)
			}
		}
	}
	varCol.Meta = VariableMeta{Processing: []ProcessStep{{Op: "melt", Columns: valueVars}}}
	valueMeta.Title = ""
	valCol.Meta = valueMeta.withStep("melt", valueVars...)
	if err := out.AddSeries(varCol); err != nil {
		return nil, err
	}
	if err := out.AddSeries(valCol); err != nil {
		return nil, err
	}
	return out, nil
}

// AggOp enumerates group-by aggregations.
type AggOp string

// Supported aggregations.
const (
	AggSum   AggOp = "sum"
	AggMean  AggOp = "mean"
	AggMin   AggOp = "min"
	AggMax   AggOp = "max"
	AggCount AggOp = "count"
)

// Agg names one aggregation over one column.
type Agg struct {
	Column string
	Op     AggOp
}

// GroupBy groups rows by the key columns and computes the given aggregates.
// Aggregated columns keep their metadata with the aggregation recorded in
// the processing log; count columns get fresh metadata. Nulls are skipped,
// and a group with no observations aggregates to null.
func (t *Table) GroupBy(keys []string, aggs []Agg) (*Table, error) {
	for _, k := range keys {
		if !t.HasColumn(k) {
			return nil, errors.Errorf("groupby: no key column %q", k)
		}
	}
	for _, a := range aggs {
		if !t.HasColumn(a.Column) {
			return nil, errors.Errorf("groupby: no column %q", a.Column)
		}
		switch a.Op {
		case AggSum, AggMean, AggMin, AggMax, AggCount:
		default:
			return nil, errors.Errorf("groupby: unknown aggregation %q", a.Op)
		}
	}

	var order []string
	firstRow := map[string]int{}
	groups := map[string][]int{}
	for i := 0; i < t.Len(); i++ {
		gk := rowKey(t, i, keys)
		if _, ok := groups[gk]; !ok {
			order = append(order, gk)
			firstRow[gk] = i
		}
		groups[gk] = append(groups[gk], i)
	}

	out, err := NewTable(t.Meta.ShortName)
	if err != nil {
		return nil, err
	}
	out.Meta = t.Meta
	out.Meta.PrimaryKey = keys
	for _, k := range keys {
		src := t.Column(k)
		col := NewSeries(k, src.DType())
		col.Meta = src.Meta
		for _, gk := range order {
			if err := col.Append(src.At(firstRow[gk])); err != nil {
				return nil, err
			}
		}
		if err := out.AddSeries(col); err != nil {
			return nil, err
		}
	}
	for _, a := range aggs {
		src := t.Column(a.Column)
		name := a.Column + "_" + string(a.Op)
		col := NewSeries(name, TypeUnknown)
		if a.Op == AggCount {
			col.Meta = VariableMeta{Processing: []ProcessStep{{Op: "groupby_count", Columns: []string{a.Column}}}}
		} else {
			col.Meta = src.Meta.withStep("groupby_"+string(a.Op), a.Column)
		}
		for _, gk := range order {
			v, err := aggregate(src, groups[gk], a.Op)
			if err != nil {
				return nil, errors.Wrapf(err, "aggregating %q", a.Column)
			}
			if err := col.Append(v); err != nil {
				return nil, err
			}
		}
		if err := out.AddSeries(col); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func aggregate(s *Series, idxs []int, op AggOp) (interface{}, error) {
	if op == AggCount {
		n := int64(0)
		for _, i := range idxs {
			if !s.IsNull(i) {
				n++
			}
		}
		return n, nil
	}
	if s.DType() != TypeInt && s.DType() != TypeFloat {
		return nil, errors.Errorf("cannot %s a %s column", op, s.DType())
	}
	var sum, lo, hi float64
	n := 0
	for _, i := range idxs {
		if s.IsNull(i) {
			continue
		}
		v := s.Float(i)
		if n == 0 {
			lo, hi = v, v
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
		sum += v
		n++
	}
	if n == 0 {
		return nil, nil
	}
	switch op {
	case AggSum:
		return sum, nil
	case AggMean:
		return sum / float64(n), nil
	case AggMin:
		return lo, nil
	case AggMax:
		return hi, nil
	}
	return nil, errors.Errorf("unknown aggregation %q", op)
}
