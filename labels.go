package imgclass

import (
	"fmt"
	"slices"
)

// LabelMap assigns contiguous indices, starting at zero, to the sorted
// distinct class names it was built from.
type LabelMap struct {
	names []string
	index map[string]int
}

// BuildLabelMap builds the mapping from the distinct values of labels. The
// result depends only on the set of names, never on their order.
func BuildLabelMap(labels []string) LabelMap {
	names := slices.Clone(labels)
	slices.Sort(names)
	names = slices.Compact(names)

	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}
	return LabelMap{names: names, index: index}
}

// Len returns the number of classes.
func (m LabelMap) Len() int { return len(m.names) }

// Names returns the class names in index order.
func (m LabelMap) Names() []string { return slices.Clone(m.names) }

// Index returns the index of name.
func (m LabelMap) Index(name string) (int, bool) {
	i, ok := m.index[name]
	return i, ok
}

// OneHot encodes labels as rows with a single 1 in the column of the label's
// index. Labels missing from the map are an error.
func (m LabelMap) OneHot(labels []string) ([][]float32, error) {
	out := make([][]float32, len(labels))
	for i, l := range labels {
		idx, ok := m.index[l]
		if !ok {
			return nil, fmt.Errorf("imgclass: label %q not in mapping", l)
		}
		row := make([]float32, len(m.names))
		row[idx] = 1
		out[i] = row
	}
	return out, nil
}

// OneHotFor encodes labels against an externally fixed class order, such as
// the output columns of a model.
func OneHotFor(labels, classes []string) ([][]float32, error) {
	index := make(map[string]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	m := LabelMap{names: classes, index: index}
	return m.OneHot(labels)
}
