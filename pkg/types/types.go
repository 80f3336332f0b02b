package types

import (
	"errors"
	"fmt"
	"math"
)

// Validation errors
var (
	ErrEmptyGroupName     = errors.New("group name cannot be empty")
	ErrDuplicateGroupName = errors.New("group name is duplicated")
	ErrIndexMapMismatch   = errors.New("index map does not cover the score vector")
)

// GroupName identifies one semantic outcome a response can be classified into.
type GroupName = string

// Canonical group names.
const (
	GroupCorrect            GroupName = "correct"
	GroupWrong              GroupName = "wrong"
	GroupRefusal            GroupName = "refusal"
	GroupFormulationMistake GroupName = "formulation_mistake"
)

// DefaultGroups is the full set of groups in their canonical batch order.
var DefaultGroups = []GroupName{GroupCorrect, GroupWrong, GroupRefusal, GroupFormulationMistake}

// GroupSet is an ordered mapping from group name to its candidate texts.
// The insertion order of groups defines the layout of the flattened batch.
type GroupSet struct {
	names  []string
	groups map[string][]string
}

// NewGroupSet creates an empty GroupSet.
func NewGroupSet() *GroupSet {
	return &GroupSet{groups: make(map[string][]string)}
}

// Add appends a new group. Candidates are copied.
func (s *GroupSet) Add(name string, candidates []string) error {
	if name == "" {
		return ErrEmptyGroupName
	}
	if s.groups == nil {
		s.groups = make(map[string][]string)
	}
	if _, exists := s.groups[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateGroupName, name)
	}
	s.names = append(s.names, name)
	s.groups[name] = append([]string(nil), candidates...)
	return nil
}

// Names returns the group names in insertion order.
func (s *GroupSet) Names() []string {
	return append([]string(nil), s.names...)
}

// Get returns a copy of the candidates of a group.
func (s *GroupSet) Get(name string) ([]string, bool) {
	c, ok := s.groups[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), c...), true
}

// Len returns the number of groups.
func (s *GroupSet) Len() int {
	return len(s.names)
}

// Size returns the total number of candidates across all groups.
func (s *GroupSet) Size() int {
	total := 0
	for _, name := range s.names {
		total += len(s.groups[name])
	}
	return total
}

// Flatten concatenates all groups in insertion order and returns the batch
// together with the index range each group occupies in it.
func (s *GroupSet) Flatten() ([]string, IndexMap) {
	batch := make([]string, 0, s.Size())
	index := IndexMap{order: make([]string, 0, len(s.names)), ranges: make(map[string]IndexRange, len(s.names))}
	for _, name := range s.names {
		start := len(batch)
		batch = append(batch, s.groups[name]...)
		index.order = append(index.order, name)
		index.ranges[name] = IndexRange{Start: start, End: len(batch)}
	}
	return batch, index
}

// IndexRange is a half-open range [Start, End) into a flattened batch.
type IndexRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of elements covered by the range.
func (r IndexRange) Len() int {
	return r.End - r.Start
}

// IndexMap maps group names to the contiguous range they occupy in a batch.
type IndexMap struct {
	order  []string
	ranges map[string]IndexRange
}

// Names returns the group names in batch order.
func (m IndexMap) Names() []string {
	return append([]string(nil), m.order...)
}

// Range returns the range of a group.
func (m IndexMap) Range(name string) (IndexRange, bool) {
	r, ok := m.ranges[name]
	return r, ok
}

// Total returns the batch length covered by the map.
func (m IndexMap) Total() int {
	if len(m.order) == 0 {
		return 0
	}
	return m.ranges[m.order[len(m.order)-1]].End
}

// Validate checks that the ranges are contiguous, start at zero and cover
// exactly n elements.
func (m IndexMap) Validate(n int) error {
	next := 0
	for _, name := range m.order {
		r := m.ranges[name]
		if r.Start != next || r.End < r.Start {
			return fmt.Errorf("%w: group %q range [%d, %d) is not contiguous at %d", ErrIndexMapMismatch, name, r.Start, r.End, next)
		}
		next = r.End
	}
	if next != n {
		return fmt.Errorf("%w: ranges cover %d elements, scores have %d", ErrIndexMapMismatch, next, n)
	}
	return nil
}

// Distribution is an ordered mapping from group name to a normalized score.
type Distribution struct {
	names  []string
	values map[string]float64
}

// NewDistribution builds a Distribution preserving the order of names.
func NewDistribution(names []string, values []float64) Distribution {
	d := Distribution{names: append([]string(nil), names...), values: make(map[string]float64, len(names))}
	for i, name := range names {
		d.values[name] = values[i]
	}
	return d
}

// Names returns the groups in batch order.
func (d Distribution) Names() []string {
	return append([]string(nil), d.names...)
}

// Get returns the score of a group.
func (d Distribution) Get(name string) float64 {
	return d.values[name]
}

// Sum returns the sum of all values.
func (d Distribution) Sum() float64 {
	var sum float64
	for _, name := range d.names {
		sum += d.values[name]
	}
	return sum
}

// Best returns the group with the highest score. Ties resolve to the group
// that comes first in batch order.
func (d Distribution) Best() (string, float64) {
	best, bestScore := "", math.Inf(-1)
	for _, name := range d.names {
		if v := d.values[name]; v > bestScore {
			best, bestScore = name, v
		}
	}
	return best, bestScore
}

// Map returns the distribution as a plain map.
func (d Distribution) Map() map[string]float64 {
	out := make(map[string]float64, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// Trace records, for each generated candidate, how it was produced and which
// group it belongs to.
type Trace struct {
	Labels []string `json:"labels"`
	Groups []string `json:"groups"`
}

// Append adds one entry to the trace.
func (t *Trace) Append(label, group string) {
	t.Labels = append(t.Labels, label)
	t.Groups = append(t.Groups, group)
}

// Len returns the number of traced candidates.
func (t *Trace) Len() int {
	return len(t.Labels)
}

// InstructionMap maps a task identifier to the instruction used to steer the
// backend. The "default" key is the fallback.
type InstructionMap map[string]string

// DefaultInstructionKey is the fallback key of an InstructionMap.
const DefaultInstructionKey = "default"

// Lookup returns the instruction for a task, falling back to the default entry.
func (m InstructionMap) Lookup(taskID string) (string, bool) {
	if v, ok := m[taskID]; ok && v != "" {
		return v, true
	}
	if v, ok := m[DefaultInstructionKey]; ok && v != "" {
		return v, true
	}
	return "", false
}

// Clone returns an independent copy. A nil map clones to an empty map.
func (m InstructionMap) Clone() InstructionMap {
	out := make(InstructionMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
