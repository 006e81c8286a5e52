package clinical

// TreatmentIndex resolves parent/child links between treatments without
// holding pointers between them. Treatments live in one slice and are
// addressed by position.
type TreatmentIndex struct {
	nodes    []*Treatment
	pos      map[int64]int
	children [][]int
	roots    []int
}

// NewTreatmentIndex indexes items. A parent that is not in items makes the
// child a root.
func NewTreatmentIndex(items []*Treatment) *TreatmentIndex {
	idx := &TreatmentIndex{
		nodes:    items,
		pos:      make(map[int64]int, len(items)),
		children: make([][]int, len(items)),
	}
	for i, t := range items {
		idx.pos[t.ID] = i
	}
	for i, t := range items {
		if t.ParentID != nil {
			if p, ok := idx.pos[*t.ParentID]; ok && p != i {
				idx.children[p] = append(idx.children[p], i)
				continue
			}
		}
		idx.roots = append(idx.roots, i)
	}
	return idx
}

// Subtree returns id and all of its descendants, children before parents.
func (idx *TreatmentIndex) Subtree(id int64) []*Treatment {
	i, ok := idx.pos[id]
	if !ok {
		return nil
	}
	var out []*Treatment
	idx.postOrder(i, make(map[int]bool), &out)
	return out
}

// DeletionOrder returns the union of the subtrees rooted at ids, children
// before parents, each treatment once.
func (idx *TreatmentIndex) DeletionOrder(ids ...int64) []*Treatment {
	seen := make(map[int]bool)
	var out []*Treatment
	for _, id := range ids {
		if i, ok := idx.pos[id]; ok {
			idx.postOrder(i, seen, &out)
		}
	}
	return out
}

func (idx *TreatmentIndex) postOrder(i int, seen map[int]bool, out *[]*Treatment) {
	if seen[i] {
		return
	}
	seen[i] = true
	for _, c := range idx.children[i] {
		idx.postOrder(c, seen, out)
	}
	*out = append(*out, idx.nodes[i])
}

// TreatmentNode is a treatment with its children resolved, for responses.
type TreatmentNode struct {
	*Treatment
	Children []*TreatmentNode `json:"children,omitempty"`
}

// Forest renders the index as nested nodes starting from the roots.
func (idx *TreatmentIndex) Forest() []*TreatmentNode {
	out := make([]*TreatmentNode, 0, len(idx.roots))
	for _, r := range idx.roots {
		out = append(out, idx.node(r, make(map[int]bool)))
	}
	return out
}

func (idx *TreatmentIndex) node(i int, seen map[int]bool) *TreatmentNode {
	seen[i] = true
	n := &TreatmentNode{Treatment: idx.nodes[i]}
	for _, c := range idx.children[i] {
		if !seen[c] {
			n.Children = append(n.Children, idx.node(c, seen))
		}
	}
	return n
}
