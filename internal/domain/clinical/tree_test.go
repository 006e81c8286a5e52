package clinical

import (
	"reflect"
	"testing"
)

func ids(ts []*Treatment) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func child(id, parent int64) *Treatment {
	return &Treatment{ID: id, ParentID: &parent}
}

// 1 -> 2 -> 4, 1 -> 3, 5 alone
func sampleTree() *TreatmentIndex {
	return NewTreatmentIndex([]*Treatment{
		{ID: 1},
		child(2, 1),
		child(3, 1),
		child(4, 2),
		{ID: 5},
	})
}

func roots(idx *TreatmentIndex) []int64 {
	var out []int64
	for _, n := range idx.Forest() {
		out = append(out, n.ID)
	}
	return out
}

func TestTreatmentIndex_Roots(t *testing.T) {
	if got := roots(sampleTree()); !reflect.DeepEqual(got, []int64{1, 5}) {
		t.Errorf("roots = %v", got)
	}
}

func TestTreatmentIndex_SubtreeChildrenFirst(t *testing.T) {
	idx := sampleTree()
	if got := ids(idx.Subtree(1)); !reflect.DeepEqual(got, []int64{4, 2, 3, 1}) {
		t.Errorf("subtree = %v", got)
	}
	if got := ids(idx.Subtree(5)); !reflect.DeepEqual(got, []int64{5}) {
		t.Errorf("leaf subtree = %v", got)
	}
	if got := idx.Subtree(42); got != nil {
		t.Errorf("unknown subtree = %v", got)
	}
}

func TestTreatmentIndex_DeletionOrderDedupes(t *testing.T) {
	idx := sampleTree()
	got := ids(idx.DeletionOrder(2, 1, 4, 5))
	want := []int64{4, 2, 3, 1, 5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("deletion order = %v, want %v", got, want)
	}
}

func TestTreatmentIndex_MissingParentIsRoot(t *testing.T) {
	idx := NewTreatmentIndex([]*Treatment{child(7, 100), child(8, 7)})
	if got := roots(idx); !reflect.DeepEqual(got, []int64{7}) {
		t.Errorf("roots = %v", got)
	}
	if got := ids(idx.Subtree(7)); !reflect.DeepEqual(got, []int64{8, 7}) {
		t.Errorf("subtree = %v", got)
	}
}

func TestTreatmentIndex_SelfParentDoesNotLoop(t *testing.T) {
	idx := NewTreatmentIndex([]*Treatment{child(1, 1)})
	if got := ids(idx.Subtree(1)); !reflect.DeepEqual(got, []int64{1}) {
		t.Errorf("subtree = %v", got)
	}
}

func TestTreatmentIndex_Forest(t *testing.T) {
	forest := sampleTree().Forest()
	if len(forest) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(forest))
	}
	root := forest[0]
	if root.ID != 1 || len(root.Children) != 2 {
		t.Fatalf("unexpected root %d with %d children", root.ID, len(root.Children))
	}
	if got := root.Children[0].Children; len(got) != 1 || got[0].ID != 4 {
		t.Errorf("grandchildren = %v", got)
	}
	if len(forest[1].Children) != 0 {
		t.Errorf("5 should have no children")
	}
}
