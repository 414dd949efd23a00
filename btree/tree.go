package btree

import "github.com/intellect4all/cowtree/common"

// InsertPropagation is the value a recursive insert returns to its
// caller: either a simple child replacement or a split to be absorbed
// by the parent.
type InsertPropagation struct {
	IsSplit bool

	// split case
	Key   uint64
	Left  BlockID
	Right BlockID

	// non-split case
	Update BlockID

	// both cases
	DidReplace bool
	Replaced   uint64
}

// DeletePropagation is the value a recursive delete returns to its
// caller.
type DeletePropagation struct {
	DidModify    bool
	DeletedValue uint64
	NewChild     BlockID
}

func loadNode(pool *Pool, id BlockID) (*BTNode, error) {
	h, err := pool.Load(id)
	if err != nil {
		return nil, err
	}
	defer h.Release()
	return decodeNode(h.Data()), nil
}

func storeNode(pool *Pool, sbHandle *Handle, node *BTNode) (BlockID, error) {
	h, err := allocatePage(pool, sbHandle)
	if err != nil {
		return 0, err
	}
	defer h.Release()
	node.encode(h.Data())
	h.SetDirty()
	return h.Offset(), nil
}

// search descends from rootID to find key, returning its value and
// whether it was found.
func search(pool *Pool, rootID BlockID, key uint64) (uint64, bool, error) {
	id := rootID
	for {
		node, err := loadNode(pool, id)
		if err != nil {
			return 0, false, err
		}

		if node.IsLeaf {
			i := node.leafFind(key)
			if i == -1 {
				return 0, false, nil
			}
			return node.Pairs[i].Value, true, nil
		}

		idx := node.firstKeyLessIndex(key)
		if idx == -1 {
			return 0, false, nil
		}
		id = node.Pairs[idx].Value
	}
}

// insert performs a CoW insert of (key, value) below rootID. The root's
// old id is always appended to freed on entry, so the obsolete path is
// reclaimed regardless of whether this call itself replaces anything
// further down.
func insert(pool *Pool, sbHandle *Handle, rootID BlockID, key, value uint64, freed *[]BlockID) (*InsertPropagation, error) {
	*freed = append(*freed, rootID)

	node, err := loadNode(pool, rootID)
	if err != nil {
		return nil, err
	}

	if node.IsLeaf {
		return insertLeaf(pool, sbHandle, node, key, value)
	}
	return insertInternal(pool, sbHandle, node, key, value, freed)
}

func insertLeaf(pool *Pool, sbHandle *Handle, node *BTNode, key, value uint64) (*InsertPropagation, error) {
	list := make([]KeyPair, 0, node.Count+1)
	didReplace := false
	var replaced uint64
	inserted := false

	for i := uint64(0); i < node.Count; i++ {
		p := node.Pairs[i]
		if !inserted && key == p.Key {
			replaced = p.Value
			didReplace = p.Value != value
			list = append(list, KeyPair{Key: key, Value: value})
			inserted = true
			continue
		}
		if !inserted && key < p.Key {
			list = append(list, KeyPair{Key: key, Value: value})
			inserted = true
		}
		list = append(list, p)
	}
	if !inserted {
		list = append(list, KeyPair{Key: key, Value: value})
	}

	if len(list) <= FANOUT {
		newLeaf := newEmptyLeaf()
		newLeaf.Count = uint64(len(list))
		copy(newLeaf.Pairs[:], list)

		id, err := storeNode(pool, sbHandle, newLeaf)
		if err != nil {
			return nil, err
		}
		return &InsertPropagation{Update: id, DidReplace: didReplace, Replaced: replaced}, nil
	}

	m := len(list) / 2

	left := newEmptyLeaf()
	left.Count = uint64(m)
	copy(left.Pairs[:], list[:m])

	right := newEmptyLeaf()
	right.Count = uint64(len(list) - m)
	copy(right.Pairs[:], list[m:])

	leftID, err := storeNode(pool, sbHandle, left)
	if err != nil {
		return nil, err
	}
	rightID, err := storeNode(pool, sbHandle, right)
	if err != nil {
		return nil, err
	}

	return &InsertPropagation{
		IsSplit: true, Key: list[m].Key, Left: leftID, Right: rightID,
		DidReplace: didReplace, Replaced: replaced,
	}, nil
}

func insertInternal(pool *Pool, sbHandle *Handle, node *BTNode, key, value uint64, freed *[]BlockID) (*InsertPropagation, error) {
	idx := node.firstKeyLessIndex(key)
	if idx == -1 {
		return nil, common.ErrCorruptNode
	}

	childProp, err := insert(pool, sbHandle, node.Pairs[idx].Value, key, value, freed)
	if err != nil {
		return nil, err
	}

	if !childProp.IsSplit {
		newNode := node.clone()
		newNode.Pairs[idx].Value = childProp.Update

		id, err := storeNode(pool, sbHandle, newNode)
		if err != nil {
			return nil, err
		}
		return &InsertPropagation{Update: id, DidReplace: childProp.DidReplace, Replaced: childProp.Replaced}, nil
	}

	list := make([]KeyPair, 0, node.Count+1)
	for i := uint64(0); i < node.Count; i++ {
		if int(i) == idx {
			list = append(list, KeyPair{Key: childProp.Key, Value: childProp.Left})
			list = append(list, KeyPair{Key: node.Pairs[i].Key, Value: childProp.Right})
			continue
		}
		list = append(list, node.Pairs[i])
	}

	if len(list) < FANOUT {
		newNode := newEmptyInternal()
		newNode.Count = uint64(len(list))
		copy(newNode.Pairs[:], list)

		id, err := storeNode(pool, sbHandle, newNode)
		if err != nil {
			return nil, err
		}
		return &InsertPropagation{Update: id, DidReplace: childProp.DidReplace, Replaced: childProp.Replaced}, nil
	}

	m := len(list) / 2
	promoted := list[m].Key

	left := newEmptyInternal()
	left.Count = uint64(m + 1)
	copy(left.Pairs[:], list[:m+1])
	left.Pairs[m].Key = MaxKey

	right := newEmptyInternal()
	right.Count = uint64(len(list) - m - 1)
	copy(right.Pairs[:], list[m+1:])

	leftID, err := storeNode(pool, sbHandle, left)
	if err != nil {
		return nil, err
	}
	rightID, err := storeNode(pool, sbHandle, right)
	if err != nil {
		return nil, err
	}

	return &InsertPropagation{
		IsSplit: true, Key: promoted, Left: leftID, Right: rightID,
		DidReplace: childProp.DidReplace, Replaced: childProp.Replaced,
	}, nil
}

// deleteKey performs a CoW delete of key below rootID. Unlike insert,
// rootID is only added to freed when this call actually replaces the
// node (did_modify); a no-op traversal leaves the path untouched.
func deleteKey(pool *Pool, sbHandle *Handle, rootID BlockID, key uint64, freed *[]BlockID) (*DeletePropagation, error) {
	node, err := loadNode(pool, rootID)
	if err != nil {
		return nil, err
	}

	if node.IsLeaf {
		return deleteLeaf(pool, sbHandle, node, rootID, key, freed)
	}
	return deleteInternal(pool, sbHandle, node, rootID, key, freed)
}

func deleteLeaf(pool *Pool, sbHandle *Handle, node *BTNode, selfID BlockID, key uint64, freed *[]BlockID) (*DeletePropagation, error) {
	idx := node.leafFind(key)
	if idx == -1 {
		return &DeletePropagation{DidModify: false}, nil
	}

	deletedValue := node.Pairs[idx].Value
	list := make([]KeyPair, 0, node.Count-1)
	for i := uint64(0); i < node.Count; i++ {
		if int(i) == idx {
			continue
		}
		list = append(list, node.Pairs[i])
	}

	newLeaf := newEmptyLeaf()
	newLeaf.Count = uint64(len(list))
	copy(newLeaf.Pairs[:], list)

	newID, err := storeNode(pool, sbHandle, newLeaf)
	if err != nil {
		return nil, err
	}

	*freed = append(*freed, selfID)
	return &DeletePropagation{DidModify: true, DeletedValue: deletedValue, NewChild: newID}, nil
}

func deleteInternal(pool *Pool, sbHandle *Handle, node *BTNode, selfID BlockID, key uint64, freed *[]BlockID) (*DeletePropagation, error) {
	idx := node.firstKeyLessIndex(key)
	if idx == -1 {
		return nil, common.ErrCorruptNode
	}

	childDel, err := deleteKey(pool, sbHandle, node.Pairs[idx].Value, key, freed)
	if err != nil {
		return nil, err
	}
	if !childDel.DidModify {
		return &DeletePropagation{DidModify: false}, nil
	}

	newChild, err := loadNode(pool, childDel.NewChild)
	if err != nil {
		return nil, err
	}

	if newChild.enoughEntries() {
		newNode := node.clone()
		newNode.Pairs[idx].Value = childDel.NewChild

		newID, err := storeNode(pool, sbHandle, newNode)
		if err != nil {
			return nil, err
		}
		*freed = append(*freed, selfID)
		return &DeletePropagation{DidModify: true, DeletedValue: childDel.DeletedValue, NewChild: newID}, nil
	}

	hasLeft := idx > 0
	hasRight := uint64(idx+1) < node.Count

	var (
		newParentID BlockID
	)

	switch {
	case hasLeft && !hasRight:
		leftID := node.Pairs[idx-1].Value
		leftNode, err := loadNode(pool, leftID)
		if err != nil {
			return nil, err
		}
		if leftNode.canShareEntry() {
			newParentID, err = borrowFromLeft(pool, sbHandle, node, leftNode, newChild, idx-1, idx, leftID, childDel.NewChild)
		} else {
			newParentID, err = mergeSiblings(pool, sbHandle, node, leftNode, newChild, idx-1, idx, leftID, childDel.NewChild)
		}
		if err != nil {
			return nil, err
		}

	case hasRight && !hasLeft:
		rightID := node.Pairs[idx+1].Value
		rightNode, err := loadNode(pool, rightID)
		if err != nil {
			return nil, err
		}
		if rightNode.canShareEntry() {
			newParentID, err = borrowFromRight(pool, sbHandle, node, newChild, rightNode, idx, idx+1, childDel.NewChild, rightID)
		} else {
			newParentID, err = mergeSiblings(pool, sbHandle, node, newChild, rightNode, idx, idx+1, childDel.NewChild, rightID)
		}
		if err != nil {
			return nil, err
		}

	default:
		leftID := node.Pairs[idx-1].Value
		leftNode, err := loadNode(pool, leftID)
		if err != nil {
			return nil, err
		}
		if leftNode.canShareEntry() {
			newParentID, err = borrowFromLeft(pool, sbHandle, node, leftNode, newChild, idx-1, idx, leftID, childDel.NewChild)
			if err != nil {
				return nil, err
			}
		} else {
			rightID := node.Pairs[idx+1].Value
			rightNode, err := loadNode(pool, rightID)
			if err != nil {
				return nil, err
			}
			if rightNode.canShareEntry() {
				newParentID, err = borrowFromRight(pool, sbHandle, node, newChild, rightNode, idx, idx+1, childDel.NewChild, rightID)
			} else {
				newParentID, err = mergeSiblings(pool, sbHandle, node, leftNode, newChild, idx-1, idx, leftID, childDel.NewChild)
			}
			if err != nil {
				return nil, err
			}
		}
	}

	*freed = append(*freed, selfID)
	return &DeletePropagation{DidModify: true, DeletedValue: childDel.DeletedValue, NewChild: newParentID}, nil
}

// borrowFromRight moves the right sibling's first entry into node,
// under parent at positions nodeIdx/rightIdx, and stores the resulting
// three pages (new node, new right, new parent). The two old children
// (nodeID, rightID) are freed; selfID (the old parent) is freed by the
// caller.
func borrowFromRight(pool *Pool, sbHandle *Handle, parent, node, right *BTNode, nodeIdx, rightIdx int, nodeID, rightID BlockID) (BlockID, error) {
	parentSeparator := parent.Pairs[nodeIdx].Key

	newNode := node.clone()
	c := node.Count
	if node.IsLeaf {
		newNode.Pairs[c] = right.Pairs[0]
	} else {
		newNode.Pairs[c-1].Key = parentSeparator
		newNode.Pairs[c] = KeyPair{Key: MaxKey, Value: right.Pairs[0].Value}
	}
	newNode.Count = c + 1

	newRight := right.clone()
	for i := uint64(0); i < right.Count-1; i++ {
		newRight.Pairs[i] = right.Pairs[i+1]
	}
	newRight.Pairs[right.Count-1] = KeyPair{Key: MaxKey}
	newRight.Count = right.Count - 1

	newSeparator, err := minKeyOf(pool, newRight)
	if err != nil {
		return 0, err
	}

	newNodeID, err := storeNode(pool, sbHandle, newNode)
	if err != nil {
		return 0, err
	}
	newRightID, err := storeNode(pool, sbHandle, newRight)
	if err != nil {
		return 0, err
	}

	newParent := parent.clone()
	newParent.Pairs[nodeIdx].Key = newSeparator
	newParent.Pairs[nodeIdx].Value = newNodeID
	newParent.Pairs[rightIdx].Value = newRightID

	newParentID, err := storeNode(pool, sbHandle, newParent)
	if err != nil {
		return 0, err
	}

	if err := freeMany(pool, sbHandle, []BlockID{nodeID, rightID}); err != nil {
		return 0, err
	}

	return newParentID, nil
}

// borrowFromLeft moves the left sibling's last entry into node, under
// parent at positions leftIdx/nodeIdx.
func borrowFromLeft(pool *Pool, sbHandle *Handle, parent, left, node *BTNode, leftIdx, nodeIdx int, leftID, nodeID BlockID) (BlockID, error) {
	parentSeparator := parent.Pairs[leftIdx].Key
	borrowed := left.Pairs[left.Count-1]
	if !node.IsLeaf {
		borrowed.Key = parentSeparator
	}

	newNode := newEmptyLeaf()
	if !node.IsLeaf {
		newNode = newEmptyInternal()
	}
	newNode.Pairs[0] = borrowed
	for i := uint64(0); i < node.Count; i++ {
		newNode.Pairs[i+1] = node.Pairs[i]
	}
	newNode.Count = node.Count + 1

	newLeft := left.clone()
	newLeft.Pairs[left.Count-1] = KeyPair{Key: MaxKey}
	if !left.IsLeaf && left.Count >= 2 {
		newLeft.Pairs[left.Count-2].Key = MaxKey
	}
	newLeft.Count = left.Count - 1

	newSeparator, err := minKeyOf(pool, newNode)
	if err != nil {
		return 0, err
	}

	newLeftID, err := storeNode(pool, sbHandle, newLeft)
	if err != nil {
		return 0, err
	}
	newNodeID, err := storeNode(pool, sbHandle, newNode)
	if err != nil {
		return 0, err
	}

	newParent := parent.clone()
	newParent.Pairs[leftIdx].Key = newSeparator
	newParent.Pairs[leftIdx].Value = newLeftID
	newParent.Pairs[nodeIdx].Value = newNodeID

	newParentID, err := storeNode(pool, sbHandle, newParent)
	if err != nil {
		return 0, err
	}

	if err := freeMany(pool, sbHandle, []BlockID{leftID, nodeID}); err != nil {
		return 0, err
	}

	return newParentID, nil
}

// mergeSiblings merges left and right (adjacent under parent at
// leftIdx/rightIdx) into one node, folding the parent's separator in
// for internal nodes, and rebuilds parent with one fewer slot.
func mergeSiblings(pool *Pool, sbHandle *Handle, parent, left, right *BTNode, leftIdx, rightIdx int, leftID, rightID BlockID) (BlockID, error) {
	leftKey := parent.Pairs[leftIdx].Key
	rightKey := parent.Pairs[rightIdx].Key

	merged := newEmptyLeaf()
	if !left.IsLeaf {
		merged = newEmptyInternal()
	}
	n := uint64(0)
	for i := uint64(0); i < left.Count; i++ {
		merged.Pairs[n] = left.Pairs[i]
		n++
	}
	if !left.IsLeaf {
		merged.Pairs[n-1].Key = leftKey
	}
	for i := uint64(0); i < right.Count; i++ {
		merged.Pairs[n] = right.Pairs[i]
		n++
	}
	merged.Count = n

	mergedID, err := storeNode(pool, sbHandle, merged)
	if err != nil {
		return 0, err
	}

	newParent := newEmptyInternal()
	j := 0
	for i := 0; i < int(parent.Count); i++ {
		switch i {
		case leftIdx:
			newParent.Pairs[j] = KeyPair{Key: rightKey, Value: mergedID}
			j++
		case rightIdx:
			// omitted
		default:
			newParent.Pairs[j] = parent.Pairs[i]
			j++
		}
	}
	newParent.Count = uint64(j)

	newParentID, err := storeNode(pool, sbHandle, newParent)
	if err != nil {
		return 0, err
	}

	if err := freeMany(pool, sbHandle, []BlockID{leftID, rightID}); err != nil {
		return 0, err
	}

	return newParentID, nil
}

// minKeyOf returns the smallest key reachable from node, descending
// through the pool when node is internal.
func minKeyOf(pool *Pool, node *BTNode) (uint64, error) {
	if node.Count == 0 {
		return 0, common.ErrCorruptNode
	}
	if node.IsLeaf {
		return node.Pairs[0].Key, nil
	}
	return findMin(pool, node.Pairs[0].Value)
}

// findMin descends the leftmost child chain from id to a leaf and
// returns its first key.
func findMin(pool *Pool, id BlockID) (uint64, error) {
	node, err := loadNode(pool, id)
	if err != nil {
		return 0, err
	}
	if node.Count == 0 {
		return 0, common.ErrCorruptNode
	}
	if node.IsLeaf {
		return node.Pairs[0].Key, nil
	}
	return findMin(pool, node.Pairs[0].Value)
}
