// File: bptree.go
package bptree

import (
	"cmp"
	"sync"
)

// DefaultOrder is the fallback branching factor if a user-supplied order is too small.
const DefaultOrder = 4

// findChildIndex determines which child pointer to follow
// (or where to insert a new key) in an internal node.
func findChildIndex[K cmp.Ordered](keys []K, searchKey K) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Less(searchKey, keys[mid]) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

// findLeafIndex returns the position of the first key >= searchKey.
func findLeafIndex[K cmp.Ordered](keys []K, searchKey K) int {
	lo, hi := 0, len(keys)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp.Less(keys[mid], searchKey) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// BPlusTree is an in-memory ordered map. Keys in leaves are kept sorted and
// leaves are linked left to right for range scans.
type BPlusTree[K cmp.Ordered, V any] struct {
	root   *node[K, V]
	order  int
	height int
	size   int
	m      sync.RWMutex
}

// Height returns the number of levels in the tree.
func (tree *BPlusTree[K, V]) Height() int {
	tree.m.RLock()
	defer tree.m.RUnlock()
	return tree.height
}

// Len returns the number of keys stored.
func (tree *BPlusTree[K, V]) Len() int {
	tree.m.RLock()
	defer tree.m.RUnlock()
	return tree.size
}

// node represents both internal and leaf nodes in the B+Tree.
type node[K cmp.Ordered, V any] struct {
	isLeaf   bool
	keys     []K
	children []*node[K, V] // used if !isLeaf
	values   []V           // used if isLeaf
	parent   *node[K, V]
	next     *node[K, V] // leaf-link pointer, for range scans
}

// NewBPlusTree creates and returns a B+Tree with the given order.
// If the specified order < 3, we fall back to DefaultOrder.
func NewBPlusTree[K cmp.Ordered, V any](order int) *BPlusTree[K, V] {
	if order < 3 {
		order = DefaultOrder
	}
	return &BPlusTree[K, V]{
		root:   newLeaf[K, V](order),
		order:  order,
		height: 1,
	}
}

func newLeaf[K cmp.Ordered, V any](order int) *node[K, V] {
	return &node[K, V]{
		isLeaf: true,
		keys:   make([]K, 0, order+1),
		values: make([]V, 0, order+1),
	}
}

// findLeaf descends from the root to the leaf that would hold key.
func (tree *BPlusTree[K, V]) findLeaf(key K) *node[K, V] {
	current := tree.root
	for !current.isLeaf {
		current = current.children[findChildIndex(current.keys, key)]
	}
	return current
}

// Search locates the value associated with `key` (if it exists).
func (tree *BPlusTree[K, V]) Search(key K) (V, bool) {
	tree.m.RLock()
	defer tree.m.RUnlock()

	leaf := tree.findLeaf(key)
	if i := findLeafIndex(leaf.keys, key); i < len(leaf.keys) && leaf.keys[i] == key {
		return leaf.values[i], true
	}

	var zero V
	return zero, false
}

// Insert adds a (key, value) pair to the B+Tree, replacing the value of an
// existing key.
func (tree *BPlusTree[K, V]) Insert(key K, value V) {
	tree.m.Lock()
	defer tree.m.Unlock()

	leaf := tree.findLeaf(key)
	if insertKeyValueInLeaf(leaf, key, value) {
		tree.size++
	}

	// Check overflow
	if len(leaf.keys) > tree.order {
		tree.splitLeaf(leaf)
	}
}

// Delete removes key and returns its value. Leaves are not merged after a
// delete; an emptied leaf stays linked and is skipped by scans.
func (tree *BPlusTree[K, V]) Delete(key K) (V, bool) {
	tree.m.Lock()
	defer tree.m.Unlock()

	var zero V
	leaf := tree.findLeaf(key)
	i := findLeafIndex(leaf.keys, key)
	if i >= len(leaf.keys) || leaf.keys[i] != key {
		return zero, false
	}

	value := leaf.values[i]
	last := len(leaf.keys) - 1

	copy(leaf.keys[i:], leaf.keys[i+1:])
	leaf.keys = leaf.keys[:last]

	copy(leaf.values[i:], leaf.values[i+1:])
	leaf.values[last] = zero
	leaf.values = leaf.values[:last]
	tree.size--

	return value, true
}

// Ascend calls fn for every key >= start in ascending order until fn returns false.
func (tree *BPlusTree[K, V]) Ascend(start K, fn func(key K, value V) bool) {
	tree.m.RLock()
	defer tree.m.RUnlock()

	leaf := tree.findLeaf(start)
	i := findLeafIndex(leaf.keys, start)
	for leaf != nil {
		for ; i < len(leaf.keys); i++ {
			if !fn(leaf.keys[i], leaf.values[i]) {
				return
			}
		}
		leaf, i = leaf.next, 0
	}
}

// Min returns the smallest key in the tree.
func (tree *BPlusTree[K, V]) Min() (K, bool) {
	tree.m.RLock()
	defer tree.m.RUnlock()

	current := tree.root
	for !current.isLeaf {
		current = current.children[0]
	}
	for ; current != nil; current = current.next {
		if len(current.keys) > 0 {
			return current.keys[0], true
		}
	}
	var zero K
	return zero, false
}

// insertKeyValueInLeaf places key in sorted position and reports whether it was new.
func insertKeyValueInLeaf[K cmp.Ordered, V any](leaf *node[K, V], key K, value V) bool {
	idx := findLeafIndex(leaf.keys, key)
	// Check if the key already exists
	if idx < len(leaf.keys) && leaf.keys[idx] == key {
		leaf.values[idx] = value // Update the existing value
		return false
	}
	leaf.keys = append(leaf.keys, key)
	leaf.values = append(leaf.values, value)

	// Shift elements to make room at idx
	copy(leaf.keys[idx+1:], leaf.keys[idx:])
	leaf.keys[idx] = key

	copy(leaf.values[idx+1:], leaf.values[idx:])
	leaf.values[idx] = value
	return true
}

// splitLeaf handles splitting a leaf node that has overflowed.
func (tree *BPlusTree[K, V]) splitLeaf(leaf *node[K, V]) {
	mid := len(leaf.keys) / 2

	newLeaf := &node[K, V]{
		isLeaf: true,
		keys:   append(make([]K, 0, tree.order+1), leaf.keys[mid:]...),
		values: append(make([]V, 0, tree.order+1), leaf.values[mid:]...),
		next:   leaf.next,
		parent: leaf.parent,
	}

	// Adjust the original leaf
	var zero V
	for i := mid; i < len(leaf.values); i++ {
		leaf.values[i] = zero
	}
	leaf.keys = leaf.keys[:mid]
	leaf.values = leaf.values[:mid]
	leaf.next = newLeaf

	// If the leaf is the root (no parent), create a new root
	if leaf.parent == nil {
		newRoot := &node[K, V]{
			isLeaf:   false,
			keys:     []K{newLeaf.keys[0]},
			children: []*node[K, V]{leaf, newLeaf},
		}

		leaf.parent = newRoot
		newLeaf.parent = newRoot

		tree.root = newRoot
		tree.height++

		return
	}

	// Otherwise, insert the new leaf's first key into the parent
	insertKeyInParent(tree, leaf.parent, newLeaf.keys[0], newLeaf)
}

// insertKeyInParent inserts `key` and links `rightChild` after it in the parent.
func insertKeyInParent[K cmp.Ordered, V any](tree *BPlusTree[K, V],
	parent *node[K, V], key K, rightChild *node[K, V]) {

	idx := findChildIndex(parent.keys, key)

	parent.keys = append(parent.keys, key)
	copy(parent.keys[idx+1:], parent.keys[idx:])
	parent.keys[idx] = key

	parent.children = append(parent.children, rightChild)
	copy(parent.children[idx+2:], parent.children[idx+1:])
	parent.children[idx+1] = rightChild

	rightChild.parent = parent

	// Check for overflow
	if len(parent.keys) > tree.order {
		splitInternalNode(tree, parent)
	}
}

// splitInternalNode handles splitting an internal node that has overflowed.
func splitInternalNode[K cmp.Ordered, V any](tree *BPlusTree[K, V], internal *node[K, V]) {
	mid := len(internal.keys) / 2
	splitKey := internal.keys[mid]

	newInternal := &node[K, V]{
		isLeaf:   false,
		keys:     append([]K{}, internal.keys[mid+1:]...),
		children: append([]*node[K, V]{}, internal.children[mid+1:]...),
		parent:   internal.parent,
	}

	// Update children's parent pointers
	for _, child := range newInternal.children {
		child.parent = newInternal
	}

	// Adjust the original internal node
	internal.keys = internal.keys[:mid]
	internal.children = internal.children[:mid+1]

	if internal.parent == nil {
		// Create a new root
		newRoot := &node[K, V]{
			isLeaf:   false,
			keys:     []K{splitKey},
			children: []*node[K, V]{internal, newInternal},
		}
		internal.parent = newRoot
		newInternal.parent = newRoot
		tree.root = newRoot
		tree.height++
		return
	}

	insertKeyInParent(tree, internal.parent, splitKey, newInternal)
}
