package bptree_test

import (
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/ssargent/boarddb/pkg/bptree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBPlusTree_InsertAndSearch(t *testing.T) {
	tests := map[string]struct {
		tree     *bptree.BPlusTree[int, string]
		actions  []func(tree *bptree.BPlusTree[int, string])
		searches []struct {
			key      int
			expected string
			found    bool
		}
	}{
		"Insert and search integers": {
			tree: bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "one") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(2, "two") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(3, "three") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(4, "four") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(5, "five") },
			},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "one", true},
				{2, "two", true},
				{3, "three", true},
				{4, "four", true},
				{5, "five", true},
				{6, "", false},
			},
		},
		"Insert duplicate keys": {
			tree: bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "one") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "uno") },
			},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "uno", true},
			},
		},
		"Delete removes key": {
			tree: bptree.NewBPlusTree[int, string](3),
			actions: []func(tree *bptree.BPlusTree[int, string]){
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(1, "one") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Insert(2, "two") },
				func(tree *bptree.BPlusTree[int, string]) { tree.Delete(1) },
			},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "", false},
				{2, "two", true},
			},
		},
		"Search empty tree": {
			tree:    bptree.NewBPlusTree[int, string](4),
			actions: []func(tree *bptree.BPlusTree[int, string]){},
			searches: []struct {
				key      int
				expected string
				found    bool
			}{
				{1, "", false},
			},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			for _, action := range tt.actions {
				action(tt.tree)
			}
			for _, search := range tt.searches {
				value, found := tt.tree.Search(search.key)
				if found != search.found || value != search.expected {
					t.Errorf("Search(%d) = %v, %v; want %v, %v", search.key, value, found, search.expected, search.found)
				}
			}
		})
	}
}

func TestBPlusTree_Uint64Keys(t *testing.T) {
	tree := bptree.NewBPlusTree[uint64, int](4)
	keys := rand.New(rand.NewSource(1)).Perm(500)
	for _, k := range keys {
		tree.Insert(uint64(k)+1, k)
	}

	assert.Equal(t, 500, tree.Len())
	assert.Greater(t, tree.Height(), 1)

	for _, k := range keys {
		v, ok := tree.Search(uint64(k) + 1)
		require.True(t, ok, "key %d", k+1)
		assert.Equal(t, k, v)
	}

	min, ok := tree.Min()
	require.True(t, ok)
	assert.Equal(t, uint64(1), min)
}

func TestBPlusTree_DeleteAndAscend(t *testing.T) {
	tree := bptree.NewBPlusTree[uint64, string](3)
	for i := uint64(1); i <= 100; i++ {
		tree.Insert(i, "v")
	}

	// Delete every even key, and the first 20 keys entirely.
	for i := uint64(1); i <= 100; i++ {
		if i%2 == 0 || i <= 20 {
			_, ok := tree.Delete(i)
			assert.True(t, ok)
		}
	}
	_, ok := tree.Delete(2)
	assert.False(t, ok, "second delete must miss")

	var got []uint64
	tree.Ascend(0, func(k uint64, _ string) bool {
		got = append(got, k)
		return true
	})

	var want []uint64
	for i := uint64(21); i <= 100; i += 2 {
		want = append(want, i)
	}
	assert.Equal(t, want, got)
	assert.Equal(t, len(want), tree.Len())
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }))

	min, ok := tree.Min()
	require.True(t, ok)
	assert.Equal(t, uint64(21), min)
}

func TestBPlusTree_AscendFromAndStop(t *testing.T) {
	tree := bptree.NewBPlusTree[uint64, uint64](4)
	for i := uint64(10); i <= 50; i += 10 {
		tree.Insert(i, i*2)
	}

	var got []uint64
	tree.Ascend(25, func(k, v uint64) bool {
		assert.Equal(t, k*2, v)
		got = append(got, k)
		return len(got) < 2
	})
	assert.Equal(t, []uint64{30, 40}, got)
}

func TestBPlusTree_EmptyMin(t *testing.T) {
	tree := bptree.NewBPlusTree[uint64, int](4)
	_, ok := tree.Min()
	assert.False(t, ok)

	tree.Insert(5, 5)
	tree.Delete(5)
	_, ok = tree.Min()
	assert.False(t, ok)
}

func TestBPlusTree_Concurrency(t *testing.T) {
	tree := bptree.NewBPlusTree[int, string](4)

	// Insert keys concurrently
	var wg sync.WaitGroup
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tree.Insert(i, string(rune('a'+i-1)))
		}(i)
	}
	wg.Wait()

	// Search for keys concurrently
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, found := tree.Search(i); !found {
				t.Errorf("Expected to find key %d", i)
			}
		}(i)
	}
	wg.Wait()
}
