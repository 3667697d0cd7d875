package multimap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndex_AddGet(t *testing.T) {
	idx := New[string, int]()
	idx.Add("a", 1)
	idx.Add("b", 2)
	idx.Add("a", 3)

	assert.Equal(t, []int{1, 3}, idx.Get("a"))
	assert.Equal(t, []int{2}, idx.Get("b"))
	assert.Nil(t, idx.Get("missing"))
	assert.True(t, idx.Has("a"))
	assert.False(t, idx.Has("missing"))
	assert.Equal(t, 2, idx.Len())
}

func TestIndex_KeysKeepFirstInsertionOrder(t *testing.T) {
	idx := New[string, int]()
	for i, k := range []string{"z", "a", "z", "m", "a"} {
		idx.Add(k, i)
	}

	assert.Equal(t, []string{"z", "a", "m"}, idx.Keys())
}

func TestIndex_KeysReturnsCopy(t *testing.T) {
	idx := New[string, int]()
	idx.Add("a", 1)

	keys := idx.Keys()
	keys[0] = "mutated"

	assert.Equal(t, []string{"a"}, idx.Keys())
}

func TestGroupBy(t *testing.T) {
	type child struct {
		parent string
		name   string
	}
	items := []child{
		{"p1", "a"},
		{"", "orphanless"},
		{"p2", "b"},
		{"p1", "c"},
	}

	idx := GroupBy(items, func(c child) (string, bool) {
		return c.parent, c.parent != ""
	})

	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []child{{"p1", "a"}, {"p1", "c"}}, idx.Get("p1"))
	assert.Equal(t, []child{{"p2", "b"}}, idx.Get("p2"))
	assert.False(t, idx.Has(""))
}

func TestGroupBy_Empty(t *testing.T) {
	idx := GroupBy[string, int](nil, func(int) (string, bool) { return "", true })
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.Keys())
}
