package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragmind/engine/document"
)

func doc(id string) *document.Document {
	d, err := document.New(id, "content for "+id)
	if err != nil {
		panic(err)
	}
	return d
}

func TestFuseRRF_Empty(t *testing.T) {
	assert.Nil(t, FuseRRF(nil, nil))
}

func TestFuseRRF_SingleList(t *testing.T) {
	list := []*document.Document{doc("a"), doc("b"), doc("c")}
	fused := FuseRRF([][]*document.Document{list}, []float64{1})

	require.Len(t, fused, 3)
	assert.Equal(t, "a", fused[0].ID)
	assert.Equal(t, 1, fused[0].Rank)
	assert.Greater(t, fused[0].Similarity, fused[1].Similarity)
}

func TestFuseRRF_AgreementBoostsRank(t *testing.T) {
	listA := []*document.Document{doc("a"), doc("b"), doc("c")}
	listB := []*document.Document{doc("b"), doc("c"), doc("a")}

	fused := FuseRRF([][]*document.Document{listA, listB}, []float64{0.5, 0.5})

	require.Len(t, fused, 3)
	// "b" ranks 2nd in A and 1st in B -> highest combined score.
	assert.Equal(t, "b", fused[0].ID)
}

func TestFuseRRF_ZeroWeightExcludesList(t *testing.T) {
	listA := []*document.Document{doc("a")}
	listB := []*document.Document{doc("b")}

	fused := FuseRRF([][]*document.Document{listA, listB}, []float64{1, 0})

	require.Len(t, fused, 1)
	assert.Equal(t, "a", fused[0].ID)
}

func TestFuseRRF_RanksAreSequential(t *testing.T) {
	list := []*document.Document{doc("a"), doc("b"), doc("c"), doc("d")}
	fused := FuseRRF([][]*document.Document{list}, []float64{1})

	for i, d := range fused {
		assert.Equal(t, i+1, d.Rank)
	}
}
