package cart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSnapshotSubtotal(t *testing.T) {
	s := &Snapshot{Items: []Line{
		{ProductID: "p1", UnitPriceCents: 50000, Qty: 2},
		{ProductID: "p2", UnitPriceCents: 2500, Qty: 3},
	}}
	assert.Equal(t, int64(107500), s.SubtotalCents())
	assert.False(t, s.Empty())
}

func TestSnapshotEmpty(t *testing.T) {
	assert.True(t, (&Snapshot{UserID: "u1"}).Empty())
	assert.True(t, (*Snapshot)(nil).Empty())
}
