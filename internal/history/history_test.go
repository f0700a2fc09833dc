package history

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nidhogg/nuka-drive/internal/activity"
	"github.com/nidhogg/nuka-drive/internal/traits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)

func rec(i int, kind activity.Kind) Record {
	return Record{
		ID:          string(rune('a' + i)),
		Timestamp:   epoch.Add(time.Duration(i) * time.Minute),
		Kind:        kind,
		Probability: 0.5,
		Factors:     map[string]float64{"n": float64(i)},
	}
}

func TestEvictsOldestBeyondCapacity(t *testing.T) {
	h := New()
	for i := 0; i < 25; i++ {
		h.Append(rec(i, activity.Catharsis))
	}
	got := h.Recent(100)
	require.Len(t, got, Capacity)
	for i, r := range got {
		assert.Equal(t, epoch.Add(time.Duration(i+5)*time.Minute), r.Timestamp)
	}
}

func TestRecentReturnsNewestOldestFirst(t *testing.T) {
	h := New()
	for i := 0; i < 5; i++ {
		h.Append(rec(i, activity.Catharsis))
	}
	got := h.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, rec(3, activity.Catharsis).ID, got[0].ID)
	assert.Equal(t, rec(4, activity.Catharsis).ID, got[1].ID)
	assert.Nil(t, h.Recent(0))
}

func TestLatestUnannotated(t *testing.T) {
	h := New()
	chosen := rec(0, activity.Catharsis)
	chosen.Chosen = true
	h.Append(chosen)
	h.Append(rec(1, activity.StressRelief))
	h.Append(rec(2, activity.Catharsis))
	h.Append(rec(3, activity.Catharsis))

	r, ok := h.LatestUnannotated(activity.Catharsis, true)
	require.True(t, ok)
	assert.Equal(t, chosen.ID, r.ID)

	r, ok = h.LatestUnannotated(activity.Catharsis, false)
	require.True(t, ok)
	assert.Equal(t, rec(3, activity.Catharsis).ID, r.ID)

	require.NoError(t, h.Annotate(rec(3, activity.Catharsis).ID, Annotation{Outcome: "not_chosen", At: epoch}))
	r, ok = h.LatestUnannotated(activity.Catharsis, false)
	require.True(t, ok)
	assert.Equal(t, rec(2, activity.Catharsis).ID, r.ID)

	require.NoError(t, h.Annotate(chosen.ID, Annotation{Outcome: "praised", At: epoch}))
	require.NoError(t, h.Annotate(rec(2, activity.Catharsis).ID, Annotation{Outcome: "not_chosen", At: epoch}))
	_, ok = h.LatestUnannotated(activity.Catharsis, true)
	assert.False(t, ok)

	r, ok = h.LatestUnannotated(activity.StressRelief, true)
	require.True(t, ok, "falls back to a record with the other Chosen flag")
	assert.Equal(t, rec(1, activity.StressRelief).ID, r.ID)

	_, ok = h.LatestUnannotated(activity.SocialBonding, false)
	assert.False(t, ok)
}

func TestGet(t *testing.T) {
	h := New()
	h.Append(rec(0, activity.Catharsis))
	h.Append(rec(1, activity.StressRelief))

	r, ok := h.Get(rec(0, activity.Catharsis).ID)
	require.True(t, ok)
	assert.Equal(t, activity.Catharsis, r.Kind)

	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestAnnotateOnce(t *testing.T) {
	h := New()
	h.Append(rec(0, activity.Catharsis))
	before := h.Recent(1)[0]

	a := Annotation{Outcome: "praised", Deltas: map[traits.Field]float64{traits.Whimsy: 0.05}, At: epoch}
	require.NoError(t, h.Annotate(before.ID, a))
	require.ErrorIs(t, h.Annotate(before.ID, a), ErrAlreadyAnnotated)
	require.ErrorIs(t, h.Annotate("missing", a), ErrRecordNotFound)

	after := h.Recent(1)[0]
	require.NotNil(t, after.Annotation)
	after.Annotation = nil
	if diff := cmp.Diff(before, after); diff != "" {
		t.Errorf("annotation changed other fields (-before +after):\n%s", diff)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	h := New()
	h.Append(rec(0, activity.Catharsis))

	r := h.Recent(1)[0]
	r.Factors["n"] = 99
	r.Chosen = true

	stored := h.Recent(1)[0]
	assert.Equal(t, 0.0, stored.Factors["n"])
	assert.False(t, stored.Chosen)
}

func TestFromRecordsKeepsNewest(t *testing.T) {
	var rs []Record
	for i := 0; i < 22; i++ {
		rs = append(rs, rec(i, activity.Catharsis))
	}
	h := FromRecords(rs)
	assert.Equal(t, Capacity, h.Len())
	assert.Equal(t, rs[2].ID, h.Recent(Capacity)[0].ID)
}
