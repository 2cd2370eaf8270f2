package update

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPathChange_PreservesOrder(t *testing.T) {
	u := New(6, false)
	u.NewPathChange("db.tbl.part1").RemoveAll()
	u.NewPathChange("db.tbl.part2").RemoveAll()
	u.NewPathChange("db.tbl").RemoveAll()

	require.Equal(t, 3, u.Len())
	assert.Equal(t, "db.tbl.part1", u.Changes[0].AuthzObj)
	assert.Equal(t, "db.tbl.part2", u.Changes[1].AuthzObj)
	assert.Equal(t, "db.tbl", u.Changes[2].AuthzObj)

	for _, c := range u.Changes {
		require.Len(t, c.DelPaths, 1)
		assert.True(t, IsRemoveAll(c.DelPaths[0]))
		assert.Empty(t, c.AddPaths)
	}
}

func TestPathChange_AddAndRemove(t *testing.T) {
	u := New(7, false)
	u.NewPathChange("db.new").AddPath([]string{"new"})
	u.NewPathChange("db.old").RemovePath([]string{"old"})

	assert.Equal(t, [][]string{{"new"}}, u.Changes[0].AddPaths)
	assert.Equal(t, [][]string{{"old"}}, u.Changes[1].DelPaths)
	assert.False(t, IsRemoveAll(u.Changes[1].DelPaths[0]))
}

func TestIsRemoveAll(t *testing.T) {
	assert.True(t, IsRemoveAll([]string{AllPaths}))
	assert.False(t, IsRemoveAll([]string{AllPaths, "x"}))
	assert.False(t, IsRemoveAll(nil))
}

func TestString(t *testing.T) {
	u := New(9, true)
	u.NewPathChange("db.t").AddPath([]string{"a"})

	assert.Equal(t, "update[seq=9 full=true db.t(+1 -0)]", u.String())
}

func TestCodec_RoundTrip(t *testing.T) {
	u := New(42, false)
	u.NewPathChange("db.tbl").AddPath([]string{"a", "b", "c"}).AddPath([]string{"x"})
	u.NewPathChange("db.other").RemoveAll()

	data, err := Marshal(u)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, u, got)
}

func TestCodec_EmptyVersusAbsent(t *testing.T) {
	u := &Update{
		SeqNum: 8,
		Changes: []*PathChange{
			{AuthzObj: "empty", AddPaths: [][]string{}, DelPaths: [][]string{}},
			{AuthzObj: "absent"},
		},
	}

	data, err := Marshal(u)
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)

	require.Len(t, got.Changes, 2)
	assert.NotNil(t, got.Changes[0].AddPaths)
	assert.Empty(t, got.Changes[0].AddPaths)
	assert.NotNil(t, got.Changes[0].DelPaths)
	assert.Nil(t, got.Changes[1].AddPaths)
	assert.Nil(t, got.Changes[1].DelPaths)
}

func TestCodec_NilChanges(t *testing.T) {
	data, err := Marshal(&Update{SeqNum: 1, FullImage: true})
	require.NoError(t, err)

	got, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, got.FullImage)
	assert.Nil(t, got.Changes)
}

func TestCodec_Deterministic(t *testing.T) {
	build := func() *Update {
		u := New(3, false)
		u.NewPathChange("db.t").AddPath([]string{"p"})

		return u
	}

	a, err := Marshal(build())
	require.NoError(t, err)

	b, err := Marshal(build())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}
