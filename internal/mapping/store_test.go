package mapping

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mappings.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLastEmailDateLifecycle(t *testing.T) {
	s := newTestStore(t)

	last, err := s.GetLastEmailDate("lunaewsx")
	require.NoError(t, err)
	assert.Nil(t, last, "unknown user has no timestamp")

	first := time.Date(2024, 3, 17, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateLastEmailDate("lunaewsx", first))

	last, err = s.GetLastEmailDate("lunaewsx")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.True(t, last.Equal(first))

	newer := first.Add(time.Hour)
	require.NoError(t, s.UpdateLastEmailDate("lunaewsx", newer))

	last, err = s.GetLastEmailDate("lunaewsx")
	require.NoError(t, err)
	assert.True(t, last.Equal(newer), "newer timestamp overwrites")
}

func TestAddOrderMappingIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddOrderMapping("lunaewsx", "3054169918883922"))
	require.NoError(t, s.AddOrderMapping("lunaewsx", "3054169918883922"))
	require.NoError(t, s.AddOrderMapping("lunaewsx", "3054169918883923"))

	m, err := s.Get("lunaewsx")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, []string{"3054169918883922", "3054169918883923"}, m.OrderNumbers)
}

func TestAddPackageMappingIdempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddPackageMapping("user", "623456789012345678901234"))
	require.NoError(t, s.AddPackageMapping("user", "623456789012345678901234"))

	m, err := s.Get("user")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Len(t, m.PackageNumbers, 1)
}

func TestEmptyNumbersIgnored(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddOrderMapping("user", ""))
	m, err := s.Get("user")
	require.NoError(t, err)
	assert.Nil(t, m, "empty numbers never create a mapping")
}

func TestRemoveMappingAcceptsEmailOrKey(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddOrderMapping("lunaewsx", "111"))
	require.NoError(t, s.RemoveMapping("lunaewsx@gmail.com"))

	m, err := s.Get("lunaewsx")
	require.NoError(t, err)
	assert.Nil(t, m)

	require.NoError(t, s.AddOrderMapping("other", "222"))
	require.NoError(t, s.RemoveMapping("other"))

	m, err = s.Get("other")
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestProcessedLedger(t *testing.T) {
	s := newTestStore(t)

	done, err := s.IsProcessed("inbox@example.com", 42)
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.MarkProcessed("inbox@example.com", 42, "<msg-42>", "processed"))

	done, err = s.IsProcessed("inbox@example.com", 42)
	require.NoError(t, err)
	assert.True(t, done)

	// The same UID in another mailbox is a different message.
	done, err = s.IsProcessed("second@example.com", 42)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestAll(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddOrderMapping("bbb", "1"))
	require.NoError(t, s.AddOrderMapping("aaa", "2"))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "aaa", all[0].UserKey)
	assert.Equal(t, "bbb", all[1].UserKey)
}
