package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AutomNexus/Automn-sub001/errors"
	internaltesting "github.com/AutomNexus/Automn-sub001/internal/testing"
)

func TestGetReturnsLatestVersionCode(t *testing.T) {
	store := NewStore(internaltesting.CreateTestDB(t))

	require.NoError(t, store.Create(&Script{ID: "s1", Name: "hello"}))
	require.NoError(t, store.AddVersion("s1", 1, "v1 code"))
	require.NoError(t, store.AddVersion("s1", 2, "v2 code"))

	sc, err := store.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "v2 code", sc.Code)
}

func TestGetWithoutVersionsHasEmptyCode(t *testing.T) {
	store := NewStore(internaltesting.CreateTestDB(t))
	require.NoError(t, store.Create(&Script{ID: "s1", Name: "hello"}))

	sc, err := store.Get("s1")
	require.NoError(t, err)
	assert.Empty(t, sc.Code)
}

func TestGetUnknownScriptIsNotFound(t *testing.T) {
	store := NewStore(internaltesting.CreateTestDB(t))
	_, err := store.Get("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestMaxVersionDefaultsToZero(t *testing.T) {
	store := NewStore(internaltesting.CreateTestDB(t))
	require.NoError(t, store.Create(&Script{ID: "s1", Name: "hello"}))

	v, err := store.MaxVersion("s1")
	require.NoError(t, err)
	assert.Zero(t, v)

	require.NoError(t, store.AddVersion("s1", 1, "x"))
	require.NoError(t, store.AddVersion("s1", 7, "y"))
	v, err = store.MaxVersion("s1")
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestCategoryRoundTrip(t *testing.T) {
	store := NewStore(internaltesting.CreateTestDB(t))
	require.NoError(t, store.CreateCategory(&Category{
		ID: "cat1", Name: "jobs", DefaultRunnerHostID: "host-1",
	}))

	c, err := store.GetCategory("cat1")
	require.NoError(t, err)
	assert.Equal(t, "host-1", c.DefaultRunnerHostID)

	_, err = store.GetCategory("missing")
	assert.True(t, errors.IsNotFoundError(err))
}
