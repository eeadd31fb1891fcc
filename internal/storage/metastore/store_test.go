package metastore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStore(dir)
	require.NoError(t, err)
	return store, dir
}

func TestStore_CreateAndGetTopic(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.CreateTopic(&TopicMetadata{Topic: "orders", TopicID: 7, ReserveTime: -1})
	require.NoError(t, err)

	meta, err := store.GetTopic("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", meta.Topic)
	assert.Equal(t, int32(7), meta.TopicID)
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestStore_GetTopic_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)

	_, err := store.GetTopic("missing")
	assert.ErrorIs(t, err, TopicNotFoundError{Topic: "missing"})
}

func TestStore_CreateTopic_Duplicate(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.CreateTopic(&TopicMetadata{Topic: "orders", TopicID: 1}))
	err := store.CreateTopic(&TopicMetadata{Topic: "orders", TopicID: 2})
	assert.ErrorIs(t, err, TopicExistsError{Topic: "orders"})
}

func TestStore_CreateTopic_InvalidInput(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.Error(t, store.CreateTopic(&TopicMetadata{Topic: "", TopicID: 1}))
	assert.Error(t, store.CreateTopic(&TopicMetadata{Topic: "x", TopicID: -1}))
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	store, dir := setupTestStore(t)
	require.NoError(t, store.CreateTopic(&TopicMetadata{Topic: "orders", TopicID: 7}))

	reopened, err := NewStore(dir)
	require.NoError(t, err)

	meta, err := reopened.GetTopic("orders")
	require.NoError(t, err)
	assert.Equal(t, int32(7), meta.TopicID)
}

func TestStore_ListTopics(t *testing.T) {
	store, _ := setupTestStore(t)
	require.NoError(t, store.CreateTopic(&TopicMetadata{Topic: "b-topic", TopicID: 2}))
	require.NoError(t, store.CreateTopic(&TopicMetadata{Topic: "a-topic", TopicID: 1}))

	topics := store.ListTopics()
	require.Len(t, topics, 2)
	assert.Equal(t, "a-topic", topics[0].Topic)
	assert.Equal(t, "b-topic", topics[1].Topic)
}
