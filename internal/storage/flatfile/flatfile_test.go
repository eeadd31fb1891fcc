package flatfile

import (
	"context"
	"testing"
	"time"

	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestFlatFile(t *testing.T, messages int, opts Options) *FlatFile {
	t.Helper()
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, messages)
	return NewFlatFile(mq, provider, opts)
}

func TestFlatFile_UniqueIDs(t *testing.T) {
	provider := setupTestProvider(t)
	a := NewFlatFile(storage.MessageQueue{Topic: "a"}, provider, Options{})
	b := NewFlatFile(storage.MessageQueue{Topic: "b"}, provider, Options{})
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestFlatFile_ReadAheadFactorSaturates(t *testing.T) {
	file := setupTestFlatFile(t, 1, Options{MinFactor: 2, FactorCeiling: 4})

	assert.Equal(t, 2, file.ReadAheadFactor())

	for i := 0; i < 10; i++ {
		file.IncreaseReadAheadFactor()
	}
	assert.Equal(t, 4, file.ReadAheadFactor())

	for i := 0; i < 10; i++ {
		file.DecreaseReadAheadFactor()
	}
	assert.Equal(t, 2, file.ReadAheadFactor())
}

func TestFlatFile_FactorFloorOfOneStays(t *testing.T) {
	file := setupTestFlatFile(t, 1, Options{MinFactor: 1, FactorCeiling: 4})

	file.DecreaseReadAheadFactor()
	file.DecreaseReadAheadFactor()
	assert.Equal(t, 1, file.ReadAheadFactor())
}

func TestFlatFile_GroupAccess(t *testing.T) {
	file := setupTestFlatFile(t, 1, Options{MinFactor: 1, FactorCeiling: 1})

	assert.Equal(t, int64(-1), file.GroupOffset("g1"))
	assert.Equal(t, 0, file.ActiveGroupCount())

	file.RecordGroupAccess("g1", 100)
	file.RecordGroupAccess("g2", 50)
	assert.Equal(t, 2, file.ActiveGroupCount())
	assert.Equal(t, int64(100), file.GroupOffset("g1"))

	// offsets only move forward
	file.RecordGroupAccess("g1", 40)
	assert.Equal(t, int64(100), file.GroupOffset("g1"))
}

func TestFlatFile_GroupActivityWindowPrunes(t *testing.T) {
	file := setupTestFlatFile(t, 1, Options{MinFactor: 1, FactorCeiling: 1, GroupActivityWindow: 20 * time.Millisecond})

	file.RecordGroupAccess("g1", 10)
	assert.Equal(t, 1, file.ActiveGroupCount())

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 0, file.ActiveGroupCount())
}

func TestFlatFile_GetOffsetInConsumeQueueByTime(t *testing.T) {
	// seedQueue stamps message i with store timestamp 1000 + i*10
	file := setupTestFlatFile(t, 10, Options{MinFactor: 1, FactorCeiling: 1})
	ctx := context.Background()

	tests := []struct {
		name      string
		timestamp int64
		boundary  storage.BoundaryType
		want      int64
	}{
		{"lower exact", 1030, storage.BoundaryLower, 3},
		{"lower between", 1035, storage.BoundaryLower, 4},
		{"lower before all", 0, storage.BoundaryLower, 0},
		{"lower after all", 2000, storage.BoundaryLower, -1},
		{"upper exact", 1030, storage.BoundaryUpper, 3},
		{"upper between", 1035, storage.BoundaryUpper, 3},
		{"upper after all", 2000, storage.BoundaryUpper, 9},
		{"upper before all", 0, storage.BoundaryUpper, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			offset, err := file.GetOffsetInConsumeQueueByTime(ctx, tt.timestamp, tt.boundary)
			require.NoError(t, err)
			assert.Equal(t, tt.want, offset)
		})
	}
}

func TestManager_GetFlatFile(t *testing.T) {
	provider := setupTestProvider(t)
	mq := storage.MessageQueue{Topic: "test", BrokerName: "broker-0", QueueID: 0}
	seedQueue(t, provider, mq, 5)

	manager := NewManager(provider, Options{MinFactor: 2, FactorCeiling: 32})

	// unknown queues yield nil
	assert.Nil(t, manager.GetFlatFile(storage.MessageQueue{Topic: "missing", BrokerName: "broker-0", QueueID: 0}))

	file := manager.GetFlatFile(mq)
	require.NotNil(t, file)

	// handles are shared
	assert.Same(t, file, manager.GetFlatFile(mq))
	assert.Len(t, manager.FlatFiles(), 1)

	assert.NotNil(t, manager.GetIndexFile())
}
