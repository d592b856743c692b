package worker

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-property-media/entity"
	"github.com/tnqbao/gau-property-media/infra"
	"github.com/tnqbao/gau-property-media/infra/produce"
)

func newObjectConsumer(t *testing.T, storage objectDeleter) *ObjectConsumer {
	t.Helper()
	return &ObjectConsumer{
		storage: storage,
		cfg:     testConfig(t),
		logger:  infra.NewDiscardLogger(),
		metrics: infra.NewNoopPipelineMetrics(),
		policy:  testPolicy(),
	}
}

func deleteTask() produce.DeleteBatchTask {
	return produce.DeleteBatchTask{
		TaskID:    "task-1",
		Role:      entity.ImageRoleListing,
		BaseDir:   "media/property-images/",
		Directory: "dirA/",
		Filenames: []string{"x.jpg", "y.jpg"},
	}
}

func TestHandleDeleteBatchRemovesObjects(t *testing.T) {
	local := newLocalStorage(t)
	ctx := context.Background()
	for _, name := range []string{"x.jpg", "y.jpg"} {
		require.NoError(t, local.Upload(ctx, []byte("img"), "media/property-images/dirA/"+name, "image/jpeg"))
	}
	require.NoError(t, local.Upload(ctx, []byte("img"), "media/property-images/dirB/x.jpg", "image/jpeg"))

	c := newObjectConsumer(t, local)
	ack := &fakeAcknowledger{}
	c.handleDeleteBatch(ctx, delivery(t, ack, produce.DeleteBatchRoutingKey, deleteTask()))

	assert.True(t, ack.acked)
	assert.NoDirExists(t, filepath.Join(local.Root(), "media", "property-images", "dirA"))
	assert.FileExists(t, filepath.Join(local.Root(), "media", "property-images", "dirB", "x.jpg"))
}

func TestHandleDeleteBatchIsIdempotent(t *testing.T) {
	c := newObjectConsumer(t, newLocalStorage(t))

	for i := 0; i < 2; i++ {
		ack := &fakeAcknowledger{}
		c.handleDeleteBatch(context.Background(), delivery(t, ack, produce.DeleteBatchRoutingKey, deleteTask()))
		assert.True(t, ack.acked)
	}
}

func TestHandleDeleteBatchRetriesTransientFailure(t *testing.T) {
	storage := &flakyStorage{LocalStorage: newLocalStorage(t), failures: 1}
	c := newObjectConsumer(t, storage)
	ack := &fakeAcknowledger{}

	c.handleDeleteBatch(context.Background(), delivery(t, ack, produce.DeleteBatchRoutingKey, deleteTask()))

	assert.True(t, ack.acked)
	assert.Equal(t, 2, storage.calls)
}

func TestHandleDeleteBatchRequeuesOnceThenDrops(t *testing.T) {
	storage := &flakyStorage{LocalStorage: newLocalStorage(t), failures: 100}
	c := newObjectConsumer(t, storage)

	ack := &fakeAcknowledger{}
	c.handleDeleteBatch(context.Background(), delivery(t, ack, produce.DeleteBatchRoutingKey, deleteTask()))
	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)

	ack = &fakeAcknowledger{}
	msg := delivery(t, ack, produce.DeleteBatchRoutingKey, deleteTask())
	msg.Redelivered = true
	c.handleDeleteBatch(context.Background(), msg)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestHandleDeleteBatchRejectsInvalidTask(t *testing.T) {
	storage := &flakyStorage{LocalStorage: newLocalStorage(t)}
	c := newObjectConsumer(t, storage)
	task := deleteTask()
	task.Directory = "../"
	ack := &fakeAcknowledger{}

	c.handleDeleteBatch(context.Background(), delivery(t, ack, produce.DeleteBatchRoutingKey, task))

	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
	assert.Equal(t, 0, storage.calls)
}
