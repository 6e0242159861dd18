package storage

import (
	"testing"

	"github.com/capstan-io/capstan/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactory_Local(t *testing.T) {
	factory := NewFactory(&config.StorageConfig{
		Type:      "local",
		LocalPath: t.TempDir(),
	})

	store, err := factory.CreateStorage()
	require.NoError(t, err)
	assert.NotNil(t, store)
	assert.IsType(t, &LocalStorage{}, store)
}

func TestFactory_Unsupported(t *testing.T) {
	for _, storageType := range []string{"s3", "gcs", "azure", "bogus"} {
		factory := NewFactory(&config.StorageConfig{Type: storageType})

		store, err := factory.CreateStorage()
		assert.Error(t, err, storageType)
		assert.Nil(t, store)
	}
}
