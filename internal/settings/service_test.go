package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/famhealth/famhealth/internal/config"
	"github.com/famhealth/famhealth/internal/storage"
)

type memStore struct {
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func fallbackConfig() config.AIConfig {
	return config.AIConfig{
		APIKey:      "sk-env-fallback-key",
		BaseURL:     "https://env.example.com/v1",
		ChatModel:   "env-chat",
		VisionModel: "env-vision",
	}
}

func TestCredentialsEnvFallback(t *testing.T) {
	svc := NewService(newMemStore(), fallbackConfig())

	creds, err := svc.Credentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-env-fallback-key", creds.APIKey)
	assert.Equal(t, "env-chat", creds.ChatModel)
	assert.True(t, creds.Configured())
}

func TestCredentialsDatabaseWins(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fallbackConfig())
	ctx := context.Background()

	require.NoError(t, svc.SaveAPIKey(ctx, "sk-from-database-0042"))
	require.NoError(t, svc.SaveModels(ctx, "db-chat", ""))

	creds, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-database-0042", creds.APIKey)
	assert.Equal(t, "db-chat", creds.ChatModel)
	assert.Equal(t, "env-vision", creds.VisionModel, "unset override falls back to environment")
}

func TestClearAPIKeyRestoresFallback(t *testing.T) {
	svc := NewService(newMemStore(), fallbackConfig())
	ctx := context.Background()

	require.NoError(t, svc.SaveAPIKey(ctx, "sk-temporary"))
	require.NoError(t, svc.ClearAPIKey(ctx))

	creds, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-env-fallback-key", creds.APIKey)
}

func TestSaveAPIKeyRejectsEmpty(t *testing.T) {
	svc := NewService(newMemStore(), fallbackConfig())
	assert.Error(t, svc.SaveAPIKey(context.Background(), "   "))
}

func TestStatusMasksAndReportsSource(t *testing.T) {
	store := newMemStore()
	svc := NewService(store, fallbackConfig())
	ctx := context.Background()

	status, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Configured)
	assert.Equal(t, "environment", status.Source)
	assert.Equal(t, "sk-e****-key", status.MaskedKey)

	require.NoError(t, svc.SaveAPIKey(ctx, "sk-database-key-9876"))
	status, err = svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "database", status.Source)
	assert.Equal(t, "sk-d****9876", status.MaskedKey)
}

func TestStatusUnconfigured(t *testing.T) {
	svc := NewService(newMemStore(), config.AIConfig{})
	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Configured)
	assert.Empty(t, status.MaskedKey)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "****", MaskKey(""))
	assert.Equal(t, "****", MaskKey("short"))
	assert.Equal(t, "****", MaskKey("12345678"))
	assert.Equal(t, "sk-a****wxyz", MaskKey("sk-abcdefghijklmnopqrstuvwxyz"))
}
