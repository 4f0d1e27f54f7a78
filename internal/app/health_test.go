package app

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplication_HealthStatus(t *testing.T) {
	t.Run("should report run counters and collaborator metrics", func(t *testing.T) {
		// Arrange
		app, _ := newTestApplication(t)
		app.setServerListening(true, nil)

		// Act
		status := app.getHealthStatus()

		// Assert
		assert.Equal(t, int64(0), status["active_runs"])
		assert.Equal(t, true, status["server_listening"])
		assert.Contains(t, status, "collaborators")
		assert.Contains(t, status, "gpu_available")
		assert.True(t, app.isSystemHealthy(status))
	})

	t.Run("should write a file the health check accepts", func(t *testing.T) {
		app, _ := newTestApplication(t)
		app.setServerListening(true, nil)
		path := app.config.GetHealthFile()

		require.NoError(t, app.writeHealthStatusFile(path))
		age, err := CheckHealthFile(path, HealthStaleAfter)

		require.NoError(t, err)
		assert.Less(t, age, HealthStaleAfter)
		assert.NoFileExists(t, path+".tmp")
	})

	t.Run("should fail the check while the server is not listening", func(t *testing.T) {
		app, _ := newTestApplication(t)
		path := app.config.GetHealthFile()

		require.NoError(t, app.writeHealthStatusFile(path))
		_, err := CheckHealthFile(path, HealthStaleAfter)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unhealthy")
	})
}

func TestCheckHealthFile(t *testing.T) {
	write := func(t *testing.T, status map[string]interface{}) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "health.json")
		data, err := json.Marshal(status)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data, 0644))
		return path
	}

	t.Run("should fail when the file is missing", func(t *testing.T) {
		_, err := CheckHealthFile(filepath.Join(t.TempDir(), "missing.json"), HealthStaleAfter)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("should fail when the file is stale", func(t *testing.T) {
		path := write(t, map[string]interface{}{
			"health_check_timestamp": time.Now().Add(-2 * time.Minute).Format(time.RFC3339),
			"healthy":                true,
		})

		_, err := CheckHealthFile(path, HealthStaleAfter)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "stale")
	})

	t.Run("should fail without a timestamp or healthy flag", func(t *testing.T) {
		_, err := CheckHealthFile(write(t, map[string]interface{}{"healthy": true}), HealthStaleAfter)
		assert.ErrorContains(t, err, "missing timestamp")

		_, err = CheckHealthFile(write(t, map[string]interface{}{
			"health_check_timestamp": time.Now().Format(time.RFC3339),
		}), HealthStaleAfter)
		assert.ErrorContains(t, err, "missing healthy field")
	})

	t.Run("should fail on malformed JSON", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "health.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

		_, err := CheckHealthFile(path, HealthStaleAfter)

		assert.ErrorContains(t, err, "failed to parse")
	})
}
