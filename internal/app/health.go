package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// HealthStaleAfter is how old the health file may get before a check fails
const HealthStaleAfter = 90 * time.Second

// runSummary is the run and capacity part of the health status, also served on GET /health
func (app *Application) runSummary() map[string]interface{} {
	stats := app.orchestrator.Stats()
	return map[string]interface{}{
		"active_runs":     stats.Active,
		"completed_runs":  stats.Completed,
		"failed_runs":     stats.Failed,
		"capacity_in_use": app.capacity.InUse(),
		"capacity_size":   app.capacity.Size(),
	}
}

// getHealthStatus returns the current service health status
func (app *Application) getHealthStatus() map[string]interface{} {
	app.health.mu.RLock()
	listening := app.health.serverListening
	lastServeError := app.health.lastServeError
	startedAt := app.health.startedAt
	app.health.mu.RUnlock()

	status := app.runSummary()
	status["server_listening"] = listening
	status["last_serve_error"] = lastServeError
	status["started_at"] = startedAt.Format(time.RFC3339)
	status["uptime"] = time.Since(startedAt).Round(time.Second).String()
	status["gpu_available"] = app.gpuInfo.Available
	status["gpu_device_name"] = app.gpuInfo.DeviceName
	status["collaborators"] = app.monitor.GetMetrics()
	return status
}

// isSystemHealthy requires a listening server and no serve error
func (app *Application) isSystemHealthy(status map[string]interface{}) bool {
	listening, _ := status["server_listening"].(bool)
	serveErr, _ := status["last_serve_error"].(string)
	return listening && serveErr == ""
}

// writeHealthStatusFile writes the current health status atomically for container health checks
func (app *Application) writeHealthStatusFile(healthFile string) error {
	status := app.getHealthStatus()
	status["health_check_timestamp"] = time.Now().Format(time.RFC3339)
	status["healthy"] = app.isSystemHealthy(status)

	if err := os.MkdirAll(filepath.Dir(healthFile), 0755); err != nil {
		return fmt.Errorf("failed to create health file directory: %w", err)
	}

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal health status: %w", err)
	}

	tempFile := healthFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write health file: %w", err)
	}
	if err := os.Rename(tempFile, healthFile); err != nil {
		return fmt.Errorf("failed to rename health file: %w", err)
	}
	return nil
}

// CheckHealthFile validates a health file written by a running instance and
// returns how long ago it was written
func CheckHealthFile(healthFile string, maxAge time.Duration) (time.Duration, error) {
	data, err := os.ReadFile(healthFile)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("health status file not found (%s)", healthFile)
		}
		return 0, fmt.Errorf("failed to read health file: %w", err)
	}

	var status map[string]interface{}
	if err := json.Unmarshal(data, &status); err != nil {
		return 0, fmt.Errorf("failed to parse health file: %w", err)
	}

	stamp, ok := status["health_check_timestamp"].(string)
	if !ok {
		return 0, fmt.Errorf("health file missing timestamp")
	}
	written, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp format: %w", err)
	}

	age := time.Since(written)
	if age > maxAge {
		return age, fmt.Errorf("health file is stale (last update: %v ago)", age.Round(time.Second))
	}

	healthy, ok := status["healthy"].(bool)
	if !ok {
		return age, fmt.Errorf("health status missing healthy field")
	}
	if !healthy {
		return age, fmt.Errorf("application reported unhealthy status: %s", string(data))
	}
	return age, nil
}
