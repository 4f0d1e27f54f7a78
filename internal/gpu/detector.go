package gpu

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const probeTimeout = 5 * time.Second

// Info describes the accelerators available to whisper.cpp
type Info struct {
	Available     bool   `json:"available"`
	DeviceCount   int    `json:"device_count"`
	DeviceName    string `json:"device_name,omitempty"`
	DriverVersion string `json:"driver_version,omitempty"`
}

// Detector decides whether local speech recognition may offload to a GPU
type Detector struct {
	logger       *zap.Logger
	nvidiaSMI    string
	getenv       func(string) string
	toolkitPaths []string
}

// NewDetector creates a new GPU detector instance
func NewDetector(logger *zap.Logger) *Detector {
	return &Detector{
		logger:       logger.With(zap.String("component", "gpu")),
		nvidiaSMI:    "nvidia-smi",
		getenv:       os.Getenv,
		toolkitPaths: []string{"/usr/local/cuda", "/opt/cuda"},
	}
}

// Detect probes nvidia-smi first, then CUDA_VISIBLE_DEVICES, then toolkit directories
func (d *Detector) Detect(ctx context.Context) Info {
	info, err := d.detectWithNvidiaSMI(ctx)
	if err == nil {
		d.logger.Info("GPU detection completed",
			zap.Int("device_count", info.DeviceCount),
			zap.String("device_name", info.DeviceName))
		return info
	}
	d.logger.Debug("nvidia-smi detection failed", zap.Error(err))

	if visible := d.getenv("CUDA_VISIBLE_DEVICES"); visible != "" {
		if visible == "-1" {
			return Info{}
		}
		count := len(strings.Split(visible, ","))
		return Info{Available: count > 0, DeviceCount: count}
	}

	for _, path := range d.toolkitPaths {
		if _, err := os.Stat(path); err == nil {
			d.logger.Debug("CUDA toolkit found", zap.String("path", path))
			return Info{Available: true, DeviceCount: 1}
		}
	}

	return Info{}
}

func (d *Detector) detectWithNvidiaSMI(ctx context.Context) (Info, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, d.nvidiaSMI,
		"--query-gpu=name,driver_version", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return Info{}, fmt.Errorf("nvidia-smi command failed: %w", err)
	}

	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) == 0 || lines[0] == "" {
		return Info{}, fmt.Errorf("no GPUs found by nvidia-smi")
	}

	parts := strings.Split(lines[0], ",")
	if len(parts) < 2 {
		return Info{}, fmt.Errorf("unexpected nvidia-smi info format: %s", lines[0])
	}

	return Info{
		Available:     true,
		DeviceCount:   len(lines),
		DeviceName:    strings.TrimSpace(parts[0]),
		DriverVersion: strings.TrimSpace(parts[1]),
	}, nil
}

// DeviceFor returns the configured device when valid, 0 otherwise, or -1 without a GPU
func DeviceFor(info Info, configured int) int {
	if !info.Available {
		return -1
	}
	if configured >= 0 && configured < info.DeviceCount {
		return configured
	}
	return 0
}
