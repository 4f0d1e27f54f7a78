package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"videodubber/internal/app"
	"videodubber/internal/config"
)

const version = "1.0"

func main() {
	var (
		helpFlag    = flag.Bool("help", false, "Show help message")
		versionFlag = flag.Bool("version", false, "Show version information")
		healthFlag  = flag.Bool("health", false, "Check application health status")
	)
	flag.Parse()

	if *helpFlag {
		printHelp()
		os.Exit(0)
	}

	if *versionFlag {
		printVersion()
		os.Exit(0)
	}

	if *healthFlag {
		os.Exit(checkHealthWithFile(healthFilePath()))
	}

	if err := runApplication(); err != nil {
		fmt.Fprintf(os.Stderr, "Application error: %v\n", err)
		os.Exit(1)
	}
}

// runApplication builds the application and serves until SIGINT or SIGTERM
func runApplication() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("videodubber starting up",
		zap.String("component", "main"),
		zap.String("version", version))

	application, err := app.NewApplication()
	if err != nil {
		logger.Error("Failed to create application", zap.Error(err), zap.String("component", "main"))
		return fmt.Errorf("failed to create application: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)
	if runErr != nil {
		logger.Error("Application runtime error", zap.Error(runErr), zap.String("component", "main"))
	}

	// in-flight runs are canceled here, so shutdown happens on both paths
	if err := application.Shutdown(); err != nil {
		logger.Error("Error during application shutdown", zap.Error(err), zap.String("component", "main"))
		if runErr == nil {
			return fmt.Errorf("application shutdown error: %w", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("application runtime error: %w", runErr)
	}

	logger.Info("videodubber stopped successfully", zap.String("component", "main"))
	return nil
}

func printHelp() {
	fmt.Println("videodubber - Video Translation and Dubbing Service")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("    videodubber [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("    -help      Show this help message")
	fmt.Println("    -version   Show version information")
	fmt.Println("    -health    Check application health status")
	fmt.Println()
	fmt.Println("CONFIGURATION:")
	fmt.Println("    Configuration is loaded from CONFIG_PATH when set, otherwise from")
	fmt.Println("    DUBBER_* environment variables (e.g. DUBBER_SERVER_ADDRESS).")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("    videodubber              # Serve the HTTP API with default configuration")
	fmt.Println("    videodubber -health      # Check health (for Docker healthcheck)")
}

func printVersion() {
	fmt.Println("videodubber")
	fmt.Printf("Version: %s\n", version)
	fmt.Println("Architecture: Go 1.24 + FFmpeg + Whisper.cpp + edge-tts")
}

// healthFilePath resolves the health file from the same configuration sources
// the server uses
func healthFilePath() string {
	var cfg *config.Configuration
	var err error
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		cfg, err = config.NewConfigurationFromFile(path)
	} else {
		cfg, err = config.NewConfigurationFromEnv()
	}
	if err != nil {
		cfg = config.NewConfiguration()
	}
	return cfg.GetHealthFile()
}

// checkHealthWithFile prints HEALTHY or UNHEALTHY and returns the exit code
func checkHealthWithFile(healthFile string) int {
	age, err := app.CheckHealthFile(healthFile, app.HealthStaleAfter)
	if err != nil {
		fmt.Printf("UNHEALTHY: %v\n", err)
		return 1
	}
	fmt.Printf("HEALTHY: Application is functioning normally (last check: %v ago)\n", age)
	return 0
}
