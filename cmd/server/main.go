package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/Sgtscottadams/ab-poller/internal/api"
	"github.com/Sgtscottadams/ab-poller/internal/config"
	"github.com/Sgtscottadams/ab-poller/internal/export"
	"github.com/Sgtscottadams/ab-poller/internal/monitor"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
	"github.com/Sgtscottadams/ab-poller/internal/plc/plcsim"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, config.DefaultConfigFile)
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Open the knowledge store
	knowledge, err := store.Open(cfg.Storage.DatabaseFile)
	if err != nil {
		fmt.Printf("Failed to open knowledge store: %v\n", err)
		os.Exit(1)
	}
	defer knowledge.Close()

	// Artifact store for emitted reports
	artifacts, err := export.NewArtifactStore(cfg.Storage.ScansDirectory)
	if err != nil {
		fmt.Printf("Failed to initialize scans directory: %v\n", err)
		os.Exit(1)
	}

	// Pick the controller driver. Simulation mode runs against an
	// in-process controller so the full stack works without hardware.
	// The wire driver registers itself here when built in.
	var driver plc.Driver
	if cfg.PLC.SimulationMode {
		driver = newSimController()
		fmt.Println("Running in simulation mode: in-process controller")
	} else {
		fmt.Println("No wire driver in this build; set <SimulationMode>true</SimulationMode> in the config")
		os.Exit(1)
	}

	// Monitor session manager
	monitorDefaults := monitor.Config{
		PollInterval:     cfg.PollInterval(),
		FailureThreshold: cfg.Monitor.FailureThreshold,
		BackoffBase:      time.Duration(cfg.Monitor.BackoffBaseMs) * time.Millisecond,
		BackoffMax:       time.Duration(cfg.Monitor.BackoffMaxMs) * time.Millisecond,
		EventBuffer:      cfg.Monitor.EventBuffer,
	}
	sessions := monitor.NewManager(driver, knowledge)

	handlers := api.NewHandlers(&api.Dependencies{
		Store:           knowledge,
		Driver:          driver,
		Sessions:        sessions,
		Artifacts:       artifacts,
		MonitorDefaults: monitorDefaults,
		BrowseRate:      rate.Limit(cfg.PLC.BrowsePerSecond),
		Version:         Version,
		Simulation:      cfg.PLC.SimulationMode,
	})

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			return c.Request().URL.Path == "/api/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	e.Use(middleware.TimeoutWithConfig(middleware.TimeoutConfig{
		Timeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		Skipper: func(c echo.Context) bool {
			// Discovery and the event stream outlive a request timeout.
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/ws/") || path == "/api/discover"
		},
		ErrorMessage: "Request timeout",
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	mode := "Controller"
	if cfg.PLC.SimulationMode {
		mode = "Simulation"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           AB Tag Poller Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Database:  %-46s║\n", cfg.Storage.DatabaseFile)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	// Serve until interrupted, then stop monitor sessions so pending
	// events are flushed before the store closes.
	go func() {
		if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
			fmt.Printf("Server stopped: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	fmt.Println("\nShutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := sessions.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Monitor shutdown error: %v\n", err)
	}
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("Server shutdown error: %v\n", err)
	}
}

// newSimController seeds the in-process controller with a small
// demonstration tag table.
func newSimController() *plcsim.Device {
	dev := plcsim.New()
	dev.AddTag(plc.RawTag{Name: "Cycle_Count", TypeCode: 0xC4}, []byte{0, 0, 0, 0})
	dev.AddTag(plc.RawTag{Name: "Line_Running", TypeCode: 0xC1}, []byte{0x01})
	dev.AddTag(plc.RawTag{Name: "Program:MainProgram.Setpoint", TypeCode: 0xCA, Program: "MainProgram"},
		[]byte{0x00, 0x00, 0x80, 0x3F})
	return dev
}
