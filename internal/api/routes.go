// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/Sgtscottadams/ab-poller/internal/export"
	"github.com/Sgtscottadams/ab-poller/internal/monitor"
	"github.com/Sgtscottadams/ab-poller/internal/plc"
)

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store           Store
	Driver          plc.Driver
	Sessions        SessionManager
	Artifacts       *export.ArtifactStore
	MonitorDefaults monitor.Config
	BrowseRate      rate.Limit
	Version         string
	Simulation      bool
}

// Handlers holds all handler instances
type Handlers struct {
	Health   HealthHandler
	Project  ProjectHandler
	Discover DiscoverHandler
	Record   RecordHandler
	Export   ExportHandler
	Tag      TagHandler
	Monitor  MonitorHandler
	Stream   *StreamHandler
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:   NewHealthHandler(deps.Version, deps.Simulation),
		Project:  NewProjectHandler(deps.Store),
		Discover: NewDiscoverHandler(deps.Store, deps.Driver, deps.BrowseRate),
		Record:   NewRecordHandler(deps.Store),
		Export:   NewExportHandler(deps.Store, deps.Artifacts),
		Tag:      NewTagHandler(deps.Store, deps.Driver),
		Monitor:  NewMonitorHandler(deps.Store, deps.Sessions, deps.MonitorDefaults),
		Stream:   NewStreamHandler(deps.Sessions),
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	// Health check
	e.GET("/api/health", handlers.Health.HandleHealth)

	// Project routes
	projectGroup := e.Group("/api/projects")
	projectGroup.POST("", handlers.Project.HandleCreateProject)
	projectGroup.GET("", handlers.Project.HandleListProjects)
	projectGroup.GET("/:id", handlers.Project.HandleGetProject)

	// Discovery
	e.POST("/api/discover", handlers.Discover.HandleDiscover)
	e.POST("/api/catalog/import", handlers.Discover.HandleImportCatalog)

	// Record routes
	recordGroup := e.Group("/api/records")
	recordGroup.GET("", handlers.Record.HandleListRecords)
	recordGroup.GET("/:id", handlers.Record.HandleGetRecord)

	// Export routes
	e.POST("/api/export", handlers.Export.HandleExport)
	e.GET("/api/export/artifacts", handlers.Export.HandleListArtifacts)

	// One-shot tag operations
	tagGroup := e.Group("/api/tags")
	tagGroup.POST("/read", handlers.Tag.HandleReadTags)
	tagGroup.POST("/write", handlers.Tag.HandleWriteTag)

	// Monitor session routes
	monitorGroup := e.Group("/api/monitor")
	monitorGroup.POST("", handlers.Monitor.HandleStartMonitor)
	monitorGroup.GET("", handlers.Monitor.HandleListMonitors)
	monitorGroup.GET("/:id", handlers.Monitor.HandleGetMonitor)
	monitorGroup.DELETE("/:id", handlers.Monitor.HandleStopMonitor)

	// Live change-event stream
	e.GET("/ws/monitor/:id", handlers.Stream.HandleMonitorStream)
}
