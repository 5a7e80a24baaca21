// interfaces.go - Handler interface definitions for clean separation of concerns
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/models"
	"github.com/Sgtscottadams/ab-poller/internal/monitor"
	"github.com/Sgtscottadams/ab-poller/internal/store"
)

// ProjectHandler handles project CRUD operations
type ProjectHandler interface {
	HandleCreateProject(c echo.Context) error
	HandleListProjects(c echo.Context) error
	HandleGetProject(c echo.Context) error
}

// DiscoverHandler handles catalog discovery operations
type DiscoverHandler interface {
	HandleDiscover(c echo.Context) error
	HandleImportCatalog(c echo.Context) error
}

// RecordHandler handles knowledge-store record queries
type RecordHandler interface {
	HandleListRecords(c echo.Context) error
	HandleGetRecord(c echo.Context) error
}

// ExportHandler handles report export operations
type ExportHandler interface {
	HandleExport(c echo.Context) error
	HandleListArtifacts(c echo.Context) error
}

// TagHandler handles one-shot tag read/write operations
type TagHandler interface {
	HandleReadTags(c echo.Context) error
	HandleWriteTag(c echo.Context) error
}

// MonitorHandler handles monitor session control
type MonitorHandler interface {
	HandleStartMonitor(c echo.Context) error
	HandleGetMonitor(c echo.Context) error
	HandleListMonitors(c echo.Context) error
	HandleStopMonitor(c echo.Context) error
}

// HealthHandler handles health check operations
type HealthHandler interface {
	HandleHealth(c echo.Context) error
}

// Store defines the knowledge-store surface handlers depend on
// This allows mocking in tests
type Store interface {
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id string) (*models.Project, error)
	ListProjects(ctx context.Context) ([]models.Project, error)
	UpsertRecord(ctx context.Context, rec *models.Record) error
	GetRecord(ctx context.Context, id string) (*models.Record, error)
	FindRecords(ctx context.Context, f store.RecordFilter) ([]models.Record, error)
}

// SessionManager defines the monitor-manager surface handlers depend on
// This allows mocking in tests
type SessionManager interface {
	Start(projectID, address string, slot int, tags []models.TagDescriptor, cfg monitor.Config) (*models.MonitorSession, error)
	Get(id string) (*models.MonitorSession, bool)
	List() []*models.MonitorSession
	Subscribe(id string) (<-chan models.ChangeEvent, func(), bool)
	Stop(id string) bool
}
