// handlers_projects.go - Project CRUD handlers
package api

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// ProjectHandlerImpl implements the ProjectHandler interface
type ProjectHandlerImpl struct {
	store Store
}

// NewProjectHandler creates a new project handler instance
func NewProjectHandler(store Store) ProjectHandler {
	return &ProjectHandlerImpl{store: store}
}

type createProjectRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Client   string `json:"client,omitempty"`
	Location string `json:"location,omitempty"`
}

// HandleCreateProject creates a new project
func (h *ProjectHandlerImpl) HandleCreateProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return NewValidationError("name")
	}

	project := &models.Project{
		ID:       req.ID,
		Name:     strings.TrimSpace(req.Name),
		Client:   req.Client,
		Location: req.Location,
	}
	if err := h.store.CreateProject(c.Request().Context(), project); err != nil {
		return MapStoreError("project", project.ID, err)
	}

	return c.JSON(http.StatusCreated, project)
}

// HandleListProjects returns all projects
func (h *ProjectHandlerImpl) HandleListProjects(c echo.Context) error {
	projects, err := h.store.ListProjects(c.Request().Context())
	if err != nil {
		return NewInternalError("failed to list projects", err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"projects": projects,
		"count":    len(projects),
	})
}

// HandleGetProject returns one project by ID
func (h *ProjectHandlerImpl) HandleGetProject(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	project, err := h.store.GetProject(c.Request().Context(), id)
	if err != nil {
		return MapStoreError("project", id, err)
	}
	return c.JSON(http.StatusOK, project)
}
