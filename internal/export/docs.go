package export

import (
	"context"

	"github.com/kazz187/appbuilder/internal/docgen"
	"github.com/kazz187/appbuilder/internal/project"
	"github.com/kazz187/appbuilder/pkg/storage"
)

// DocsExporter regenerates the project documentation and publishes it to
// Plane when a client is configured.
type DocsExporter struct {
	storage storage.Storage
	plane   *PlaneClient
	pageID  string
}

// NewDocsExporter accepts a nil plane client; exports are then reported as
// skipped after the documentation file is written.
func NewDocsExporter(s storage.Storage, plane *PlaneClient, pageID string) *DocsExporter {
	return &DocsExporter{storage: s, plane: plane, pageID: pageID}
}

func (e *DocsExporter) ExportDocs(ctx context.Context, projectID string, st *project.State) Result {
	res := Result{Target: "plane"}
	if _, err := docgen.Write(ctx, e.storage, projectID, st); err != nil {
		res.Error = err.Error()
		return res
	}
	if e.plane == nil {
		res.Skipped = true
		return res
	}
	url, err := e.plane.ExportPage(ctx, docgen.Title(projectID), docgen.Generate(projectID, st), e.pageID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.URL = url
	return res
}

// PublishDocs exports documentation generated earlier to Plane, creating a
// page or updating pageID.
func (e *DocsExporter) PublishDocs(ctx context.Context, projectID, pageID string) Result {
	res := Result{Target: "plane"}
	if e.plane == nil {
		res.Skipped = true
		return res
	}
	docs, err := docgen.Read(ctx, e.storage, projectID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if pageID == "" {
		pageID = e.pageID
	}
	url, err := e.plane.ExportPage(ctx, docgen.Title(projectID), docs, pageID)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.URL = url
	return res
}
