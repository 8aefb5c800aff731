// Package platform is the client boundary to the external tabular-data
// platform: container discovery, schema reads, and metadata record writes.
package platform

import (
	"context"

	"tablelens/internal/domain"
)

// Container is an external grouping of tables (a base, in vendor terms).
type Container struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TableSchema is one table as reported by the platform's schema endpoint.
type TableSchema struct {
	ID     string                   `json:"id"`
	Name   string                   `json:"name"`
	Fields []domain.FieldDescriptor `json:"fields"`
	Views  []domain.ViewDescriptor  `json:"views"`
}

// Schema is the full table listing for one container.
type Schema struct {
	Tables []TableSchema `json:"tables"`
}

// Record is one row of a platform table. Fields are schema-free on the wire.
type Record struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

// RecordPage is the result of a filtered record listing.
type RecordPage struct {
	Records []Record `json:"records"`
}

// Platform is the tabular-data platform contract used by discovery and the
// metadata-update step.
type Platform interface {
	ListContainers(ctx context.Context) ([]Container, error)
	GetSchema(ctx context.Context, containerID string) (*Schema, error)
	ListRecords(ctx context.Context, containerID, tableID, filterFormula string) (*RecordPage, error)
	CreateRecords(ctx context.Context, containerID, tableID string, records []Record) ([]Record, error)
	UpdateRecords(ctx context.Context, containerID, tableID string, records []Record) ([]Record, error)
}
