package connector

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/estuary/ingest-json-bigquery/go/blob"
	"github.com/estuary/ingest-json-bigquery/go/common"
	"github.com/estuary/ingest-json-bigquery/go/flatten"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Provenance columns added to every appended row.
const (
	CreateDateColumn     = "create_date"
	SourceFileNameColumn = "source_file_name"
)

// Fetcher reads the content of an uploaded object.
type Fetcher interface {
	Fetch(ctx context.Context, bucket, name string) ([]byte, error)
}

type gcsFetcher struct {
	client *storage.Client
	limit  int64
}

// NewFetcher returns a Fetcher reading from Cloud Storage. Objects larger
// than limit bytes are rejected, unless limit is zero.
func NewFetcher(client *storage.Client, limit int64) Fetcher {
	return &gcsFetcher{client: client, limit: limit}
}

func (f *gcsFetcher) Fetch(ctx context.Context, bucket, name string) ([]byte, error) {
	return blob.ReadObject(ctx, blob.NewGCSBucket(f.client, bucket), name, f.limit)
}

// Status of a processed event.
type Status string

const (
	StatusWritten Status = "written"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

// Outcome reports what became of an event.
type Outcome struct {
	Status  Status
	Message string
	// Table is the destination, if it was resolved.
	Table TableIdentifier
	// Rows is the number of rows appended.
	Rows int
	// Diagnostics describes data which was skipped or left unconverted.
	Diagnostics []error
	// Err is the failure when Status is StatusFailed.
	Err error
}

// Pipeline ingests uploaded JSON objects into BigQuery tables.
type Pipeline struct {
	fetcher   Fetcher
	warehouse Warehouse
	dataset   string
	flags     common.FeatureFlags
	separator string
	now       func() time.Time
}

func NewPipeline(fetcher Fetcher, warehouse Warehouse, dataset string, flags common.FeatureFlags) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		warehouse: warehouse,
		dataset:   dataset,
		flags:     flags,
		separator: flatten.DefaultSeparator,
		now:       time.Now,
	}
}

// NewFailedPipeline returns a Pipeline for a process whose clients could not
// be created. Every event it processes fails with err.
func NewFailedPipeline(err error, dataset string, flags common.FeatureFlags) *Pipeline {
	var u = unavailable{err: err}
	return NewPipeline(u, u, dataset, flags)
}

// Process ingests the object named by ev. It never fails: errors are logged
// and reported in the returned Outcome.
func (p *Pipeline) Process(ctx context.Context, ev Event) Outcome {
	var started = p.now()
	var ll = log.WithFields(log.Fields{
		"invocation": uuid.NewString(),
		"bucket":     ev.Bucket,
		"object":     ev.Name,
	})
	ll.Info("processing uploaded object")

	var out Outcome
	if err := p.process(ctx, ev, &out); err != nil {
		out.Status = StatusFailed
		out.Err = err
		out.Message = fmt.Sprintf("Failed to process %s: %s", ev.Name, err)
	}

	for _, d := range out.Diagnostics {
		ll.WithField("diagnostic", d.Error()).Warn("ingested with diagnostics")
	}

	ll = ll.WithFields(log.Fields{
		"status":  out.Status,
		"rows":    out.Rows,
		"elapsed": p.now().Sub(started).String(),
	})
	if out.Table != (TableIdentifier{}) {
		ll = ll.WithField("table", out.Table.String())
	}
	if out.Status == StatusFailed {
		ll.WithField("error", out.Err).Error("processing uploaded object failed")
	} else {
		ll.Info(out.Message)
	}

	return out
}

func (p *Pipeline) process(ctx context.Context, ev Event, out *Outcome) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	var baseName = path.Base(ev.Name)

	data, err := p.fetcher.Fetch(ctx, ev.Bucket, ev.Name)
	if err != nil {
		return fmt.Errorf("fetching object: %w", err)
	}

	flat, err := flatten.Rows(data, p.separator)
	if err != nil {
		return fmt.Errorf("flattening %s: %w", baseName, err)
	}
	out.Diagnostics = append(out.Diagnostics, flat.Diagnostics...)

	if flat.Empty() {
		out.Status = StatusEmpty
		out.Message = fmt.Sprintf("Empty source file: %s.", ev.Name)
		return nil
	}

	var batch = flatten.Reconcile(flatten.SanitizeRecords(flat.Records))
	if batch.HasColumn("") {
		out.Diagnostics = append(out.Diagnostics, errors.New("dropped values of keys with no identifier characters"))
		batch.Drop("")
	}

	id, err := DeriveTable(p.warehouse.ProjectID(), p.dataset, ev.Name, p.flags.Enabled(flagStrictTableNames))
	if err != nil {
		return err
	}
	out.Table = id

	enforced, err := Enforcer{Lookup: p.warehouse}.Enforce(ctx, batch, id)
	if err != nil {
		return err
	}
	out.Diagnostics = append(out.Diagnostics, enforced.Diagnostics...)

	batch.SetAll(CreateDateColumn, p.now().UTC())
	batch.SetAll(SourceFileNameColumn, baseName)

	if err := p.warehouse.Append(ctx, id, batch, enforced.Schema); err != nil {
		return fmt.Errorf("appending to %s: %w", id, err)
	}

	out.Status = StatusWritten
	out.Rows = len(batch.Rows)
	out.Message = fmt.Sprintf("Appended %d rows from %s to %s.", out.Rows, ev.Name, id)
	return nil
}

// unavailable stands in for clients which could not be created.
type unavailable struct {
	err error
}

func (u unavailable) Fetch(context.Context, string, string) ([]byte, error) {
	return nil, fmt.Errorf("storage client is unavailable: %w", u.err)
}

func (u unavailable) ProjectID() string { return "" }

func (u unavailable) TableSchema(context.Context, TableIdentifier) (bigquery.Schema, bool, error) {
	return nil, false, fmt.Errorf("bigquery client is unavailable: %w", u.err)
}

func (u unavailable) Append(context.Context, TableIdentifier, *flatten.Batch, bigquery.Schema) error {
	return fmt.Errorf("bigquery client is unavailable: %w", u.err)
}
