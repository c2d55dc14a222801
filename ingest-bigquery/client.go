package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"

	"cloud.google.com/go/bigquery"
	"github.com/estuary/ingest-json-bigquery/go/blob"
	"github.com/estuary/ingest-json-bigquery/go/flatten"
	"github.com/estuary/ingest-json-bigquery/go/writer"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"
)

// Warehouse is the append target of the pipeline.
type Warehouse interface {
	SchemaLookup

	// ProjectID is the project of tables written by the Warehouse.
	ProjectID() string
	// Append adds the rows of batch to the table id. existing is the current
	// schema of the table, or nil if it does not exist yet.
	Append(ctx context.Context, id TableIdentifier, batch *flatten.Batch, existing bigquery.Schema) error
}

type staging struct {
	bucket    blob.Bucket
	path      string
	threshold int
	always    bool
}

type bigQueryWarehouse struct {
	client  *bigquery.Client
	region  string
	staging *staging
}

var _ Warehouse = (*bigQueryWarehouse)(nil)

// NewWarehouse returns a Warehouse appending with BigQuery load jobs. Load
// files are staged in the configured staging bucket, if any.
func NewWarehouse(cfg *Config, clients *Clients) Warehouse {
	var w = &bigQueryWarehouse{
		client: clients.BigQuery,
		region: cfg.Region,
	}

	if cfg.StagingBucket != "" {
		w.staging = &staging{
			bucket:    blob.NewGCSBucket(clients.Storage, cfg.StagingBucket),
			path:      cfg.StagingPath,
			threshold: cfg.StageThreshold,
			always:    cfg.Flags().Enabled(flagAlwaysStage),
		}
	}

	return w
}

func (w *bigQueryWarehouse) ProjectID() string {
	return w.client.Project()
}

func (w *bigQueryWarehouse) table(id TableIdentifier) *bigquery.Table {
	return w.client.DatasetInProject(id.ProjectID, id.DatasetID).Table(id.TableID)
}

// TableSchema uses the table metadata API, which is free and does not run
// a query job.
func (w *bigQueryWarehouse) TableSchema(ctx context.Context, id TableIdentifier) (bigquery.Schema, bool, error) {
	md, err := w.table(id).Metadata(ctx, bigquery.WithMetadataView(bigquery.BasicMetadataView))
	if err != nil {
		var googleErr *googleapi.Error
		if errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("getting metadata for %s: %w", id, err)
	}

	return md.Schema, true, nil
}

func (w *bigQueryWarehouse) Append(ctx context.Context, id TableIdentifier, batch *flatten.Batch, existing bigquery.Schema) error {
	var schema = loadSchema(batch, existing)

	var inline bytes.Buffer
	if _, err := writeRows(nopWriteCloser{&inline}, batch, schema, writer.WithJsonDisableCompression(), writer.WithJsonSkipNulls()); err != nil {
		return fmt.Errorf("encoding rows: %w", err)
	}

	var source bigquery.LoadSource
	if w.staging != nil && (w.staging.always || inline.Len() > w.staging.threshold) {
		uri, err := w.stage(ctx, batch, schema)
		if err != nil {
			return err
		}
		defer func() {
			// The load has completed or failed by now, and the staged file is
			// not needed either way.
			if err := w.staging.bucket.Delete(context.WithoutCancel(ctx), []string{uri}); err != nil {
				log.WithFields(log.Fields{
					"uri":   uri,
					"error": err,
				}).Warn("failed to delete staged load file")
			}
		}()

		var ref = bigquery.NewGCSReference(uri)
		ref.SourceFormat = bigquery.JSON
		ref.Compression = bigquery.Gzip
		ref.Schema = schema
		source = ref
	} else {
		var src = bigquery.NewReaderSource(&inline)
		src.SourceFormat = bigquery.JSON
		src.Schema = schema
		source = src
	}

	var loader = w.table(id).LoaderFrom(source)
	loader.Location = w.region
	loader.WriteDisposition = bigquery.WriteAppend
	loader.CreateDisposition = bigquery.CreateIfNeeded
	if existing != nil {
		loader.SchemaUpdateOptions = []string{"ALLOW_FIELD_ADDITION", "ALLOW_FIELD_RELAXATION"}
	}

	log.WithFields(log.Fields{
		"table":  id.String(),
		"rows":   len(batch.Rows),
		"fields": fieldNames(schema),
	}).Debug("starting load job")

	return runLoad(ctx, loader)
}

// stage writes batch as a gzip compressed load file to the staging bucket,
// returning its URI. A failed write cancels the writer's context, which
// aborts the upload without creating the object.
func (w *bigQueryWarehouse) stage(ctx context.Context, batch *flatten.Batch, schema bigquery.Schema) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var key = path.Join(w.staging.path, uuid.NewString()+".json.gz")
	var wc = w.staging.bucket.NewWriter(ctx, key, blob.WithContentType("application/json"))

	if _, err := writeRows(wc, batch, schema, writer.WithJsonSkipNulls()); err != nil {
		return "", fmt.Errorf("staging load file %q: %w", w.staging.bucket.URI(key), err)
	}

	return w.staging.bucket.URI(key), nil
}

// runLoad runs a load job and waits for it to complete. There are no retries:
// a failed load fails the invocation.
func runLoad(ctx context.Context, loader *bigquery.Loader) error {
	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("starting load job: %w", err)
	}

	// Weirdness ahead: if `err != nil`, then `status` might be nil. But if `err == nil`, then
	// there might still have been an error reported by `status.Err()`. We always want both the
	// err and the status so that we can check both.
	status, err := job.Wait(ctx)
	if status == nil {
		status = job.LastStatus()
	}
	if err == nil && status != nil {
		err = status.Err()
	}
	if err != nil {
		var fields = log.Fields{"job": job.ID(), "error": err}
		if status != nil {
			for idx, e := range status.Errors {
				fields[fmt.Sprintf("detail%d", idx)] = e.Error()
			}
		}
		log.WithFields(fields).Error("load job failed")
		return fmt.Errorf("load job %s: %w", job.ID(), err)
	}

	return nil
}

type nopWriteCloser struct {
	*bytes.Buffer
}

func (nopWriteCloser) Close() error { return nil }
