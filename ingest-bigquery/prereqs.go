package connector

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/estuary/ingest-json-bigquery/go/blob"
	cerrors "github.com/estuary/ingest-json-bigquery/go/connector-errors"
	"google.golang.org/api/googleapi"
)

// Prereqs verifies that the destination dataset exists, and that load files
// can be staged if a staging bucket is configured. It returns a
// *cerrors.PrereqErr listing every failed check.
func Prereqs(ctx context.Context, cfg *Config, clients *Clients) error {
	var errs = &cerrors.PrereqErr{}

	if _, err := clients.BigQuery.Dataset(cfg.Dataset).Metadata(ctx); err != nil {
		var googleErr *googleapi.Error
		if errors.As(err, &googleErr) && googleErr.Code == http.StatusNotFound {
			errs.Err(fmt.Errorf("dataset %q does not exist in project %q", cfg.Dataset, clients.ProjectID))
		} else if errors.As(err, &googleErr) && googleErr.Code == http.StatusForbidden {
			errs.Err(fmt.Errorf("not authorized to access dataset %q in project %q: %w", cfg.Dataset, clients.ProjectID, err))
		} else {
			errs.Err(fmt.Errorf("checking dataset %q: %w", cfg.Dataset, err))
		}
	}

	if cfg.StagingBucket != "" {
		var bucket = blob.NewGCSBucket(clients.Storage, cfg.StagingBucket)
		if err := bucket.CheckPermissions(ctx, cfg.StagingPath); err != nil {
			errs.Err(err)
		}
	}

	if errs.Len() != 0 {
		return errs
	}
	return nil
}
