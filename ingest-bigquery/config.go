package connector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/estuary/ingest-json-bigquery/go/common"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Feature flags and their defaults.
const (
	// Require uploaded object names to end in a numeric `_<date>_<time>`
	// suffix, and fail invocations whose names do not.
	flagStrictTableNames = "strict_table_names"
	// Stage load files in the staging bucket even for small batches.
	flagAlwaysStage = "always_stage"
)

var featureFlagDefaults = map[string]bool{
	flagStrictTableNames: true,
	flagAlwaysStage:      false,
}

// Config of the ingestion process, read from flags or the environment.
type Config struct {
	Dataset         string `long:"dataset" env:"DATASET_NAME" description:"BigQuery dataset that receives the flattened rows"`
	ProjectID       string `long:"project-id" env:"GOOGLE_CLOUD_PROJECT" description:"Google Cloud project owning the dataset. Defaults to the project of the credentials"`
	Region          string `long:"region" env:"BIGQUERY_REGION" description:"Location of the dataset, used for load jobs"`
	CredentialsJSON string `long:"credentials-json" env:"GOOGLE_CREDENTIALS_JSON" description:"Service account JSON credentials, optionally base64 encoded. Application default credentials are used if unset"`
	StagingBucket   string `long:"staging-bucket" env:"STAGING_BUCKET" description:"Google Cloud Storage bucket for staging load files. Rows are uploaded with the load job if unset"`
	StagingPath     string `long:"staging-path" env:"STAGING_PATH" description:"Prefix of staged load files within the staging bucket"`
	StageThreshold  int    `long:"stage-threshold" env:"STAGE_THRESHOLD" default:"1048576" description:"Batches with more encoded bytes than this are staged when a staging bucket is set"`
	MaxFileBytes    int64  `long:"max-file-bytes" env:"MAX_FILE_BYTES" default:"0" description:"Reject source files larger than this many bytes. Zero is unlimited"`
	FeatureFlags    string `long:"feature-flags" env:"FEATURE_FLAGS" description:"Comma separated feature flags. Prefix a flag with 'no_' to disable it"`
}

func (c *Config) Validate() error {
	if c.Dataset == "" {
		return errors.New("missing dataset name (DATASET_NAME)")
	}
	if strings.HasPrefix(c.StagingPath, "/") || strings.HasSuffix(c.StagingPath, "/") {
		return fmt.Errorf("staging path cannot start or end with a slash (/), you can use a multi-level path using slash, ie. 'multi/level/path'")
	}
	if c.StagingPath != "" && c.StagingBucket == "" {
		return errors.New("a staging path requires a staging bucket (STAGING_BUCKET)")
	}
	if c.StageThreshold < 0 {
		return fmt.Errorf("stage threshold must not be negative, got %d", c.StageThreshold)
	}
	if c.MaxFileBytes < 0 {
		return fmt.Errorf("max file bytes must not be negative, got %d", c.MaxFileBytes)
	}
	return nil
}

// Flags resolves the configured feature flags against their defaults.
func (c *Config) Flags() common.FeatureFlags {
	return common.ParseFeatureFlags(c.FeatureFlags, featureFlagDefaults)
}

// decodeCredentials allows support for credentials that were base64 encoded, as well as plain JSON.
func decodeCredentials(credentialString string) []byte {
	decoded, err := base64.StdEncoding.DecodeString(credentialString)
	if err == nil {
		// If the provided credentials string was a valid base64 encoding, assume that it was base64
		// encoded JSON and return the result of successfully decoding that.
		return decoded
	}

	// Otherwise, assume that the credentials string was not base64 encoded.
	return []byte(credentialString)
}

var clientScopes = []string{
	bigquery.Scope,
	storage.ScopeReadWrite,
	pubsub.ScopePubSub,
}

// Clients are the Google Cloud API clients shared by every invocation.
type Clients struct {
	BigQuery  *bigquery.Client
	Storage   *storage.Client
	ProjectID string

	opts []option.ClientOption
}

// Clients creates the BigQuery and Cloud Storage clients.
func (c *Config) Clients(ctx context.Context) (*Clients, error) {
	var creds *google.Credentials
	var err error

	if c.CredentialsJSON != "" {
		creds, err = google.CredentialsFromJSON(ctx, decodeCredentials(c.CredentialsJSON), clientScopes...)
		if err != nil {
			return nil, fmt.Errorf("parsing credentials JSON: %w", err)
		}
	} else if creds, err = google.FindDefaultCredentials(ctx, clientScopes...); err != nil {
		return nil, fmt.Errorf("finding application default credentials: %w", err)
	}

	var projectID = c.ProjectID
	if projectID == "" {
		projectID = creds.ProjectID
	}
	if projectID == "" {
		return nil, errors.New("could not determine the project ID: set GOOGLE_CLOUD_PROJECT")
	}

	var opts = []option.ClientOption{option.WithCredentials(creds)}

	bigqueryClient, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating bigquery client: %w", err)
	}
	log.WithField("projectID", projectID).Info("bigquery client successfully created")

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		bigqueryClient.Close()
		return nil, fmt.Errorf("creating cloud storage client: %w", err)
	}
	log.Info("cloud storage client successfully created")

	return &Clients{
		BigQuery:  bigqueryClient,
		Storage:   storageClient,
		ProjectID: projectID,
		opts:      opts,
	}, nil
}

// PubSub creates a Pub/Sub client with the same credentials.
func (c *Clients) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, c.ProjectID, c.opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return client, nil
}

func (c *Clients) Close() error {
	return errors.Join(c.BigQuery.Close(), c.Storage.Close())
}
