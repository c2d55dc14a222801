package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	cerrors "github.com/estuary/ingest-json-bigquery/go/connector-errors"
	connector "github.com/estuary/ingest-json-bigquery/ingest-bigquery"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type logConfig struct {
	Level  string `long:"log.level" env:"LOG_LEVEL" default:"info" choice:"info" choice:"INFO" choice:"debug" choice:"DEBUG" choice:"warn" choice:"WARN" description:"Logging level"`
	Format string `long:"log.format" env:"LOG_FORMAT" default:"text" choice:"json" choice:"text" choice:"color" description:"Logging output format"`
}

func (c *logConfig) Configure() {
	if c.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else if c.Format == "text" {
		log.SetFormatter(&log.TextFormatter{})
	} else if c.Format == "color" {
		log.SetFormatter(&log.TextFormatter{ForceColors: true})
	}

	if lvl, err := log.ParseLevel(c.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}

	log.SetOutput(os.Stderr)
}

var opts struct {
	Log    logConfig        `group:"Logging"`
	Ingest connector.Config `group:"Ingestion"`
}

func main() {
	var parser = flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)

	addCmd(parser, "process", "Ingest one object",
		"Ingest a single uploaded object and exit", &processCmd{})
	addCmd(parser, "serve", "Serve the HTTP trigger",
		"Ingest objects named by HTTP POST requests, such as Eventarc or Pub/Sub push deliveries", &serveCmd{})
	addCmd(parser, "subscribe", "Receive Pub/Sub notifications",
		"Ingest objects named by Cloud Storage notifications of a Pub/Sub subscription", &subscribeCmd{})

	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		opts.Log.Configure()
		if err := opts.Ingest.Validate(); err != nil {
			return cerrors.NewUserError(err, fmt.Sprintf("invalid configuration: %s", err))
		}
		return cmd.Execute(args)
	}

	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				fmt.Println(err)
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		cerrors.HandleFinalError(err)
	}
}

func addCmd(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
}

// newPipeline builds the pipeline from the shared clients. A failure to
// create the clients is logged, and the returned pipeline then fails every
// event with that error.
func newPipeline(ctx context.Context) (*connector.Pipeline, *connector.Clients) {
	var cfg = &opts.Ingest

	log.WithFields(log.Fields{
		"dataset":       cfg.Dataset,
		"projectID":     cfg.ProjectID,
		"region":        cfg.Region,
		"stagingBucket": cfg.StagingBucket,
		"stagingPath":   cfg.StagingPath,
		"featureFlags":  cfg.Flags().String(),
	}).Info("starting ingestion")

	clients, err := cfg.Clients(ctx)
	if err != nil {
		log.WithField("error", err).Error("failed to create Google Cloud clients")
		return connector.NewFailedPipeline(err, cfg.Dataset, cfg.Flags()), nil
	}

	return connector.NewPipeline(
		connector.NewFetcher(clients.Storage, cfg.MaxFileBytes),
		connector.NewWarehouse(cfg, clients),
		cfg.Dataset,
		cfg.Flags(),
	), clients
}

func checkPrereqs(ctx context.Context, clients *connector.Clients) error {
	if clients == nil {
		return nil
	}
	return connector.Prereqs(ctx, &opts.Ingest, clients)
}

type processCmd struct {
	Bucket string `long:"bucket" required:"true" description:"Bucket of the uploaded object"`
	Name   string `long:"name" required:"true" description:"Name of the uploaded object"`
}

func (c *processCmd) Execute(_ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	pipeline, clients := newPipeline(ctx)
	if clients != nil {
		defer clients.Close()
	}

	var out = pipeline.Process(ctx, connector.Event{Bucket: c.Bucket, Name: c.Name})
	fmt.Println(out.Message)

	return out.Err
}

type serveCmd struct {
	Port int `long:"port" env:"PORT" default:"8080" description:"Port to listen on"`
}

func (c *serveCmd) Execute(_ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	pipeline, clients := newPipeline(ctx)
	if clients != nil {
		defer clients.Close()
	}
	if err := checkPrereqs(ctx, clients); err != nil {
		return err
	}

	var mux = http.NewServeMux()
	mux.Handle("/", pipeline.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(c.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.WithField("addr", server.Addr).Info("serving trigger requests")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

type subscribeCmd struct {
	Subscription   string `long:"subscription" env:"PUBSUB_SUBSCRIPTION" description:"Pub/Sub subscription receiving Cloud Storage notifications"`
	MaxOutstanding int    `long:"max-outstanding" env:"PUBSUB_MAX_OUTSTANDING" default:"1" description:"Maximum number of objects processed at once"`
}

func (c *subscribeCmd) Execute(_ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if c.Subscription == "" {
		return cerrors.NewUserError(nil, "missing Pub/Sub subscription (PUBSUB_SUBSCRIPTION)")
	} else if c.MaxOutstanding < 1 {
		return cerrors.NewUserError(nil, fmt.Sprintf("max outstanding must be at least 1, got %d", c.MaxOutstanding))
	}

	pipeline, clients := newPipeline(ctx)
	if clients == nil {
		return errors.New("cannot subscribe without Google Cloud clients")
	}
	defer clients.Close()

	if err := checkPrereqs(ctx, clients); err != nil {
		return err
	}

	pubsubClient, err := clients.PubSub(ctx)
	if err != nil {
		return err
	}
	defer pubsubClient.Close()

	return pipeline.Subscribe(ctx, pubsubClient.Subscription(c.Subscription), c.MaxOutstanding)
}
