package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const configFilePath = "./configs/config.yaml"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "helpcenter-rag",
		Usage: "Ingest help center articles into a vector store for retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				Value:   configFilePath,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "store",
				Usage: "Override the document store (postgres, chromem, mongo, memory)",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "Run everything but keep documents in memory",
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address, e.g. :9090",
				EnvVars: []string{"METRICS_ADDR"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Fetch every article and ingest it",
				Action: runCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "collection",
						Usage: "Only ingest articles under this help center collection",
					},
					&cli.Int64Flag{
						Name:  "updated-since",
						Usage: "Only ingest articles updated at or after this unix time",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Articles processed in parallel",
					},
				},
			},
			{
				Name:   "article",
				Usage:  "Ingest a single article",
				Action: articleCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Article id",
						Required: true,
					},
				},
			},
			{
				Name:   "test",
				Usage:  "Process a few articles in memory and print the first document",
				Action: testCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of articles to process",
						Value: 3,
					},
				},
			},
			{
				Name:   "collections",
				Usage:  "List help center collections",
				Action: collectionsCommand,
			},
			{
				Name:   "ping",
				Usage:  "Check the help center API token",
				Action: pingCommand,
			},
			{
				Name:   "search",
				Usage:  "Answer a question from the stored documents",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Question to answer",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "language",
						Usage: "Restrict retrieval to one language",
					},
					&cli.BoolFlag{
						Name:  "retrieve-only",
						Usage: "Print the retrieved chunks without generating an answer",
					},
				},
			},
			{
				Name:   "init-store",
				Usage:  "Create tables and indexes in the document store",
				Action: initStoreCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "drop",
						Usage: "Drop existing documents first",
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Export the chromem collection to a single file",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "key",
						Usage:   "32 byte encryption key",
						EnvVars: []string{"CHROMEM_EXPORT_KEY"},
					},
				},
			},
			{
				Name:   "import",
				Usage:  "Load a file written by export into the chromem collection",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Exported collection file",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "key",
						Usage:   "32 byte encryption key used at export",
						EnvVars: []string{"CHROMEM_EXPORT_KEY"},
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	level, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	if addr := c.String("metrics-addr"); addr != "" {
		serveMetrics(addr)
	}
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
}
