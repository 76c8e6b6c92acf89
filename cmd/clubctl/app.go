package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/jobs"
	postgres "github.com/Overland-East-Bay/rider-standings-api/internal/adapters/postgres"
	"github.com/Overland-East-Bay/rider-standings-api/internal/adapters/xlsxreport"
	"github.com/Overland-East-Bay/rider-standings-api/internal/bootstrap"
	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/auth/jwtverifier"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/config"
	"github.com/Overland-East-Bay/rider-standings-api/internal/platform/logging"
)

var errPostgresOnly = errors.New("this command needs STORAGE_BACKEND=postgres")

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:  "clubctl",
		Usage: "rider standings admin tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "optional YAML config file",
				EnvVars: []string{"CONFIG_FILE"},
			},
		},
		Writer: stdout,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "apply schema migrations (and River's when jobs are enabled)",
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					if env.app.Pool == nil {
						return errPostgresOnly
					}
					applied, err := postgres.Migrate(c.Context, env.app.Pool, env.logger)
					if err != nil {
						return err
					}
					if env.cfg.Jobs.Enabled {
						if err := jobs.Migrate(c.Context, env.app.Pool); err != nil {
							return err
						}
					}
					return printJSON(c.App.Writer, map[string]any{"applied": applied})
				}),
			},
			{
				Name:  "seed-localities",
				Usage: "upsert the locality reference table",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "YAML seed file (default: bundled table)"},
				},
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					n, err := bootstrap.SeedLocalities(c.Context, env.app.Localities, c.String("file"))
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, map[string]any{"upserted": n})
				}),
			},
			{
				Name:  "place",
				Usage: "run a placement batch for every locality or one",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "locality", Usage: "limit the batch to one locality"},
					&cli.BoolFlag{Name: "enqueue", Usage: "queue the batch as a background job instead of running it here"},
				},
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					locality := c.String("locality")
					if c.Bool("enqueue") {
						if env.app.Pool == nil {
							return errPostgresOnly
						}
						runner, err := jobs.NewService(env.app.Pool, env.app.Standings, env.app.RiderMap, jobs.Config{}, env.logger)
						if err != nil {
							return err
						}
						queued, err := runner.EnqueuePlacement(c.Context, locality)
						if err != nil {
							return err
						}
						return printJSON(c.App.Writer, map[string]any{"queued": queued, "locality": locality})
					}

					var err error
					var sum any
					if locality == "" {
						sum, err = env.app.RiderMap.PlaceAll(c.Context)
					} else {
						sum, err = env.app.RiderMap.PlaceLocality(c.Context, locality)
					}
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, sum)
				}),
			},
			{
				Name:  "recompute-scores",
				Usage: "recompute every member's current score from ride activity",
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					sum, err := env.app.Standings.RecomputeAll(c.Context)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, sum)
				}),
			},
			{
				Name:  "verify",
				Usage: "report approved members whose stored position is missing or off the locality grid",
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					rep, err := env.app.RiderMap.Verify(c.Context)
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, rep)
				}),
			},
			{
				Name:  "export-standings",
				Usage: "write the standings table to an .xlsx file",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output path", Required: true},
				},
				Action: withApp(func(c *cli.Context, env *cmdEnv) error {
					rows, err := env.app.Standings.Standings(c.Context)
					if err != nil {
						return err
					}
					f, err := os.Create(c.String("out"))
					if err != nil {
						return err
					}
					if err := xlsxreport.WriteStandings(f, rows, time.Now()); err != nil {
						_ = f.Close()
						return err
					}
					if err := f.Close(); err != nil {
						return err
					}
					return printJSON(c.App.Writer, map[string]any{"rows": len(rows), "file": c.String("out")})
				}),
			},
			{
				Name:  "token",
				Usage: "issue an HS256 bearer token signed with JWT_SECRET (local testing)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "subject", Usage: "token subject", Required: true},
					&cli.BoolFlag{Name: "admin", Usage: "grant the admin claim"},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: time.Hour},
				},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}
					tok, err := jwtverifier.New(cfg.Auth).Issue(jwtverifier.Principal{
						Subject: domain.SubjectID(c.String("subject")),
						Admin:   c.Bool("admin"),
					}, c.Duration("ttl"))
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(c.App.Writer, tok)
					return err
				},
			},
		},
	}
}

type cmdEnv struct {
	cfg    config.Config
	logger *slog.Logger
	app    *bootstrap.App
}

// withApp loads config, opens storage and hands the wired App to fn.
func withApp(fn func(*cli.Context, *cmdEnv) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.Load(c.String("config"))
		if err != nil {
			return err
		}
		logger, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
		if err != nil {
			return err
		}
		defer func() { _ = closeLog() }()

		ctx := c.Context
		if ctx == nil {
			ctx = context.Background()
		}
		app, cleanup, err := bootstrap.Open(ctx, cfg, logger, nil)
		if err != nil {
			return err
		}
		defer cleanup()
		if app.Pool == nil {
			logger.Warn("memory backend: results are discarded when the command exits")
		}
		return fn(c, &cmdEnv{cfg: cfg, logger: logger, app: app})
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
