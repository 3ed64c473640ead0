package pipeline

import (
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/urfave/cli/v2"
)

// withDatabase loads configuration, opens the store and runs the action.
func withDatabase(action func(db *database.Database, conf config.Config, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		conf := config.Load()

		db, err := database.Connect(conf.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()

		return action(db, conf, c)
	}
}

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "data",
		Usage: "Ingest, transform and inspect the transit data",
		Subcommands: []*cli.Command{
			{
				Name:  "gtfs",
				Usage: "download, extract and load the current GTFS feed",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "refetch even when a cached archive exists",
					},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunGTFS(db, conf, c.Bool("force"))
				}),
			},
			{
				Name:  "boundaries",
				Usage: "load neighbourhood and community area boundaries",
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunBoundaries(db, conf)
				}),
			},
			{
				Name:  "open-data",
				Usage: "load tabular open data (pass-ups, on-time, passenger counts)",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "cap rows per dataset",
					},
					&cli.StringSliceFlag{
						Name:  "include",
						Usage: "only load these datasets (key or resource id)",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "skip these datasets (key or resource id)",
					},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunOpenData(db, conf, c.Int("limit"), c.StringSlice("include"), c.StringSlice("exclude"))
				}),
			},
			{
				Name:  "active-mobility",
				Usage: "load cycling network and walkway datasets",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "include",
						Usage: "only load these datasets (key or resource id)",
					},
					&cli.StringSliceFlag{
						Name:  "exclude",
						Usage: "skip these datasets (key or resource id)",
					},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunActiveMobility(db, conf, c.StringSlice("include"), c.StringSlice("exclude"))
				}),
			},
			{
				Name:  "graph",
				Usage: "build network edges, route stats and coverage aggregates",
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunGraph(db)
				}),
			},
			{
				Name:  "active-trips",
				Usage: "materialize active trips for a service date",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "date",
						Usage: "service date (YYYY-MM-DD), defaults to today",
					},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunActiveTrips(db, c.String("date"))
				}),
			},
			{
				Name:  "historical",
				Usage: "load an archived feed version from Transitland",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "period",
						Value: "pre-ptn",
						Usage: "pre-ptn or post-ptn",
					},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunHistorical(db, conf, c.String("period"))
				}),
			},
			{
				Name:  "views",
				Usage: "create performance views joining GTFS with open data",
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunViews(db)
				}),
			},
			{
				Name:  "run",
				Usage: "run the full pipeline",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-gtfs"},
					&cli.BoolFlag{Name: "skip-boundaries"},
					&cli.BoolFlag{Name: "skip-open-data"},
					&cli.BoolFlag{Name: "skip-graph"},
					&cli.BoolFlag{Name: "skip-views"},
				},
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return RunAll(db, conf, RunOptions{
						SkipGTFS:       c.Bool("skip-gtfs"),
						SkipBoundaries: c.Bool("skip-boundaries"),
						SkipOpenData:   c.Bool("skip-open-data"),
						SkipGraph:      c.Bool("skip-graph"),
						SkipViews:      c.Bool("skip-views"),
					})
				}),
			},
			{
				Name:  "status",
				Usage: "print per-table row counts",
				Action: withDatabase(func(db *database.Database, conf config.Config, c *cli.Context) error {
					return Status(db)
				}),
			},
			{
				Name:  "validate",
				Usage: "validate the extracted GTFS feed without loading",
				Action: func(c *cli.Context) error {
					return Validate(config.Load())
				},
			},
		},
	}
}
