package api

import (
	"github.com/transitwpg/transitwpg/pkg/config"
	"github.com/transitwpg/transitwpg/pkg/database"
	"github.com/urfave/cli/v2"
)

func RegisterCLI() *cli.Command {
	return &cli.Command{
		Name:  "web-api",
		Usage: "Provides the core analysis API",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run analysis api server",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen target for the web server",
					},
				},
				Action: func(c *cli.Context) error {
					conf := config.Load()

					db, err := database.Connect(conf.DBPath)
					if err != nil {
						return err
					}
					defer db.Close()

					return SetupServer(db, c.String("listen"))
				},
			},
		},
	}
}
