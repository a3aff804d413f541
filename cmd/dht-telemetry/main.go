package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "dht-telemetry",
		Usage: "ingest and serve temperature/humidity readings from the DHT sensor feed",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run scheduled ingestion and the HTTP API",
				Action: serveCommand,
			},
			{
				Name:   "ingest",
				Usage:  "run a single ingestion cycle and print its summary",
				Action: ingestCommand,
			},
			{
				Name:   "export",
				Usage:  "write the stored series as CSV",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "file to write, stdout when empty",
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
