package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	goscan "github.com/Redundancy/go-scan"
)

const searchUsage = "goscan search --pattern <hex> [--offset N] <file or url>"

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:      "search",
			Aliases:   []string{"s"},
			Usage:     "find the first occurrence of a byte pattern",
			UsageText: searchUsage,
			Description: `Scans the source from --offset onwards and prints the absolute offset of the first match.
The source may be a local path or an http/https url served with range request support.
Exits with status 2 if the pattern does not occur.`,
			Action: Search,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "pattern",
					Aliases:  []string{"p"},
					Usage:    "pattern as hex bytes, e.g. DEADBEEF",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  "text",
					Usage: "treat --pattern as literal text rather than hex",
				},
				&cli.Int64Flag{
					Name:  "offset",
					Usage: "offset to start scanning from",
				},
				chunkSizeFlag,
				quietFlag,
			},
		},
	)
}

// Search for a pattern
func Search(c *cli.Context) error {
	if err := requireArgs(c, 1, searchUsage); err != nil {
		return err
	}

	pattern, err := parsePattern(c.String("pattern"), c.Bool("text"))
	if err != nil {
		return err
	}

	o := options(c)
	o.ChunkSize = settings.SearchChunkSize
	if c.IsSet("chunk-size") {
		o.ChunkSize = c.Int("chunk-size")
	}

	result, err := goscan.Search(c.Context, c.Args().First(), pattern, c.Int64("offset"), o)
	endProgress(c)

	if err != nil {
		return err
	}

	if !result.Found {
		return &exitError{code: exitNotFound, err: errors.New("pattern not found")}
	}

	fmt.Println(result.Offset)
	return nil
}
