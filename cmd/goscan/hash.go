package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	goscan "github.com/Redundancy/go-scan"
	"github.com/Redundancy/go-scan/digest"
)

const (
	hashUsage     = "goscan hash [--algorithm SHA-256] [--portable] [--expect <digest>] <file or url>"
	hashTextUsage = "goscan hash-text [--algorithm SHA-256] <text>"
)

var algorithmFlag = &cli.StringFlag{
	Name:    "algorithm",
	Aliases: []string{"a"},
	Value:   digest.SHA256.String(),
	Usage:   "digest algorithm (see goscan algorithms)",
}

var portableFlag = &cli.BoolFlag{
	Name:  "portable",
	Usage: "prefer the portable backend over the accelerated one",
}

var formatFlag = &cli.StringFlag{
	Name:  "format",
	Value: "hex",
	Usage: "output format, hex or base58",
}

func init() {
	app.Commands = append(
		app.Commands,
		&cli.Command{
			Name:      "hash",
			Aliases:   []string{"h"},
			Usage:     "compute the digest of a file or url",
			UsageText: hashUsage,
			Description: `Reads the whole source a chunk at a time and prints its digest, followed by the backend used.
With --expect, the digest is compared with the one given (hex in any case, or base58) and the exit
status is 3 if they differ.`,
			Action: Hash,
			Flags: []cli.Flag{
				algorithmFlag,
				portableFlag,
				formatFlag,
				&cli.StringFlag{
					Name:  "expect",
					Usage: "expected digest",
				},
				chunkSizeFlag,
				quietFlag,
			},
		},
		&cli.Command{
			Name:      "hash-text",
			Usage:     "compute the digest of a string",
			UsageText: hashTextUsage,
			Action:    HashText,
			Flags: []cli.Flag{
				algorithmFlag,
				portableFlag,
				formatFlag,
			},
		},
		&cli.Command{
			Name:   "algorithms",
			Usage:  "list the supported digest algorithms and their backends",
			Action: Algorithms,
		},
	)
}

func preferAccelerated(c *cli.Context) bool {
	if c.IsSet("portable") {
		return !c.Bool("portable")
	}
	return settings.PreferAccelerated
}

// Hash a file or url
func Hash(c *cli.Context) error {
	if err := requireArgs(c, 1, hashUsage); err != nil {
		return err
	}

	algorithm, err := digest.ParseAlgorithm(c.String("algorithm"))
	if err != nil {
		return err
	}

	o := options(c)
	o.ChunkSize = settings.DigestChunkSize
	if c.IsSet("chunk-size") {
		o.ChunkSize = c.Int("chunk-size")
	}

	completed, err := goscan.Hash(c.Context, c.Args().First(), algorithm, preferAccelerated(c), o)
	endProgress(c)

	if err != nil {
		return err
	}

	if expected := c.String("expect"); expected != "" {
		sum, err := digest.ParseDigest(completed.DigestHex)
		if err != nil {
			return err
		}
		if err := digest.Verify(expected, sum); err != nil {
			return &exitError{code: exitMismatch, err: err}
		}
	}

	output, err := formatDigest(completed.DigestHex, c.String("format"))
	if err != nil {
		return err
	}

	fmt.Printf("%v  %v (%v, %v)\n", output, c.Args().First(), completed.Backend, completed.Implementation)
	return nil
}

// HashText hashes its argument inline
func HashText(c *cli.Context) error {
	if err := requireArgs(c, 1, hashTextUsage); err != nil {
		return err
	}

	algorithm, err := digest.ParseAlgorithm(c.String("algorithm"))
	if err != nil {
		return err
	}

	registry := digest.NewRegistry(logger)
	defer registry.Close()

	result, err := registry.HashInline(algorithm, []byte(c.Args().First()), preferAccelerated(c))
	if err != nil {
		return err
	}

	output, err := formatDigest(result.Hex(), c.String("format"))
	if err != nil {
		return err
	}

	fmt.Printf("%v (%v, %v)\n", output, result.Class, result.Backend)
	return nil
}

// Algorithms lists what can be hashed
func Algorithms(c *cli.Context) error {
	registry := digest.NewRegistry(logger)
	defer registry.Close()

	for _, a := range registry.Algorithms() {
		classes := registry.Classes(a, settings.PreferAccelerated)

		names := make([]string, len(classes))
		for i, class := range classes {
			names[i] = class.String()
		}

		fmt.Printf("%-12v %v\n", a, strings.Join(names, ", "))
	}

	return nil
}
