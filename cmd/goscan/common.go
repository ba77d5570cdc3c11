package main

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	goscan "github.com/Redundancy/go-scan"
	"github.com/Redundancy/go-scan/controller"
	"github.com/Redundancy/go-scan/digest"
)

// Exit codes
const (
	exitFailure  = 1
	exitNotFound = 2
	exitMismatch = 3
)

// exitError carries an exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Cause() error {
	return e.err
}

func exitCode(err error) int {
	var coded *exitError
	if errors.As(err, &coded) {
		return coded.code
	}
	return exitFailure
}

func requireArgs(c *cli.Context, count int, usage string) error {
	if c.Args().Len() != count {
		return errors.Errorf(
			"Usage is \"%v\" (invalid number of arguments)",
			usage,
		)
	}
	return nil
}

func httpClient() *http.Client {
	return &http.Client{Timeout: settings.HTTPTimeout}
}

func options(c *cli.Context) goscan.Options {
	o := goscan.Options{
		Logger:     logger,
		ReadAhead:  settings.ReadAhead,
		HTTPClient: httpClient(),
	}

	if !c.Bool("quiet") {
		o.OnProgress = printProgress
	}

	return o
}

var quietFlag = &cli.BoolFlag{
	Name:    "quiet",
	Aliases: []string{"q"},
	Usage:   "do not print progress",
}

var chunkSizeFlag = &cli.IntFlag{
	Name:  "chunk-size",
	Usage: "bytes read per step (default from config)",
}

func printProgress(p *controller.ProgressPayload) {
	line := fmt.Sprintf("\r%6.2f%% %v/%v", p.FractionComplete*100, p.CursorOffset, p.Total)

	if p.ThroughputBytesPerSec > 0 {
		line += fmt.Sprintf(" %.1f MB/s eta %v",
			p.ThroughputBytesPerSec/1e6,
			(time.Duration(p.EstimatedRemainingMs) * time.Millisecond).Round(time.Second),
		)
	}

	fmt.Fprint(os.Stderr, line)
}

func endProgress(c *cli.Context) {
	if !c.Bool("quiet") {
		fmt.Fprintln(os.Stderr)
	}
}

// parsePattern accepts hex ("DEADBEEF", "de ad be ef", "0xdeadbeef") or, with text set, the literal string
func parsePattern(pattern string, text bool) ([]byte, error) {
	if text {
		return []byte(pattern), nil
	}

	var list controller.ByteList
	if err := list.UnmarshalJSON([]byte(strconv.Quote(strings.ToLower(pattern)))); err != nil {
		return nil, errors.Wrapf(err, "pattern %q", pattern)
	}

	return list, nil
}

func formatDigest(sum string, format string) (string, error) {
	switch format {
	case "", "hex":
		return sum, nil
	case "base58":
		raw, err := digest.ParseDigest(sum)
		if err != nil {
			return "", err
		}
		return base58.Encode(raw), nil
	}
	return "", errors.Errorf("unknown format %q (hex or base58)", format)
}
