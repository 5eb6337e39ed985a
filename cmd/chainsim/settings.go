package main

import (
	"fmt"
	"os"

	"github.com/filecoin-project/go-chainsim/config"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
)

var settingsCmd = cli.Command{
	Name:  "settings",
	Usage: "writes the default simulation settings",
	Flags: []cli.Flag{
		&cli.PathFlag{
			Name:  "out",
			Usage: "path to write the settings to, stdout if unset",
		},
	},
	Action: func(c *cli.Context) error {
		b, err := config.Default().Marshal()
		if err != nil {
			return xerrors.Errorf("encoding settings: %w", err)
		}
		path := c.Path("out")
		if path == "" {
			_, err := fmt.Fprintln(c.App.Writer, string(b))
			return err
		}
		if err := os.WriteFile(path, append(b, '\n'), 0666); err != nil {
			return xerrors.Errorf("writing settings: %w", err)
		}
		return nil
	},
}

// loadSettings reads the settings file named by the settings flag, if any, and
// applies the flags set on the command line on top.
func loadSettings(c *cli.Context) (config.Settings, error) {
	settings := config.Default()
	if path := c.Path("settings"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return config.Settings{}, xerrors.Errorf("opening settings: %w", err)
		}
		defer f.Close()
		if settings, err = config.Load(f); err != nil {
			return config.Settings{}, xerrors.Errorf("loading settings from %s: %w", path, err)
		}
	}
	if c.IsSet("total-nodes") {
		settings.TotalNodes = c.Int("total-nodes")
	}
	if c.IsSet("ttx-time") {
		settings.TxnInterval = c.Duration("ttx-time")
	}
	if c.IsSet("blk-time") {
		settings.BlockInterval = c.Duration("blk-time")
	}
	if c.IsSet("timeout") {
		settings.Timeout = c.Duration("timeout")
	}
	if c.IsSet("blk-limit") {
		settings.BlockLimit = c.Int("blk-limit")
	}
	if c.IsSet("time-limit") {
		settings.TimeLimit = c.Duration("time-limit")
	}
	if c.IsSet("malicious") {
		settings.MaliciousFraction = c.Float64("malicious")
	}
	if c.IsSet("eclipse") {
		settings.Eclipse = c.Bool("eclipse")
	}
	if c.IsSet("seed") {
		settings.Seed = c.Uint64("seed")
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, xerrors.Errorf("validating settings: %w", err)
	}
	return settings, nil
}
