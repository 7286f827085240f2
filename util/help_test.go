package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestWrapText(t *testing.T) {
	as := require.New(t)

	as.Equal([]string{""}, wrapText("", 10))
	as.Equal([]string{"pipe name", "to listen", "on"}, wrapText("pipe name to listen on", 9))
	as.Equal([]string{"unbreakableword"}, wrapText("unbreakableword", 4))
}

func TestWriteHelpGroupsFlags(t *testing.T) {
	as := require.New(t)

	noColor := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = noColor }()

	cmd := &cli.Command{
		Name:        "serve",
		HelpName:    "scanpipe serve",
		Usage:       "serve a pipe",
		Description: "accept analyzer connections",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "pipe name", Category: "Pipe"},
			&cli.UintFlag{Name: "retry-attempts", Usage: "accept retries", Category: "Retry"},
			&cli.BoolFlag{Name: "echo", Usage: "echo messages"},
			&cli.BoolFlag{Name: "secret", Hidden: true},
		},
	}

	var out bytes.Buffer
	as.True(WriteHelp(&out, cmd, 80))
	help := out.String()

	as.Contains(help, "scanpipe serve - serve a pipe")
	as.Contains(help, "accept analyzer connections")
	as.NotContains(help, "secret")

	global := strings.Index(help, "Global Options")
	pipe := strings.Index(help, "Pipe")
	retry := strings.Index(help, "Retry")
	as.True(global >= 0 && pipe >= 0 && retry >= 0)
	as.Less(global, pipe)
	as.Less(pipe, retry)
	as.Less(strings.Index(help, "--name"), retry)

	as.False(WriteHelp(&out, "unknown", 80))
}
