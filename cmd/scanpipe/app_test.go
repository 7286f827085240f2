package scanpipe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func testApp(out *bytes.Buffer) *cli.App {
	app := App
	app.Writer = out
	app.ErrWriter = out
	app.ExitErrHandler = func(*cli.Context, error) {}
	app.Metadata = nil
	return &app
}

func TestConfigLogger(t *testing.T) {
	as := require.New(t)

	var out bytes.Buffer
	app := testApp(&out)

	var logger *zap.Logger
	app.Commands = append(app.Commands, &cli.Command{
		Name: "probe",
		Action: func(ctx *cli.Context) error {
			logger, _ = ctx.App.Metadata["logger"].(*zap.Logger)
			return nil
		},
	})

	as.NoError(app.RunContext(context.Background(), []string{"scanpipe", "--verbose", "probe"}))
	as.NotNil(logger)
}

func TestClientRequiresName(t *testing.T) {
	as := require.New(t)

	var out bytes.Buffer
	app := testApp(&out)

	err := app.RunContext(context.Background(), []string{"scanpipe", "client", "--attempts", "1", "send", "hello"})
	as.Error(err)
}
