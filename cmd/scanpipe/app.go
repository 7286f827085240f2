package scanpipe

import (
	"fmt"
	"runtime"

	"go.miragespace.co/scanpipe/cmd/client"
	"go.miragespace.co/scanpipe/cmd/serve"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Build = "head"
)

var (
	App = cli.App{
		Name:            "scanpipe",
		Usage:           fmt.Sprintf("build for %s on %s", runtime.GOARCH, runtime.GOOS),
		Version:         Build,
		HideHelpCommand: true,
		Description:     "named pipe bridge between a native scan analyzer and a managed host",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "verbose",
				Value: false,
				Usage: "enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			serve.Generate(),
			client.Generate(),
		},
		Before: ConfigLogger,
		After:  SyncLogger,
	}
)

func ConfigLogger(ctx *cli.Context) error {
	var config zap.Config
	if ctx.Bool("verbose") {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}
	// Redirect everything to stderr
	config.OutputPaths = []string{"stderr"}
	logger, err := config.Build()
	if err != nil {
		return err
	}
	_, err = zap.RedirectStdLogAt(logger.With(zap.String("subsystem", "unknown")), zapcore.InfoLevel)
	if err != nil {
		return fmt.Errorf("redirecting stdlog output: %w", err)
	}
	if ctx.App.Metadata == nil {
		ctx.App.Metadata = make(map[string]interface{})
	}
	ctx.App.Metadata["logger"] = logger

	logger.Debug("scanpipe: logger configured", zap.String("build", Build), zap.Bool("verbose", ctx.Bool("verbose")))

	return nil
}

func SyncLogger(ctx *cli.Context) error {
	if logger, ok := ctx.App.Metadata["logger"].(*zap.Logger); ok {
		// stderr does not support fsync on every platform
		logger.Sync()
	}
	return nil
}
