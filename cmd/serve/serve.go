package serve

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.miragespace.co/scanpipe/ipc"
	"go.miragespace.co/scanpipe/spec/pipe"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:      "serve",
		ArgsUsage: " ",
		Usage:     "accept analyzer connections on a named pipe",
		Description: `Create a named pipe and accept up to max-instances concurrent peers.
In read mode every message received from a peer is logged (and echoed back with --echo).
In write mode each line read from stdin is sent to every connected peer.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config yaml file; flags override values from the file",
			},
			&cli.StringFlag{
				Name:     "name",
				Category: "Pipe Options",
				Aliases:  []string{"n"},
				Usage:    "pipe name; bare names are placed in the platform pipe namespace",
			},
			&cli.StringFlag{
				Name:     "mode",
				Category: "Pipe Options",
				Value:    "read",
				Usage:    "connection mode: read (0) or write (1)",
			},
			&cli.StringFlag{
				Name:     "buffer-size",
				Category: "Pipe Options",
				Usage:    "read window and pipe buffer size, e.g. 500B or 4KiB",
			},
			&cli.IntFlag{
				Name:     "max-instances",
				Category: "Pipe Options",
				Value:    pipe.MaxInstances,
				Usage:    "maximum number of concurrently connected peers",
			},
			&cli.StringFlag{
				Name:     "framing",
				Category: "Message Options",
				Value:    "sentinel",
				Usage:    "message framing: sentinel (compatible with the native analyzer) or length",
			},
			&cli.StringFlag{
				Name:     "charset",
				Category: "Message Options",
				Value:    "latin1",
				Usage:    "single byte text encoding: latin1, windows-1252 or ascii (bytes above 0x7f become '?')",
			},
			&cli.BoolFlag{
				Name:  "echo",
				Usage: "reply to every received message with the message itself",
			},
			&cli.UintFlag{
				Name:     "retry-attempts",
				Category: "Retry Options",
				Usage:    "retry failed accepts this many times instead of stopping the connection loop",
			},
			&cli.DurationFlag{
				Name:     "retry-delay",
				Category: "Retry Options",
				Usage:    "initial delay between accept retries",
			},
		},
		Action: cmdServe,
	}
}

func loadConfig(ctx *cli.Context) (*Config, error) {
	cfg := defaultConfig()
	if path := ctx.String("config"); path != "" {
		var err error
		cfg, err = NewConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if ctx.IsSet("name") {
		cfg.Name = ctx.String("name")
	}
	if ctx.IsSet("mode") {
		cfg.Mode = ctx.String("mode")
	}
	if ctx.IsSet("buffer-size") {
		cfg.BufferSize = ctx.String("buffer-size")
	}
	if ctx.IsSet("max-instances") || cfg.MaxInstances == 0 {
		cfg.MaxInstances = ctx.Int("max-instances")
	}
	if ctx.IsSet("framing") {
		cfg.Framing = ctx.String("framing")
	}
	if ctx.IsSet("charset") {
		cfg.Charset = ctx.String("charset")
	}
	if ctx.IsSet("echo") {
		cfg.Echo = ctx.Bool("echo")
	}
	if ctx.IsSet("retry-attempts") {
		cfg.Retry.Attempts = ctx.Uint("retry-attempts")
	}
	if ctx.IsSet("retry-delay") {
		cfg.Retry.Delay = ctx.Duration("retry-delay")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cmdServe(ctx *cli.Context) error {
	logger := ctx.App.Metadata["logger"].(*zap.Logger)

	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}

	h := &handler{
		logger: logger,
		echo:   cfg.Echo,
	}

	transportCfg := ipc.TransportConfig{
		Logger:              logger,
		Name:                cfg.Name,
		Mode:                cfg.mode,
		OnEvent:             h.event,
		BufferSize:          cfg.bufferSize,
		MaxInstances:        cfg.MaxInstances,
		SecurityDescriptor:  cfg.SecurityDescriptor,
		Framing:             cfg.framing,
		Charset:             cfg.charset,
		AcceptRetryAttempts: cfg.Retry.Attempts,
		AcceptRetryDelay:    cfg.Retry.Delay,
	}
	if cfg.mode == pipe.ModeRead {
		transportCfg.Handler = h.message
	}

	transport, err := ipc.New(transportCfg)
	if err != nil {
		return err
	}

	if err := transport.Start(ctx.Context); err != nil {
		return err
	}
	defer func() {
		transport.Stop()
		stats := transport.Stats()
		logger.Info("Pipe statistics",
			zap.Uint64("accepted", stats.Accepted),
			zap.Uint64("messages", stats.Messages),
			zap.Uint64("bytes", stats.Bytes),
		)
	}()

	if cfg.mode == pipe.ModeWrite {
		go broadcast(ctx.Context, logger, transport, os.Stdin)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		logger.Info("Received signal to stop")
	case <-ctx.Context.Done():
	case <-transport.Done():
		if err := transport.Err(); err != nil {
			return err
		}
	}
	return nil
}

type handler struct {
	logger *zap.Logger
	echo   bool
}

func (h *handler) message(c *ipc.Connection, text string) {
	h.logger.Info("Received message",
		zap.Uint64("conn", c.ID()),
		zap.Int("bytes", len(text)),
		zap.String("text", text),
	)
	if !h.echo {
		return
	}
	if err := c.Send(text); err != nil {
		h.logger.Warn("Failed to echo message", zap.Uint64("conn", c.ID()), zap.Error(err))
	}
}

func (h *handler) event(ev ipc.Event) {
	fields := []zap.Field{
		zap.Uint64("conn", ev.Connection.ID()),
		zap.Stringer("event", ev.Type),
	}
	switch ev.Type {
	case ipc.EventErrored:
		h.logger.Warn("Pipe peer lost", append(fields, zap.Error(ev.Err))...)
	default:
		h.logger.Info("Pipe peer lifecycle", fields...)
	}
}

// broadcast sends every line of r to all connected peers.
func broadcast(ctx context.Context, logger *zap.Logger, transport *ipc.Transport, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		sent := 0
		for _, c := range transport.Connections() {
			if err := transport.Send(c, line); err != nil {
				if !errors.Is(err, pipe.ErrWriteNotReady) {
					logger.Warn("Failed to send message", zap.Uint64("conn", c.ID()), zap.Error(err))
				}
				continue
			}
			sent++
		}
		logger.Debug("Broadcasted message", zap.Int("bytes", len(line)), zap.Int("peers", sent))
	}
}
