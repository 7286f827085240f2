package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.miragespace.co/scanpipe/spec/frame"
	"go.miragespace.co/scanpipe/spec/pipe"
	"go.miragespace.co/scanpipe/timing"
	pipeImpl "go.miragespace.co/scanpipe/util/pipe"

	"github.com/alecthomas/units"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func Generate() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "connect to a scanpipe server as an analyzer peer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "name",
				Category: "Pipe Options",
				Aliases:  []string{"n"},
				Usage:    "pipe name to connect to",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "framing",
				Category: "Message Options",
				Value:    "sentinel",
				Usage:    "message framing: sentinel or length",
			},
			&cli.StringFlag{
				Name:     "charset",
				Category: "Message Options",
				Value:    "latin1",
				Usage:    "single byte text encoding: latin1, windows-1252 or ascii (bytes above 0x7f become '?')",
			},
			&cli.StringFlag{
				Name:     "buffer-size",
				Category: "Pipe Options",
				Value:    "500B",
				Usage:    "read window size of the server",
			},
			&cli.BoolFlag{
				Name:     "pad",
				Category: "Message Options",
				Usage:    "pad every message to the full window with the sentinel, like the native analyzer does",
			},
			&cli.UintFlag{
				Name:     "attempts",
				Category: "Connection Options",
				Value:    5,
				Usage:    "connection attempts before giving up",
			},
			&cli.DurationFlag{
				Name:     "timeout",
				Category: "Connection Options",
				Value:    timing.PipeDialTimeout,
				Usage:    "timeout of a single connection attempt",
			},
			&cli.DurationFlag{
				Name:     "reply-timeout",
				Category: "Connection Options",
				Value:    timing.PipeReplyTimeout,
				Usage:    "how long to wait for a reply with --reply",
			},
			&cli.BoolFlag{
				Name:     "reply",
				Category: "Connection Options",
				Usage:    "wait for one reply message after sending",
			},
		},
		Subcommands: []*cli.Command{
			{
				Name:      "send",
				ArgsUsage: "[message]...",
				Usage:     "send each argument as a message over one connection",
				Action:    cmdSend,
			},
			{
				Name:      "flood",
				ArgsUsage: " ",
				Usage:     "connect many peers concurrently, each sending one distinct message",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "peers",
						Value: 16,
						Usage: fmt.Sprintf("number of concurrent peers, at most %d", pipe.MaxInstances),
					},
					&cli.StringFlag{
						Name:  "prefix",
						Value: "peer",
						Usage: "message prefix; peer i sends prefix-i",
					},
				},
				Action: cmdFlood,
			},
		},
	}
}

func buildPeerConfig(ctx *cli.Context) (peerConfig, error) {
	logger := ctx.App.Metadata["logger"].(*zap.Logger)

	framing, err := frame.ParseFraming(ctx.String("framing"))
	if err != nil {
		return peerConfig{}, err
	}
	charset, err := frame.LookupCharset(ctx.String("charset"))
	if err != nil {
		return peerConfig{}, err
	}
	size, err := units.ParseBase2Bytes(ctx.String("buffer-size"))
	if err != nil {
		return peerConfig{}, fmt.Errorf("error parsing buffer size: %w", err)
	}
	if size <= 0 {
		return peerConfig{}, fmt.Errorf("buffer size must be positive, got %s", size)
	}
	attempts := ctx.Uint("attempts")
	if attempts == 0 {
		attempts = 1
	}

	return peerConfig{
		logger:     logger,
		factory:    pipeImpl.Factory{},
		name:       ctx.String("name"),
		framing:    framing,
		charset:    charset,
		bufferSize: int(size),
		pad:        ctx.Bool("pad"),
		attempts:   attempts,
		timeout:    ctx.Duration("timeout"),
		replyWait:  ctx.Duration("reply-timeout"),
	}, nil
}

func cmdSend(ctx *cli.Context) error {
	cfg, err := buildPeerConfig(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() == 0 {
		return errors.New("nothing to send")
	}

	p, err := dialPeer(ctx.Context, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	out := ctx.App.Writer
	for _, msg := range ctx.Args().Slice() {
		n, err := p.send(msg)
		if err != nil {
			return fmt.Errorf("sending %q: %w", msg, err)
		}
		fmt.Fprintf(out, "%s sent %d bytes: %s\n", color.GreenString("✓"), n, msg)

		if !ctx.Bool("reply") {
			continue
		}
		reply, err := p.receive(cfg.replyWait)
		if err != nil {
			return fmt.Errorf("waiting for reply: %w", err)
		}
		fmt.Fprintf(out, "%s %s\n", color.CyanString("←"), reply)
	}
	return nil
}

type floodResult struct {
	peer     int
	message  string
	bytes    int
	reply    string
	duration time.Duration
	err      error
}

func flood(ctx context.Context, cfg peerConfig, peers int, prefix string, wantReply bool) []floodResult {
	results := make([]floodResult, peers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < peers; i++ {
		g.Go(func() error {
			r := &results[i]
			r.peer = i
			r.message = fmt.Sprintf("%s-%03d", prefix, i)
			start := time.Now()
			defer func() {
				r.duration = time.Since(start)
			}()

			p, err := dialPeer(gctx, cfg)
			if err != nil {
				r.err = err
				return nil
			}
			defer p.Close()

			r.bytes, r.err = p.send(r.message)
			if r.err != nil || !wantReply {
				return nil
			}
			r.reply, r.err = p.receive(cfg.replyWait)
			return nil
		})
	}
	g.Wait()

	return results
}

func formatFlood(results []floodResult, output io.Writer) int {
	resultTable := table.NewWriter()
	resultTable.SetOutputMirror(output)
	resultTable.AppendHeader(table.Row{"Peer", "Message", "Bytes", "Reply", "Time", "Status"})

	failed := 0
	for _, r := range results {
		status := color.GreenString("ok")
		if r.err != nil {
			failed++
			status = color.RedString(r.err.Error())
		}
		resultTable.AppendRow(table.Row{r.peer, r.message, r.bytes, r.reply, r.duration.Round(time.Microsecond), status})
	}
	resultTable.AppendFooter(table.Row{"", "", "", "", "failed", fmt.Sprintf("%d/%d", failed, len(results))})

	resultTable.SetStyle(table.StyleDefault)
	resultTable.Render()
	return failed
}

func cmdFlood(ctx *cli.Context) error {
	cfg, err := buildPeerConfig(ctx)
	if err != nil {
		return err
	}
	peers := ctx.Int("peers")
	if peers <= 0 || peers > pipe.MaxInstances {
		return fmt.Errorf("peers must be between 1 and %d, got %d", pipe.MaxInstances, peers)
	}

	results := flood(ctx.Context, cfg, peers, strings.TrimSpace(ctx.String("prefix")), ctx.Bool("reply"))
	if failed := formatFlood(results, ctx.App.Writer); failed > 0 {
		return fmt.Errorf("%d of %d peers failed", failed, peers)
	}
	return nil
}
