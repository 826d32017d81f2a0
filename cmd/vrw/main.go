package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/video-system/vrw/internal/ffmpeg"
	"github.com/video-system/vrw/pkg/api"
	"github.com/video-system/vrw/pkg/array"
	"github.com/video-system/vrw/pkg/config"
	"github.com/video-system/vrw/pkg/index"
	"github.com/video-system/vrw/pkg/video"
)

const version = "1.0.0"

const usage = `usage: vrw [-config file] <command> [args]

commands:
  info <video>               print shape, dtype and frame rate
  slice <in> <expr> <out>    write the frames selected by expr to a new video
  serve                      run the HTTP frame server
  version                    print version information
`

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Usage = func() { fmt.Fprint(flag.CommandLine.Output(), usage) }
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			logrus.Fatalf("Failed to load config: %v", err)
		}
	}
	if err := cfg.SetupLogging(); err != nil {
		logrus.Fatalf("Failed to configure logging: %v", err)
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logrus.Info("Shutdown signal received...")
		cancel()
	}()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "info":
		err = runInfo(ctx, cfg, args[1:])
	case "slice":
		err = runSlice(ctx, cfg, args[1:])
	case "serve":
		err = runServe(ctx, cfg)
	case "version":
		err = runVersion(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logrus.Fatalf("%s: %v", args[0], err)
	}
}

func runInfo(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 1 {
		return errors.New("expected exactly one video path")
	}
	return video.WithReader(ctx, args[0], cfg.ReaderOptions(), func(r *video.Reader) error {
		shape, err := r.Shape()
		if err != nil {
			return err
		}
		dtype, err := r.DType()
		if err != nil {
			return err
		}
		fmt.Printf("path:   %s\n", r.Path())
		fmt.Printf("shape:  %v\n", shape)
		fmt.Printf("dtype:  %s\n", dtype)
		fmt.Printf("fps:    %.3f\n", r.FPS())
		fmt.Printf("codec:  %s\n", r.Metadata().Codec)
		return nil
	})
}

// runSlice copies the frames selected by an index expression into a new
// video. The expression must keep the frame axis.
func runSlice(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) != 3 {
		return errors.New("expected <in> <expr> <out>")
	}
	in, expr, out := args[0], args[1], args[2]

	tokens, err := index.ParseExpr(expr)
	if err != nil {
		return err
	}

	var (
		selected *array.Array
		fps      float64
	)
	err = video.WithReader(ctx, in, cfg.ReaderOptions(), func(r *video.Reader) error {
		shape, err := r.Shape()
		if err != nil {
			return err
		}
		plan, err := index.Parse(tokens, shape)
		if err != nil {
			return err
		}
		if len(plan.NewAxes) > 0 {
			return fmt.Errorf("%w: %q adds axes; a video needs frames of rank 2 or 3", video.ErrIndex, expr)
		}
		if plan.Axes[0].Collapses() {
			return fmt.Errorf("%w: %q selects a single frame; use a range such as %d:%d",
				video.ErrIndex, expr, plan.Axes[0].Index, plan.Axes[0].Index+1)
		}
		fps = r.FPS()
		selected, err = r.Get(tokens...)
		return err
	})
	if err != nil {
		return err
	}

	err = video.WithWriter(ctx, out, cfg.WriterOptionsFor(fps), func(w *video.Writer) error {
		for k := 0; k < selected.Len(); k++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.Write(selected.Take(0, []int{k}).Squeeze(0)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"function": "runSlice",
		"input":    in,
		"output":   out,
		"expr":     expr,
		"frames":   selected.Len(),
		"fps":      fps,
	}).Info("Slice written")
	return nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	server := api.NewServer(api.ServerConfig{
		Host:     cfg.API.Host,
		Port:     cfg.API.Port,
		MediaDir: cfg.API.MediaDir,
		Reader:   cfg.ReaderOptions(),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		server.Stop()
		logrus.Info("Server stopped")
		return nil
	}
}

func runVersion(ctx context.Context, cfg *config.Config) error {
	fmt.Printf("vrw %s\n", version)

	ff, err := ffmpeg.NewWithPaths(cfg.FFmpeg.Path, cfg.FFmpeg.ProbePath)
	if err != nil {
		fmt.Printf("ffmpeg: unavailable (%v)\n", err)
		return nil
	}
	v, err := ff.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}
