// Command scan reads one barcode from the configured camera (or takes a
// pasted ingredient list), runs it through the analysis service and prints
// the verdict. It exits 0 on a result, 1 on any failure and 2 when
// interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/your-org/dermascan/internal/analysis"
	"github.com/your-org/dermascan/internal/barcode"
	"github.com/your-org/dermascan/internal/camera"
	"github.com/your-org/dermascan/internal/capture"
	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/observability"
	"github.com/your-org/dermascan/internal/profile"
)

const (
	exitOK        = 0
	exitFailed    = 1
	exitCancelled = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	ingredients := flag.String("ingredients", "", "analyze this ingredient list instead of scanning")
	format := flag.String("format", "json", "output format: json or text")
	age := flag.String("age", "", "profile age group (under_18, 18_32, 32_56, 56_plus)")
	gender := flag.String("gender", "", "profile gender (female, male, other)")
	skin := flag.String("skin", "", "profile skin type (oily, dry, combination)")
	flag.Parse()

	if *format != "json" && *format != "text" {
		fmt.Fprintf(os.Stderr, "unknown format %q\n", *format)
		return exitFailed
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitFailed
	}
	observability.SetupLogger(cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	req := analysis.Request{Ingredients: *ingredients}
	if *age != "" || *gender != "" || *skin != "" {
		p := profile.Profile{AgeGroup: profile.AgeGroup(*age), Gender: profile.Gender(*gender), SkinType: profile.SkinType(*skin)}
		if err := p.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "profile: %v\n", err)
			return exitFailed
		}
		req.UserProfile = &p
	}

	rep := report{}
	if req.Ingredients == "" {
		sym, err := scanOnce(ctx, cfg)
		switch {
		case errors.Is(err, context.Canceled):
			return exitCancelled
		case err != nil:
			rep.Message = err.Error()
			write(os.Stdout, *format, rep)
			return exitFailed
		}
		rep.Barcode, rep.Format = sym.Text, sym.Format
		req.Barcode = sym.Text
	}

	out, err := analysis.NewClient(cfg.Analysis).Analyze(ctx, req)
	switch {
	case errors.Is(err, context.Canceled):
		return exitCancelled
	case err != nil:
		rep.Message = err.Error()
		write(os.Stdout, *format, rep)
		return exitFailed
	}

	rep.fill(out)
	write(os.Stdout, *format, rep)
	if out.Kind != analysis.Success {
		return exitFailed
	}
	return exitOK
}

// scanOnce opens the camera and waits for the first decoded symbol. A
// cancelled ctx stops the session and yields context.Canceled.
func scanOnce(ctx context.Context, cfg *config.Config) (barcode.Symbol, error) {
	decoder, err := barcode.NewDecoder(cfg.Decoder.Formats, cfg.Decoder.TryHarder)
	if err != nil {
		return barcode.Symbol{}, err
	}
	ctrl := capture.NewController(camera.NewFFmpegCamera(cfg.Camera), decoder, camera.Facing(cfg.Camera.Facing))
	defer ctrl.Close()

	sess, err := ctrl.Start(ctx)
	if err != nil {
		return barcode.Symbol{}, err
	}
	slog.Info("point the camera at a barcode", "session_id", sess.ID, "formats", decoder.Formats())

	out, ok := <-sess.Outcome()
	if !ok {
		return barcode.Symbol{}, context.Canceled
	}
	if out.Err != nil {
		return barcode.Symbol{}, out.Err
	}
	return out.Symbol, nil
}
