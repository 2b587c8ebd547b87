// Command bbrot computes Buddhabrot seed orbits and renders them.
//
// Usage:
//
//	bbrot compute [-device cpu|gpu] [-seed N] [-o seeds.json]
//	bbrot render  [-o out.png] seeds...
//	bbrot animate [-p prefix] [-video out.avi] seeds...
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"time"

	"github.com/guptarohit/asciigraph"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/bbrot"
	_ "github.com/gogpu/bbrot/gpu" // registers the wgpu device when available
	"github.com/gogpu/bbrot/internal/colormap"
	"github.com/gogpu/bbrot/internal/output"
)

var printer = message.NewPrinter(language.English)

func main() {
	os.Exit(run(os.Args[1:]))
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: bbrot compute|render|animate [flags] [seed files]")
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return 1
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch args[0] {
	case "compute":
		err = computeCmd(ctx, args[1:])
	case "render":
		err = renderCmd(ctx, args[1:])
	case "animate":
		err = animateCmd(ctx, args[1:])
	default:
		usage()
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, bbrot.ErrNoFrontier), errors.Is(err, bbrot.ErrNoSeeds):
		bbrot.Logger().Warn("nothing to do", "err", err)
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		slog.Error("bbrot failed", "cmd", args[0], "err", err)
		return 1
	}
}

// commonFlags registers the flags shared by every subcommand. The grid
// flags must match between compute and render for seeds to line up.
type commonFlags struct {
	verbose  bool
	device   string
	steps    int
	maxLoops int
	bufMem   uint64
	bufs     int
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&c.verbose, "v", false, "debug logging")
	fs.StringVar(&c.device, "device", "gpu", "compute device: cpu or gpu (falls back to cpu)")
	fs.IntVar(&c.steps, "steps", bbrot.DefaultSteps, "grid resolution")
	fs.IntVar(&c.maxLoops, "loops", bbrot.DefaultMaxLoops, "iterations per dispatch")
	fs.Uint64Var(&c.bufMem, "bufmem", bbrot.DefaultMaxRenderBufMem, "accumulation buffer budget in bytes")
	fs.IntVar(&c.bufs, "bufs", 0, "accumulation buffer count cap (0 = budget only)")
}

// setup installs the logger and selects the device.
func (c *commonFlags) setup() (bbrot.Device, error) {
	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	bbrot.SetLogger(logger)

	switch c.device {
	case "cpu":
		if err := bbrot.RegisterDevice(bbrot.NewSoftwareDevice(0)); err != nil {
			return nil, err
		}
	case "gpu":
		if bbrot.CurrentDevice().Name() == "software" {
			logger.Warn("GPU device not available, using software device")
		}
	default:
		return nil, fmt.Errorf("unknown device %q", c.device)
	}
	dev := bbrot.CurrentDevice()
	logger.Info("device selected", "device", dev.Name())
	return dev, nil
}

func (c *commonFlags) options() []bbrot.Option {
	return []bbrot.Option{
		bbrot.WithSteps(c.steps),
		bbrot.WithMaxLoops(int32(c.maxLoops)), //nolint:gosec // G115: validated by Config
		bbrot.WithBufferBudget(c.bufMem),
		bbrot.WithMaxRenderBufs(c.bufs),
	}
}

func computeCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("compute", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	var (
		out      = fs.String("o", "", "seed file, zstd compressed when it ends in .zst (default seeds-<samples>-<min>_<max>-<unix>.json)")
		seed     = fs.Uint64("seed", 0, "random seed (0 = random)")
		samples  = fs.Int("samples", bbrot.DefaultSamples, "samples drawn from frontier cells")
		minIters = fs.Int("min", bbrot.DefaultMinItersSamples, "orbit length lower bound (exclusive)")
		maxIters = fs.Int("max", bbrot.DefaultMaxItersSamples, "orbit length upper bound (exclusive)")
		cellIter = fs.Int("cell-iters", bbrot.DefaultMaxItersCells, "escape horizon for the frontier grid")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dev, err := common.setup()
	if err != nil {
		return err
	}
	//nolint:gosec // G115: validated by Config
	cfg, err := bbrot.NewConfig(append(common.options(),
		bbrot.WithCellIters(int32(*cellIter)),
		bbrot.WithSampling(*samples, int32(*minIters), int32(*maxIters)),
	)...)
	if err != nil {
		return err
	}

	var rng *rand.Rand
	if *seed != 0 {
		rng = rand.New(rand.NewPCG(*seed, *seed))
	}
	start := time.Now()
	seeds, err := bbrot.Compute(ctx, dev, cfg, rng)
	if err != nil {
		return err
	}
	slog.Info("seeds computed", "count", printer.Sprintf("%d", len(seeds)), "elapsed", time.Since(start))
	if plot := orbitPlot(cfg, seeds); plot != "" {
		fmt.Fprintln(os.Stderr, plot)
	}

	path := seedPath(*out, cfg, time.Now())
	if err := bbrot.SaveSeeds(path, seeds); err != nil {
		return err
	}
	slog.Info("seeds saved", "path", path)
	return nil
}

// seedPath returns out, or the plain JSON seed file name when out is empty.
func seedPath(out string, cfg bbrot.Config, t time.Time) string {
	if out != "" {
		return out
	}
	return bbrot.SeedFileName(cfg, t)
}

// orbitPlot draws the orbit length distribution of seeds over the
// sampling window.
func orbitPlot(cfg bbrot.Config, seeds []bbrot.Seed) string {
	const bins = 60
	if len(seeds) == 0 {
		return ""
	}
	span := float64(cfg.MaxItersSamples - cfg.MinItersSamples)
	hist := make([]float64, bins)
	for _, s := range seeds {
		b := int(float64(s.OrbitLength-cfg.MinItersSamples) / span * bins)
		hist[min(max(b, 0), bins-1)]++
	}
	return asciigraph.Plot(hist,
		asciigraph.Height(8),
		asciigraph.Width(bins),
		asciigraph.Caption(fmt.Sprintf("orbit lengths %s..%s",
			bbrot.ToUnit(int64(cfg.MinItersSamples)), bbrot.ToUnit(int64(cfg.MaxItersSamples)))))
}

func loadSeeds(fs *flag.FlagSet) ([]bbrot.Seed, error) {
	if fs.NArg() == 0 {
		return nil, fmt.Errorf("%w: no seed files given", bbrot.ErrNoInput)
	}
	seeds, err := bbrot.LoadSeedFiles(fs.Args()...)
	if err != nil {
		return nil, err
	}
	slog.Info("seeds loaded", "files", fs.NArg(), "count", printer.Sprintf("%d", len(seeds)))
	return seeds, nil
}

func renderCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	out := fs.String("o", "", "output PNG (default derived from the first seed file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	dev, err := common.setup()
	if err != nil {
		return err
	}
	cfg, err := bbrot.NewConfig(common.options()...)
	if err != nil {
		return err
	}
	seeds, err := loadSeeds(fs)
	if err != nil {
		return err
	}

	h, err := bbrot.Scheduler{Device: dev, Config: cfg}.Render(ctx, seeds)
	if err != nil {
		return err
	}
	path := *out
	if path == "" {
		path = bbrot.ImageNameForSeeds(fs.Args(), time.Now())
	}
	if err := output.SavePNG(path, colormap.Still(h, colormap.Flame())); err != nil {
		return err
	}
	slog.Info("image saved", "path", path, "visits", printer.Sprintf("%d", h.Total()))
	return nil
}

func animateCmd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("animate", flag.ContinueOnError)
	var common commonFlags
	common.register(fs)
	var (
		prefix  = fs.String("p", "frame", "frame file prefix")
		video   = fs.String("video", "", "also write an MJPEG AVI to this path")
		fps     = fs.Int("fps", bbrot.DefaultAnimateFPS, "frames per second")
		seconds = fs.Int("seconds", bbrot.DefaultAnimateSeconds, "animation length")
		minIter = fs.Int("min", bbrot.DefaultMinItersSamples, "iteration bound of the last bounded frame")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	dev, err := common.setup()
	if err != nil {
		return err
	}
	//nolint:gosec // G115: validated by Config
	cfg, err := bbrot.NewConfig(append(common.options(),
		bbrot.WithAnimation(*fps, *seconds),
		bbrot.WithSampling(bbrot.DefaultSamples, int32(*minIter), max(int32(*minIter)+1, bbrot.DefaultMaxItersSamples)),
	)...)
	if err != nil {
		return err
	}
	seeds, err := loadSeeds(fs)
	if err != nil {
		return err
	}

	var vw *output.VideoWriter
	if *video != "" {
		vw, err = output.NewVideoWriter(*video, cfg.Steps, cfg.Steps, cfg.AnimateFPS)
		if err != nil {
			return err
		}
		defer func() {
			if vw != nil {
				vw.Abort()
			}
		}()
	}

	palette := colormap.Flame()
	var prev bbrot.Histogram
	checkpoints := bbrot.AnimationCheckpoints(cfg)
	err = bbrot.Scheduler{Device: dev, Config: cfg}.Accumulate(ctx, seeds, checkpoints, func(f bbrot.Frame) error {
		img := colormap.Frame(f.Counts, prev, palette)
		prev = f.Counts

		name := bbrot.FrameName(*prefix, f.Index+1)
		if err := output.SavePNG(name, img); err != nil {
			return err
		}
		if vw != nil {
			if err := vw.AddFrame(img); err != nil {
				return err
			}
		}
		slog.Info("frame saved", "frame", f.Index+1, "of", len(checkpoints),
			"bound", f.Bound, "rounds", f.Rounds, "path", name)
		return nil
	})
	if err != nil {
		return err
	}
	if vw != nil {
		err = vw.Close()
		vw = nil
		if err != nil {
			return err
		}
		slog.Info("video saved", "path", *video)
	}
	return nil
}
