package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/stepramp/internal/config"
	"github.com/cjeanneret/stepramp/internal/debug"
	"github.com/cjeanneret/stepramp/internal/hw/clock"
	"github.com/cjeanneret/stepramp/internal/hw/gpio"
	"github.com/cjeanneret/stepramp/internal/hw/stepper"
	"github.com/cjeanneret/stepramp/internal/logic/geometry"
	"github.com/cjeanneret/stepramp/internal/logic/motion"
	"github.com/cjeanneret/stepramp/internal/stepgen"
	"github.com/cjeanneret/stepramp/internal/web"
)

// options holds the parsed command line.
type options struct {
	cfgPath string
	webPort int
	move    *web.MoveRequest // nil when no move was asked for
}

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	target := flag.Int64("target", 0, "move to (or by, with -relative) this many pulses")
	degrees := flag.Float64("degrees", 0, "move to (or by, with -relative) this angle in degrees")
	relative := flag.Bool("relative", false, "interpret -target/-degrees from the current position")
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	move, err := buildMoveRequest(set["target"], *target, set["degrees"], *degrees, *relative)
	if err != nil {
		log.Fatalf("invalid move: %v", err)
	}

	// SIGINT/SIGTERM cancel the context; a running move decelerates to a stop.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	opts := options{cfgPath: *cfgPath, webPort: webPort.port(), move: move}
	if err := run(ctx, opts); err != nil {
		log.Fatalf("%v", err)
	}
}

// run wires the hardware and either serves the web UI or performs one move.
func run(ctx context.Context, opts options) error {
	if opts.move == nil && opts.webPort == 0 {
		return errors.New("nothing to do: pass -target, -degrees or -web")
	}

	if err := config.ValidateConfigPath(opts.cfgPath); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", opts.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)

	debug.Step(1, "Initializing GPIO driver")
	debug.Value("GPIO backend", cfg.GPIOBackend())
	gpioDriver, err := gpio.NewDriver(cfg.GPIOBackend())
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			debug.Error(fmt.Errorf("closing GPIO driver failed: %w", err))
		}
	}()

	debug.Step(2, "Initializing step/dir output")
	out, err := stepper.NewOutput(gpioDriver, stepper.Config{
		StepPin:    cfg.Axis.StepPin,
		DirPin:     cfg.Axis.DirPin,
		EnablePin:  cfg.Axis.EnablePin,
		InvertDir:  cfg.Axis.InvertDir,
		PulseWidth: cfg.PulseWidth(),
	})
	if err != nil {
		return fmt.Errorf("init stepper failed: %w", err)
	}
	debug.PrintStruct("Axis config", cfg.Axis)

	debug.Step(3, "Creating pulse engine")
	engine := newEngine(cfg, out, clock.NewSystem())
	debug.PrintStruct("Motion config", cfg.Settings())
	ctrl := motion.NewController(engine, out)
	defer ctrl.DisableMotor()
	angles := geometry.NewStepsCalculator(cfg)

	if opts.webPort > 0 {
		webAddr := fmt.Sprintf(":%d", opts.webPort)
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(webAddr, broadcaster, ctrl, angles, cfg)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	}

	debug.Section("Move")
	if err := runMove(ctx, ctrl, angles, *opts.move); err != nil {
		return err
	}
	st := ctrl.Status()
	debug.Summary("Move complete")
	fmt.Printf("position %d (%.2f°)\n", st.Position, angles.AngleFromSteps(st.Position))
	return nil
}

// newEngine picks the pulse engine for the configured profile.
func newEngine(cfg *config.Config, drv stepgen.Driver, clk stepgen.Clock) stepgen.Engine {
	if cfg.Ramped() {
		return stepgen.NewRamp(drv, clk, cfg.Settings())
	}
	return stepgen.NewNoAccel(drv, clk, cfg.Settings())
}

// runMove performs one move. A cancelled context is reported as an
// interrupted move, not a failure.
func runMove(ctx context.Context, ctrl *motion.Controller, angles *geometry.StepsCalculator, req web.MoveRequest) error {
	var steps int32
	if req.Target != nil {
		steps = *req.Target
	} else {
		steps = angles.StepsFromAngle(*req.Degrees)
	}

	var err error
	if req.Relative {
		err = ctrl.MoveBy(ctx, steps)
	} else {
		err = ctrl.MoveTo(ctx, steps)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		debug.Info("Move interrupted at %d", ctrl.Status().Position)
		return nil
	default:
		return fmt.Errorf("move failed: %w", err)
	}
}

// buildMoveRequest turns the move flags into a request. It returns nil
// when neither -target nor -degrees was given.
func buildMoveRequest(targetSet bool, target int64, degreesSet bool, degrees float64, relative bool) (*web.MoveRequest, error) {
	if !targetSet && !degreesSet {
		if relative {
			return nil, errors.New("-relative needs -target or -degrees")
		}
		return nil, nil
	}

	req := web.MoveRequest{Relative: relative}
	if targetSet {
		if target > math.MaxInt32 || target < math.MinInt32 {
			return nil, fmt.Errorf("target %d out of range", target)
		}
		t := int32(target)
		req.Target = &t
	}
	if degreesSet {
		req.Degrees = &degrees
	}
	if err := web.ValidateMoveRequest(req); err != nil {
		return nil, err
	}
	return &req, nil
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
