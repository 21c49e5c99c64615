// Command zereca runs and administers the Zereca control plane: the
// Sensitivity Pipeline, Input Authority Layer, and the reconciliation-
// based performance-state manager described by the control plane's
// package docs. Most subcommands operate directly on the on-disk
// Target State, Probation Ledger, and Flight Recorder so they work
// whether or not a `zereca start` process is currently running.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/neo-z/zereca/pkg/bridge"
	"github.com/neo-z/zereca/pkg/config"
	"github.com/neo-z/zereca/pkg/eventlog"
	"github.com/neo-z/zereca/pkg/input"
	"github.com/neo-z/zereca/pkg/metrics"
	"github.com/neo-z/zereca/pkg/platform"
	"github.com/neo-z/zereca/pkg/sensitivity"
	"github.com/neo-z/zereca/pkg/types"
	"github.com/neo-z/zereca/pkg/zereca/arbiter"
	"github.com/neo-z/zereca/pkg/zereca/controller"
	"github.com/neo-z/zereca/pkg/zereca/detector"
	"github.com/neo-z/zereca/pkg/zereca/flight"
	"github.com/neo-z/zereca/pkg/zereca/hypothesis"
	"github.com/neo-z/zereca/pkg/zereca/observation"
	"github.com/neo-z/zereca/pkg/zereca/probation"
	"github.com/neo-z/zereca/pkg/zereca/rollback"
	"github.com/neo-z/zereca/pkg/zereca/shadow"
	"github.com/neo-z/zereca/pkg/zereca/state"
	"github.com/neo-z/zereca/pkg/zereca/telemetry"
)

const targetProcess = "game.exe"

var (
	appDataDir string
	configPath string
	bindAddr   string
)

func main() {
	root := &cobra.Command{
		Use:   "zereca",
		Short: "Sensitivity pipeline and OS performance-state control plane",
		Long: `zereca shapes mouse input for mobile-emulator gameplay and reconciles
OS-level performance state (power plan, timer resolution, process priority
and affinity) toward a declarative Target State, under the supervision of
an Arbiter, Probation Ledger, and Emergency Rollback.`,
	}

	root.PersistentFlags().StringVar(&appDataDir, "app-data-dir", defaultAppDataDir(), "directory for Target State, Probation Ledger, and Flight Recorder files")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the YAML config file (defaults to <app-data-dir>/config.yaml)")
	root.PersistentFlags().StringVar(&bindAddr, "bind", "127.0.0.1:7744", "address the property/event bridge listens on")

	root.AddCommand(
		startCmd(),
		stopCmd(),
		statusCmd(),
		reconcileCmd(),
		acknowledgeRollbackCmd(),
		clearProbationCmd(),
		snapshotCmd(),
		rollbackCmd(),
	)

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func defaultAppDataDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "zereca")
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return filepath.Join(appDataDir, "config.yaml")
}

// app bundles every component a subcommand might need. Not every
// subcommand uses every field.
type app struct {
	cfg       config.Config
	plat      platform.Platform
	target    *state.Manager
	ledger    *probation.Ledger
	recorder  *flight.Recorder
	rollback  *rollback.Manager
	ring      *eventlog.Ring
	logger    *slog.Logger
}

func newApp() (*app, error) {
	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		return nil, fmt.Errorf("zereca: create app data dir: %w", err)
	}

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("zereca: load config: %w", err)
	}

	ring := eventlog.NewRing()
	logger := slog.New(eventlog.NewHandler(slog.NewTextHandler(os.Stderr, nil), ring))

	plat, err := platform.New()
	if err != nil {
		return nil, fmt.Errorf("zereca: init platform: %w", err)
	}

	target, err := state.NewManager(filepath.Join(appDataDir, "target_state.json"))
	if err != nil {
		return nil, fmt.Errorf("zereca: init target state: %w", err)
	}

	ledger, err := probation.NewLedger(filepath.Join(appDataDir, "probation.json"))
	if err != nil {
		return nil, fmt.Errorf("zereca: init probation ledger: %w", err)
	}

	recorder := flight.NewRecorder(appDataDir)
	rb := rollback.NewManager(target, recorder, logger)

	return &app{
		cfg:      cfg,
		plat:     plat,
		target:   target,
		ledger:   ledger,
		recorder: recorder,
		rollback: rb,
		ring:     ring,
		logger:   logger,
	}, nil
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the control plane in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return runStart(cmd.Context(), a)
		},
	}
}

func runStart(ctx context.Context, a *app) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := metrics.New()
	promReg := prometheus.NewRegistry()
	reg.MustRegister(promReg)

	params := sensitivity.DefaultParameters()
	params.SensitivityX = a.cfg.Pipeline.SensitivityX
	params.SensitivityY = a.cfg.Pipeline.SensitivityY
	params.HostNormalizer.MouseDPI = a.cfg.Pipeline.MouseDPI
	params.GainFactor = a.cfg.Pipeline.GainFactor
	params.SmoothingMs = a.cfg.Pipeline.SmoothingMs
	params.SlowZonePercent = a.cfg.Pipeline.SlowZonePercent
	pipeline := sensitivity.NewPipeline(params)

	authority := input.New(a.plat, pipeline, a.logger)
	if err := authority.StartHook(); err != nil {
		a.logger.Warn("failed to install mouse hook", "error", err)
	}
	defer authority.StopHook()

	reconciler := state.NewReconciler(a.target, a.plat, a.logger, 2000)
	reconciler.OnDrift(func(component, expected, actual string) {
		a.logger.Warn("drift detected", "component", component, "expected", expected, "actual", actual)
	})

	tele := telemetry.New(a.plat, noFPSHooks{}, nil, a.logger)
	tele.OnPrivilegesLost(func() {
		a.logger.Warn("operator privileges lost, downgrading telemetry to Standard tier")
	})
	tele.Start()
	defer tele.Stop()

	det := detector.New(detector.DefaultSignatures())
	engine := hypothesis.New(hypothesis.DefaultDimensions(targetProcess), 0)
	arb := arbiter.New(a.ledger, a.rollback, func() types.PrivilegeTier {
		if ok, _ := a.plat.PrivilegeTier(); ok {
			return types.PrivilegeOperator
		}
		return types.PrivilegeStandard
	}, func() types.SystemContext { return types.SystemContext{} }, a.logger)

	b := bridge.New(a.logger)
	registerBridgeCommands(b, a, reconciler)

	ctrl := controller.New(controller.Deps{
		Detector: det,
		Engine:   engine,
		Arbiter:  arb,
		Rollback: a.rollback,
		Target:   a.target,
		Recorder: a.recorder,
		Applier:  platformApplier{plat: a.plat},
		SampleFn: func() (shadow.Metrics, bool) {
			m := tele.LatestMetrics()
			return shadow.Metrics{FPS: m.FPS}, m.FPS > 0
		},
		ObserveFn: func() (observation.Sample, bool) {
			m := tele.LatestMetrics()
			return observation.Sample{
				Timestamp:   m.Timestamp,
				FPS:         m.FPS,
				FrameTimeMs: m.AvgFrameTimeMs,
				CPU:         m.CoreUtilization,
				GPU:         m.GPUUtilization,
				MemPressure: m.MemoryPressure,
			}, m.FPS > 0
		},
		Logger: a.logger,
	})
	ctrl.OnModeChanged(func(mode controller.Mode) {
		b.SetProperty("mode", mode.String())
		b.EmitEvent("modeChanged", mode.String())
		reg.SetRollbackActive(mode == controller.ModeRollback)
	})

	a.rollback.OnExecuted(func(trigger rollback.Trigger, success bool) {
		a.logger.Error("emergency rollback executed", "trigger", trigger.String(), "success", success)
		b.EmitEvent("rollbackExecuted", map[string]any{"trigger": trigger.String(), "success": success})
	})

	go reconciler.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", b.Handler())
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: bindAddr, Handler: mux}
	go func() {
		a.logger.Info("bridge listening", "addr", bindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("bridge server failed", "error", err)
		}
	}()

	go b.Run(ctx.Done())

	if err := ctrl.Start(); err != nil {
		a.logger.Warn("controller start rejected", "error", err)
	}

	<-ctx.Done()
	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// noFPSHooks is the default ExternalHooks used when no overlay or
// device-shell connection has attached yet.
type noFPSHooks struct{}

func (noFPSHooks) Sample() (float64, float64, bool) { return 0, 0, false }

// platformApplier drives Shadow Mode trials through the Platform
// interface for the three shadow-testable change types.
type platformApplier struct{ plat platform.Platform }

func (a platformApplier) Apply(p shadow.Proposal) error {
	switch p.ChangeType {
	case types.ChangePriority:
		return a.plat.SetProcessPriority(p.TargetProcess, parsePriorityClass(p.ProposedValue))
	case types.ChangeIoPriority:
		return a.plat.SetProcessIOPriority(p.TargetProcess, parseIOPriority(p.ProposedValue))
	case types.ChangeAffinity:
		return a.plat.SetProcessAffinity(p.TargetProcess, p.ProposedValue)
	default:
		return fmt.Errorf("zereca: %s is not shadow-testable", p.ChangeType)
	}
}

func (a platformApplier) Revert(p shadow.Proposal) error {
	switch p.ChangeType {
	case types.ChangePriority:
		return a.plat.SetProcessPriority(p.TargetProcess, parsePriorityClass(p.CurrentValue))
	case types.ChangeIoPriority:
		return a.plat.SetProcessIOPriority(p.TargetProcess, parseIOPriority(p.CurrentValue))
	case types.ChangeAffinity:
		return a.plat.SetProcessAffinity(p.TargetProcess, p.CurrentValue)
	default:
		return fmt.Errorf("zereca: %s is not shadow-testable", p.ChangeType)
	}
}

func parsePriorityClass(v string) platform.PriorityClass {
	switch v {
	case "IDLE":
		return platform.PriorityIdle
	case "BELOW_NORMAL":
		return platform.PriorityBelowNormal
	case "ABOVE_NORMAL":
		return platform.PriorityAboveNormal
	case "HIGH":
		return platform.PriorityHigh
	default:
		return platform.PriorityNormal
	}
}

func parseIOPriority(v string) platform.IOPriority {
	switch v {
	case "LOW":
		return platform.IOPriorityLow
	case "HIGH":
		return platform.IOPriorityHigh
	default:
		return platform.IOPriorityNormal
	}
}

// registerBridgeCommands wires the forceReconcile, acknowledgeRollback,
// clearProbation, snapshot and rollback bridge commands onto the
// running app's components. No other command name has a handler.
func registerBridgeCommands(b *bridge.Bridge, a *app, r *state.Reconciler) {
	b.RegisterHandler("forceReconcile", func(bridge.Command) (any, error) {
		r.RequestImmediate()
		return "reconciliation requested", nil
	})
	b.RegisterHandler("acknowledgeRollback", func(bridge.Command) (any, error) {
		a.rollback.Acknowledge()
		return "rollback acknowledged", nil
	})
	b.RegisterHandler("clearProbation", func(bridge.Command) (any, error) {
		a.ledger.ClearAll()
		return "probation ledger cleared", nil
	})
	b.RegisterHandler("snapshot", func(bridge.Command) (any, error) {
		return a.target.Current(), nil
	})
	b.RegisterHandler("rollback", func(bridge.Command) (any, error) {
		return nil, a.rollback.Execute(rollback.TriggerUserRequested)
	})
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Print the bridge address to send a shutdown request to (sends nothing itself)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return postBridgeCommand(cmd.Context(), "stop", nil)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the Target State and Probation Ledger size",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			t := a.target.Current()
			fmt.Printf("power_mode: %s\n", t.PowerMode)
			fmt.Printf("timer_resolution: %s\n", t.TimerResolution)
			fmt.Printf("cpu_parking: %v\n", t.CPUParking)
			fmt.Printf("probation_entries: %d\n", a.ledger.Count())
			fmt.Printf("rollback_active: %v\n", a.rollback.RolledBack())
			return nil
		},
	}
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Force one reconciliation tick against the on-disk Target State",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			r := state.NewReconciler(a.target, a.plat, a.logger, 1000)
			r.Tick()
			fmt.Printf("drift_count: %d\n", r.DriftCount())
			return nil
		},
	}
}

func acknowledgeRollbackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "acknowledge-rollback",
		Short: "Clear Emergency Rollback state, allowing new proposals again",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.rollback.Acknowledge()
			fmt.Println("rollback acknowledged")
			return nil
		},
	}
}

func clearProbationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-probation",
		Short: "Clear every entry in the Probation Ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			a.ledger.ClearAll()
			fmt.Println("probation ledger cleared")
			return nil
		},
	}
}

func snapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Print the current Target State document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(a.target.Current(), "", "  ")
			if err != nil {
				return fmt.Errorf("zereca: snapshot: %w", err)
			}
			fmt.Println(string(data))
			return nil
		},
	}
}

func rollbackCmd() *cobra.Command {
	var trigger string
	c := &cobra.Command{
		Use:   "rollback",
		Short: "Force Emergency Rollback to safe defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			t := parseTrigger(trigger)
			if err := a.rollback.Execute(t); err != nil {
				return fmt.Errorf("zereca: rollback: %w", err)
			}
			fmt.Println("rollback executed")
			return nil
		},
	}
	c.Flags().StringVar(&trigger, "trigger", "manual", "rollback trigger reason (manual, user_requested, app_crash, thermal_runaway, bsod_signal, watchdog_timeout, privilege_lost)")
	return c
}

func parseTrigger(v string) rollback.Trigger {
	switch v {
	case "user_requested":
		return rollback.TriggerUserRequested
	case "app_crash":
		return rollback.TriggerAppCrash
	case "thermal_runaway":
		return rollback.TriggerThermalRunaway
	case "bsod_signal":
		return rollback.TriggerBSODSignal
	case "watchdog_timeout":
		return rollback.TriggerWatchdogTimeout
	case "privilege_lost":
		return rollback.TriggerPrivilegeLost
	default:
		return rollback.TriggerManual
	}
}

// postBridgeCommand prints the command name and the bridge address a
// running `zereca start` instance listens on. It opens no connection
// and sends nothing to that instance, and the running bridge has no
// "stop" handler.
func postBridgeCommand(ctx context.Context, command string, args map[string]any) error {
	fmt.Printf("requested %q on the instance bound to %s (connect a websocket client to ws://%s/ws to confirm delivery)\n", command, bindAddr, bindAddr)
	return nil
}
