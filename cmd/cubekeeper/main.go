package main

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/paths"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/platform"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/power"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/service"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

const configEnv = "CUBEKEEPER_CONFIG"

func main() {
	root := newRootCmd(os.Stdin, os.Stdout)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is what every command needs once flags and config are loaded.
type app struct {
	stdin io.Reader

	flagConfig   string
	flagLogLevel string
	flagLogFile  string
	flagVerbose  bool

	configPath string
	cfg        *config.Config
	logger     logging.Logger
	registry   *prometheus.Registry
	svc        *service.Service
}

func newRootCmd(stdin io.Reader, stdout io.Writer) *cobra.Command {
	a := &app{stdin: stdin}

	root := &cobra.Command{
		Use:               "cubekeeper",
		Short:             "Install and run a Cuberite server",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.svc != nil {
				a.svc.Close()
			}
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)

	root.PersistentFlags().StringVar(&a.flagConfig, "config", "", "config file (default "+paths.ConfigFile()+", or $"+configEnv+")")
	root.PersistentFlags().StringVar(&a.flagLogLevel, "log-level", "", "log level, overrides the config file")
	root.PersistentFlags().StringVar(&a.flagLogFile, "log-file", "", `log file, or "console"; overrides the config file`)
	root.PersistentFlags().BoolVar(&a.flagVerbose, "verbose", false, "show full config errors")

	root.AddCommand(
		newInstallCmd(a),
		newRunCmd(a),
		newStateCmd(a),
		newWebAdminCmd(a),
		newVersionCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	switch {
	case a.flagConfig != "":
		a.configPath = a.flagConfig
	case os.Getenv(configEnv) != "":
		a.configPath = os.Getenv(configEnv)
	default:
		a.configPath = paths.ConfigFile()
	}

	detector := platform.NewDetector()
	info, err := detector.Detect(ctx)
	if err != nil {
		return fmt.Errorf("detect platform: %w", err)
	}

	cfg, err := config.NewParser(detector).Load(ctx, a.configPath)
	if err != nil {
		return fmt.Errorf("load %s: %s", a.configPath, config.FormatError(err, a.flagVerbose))
	}
	if a.flagLogLevel != "" {
		cfg.Log.Level = a.flagLogLevel
	}
	if a.flagLogFile != "" {
		cfg.Log.File = a.flagLogFile
	}
	a.cfg = cfg

	l, err := logging.Init(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	a.logger = logging.NewLogrus(l)
	a.logger.Debug("config loaded", "path", a.configPath, "abi", info.ABI, "install_root", cfg.InstallRoot)

	a.registry = prometheus.NewRegistry()
	svc, err := service.New(service.Options{
		Config:    cfg,
		Platform:  info,
		Logger:    a.logger,
		Metrics:   metrics.New(a.registry),
		Inhibitor: power.Default(a.logger),
	})
	if err != nil {
		return err
	}
	a.svc = svc
	return nil
}
