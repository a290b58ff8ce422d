package server

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/stephnangue/warrant/action"
	"github.com/stephnangue/warrant/audit"
	"github.com/stephnangue/warrant/config"
	"github.com/stephnangue/warrant/core"
	log "github.com/stephnangue/warrant/logger"
	"github.com/stephnangue/warrant/sessionmon"
)

const subsystemCore = "core"

var (
	configPath string

	flagDev bool

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Warrant authority that answers authorization checks",
		Long: `
Usage: warrant server [options]

  This command starts a Warrant authority. Start an authority with a
  configuration file:

      $ warrant server --config=/etc/warrant/config.hcl

  For a full list of examples, please see the documentation.
  `,
		RunE: run,
	}

	auditDevices = map[string]audit.Factory{
		"file": &audit.FileDeviceFactory{},
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/warrant.hcl)")
	ServerCmd.Flags().BoolVar(&flagDev, "dev", false, "Start with an in-memory session monitor seeded for development")
}

func run(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// construct the logger with gate closed during initialization
	logger := buildGatedLogger(cfg)

	infoKeys := make([]string, 0, 10)
	info := make(map[string]string)
	info["log level"] = cfg.LogLevel
	infoKeys = append(infoKeys, "log level")
	info["log file"] = cfg.LogFile
	infoKeys = append(infoKeys, "log file")
	info["log format"] = cfg.LogFormat
	infoKeys = append(infoKeys, "log format")

	auditor, err := buildAuditManager(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to construct audit devices: %w", err)
	}
	info["audit devices"] = fmt.Sprintf("%d", auditor.DeviceCount())
	infoKeys = append(infoKeys, "audit devices")

	monitor := sessionmon.NewStaticMonitor()
	if flagDev {
		seedDevMonitor(monitor)
		info["mode"] = "dev"
		infoKeys = append(infoKeys, "mode")
	}

	authority, actions, err := buildAuthority(cfg, logger, monitor, auditor)
	if err != nil {
		return fmt.Errorf("failed to construct authority: %w", err)
	}
	defer authority.Close()
	defer auditor.Close()

	if err := registerActions(cfg, actions); err != nil {
		return fmt.Errorf("failed to register actions: %w", err)
	}
	info["actions"] = fmt.Sprintf("%d", actions.Count())
	infoKeys = append(infoKeys, "actions")

	if cfg.Authority != nil && cfg.Authority.GrantTTLSeconds > 0 {
		info["grant ttl"] = fmt.Sprintf("%ds", cfg.Authority.GrantTTLSeconds)
		infoKeys = append(infoKeys, "grant ttl")
	}

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Warrant authority configuration:\n\n")
	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", k, info[k])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Warrant authority started! Log data will stream in below:\n")
	logger.OpenGate()

	// Wait for shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		fmt.Fprintf(cmd.OutOrStdout(), "Warrant shutdown triggered by %s\n", sig)
	case <-cmd.Context().Done():
		fmt.Fprintf(cmd.OutOrStdout(), "Warrant shutdown triggered\n")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Authority shutdown completed successfully\n")
	return nil
}

func buildGatedLogger(cfg *config.Config) *log.GatedLogger {
	logConfig := &log.Config{
		Level:     log.ParseLogLevel(cfg.LogLevel),
		Subsystem: subsystemCore,
		Format:    log.ParseOutputFormat(cfg.LogFormat),
		Outputs:   []io.Writer{os.Stdout},
	}
	if cfg.LogFile != "" {
		logConfig.FileConfig = &log.FileConfig{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogRotateMegabytes,
			MaxBackups: cfg.LogRotateMaxFiles,
		}
	}

	gateConfig := log.GatedWriterConfig{
		Underlying:    os.Stdout,
		InitialState:  log.GateClosed,
		MaxBufferSize: 10 * 1024 * 1024, // 10MB buffer for initialization logs
	}

	gatedLogger, _ := log.NewGatedLogger(logConfig, gateConfig)

	return gatedLogger
}

func buildAuditManager(cfg *config.Config, logger *log.GatedLogger) (*audit.Manager, error) {
	manager := audit.NewManager(logger.WithSystem("audit").Logger)

	for _, block := range cfg.Audits {
		factory, exists := auditDevices[block.Type]
		if !exists {
			return nil, fmt.Errorf("unknown audit device type %s", block.Type)
		}

		device, err := factory.NewDevice(block.Options())
		if err != nil {
			return nil, fmt.Errorf("error initializing audit device %s/%s: %w", block.Type, block.Name, err)
		}
		if err := manager.RegisterDevice(block.Name, device); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

func buildAuthority(cfg *config.Config, logger *log.GatedLogger, monitor *sessionmon.StaticMonitor, auditor *audit.Manager) (*core.Authority, *action.Registry, error) {
	admins, err := cfg.ParsedAdminIdentities()
	if err != nil {
		return nil, nil, err
	}

	var override core.PolicyOverride
	if len(admins) > 0 {
		override = core.NewDefaultPolicyOverride(admins...)
	}

	var grantTTL, livenessInterval time.Duration
	if cfg.Authority != nil {
		grantTTL = time.Duration(cfg.Authority.GrantTTLSeconds) * time.Second
		livenessInterval = time.Duration(cfg.Authority.LivenessIntervalSeconds) * time.Second
	}

	var authority *core.Authority
	actions := action.NewRegistry(logger.WithSystem("actions").Logger, func() {
		if authority != nil {
			authority.NotifyActionSetChanged()
		}
	})

	authority = core.NewAuthority(core.AuthorityConfig{
		Logger:           logger.WithSystem("authority").Logger,
		Actions:          actions,
		Resolver:         monitor,
		Checker:          sessionmon.NewUnixProcessChecker(),
		Override:         override,
		Clock:            core.SystemClock(),
		GrantTTL:         grantTTL,
		LivenessInterval: livenessInterval,
		Audit:            auditor,
	})

	return authority, actions, nil
}

func registerActions(cfg *config.Config, actions *action.Registry) error {
	for _, block := range cfg.Actions {
		active, inactive, implicitAny, err := block.ImplicitLevels()
		if err != nil {
			return err
		}

		err = actions.Register(action.Definition{
			ID:                block.ID,
			Message:           block.Message,
			IconName:          block.IconName,
			LocalizedMessages: block.LocalizedMessages,
			ImplicitActive:    active,
			ImplicitInactive:  inactive,
			ImplicitAny:       implicitAny,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// seedDevMonitor wires up a single local active session owned by the
// invoking user, so checks against the dev authority resolve.
func seedDevMonitor(monitor *sessionmon.StaticMonitor) {
	session := core.SessionSubject{ID: "dev"}
	self := core.ProcessSubject{Pid: int32(os.Getpid())}

	monitor.SetUser(self, core.UserIdentity(uint32(os.Getuid())))
	monitor.SetSession(self, session)
	monitor.SetSessionState(session, true, true)
}
