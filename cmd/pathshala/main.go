package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pathshala-app/pathshala/internal/auth"
	"github.com/pathshala-app/pathshala/internal/changelog"
	"github.com/pathshala-app/pathshala/internal/config"
	"github.com/pathshala-app/pathshala/internal/connectivity"
	"github.com/pathshala-app/pathshala/internal/database"
	"github.com/pathshala-app/pathshala/internal/logging"
	"github.com/pathshala-app/pathshala/internal/remote"
	"github.com/pathshala-app/pathshala/internal/server"
	"github.com/pathshala-app/pathshala/internal/syncer"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "pathshala",
		Short: "Pathshala study companion services",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the offline-first sync daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(cmd.Context())
		},
	}

	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Run the remote sync authority",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuthority(cmd.Context())
		},
	}

	rootCmd.AddCommand(runCmd, remoteCmd)
	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Duration("sync-interval", defaults.GetDuration("sync.interval"), "Periodic sync interval")
	cmd.PersistentFlags().Duration("pending-poll-interval", defaults.GetDuration("sync.pending_poll_interval"), "Pending count poll interval")
	cmd.PersistentFlags().Duration("simulated-latency", defaults.GetDuration("sync.simulated_latency"), "Simulated remote latency")
	cmd.PersistentFlags().String("remote-url", defaults.GetString("remote.url"), "Sync authority base URL (empty uses the simulated remote)")
	cmd.PersistentFlags().String("remote-address", defaults.GetString("remote.address"), "Sync authority listen address")
	cmd.PersistentFlags().String("signing-secret", "", "Sync token signing secret (overrides env)")
	cmd.PersistentFlags().String("device-name", defaults.GetString("device.name"), "Device name reported to the sync authority")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "sync.interval", "sync-interval")
	bindFlag(cmd, "sync.pending_poll_interval", "pending-poll-interval")
	bindFlag(cmd, "sync.simulated_latency", "simulated-latency")
	bindFlag(cmd, "remote.url", "remote-url")
	bindFlag(cmd, "remote.address", "remote-address")
	bindFlag(cmd, "sync.signing_secret", "signing-secret")
	bindFlag(cmd, "device.name", "device-name")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runClient(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	changeLog, err := changelog.NewLog(changelog.LogConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(true)

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	remoteClient, err := buildRemoteClient(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}

	manager, err := syncer.NewManager(syncer.ManagerConfig{
		ChangeLog:           changeLog,
		Remote:              remoteClient,
		Connectivity:        monitor,
		Database:            db,
		SyncInterval:        appConfig.SyncInterval,
		PendingPollInterval: appConfig.PendingPollInterval,
		Logger:              logger,
	})
	if err != nil {
		return err
	}

	snapshots, cancelSnapshots := manager.Subscribe(signalCtx)
	defer cancelSnapshots()
	go logSnapshots(signalCtx, snapshots, logger)

	logger.Info("sync daemon starting",
		zap.String("database_path", appConfig.DatabasePath),
		zap.Duration("sync_interval", appConfig.SyncInterval))
	if err := manager.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("sync daemon stopped")
	return nil
}

func logSnapshots(ctx context.Context, snapshots <-chan syncer.Snapshot, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot := <-snapshots:
			logger.Info("sync status changed",
				zap.String("status", string(snapshot.Status)),
				zap.Int("pending", snapshot.PendingCount),
				zap.Bool("online", snapshot.IsOnline))
		}
	}
}

func buildRemoteClient(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (remote.Client, error) {
	if strings.TrimSpace(appConfig.RemoteURL) == "" {
		logger.Info("using simulated remote",
			zap.Duration("latency", appConfig.SimulatedLatency))
		return remote.NewSimulatedClient(remote.SimulatedClientConfig{
			Latency: appConfig.SimulatedLatency,
		}), nil
	}

	deviceName := strings.TrimSpace(appConfig.DeviceName)
	if deviceName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		deviceName = hostname
	}

	token, err := remote.RequestDeviceToken(ctx, appConfig.RemoteURL, deviceName, nil)
	if err != nil {
		return nil, err
	}
	logger.Info("registered with sync authority",
		zap.String("remote_url", appConfig.RemoteURL),
		zap.String("device_name", deviceName))
	return remote.NewHTTPClient(remote.HTTPClientConfig{
		BaseURL: appConfig.RemoteURL,
		Token:   token,
		Logger:  logger,
	})
}

func runAuthority(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	if strings.TrimSpace(appConfig.SyncSigningSecret) == "" {
		return errors.New("sync.signing_secret is required to run the authority")
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SyncSigningSecret),
		Issuer:        "pathshala-sync",
		Audience:      "pathshala-authority",
	})

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenManager,
		Journal:      server.NewJournal(server.JournalConfig{}),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.RemoteAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("sync authority starting", zap.String("address", appConfig.RemoteAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
