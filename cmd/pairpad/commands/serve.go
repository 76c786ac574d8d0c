package commands

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pairpad/pairpad/internal/config"
	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/server"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pairpad collaboration server",
	Long: `Start the pairpad server: websocket collaboration transport,
administrative API, event stream and metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "", "Hostname to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Directory to load project config from")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}

	// Flags override config.
	if servePort != 0 {
		appConfig.Port = servePort
	}
	if serveHostname != "" {
		appConfig.Hostname = serveHostname
	}
	if logLevel == "" {
		logging.Init(logging.Config{
			Level:  logging.ParseLevel(appConfig.LogLevel),
			Pretty: prettyLogs,
		})
	}

	serverConfig := server.DefaultConfig()
	serverConfig.Port = appConfig.Port
	serverConfig.Hostname = appConfig.Hostname
	if appConfig.EnableCORS != nil {
		serverConfig.EnableCORS = *appConfig.EnableCORS
	}

	// No completion backend is wired in by default; the assist endpoint
	// answers 503 until one is configured.
	srv := server.New(serverConfig, appConfig, nil)

	go func() {
		logging.Info().
			Str("version", Version).
			Str("addr", appConfig.Hostname).
			Int("port", appConfig.Port).
			Msg("pairpad server listening")
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logging.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
