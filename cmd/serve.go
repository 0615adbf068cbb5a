package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/touch-guard/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control API",
	Long: `Start the touch-guard web server.
The server exposes endpoints to train labels, start and stop detection,
inspect stored examples and follow progress over server-sent events.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (default WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (default WEB_HOST)")
	serveCmd.Flags().Bool("detect", false, "Start detection as soon as the server is up")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig(cmd)
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := web.NewServer(cfg, rt.session, rt.logger.Named("web"))

	if mustGetBool(cmd, "detect") {
		if err := rt.session.StartInference(context.Background()); err != nil {
			return fmt.Errorf("starting detection: %w", err)
		}
	}

	go func() {
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			rt.logger.Warn("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting touch-guard API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	if cfg.Web.APIToken == "" {
		fmt.Println("Warning: WEB_API_TOKEN is empty, the API is unauthenticated")
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
