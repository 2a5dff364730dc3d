package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/escape-velocity-ventures/orbit/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration daemon",
	Long: `Serve assembles the runtime from configuration and exposes it over
the HTTP/WebSocket gateway until interrupted.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	zl := a.log.Zerolog()

	if a.sweeper != nil {
		a.sweeper.Start()
	}
	if a.watcher != nil {
		a.watcher.Start()
	}

	if !a.cfg.Gateway.Enabled {
		return fmt.Errorf("gateway is disabled in configuration, nothing to serve")
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:         a.cfg.Gateway.Host,
		Port:         a.cfg.Gateway.Port,
		SharedSecret: a.cfg.Gateway.SharedSecret,
		Runtime:      a.runtime,
		Sessions:     a.manager,
		Router:       a.router,
		Logger:       zl,
	})
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	zl.Info().Str("signal", sig.String()).Msg("Shutting down")

	return server.Stop()
}
