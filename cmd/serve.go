package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/floodgate-dl/floodgate/internal/clipboard"
	"github.com/floodgate-dl/floodgate/internal/config"
	"github.com/floodgate-dl/floodgate/internal/engine"
	"github.com/floodgate-dl/floodgate/internal/history"
	"github.com/floodgate-dl/floodgate/internal/logging"
	"github.com/floodgate-dl/floodgate/internal/transport/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run floodgate as a background server behind the HTTP control surface",
	RunE: func(cmd *cobra.Command, args []string) error {
		isMaster, err := AcquireLock()
		if err != nil {
			return fmt.Errorf("acquire server lock: %w", err)
		}
		if !isMaster {
			return fmt.Errorf("a floodgate server is already running")
		}
		defer func() { _ = ReleaseLock() }()

		savePID()
		defer removePID()

		logDir := config.GetStateDir()
		log, closeLog, err := logging.New(logDir, viperInstance.GetBool("debug"))
		if err != nil {
			return fmt.Errorf("init logging: %w", err)
		}
		defer func() { _ = closeLog() }()

		settings := config.LoadEngineSettings(viperInstance)
		manager, err := engine.NewManager(settings, log)
		if err != nil {
			return fmt.Errorf("init engine: %w", err)
		}

		historyStore, err := history.Open(filepath.Join(logDir, "history.db"))
		if err != nil {
			log.Warn().Err(err).Msg("history ledger unavailable, completed downloads won't be recorded")
		} else {
			manager.AttachHistory(historyStore)
			defer historyStore.Close()
		}

		addr, port, err := reserveAddr(settings.ServerPort)
		if err != nil {
			return err
		}

		server := httpapi.New(manager, log)
		go func() {
			if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("control surface exited")
			}
		}()

		prefs, err := config.LoadPreferences()
		if err == nil && prefs.ClipboardMonitor {
			go func() {
				_ = clipboard.Watch(cmd.Context(), func(url string) {
					log.Info().Str("url", url).Msg("clipboard URL detected")
				})
			}()
		}

		color.Green("floodgate server listening on port %d", port)
		fmt.Println("press ctrl+c to exit")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		fmt.Println("\nshutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		manager.Shutdown()
		return nil
	},
}

// reserveAddr picks the control surface's listen address. An explicit port
// is used as-is; otherwise a free port is probed by briefly binding it,
// then handed to echo as a literal address.
func reserveAddr(explicitPort int) (string, int, error) {
	if explicitPort > 0 {
		return fmt.Sprintf("127.0.0.1:%d", explicitPort), explicitPort, nil
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", 0, fmt.Errorf("reserve control surface port: %w", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return fmt.Sprintf("127.0.0.1:%d", port), port, nil
}
