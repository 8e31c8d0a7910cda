package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/rkfit/internal/server"
	"github.com/cwbudde/rkfit/internal/store"
)

var (
	serveAddr    string
	serveDataDir string
	serveRoot    string
	serveNoStore bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP fitting server",
	Long: `Runs fits submitted over HTTP as background jobs. Progress is available
by polling or as a server-sent event stream; finished fits are stored under
the data directory unless --no-store is given. Jobs may name a CSV file only
inside --data-root.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Base directory for stored fits (default from config)")
	serveCmd.Flags().StringVar(&serveRoot, "data-root", "", "Directory that dataPath jobs may read CSV files from (default from config; empty allows inline data only)")
	serveCmd.Flags().BoolVar(&serveNoStore, "no-store", false, "Keep fits in memory only")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	c := *cfg
	if serveAddr != "" {
		c.Server.Addr = serveAddr
	}
	if serveDataDir != "" {
		c.Store.DataDir = serveDataDir
	}
	if serveRoot != "" {
		c.Server.DataRoot = serveRoot
	}

	var st *store.FSStore
	if !serveNoStore {
		var err error
		st, err = store.NewFSStore(c.Store.DataDir)
		if err != nil {
			return err
		}
		slog.Info("Storing fits", "dir", st.BaseDir())
	}

	srv := server.NewServer(&c, st)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
