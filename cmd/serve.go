package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/server"
	"github.com/cwbudde/pixelsum/internal/store"
)

var (
	serveAddr      string
	serveDataDir   string
	serveCacheSize int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long: `Serves benchmark jobs with live progress (SSE) and region queries over
uploaded or generated buffers. Reports are saved under --data-dir.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for report storage")
	serveCmd.Flags().IntVar(&serveCacheSize, "cache-size", server.DefaultCacheSize, "Number of built engines kept in memory")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	reportStore, err := store.NewFSStore(serveDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	s := server.NewServer(serveAddr, reportStore, serveCacheSize)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sig:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}
