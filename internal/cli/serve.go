package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivermist/hlsdl/internal/config"
	"github.com/rivermist/hlsdl/internal/server"
)

var (
	servePort      int
	serveOutputDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an HTTP server accepting download tasks",
	Long: `Start an HTTP server wrapping the download core.

API:
  POST   /tasks                 queue a download, returns {id}
  GET    /tasks/:id/events      server-sent progress events
  POST   /tasks/:id/pause       suspend at the next chunk checkpoint
  POST   /tasks/:id/resume      clear a pause
  POST   /tasks/:id/cancel      cancel, keeping the temp dir for resume
  DELETE /tasks/:id             cancel and purge the temp dir`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "HTTP listen port")
	serveCmd.Flags().StringVarP(&serveOutputDir, "output-dir", "o", "", "output directory for finished downloads (defaults to config.yml's output_dir)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	outputDir := serveOutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	srv := server.New(cfg, outputDir)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	addr := fmt.Sprintf(":%d", servePort)
	log.Printf("hlsdl server listening on %s (output dir %s)", addr, outputDir)
	if err := srv.ListenAndServe(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
