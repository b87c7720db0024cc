package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rivermist/hlsdl/internal/config"
	"github.com/rivermist/hlsdl/internal/engine"
	"github.com/rivermist/hlsdl/internal/progress"
	"github.com/rivermist/hlsdl/internal/registry"
)

var (
	downloadURL         string
	downloadOutputDir   string
	downloadName        string
	downloadConcurrency int
	downloadMaxRetries  int
	downloadHeaderSet   string
	downloadHeaders     []string
	downloadID          string
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download an HLS playlist to a single MP4",
	Long: `Download every segment referenced by an M3U8 playlist, decrypting
AES-128-CBC segments as declared, then remux the result to MP4.

Examples:
  hlsdl download --url https://example.com/v.m3u8 --name movie
  hlsdl download --url https://example.com/v.m3u8 --header "Referer: https://example.com" --concurrency 16
  hlsdl download --url https://example.com/v.m3u8 --id resume-me   # rerun with the same --id to resume`,
	RunE: runDownload,
}

func init() {
	downloadCmd.Flags().StringVar(&downloadURL, "url", "", "playlist URL (required)")
	downloadCmd.Flags().StringVar(&downloadOutputDir, "output-dir", "", "directory for the finished MP4 (defaults to config.yml's output_dir)")
	downloadCmd.Flags().StringVar(&downloadName, "name", "", "output basename, without extension (defaults to the task id)")
	downloadCmd.Flags().IntVar(&downloadConcurrency, "concurrency", 0, "parallel segment fetches (defaults to config.yml's concurrency)")
	downloadCmd.Flags().IntVar(&downloadMaxRetries, "max-retries", 0, "per-segment retry attempts before cancelling (defaults to config.yml's max_retries)")
	downloadCmd.Flags().StringVar(&downloadHeaderSet, "header-set", "", "named header bundle from config.yml")
	downloadCmd.Flags().StringArrayVar(&downloadHeaders, "header", nil, "extra request header as Name: Value (repeatable)")
	downloadCmd.Flags().StringVar(&downloadID, "id", "", "task id, used as the temp directory name (defaults to a random id; reuse it to resume)")
	downloadCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	id := downloadID
	if id == "" {
		id = uuid.New().String()
	}

	outputDir := downloadOutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	concurrency := downloadConcurrency
	if concurrency <= 0 {
		concurrency = cfg.Concurrency
	}
	maxRetries := downloadMaxRetries
	if maxRetries <= 0 {
		maxRetries = cfg.MaxRetries
	}

	headers := mergeHeaders(cfg.HeaderBundle(downloadHeaderSet), downloadHeaders)

	name := downloadName
	if name == "" {
		name = id
	}

	reg := registry.New()
	tempDir := outputDir + "/temp_" + id
	task := reg.Add(id, tempDir)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nCancelling...")
		task.Cancel()
	}()

	params := engine.Params{
		ID:          id,
		URL:         downloadURL,
		Name:        name,
		OutputDir:   outputDir,
		TempDir:     tempDir,
		Concurrency: concurrency,
		MaxRetries:  maxRetries,
		Headers:     headers,
	}

	snapshots, results, errs := engine.Download(ctx, params, task)
	printSnapshots(snapshots)

	select {
	case result := <-results:
		color.Green("\nSaved %s\n", result.OutputPath)
		return nil
	case err := <-errs:
		return fmt.Errorf("download failed (task %s is resumable with --id %s): %w", id, id, err)
	}
}

// printSnapshots renders each progress.Snapshot as a single status line,
// matching the teacher's colorized stderr/stdout reporting idiom.
func printSnapshots(snapshots <-chan progress.Snapshot) {
	for snap := range snapshots {
		line := fmt.Sprintf("\r  %3d%%  %s  %d/%d segments  %s", snap.Progress, snap.Speed, snap.Chunks, snap.TotalChunks, statusLabel(snap.Status))
		switch snap.Status {
		case progress.StatusCancelled:
			color.New(color.FgYellow).Print(line)
		case progress.StatusMerging:
			color.New(color.FgCyan).Print(line)
		default:
			fmt.Print(line)
		}
	}
	fmt.Println()
}

func statusLabel(status int) string {
	switch status {
	case progress.StatusCancelled:
		return "cancelled"
	case progress.StatusPaused:
		return "paused"
	case progress.StatusMerging:
		return "merging"
	default:
		return "downloading"
	}
}

// mergeHeaders layers --header flags (Name: Value, repeatable) on top of a
// named config header bundle; explicit flags win on key collision.
func mergeHeaders(bundle map[string]string, flags []string) map[string]string {
	headers := make(map[string]string, len(bundle)+len(flags))
	for k, v := range bundle {
		headers[k] = v
	}
	for _, raw := range flags {
		name, value, ok := strings.Cut(raw, ":")
		if !ok {
			continue
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil
	}
	return headers
}
