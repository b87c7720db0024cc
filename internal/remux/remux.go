// Package remux invokes an external ffmpeg binary to concatenate completed
// segment files into a single output. The remux collaborator is specified
// only as an invocation contract: this package builds the concat list and
// shells out, but never bundles or embeds ffmpeg itself.
package remux

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Available reports whether an ffmpeg binary is reachable on PATH.
func Available() bool {
	_, err := exec.LookPath("ffmpeg")
	return err == nil
}

// Remux concatenates tsFiles, in the order given, into outputPath using
// ffmpeg's concat demuxer with stream copy (no re-encoding). Callers are
// responsible for ordering tsFiles by ascending segment index beforehand;
// this function does not re-sort them.
func Remux(tempDir string, tsFiles []string, outputPath string) error {
	if !Available() {
		return fmt.Errorf("remux: ffmpeg not found in PATH")
	}
	if len(tsFiles) == 0 {
		return fmt.Errorf("remux: no segment files to concatenate")
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("remux: creating output directory: %w", err)
	}

	concatPath := filepath.Join(tempDir, "concat.txt")
	if err := writeConcatList(concatPath, tsFiles); err != nil {
		return err
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", concatPath,
		"-c", "copy",
		outputPath,
	}
	log.Printf("[remux] command: ffmpeg %s", strings.Join(args, " "))

	cmd := exec.Command("ffmpeg", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		log.Printf("[remux] ffmpeg failed: %v\noutput:\n%s", err, output)
		return fmt.Errorf("remux: ffmpeg exited with error: %w", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		return fmt.Errorf("remux: output file not created: %w", err)
	}
	log.Printf("[remux] wrote %s (%d bytes) from %d segments", outputPath, info.Size(), len(tsFiles))

	return nil
}

// writeConcatList writes ffmpeg's concat-demuxer list format, one
// "file '<path>'" line per entry, in the order given.
func writeConcatList(concatPath string, tsFiles []string) error {
	var b strings.Builder
	for _, f := range tsFiles {
		fmt.Fprintf(&b, "file '%s'\n", f)
	}
	if err := os.WriteFile(concatPath, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("remux: writing %s: %w", concatPath, err)
	}
	return nil
}
