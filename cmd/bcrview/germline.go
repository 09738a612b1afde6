package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bcrlab/bcrview/internal/germline"
)

func newGermlineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "germline",
		Short: "Manage germline reference files",
	}
	cmd.AddCommand(newGermlineDownloadCmd())
	return cmd
}

type downloadOptions struct {
	baseURL string
	species string
	dir     string
	force   bool
}

func newGermlineDownloadCmd() *cobra.Command {
	var opts downloadOptions
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download germline V-gene references and region tables",
		Long: `Download the amino-acid germline reference FASTA and the heavy and light
chain region tables of a species from a base URL into germline.dir.

Files downloaded:
  - imgt_aa_<species>_ig_v.fasta
  - <species>_aa_hc.csv
  - <species>_aa_lc.csv`,
		Example: `  bcrview germline download --url https://example.org/germline --species human
  bcrview germline download --url https://example.org/germline --dir /data/germline`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.dir == "" {
				opts.dir = viper.GetString("germline.dir")
			}
			return runGermlineDownload(cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseURL, "url", "", "base URL holding the reference files (required)")
	cmd.Flags().StringVar(&opts.species, "species", "human", "species")
	cmd.Flags().StringVar(&opts.dir, "dir", "", "destination directory (default from germline.dir)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "replace files that already exist")
	cmd.MarkFlagRequired("url")
	return cmd
}

func runGermlineDownload(w io.Writer, opts downloadOptions) error {
	if err := os.MkdirAll(opts.dir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %s: %w", opts.dir, err)
	}

	ann := germline.NewAnnotator(opts.dir)
	base := strings.TrimSuffix(opts.baseURL, "/")

	fmt.Fprintf(w, "Downloading %s germline references...\n", opts.species)
	fmt.Fprintf(w, "Destination: %s\n\n", opts.dir)

	fastaPath := ann.FASTAPath(opts.species)
	if err := downloadFile(w, base+"/"+filepath.Base(fastaPath), fastaPath, opts.force); err != nil {
		return fmt.Errorf("downloading reference FASTA: %w", err)
	}

	// Region tables are optional: germline rows are still shown without them.
	for _, c := range []germline.Chain{germline.Heavy, germline.Light} {
		p := ann.RegionPath(opts.species, c)
		if err := downloadFile(w, base+"/"+filepath.Base(p), p, opts.force); err != nil {
			fmt.Fprintf(w, "Warning: could not download %s region table: %v\n", c, err)
		}
	}

	fmt.Fprintf(w, "\nDownload complete!\n")
	return nil
}

// downloadFile downloads a file from URL to the destination path with progress.
func downloadFile(w io.Writer, url, destPath string, force bool) error {
	if info, err := os.Stat(destPath); err == nil && !force {
		fmt.Fprintf(w, "  %s already exists (%s), skipping\n", filepath.Base(destPath), formatSize(info.Size()))
		return nil
	}

	fmt.Fprintf(w, "  Downloading %s...\n", filepath.Base(destPath))

	client := &http.Client{
		Timeout: 10 * time.Minute,
	}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %s", resp.Status)
	}

	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	var downloaded int64
	pw := &progressWriter{
		out:        w,
		total:      resp.ContentLength,
		downloaded: &downloaded,
		lastPrint:  time.Now(),
	}

	_, err = io.Copy(f, io.TeeReader(resp.Body, pw))
	f.Close()

	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("download failed: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename file: %w", err)
	}

	fmt.Fprintf(w, "    Done: %s\n", formatSize(downloaded))
	return nil
}

// progressWriter tracks download progress.
type progressWriter struct {
	out        io.Writer
	total      int64
	downloaded *int64
	lastPrint  time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n := len(p)
	*pw.downloaded += int64(n)

	// Print progress every second
	if time.Since(pw.lastPrint) > time.Second {
		if pw.total > 0 {
			pct := float64(*pw.downloaded) / float64(pw.total) * 100
			fmt.Fprintf(pw.out, "\r    Progress: %s / %s (%.1f%%)  ",
				formatSize(*pw.downloaded), formatSize(pw.total), pct)
		} else {
			fmt.Fprintf(pw.out, "\r    Progress: %s  ", formatSize(*pw.downloaded))
		}
		pw.lastPrint = time.Now()
	}

	return n, nil
}

// formatSize formats bytes as human-readable size.
func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
