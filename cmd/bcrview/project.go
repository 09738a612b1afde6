package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bcrlab/bcrview/internal/airr"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/registry"
)

func newProjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "Manage registered repertoires",
		Example: `  bcrview project add donor1 --airr airr_rearrangement.tsv --species human
  bcrview project list
  bcrview project delete donor1`,
	}
	cmd.AddCommand(newProjectAddCmd(), newProjectListCmd(), newProjectDeleteCmd())
	return cmd
}

type addOptions struct {
	airrPath  string
	author    string
	species   string
	adataPath string
}

func newProjectAddCmd() *cobra.Command {
	var opts addOptions
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a project from an AIRR rearrangement TSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()
			p, n, err := addProject(cmd.Context(), a, args[0], opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered project %d %q with %d cells\n", p.ID, p.Name, n)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.airrPath, "airr", "", "AIRR rearrangement TSV, plain or gzipped (required)")
	cmd.Flags().StringVar(&opts.author, "author", "", "project author")
	cmd.Flags().StringVar(&opts.species, "species", "human", "germline species")
	cmd.Flags().StringVar(&opts.adataPath, "adata", "", "optional expression data path, recorded only")
	cmd.MarkFlagRequired("airr")
	return cmd
}

// addProject copies the AIRR file into the project directory, merges its
// contigs into cells and registers both.
func addProject(ctx context.Context, a *app, name string, opts addOptions) (*registry.Project, int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// The directory is shared by names that sanitize alike.
	if err := a.store.Available(ctx, name); err != nil {
		return nil, 0, err
	}
	cells, err := airr.ReadFile(opts.airrPath)
	if err != nil {
		return nil, 0, err
	}

	dir := filepath.Join(a.cfg.DataDir, pipeline.Sanitize(name))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, 0, fmt.Errorf("create project directory: %w", err)
	}
	vdjPath := filepath.Join(dir, filepath.Base(opts.airrPath))
	if err := copyFile(opts.airrPath, vdjPath); err != nil {
		return nil, 0, err
	}

	p := &registry.Project{
		Name:          name,
		Author:        opts.author,
		DirectoryPath: dir,
		VDJPath:       vdjPath,
		AdataPath:     opts.adataPath,
		Species:       opts.species,
	}
	if err := a.store.Create(ctx, p); err != nil {
		return nil, 0, err
	}
	if err := a.store.LoadCells(ctx, p.ID, cells); err != nil {
		if _, perr := a.store.Purge(ctx, p.ID); perr != nil {
			a.logger.Warn("rollback failed", zap.Int64("project_id", p.ID), zap.Error(perr))
		}
		return nil, 0, err
	}
	return p, len(cells), nil
}

func copyFile(src, dst string) error {
	abs1, err1 := filepath.Abs(src)
	abs2, err2 := filepath.Abs(dst)
	if err1 == nil && err2 == nil && abs1 == abs2 {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func newProjectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			projects, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tAUTHOR\tCREATED\tSPECIES\tDIRECTORY")
			for _, p := range projects {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					p.ID, p.Name, p.Author, p.CreationDate.Format("2006-01-02"), p.Species, p.DirectoryPath)
			}
			return tw.Flush()
		},
	}
}

func newProjectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a project, its cells and its directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			p, err := resolveProject(cmd.Context(), a.store, args[0])
			if err != nil {
				return err
			}
			if _, err := a.store.Purge(cmd.Context(), p.ID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted project %d %q\n", p.ID, p.Name)
			return nil
		},
	}
}

// resolveProject looks a project up by name, then by numeric ID.
func resolveProject(ctx context.Context, store *registry.Store, ref string) (*registry.Project, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	p, err := store.GetByName(ctx, ref)
	if err == nil || !errors.Is(err, registry.ErrNotFound) {
		return p, err
	}
	id, perr := strconv.ParseInt(ref, 10, 64)
	if perr != nil {
		return nil, err
	}
	return store.Get(ctx, id)
}
