package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/bcrlab/bcrview/internal/output"
	"github.com/bcrlab/bcrview/internal/phylo"
	"github.com/bcrlab/bcrview/internal/pipeline"
	"github.com/bcrlab/bcrview/internal/server"
)

type pairOptions struct {
	chain      string
	format     string
	outputFile string
}

func (o *pairOptions) addChainFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.chain, "chain", "hc", "chain: hc or lc")
}

func (o *pairOptions) addOutputFlag(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.outputFile, "output", "o", "", "output file (default: stdout)")
}

// pairEntry resolves <project> <hc> <lc> and loads the gene-pair entry.
func pairEntry(ctx context.Context, a *app, args []string) (*pipeline.Entry, error) {
	p, err := resolveProject(ctx, a.store, args[0])
	if err != nil {
		return nil, err
	}
	species := p.Species
	if species == "" {
		species = server.DefaultSpecies
	}
	pair := pipeline.GenePair{Project: p.Name, HCGene: args[1], LCGene: args[2]}
	return a.orchestrator().Entry(ctx, pair, species)
}

// withOutput runs fn against the output file or stdout.
func withOutput(cmd *cobra.Command, path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

var alignFormats = []string{"json", "tsv", "fasta", "xlsx"}

func newAlignCmd() *cobra.Command {
	var opts pairOptions
	cmd := &cobra.Command{
		Use:   "align <project> <hc_gene> <lc_gene>",
		Short: "Compute (or load) the alignment of a gene pair",
		Example: `  bcrview align donor1 'IGHV1-2*02' 'IGKV1-5*03'
  bcrview align donor1 'IGHV1-2*02' 'IGKV1-5*03' -f tsv --chain lc
  bcrview align donor1 'IGHV1-2*02' 'IGKV1-5*03' -f xlsx -o pair.xlsx`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := pipeline.ParseChain(opts.chain)
			if err != nil {
				return usageError{err}
			}
			if !slices.Contains(alignFormats, opts.format) {
				return usageError{fmt.Errorf("unknown output format %q", opts.format)}
			}
			e, err := pairEntry(cmd.Context(), a, args)
			if err != nil {
				return err
			}

			return withOutput(cmd, opts.outputFile, func(w io.Writer) error {
				switch opts.format {
				case "json":
					enc := json.NewEncoder(w)
					enc.SetIndent("", "  ")
					return enc.Encode(e)
				case "tsv":
					return output.WriteTSV(w, e, c)
				case "fasta":
					return pipeline.WriteFASTA(w, e.View(c))
				case "xlsx":
					return output.WriteXLSX(w, e)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "json", "output format: json, tsv, fasta, xlsx")
	opts.addChainFlag(cmd)
	opts.addOutputFlag(cmd)
	return cmd
}

func newTreeCmd() *cobra.Command {
	var opts pairOptions
	cmd := &cobra.Command{
		Use:   "tree <project> <hc_gene> <lc_gene>",
		Short: "Print the neighbor-joining tree of a gene pair in Newick format",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := pipeline.ParseChain(opts.chain)
			if err != nil {
				return usageError{err}
			}
			e, err := pairEntry(cmd.Context(), a, args)
			if err != nil {
				return err
			}
			return withOutput(cmd, opts.outputFile, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, phylo.TreeFromEntry(e, c))
				return err
			})
		},
	}
	opts.addChainFlag(cmd)
	opts.addOutputFlag(cmd)
	return cmd
}

func newMatrixCmd() *cobra.Command {
	var opts pairOptions
	cmd := &cobra.Command{
		Use:   "matrix <project> <hc_gene> <lc_gene>",
		Short: "Print the pairwise distance matrix of a gene pair as JSON",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := pipeline.ParseChain(opts.chain)
			if err != nil {
				return usageError{err}
			}
			e, err := pairEntry(cmd.Context(), a, args)
			if err != nil {
				return err
			}
			m, err := phylo.DistanceMatrixFromEntry(e, c)
			if err != nil {
				return err
			}
			return withOutput(cmd, opts.outputFile, func(w io.Writer) error {
				return json.NewEncoder(w).Encode(m)
			})
		},
	}
	opts.addChainFlag(cmd)
	opts.addOutputFlag(cmd)
	return cmd
}
