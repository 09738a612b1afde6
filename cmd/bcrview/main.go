// Package main provides the bcrview command-line tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/bcrlab/bcrview/internal/config"
)

// Exit codes
const (
	ExitSuccess = 0
	ExitError   = 1
	ExitUsage   = 2
)

// Version information (set at build time)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if isUsageError(err) {
			return ExitUsage
		}
		return ExitError
	}
	return ExitSuccess
}

type usageError struct{ error }

func isUsageError(err error) bool {
	_, ok := err.(usageError)
	return ok
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "bcrview",
		Short: "Explore B-cell receptor repertoires",
		Long: `bcrview registers AIRR repertoires and serves per gene-pair analyses:
alignments with consensus and germline regions, neighbor-joining trees,
distance matrices, sequence logos and table downloads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (%s) built %s", version, commit, date),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.Init(viper.GetViper(), cfgFile)
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/"+config.FileName+")")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	root.PersistentFlags().String("data-dir", "", "root of project directories and alignment caches")
	viper.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("data_dir", root.PersistentFlags().Lookup("data-dir"))

	root.AddCommand(
		newServeCmd(),
		newProjectCmd(),
		newAlignCmd(),
		newTreeCmd(),
		newMatrixCmd(),
		newConfigCmd(),
		newGermlineCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bcrview version %s (%s) built %s\n", version, commit, date)
		},
	}
}
