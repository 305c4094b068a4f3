// Command indexer is the offline counterpart to the streaming server: it
// walks a video library tree and writes the data.txt sidecar for each leaf
// directory, and can print an existing sidecar's signature. It replaces
// chopper.c's getopt_long-driven flag parsing and get_sign.c's standalone
// tool with a single cobra-based binary.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pulsejet/go-vod-chop/internal/indexer"
	"github.com/pulsejet/go-vod-chop/internal/logging"
	"github.com/pulsejet/go-vod-chop/internal/sidecar"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		path     string
		dirs     []string
		workers  int
		logLevel string
	)

	root := &cobra.Command{
		Use:   "indexer",
		Short: "Build data.txt sidecars for a video library",
	}

	scan := &cobra.Command{
		Use:   "scan",
		Short: "Scan a library path and write a sidecar for each leaf directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}

			log := logging.New(logLevel)
			ix := indexer.New(log)

			if err := ix.ScanRootConcurrent(path, dirs, workers); err != nil {
				return fmt.Errorf("scanning %s: %w", path, err)
			}
			return nil
		},
	}
	scan.Flags().StringVarP(&path, "path", "p", "", "path to analyse")
	scan.Flags().StringSliceVarP(&dirs, "dirs", "d", nil, "watch for a specific set of directories in the path")
	scan.Flags().IntVarP(&workers, "workers", "w", 1, "number of directories to scan concurrently")

	sign := &cobra.Command{
		Use:   "sign",
		Short: "Print the content signature stored in a directory's sidecar",
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--path is required")
			}

			rec, err := sidecar.ParseFile(path + "/" + sidecar.Filename)
			if err != nil {
				return fmt.Errorf("reading sidecar: %w", err)
			}
			fmt.Printf("SHA-1 sign: %s\n", rec.Sign)
			return nil
		},
	}
	sign.Flags().StringVarP(&path, "path", "p", "", "sign path")

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.AddCommand(scan, sign)
	return root
}
