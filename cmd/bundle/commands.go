package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/meigma/bundle"
)

func (a *app) buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <source-dir>",
		Short: "Package a directory into a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := a.v.GetString("output")
			if out == "" {
				return fmt.Errorf("%w: an output container is required (--output, BUNDLE_OUTPUT or config)", bundle.ErrInvalidConfig)
			}
			opts, err := a.builderOptions()
			if err != nil {
				return err
			}
			b, err := bundle.NewBuilder(out, opts...)
			if err != nil {
				return err
			}
			if err := b.AddFolderContext(cmd.Context(), args[0], a.v.GetString("folder")); err != nil {
				return err
			}
			stats, err := b.Commit(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d entries (%d files, %d dirs), %d bytes, %s\n",
				out, stats.Entries, stats.Files, stats.Dirs, stats.Size, stats.Digest)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "container file to write")
	f.String("folder", "", "only package this folder, relative to the source directory")
	f.String("compression", bundle.CompressionZstd.String(), "compressor (zstd, gzip)")
	f.String("level", bundle.LevelDefault.String(), "compression level (fastest, default, better, best)")
	f.Bool("in-memory", false, "stage the container in memory and write it once")
	return cmd
}

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <container>",
		Short: "List the entries of a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newReader(args[0])
			if err != nil {
				return err
			}
			entries, err := r.List(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, e := range entries {
				name := e.Name
				if e.IsDir() {
					name += "/"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", e.Kind, e.Size, e.ModTime.UTC().Format(time.RFC3339), name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <container> <name> <dest>",
		Short: "Extract one file from a container",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newReader(args[0])
			if err != nil {
				return err
			}
			return r.ExtractFile(cmd.Context(), args[1], args[2])
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync <container> <dir>",
		Short: "Synchronize a directory with a container",
		Long: `Synchronize a directory with a container.

By default files are compared by content fingerprint and only files that
differ are rewritten. With --fast, files whose size and modification time
match the entry are assumed up to date. Files not in the container are
never removed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.newReader(args[0])
			if err != nil {
				return err
			}
			mode := bundle.SyncHash
			if a.v.GetBool("fast") {
				mode = bundle.SyncFast
			}
			stats, err := r.SyncTo(cmd.Context(), args[1], mode, bundle.SyncWithWorkers(a.v.GetInt("workers")))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %s: %d written, %d unchanged, %d dirs, %d skipped, %d bytes\n",
				args[1], stats.Written, stats.Unchanged, stats.Dirs, stats.Skipped, stats.Bytes)
			return nil
		},
	}

	f := cmd.Flags()
	f.Bool("fast", false, "compare size and modification time instead of content")
	f.Int("workers", 1, "number of files to reconcile concurrently")
	return cmd
}
