package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/henrycmeen/dimo/internal/checksum"
	"github.com/henrycmeen/dimo/internal/metsupdate"
	"github.com/henrycmeen/dimo/internal/reconcile"
	"github.com/henrycmeen/dimo/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// flag name -> viper key
var updateMetsKeys = map[string]string{
	"mets-file":     "mets_file",
	"content-dir":   "content_dir",
	"schema":        "schema",
	"dry-run":       "dry_run",
	"strict":        "strict",
	"workers":       "workers",
	"timeout":       "timeout",
	"tie-break":     "tie_break",
	"checksum-type": "checksum_type",
	"exclude":       "exclude",
	"hash-cache":    "hash_cache",
	"json":          "json",
	"verbose":       "verbose",
}

func newUpdateMetsCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update-mets",
		Short: "Recompute sizes and checksums and fix file locations in the METS document",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			for flag, key := range updateMetsKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return err
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := updateOptions(v)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			asJSON := v.GetBool("json")
			opts.Console = cmd.OutOrStdout()
			if asJSON {
				opts.Console = cmd.ErrOrStderr()
			}

			out, runErr := metsupdate.Update(cmd.Context(), opts)

			if asJSON {
				data, err := json.MarshalIndent(out, "", "  ")
				if err != nil {
					return fmt.Errorf("encode outcome: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				fmt.Fprintln(cmd.OutOrStdout())
				printSummary(cmd.OutOrStdout(), out)
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.SortFlags = false
	f.StringP("mets-file", "m", workspace.DefaultDocumentName, "METS document, relative to the workspace")
	f.String("content-dir", workspace.DefaultContentDir, "Content directory, relative to the workspace")
	f.String("schema", workspace.DefaultSchemaName, "XSD schema, relative to the working directory; validation is skipped if missing")
	f.BoolP("dry-run", "n", false, "Do everything except replacing the document")
	f.Bool("strict", false, "Fail if the updated document does not validate")
	f.Int("workers", 0, "Hashing workers (0 = number of CPUs)")
	f.Duration("timeout", 0, "Abort the run after this long (0 = no limit)")
	f.String("tie-break", string(reconcile.TieBreakSmallest), "Several files share a basename: smallest | reject")
	f.String("checksum-type", string(checksum.Default), "Digest algorithm: SHA-256, SHA-512, SHA-1, MD5")
	f.StringSlice("exclude", nil, "Glob patterns (relative to the content dir) to leave out of the scan")
	f.Bool("hash-cache", false, "Reuse digests of unchanged files from logs/checksums.db")
	f.Bool("json", false, "Print the outcome as JSON")
	f.BoolP("verbose", "v", false, "Debug output on the console")
	return cmd
}

func updateOptions(v *viper.Viper) (metsupdate.Options, error) {
	tieBreak, err := reconcile.ParseTieBreak(v.GetString("tie_break"))
	if err != nil {
		return metsupdate.Options{}, err
	}
	algo, err := checksum.ParseAlgorithm(v.GetString("checksum_type"))
	if err != nil {
		return metsupdate.Options{}, err
	}
	workers := v.GetInt("workers")
	if workers < 0 {
		return metsupdate.Options{}, fmt.Errorf("workers must not be negative, got %d", workers)
	}

	return metsupdate.Options{
		Workspace:    v.GetString("workspace"),
		DocumentPath: v.GetString("mets_file"),
		ContentDir:   v.GetString("content_dir"),
		SchemaPath:   v.GetString("schema"),
		DryRun:       v.GetBool("dry_run"),
		Strict:       v.GetBool("strict"),
		Workers:      workers,
		Timeout:      v.GetDuration("timeout"),
		TieBreak:     tieBreak,
		Algorithm:    algo,
		Exclude:      v.GetStringSlice("exclude"),
		HashCache:    v.GetBool("hash_cache"),
		Verbose:      v.GetBool("verbose"),
	}, nil
}
