package main

import (
	"fmt"

	"github.com/henrycmeen/dimo/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newInitCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the content and logs directories of a workspace",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlag("mets_file", cmd.Flags().Lookup("mets-file")); err != nil {
				return err
			}
			return v.BindPFlag("content_dir", cmd.Flags().Lookup("content-dir"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := workspace.New(v.GetString("workspace"),
				workspace.WithDocument(v.GetString("mets_file")),
				workspace.WithContentDir(v.GetString("content_dir")),
			)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if err := layout.Init(); err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintln(w, green.Render("Workspace ready"))
			fmt.Fprintln(w, label.Render("Root")+layout.Root)
			fmt.Fprintln(w, label.Render("Content")+layout.ContentDir)
			fmt.Fprintln(w, label.Render("Document")+layout.DocumentPath)
			fmt.Fprintln(w, label.Render("Logs")+layout.LogsDir)
			return nil
		},
	}
	cmd.Flags().StringP("mets-file", "m", workspace.DefaultDocumentName, "METS document, relative to the workspace")
	cmd.Flags().String("content-dir", workspace.DefaultContentDir, "Content directory, relative to the workspace")
	return cmd
}
