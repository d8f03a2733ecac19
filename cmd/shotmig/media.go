package main

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/franz/shot-migrator/internal/media"
	"github.com/franz/shot-migrator/internal/remap"
	"github.com/franz/shot-migrator/internal/util"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Media folder tools",
}

var mediaCheckCmd = &cobra.Command{
	Use:   "check <media-root>",
	Short: "Check video/thumbnail pairing in every shot folder",
	Long: `Check every shot folder below <media-root>: each video needs a .png
thumbnail with the same stem, and zero-size files are reported.

With --mapping, folder ids are labelled with their shot names. With
--remediate, zero-size videos get a placeholder thumbnail.`,
	Args: cobra.ExactArgs(1),
	RunE: runMediaCheck,
}

func init() {
	rootCmd.AddCommand(mediaCmd)
	mediaCmd.AddCommand(mediaCheckCmd)

	mediaCheckCmd.Flags().String("mapping", "", "shot mapping side file (shot_mapping.json)")
	mediaCheckCmd.Flags().Bool("remediate", false, "create placeholder thumbnails for zero-size videos")
}

func runMediaCheck(cmd *cobra.Command, args []string) error {
	fsys := afero.NewOsFs()
	opts := media.TreeOptions{}
	opts.Remediate, _ = cmd.Flags().GetBool("remediate")

	if path, _ := cmd.Flags().GetString("mapping"); path != "" {
		m, side, err := remap.ReadSideFile(fsys, path)
		if err != nil {
			return err
		}
		util.DebugLog("Loaded mapping %s (%d shots, created %s)", path, m.Len(), side.Created)
		opts.Mapping = m
	}

	ctx, stop := signalContext()
	defer stop()

	res, err := media.ValidateTree(ctx, fsys, args[0], opts)
	if err != nil {
		return err
	}

	errs, warnings, _ := res.Counts()
	if !res.Success() {
		return fmt.Errorf("media check failed: %d errors, %d warnings", errs, warnings)
	}
	util.SuccessLog("Media check passed (%d warnings)", warnings)
	return nil
}
