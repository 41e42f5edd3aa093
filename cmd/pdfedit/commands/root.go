// Package commands implements the pdfedit CLI.
//
// Every command works on local files with the same services the API uses,
// so a batch that behaves one way here behaves the same way on the server.
package commands

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	verbose bool
	noColor bool
}

// newLogger returns a console logger when --verbose is set and a silent one
// otherwise.
func (o *options) newLogger(cmd *cobra.Command) *logger.Logger {
	if !o.verbose {
		return logger.Nop()
	}
	return logger.New(logger.Config{
		Level:       "debug",
		Format:      "console",
		Output:      cmd.ErrOrStderr(),
		ServiceName: "pdfedit",
	})
}

// NewRootCmd builds the command tree. A fresh tree per call keeps flag
// state out of package globals.
func NewRootCmd(version string) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "pdfedit",
		Short: "Edit, unlock and build PDFs from the command line",
		Long: `pdfedit applies the same edit batches as the PDF Tools API to local files:
add text and images, redact regions for real, remove passwords, render page
previews and combine images into a compressed A4 PDF.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor || os.Getenv("NO_COLOR") != "" {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log engine activity to stderr")
	root.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newApplyCmd(opts),
		newUnlockCmd(opts),
		newImagesCmd(opts),
		newPreviewsCmd(opts),
		newInfoCmd(opts),
	)
	return root
}
