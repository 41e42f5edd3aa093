package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/editor"
)

func newApplyCmd(opts *options) *cobra.Command {
	var opsPath, outPath string

	cmd := &cobra.Command{
		Use:   "apply <input.pdf>",
		Short: "Apply a batch of edit operations to a PDF",
		Long: `Apply reads a batch of the form {"ops": [...]} from --ops (or stdin when
--ops is "-") and writes the edited document to --out. The input file is
never modified.`,
		Example: `  pdfedit apply contract.pdf --ops edits.json --out signed.pdf
  echo '{"ops":[{"type":"redact","x":50,"y":80,"w":200,"h":20}]}' | pdfedit apply in.pdf --ops - -o out.pdf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if outPath == "" {
				outPath = strings.TrimSuffix(in, ".pdf") + ".edited.pdf"
			}

			body, err := readBatch(cmd, opsPath)
			if err != nil {
				return err
			}
			batch, err := editor.ParseBatch(body)
			if err != nil {
				return err
			}

			engine := editor.NewEngine(opts.newLogger(cmd))
			res, err := engine.ApplyFile(in, outPath, batch.Ops)
			if err != nil {
				return fmt.Errorf("%s: %w", editor.ErrorKind(err), err)
			}

			w := cmd.OutOrStdout()
			success(w, "Wrote %s in %s", outPath, formatDuration(res.Duration))
			keyValue(w, "applied", res.Applied)
			keyValue(w, "skipped", res.Skipped)
			if res.Removed.Changed() {
				keyValue(w, "glyphs removed", res.Removed.GlyphsRemoved)
				keyValue(w, "paths removed", res.Removed.PathsRemoved)
			}
			for _, reason := range res.SkipReasons {
				warning(w, "%s", reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opsPath, "ops", "", `JSON batch file, or "-" for stdin (required)`)
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default <input>.edited.pdf)")
	_ = cmd.MarkFlagRequired("ops")
	return cmd
}

func readBatch(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ops: %w", err)
	}
	return data, nil
}
