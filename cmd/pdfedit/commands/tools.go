package commands

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/imagepdf"
	pdfservice "github.com/Shimizu-Technology/pdf-tools-api/internal/services/pdf"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/render"
	"github.com/Shimizu-Technology/pdf-tools-api/internal/services/unlock"
)

func newUnlockCmd(_ *options) *cobra.Command {
	var password, outPath string

	cmd := &cobra.Command{
		Use:   "unlock <input.pdf>",
		Short: "Remove the password from a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			if outPath == "" {
				outPath = strings.TrimSuffix(in, ".pdf") + ".unlocked.pdf"
			}

			res, err := unlock.Unlock(in, outPath, password)
			if errors.Is(err, unlock.ErrWrongPassword) {
				return errors.New("wrong password (cannot unlock)")
			}
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if !res.WasEncrypted {
				info(w, "%s was not encrypted; copied as-is", in)
			}
			success(w, "Wrote %s (%d pages)", outPath, res.PageCount)
			return nil
		},
	}

	cmd.Flags().StringVarP(&password, "password", "p", "", "document password")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output path (default <input>.unlocked.pdf)")
	return cmd
}

func newImagesCmd(_ *options) *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:     "images2pdf <image>...",
		Aliases: []string{"images"},
		Short:   "Combine images into one compressed A4 PDF",
		Long: `Each image becomes one A4 page, in argument order. Images are flattened
onto white, downscaled so the longest side is at most 2000 px and
re-encoded as JPEG before being placed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			images := make([]imagepdf.Image, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				images = append(images, imagepdf.Image{Name: filepath.Base(path), Data: data})
			}

			var buf bytes.Buffer
			if err := imagepdf.Convert(&buf, images); err != nil {
				return err
			}
			if err := os.WriteFile(outPath, buf.Bytes(), 0o644); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s (%d pages, %d KB)", outPath, len(images), buf.Len()/1024)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "compressed_images.pdf", "output path")
	return cmd
}

func newPreviewsCmd(_ *options) *cobra.Command {
	var dir string
	var zoom float64

	cmd := &cobra.Command{
		Use:   "previews <input.pdf>",
		Short: "Render one PNG per page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			name := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
			pages, err := render.New(zoom).Render(in, dir, name)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, p := range pages {
				keyValue(w, fmt.Sprintf("page %d", p.PageIndex+1), filepath.Base(p.PreviewRel))
			}
			success(w, "Rendered %d pages into %s", len(pages), dir)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "previews", "output directory")
	cmd.Flags().Float64Var(&zoom, "zoom", render.DefaultZoom, "scale factor relative to 72 DPI")
	return cmd
}

func newInfoCmd(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info <input.pdf>",
		Short: "Show page sizes and word counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			pages, err := render.Pages(in, "")
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			section(w, filepath.Base(in))
			keyValue(w, "pages", len(pages))
			for _, p := range pages {
				keyValue(w, fmt.Sprintf("page %d", p.PageIndex+1), fmt.Sprintf("%g x %g pt", p.PageWidth, p.PageHeight))
			}

			// Text extraction is best effort; encrypted files still report sizes.
			if text, err := pdfservice.InspectFile(in); err == nil {
				keyValue(w, "words", text.WordCount)
			} else {
				warning(w, "text extraction failed: %v", err)
			}
			return nil
		},
	}
}
