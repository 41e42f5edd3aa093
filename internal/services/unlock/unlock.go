// Package unlock removes password protection from a PDF when the caller
// supplies the correct password.
package unlock

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

var (
	// ErrWrongPassword is returned when the password does not open the document.
	ErrWrongPassword = errors.New("wrong password (cannot unlock)")

	// ErrInvalidPDF is returned when the input cannot be parsed as a PDF.
	ErrInvalidPDF = errors.New("invalid pdf")
)

// Result reports what Unlock did.
type Result struct {
	WasEncrypted bool
	PageCount    int
}

// Unlock reads src with password as both user and owner password and
// writes an unencrypted copy to dst. A document that was never encrypted
// is copied through unchanged.
func Unlock(src, dst, password string) (*Result, error) {
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(src), err)
	}
	defer f.Close()

	conf := config(password)
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	res := &Result{WasEncrypted: ctx.Encrypt != nil, PageCount: ctx.PageCount}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	err = writeAtomic(dst, func(w io.Writer) error {
		if !res.WasEncrypted {
			_, err := io.Copy(w, f)
			return err
		}
		return api.Decrypt(f, w, config(password))
	})
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("failed to write unlocked pdf: %w", err)
	}
	return res, nil
}

func config(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.UserPW = password
	conf.OwnerPW = password
	return conf
}

// writeAtomic writes to a temporary file next to path and renames it into
// place once fn succeeds.
func writeAtomic(path string, fn func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".unlock-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fn(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
