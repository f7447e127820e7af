package engine

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// extractPDFImages returns every image XObject per page, in object number
// order. An image shared by several pages is returned for each of them with
// the same Ref. Images are best effort: a file pdfcpu cannot read yields
// none, and a page or image that fails to decode is logged and skipped.
func extractPDFImages(path string, log *slog.Logger) []RawImage {
	f, err := os.Open(path)
	if err != nil {
		log.Warn("images skipped", "file", path, "error", err)
		return nil
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		log.Warn("images skipped", "file", path, "error", fmt.Errorf("pdfcpu read: %w", err))
		return nil
	}

	var out []RawImage
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		imgs, err := pageImages(ctx, pageNr)
		if err != nil {
			log.Warn("page images skipped", "file", path, "page", pageNr, "error", err)
			continue
		}
		objNrs := make([]int, 0, len(imgs))
		for nr := range imgs {
			objNrs = append(objNrs, nr)
		}
		slices.Sort(objNrs)

		for _, nr := range objNrs {
			img := imgs[nr]
			if img.Reader == nil {
				continue
			}
			data, err := io.ReadAll(img)
			if err != nil {
				log.Warn("image skipped", "file", path, "page", pageNr, "object", nr, "error", err)
				continue
			}
			out = append(out, RawImage{Page: pageNr, Ref: nr, Ext: img.FileType, Data: data})
		}
	}
	return out
}

// pageImages wraps pdfcpu's page extraction, which panics on some malformed
// image dictionaries.
func pageImages(ctx *model.Context, pageNr int) (imgs map[int]model.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu panic: %v", r)
		}
	}()
	return pdfcpu.ExtractPageImages(ctx, pageNr, false)
}
