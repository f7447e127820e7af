package pdfinspect

import (
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
)

type pdfSource struct {
	f *os.File
	r *pdf.Reader
}

// OpenPDF opens path with the pure-Go PDF reader.
func OpenPDF(path string) (src PageSource, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("open pdf: %v", r)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return &pdfSource{f: f, r: r}, nil
}

func (s *pdfSource) NumPages() int { return s.r.NumPage() }

func (s *pdfSource) Page(n int) (info PageInfo, err error) {
	// The reader panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read page: %v", r)
		}
	}()
	p := s.r.Page(n)
	if p.V.IsNull() {
		return PageInfo{}, nil
	}
	text, err := p.GetPlainText(nil)
	if err != nil {
		return PageInfo{}, fmt.Errorf("extract text: %w", err)
	}
	return PageInfo{Text: text, Images: CountImages(p)}, nil
}

func (s *pdfSource) Close() error { return s.f.Close() }

// CountImages returns the number of image XObjects in the page resources.
func CountImages(p pdf.Page) int {
	xobjs := p.Resources().Key("XObject")
	if xobjs.Kind() != pdf.Dict {
		return 0
	}
	n := 0
	for _, name := range xobjs.Keys() {
		if xobjs.Key(name).Key("Subtype").Name() == "Image" {
			n++
		}
	}
	return n
}
