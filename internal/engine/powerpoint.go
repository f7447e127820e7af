package engine

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// powerPointReader reads slide text from PPTX packages, one page per slide.
type powerPointReader struct{}

func newPowerPointReader() *powerPointReader { return &powerPointReader{} }

func (e *powerPointReader) ID() ID { return PowerPointReader }

func (e *powerPointReader) Extract(ctx context.Context, p string, opts Options) (*Raw, error) {
	if strings.EqualFold(filepath.Ext(p), ".ppt") {
		return nil, failed(PowerPointReader, errLegacyFormat)
	}
	zr, err := zip.OpenReader(p)
	if err != nil {
		return nil, failed(PowerPointReader, fmt.Errorf("open pptx: %w", err))
	}
	defer zr.Close()

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	slides, err := slideOrder(files)
	if err != nil {
		return nil, failed(PowerPointReader, err)
	}

	raw := &Raw{
		Paged:     true,
		PageLabel: "Slide",
		Pages:     make([]RawPage, 0, len(slides)),
		Metadata:  map[string]any{"slides": len(slides)},
	}
	for i, name := range slides {
		if err := ctx.Err(); err != nil {
			return nil, failed(PowerPointReader, err)
		}
		text, err := slideText(files[name])
		if err != nil {
			return nil, failed(PowerPointReader, fmt.Errorf("slide %d: %w", i+1, err))
		}
		raw.Pages = append(raw.Pages, RawPage{Index: i, Text: text})
	}
	return raw, nil
}

type xmlRels struct {
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

type xmlPresentation struct {
	SlideIDs []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

// slideOrder returns slide part names in presentation order. Packages
// without a usable slide list fall back to slide number order.
func slideOrder(files map[string]*zip.File) ([]string, error) {
	var pres xmlPresentation
	var rels xmlRels
	errP := decodeZipXML(files["ppt/presentation.xml"], &pres)
	errR := decodeZipXML(files["ppt/_rels/presentation.xml.rels"], &rels)
	if errP == nil && errR == nil && len(pres.SlideIDs) > 0 {
		targets := make(map[string]string, len(rels.Relationships))
		for _, r := range rels.Relationships {
			targets[r.ID] = r.Target
		}
		var out []string
		for _, s := range pres.SlideIDs {
			name := path.Join("ppt", strings.TrimPrefix(targets[s.RID], "/ppt/"))
			if _, ok := files[name]; ok {
				out = append(out, name)
			}
		}
		if len(out) == len(pres.SlideIDs) {
			return out, nil
		}
	}

	var out []string
	for name := range files {
		if slideNumber(name) > 0 {
			out = append(out, name)
		}
	}
	if len(out) == 0 && files["ppt/presentation.xml"] == nil {
		return nil, fmt.Errorf("not a pptx package")
	}
	sort.Slice(out, func(i, j int) bool { return slideNumber(out[i]) < slideNumber(out[j]) })
	return out, nil
}

func slideNumber(name string) int {
	rest, ok := strings.CutPrefix(name, "ppt/slides/slide")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSuffix(rest, ".xml"))
	if err != nil {
		return 0
	}
	return n
}

func decodeZipXML(f *zip.File, v any) error {
	if f == nil {
		return fmt.Errorf("missing part")
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	return xml.NewDecoder(rc).Decode(v)
}

// slideText collects DrawingML paragraphs (a:p) of a slide, one per line.
func slideText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var lines []string
	var cur strings.Builder
	inText := false
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "br":
				cur.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(cur.String()); s != "" {
					lines = append(lines, s)
				}
				cur.Reset()
			}
		case xml.CharData:
			if inText {
				cur.Write(t)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
