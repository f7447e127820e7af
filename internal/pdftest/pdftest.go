// Package pdftest writes small, valid PDF files for tests: Helvetica text
// lines and grayscale image XObjects that pages may share.
package pdftest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Page geometry, in points.
const (
	PageWidth  = 612
	PageHeight = 792
	FontSize   = 12
	Leading    = 14
	Left       = 72
	Top        = 720
)

// Image is a DeviceGray image XObject filled with a gradient.
type Image struct {
	W, H int
	// Corrupt declares FlateDecode over data that does not inflate.
	Corrupt bool
}

// Placement draws Doc.Images[Image] with its lower-left corner at (X, Y),
// scaled to W x H points.
type Placement struct {
	Image      int
	X, Y, W, H float64
}

// Page holds text lines, drawn from (Left, Top) downwards, and images.
type Page struct {
	Lines  []string
	Images []Placement
}

// Doc is a whole document. Images are stored once and referenced by index
// from pages.
type Doc struct {
	Images []Image
	Pages  []Page
}

// Write saves d as a file named name in a fresh temporary directory.
func Write(t testing.TB, name string, d Doc) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, d.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

// Bytes encodes d. Objects are numbered catalog, page tree, font, images,
// then a page and content stream pair per page.
func (d Doc) Bytes() []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string, stream []byte) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s", len(offsets), body)
		if stream != nil {
			buf.WriteString("\nstream\n")
			buf.Write(stream)
			buf.WriteString("\nendstream")
		}
		buf.WriteString("\nendobj\n")
	}

	firstImage := 4
	firstPage := firstImage + len(d.Images)
	pageRef := func(i int) int { return firstPage + 2*i }

	buf.WriteString("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n")

	obj("<< /Type /Catalog /Pages 2 0 R >>", nil)
	kids := make([]string, len(d.Pages))
	for i := range d.Pages {
		kids[i] = fmt.Sprintf("%d 0 R", pageRef(i))
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(d.Pages)), nil)
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>", nil)

	for _, img := range d.Images {
		data := make([]byte, img.W*img.H)
		for i := range data {
			data[i] = byte((i%img.W)*255/max(img.W-1, 1))
		}
		filter := ""
		if img.Corrupt {
			data = []byte("this is not a deflate stream")
			filter = " /Filter /FlateDecode"
		}
		obj(fmt.Sprintf("<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8%s /Length %d >>",
			img.W, img.H, filter, len(data)), data)
	}

	for i, p := range d.Pages {
		var xobjects strings.Builder
		seen := map[int]bool{}
		for _, pl := range p.Images {
			if !seen[pl.Image] {
				seen[pl.Image] = true
				fmt.Fprintf(&xobjects, " /Im%d %d 0 R", pl.Image, firstImage+pl.Image)
			}
		}
		resources := "/Font << /F1 3 0 R >>"
		if xobjects.Len() > 0 {
			resources += " /XObject <<" + xobjects.String() + " >>"
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << %s >> /Contents %d 0 R >>",
			PageWidth, PageHeight, resources, pageRef(i)+1), nil)

		content := p.content()
		obj(fmt.Sprintf("<< /Length %d >>", len(content)), content)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func (p Page) content() []byte {
	var b bytes.Buffer
	if len(p.Lines) > 0 {
		fmt.Fprintf(&b, "BT /F1 %d Tf %d TL %d %d Td\n", FontSize, Leading, Left, Top)
		for i, l := range p.Lines {
			if i > 0 {
				b.WriteString("T* ")
			}
			fmt.Fprintf(&b, "(%s) Tj\n", escape(l))
		}
		b.WriteString("ET\n")
	}
	for _, pl := range p.Images {
		fmt.Fprintf(&b, "q %g 0 0 %g %g %g cm /Im%d Do Q\n", pl.W, pl.H, pl.X, pl.Y, pl.Image)
	}
	return b.Bytes()
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s)
}
