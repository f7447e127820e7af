package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"image/color"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/dgallion1/docparse/internal/pdftest"
)

const body = "Quarterly revenue grew across every region during the reporting period."

// logo is drawn at 100,300 (PDF space), which is 100,432..160,492 top-left.
var logo = pdftest.Placement{Image: 0, X: 100, Y: 300, W: 60, H: 60}

func threePages() pdftest.Doc {
	return pdftest.Doc{
		Pages: []pdftest.Page{
			{Lines: []string{"alpha " + body}},
			{Lines: []string{"beta " + body}},
			{Lines: []string{"gamma " + body}},
		},
	}
}

func near(a, b float64) bool { return math.Abs(a-b) <= 1 }

func nearBlock(got, want Block) bool {
	return got.Type == want.Type && near(got.X0, want.X0) && near(got.Y0, want.Y0) &&
		near(got.X1, want.X1) && near(got.Y1, want.Y1)
}

func TestPyMuPDF_PageOrder(t *testing.T) {
	path := pdftest.Write(t, "three.pdf", threePages())
	raw, err := newPyMuPDF(slog.Default()).Extract(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !raw.Paged || raw.Metadata["page_count"] != 3 || len(raw.Pages) != 3 {
		t.Fatalf("raw = %+v", raw)
	}
	for i, word := range []string{"alpha", "beta", "gamma"} {
		p := raw.Pages[i]
		if p.Index != i || !strings.Contains(p.Text, word+" Quarterly revenue") {
			t.Errorf("page %d = %d %q", i, p.Index, p.Text)
		}
		if p.Metadata["width"] != 612 || p.Metadata["height"] != 792 {
			t.Errorf("page %d size = %v", i, p.Metadata)
		}
	}
}

func TestPDFPlumber_PageOrder(t *testing.T) {
	path := pdftest.Write(t, "three.pdf", threePages())
	raw, err := newPDFPlumber(slog.Default()).Extract(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if raw.Metadata["page_count"] != 3 || len(raw.Pages) != 3 {
		t.Fatalf("raw = %+v", raw)
	}
	for i, word := range []string{"alpha", "beta", "gamma"} {
		p := raw.Pages[i]
		if p.Index != i+1 || !strings.HasPrefix(p.Text, word) {
			t.Errorf("page %d = %d %q", i, p.Index, p.Text)
		}
		if p.Metadata["width"] != 612.0 || p.Metadata["height"] != 792.0 {
			t.Errorf("page %d size = %v", i, p.Metadata)
		}
	}
}

func TestPyMuPDF4LLM_Blocks(t *testing.T) {
	doc := pdftest.Doc{
		Images: []pdftest.Image{{W: 60, H: 60}},
		Pages: []pdftest.Page{{
			Lines:  []string{body, body},
			Images: []pdftest.Placement{logo},
		}},
	}
	path := pdftest.Write(t, "layout.pdf", doc)
	raw, err := newPyMuPDF4LLM(slog.Default()).Extract(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	page := raw.Pages[0]
	if !strings.Contains(page.Text, "Quarterly revenue") {
		t.Errorf("text = %q", page.Text)
	}

	var text, images []Block
	for _, b := range page.Blocks {
		if b.Type == BlockImage {
			images = append(images, b)
		} else {
			text = append(text, b)
		}
	}
	want := Block{Type: BlockImage, X0: 100, Y0: 432, X1: 160, Y1: 492}
	if len(images) != 1 || !nearBlock(images[0], want) {
		t.Errorf("image blocks = %+v, want one near %+v", images, want)
	}
	if len(text) != 1 {
		t.Fatalf("text blocks = %+v, want the two lines as one block", text)
	}
	b := text[0]
	if !near(b.X0, 72) || b.X1 < 300 || b.X1 > 612 {
		t.Errorf("text block x = %v..%v", b.X0, b.X1)
	}
	if b.Y0 < 55 || b.Y0 > 75 || b.Y1 < b.Y0+20 {
		t.Errorf("text block y = %v..%v", b.Y0, b.Y1)
	}
}

func TestImageBlocks_MuPDFHTML(t *testing.T) {
	doc := pdftest.Doc{
		Images: []pdftest.Image{{W: 60, H: 60}, {W: 120, H: 40}},
		Pages: []pdftest.Page{{Images: []pdftest.Placement{
			logo,
			{Image: 1, X: 300, Y: 600, W: 240, H: 80},
		}}},
	}
	f, err := fitz.New(pdftest.Write(t, "images.pdf", doc))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	html, err := f.HTML(0, false)
	if err != nil {
		t.Fatal(err)
	}

	got := imageBlocks(html)
	want := []Block{
		{Type: BlockImage, X0: 100, Y0: 432, X1: 160, Y1: 492},
		{Type: BlockImage, X0: 300, Y0: 112, X1: 540, Y1: 192},
	}
	if len(got) != len(want) {
		t.Fatalf("imageBlocks = %+v, want %+v", got, want)
	}
	for _, w := range want {
		found := false
		for _, g := range got {
			found = found || nearBlock(g, w)
		}
		if !found {
			t.Errorf("no block near %+v in %+v", w, got)
		}
	}
}

func pngDataURI(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.New(w, h, color.Gray{Y: 128}), imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestImageBlocks_Matrix(t *testing.T) {
	src := pngDataURI(t, 60, 30)
	tests := []struct {
		name string
		img  string
		want Block
	}{
		{
			name: "scaled",
			img:  `<img style="position:absolute;transform:matrix(1.3333334,0,-0,1.3333334,143.33335,586)" src="` + pngDataURI(t, 60, 60) + `">`,
			want: Block{Type: BlockImage, X0: 100, Y0: 432, X1: 160, Y1: 492},
		},
		{
			name: "rotated quarter turn",
			img:  `<img style="position:absolute;transform:matrix(0,1,-1,0,100,100)" src="` + src + `">`,
			want: Block{Type: BlockImage, X0: 86.25, Y0: 63.75, X1: 108.75, Y1: 108.75},
		},
		{
			name: "size attributes",
			img:  `<img width="60" height="30" style="transform:matrix(1,0,0,1,0,0)" src="x.png">`,
			want: Block{Type: BlockImage, X0: 0, Y0: 0, X1: 45, Y1: 22.5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := imageBlocks(`<div id="page0" style="width:612pt;height:792pt">` + tt.img + `</div>`)
			if len(got) != 1 || !nearBlock(got[0], tt.want) {
				t.Errorf("imageBlocks = %+v, want %+v", got, tt.want)
			}
		})
	}

	if got := imageBlocks(`<img style="transform:matrix(1,0,0,1,0,0)" src="data:image/png;base64,AAAA">`); len(got) != 0 {
		t.Errorf("undecodable image produced %+v", got)
	}
}

func TestParagraphBlocks(t *testing.T) {
	doc := `<div id="page0" style="width:612.0pt;height:792.0pt">
<p style="top:63.4pt;left:72.0pt;line-height:13.8pt"><span style="font-family:Helvetica,sans-serif;font-size:12.0pt">first line of text</span></p>
<p style="top:77.4pt;left:72.0pt;line-height:13.8pt"><span style="font-family:Helvetica,sans-serif;font-size:12.0pt">second</span></p>
<p style="top:400.0pt;left:300.0pt;line-height:13.8pt"><span style="font-family:Helvetica,sans-serif;font-size:12.0pt">footer</span></p>
</div>`
	got := paragraphBlocks(doc, 612)
	if len(got) != 2 {
		t.Fatalf("paragraphBlocks = %+v, want 2 blocks", got)
	}
	// 18 runes at 12pt, estimated at half an em each.
	want := Block{Type: BlockText, X0: 72, Y0: 63.4, X1: 72 + 18*6, Y1: 77.4 + 13.8}
	if !nearBlock(got[0], want) {
		t.Errorf("first block = %+v, want %+v", got[0], want)
	}
	if got[1].X0 != 300 || got[1].Y0 != 400 {
		t.Errorf("footer block = %+v", got[1])
	}
}

func TestHasDegenerate(t *testing.T) {
	if !hasDegenerate([]Block{{X0: 72, X1: 72, Y0: 10, Y1: 20}}) {
		t.Error("zero-width block not reported")
	}
	if hasDegenerate([]Block{{X0: 72, X1: 90, Y0: 10, Y1: 20}}) {
		t.Error("normal block reported")
	}
}

func TestExtractPDFImages_SharedAndBroken(t *testing.T) {
	doc := pdftest.Doc{
		Images: []pdftest.Image{{W: 60, H: 60}, {W: 60, H: 60, Corrupt: true}},
		Pages: []pdftest.Page{
			{Lines: []string{"one"}, Images: []pdftest.Placement{logo}},
			{Lines: []string{"two"}, Images: []pdftest.Placement{logo}},
			{Lines: []string{"three"}, Images: []pdftest.Placement{{Image: 1, X: 100, Y: 300, W: 60, H: 60}}},
		},
	}
	path := pdftest.Write(t, "shared.pdf", doc)

	imgs := extractPDFImages(path, slog.Default())
	if len(imgs) != 2 {
		t.Fatalf("got %d images, want the shared image on pages 1 and 2: %+v", len(imgs), imgs)
	}
	if imgs[0].Page != 1 || imgs[1].Page != 2 || imgs[0].Ref != imgs[1].Ref {
		t.Errorf("pages %d,%d refs %d,%d", imgs[0].Page, imgs[1].Page, imgs[0].Ref, imgs[1].Ref)
	}
	if imgs[0].Ext != "png" || len(imgs[0].Data) == 0 {
		t.Errorf("image = %s with %d bytes", imgs[0].Ext, len(imgs[0].Data))
	}

	// A broken image costs only itself; the text still comes through.
	raw, err := newPyMuPDF(slog.Default()).Extract(context.Background(), path, Options{ExtractImages: true})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(raw.Pages) != 3 || !strings.Contains(raw.Pages[2].Text, "three") {
		t.Errorf("pages = %+v", raw.Pages)
	}
	if len(raw.Images) != 2 {
		t.Errorf("images = %d, want 2", len(raw.Images))
	}
}

func TestExtractPDFImages_Unreadable(t *testing.T) {
	if imgs := extractPDFImages(writeTemp(t, "bad.pdf", "%PDF-1.4\nnot really"), slog.Default()); imgs != nil {
		t.Errorf("images = %+v", imgs)
	}
}
