package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"
)

const defaultRenderDPI = 300

// recogniser runs an OCR binary over one page image.
type recogniser func(ctx context.Context, bin, image, lang string) (string, map[string]any, error)

// ocrEngine renders PDF pages with MuPDF and recognises them with an
// external OCR command, several pages at a time.
type ocrEngine struct {
	id        ID
	bin       string
	recognise recogniser
	log       *slog.Logger
}

func newTesseract(bin string, log *slog.Logger) *ocrEngine {
	if bin == "" {
		bin = "tesseract"
	}
	return &ocrEngine{id: OCRTesseract, bin: bin, recognise: tesseractRecognise, log: log}
}

func newEasyOCR(bin string, log *slog.Logger) *ocrEngine {
	if bin == "" {
		bin = "easyocr"
	}
	return &ocrEngine{id: OCREasy, bin: bin, recognise: easyOCRRecognise, log: log}
}

func (e *ocrEngine) ID() ID { return e.id }

func (e *ocrEngine) Available() error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%s not found: %w", e.bin, err)
	}
	return nil
}

func (e *ocrEngine) Extract(ctx context.Context, path string, opts Options) (*Raw, error) {
	if err := e.Available(); err != nil {
		return nil, unavailable(e.id, err)
	}
	lang := opts.OCRLanguage
	if lang == "" {
		lang = "eng"
	}
	dpi := opts.RenderDPI
	if dpi <= 0 {
		dpi = defaultRenderDPI
	}

	doc, err := fitz.New(path)
	if err != nil {
		return nil, failed(e.id, fmt.Errorf("open pdf: %w", err))
	}
	defer doc.Close()

	dir, err := os.MkdirTemp("", "docparse-ocr-*")
	if err != nil {
		return nil, failed(e.id, err)
	}
	defer os.RemoveAll(dir)

	n := doc.NumPage()
	pages := make([]RawPage, n)

	// MuPDF documents are not safe for concurrent use.
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.MaxParallelPages, 1))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			mu.Lock()
			img, err := doc.ImageDPI(i, dpi)
			size := pageSize(doc, i)
			mu.Unlock()
			if err != nil {
				return fmt.Errorf("render page %d: %w", i+1, err)
			}

			imgPath := filepath.Join(dir, fmt.Sprintf("page-%04d.png", i+1))
			if err := imaging.Save(img, imgPath); err != nil {
				return fmt.Errorf("save page %d: %w", i+1, err)
			}
			text, meta, err := e.recognise(gctx, e.bin, imgPath, lang)
			if err != nil {
				return fmt.Errorf("ocr page %d: %w", i+1, err)
			}
			for k, v := range size {
				meta[k] = v
			}
			pages[i] = RawPage{Index: i, Text: text, Metadata: meta}
			e.log.Debug("page recognised", "engine", e.id, "page", i+1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, failed(e.id, err)
	}

	return &Raw{
		Paged:    true,
		Pages:    pages,
		Metadata: map[string]any{"page_count": n, "ocr_language": lang},
	}, nil
}

func runOCR(cmd *exec.Cmd) ([]byte, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, truncate(msg, 512))
		}
		return nil, err
	}
	return out, nil
}

func tesseractRecognise(ctx context.Context, bin, image, lang string) (string, map[string]any, error) {
	out, err := runOCR(exec.CommandContext(ctx, bin, image, "stdout", "-l", lang, "--psm", "3", "tsv"))
	if err != nil {
		return "", nil, err
	}
	text, conf, ok := parseTesseractTSV(out)
	meta := map[string]any{"ocr_confidence": "N/A"}
	if ok {
		meta["ocr_confidence"] = conf
	}
	return text, meta, nil
}

// parseTesseractTSV rebuilds the text from tesseract's TSV output and
// returns the mean word confidence. ok is false when no word carried a
// confidence.
func parseTesseractTSV(out []byte) (text string, conf float64, ok bool) {
	type lineKey struct{ block, par, line int }
	var b strings.Builder
	var prev lineKey
	var prevPar [2]int
	first := true
	sum, words := 0.0, 0

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		f := strings.Split(sc.Text(), "\t")
		if len(f) < 12 || f[0] != "5" {
			continue
		}
		word := strings.TrimSpace(f[11])
		if word == "" {
			continue
		}
		block, _ := strconv.Atoi(f[2])
		par, _ := strconv.Atoi(f[3])
		line, _ := strconv.Atoi(f[4])
		key := lineKey{block, par, line}
		switch {
		case first:
		case [2]int{block, par} != prevPar:
			b.WriteString("\n\n")
		case key != prev:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(word)
		first = false
		prev, prevPar = key, [2]int{block, par}

		if c, err := strconv.ParseFloat(f[10], 64); err == nil && c >= 0 {
			sum += c
			words++
		}
	}
	if words == 0 {
		return b.String(), 0, false
	}
	return b.String(), sum / float64(words), true
}

var easyOCRLangs = map[string]string{
	"eng": "en", "deu": "de", "fra": "fr", "spa": "es", "ita": "it",
	"por": "pt", "nld": "nl", "rus": "ru", "jpn": "ja", "kor": "ko",
	"chi_sim": "ch_sim", "chi_tra": "ch_tra", "ara": "ar", "hin": "hi",
}

// easyOCRLang maps tesseract language codes to EasyOCR ones; anything
// unknown is passed through.
func easyOCRLang(lang string) string {
	if l, ok := easyOCRLangs[lang]; ok {
		return l
	}
	return lang
}

func easyOCRRecognise(ctx context.Context, bin, image, lang string) (string, map[string]any, error) {
	out, err := runOCR(exec.CommandContext(ctx, bin, "-l", easyOCRLang(lang), "-f", image, "--detail", "0", "--gpu", "False"))
	if err != nil {
		return "", nil, err
	}
	var lines []string
	for _, l := range strings.Split(string(out), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n"), map[string]any{"detections": len(lines)}, nil
}
