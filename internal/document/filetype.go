package document

import (
	"maps"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var extensionTypes = map[string]FileType{
	".pdf":      TypePDF,
	".docx":     TypeWord,
	".doc":      TypeWord,
	".pptx":     TypePowerPoint,
	".ppt":      TypePowerPoint,
	".xlsx":     TypeExcel,
	".xls":      TypeExcel,
	".csv":      TypeExcel,
	".txt":      TypeText,
	".md":       TypeText,
	".markdown": TypeText,
	".html":     TypeText,
	".htm":      TypeText,
}

// TypeForExtension maps a file extension (with or without the dot) to its
// FileType. Unknown extensions map to TypeUnknown.
func TypeForExtension(ext string) FileType {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if t, ok := extensionTypes[ext]; ok {
		return t
	}
	return TypeUnknown
}

// SupportedExtensions returns the sorted extensions that map to a known type.
func SupportedExtensions() []string {
	return slices.Sorted(maps.Keys(extensionTypes))
}

// DetectType returns the FileType for path along with the extension it was
// decided by. Files without an extension are sniffed by content.
func DetectType(path string) (FileType, string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		ext = SniffExtension(path)
	}
	return TypeForExtension(ext), ext
}

// SniffExtension guesses an extension from the file's leading bytes. It
// returns "" when the content is not recognised.
func SniffExtension(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return ""
	}
	return extensionForMIME(mt)
}

// SniffBytes is SniffExtension for in-memory content.
func SniffBytes(b []byte) string {
	return extensionForMIME(mimetype.Detect(b))
}

func extensionForMIME(mt *mimetype.MIME) string {
	for m := mt; m != nil; m = m.Parent() {
		if TypeForExtension(m.Extension()) != TypeUnknown {
			return m.Extension()
		}
	}
	return ""
}
