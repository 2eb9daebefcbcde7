package favicon

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Variant sizes generated from one source image.
const (
	appleTouchSize = 180
	pinnedTabSize  = 32
)

var icoSizes = []int{16, 32, 48}
var pngSizes = []int{16, 32, 48}

// Encoder seams, replaced in tests to exercise per-variant skips.
var (
	encodeICOFn = encodeICO
	encodePNGFn = encodePNG
	wrapSVGFn   = wrapAsSVG
)

// Pipeline derives the favicon family from one source image. A single
// variant failing to encode is logged and skipped; the pipeline never
// aborts the whole set.
type Pipeline struct {
	logger *logrus.Entry
}

// NewPipeline creates a favicon pipeline
func NewPipeline(logger *logrus.Entry) *Pipeline {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{logger: logger.WithField("component", "favicon")}
}

// Result holds the generated files (keyed by manifest path under
// favicons/) and the <head> link tags for them, in fixed order.
type Result struct {
	Files map[string][]byte
	Links []string
}

// Generate produces the favicon variants for one source image. sourceName
// is only used to detect vector sources.
func (p *Pipeline) Generate(source []byte, sourceName string) Result {
	result := Result{Files: map[string][]byte{}}

	isVector := isSVG(source, sourceName)

	var img image.Image
	if !isVector {
		decoded, err := imaging.Decode(bytes.NewReader(source))
		if err != nil {
			p.logger.WithError(err).Warn("failed to decode favicon source; raster variants skipped")
		} else {
			img = decoded
		}
	}

	// favicon.ico: multi-size, PNG-backed entries
	if img != nil {
		if ico, err := encodeICOFn(img, icoSizes); err != nil {
			p.logger.WithError(err).Warn("failed to encode favicon.ico")
		} else {
			result.Files["favicons/favicon.ico"] = ico
		}
	}

	// Sized PNG set
	if img != nil {
		for _, size := range pngSizes {
			path := fmt.Sprintf("favicons/favicon-%dx%d.png", size, size)
			if data, err := encodePNGFn(img, size); err != nil {
				p.logger.WithError(err).Warnf("failed to encode %s", path)
			} else {
				result.Files[path] = data
			}
		}

		if data, err := encodePNGFn(img, appleTouchSize); err != nil {
			p.logger.WithError(err).Warn("failed to encode apple-touch-icon")
		} else {
			result.Files["favicons/apple-touch-icon.png"] = data
		}
	}

	// SVG favicon: vector sources are copied verbatim; raster sources are
	// wrapped as a base64-embedded <image>. Pragmatic fallback, not true
	// vectorization.
	if isVector {
		result.Files["favicons/favicon.svg"] = source
	} else if img != nil {
		if data, err := wrapSVGFn(img, pinnedTabSize); err != nil {
			p.logger.WithError(err).Warn("failed to build favicon.svg")
		} else {
			result.Files["favicons/favicon.svg"] = data
		}
	}

	// Safari pinned tab: grayscale then the same embed fallback.
	if isVector {
		result.Files["favicons/safari-pinned-tab.svg"] = source
	} else if img != nil {
		mono := imaging.Grayscale(img)
		if data, err := wrapSVGFn(mono, pinnedTabSize); err != nil {
			p.logger.WithError(err).Warn("failed to build safari-pinned-tab.svg")
		} else {
			result.Files["favicons/safari-pinned-tab.svg"] = data
		}
	}

	result.Links = linkTags(result.Files)
	return result
}

// linkTags returns the <link> tag list for the generated artifacts in
// fixed order: icon, sized PNGs, apple-touch-icon, svg, mask-icon.
func linkTags(files map[string][]byte) []string {
	var links []string

	if _, ok := files["favicons/favicon.ico"]; ok {
		links = append(links, `<link rel="icon" href="/favicons/favicon.ico" sizes="any">`)
	}
	for _, size := range pngSizes {
		path := fmt.Sprintf("favicons/favicon-%dx%d.png", size, size)
		if _, ok := files[path]; ok {
			links = append(links, fmt.Sprintf(`<link rel="icon" type="image/png" sizes="%dx%d" href="/%s">`, size, size, path))
		}
	}
	if _, ok := files["favicons/apple-touch-icon.png"]; ok {
		links = append(links, `<link rel="apple-touch-icon" sizes="180x180" href="/favicons/apple-touch-icon.png">`)
	}
	if _, ok := files["favicons/favicon.svg"]; ok {
		links = append(links, `<link rel="icon" type="image/svg+xml" href="/favicons/favicon.svg">`)
	}
	if _, ok := files["favicons/safari-pinned-tab.svg"]; ok {
		links = append(links, `<link rel="mask-icon" href="/favicons/safari-pinned-tab.svg" color="#000000">`)
	}

	return links
}

// encodePNG resizes to a hard square and encodes as PNG. Favicon sizes do
// not preserve aspect ratio; the source is assumed square.
func encodePNG(img image.Image, size int) ([]byte, error) {
	resized := imaging.Resize(img, size, size, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.PNG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// wrapAsSVG embeds a resized raster as an SVG <image> element.
func wrapAsSVG(img image.Image, size int) ([]byte, error) {
	data, err := encodePNG(img, size)
	if err != nil {
		return nil, err
	}
	b64 := base64.StdEncoding.EncodeToString(data)
	svg := fmt.Sprintf(
		`<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d"><image width="%d" height="%d" href="data:image/png;base64,%s"/></svg>`,
		size, size, size, size, size, size, b64)
	return []byte(svg), nil
}

func isSVG(source []byte, name string) bool {
	if strings.HasSuffix(strings.ToLower(name), ".svg") {
		return true
	}
	head := strings.TrimSpace(string(source[:min(len(source), 256)]))
	return strings.HasPrefix(head, "<svg") || (strings.HasPrefix(head, "<?xml") && strings.Contains(head, "<svg"))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
