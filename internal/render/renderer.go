package render

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"html"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"go_sitegen/internal/model"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{([a-zA-Z0-9_.-]+)\}\}`)
	imgTagRe      = regexp.MustCompile(`<img\s[^>]*>`)
	imgSrcRe      = regexp.MustCompile(`src="([^"]*)"`)
)

// Renderer produces the static HTML/CSS for one site from its template.
type Renderer struct{}

// NewRenderer creates a renderer
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Block is one ordered content block of a page.
type Block struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Result holds the rendered output for one page (or for the shared assets
// when no page is given).
type Result struct {
	HTML string
	CSS  string
}

// Render substitutes template variables, applies color overrides and
// rewrites images for one page. page may be nil when rendering shared
// CSS/JS only.
func (r *Renderer) Render(tpl *model.Template, site *model.Site, page *model.Page) Result {
	vars := r.mergeVariables(site, page)

	htmlOut := substitute(tpl.HTML, vars)
	cssOut := tpl.CSS

	if tpl.SupportsColorCustom {
		cssOut = applyColors(cssOut, siteColors(site))
	}

	if tpl.SupportsPageSpeed && site.EnablePageSpeed {
		slug := ""
		if page != nil {
			slug = page.Slug
		}
		htmlOut = rewriteImages(htmlOut, site.ID, slug)
	}

	return Result{HTML: htmlOut, CSS: cssOut}
}

// mergeVariables merges the site variable map with built-ins. Built-ins win
// over site-provided values of the same name.
func (r *Renderer) mergeVariables(site *model.Site, page *model.Page) map[string]string {
	vars := map[string]string{}

	if len(site.Variables) > 0 {
		// Ignore malformed JSON, leaving the map empty
		_ = json.Unmarshal(site.Variables, &vars)
	}

	vars["brand_name"] = site.BrandName
	vars["domain"] = site.Domain
	vars["year"] = fmt.Sprintf("%d", time.Now().Year())
	vars["lang"] = site.Language

	if page != nil {
		vars["page_title"] = page.Title
		vars["page_slug"] = page.Slug
		vars["content"] = renderBlocks(page)
	}

	return vars
}

// substitute replaces every {{name}} occurrence with its value. Unresolved
// placeholders are left verbatim.
func substitute(input string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(input, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return m
	})
}

// renderBlocks renders the page's ordered block list into section markup.
func renderBlocks(page *model.Page) string {
	if len(page.Blocks) == 0 {
		return ""
	}
	var blocks []Block
	if err := json.Unmarshal(page.Blocks, &blocks); err != nil {
		return ""
	}

	var b strings.Builder
	for _, block := range blocks {
		switch block.Type {
		case "heading":
			b.WriteString(fmt.Sprintf("<h2>%s</h2>\n", html.EscapeString(block.Content)))
		case "html":
			// Raw block content is authored upstream, passed through as-is
			b.WriteString(block.Content)
			b.WriteString("\n")
		default:
			b.WriteString(fmt.Sprintf("<div class=\"block block-%s\">%s</div>\n", block.Type, block.Content))
		}
	}
	return b.String()
}

func siteColors(site *model.Site) map[string]string {
	colors := map[string]string{}
	if len(site.Colors) > 0 {
		_ = json.Unmarshal(site.Colors, &colors)
	}
	return colors
}

// applyColors rewrites `--name: #hex;` custom-property declarations.
func applyColors(css string, colors map[string]string) string {
	for name, hex := range colors {
		re, err := regexp.Compile(`--` + regexp.QuoteMeta(name) + `:\s*#[0-9a-fA-F]{3,8}\s*;`)
		if err != nil {
			continue
		}
		css = re.ReplaceAllString(css, fmt.Sprintf("--%s: %s;", name, hex))
	}
	return css
}

// Responsive width ranges requested from the image CDN.
const (
	mobileWidthMin  = 470
	mobileWidthMax  = 490
	desktopWidthMin = 790
	desktopWidthMax = 810
)

// rewriteImages replaces every <img> tag with a <picture> element carrying
// two webp <source> variants plus the original tag as fallback. Widths are
// drawn from a generator seeded by (siteID, slug) so re-rendering the same
// page is byte-stable.
func rewriteImages(input string, siteID int, slug string) string {
	rng := rand.New(rand.NewSource(imageSeed(siteID, slug)))

	return imgTagRe.ReplaceAllStringFunc(input, func(tag string) string {
		src := imgSrcRe.FindStringSubmatch(tag)
		if src == nil {
			return tag
		}

		mobile := mobileWidthMin + rng.Intn(mobileWidthMax-mobileWidthMin+1)
		desktop := desktopWidthMin + rng.Intn(desktopWidthMax-desktopWidthMin+1)

		var b strings.Builder
		b.WriteString("<picture>")
		b.WriteString(fmt.Sprintf(`<source media="(max-width: 768px)" srcset="%s?format=webp&width=%d" type="image/webp">`, src[1], mobile))
		b.WriteString(fmt.Sprintf(`<source media="(min-width: 769px)" srcset="%s?format=webp&width=%d" type="image/webp">`, src[1], desktop))
		b.WriteString(tag)
		b.WriteString("</picture>")
		return b.String()
	})
}

func imageSeed(siteID int, slug string) int64 {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d/%s", siteID, slug)
	return int64(h.Sum64())
}
