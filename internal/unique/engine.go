package unique

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
)

var classSelectorRe = regexp.MustCompile(`\.(-?[_a-zA-Z][_a-zA-Z0-9-]*)`)

// Engine rewrites a template's CSS class names into a per-site unique set
// so that sites sharing one template do not look like duplicates.
type Engine struct{}

// NewEngine creates a uniqueness engine
func NewEngine() *Engine {
	return &Engine{}
}

// Result carries the rewritten stylesheet, the rewritten pages and the
// applied class mapping.
type Result struct {
	CSS     string
	Pages   map[string]string
	Mapping map[string]string
}

// Uniquify extracts the class selectors from css, builds a deterministic
// per-site mapping and rewrites css and every page consistently. pool may
// be nil, in which case generated hash-prefixed names are used. A css with
// zero extractable classes yields an empty mapping and unmodified content.
func (e *Engine) Uniquify(css string, pages map[string]string, siteID int, pool []string) Result {
	classes := ExtractClasses(css)
	if len(classes) == 0 {
		return Result{CSS: css, Pages: pages, Mapping: map[string]string{}}
	}

	mapping := BuildMapping(classes, siteID, pool)
	return e.Apply(css, pages, mapping)
}

// Apply rewrites css and pages with a previously built (or cached) mapping.
func (e *Engine) Apply(css string, pages map[string]string, mapping map[string]string) Result {
	outPages := make(map[string]string, len(pages))
	for path, html := range pages {
		outPages[path] = rewriteClassAttributes(html, mapping)
	}
	return Result{
		CSS:     rewriteSelectors(css, mapping),
		Pages:   outPages,
		Mapping: mapping,
	}
}

// ExtractClasses returns the distinct class selectors of a stylesheet in
// sorted order.
func ExtractClasses(css string) []string {
	seen := map[string]bool{}
	for _, m := range classSelectorRe.FindAllStringSubmatch(css, -1) {
		seen[m[1]] = true
	}
	classes := make([]string, 0, len(seen))
	for class := range seen {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// BuildMapping assigns a unique replacement to every class. The assignment
// is deterministic for a given (siteID, classes, pool) triple: the rng is
// seeded from siteID, so incremental re-deploys reproduce the same names.
func BuildMapping(classes []string, siteID int, pool []string) map[string]string {
	rng := rand.New(rand.NewSource(int64(siteID)))
	mapping := make(map[string]string, len(classes))
	used := make(map[string]bool, len(classes))

	var shuffled []string
	if len(pool) > 0 {
		shuffled = append([]string(nil), pool...)
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
	}

	prefix := siteHashPrefix(siteID)

	for i, class := range classes {
		var name string
		switch {
		case i < len(shuffled):
			name = shuffled[i]
		default:
			name = fmt.Sprintf("_%s_%s", prefix, class)
		}

		// Re-resolve collisions before returning; the mapping must stay a
		// bijection over the extracted class set.
		for used[name] {
			name = fmt.Sprintf("_%s_%s%d", prefix, class, rng.Intn(100000))
		}

		mapping[class] = name
		used[name] = true
	}

	return mapping
}

// siteHashPrefix derives a short stable prefix from the site id so that
// generated names from different sites are unlikely to collide.
func siteHashPrefix(siteID int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("site-%d", siteID)))
	return hex.EncodeToString(sum[:4])
}

// rewriteSelectors replaces every class selector occurrence in the CSS,
// including pseudo-classes and compound selectors, using word-boundary-safe
// substitution.
func rewriteSelectors(css string, mapping map[string]string) string {
	return classSelectorRe.ReplaceAllStringFunc(css, func(m string) string {
		class := m[1:]
		if repl, ok := mapping[class]; ok {
			return "." + repl
		}
		return m
	})
}

var classAttrRe = regexp.MustCompile(`class="([^"]*)"`)

// rewriteClassAttributes rewrites class="..." attribute values token by
// token; tokens absent from the mapping stay untouched.
func rewriteClassAttributes(html string, mapping map[string]string) string {
	return classAttrRe.ReplaceAllStringFunc(html, func(attr string) string {
		value := classAttrRe.FindStringSubmatch(attr)[1]
		tokens := strings.Fields(value)
		for i, token := range tokens {
			if repl, ok := mapping[token]; ok {
				tokens[i] = repl
			}
		}
		return fmt.Sprintf(`class="%s"`, strings.Join(tokens, " "))
	})
}

// CSSHash fingerprints a stylesheet; a cached mapping is only valid while
// the template's stylesheet hash matches.
func CSSHash(css string) string {
	sum := sha256.Sum256([]byte(css))
	return hex.EncodeToString(sum[:])
}
