package domain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// doiResolverPrefixes are stripped, in any combination, before comparing DOIs.
var doiResolverPrefixes = []string{
	"https://doi.org/",
	"http://doi.org/",
	"https://dx.doi.org/",
	"http://dx.doi.org/",
	"doi.org/",
	"dx.doi.org/",
	"doi:",
}

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]+>`)
	yearRegex    = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// NormalizeDOI lowercases a DOI and strips resolver prefixes. Values that do
// not look like a DOI (must start with "10.") normalize to "".
func NormalizeDOI(doi string) string {
	d := strings.ToLower(strings.TrimSpace(doi))
	for stripped := true; stripped; {
		stripped = false
		for _, p := range doiResolverPrefixes {
			if strings.HasPrefix(d, p) {
				d = strings.TrimSpace(d[len(p):])
				stripped = true
			}
		}
	}
	if !strings.HasPrefix(d, "10.") || len(d) < 4 {
		return ""
	}
	return d
}

// NormalizeTitle produces the comparison form of a title: composed (NFC),
// case folded, punctuation dropped and whitespace collapsed. Accents are
// significant, so "año" and "ano" stay distinct. Two titles are the same
// article title iff their normalized forms are equal.
func NormalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return ""
	}

	// Casers carry state; build a fresh one per call.
	folded := cases.Fold().String(norm.NFC.String(title))

	var sb strings.Builder
	sb.Grow(len(folded))
	pendingSpace := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteRune(r)
			pendingSpace = false
			continue
		}
		pendingSpace = true
	}
	return sb.String()
}

// CleanTitle tidies a display title: markup removed, whitespace collapsed
// and surrounding quotes dropped. Casing is preserved.
func CleanTitle(title string) string {
	t := htmlTagRegex.ReplaceAllString(title, "")
	t = strings.Join(strings.Fields(t), " ")
	for len(t) >= 2 {
		first, last := t[0], t[len(t)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			t = strings.TrimSpace(t[1 : len(t)-1])
			continue
		}
		break
	}
	return t
}

// CleanText collapses whitespace and removes markup, for abstracts and venues.
func CleanText(s string) string {
	s = htmlTagRegex.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeYear extracts a four-digit 19xx/20xx year from free text.
// It returns 0 when none is found.
func NormalizeYear(s string) int {
	m := yearRegex.FindString(s)
	if m == "" {
		return 0
	}
	y, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return y
}

// NormalizeName normalizes an author name for comparison:
//   - Converts to lowercase
//   - Detects and reorders "Last, First" format to "First Last"
//   - Removes all non-letter, non-space characters (apostrophes, periods, hyphens, etc.)
//   - Collapses multiple spaces to a single space
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ""
	}

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false
	for _, r := range name {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) {
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// CleanAuthors trims author names, drops empties and removes names that
// normalize to one already listed. Order is preserved.
func CleanAuthors(authors []string) []string {
	if len(authors) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(authors))
	out := make([]string, 0, len(authors))
	for _, a := range authors {
		a = strings.Join(strings.Fields(a), " ")
		key := NormalizeName(a)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
