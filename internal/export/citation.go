package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/helixir/research-finder/internal/domain"
)

var bibtexEscaper = strings.NewReplacer(
	`\`, `\textbackslash{}`,
	`{`, `\{`,
	`}`, `\}`,
	`&`, `\&`,
	`%`, `\%`,
	`$`, `\$`,
	`#`, `\#`,
	`_`, `\_`,
)

func writeBibTeX(w io.Writer, records []domain.ArticleRecord) error {
	bw := bufio.NewWriter(w)
	used := make(map[string]int)

	for i, r := range records {
		key := citationKey(r, i, used)
		fmt.Fprintf(bw, "@article{%s,\n", key)
		bibField(bw, "title", r.Title)
		bibField(bw, "author", strings.Join(r.Authors, " and "))
		if r.Year != 0 {
			bibField(bw, "year", strconv.Itoa(r.Year))
		}
		bibField(bw, "journal", r.Venue)
		if r.DOI != "" {
			// DOIs and URLs are emitted verbatim; escaping would break them.
			fmt.Fprintf(bw, "  doi = {%s},\n", r.DOI)
		}
		if r.URL != "" {
			fmt.Fprintf(bw, "  url = {%s},\n", r.URL)
		}
		bibField(bw, "abstract", r.Abstract)
		if r.CitationCount != nil {
			bibField(bw, "note", fmt.Sprintf("Cited by %d", *r.CitationCount))
		}
		bw.WriteString("}\n\n")
	}
	return bw.Flush()
}

func bibField(w *bufio.Writer, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "  %s = {%s},\n", name, bibtexEscaper.Replace(value))
}

// citationKey builds surname+year keys, suffixing a, b, ... on collision.
func citationKey(r domain.ArticleRecord, index int, used map[string]int) string {
	base := ""
	if first := domain.NormalizeName(r.FirstAuthor()); first != "" {
		fields := strings.Fields(first)
		base = keyFold(fields[len(fields)-1])
	}
	if base == "" {
		base = "paper" + strconv.Itoa(index+1)
	}
	if r.Year != 0 {
		base += strconv.Itoa(r.Year)
	}

	n := used[base]
	used[base] = n + 1
	if n == 0 {
		return base
	}
	return base + suffix(n)
}

// keyFold reduces a surname to the ASCII letters and digits BibTeX keys
// tolerate: "Müller" becomes "muller".
func keyFold(s string) string {
	stripMarks := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	var sb strings.Builder
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// suffix returns "a" for 1, "b" for 2, ..., "z", "aa", ...
func suffix(n int) string {
	var s []byte
	for n > 0 {
		n--
		s = append([]byte{byte('a' + n%26)}, s...)
		n /= 26
	}
	return string(s)
}

func writeRIS(w io.Writer, records []domain.ArticleRecord) error {
	bw := bufio.NewWriter(w)
	for _, r := range records {
		risTag(bw, "TY", "JOUR")
		risTag(bw, "TI", r.Title)
		for _, a := range r.Authors {
			risTag(bw, "AU", a)
		}
		if r.Year != 0 {
			risTag(bw, "PY", strconv.Itoa(r.Year))
		}
		risTag(bw, "JO", r.Venue)
		risTag(bw, "AB", r.Abstract)
		risTag(bw, "DO", r.DOI)
		risTag(bw, "UR", r.URL)
		if r.CitationCount != nil {
			risTag(bw, "N1", fmt.Sprintf("Cited by %d", *r.CitationCount))
		}
		bw.WriteString("ER  - \n\n")
	}
	return bw.Flush()
}

func risTag(w *bufio.Writer, tag, value string) {
	value = strings.Join(strings.Fields(value), " ")
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%s  - %s\n", tag, value)
}
