package collector

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/koral-tools/eltunt-cli/internal/model"
)

// personRef is one entry on a listing page: the detail-page link plus
// whatever the list itself already shows.
type personRef struct {
	URL       string
	Name      string
	BirthDate string
}

var (
	totalRe      = regexp.MustCompile(`Összes találat:\s*(?:</?[a-zA-Z][^>]*>\s*)*(\d+)`)
	hrefRe       = regexp.MustCompile(`<a[^>]+href="([^"]+)"`)
	nameDivRe    = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*name[^"]*"[^>]*>(.*?)</div>`)
	birthDivRe   = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*szul_datum[^"]*"[^>]*>(.*?)</div>`)
	titleRe      = regexp.MustCompile(`(?is)<h1[^>]*class="[^"]*page-title[^"]*"[^>]*>(.*?)</h1>`)
	lineDivRe    = regexp.MustCompile(`(?is)<div[^>]*class="[^"]*line[^"]*"[^>]*>(.*?)</div>`)
	labelRe      = regexp.MustCompile(`(?is)<label[^>]*>(.*?)</label>`)
	tagRe        = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// hasNoResults reports whether a listing page is past the last result.
func hasNoResults(html string) bool {
	return strings.Contains(html, "Nincs találat")
}

// parseTotal extracts the total result count from the "Összes találat"
// block of the first listing page.
func parseTotal(html string) (int, bool) {
	m := totalRe.FindStringSubmatch(html)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseListing extracts the person entries of one listing page. Entries
// are the "col overlay" blocks inside the missing-person grid; relative
// detail links are resolved against base.
func parseListing(base *url.URL, html string) []personRef {
	segments := strings.Split(html, `class="col overlay`)
	if len(segments) < 2 {
		return nil
	}

	var refs []personRef
	for _, seg := range segments[1:] {
		m := hrefRe.FindStringSubmatch(seg)
		if m == nil {
			continue
		}
		link := m[1]
		if u, err := url.Parse(link); err == nil {
			link = base.ResolveReference(u).String()
		}

		ref := personRef{URL: link}
		if nm := nameDivRe.FindStringSubmatch(seg); nm != nil {
			ref.Name = cleanText(nm[1])
		}
		if bm := birthDivRe.FindStringSubmatch(seg); bm != nil {
			ref.BirthDate = valueAfterColon(cleanText(bm[1]))
		}
		refs = append(refs, ref)
	}
	return refs
}

// parseDetail extracts one person's record from a detail page. The
// listing's pre-extracted name and birth date win over the detail page
// where both exist; the disappearance date lands under cycleCol.
func parseDetail(html string, cycleCol string, pre personRef) model.Record {
	rec := make(model.Record, 8)
	set := func(col, val string) {
		if val != "" {
			rec.Set(col, model.String(val))
		}
	}
	set(model.ColName, pre.Name)
	set(model.ColBirthDate, pre.BirthDate)

	if rec.Get(model.ColName).IsMissing() {
		if m := titleRe.FindStringSubmatch(html); m != nil {
			set(model.ColName, cleanText(m[1]))
		}
	}

	for _, line := range lineDivRe.FindAllStringSubmatch(html, -1) {
		lm := labelRe.FindStringSubmatch(line[1])
		if lm == nil {
			continue
		}
		field := cleanText(lm[1])
		value := valueAfterColon(cleanText(line[1]))
		if value == "" {
			continue
		}

		switch field {
		case "Nem":
			set(model.ColGender, value)
		case "Születési hely":
			set(model.ColBirthPlace, value)
		case "Születési dátum":
			if rec.Get(model.ColBirthDate).IsMissing() {
				set(model.ColBirthDate, value)
			}
		case "Születési ország":
			set(model.ColBirthCountry, value)
		case "Eltűnés dátuma":
			set(cycleCol, value)
		case "Körözést elrendelő szerv":
			set(model.ColOrderingAuthority, value)
		case "Körözési eljárás határozat száma, eljárás iktatószáma":
			set(model.ColCaseReference, value)
		}
	}
	return rec
}

// cleanText strips tags, decodes the common entities, and collapses
// whitespace.
func cleanText(s string) string {
	s = tagRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	).Replace(s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func valueAfterColon(s string) string {
	if _, after, ok := strings.Cut(s, ":"); ok {
		return strings.TrimSpace(after)
	}
	return ""
}
