package order

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
)

var (
	// totalRe finds a stated order total such as "total $13.99" or
	// "your total comes to $26.99".
	totalRe = regexp.MustCompile(`(?i)\btotal[^$?.!]*(\$\d+(?:\.\d{2})?)`)

	priceRe  = regexp.MustCompile(`\s*[-–—:=]?\s*\(?\$\d+(?:\.\d{2})?\)?`)
	parenRe  = regexp.MustCompile(`\(([^)]*)\)`)
	splitRe  = regexp.MustCompile(`(?i)\s*(?:,|;|\n|•|&|\band\b|\bplus\b)\s*`)
	withRe   = regexp.MustCompile(`(?i)\s+with\s+`)
	sizeRe   = regexp.MustCompile(`(?i)^(\d{2}\s*(?:"|”|''|-?\s?inch(?:es)?\b|in\b)|\d+\s*-?\s*(?:l|liters?|litres?)\b|\d+\s*-?\s*(?:oz|ounces?)\b|extra large|small|large|xl|party|regular)\s*`)
	orderOfs = regexp.MustCompile(`(?i)^(?:an?\s+)?orders?\s+of\s+`)
	couponRe = regexp.MustCompile(`(?i)\b(?:coupon|cup[oó]n|code|c[oó]digo|discount|descuento)\b`)
)

// filler words may surround a summary without naming anything ordered.
var filler = map[string]bool{
	"great": true, "perfect": true, "okay": true, "ok": true, "alright": true,
	"sure": true, "so": true, "thanks": true, "thank": true, "you": true,
	"got": true, "it": true, "that's": true, "thats": true, "is": true,
	"your": true, "order": true, "ordered": true, "i": true, "have": true,
	"here": true, "the": true, "for": true, "let": true, "me": true,
	"repeat": true, "back": true, "to": true, "confirm": true, "we": true,
	"perfecto": true, "listo": true, "su": true, "orden": true, "pedido": true,
	"es": true, "gracias": true, "bien": true, "muy": true,
}

// maxQuantity bounds digit quantities so house numbers are not read as
// line items.
const maxQuantity = 50

var numberWords = map[string]int{
	"a": 1, "an": 1, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"uno": 1, "una": 1, "dos": 2, "tres": 3, "cuatro": 4, "cinco": 5,
}

// TotalIndex returns the byte range of the stated total in text. The total
// phrase never spans sentence punctuation.
func TotalIndex(text string) (start, end int, ok bool) {
	loc := totalRe.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

// StatedTotal returns the amount the text gives as the order total.
func StatedTotal(text string) (catalog.Price, bool) {
	m := totalRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	p, err := catalog.ParsePrice(m[1])
	if err != nil {
		return 0, false
	}
	return p, true
}

// draftLine is a parsed but not yet priced line.
type draftLine struct {
	source   string
	name     string
	size     catalog.Size
	sized    bool
	quantity int
	extras   []string
}

// parseSummary reads the itemized part of an agent summary. Text after the
// stated total is ignored.
func parseSummary(text string) []draftLine {
	body := text
	if start, _, ok := TotalIndex(text); ok {
		body = text[:start]
	}
	body = priceRe.ReplaceAllString(body, "")

	var (
		lines []draftLine
		cur   *draftLine
		// open is true while the current line is still listing toppings.
		open bool
	)
	for _, piece := range splitRe.Split(body, -1) {
		piece = strings.TrimSpace(piece)
		if i := strings.LastIndex(piece, ":"); i >= 0 {
			piece = strings.TrimSpace(piece[i+1:])
		}
		if piece == "" {
			continue
		}

		qty, rest, ok := leadingQuantity(piece)
		if ok {
			if cur != nil {
				lines = append(lines, *cur)
			}
			line, toppings := parseItemPhrase(rest)
			line.source = piece
			line.quantity = qty
			cur = &line
			open = toppings
			continue
		}

		if isChatter(piece) {
			if cur != nil {
				lines = append(lines, *cur)
				cur = nil
			}
			continue
		}
		if cur != nil && open {
			cur.extras = append(cur.extras, trimExtra(piece))
			continue
		}
		if cur != nil {
			lines = append(lines, *cur)
		}
		// Anything else is a line without a spoken quantity. It is priced
		// like every other line so an off-menu name fails extraction.
		line, toppings := parseItemPhrase(piece)
		line.source = piece
		line.quantity = 1
		cur = &line
		open = toppings
	}
	if cur != nil {
		lines = append(lines, *cur)
	}
	return lines
}

// leadingQuantity finds the first quantity word in piece and returns the
// words after it. "a" and "an" only count at the start of a piece.
func leadingQuantity(piece string) (int, string, bool) {
	words := strings.Fields(piece)
	for i, w := range words {
		lw := strings.ToLower(strings.Trim(w, ".!"))
		if n, err := strconv.Atoi(lw); err == nil && n > 0 && n <= maxQuantity {
			if i+1 < len(words) && !isSizeWord(words[i+1]) {
				return n, strings.Join(words[i+1:], " "), true
			}
			continue
		}
		n, ok := numberWords[lw]
		if !ok {
			continue
		}
		if (lw == "a" || lw == "an") && i != 0 {
			continue
		}
		if i+1 < len(words) {
			return n, strings.Join(words[i+1:], " "), true
		}
	}
	return 0, "", false
}

// isChatter reports whether piece only carries coupon talk or filler words.
func isChatter(piece string) bool {
	if couponRe.MatchString(piece) {
		return true
	}
	for _, w := range strings.Fields(piece) {
		if !filler[strings.ToLower(strings.Trim(w, ".,!¡"))] {
			return false
		}
	}
	return true
}

// isSizeWord reports whether w completes a size that started with a
// number, as in "2 liter" or "16 inch".
func isSizeWord(w string) bool {
	switch strings.ToLower(strings.Trim(w, ".,")) {
	case "inch", "inches", "in", "liter", "liters", "litre", "l", "oz", "ounce", "ounces":
		return true
	}
	return false
}

// parseItemPhrase splits `16" Cheese pizza with pepperoni` into size, name
// and extras. It reports whether a topping list was started.
func parseItemPhrase(phrase string) (draftLine, bool) {
	var line draftLine

	for _, m := range parenRe.FindAllStringSubmatch(phrase, -1) {
		for _, part := range strings.Split(m[1], ",") {
			if p := strings.TrimSpace(part); p != "" {
				line.extras = append(line.extras, p)
			}
		}
	}
	phrase = strings.TrimSpace(parenRe.ReplaceAllString(phrase, ""))

	head, tail := phrase, ""
	if loc := withRe.FindStringIndex(phrase); loc != nil {
		head, tail = phrase[:loc[0]], phrase[loc[1]:]
	}
	if tail != "" {
		line.extras = append(line.extras, trimExtra(tail))
	}

	head = orderOfs.ReplaceAllString(strings.TrimSpace(head), "")
	if m := sizeRe.FindStringSubmatch(head); m != nil {
		line.size = catalog.NormalizeSize(m[1])
		line.sized = true
		head = strings.TrimSpace(head[len(m[0]):])
	}
	head = orderOfs.ReplaceAllString(head, "")
	line.name = strings.Trim(head, " .!")
	return line, tail != ""
}

func trimExtra(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "with "), "With ")
	return strings.Trim(s, " .!")
}
