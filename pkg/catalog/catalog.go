// Package catalog holds the restaurant menu the agent is allowed to sell.
//
// A Catalog is built once at process start and never mutated. The same
// value renders the model instruction (Instructions) and validates
// extracted orders (Resolve), so the menu text the model sees and the
// prices the kitchen charges cannot drift apart.
package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ErrNotFound is returned when an item, size, topping or coupon is not on the menu.
var ErrNotFound = errors.New("catalog: not found")

// Price is an amount in US cents.
type Price int64

// String formats the price as dollars, e.g. "$13.99".
func (p Price) String() string {
	sign := ""
	if p < 0 {
		sign = "-"
		p = -p
	}
	return fmt.Sprintf("%s$%d.%02d", sign, p/100, p%100)
}

// Dollars returns the price as a float, for JSON payloads.
func (p Price) Dollars() float64 {
	return float64(p) / 100
}

var priceRe = regexp.MustCompile(`^\$?\s*(\d+)(?:\.(\d{1,2}))?$`)

// ParsePrice parses "$13.99", "13.99" or "$14".
func ParsePrice(s string) (Price, error) {
	m := priceRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("catalog: invalid price %q", s)
	}
	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("catalog: invalid price %q: %w", s, err)
	}
	var cents int64
	if m[2] != "" {
		frac := m[2]
		if len(frac) == 1 {
			frac += "0"
		}
		cents, _ = strconv.ParseInt(frac, 10, 64)
	}
	return Price(whole*100 + cents), nil
}

// Size identifies a priced variant of an item. Pizza sizes are inches
// (`16"`); other items use their own unit ("2L", "20oz"). Single-price
// items use SizeRegular.
type Size string

// Known sizes.
const (
	SizeRegular Size = ""
	Size12      Size = `12"`
	Size16      Size = `16"`
	Size18      Size = `18"`
	Size24      Size = `24"`
	Size2L      Size = "2L"
	Size20oz    Size = "20oz"
)

var (
	inchRe  = regexp.MustCompile(`^(\d{2})\s*(?:"|''|”|in|inch|inches|-inch)?$`)
	literRe = regexp.MustCompile(`^(\d+)\s*(?:l|liter|liters|litre|litres|-liter)$`)
	ounceRe = regexp.MustCompile(`^(\d+)\s*(?:oz|ounce|ounces|-ounce)$`)
)

var namedSizes = map[string]Size{
	"small":       Size12,
	"large":       Size16,
	"extra large": Size18,
	"xl":          Size18,
	"party":       Size24,
	"regular":     SizeRegular,
}

// NormalizeSize maps spoken or written sizes ("16 inch", "large", "2 liter")
// onto the canonical Size values used in the menu.
func NormalizeSize(s string) Size {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" {
		return SizeRegular
	}
	if named, ok := namedSizes[v]; ok {
		return named
	}
	if m := inchRe.FindStringSubmatch(v); m != nil {
		return Size(m[1] + `"`)
	}
	if m := literRe.FindStringSubmatch(v); m != nil {
		return Size(m[1] + "L")
	}
	if m := ounceRe.FindStringSubmatch(v); m != nil {
		return Size(m[1] + "oz")
	}
	return Size(v)
}

// Item is a single sellable product.
type Item struct {
	Name        string
	Aliases     []string
	Description string
	Prices      map[Size]Price
	// Sizes lists the keys of Prices in display order.
	Sizes []Size
	// Includes lists the toppings or components that come with the item.
	Includes []string
	// Options are free choices that do not change the price (wing flavors).
	Options []string
	// Pizza marks items that accept extra toppings.
	Pizza bool
	// ToppingPrice overrides the catalog per-size topping price when non-zero.
	ToppingPrice Price
}

// Category groups items on the menu.
type Category struct {
	Name  string
	Note  string
	Items []Item
}

// Coupon is a fixed-price deal.
type Coupon struct {
	Code        string
	Description string
	Total       Price
	Eligibility string
	Requires    []Requirement
}

// Requirement is one slot of a coupon: Count units of Item in Size with at
// most Toppings extra toppings. An empty Size matches single-price items.
type Requirement struct {
	Item     string
	Size     Size
	Toppings int
	Count    int
}

// Catalog is the immutable menu.
type Catalog struct {
	Name          string
	Categories    []Category
	Toppings      []string
	ToppingPrices map[Size]Price
	Coupons       []Coupon

	items    map[string]*Item
	toppings map[string]string
	coupons  map[string]*Coupon
}

// New indexes the given categories, toppings and coupons into a Catalog.
// Item names and aliases must be unique across categories.
func New(name string, categories []Category, toppings []string, toppingPrices map[Size]Price, coupons []Coupon) (*Catalog, error) {
	c := &Catalog{
		Name:          name,
		Categories:    categories,
		Toppings:      toppings,
		ToppingPrices: toppingPrices,
		Coupons:       coupons,
		items:         make(map[string]*Item),
		toppings:      make(map[string]string),
		coupons:       make(map[string]*Coupon),
	}

	for ci := range c.Categories {
		for ii := range c.Categories[ci].Items {
			it := &c.Categories[ci].Items[ii]
			if len(it.Prices) == 0 {
				return nil, fmt.Errorf("catalog: item %q has no prices", it.Name)
			}
			for _, key := range append([]string{it.Name}, it.Aliases...) {
				k := normalizeName(key)
				if _, dup := c.items[k]; dup {
					return nil, fmt.Errorf("catalog: duplicate item name %q", key)
				}
				c.items[k] = it
			}
		}
	}
	for _, t := range toppings {
		k := normalizeName(t)
		c.toppings[k] = t
		c.toppings[strings.ReplaceAll(k, "ñ", "n")] = t
	}
	for i := range c.Coupons {
		c.coupons[strings.ToUpper(c.Coupons[i].Code)] = &c.Coupons[i]
	}
	return c, nil
}

// LookupItem finds an item by name or alias, ignoring case, plurals and a
// trailing "pizza".
func (c *Catalog) LookupItem(name string) (*Item, bool) {
	k := normalizeName(name)
	candidates := []string{
		k,
		strings.TrimSuffix(k, " pizza"),
		strings.TrimSuffix(k, " pizzas"),
		strings.TrimSuffix(k, "s"),
	}
	for _, cand := range candidates {
		if it, ok := c.items[cand]; ok {
			return it, true
		}
	}
	return nil, false
}

// Resolve returns the price of item in the given size. Single-price items
// resolve for SizeRegular; an unknown item or size yields ErrNotFound.
func (c *Catalog) Resolve(item string, size Size) (Price, error) {
	it, ok := c.LookupItem(item)
	if !ok {
		return 0, fmt.Errorf("%w: item %q", ErrNotFound, item)
	}
	if p, ok := it.Prices[size]; ok {
		return p, nil
	}
	if size == SizeRegular && len(it.Prices) == 1 {
		for _, p := range it.Prices {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: size %q of %s", ErrNotFound, string(size), it.Name)
}

// IsTopping reports whether name is an available topping and returns its
// canonical spelling.
func (c *Catalog) IsTopping(name string) (string, bool) {
	k := strings.ReplaceAll(normalizeName(name), "ñ", "n")
	for _, cand := range []string{k, k + "s", strings.TrimSuffix(k, "s"), k + "es"} {
		if t, ok := c.toppings[cand]; ok {
			return t, true
		}
	}
	return "", false
}

// ToppingPrice returns the surcharge for one extra topping on item in size.
func (c *Catalog) ToppingPrice(item string, size Size) (Price, error) {
	it, ok := c.LookupItem(item)
	if !ok {
		return 0, fmt.Errorf("%w: item %q", ErrNotFound, item)
	}
	if !it.Pizza {
		return 0, fmt.Errorf("%w: %s does not take toppings", ErrNotFound, it.Name)
	}
	if it.ToppingPrice > 0 {
		return it.ToppingPrice, nil
	}
	p, ok := c.ToppingPrices[size]
	if !ok {
		return 0, fmt.Errorf("%w: topping price for size %q", ErrNotFound, string(size))
	}
	return p, nil
}

// Coupon returns the coupon for code, ignoring case.
func (c *Catalog) Coupon(code string) (Coupon, bool) {
	cp, ok := c.coupons[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return Coupon{}, false
	}
	return *cp, true
}

// ItemNames returns every item name and alias, longest first, so callers
// scanning free text match "Bacon Double Cheeseburger" before "Cheese".
func (c *Catalog) ItemNames() []string {
	names := make([]string, 0, len(c.items))
	for k := range c.items {
		names = append(names, k)
	}
	sortLongestFirst(names)
	return names
}

// ToppingNames returns the canonical topping names, longest first.
func (c *Catalog) ToppingNames() []string {
	names := make([]string, 0, len(c.toppings))
	for k := range c.toppings {
		names = append(names, k)
	}
	sortLongestFirst(names)
	return names
}

// MentionsItem reports whether text names at least one catalog item.
func (c *Catalog) MentionsItem(text string) bool {
	lower := " " + normalizeName(text) + " "
	for _, name := range c.ItemNames() {
		if containsWord(lower, name) {
			return true
		}
	}
	return false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}

func sortLongestFirst(names []string) {
	sort.Slice(names, func(i, j int) bool { return less(names[i], names[j]) })
}

func less(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a < b
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(word)
		if isBoundary(haystack, start-1) && isBoundary(haystack, end) {
			return true
		}
		idx = start + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	ch := s[i]
	return !(ch >= 'a' && ch <= 'z' || ch >= '0' && ch <= '9')
}
