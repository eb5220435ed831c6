package order

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-fivestars/pkg/catalog"
	"github.com/teslashibe/go-fivestars/pkg/conversation"
)

var (
	nameRe    = regexp.MustCompile(`(?i:\b(?:my name is|name is|this is|me llamo|mi nombre es))\s+(\p{Lu}[\p{L}'-]+(?:\s\p{Lu}[\p{L}'-]+)?)`)
	addressRe = regexp.MustCompile(`(?i)\b(?:address is|deliver(?:ed)? to|delivery to|send it to)\s+([^.?!]+)`)
	phoneRe   = regexp.MustCompile(`\(?\b\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)
	cashRe    = regexp.MustCompile(`(?i)\b(?:cash|efectivo)\b`)
	cardRe    = regexp.MustCompile(`(?i)\b(?:card|credit|debit|tarjeta)\b`)
)

// Extractor builds Orders from finished conversations, pricing every line
// from the catalog.
type Extractor struct {
	catalog *catalog.Catalog
	newID   func() string
	now     func() time.Time
}

// NewExtractor creates an Extractor over cat.
func NewExtractor(cat *catalog.Catalog) *Extractor {
	return &Extractor{
		catalog: cat,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Extract produces the Order for a finished session. When call is a
// submit_order tool call its arguments are used; otherwise the latest agent
// summary in transcript is parsed. Every item, size and topping must exist
// in the catalog.
func (e *Extractor) Extract(sessionID string, transcript conversation.Transcript, call *conversation.ToolCall) (*Order, error) {
	var (
		drafts   []draftLine
		coupon   string
		customer Customer
		stated   catalog.Price
		checked  bool
	)

	if call != nil && call.Name == SubmitToolName {
		args, err := ParseSubmitArgs(call)
		if err != nil {
			return nil, err
		}
		for _, it := range args.Items {
			d := draftLine{
				source:   it.Name,
				name:     it.Name,
				quantity: it.Quantity,
				extras:   append(append([]string(nil), it.Toppings...), it.Options...),
			}
			if strings.TrimSpace(it.Size) != "" {
				d.size = catalog.NormalizeSize(it.Size)
				d.sized = true
			}
			drafts = append(drafts, d)
		}
		coupon = strings.TrimSpace(args.Coupon)
		customer = Customer{
			Name:    args.CustomerName,
			Address: args.Address,
			Phone:   args.Phone,
			Payment: args.PaymentMethod,
		}
	} else {
		summary, ok := lastSummary(e.catalog, transcript)
		if !ok {
			return nil, extractionErr("no itemized summary", "", ErrNoSummary)
		}
		drafts = parseSummary(summary)
		coupon = e.findCoupon(summary)
		stated, checked = StatedTotal(summary)
	}

	if len(drafts) == 0 {
		return nil, extractionErr("no line items", "", ErrNoSummary)
	}

	items := make([]LineItem, 0, len(drafts))
	for _, d := range drafts {
		li, err := e.price(d)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}

	o := &Order{
		ID:        e.newID(),
		SessionID: sessionID,
		Customer:  mergeCustomer(customer, customerFromTranscript(transcript)),
		Items:     items,
		CreatedAt: e.now(),
	}
	for _, li := range items {
		o.Subtotal += li.Total()
	}

	if coupon != "" {
		cp, ok := e.catalog.Coupon(coupon)
		if !ok {
			return nil, extractionErr("unknown coupon "+coupon, "", catalog.ErrNotFound)
		}
		discount, err := applyCoupon(cp, items)
		if err != nil {
			return nil, extractionErr("coupon "+cp.Code, "", err)
		}
		o.Coupon = cp.Code
		o.Discount = discount
	}
	o.Total = o.Subtotal - o.Discount

	if checked && stated != o.Total {
		return nil, extractionErr(fmt.Sprintf("stated total %s, items total %s", stated, o.Total), "", ErrTotalMismatch)
	}
	return o, nil
}

// price validates a draft against the catalog and computes its unit price.
func (e *Extractor) price(d draftLine) (LineItem, error) {
	if d.quantity <= 0 {
		return LineItem{}, extractionErr("invalid quantity", d.source, nil)
	}

	it, trailing, ok := e.lookup(d.name)
	if !ok {
		return LineItem{}, extractionErr(fmt.Sprintf("unknown item %q", d.name), d.source, catalog.ErrNotFound)
	}

	size, sized := d.size, d.sized
	if !sized && trailing != "" {
		if s := catalog.NormalizeSize(trailing); s != catalog.SizeRegular {
			if _, known := it.Prices[s]; known {
				size, sized = s, true
			}
		}
	}

	var options, toppings []string
	for _, extra := range d.extras {
		if s := catalog.NormalizeSize(extra); !sized {
			if _, known := it.Prices[s]; known && s != catalog.SizeRegular {
				size, sized = s, true
				continue
			}
		}
		if opt, ok := matchOption(it, extra); ok {
			options = append(options, opt)
			continue
		}
		for _, name := range splitRe.Split(extra, -1) {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			t, ok := e.catalog.IsTopping(name)
			if !ok || !it.Pizza {
				return LineItem{}, extractionErr(fmt.Sprintf("unknown topping %q for %s", name, it.Name), d.source, catalog.ErrNotFound)
			}
			toppings = append(toppings, t)
		}
	}

	if !sized {
		if len(it.Prices) != 1 {
			return LineItem{}, extractionErr("missing size for "+it.Name, d.source, nil)
		}
		for s := range it.Prices {
			size = s
		}
	}

	unit, err := e.catalog.Resolve(it.Name, size)
	if err != nil {
		return LineItem{}, extractionErr("unavailable size", d.source, err)
	}
	if len(toppings) > 0 {
		tp, err := e.catalog.ToppingPrice(it.Name, size)
		if err != nil {
			return LineItem{}, extractionErr("topping price", d.source, err)
		}
		unit += tp * catalog.Price(len(toppings))
	}

	return LineItem{
		Product:   it.Name,
		Size:      size,
		Toppings:  toppings,
		Options:   options,
		Quantity:  d.quantity,
		UnitPrice: unit,
	}, nil
}

// lookup resolves the longest leading run of words in name that is a
// catalog item and returns the words left over.
func (e *Extractor) lookup(name string) (*catalog.Item, string, bool) {
	words := strings.Fields(name)
	for k := len(words); k > 0; k-- {
		if it, ok := e.catalog.LookupItem(strings.Join(words[:k], " ")); ok {
			rest := words[k:]
			if len(rest) > 0 && strings.EqualFold(rest[0], "pizza") {
				rest = rest[1:]
			}
			return it, strings.Join(rest, " "), true
		}
	}
	return nil, "", false
}

func (e *Extractor) findCoupon(text string) string {
	for _, cp := range e.catalog.Coupons {
		re := regexp.MustCompile(`\b` + regexp.QuoteMeta(cp.Code) + `\b`)
		if re.MatchString(text) {
			return cp.Code
		}
	}
	return ""
}

func matchOption(it *catalog.Item, s string) (string, bool) {
	for _, opt := range it.Options {
		if strings.EqualFold(strings.TrimSpace(s), opt) {
			return opt, true
		}
	}
	return "", false
}

// lastSummary returns the most recent agent turn that itemizes catalog
// products and states a total.
func lastSummary(cat *catalog.Catalog, transcript conversation.Transcript) (string, bool) {
	for i := len(transcript) - 1; i >= 0; i-- {
		t := transcript[i]
		if t.Role != conversation.RoleAgent {
			continue
		}
		if _, _, ok := TotalIndex(t.Content); ok && cat.MentionsItem(t.Content) {
			return t.Content, true
		}
	}
	return "", false
}

// customerFromTranscript picks contact details out of what the customer said.
func customerFromTranscript(transcript conversation.Transcript) Customer {
	var c Customer
	for _, t := range transcript.By(conversation.RoleUser) {
		if m := nameRe.FindStringSubmatch(t.Content); m != nil {
			c.Name = m[1]
		}
		if m := addressRe.FindStringSubmatch(t.Content); m != nil {
			c.Address = strings.TrimSpace(m[1])
		}
		if m := phoneRe.FindString(t.Content); m != "" {
			c.Phone = m
		}
		switch {
		case cashRe.MatchString(t.Content):
			c.Payment = "cash"
		case cardRe.MatchString(t.Content):
			c.Payment = "card"
		}
	}
	return c
}

func mergeCustomer(primary, fallback Customer) Customer {
	if primary.Name == "" {
		primary.Name = fallback.Name
	}
	if primary.Address == "" {
		primary.Address = fallback.Address
	}
	if primary.Phone == "" {
		primary.Phone = fallback.Phone
	}
	if primary.Payment == "" {
		primary.Payment = fallback.Payment
	}
	return primary
}
