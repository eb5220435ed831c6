package catalog

import (
	"strings"
	"testing"
)

func TestInstructionsDeterministic(t *testing.T) {
	c := FiveStars()
	a := c.Instructions(LocaleEnglish, "submit_order")
	b := c.Instructions(LocaleEnglish, "submit_order")
	if a != b {
		t.Fatal("instructions differ between calls")
	}
}

func TestInstructionsContent(t *testing.T) {
	c := FiveStars()
	text := c.Instructions(LocaleEnglish, "submit_order")

	wants := []string{
		"FiveStars Pizzeria",
		"Only accept products",
		"state the total cost",
		"bring the customer back",
		"continue in their language",
		"submit_order",
		`16" $13.99`,
		"Hawaiian (Ham, Pineapple)",
		"ZLG1",
		"$26.99",
		"Per topping: 12\" $1.50",
		"Bottled Water: $1.09",
	}
	for _, w := range wants {
		if !strings.Contains(text, w) {
			t.Errorf("instructions missing %q", w)
		}
	}
}

func TestInstructionsWithoutTool(t *testing.T) {
	text := FiveStars().Instructions(LocaleEnglish, "")
	if strings.Contains(text, "tool") {
		t.Error("instructions should not mention a tool when none is configured")
	}
}

func TestInstructionsSpanishSharesMenu(t *testing.T) {
	c := FiveStars()
	en := c.Instructions(LocaleEnglish, "")
	es := c.Instructions(LocaleSpanish, "")

	if !strings.Contains(es, "Actúa como empleado de FiveStars Pizzeria") {
		t.Error("spanish role line missing")
	}
	menu := c.Menu()
	if !strings.HasSuffix(en, menu) || !strings.HasSuffix(es, menu) {
		t.Error("both locales must render the same menu")
	}
}

func TestParseLocale(t *testing.T) {
	tests := map[string]Locale{
		"es":    LocaleSpanish,
		"es-MX": LocaleSpanish,
		"EN":    LocaleEnglish,
		"fr":    LocaleEnglish,
		"":      LocaleEnglish,
	}
	for in, want := range tests {
		if got := ParseLocale(in); got != want {
			t.Errorf("ParseLocale(%q) = %q, want %q", in, got, want)
		}
	}
}
