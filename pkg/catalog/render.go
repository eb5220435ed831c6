package catalog

import (
	"fmt"
	"strings"
)

// Locale selects the language of the behavioral rules. The menu itself is
// always rendered from the same Catalog.
type Locale string

// Supported locales.
const (
	LocaleEnglish Locale = "en"
	LocaleSpanish Locale = "es"
)

// ParseLocale maps a language tag ("es-MX", "EN") onto a supported Locale,
// defaulting to English.
func ParseLocale(s string) Locale {
	tag := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		tag = tag[:i]
	}
	if tag == string(LocaleSpanish) {
		return LocaleSpanish
	}
	return LocaleEnglish
}

type ruleSet struct {
	role       string
	rules      []string
	submitRule string
}

var rules = map[Locale]ruleSet{
	LocaleEnglish: {
		role: "Act as an employee of %s. Your mission is to efficiently and professionally take customer orders. Follow these instructions strictly:",
		rules: []string{
			"Start of the conversation: greet the customer politely and offer help with their order.",
			"Menu: describe the menu when the customer asks or needs help choosing. Only accept products, sizes, toppings and prices listed in the menu below; politely refuse anything else.",
			"Order taking: record each product with its size, extra toppings and quantity. If the customer mentions a coupon, apply it and explain the discount.",
			"Customer information: politely ask for the customer's name, delivery address and payment method. Never ask for real card numbers.",
			"Order confirmation: repeat the full order back item by item and state the total cost, including toppings and discounts.",
			"Closing: once the customer has confirmed, restate the itemized order with the total and do not ask further questions.",
			"Redirection: if the conversation strays from ordering, kindly bring the customer back to completing their order.",
			"Language: if the customer speaks a language other than English, continue in their language.",
		},
		submitRule: "When the customer has confirmed the order and the total, call the %s tool exactly once with the final items, coupon and customer details.",
	},
	LocaleSpanish: {
		role: "Actúa como empleado de %s. Tu misión es tomar pedidos de forma eficiente y profesional. Sigue estas instrucciones estrictamente:",
		rules: []string{
			"Inicio: saluda al cliente con cortesía y ofrece ayuda con su pedido.",
			"Menú: describe el menú cuando el cliente lo pida. Acepta solo productos, tamaños, ingredientes y precios del menú; rechaza con amabilidad cualquier otra cosa.",
			"Toma del pedido: registra cada producto con su tamaño, ingredientes extra y cantidad. Si el cliente menciona un cupón, aplícalo y explica el descuento.",
			"Datos del cliente: pide con cortesía el nombre, la dirección de entrega y el método de pago. Nunca pidas números de tarjeta reales.",
			"Confirmación: repite el pedido completo artículo por artículo e indica el costo total, incluyendo ingredientes y descuentos.",
			"Cierre: una vez confirmado, repite el pedido detallado con el total y no hagas más preguntas.",
			"Redirección: si la conversación se desvía del pedido, redirígela con amabilidad a la toma del pedido.",
			"Idioma: si el cliente habla otro idioma, continúa en su idioma.",
		},
		submitRule: "Cuando el cliente confirme el pedido y el total, llama a la herramienta %s una sola vez con los artículos finales, el cupón y los datos del cliente.",
	},
}

// Instructions renders the system instruction for a model session: the
// behavioral rules in the given locale followed by the menu. If submitTool
// is not empty the rules tell the model to call it once the order is
// confirmed. The output depends only on its inputs.
func (c *Catalog) Instructions(locale Locale, submitTool string) string {
	rs, ok := rules[locale]
	if !ok {
		rs = rules[LocaleEnglish]
	}

	var b strings.Builder
	fmt.Fprintf(&b, rs.role, c.Name)
	b.WriteString("\n\n")
	for i, r := range rs.rules {
		fmt.Fprintf(&b, "%d. %s\n", i+1, r)
	}
	if submitTool != "" {
		fmt.Fprintf(&b, "%d. ", len(rs.rules)+1)
		fmt.Fprintf(&b, rs.submitRule, submitTool)
		b.WriteString("\n")
	}
	b.WriteString("\n---\n\n")
	b.WriteString(c.Menu())
	return b.String()
}

// Menu renders the catalog as markdown-style text.
func (c *Catalog) Menu() string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s MENU\n", strings.ToUpper(c.Name))

	for _, cat := range c.Categories {
		fmt.Fprintf(&b, "\n#### %s\n", strings.ToUpper(cat.Name))
		if cat.Note != "" {
			fmt.Fprintf(&b, "%s\n", cat.Note)
		}
		for _, it := range cat.Items {
			b.WriteString("- ")
			b.WriteString(it.Name)
			if len(it.Includes) > 0 {
				fmt.Fprintf(&b, " (%s)", strings.Join(it.Includes, ", "))
			}
			b.WriteString(": ")
			b.WriteString(renderPrices(it))
			if it.Description != "" {
				fmt.Fprintf(&b, "; %s", it.Description)
			}
			if len(it.Options) > 0 {
				fmt.Fprintf(&b, "; options: %s", strings.Join(it.Options, ", "))
			}
			b.WriteString("\n")
		}
	}

	if len(c.ToppingPrices) > 0 {
		b.WriteString("\n#### ADDITIONAL TOPPINGS\n")
		var parts []string
		for _, s := range pizzaSizes {
			if p, ok := c.ToppingPrices[s]; ok {
				parts = append(parts, fmt.Sprintf("%s %s", s, p))
			}
		}
		fmt.Fprintf(&b, "Per topping: %s\n", strings.Join(parts, " | "))
		fmt.Fprintf(&b, "Available toppings: %s\n", strings.Join(c.Toppings, ", "))
	}

	if len(c.Coupons) > 0 {
		b.WriteString("\n#### COUPONS\n")
		for _, cp := range c.Coupons {
			fmt.Fprintf(&b, "- %s: %s, %s (%s)\n", cp.Code, cp.Description, cp.Total, cp.Eligibility)
		}
	}
	return b.String()
}

func renderPrices(it Item) string {
	if len(it.Sizes) == 0 {
		if p, ok := it.Prices[SizeRegular]; ok {
			return p.String()
		}
	}
	parts := make([]string, 0, len(it.Sizes))
	for _, s := range it.Sizes {
		parts = append(parts, fmt.Sprintf("%s %s", s, it.Prices[s]))
	}
	return strings.Join(parts, " | ")
}
