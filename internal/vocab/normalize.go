// Package vocab holds the drink-name vocabulary and price statistics used to
// reconcile raw extraction output. Everything here is pure and deterministic.
package vocab

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/espressomap/espressomap/internal/entity"
)

// nameRule maps a lowercase substring to its canonical category. Rules are
// checked in order; most specific first, so "double espresso" routes to
// Doppio before the general espresso rule can claim it.
type nameRule struct {
	contains  []string // all must be present
	canonical string
}

var nameRules = []nameRule{
	{[]string{"doppio"}, "Doppio"},
	{[]string{"double", "espresso"}, "Doppio"},
	{[]string{"flat white"}, "Flat White"},
	{[]string{"latte macchiato"}, "Latte Macchiato"},
	{[]string{"macchiato"}, "Macchiato"},
	{[]string{"cappuccino"}, "Cappuccino"},
	{[]string{"capuccino"}, "Cappuccino"},
	{[]string{"americano"}, "Americano"},
	{[]string{"cortado"}, "Cortado"},
	{[]string{"latte"}, "Latte"},
	{[]string{"mocha"}, "Mocha"},
	{[]string{"filter"}, "Filter Coffee"},
	{[]string{"brewed"}, "Filter Coffee"},
	{[]string{"espresso"}, "Espresso"},
	{[]string{"expresso"}, "Espresso"},
}

// NormalizeDrinkName maps a free-text drink name onto the canonical category
// vocabulary. Unmatched names fall back to title-casing each token of the
// original string.
func NormalizeDrinkName(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, r := range nameRules {
		matched := true
		for _, sub := range r.contains {
			if !strings.Contains(lower, sub) {
				matched = false
				break
			}
		}
		if matched {
			return r.canonical
		}
	}
	return titleCase(raw)
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		lower := strings.ToLower(f)
		// first rune, not first byte: tokens may start multi-byte ("über")
		r, size := utf8.DecodeRuneInString(lower)
		fields[i] = string(unicode.ToUpper(r)) + lower[size:]
	}
	return strings.Join(fields, " ")
}

// FindEspressoPrice picks "the" espresso price from an extracted drinks list.
// Selection order: exact name match "espresso" first, then the first entry
// whose name contains "espresso" but neither "double" nor "doppio". Returns
// nil when no entry qualifies. This rule is the single definition of the
// espresso price; every consumer derives it through here.
func FindEspressoPrice(drinks []entity.DrinkPrice) *float64 {
	for _, d := range drinks {
		if strings.EqualFold(strings.TrimSpace(d.Name), "espresso") {
			price := d.Price
			return &price
		}
	}
	for _, d := range drinks {
		name := strings.ToLower(d.Name)
		if strings.Contains(name, "espresso") &&
			!strings.Contains(name, "double") &&
			!strings.Contains(name, "doppio") {
			price := d.Price
			return &price
		}
	}
	return nil
}

// FindDrinkPrice generalizes FindEspressoPrice to an arbitrary target name:
// exact lowercase match first, else the first substring match.
func FindDrinkPrice(drinks []entity.DrinkPrice, drinkName string) *float64 {
	target := strings.ToLower(strings.TrimSpace(drinkName))
	for _, d := range drinks {
		if strings.ToLower(strings.TrimSpace(d.Name)) == target {
			price := d.Price
			return &price
		}
	}
	for _, d := range drinks {
		if strings.Contains(strings.ToLower(d.Name), target) {
			price := d.Price
			return &price
		}
	}
	return nil
}
