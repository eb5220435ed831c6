package catalog

var pizzaSizes = []Size{Size12, Size16, Size18, Size24}

func tiered(p12, p16, p18, p24 Price) map[Size]Price {
	return map[Size]Price{Size12: p12, Size16: p16, Size18: p18, Size24: p24}
}

func single(p Price) map[Size]Price {
	return map[Size]Price{SizeRegular: p}
}

func specialty(name string, includes ...string) Item {
	return Item{
		Name:     name,
		Prices:   tiered(1399, 1799, 1999, 3999),
		Sizes:    pizzaSizes,
		Includes: includes,
		Pizza:    true,
	}
}

// FiveStars returns the FiveStars Pizzeria menu.
func FiveStars() *Catalog {
	categories := []Category{
		{
			Name: "Pizzas",
			Items: []Item{
				{Name: "Cheese", Prices: tiered(999, 1399, 1599, 3099), Sizes: pizzaSizes, Pizza: true},
				{Name: "Everything", Prices: tiered(2099, 2599, 2899, 4699), Sizes: pizzaSizes, Pizza: true},
				{
					Name:         "Gluten-Free",
					Aliases:      []string{"Gluten-Free Cheese"},
					Description:  `12" only, $1 per topping`,
					Prices:       map[Size]Price{Size12: 1499},
					Sizes:        []Size{Size12},
					Pizza:        true,
					ToppingPrice: 100,
				},
				{
					Name:        "Gluten-Free Specialty",
					Description: `12" only, any specialty pizza on a gluten-free crust`,
					Prices:      map[Size]Price{Size12: 1799},
					Sizes:       []Size{Size12},
					Pizza:       true,
				},
			},
		},
		{
			Name: "Specialty Pizzas",
			Items: []Item{
				specialty("Deluxe", "Pepperoni", "Italian Sausage", "Green Peppers", "Mushrooms", "Onions"),
				specialty("Bacon Double Cheeseburger", "Bacon", "Beef", "Extra Cheese"),
				specialty("Buffalo Chicken", "Buffalo-style chicken", "Mozzarella"),
				specialty("Philly Cheesesteak", "Steak", "Mushrooms", "Green Peppers"),
				specialty("Hawaiian", "Ham", "Pineapple"),
				specialty("All the Meats", "Pepperoni", "Ham", "Beef", "Bacon", "Italian Sausage"),
				specialty("Pepperoni Powerhouse", "Extra Pepperoni", "Extra Cheese"),
				specialty("Bacon Ranch", "Chicken", "Bacon", "Ranch Sauce"),
			},
		},
		{
			Name: "Appetizers",
			Items: []Item{
				{
					Name:        "Wings",
					Aliases:     []string{"Chicken Wings"},
					Description: "10 wings, served with your choice of dipping sauce",
					Prices:      single(1299),
					Options:     []string{"Plain", "Mild", "BBQ", "Garlic Parmesan"},
				},
				{Name: "Chicken Bites", Description: "over half a pound", Prices: single(999)},
				{Name: "Pepperoni Rolls", Description: "order of 4", Prices: single(699)},
				{
					Name:    "Cheesystix",
					Aliases: []string{"Cheesy Stix", "Cheesy Sticks"},
					Prices:  map[Size]Price{Size12: 1149, Size16: 1574, Size18: 1799},
					Sizes:   []Size{Size12, Size16, Size18},
				},
				{Name: "Garlic Rolls", Description: "order of 8", Prices: single(599)},
				{Name: "Cinnamon Rolls", Description: "order of 8", Prices: single(599)},
				{Name: "Fudge Brownies", Aliases: []string{"Brownies"}, Description: "order of 4", Prices: single(599)},
			},
		},
		{
			Name: "Beverages",
			Items: []Item{
				{
					Name:    "Soda",
					Prices:  map[Size]Price{Size2L: 349, Size20oz: 219},
					Sizes:   []Size{Size2L, Size20oz},
					Options: []string{"2 liter", "20 oz bottle"},
				},
				{Name: "Bottled Water", Aliases: []string{"Water"}, Prices: single(109)},
			},
		},
	}

	toppings := []string{
		"Pepperoni", "Italian Sausage", "Beef", "Ham", "Bacon", "Chicken", "Steak",
		"Mushrooms", "Tomatoes", "Onions", "Green Peppers", "Black Olives",
		"Pineapple", "Jalapeños", "Banana Peppers", "Extra Cheese",
	}

	coupons := []Coupon{
		{
			Code:        "ZLG1",
			Description: "2 Large 1-Topping Pizzas",
			Total:       2699,
			Eligibility: `two 16" cheese pizzas with up to one topping each`,
			Requires:    []Requirement{{Item: "Cheese", Size: Size16, Toppings: 1, Count: 2}},
		},
		{
			Code:        "LGW25",
			Description: `16" Large 1-Topping Pizza & 10 Wings`,
			Total:       2599,
			Eligibility: `one 16" cheese pizza with up to one topping and one order of wings`,
			Requires: []Requirement{
				{Item: "Cheese", Size: Size16, Toppings: 1, Count: 1},
				{Item: "Wings", Count: 1},
			},
		},
		{
			Code:        "SMCN",
			Description: `12" Small 1-Topping Pizza & Cinnamon Rolls`,
			Total:       1499,
			Eligibility: `one 12" cheese pizza with up to one topping and one order of cinnamon rolls`,
			Requires: []Requirement{
				{Item: "Cheese", Size: Size12, Toppings: 1, Count: 1},
				{Item: "Cinnamon Rolls", Count: 1},
			},
		},
		{
			Code:        "GF22",
			Description: `Gator Feast: 16" 2-Topping Pizza, Garlic Rolls & 2L Soda`,
			Total:       2299,
			Eligibility: `one 16" cheese pizza with up to two toppings, garlic rolls and a 2 liter soda`,
			Requires: []Requirement{
				{Item: "Cheese", Size: Size16, Toppings: 2, Count: 1},
				{Item: "Garlic Rolls", Count: 1},
				{Item: "Soda", Size: Size2L, Count: 1},
			},
		},
	}

	c, err := New("FiveStars Pizzeria", categories, toppings, map[Size]Price{
		Size12: 150,
		Size16: 175,
		Size18: 200,
		Size24: 300,
	}, coupons)
	if err != nil {
		panic(err)
	}
	return c
}
