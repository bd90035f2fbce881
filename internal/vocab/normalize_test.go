package vocab

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/espressomap/espressomap/internal/entity"
)

func TestNormalizeDrinkName(t *testing.T) {
	cases := map[string]string{
		"espresso":               "Espresso",
		"ESPRESSO":               "Espresso",
		"Expresso":               "Espresso",
		"double espresso":        "Doppio",
		"Doppio Espresso":        "Doppio",
		"doppio":                 "Doppio",
		"Espresso Macchiato":     "Macchiato",
		"latte macchiato":        "Latte Macchiato",
		"Flat White":             "Flat White",
		"flat white deluxe":      "Flat White",
		"Cappuccino":             "Cappuccino",
		"capuccino":              "Cappuccino",
		"caffe americano":        "Americano",
		"Cortado":                "Cortado",
		"Oat Latte":              "Latte",
		"filter coffee":          "Filter Coffee",
		"brewed coffee":          "Filter Coffee",
		"house special pour over": "House Special Pour Over",
		"MATCHA  tonic":          "Matcha Tonic",
		"übermilch spezial":      "Übermilch Spezial",
		"épice chaud":            "Épice Chaud",
		"heiße schokolade":       "Heiße Schokolade",
	}
	for raw, want := range cases {
		got := NormalizeDrinkName(raw)
		require.Equal(t, want, got, "input %q", raw)
		require.True(t, utf8.ValidString(got), "input %q", raw)
	}
}

func TestNormalizeDrinkNameDeterministic(t *testing.T) {
	first := NormalizeDrinkName("Double Espresso Macchiato")
	for i := 0; i < 10; i++ {
		require.Equal(t, first, NormalizeDrinkName("Double Espresso Macchiato"))
	}
}

func TestFindEspressoPrice(t *testing.T) {
	t.Run("exact match wins", func(t *testing.T) {
		drinks := []entity.DrinkPrice{
			{Name: "Espresso", Price: 2.8},
			{Name: "Cappuccino", Price: 3.2},
		}
		price := FindEspressoPrice(drinks)
		require.NotNil(t, price)
		require.Equal(t, 2.8, *price)
	})

	t.Run("doppio alone does not count", func(t *testing.T) {
		drinks := []entity.DrinkPrice{{Name: "Doppio Espresso", Price: 4.0}}
		require.Nil(t, FindEspressoPrice(drinks))
	})

	t.Run("substring match without double", func(t *testing.T) {
		drinks := []entity.DrinkPrice{{Name: "Espresso Macchiato", Price: 3.0}}
		price := FindEspressoPrice(drinks)
		require.NotNil(t, price)
		require.Equal(t, 3.0, *price)
	})

	t.Run("exact match preferred over earlier substring", func(t *testing.T) {
		drinks := []entity.DrinkPrice{
			{Name: "Espresso Tonic", Price: 4.5},
			{Name: "espresso", Price: 2.5},
		}
		price := FindEspressoPrice(drinks)
		require.NotNil(t, price)
		require.Equal(t, 2.5, *price)
	})

	t.Run("empty list", func(t *testing.T) {
		require.Nil(t, FindEspressoPrice(nil))
	})
}

func TestFindDrinkPrice(t *testing.T) {
	drinks := []entity.DrinkPrice{
		{Name: "Flat White", Price: 3.6},
		{Name: "Cappuccino", Price: 3.2},
		{Name: "Iced Cappuccino", Price: 3.9},
	}

	price := FindDrinkPrice(drinks, "cappuccino")
	require.NotNil(t, price)
	require.Equal(t, 3.2, *price)

	price = FindDrinkPrice(drinks, "iced")
	require.NotNil(t, price)
	require.Equal(t, 3.9, *price)

	require.Nil(t, FindDrinkPrice(drinks, "cortado"))
}
