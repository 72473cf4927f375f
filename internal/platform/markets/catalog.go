package markets

var carrefour = Market{
	ID:                "carrefour",
	DisplayName:       "Carrefour",
	BaseURL:           "https://mercado.carrefour.com.br",
	SearchURLTemplate: "{base_url}/busca/{query}?page={page}",
	Status:            StatusActive,
	MaxPages:          5,
	Selectors: Selectors{
		ProductContainer: `a[data-testid="search-product-card"]`,
		Title:            "h2",
		Price:            "span.text-blue-royal.font-bold, span[class*='text-blue-royal'][class*='font-bold']",
		UnitPrice:        "p[class*='text-gray-medium']",
		Image:            "img",
	},
}

var atacadao = Market{
	ID:                "atacadao",
	DisplayName:       "Atacadão",
	BaseURL:           "https://www.atacadao.com.br",
	SearchURLTemplate: "{base_url}/pesquisa?q={query}&page={page}",
	Status:            StatusActive,
	MaxPages:          5,
	Selectors: Selectors{
		ProductContainer: "ul.grid li article.relative",
		Title:            "h3[title], h3, a[data-testid='product-link']",
		Price:            "section p.text-lg.font-bold, p[class*='text-lg'][class*='font-bold']",
		Image:            "div[data-product-card-image] img, img",
		Link:             "a[data-testid='product-link'], a[href*='/p']",
		Availability:     "button[data-testid='buy-button']",
	},
}

var paoDeAcucar = Market{
	ID:                "pao_acucar",
	DisplayName:       "Pão de Açúcar",
	BaseURL:           "https://www.paodeacucar.com",
	SearchURLTemplate: "{base_url}/busca?terms={query}",
	Status:            StatusActive,
	RequiresCEP:       true,
	MaxPages:          5,
	Selectors: Selectors{
		ProductContainer: "div.CardStyled-sc-20azeh-0, div[class*='CardStyled-sc-20azeh']",
		Title:            "a.Title-sc-20azeh-10, a[class*='Title-sc-20azeh'], a[class*='Title-sc']",
		Price:            "p.PriceValue-sc-20azeh-4, p[class*='PriceValue-sc-20azeh'], p[class*='PriceValue-sc']",
		Image:            "img.Image-sc-20azeh-2, img[class*='Image-sc'], img",
		Link:             "a[href*='/produto/']",
	},
}

// extra's e-commerce was discontinued; kept so stored offers still resolve a name.
var extra = Market{
	ID:                "extra",
	DisplayName:       "Extra",
	BaseURL:           "https://www.extra.com.br",
	SearchURLTemplate: "{base_url}/busca/{query}",
	Status:            StatusDeprecated,
	MaxPages:          1,
	Selectors: Selectors{
		ProductContainer: "div[class*='product-card']",
		Title:            "h2, h3",
		Price:            "span[class*='price']",
		Image:            "img",
		Link:             "a",
	},
}
