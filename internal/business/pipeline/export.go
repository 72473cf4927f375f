package pipeline

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/weiwei-tsao/grocery-price-compare/pkg/model"
	"github.com/weiwei-tsao/grocery-price-compare/pkg/util"
)

// CSVHeader is the column order of WriteOffersCSV.
var CSVHeader = []string{
	"market", "title", "price", "quantity", "unit", "normalized_price", "normalized_unit",
	"price_display", "availability", "status", "url", "collected_at",
}

// WriteOffersCSV writes offers with BRL-formatted prices.
func WriteOffersCSV(w io.Writer, offers []model.PriceOffer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, o := range offers {
		var quantity, unit, normalized, normalizedUnit string
		if o.QuantityValue != nil {
			quantity = strconv.FormatFloat(*o.QuantityValue, 'f', -1, 64)
		}
		if o.QuantityUnit != nil {
			unit = string(*o.QuantityUnit)
		}
		if o.NormalizedPrice != nil {
			normalized = util.FormatBRL(*o.NormalizedPrice)
		}
		if o.NormalizedUnit != nil {
			normalizedUnit = string(*o.NormalizedUnit)
		}
		row := []string{
			o.MarketName,
			o.Title,
			util.FormatBRL(o.Price),
			quantity,
			unit,
			normalized,
			normalizedUnit,
			o.PriceDisplay,
			string(o.Availability),
			string(o.Status),
			o.URL,
			o.CollectedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
