package catalog

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/shopspring/decimal"
)

type fileItem struct {
	ID            string           `toml:"id"`
	Name          string           `toml:"name"`
	Category      string           `toml:"category"`
	Price         decimal.Decimal  `toml:"price"`
	DiscountPrice *decimal.Decimal `toml:"discount_price"`
	TaxRate       decimal.Decimal  `toml:"tax_rate"`
	Stock         int              `toml:"stock"`
	Available     *bool            `toml:"available"`
	Featured      bool             `toml:"featured"`
	ImageURL      string           `toml:"image_url"`
}

// LoadFile reads [[item]] tables from a TOML seed file. Items are available
// unless they say otherwise.
func LoadFile(path string) ([]Item, error) {
	var f struct {
		Items []fileItem `toml:"item"`
	}
	if _, err := toml.DecodeFile(path, &f); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}
	out := make([]Item, 0, len(f.Items))
	for i, fi := range f.Items {
		if fi.ID == "" {
			return nil, fmt.Errorf("catalog %s: item %d has no id", path, i)
		}
		if fi.Price.IsNegative() || fi.Stock < 0 {
			return nil, fmt.Errorf("catalog %s: item %s has a negative price or stock", path, fi.ID)
		}
		available := true
		if fi.Available != nil {
			available = *fi.Available
		}
		out = append(out, Item{
			ID:            ItemID(fi.ID),
			Name:          fi.Name,
			Category:      fi.Category,
			Price:         fi.Price,
			DiscountPrice: fi.DiscountPrice,
			TaxRate:       fi.TaxRate,
			Stock:         fi.Stock,
			Available:     available,
			Featured:      fi.Featured,
			ImageURL:      fi.ImageURL,
		})
	}
	return out, nil
}
