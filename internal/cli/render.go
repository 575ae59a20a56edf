package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/catalog"
)

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func printCatalog(w io.Writer, items []catalog.Item) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPRICE\tSTOCK")
	for _, it := range items {
		price := money(it.UnitPrice())
		if it.OnSale() {
			price += " (was " + money(it.Price) + ")"
		}
		stock := fmt.Sprint(it.Stock)
		if !it.Addable() {
			stock = "out"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", it.ID, it.Name, it.Category, price, stock)
	}
	_ = tw.Flush()
}

func printCart(w io.Writer, st cart.State) {
	if st.Empty() {
		fmt.Fprintln(w, "Cart is empty.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "LINE\tITEM\tQTY\tUNIT\tAMOUNT")
		for _, ln := range st.Lines {
			amount := ln.Item.UnitPrice().Mul(decimal.NewFromInt(int64(ln.Quantity)))
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", shortID(string(ln.ID)), ln.Item.Name, ln.Quantity, money(ln.Item.UnitPrice()), money(amount))
		}
		_ = tw.Flush()
	}

	t := st.Totals.Rounded(2)
	fmt.Fprintf(w, "Subtotal  %s\n", money(t.Subtotal))
	fmt.Fprintf(w, "Tax       %s\n", money(t.Tax))
	fmt.Fprintf(w, "Delivery  %s\n", money(t.DeliveryFee))
	if st.PromoApplied {
		fmt.Fprintf(w, "Promo     -%s (%s)\n", money(t.Discount), st.PromoCode)
	}
	if st.Tip > 0 {
		fmt.Fprintf(w, "Tip       %s\n", money(t.Tip))
	}
	fmt.Fprintf(w, "Total     %s\n", money(t.Total))
	if t.Savings.IsPositive() {
		fmt.Fprintf(w, "You save  %s\n", money(t.Savings))
	}
}

func printEligibility(w io.Writer, resp api.LocationResponse) {
	if resp.Result == nil {
		fmt.Fprintln(w, "No location yet.")
		return
	}
	r := resp.Result
	switch {
	case !r.HasCenter:
		fmt.Fprintln(w, "No fulfillment center is open.")
	case r.Serviceable:
		fmt.Fprintf(w, "Delivering from %s (%.2f km) in about %d min.\n", centerName(r.Center.Name, r.Center.ID), r.DistanceKm, r.ETAMinutes)
	default:
		fmt.Fprintf(w, "Out of range: nearest is %s at %.2f km.\n", centerName(r.Center.Name, r.Center.ID), r.DistanceKm)
	}
	if !resp.Updated && resp.Status == "resolved" {
		fmt.Fprintln(w, "(position unchanged or too soon; showing the last result)")
	}
}

func centerName(name, id string) string {
	if strings.TrimSpace(name) == "" {
		return id
	}
	return name
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
