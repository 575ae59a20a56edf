package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/geo"
	"github.com/nazeru/quickshop-go/internal/order/domain"
)

func init() {
	rootCmd.AddCommand(locateCmd, eligibilityCmd, addressCmd, checkoutCmd, orderCmd)
	addressCmd.AddCommand(addressListCmd, addressAddCmd)

	locateCmd.Flags().Bool("force", false, "skip the debounce and movement guards")
	locateCmd.Flags().Bool("trailing", false, "queue the position; only the last one in the debounce window is resolved")

	addressAddCmd.Flags().String("id", "home", "address id")
	addressAddCmd.Flags().String("label", "", "display label")
	addressAddCmd.Flags().String("line1", "", "street address")
	addressAddCmd.Flags().String("line2", "", "apartment, floor")
	addressAddCmd.Flags().String("city", "", "city")
	addressAddCmd.Flags().String("postal-code", "", "postal code")
	addressAddCmd.Flags().Float64("lat", 0, "latitude")
	addressAddCmd.Flags().Float64("lon", 0, "longitude")
	addressAddCmd.Flags().Bool("default", false, "make this the default address")

	checkoutCmd.Flags().StringP("method", "m", "cod", "payment method: cod|upi|card|wallet")
	checkoutCmd.Flags().String("address", "", "saved address id (default address when empty)")
	checkoutCmd.Flags().String("key", "", "idempotency key; reuse it when retrying")
}

func parseCoordinate(lat, lon string) (geo.Coordinate, error) {
	la, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("latitude %q: %w", lat, err)
	}
	lo, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("longitude %q: %w", lon, err)
	}
	return geo.Coordinate{Lat: la, Lon: lo}, nil
}

var locateCmd = &cobra.Command{
	Use:   "locate LAT LON",
	Short: "Report a device position and show delivery eligibility",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		coord, err := parseCoordinate(args[0], args[1])
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		if trailing, _ := cmd.Flags().GetBool("trailing"); trailing && !force {
			if _, err := newClient().Track(commandContext(cmd), coord); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Position queued; run `quickshop eligibility` for the result.")
			return nil
		}
		resp, err := newClient().Locate(commandContext(cmd), coord, force)
		if err != nil {
			return err
		}
		printEligibility(cmd.OutOrStdout(), resp)
		return nil
	},
}

var eligibilityCmd = &cobra.Command{
	Use:   "eligibility",
	Short: "Show the last delivery eligibility result",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := newClient().Eligibility(commandContext(cmd))
		if err != nil {
			return err
		}
		printEligibility(cmd.OutOrStdout(), resp)
		return nil
	},
}

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Manage delivery addresses",
}

var addressListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved addresses",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addrs, err := newClient().Addresses(commandContext(cmd))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(addrs) == 0 {
			fmt.Fprintln(out, "No saved addresses.")
			return nil
		}
		for _, a := range addrs {
			marker := " "
			if a.Default {
				marker = "*"
			}
			fmt.Fprintf(out, "%s %s\t%s, %s\n", marker, a.ID, a.Line1, a.City)
		}
		return nil
	},
}

var addressAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Save a delivery address",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		var a domain.Address
		a.ID, _ = f.GetString("id")
		a.Label, _ = f.GetString("label")
		a.Line1, _ = f.GetString("line1")
		a.Line2, _ = f.GetString("line2")
		a.City, _ = f.GetString("city")
		a.PostalCode, _ = f.GetString("postal-code")
		a.Location.Lat, _ = f.GetFloat64("lat")
		a.Location.Lon, _ = f.GetFloat64("lon")
		a.Default, _ = f.GetBool("default")
		if err := newClient().SaveAddress(commandContext(cmd), a); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved address %q.\n", a.ID)
		return nil
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Place an order for the current cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		method, _ := cmd.Flags().GetString("method")
		addressID, _ := cmd.Flags().GetString("address")
		key, _ := cmd.Flags().GetString("key")
		resp, err := newClient().Checkout(commandContext(cmd), api.CheckoutRequest{
			PaymentMethod: method,
			AddressID:     addressID,
		}, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Order %s (%s)\n", resp.OrderID, resp.Status)
		return nil
	},
}

var orderCmd = &cobra.Command{
	Use:   "order ORDER_ID",
	Short: "Show a placed order as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		o, err := newClient().Order(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(o)
	},
}
