package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/client"
)

func init() {
	rootCmd.AddCommand(catalogCmd, cartCmd, addCmd, incCmd, decCmd, qtyCmd, rmCmd, clearCmd, promoCmd, tipCmd)

	catalogCmd.Flags().StringP("category", "c", "", "only items in this category")
	catalogCmd.Flags().StringP("search", "s", "", "case-insensitive name search")
	catalogCmd.Flags().Bool("featured", false, "only featured items")
	promoCmd.Flags().Bool("remove", false, "remove the applied promo code")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "List catalog items",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var q client.CatalogQuery
		q.Category, _ = cmd.Flags().GetString("category")
		q.Search, _ = cmd.Flags().GetString("search")
		q.Featured, _ = cmd.Flags().GetBool("featured")
		resp, err := newClient().Catalog(commandContext(cmd), q)
		if err != nil {
			return err
		}
		printCatalog(cmd.OutOrStdout(), resp.Items)
		return nil
	},
}

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show the cart and its totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showCart(cmd, newClient().Cart)
	},
}

var addCmd = &cobra.Command{
	Use:   "add ITEM_ID [QTY]",
	Short: "Add an item to the cart (quantity defaults to 1)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty := 1
		if len(args) == 2 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("quantity %q: %w", args[1], err)
			}
			qty = n
		}
		c := newClient()
		return showCart(cmd, func(ctx context.Context) (cart.State, error) {
			return c.AddItem(ctx, args[0], qty)
		})
	},
}

// lineCommand builds a command that acts on one cart line.
func lineCommand(use, short string, op func(c *client.Client, ctx context.Context, id cart.LineID) (cart.State, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " LINE_OR_ITEM",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient()
			return showCart(cmd, func(ctx context.Context) (cart.State, error) {
				id, err := resolveLine(ctx, c, args[0])
				if err != nil {
					return cart.State{}, err
				}
				return op(c, ctx, id)
			})
		},
	}
}

var incCmd = lineCommand("inc", "Add one unit to a line", func(c *client.Client, ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.Increment(ctx, id)
})

var decCmd = lineCommand("dec", "Take one unit off a line", func(c *client.Client, ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.Decrement(ctx, id)
})

var rmCmd = lineCommand("rm", "Remove a line", func(c *client.Client, ctx context.Context, id cart.LineID) (cart.State, error) {
	return c.RemoveLine(ctx, id)
})

var qtyCmd = &cobra.Command{
	Use:   "qty LINE_OR_ITEM QTY",
	Short: "Set a line's quantity (0 removes it)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		qty, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("quantity %q: %w", args[1], err)
		}
		c := newClient()
		return showCart(cmd, func(ctx context.Context) (cart.State, error) {
			id, err := resolveLine(ctx, c, args[0])
			if err != nil {
				return cart.State{}, err
			}
			return c.SetQuantity(ctx, id, qty)
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart and reset promo and tip",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return showCart(cmd, newClient().ClearCart)
	},
}

var promoCmd = &cobra.Command{
	Use:   "promo [CODE]",
	Short: "Apply a promo code, or remove it with --remove",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if remove, _ := cmd.Flags().GetBool("remove"); remove {
			return showCart(cmd, c.RemovePromo)
		}
		if len(args) == 0 {
			return fmt.Errorf("promo code required (or --remove)")
		}
		return showCart(cmd, func(ctx context.Context) (cart.State, error) {
			return c.ApplyPromo(ctx, args[0])
		})
	},
}

var tipCmd = &cobra.Command{
	Use:   "tip AMOUNT",
	Short: "Set the delivery tip (0 clears it)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tip, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("tip %q: %w", args[0], err)
		}
		c := newClient()
		return showCart(cmd, func(ctx context.Context) (cart.State, error) {
			return c.SetTip(ctx, tip)
		})
	},
}

func showCart(cmd *cobra.Command, fetch func(context.Context) (cart.State, error)) error {
	st, err := fetch(commandContext(cmd))
	if err != nil {
		return err
	}
	printCart(cmd.OutOrStdout(), st)
	return nil
}
