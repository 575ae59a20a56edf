// Package cli is the quickshop command line: a thin shell over the
// storefront HTTP API.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/client"
)

var (
	baseURL string
	userID  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "quickshop",
	Short: "Grocery storefront command line",
	Long: `quickshop drives a running storefront-service: browse the catalog, edit the
cart, check delivery eligibility and place orders. Every command acts as the
user given by --user.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&baseURL, "url", getenv("QUICKSHOP_URL", "http://localhost:8080"), "storefront-service base URL")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", getenv("QUICKSHOP_USER", "demo"), "user to act as")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Second, "per-request timeout")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func newClient() *client.Client {
	c := client.New(baseURL, userID)
	c.HTTP.Timeout = timeout
	return c
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// resolveLine accepts a line id, a unique prefix of one, or the id of the
// item on the line.
func resolveLine(ctx context.Context, c *client.Client, ref string) (cart.LineID, error) {
	st, err := c.Cart(ctx)
	if err != nil {
		return "", err
	}
	var prefixed []cart.LineID
	for _, ln := range st.Lines {
		if string(ln.ID) == ref || string(ln.Item.ID) == ref {
			return ln.ID, nil
		}
		if strings.HasPrefix(string(ln.ID), ref) {
			prefixed = append(prefixed, ln.ID)
		}
	}
	switch len(prefixed) {
	case 1:
		return prefixed[0], nil
	case 0:
		return "", fmt.Errorf("no cart line for %q", ref)
	default:
		return "", fmt.Errorf("%q matches %d cart lines", ref, len(prefixed))
	}
}

func getenv(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}
