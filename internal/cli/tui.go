package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/nazeru/quickshop-go/internal/api"
	"github.com/nazeru/quickshop-go/internal/cart"
	"github.com/nazeru/quickshop-go/internal/catalog"
	"github.com/nazeru/quickshop-go/internal/client"
)

func init() {
	rootCmd.AddCommand(tuiCmd)
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive cart",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p := tea.NewProgram(newModel(newClient()))
		_, err := p.Run()
		return err
	},
}

// shop is the slice of the API client the interactive cart uses.
type shop interface {
	Catalog(ctx context.Context, q client.CatalogQuery) (api.CatalogResponse, error)
	Cart(ctx context.Context) (cart.State, error)
	AddItem(ctx context.Context, itemID string, qty int) (cart.State, error)
	Increment(ctx context.Context, id cart.LineID) (cart.State, error)
	Decrement(ctx context.Context, id cart.LineID) (cart.State, error)
	ClearCart(ctx context.Context) (cart.State, error)
}

type model struct {
	shop     shop
	items    []catalog.Item
	cart     cart.State
	selected int
	status   string
	busy     bool
}

type catalogMsg struct {
	items []catalog.Item
	err   error
}

type cartMsg struct {
	state cart.State
	err   error
}

func newModel(s shop) model {
	return model{shop: s, status: "Loading..."}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.loadCatalog, m.cartCmd(m.shop.Cart))
}

func (m model) loadCatalog() tea.Msg {
	resp, err := m.shop.Catalog(context.Background(), client.CatalogQuery{})
	return catalogMsg{items: resp.Items, err: err}
}

func (m model) cartCmd(fn func(context.Context) (cart.State, error)) tea.Cmd {
	return func() tea.Msg {
		st, err := fn(context.Background())
		return cartMsg{state: st, err: err}
	}
}

func (m model) lineFor(id catalog.ItemID) (cart.LineItem, bool) {
	for _, ln := range m.cart.Lines {
		if ln.Item.ID == id {
			return ln, true
		}
	}
	return cart.LineItem{}, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.items)-1 {
				m.selected++
			}
		case "enter", "a", "+", "-", "c", "r":
			if m.busy {
				return m, nil
			}
			return m.act(msg.String())
		}
	case catalogMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Catalog failed: %v", msg.err)
			return m, nil
		}
		m.items = msg.items
		if m.selected >= len(m.items) {
			m.selected = max(0, len(m.items)-1)
		}
	case cartMsg:
		m.busy = false
		if msg.err != nil {
			m.status = fmt.Sprintf("Error: %v", msg.err)
			return m, nil
		}
		m.cart = msg.state
		m.status = "Ready"
	}
	return m, nil
}

func (m model) act(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "c":
		m.busy = true
		return m, m.cartCmd(m.shop.ClearCart)
	case "r":
		m.busy = true
		return m, tea.Batch(m.loadCatalog, m.cartCmd(m.shop.Cart))
	}
	if len(m.items) == 0 {
		return m, nil
	}
	item := m.items[m.selected]
	line, inCart := m.lineFor(item.ID)
	var fn func(context.Context) (cart.State, error)
	switch {
	case key == "-" && inCart:
		fn = func(ctx context.Context) (cart.State, error) { return m.shop.Decrement(ctx, line.ID) }
	case key == "-":
		return m, nil
	case inCart:
		fn = func(ctx context.Context) (cart.State, error) { return m.shop.Increment(ctx, line.ID) }
	default:
		fn = func(ctx context.Context) (cart.State, error) { return m.shop.AddItem(ctx, string(item.ID), 1) }
	}
	m.busy = true
	m.status = "Working..."
	return m, m.cartCmd(fn)
}

func (m model) View() string {
	b := &strings.Builder{}
	fmt.Fprintln(b, "quickshop")
	fmt.Fprintln(b, "")
	fmt.Fprintln(b, "Catalog:")
	for i, it := range m.items {
		marker := " "
		if i == m.selected {
			marker = ">"
		}
		qty := ""
		if ln, ok := m.lineFor(it.ID); ok {
			qty = fmt.Sprintf("  [%d in cart]", ln.Quantity)
		}
		if !it.Addable() {
			qty = "  (out of stock)"
		}
		fmt.Fprintf(b, " %s %-28s %8s%s\n", marker, it.Name, money(it.UnitPrice()), qty)
	}
	fmt.Fprintln(b, "")
	printCart(b, m.cart)
	fmt.Fprintln(b, "")
	fmt.Fprintf(b, "Status: %s\n", m.status)
	fmt.Fprintln(b, "\nControls: up/down select, enter/+ add, - remove one, c clear, r refresh, q quit")
	return b.String()
}
