package shell

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/auth"
	"github.com/atinyakov/sockcs/internal/client/cart"
	"github.com/atinyakov/sockcs/internal/client/catalog"
	"github.com/atinyakov/sockcs/internal/client/money"
	"github.com/atinyakov/sockcs/internal/client/orders"
	"github.com/atinyakov/sockcs/internal/client/routes"
)

const (
	homeTiles    = 4
	storySection = "story"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// render shows the view of an allowed route.
func (s *Shell) render(ctx context.Context, m routes.Match) error {
	switch m.Route.Name {
	case "home":
		return s.viewHome(ctx)
	case "shop":
		return s.viewShop(ctx, catalog.Query{Search: m.Query.Get("q"), Category: m.Query.Get("category"), Sort: m.Query.Get("sort")})
	case "product":
		return s.viewProduct(ctx, m.Param("id"))
	case "cart":
		return s.viewCart()
	case "thank-you":
		return s.viewThankYou(ctx, cmp.Or(m.Param("id"), m.Query.Get("order")))
	case "login":
		return s.cmdLogin(ctx, nil)
	case "register":
		return s.cmdRegister(ctx, nil)
	case "checkout":
		return s.viewCheckout(ctx)
	case "orders":
		return s.viewOrders(ctx, m.Query.Get("q"))
	case "order":
		return s.viewOrder(ctx, m.Param("id"))
	case "account":
		return s.viewAccount(ctx)
	}
	return s.renderStaff(ctx, m)
}

func (s *Shell) viewHome(ctx context.Context) error {
	banners, err := s.svc.Catalog.Banners(ctx)
	if err != nil {
		s.log.Debug("banners unavailable", zap.Error(err))
	}
	for _, b := range banners {
		s.printf("* %s\n", b.Title)
	}
	if tiles := s.svc.Catalog.MarketingImages(ctx, catalog.MarketingQuery{Limit: homeTiles}); len(tiles) > 0 {
		s.println("Collections")
		tw := newTable(s.out)
		for _, m := range tiles {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", m.Title, m.Subtitle, m.Image)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	featured, err := s.svc.Catalog.Featured(ctx, 8)
	if err != nil {
		return err
	}
	s.println("Featured")
	if err := s.printProducts(featured); err != nil {
		return err
	}
	if img := s.svc.Catalog.StoryImage(ctx, storySection); img != "" {
		s.printf("How We Became!  %s\n", img)
	}
	return nil
}

func (s *Shell) cmdShop(ctx context.Context, args []string) error {
	q := strings.Join(args, " ")
	loc := "/shop"
	if q != "" {
		loc += "?" + url.Values{"q": {q}}.Encode()
	}
	if _, ok := s.visit(loc); !ok {
		return nil
	}
	return s.viewShop(ctx, catalog.Query{Search: q})
}

func (s *Shell) viewShop(ctx context.Context, q catalog.Query) error {
	all, err := s.svc.Catalog.List(ctx)
	if err != nil {
		return err
	}
	shown := q.Apply(all)
	if len(shown) == 0 {
		s.println("No products match your search.")
		return nil
	}
	if cats := catalog.Categories(all); len(cats) > 1 {
		s.printf("Categories: %s\n", strings.Join(cats, ", "))
	}
	return s.printProducts(shown)
}

func (s *Shell) printProducts(ps []catalog.Product) error {
	tw := newTable(s.out)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tCATEGORY")
	for _, p := range ps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, money.Format(p.Price.String()), p.Category)
	}
	return tw.Flush()
}

func (s *Shell) cmdProduct(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("product <id>")
	}
	if _, ok := s.visit("/products/" + url.PathEscape(args[0])); !ok {
		return nil
	}
	return s.viewProduct(ctx, args[0])
}

func (s *Shell) viewProduct(ctx context.Context, id string) error {
	d, err := s.svc.Catalog.Detail(ctx, id)
	if err != nil {
		return err
	}
	s.printf("%s  %s\n", d.Name, money.Format(d.Price.String()))
	if d.Category != "" {
		s.printf("Category: %s\n", d.Category)
	}
	s.printf("In stock: %d\n", d.Stock)
	if d.Description != "" {
		s.println(d.Description)
	}
	for _, img := range d.Images {
		s.printf("  %s\n", img)
	}
	return nil
}

func (s *Shell) cmdRecs(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("recs <id> [max-price]")
	}
	var f catalog.RecFilter
	if len(args) == 2 {
		budget, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return usage("recs <id> [max-price]")
		}
		f.Budget = &budget
	}
	if _, ok := s.visit("/products/" + url.PathEscape(args[0])); !ok {
		return nil
	}
	recs, err := s.svc.Catalog.Recommendations(ctx, args[0], 0)
	if err != nil {
		return err
	}
	recs = f.Visible(recs)
	if len(recs) == 0 {
		s.println("No recommendations.")
		return nil
	}
	tw := newTable(s.out)
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, money.Format(r.Price.String()))
	}
	return tw.Flush()
}

func (s *Shell) cmdCart(context.Context, []string) error {
	if _, ok := s.visit("/cart"); !ok {
		return nil
	}
	return s.viewCart()
}

func (s *Shell) viewCart() error {
	c := s.svc.Cart.Snapshot()
	if len(c.Items) == 0 {
		s.println("Your cart is empty.")
		return nil
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "ID\tNAME\tQTY\tPRICE\tLINE")
	for _, it := range c.Items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", it.ProductID, it.Name, it.Quantity,
			money.Format(it.Price.String()), money.Format(it.LineTotal.String()))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	t := c.Totals()
	s.printf("Subtotal: %s\n", money.FormatFloat(t.Subtotal))
	if t.Discount > 0 {
		s.printf("Discount: -%s\n", money.FormatFloat(t.Discount))
	}
	s.printf("Total:    %s\n", c.DisplayTotal())
	return nil
}

// mutate runs a cart change from the cart view and shows the new cart.
func (s *Shell) mutate(ctx context.Context, fn func(*cart.Syncer) error) error {
	if _, ok := s.visit("/cart"); !ok {
		return nil
	}
	if err := fn(s.svc.Cart); err != nil {
		return err
	}
	return s.viewCart()
}

func (s *Shell) cmdAdd(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return usage("add <id> [qty]")
	}
	qty := 1
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return usage("add <id> [qty]")
		}
		qty = n
	}
	return s.mutate(ctx, func(c *cart.Syncer) error { return c.AddItem(ctx, args[0], qty) })
}

func (s *Shell) cmdQty(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return usage("qty <id> <n>")
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return usage("qty <id> <n>")
	}
	return s.mutate(ctx, func(c *cart.Syncer) error {
		if n <= 0 {
			return c.RemoveItem(ctx, args[0])
		}
		return c.UpdateItemQuantity(ctx, args[0], n)
	})
}

func (s *Shell) cmdRemove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("rm <id>")
	}
	return s.mutate(ctx, func(c *cart.Syncer) error { return c.RemoveItem(ctx, args[0]) })
}

func (s *Shell) cmdClear(ctx context.Context, _ []string) error {
	return s.mutate(ctx, func(c *cart.Syncer) error { return c.ClearCart(ctx) })
}

func (s *Shell) cmdCoupon(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("coupon <code>|-")
	}
	return s.mutate(ctx, func(c *cart.Syncer) error {
		if args[0] == "-" {
			return c.RemoveCoupon(ctx)
		}
		return c.ApplyCoupon(ctx, args[0])
	})
}

func (s *Shell) cmdCheckout(ctx context.Context, _ []string) error {
	if _, ok := s.visit("/checkout"); !ok {
		return nil
	}
	return s.viewCheckout(ctx)
}

func (s *Shell) viewCheckout(ctx context.Context) error {
	if s.svc.Cart.Count() == 0 {
		return cart.ErrEmptyCart
	}
	if err := s.viewCart(); err != nil {
		return err
	}

	var form orders.CheckoutForm
	u := s.svc.Session.User()
	if u == nil {
		u = &auth.User{}
	}
	fields := []struct {
		label string
		def   string
		dst   *string
	}{
		{"First name", u.FirstName, &form.FirstName},
		{"Last name", u.LastName, &form.LastName},
		{"Email", u.Email, &form.Email},
		{"Address", "", &form.Address},
		{"Postal code", "", &form.PostalCode},
		{"City", "", &form.City},
	}
	for _, f := range fields {
		v, err := s.ask(f.label, f.def)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	res, err := s.svc.Orders.Checkout(ctx, form, s.svc.Cart)
	if err != nil {
		return err
	}
	if res.PaymentURL != "" {
		s.printf("Order %s placed. Complete your payment at:\n  %s\n", res.OrderID, res.PaymentURL)
		s.println("Run 'thankyou' once you have paid.")
		return nil
	}
	m, ok := s.visit(res.Next())
	if !ok {
		return nil
	}
	return s.render(ctx, m)
}

func (s *Shell) cmdThankYou(ctx context.Context, args []string) error {
	if len(args) > 1 {
		return usage("thankyou [id]")
	}
	loc := "/order/thank-you"
	id := ""
	if len(args) == 1 {
		id = args[0]
		loc = "/order/" + url.PathEscape(id) + "/thank-you"
	}
	if _, ok := s.visit(loc); !ok {
		return nil
	}
	return s.viewThankYou(ctx, id)
}

func (s *Shell) viewThankYou(ctx context.Context, id string) error {
	o, err := s.svc.Orders.Confirm(ctx, id, s.svc.Cart)
	if err != nil {
		return err
	}
	s.printf("Thank you! Order #%s\n", o.ID)
	if err := s.printOrder(o); err != nil {
		return err
	}
	if o.Paid {
		s.println("Payment received.")
		return nil
	}

	s.println("Waiting for payment confirmation...")
	last, err := s.svc.Orders.WaitPaid(ctx, o.ID, s.pollEvery, s.pollTries)
	if err != nil {
		return err
	}
	if last != nil && last.Paid {
		s.println("Payment received.")
		return nil
	}
	s.printf("Payment not confirmed yet. Run 'order %s' later to check.\n", o.ID)
	return nil
}

func (s *Shell) printOrder(o *orders.Order) error {
	tw := newTable(s.out)
	for _, it := range o.Items {
		fmt.Fprintf(tw, "  %d x\t%s\t%s\n", it.Quantity, it.Name, money.FormatFloat(it.LineTotal))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if o.Discount > 0 {
		s.printf("Discount: -%s\n", money.FormatFloat(o.Discount))
	}
	s.printf("Total: %s  (%s)\n", o.DisplayTotal(), paidLabel(o.Paid))
	return nil
}

func paidLabel(paid bool) string {
	if paid {
		return "paid"
	}
	return "unpaid"
}

func (s *Shell) cmdOrders(ctx context.Context, args []string) error {
	q := strings.Join(args, " ")
	loc := "/orders"
	if q != "" {
		loc += "?" + url.Values{"q": {q}}.Encode()
	}
	if _, ok := s.visit(loc); !ok {
		return nil
	}
	return s.viewOrders(ctx, q)
}

func (s *Shell) viewOrders(ctx context.Context, q string) error {
	list, err := s.svc.Orders.Search(ctx, q)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		s.println("No orders found.")
		return nil
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "ORDER\tCREATED\tTOTAL\tSTATUS")
	for _, o := range list {
		fmt.Fprintf(tw, "#%s\t%s\t%s\t%s\n", o.ID, o.Created, o.DisplayTotal(), paidLabel(o.Paid))
	}
	return tw.Flush()
}

func (s *Shell) cmdOrder(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("order <id>")
	}
	if _, ok := s.visit("/orders/" + url.PathEscape(args[0])); !ok {
		return nil
	}
	return s.viewOrder(ctx, args[0])
}

func (s *Shell) viewOrder(ctx context.Context, id string) error {
	o, err := s.svc.Orders.Get(ctx, id)
	if err != nil {
		return err
	}
	s.printf("Order #%s  %s\n", o.ID, o.Created)
	return s.printOrder(o)
}
