package shell

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/atinyakov/sockcs/internal/client/jsonx"
	"github.com/atinyakov/sockcs/internal/client/money"
	"github.com/atinyakov/sockcs/internal/client/routes"
	"github.com/atinyakov/sockcs/internal/client/staff"
)

func (s *Shell) cmdStaff(ctx context.Context, args []string) error {
	sub, rest := "dashboard", []string(nil)
	if len(args) > 0 {
		sub, rest = args[0], args[1:]
	}

	var loc string
	switch sub {
	case "dashboard":
		loc = "/staff"
	case "orders":
		loc = "/staff/orders"
	case "order", "paid":
		if len(rest) != 1 {
			return usage("staff " + sub + " <id>")
		}
		loc = "/staff/orders/" + url.PathEscape(rest[0])
	case "products", "product":
		loc = "/staff/products"
	case "inventory", "adjust":
		loc = "/staff/inventory"
	case "customers", "customer":
		loc = "/staff/customers"
	case "enquiries":
		loc = "/staff/enquiries"
	default:
		return usage(s.commands["staff"].usage)
	}
	m, ok := s.visit(loc)
	if !ok {
		return nil
	}

	switch sub {
	case "orders":
		return s.staffOrders(ctx, rest)
	case "paid":
		if err := s.svc.Staff.MarkPaid(ctx, rest[0]); err != nil {
			return err
		}
		s.printf("Order #%s marked as paid.\n", rest[0])
		return s.staffOrder(ctx, rest[0])
	case "product":
		if len(rest) != 1 {
			return usage("staff product <id>")
		}
		return s.staffEditProduct(ctx, rest[0])
	case "adjust":
		return s.staffAdjust(ctx, rest)
	case "customer":
		return s.staffCreateCustomer(ctx)
	case "enquiries":
		return s.staffEnquiries(ctx, rest)
	}
	return s.renderStaff(ctx, m)
}

func (s *Shell) renderStaff(ctx context.Context, m routes.Match) error {
	switch m.Route.Name {
	case "staff":
		return s.staffDashboard(ctx)
	case "staff-orders":
		return s.staffOrders(ctx, nil)
	case "staff-order":
		return s.staffOrder(ctx, m.Param("id"))
	case "staff-products":
		return s.staffProducts(ctx)
	case "staff-inventory":
		return s.staffInventory(ctx)
	case "staff-customers":
		return s.staffCustomers(ctx)
	case "staff-enquiries":
		return s.staffEnquiries(ctx, nil)
	}
	return fmt.Errorf("no view for route %q", m.Route.Name)
}

func (s *Shell) staffDashboard(ctx context.Context) error {
	d, err := s.svc.Staff.Dashboard(ctx)
	if err != nil {
		return err
	}
	if st := d.Stats; st != nil {
		delta := ""
		if pct, ok := staff.PctDelta(float64(st.RevenueToday), float64(st.RevenueAvg7d)); ok {
			delta = fmt.Sprintf(" (%+.1f%% vs. 7-day avg)", pct)
		}
		s.printf("Revenue today:   %s%s\n", money.FormatFloat(float64(st.RevenueToday)), delta)
		s.printf("Orders today:    %d\n", st.OrdersToday)
		s.printf("Avg order value: %s\n", money.FormatFloat(float64(st.AOV7d)))
		s.printf("Conversion:      %.1f%%\n", float64(st.ConvRate7d)*100)
		s.printf("New customers:   %d\n", st.CustomersToday)
	}
	if e := d.Enquiries; e != nil {
		s.printf("Open enquiries:  %d\n", e.Open)
	}

	if len(d.Recent) > 0 {
		s.println("Recent orders")
		tw := newTable(s.out)
		for _, o := range d.Recent {
			fmt.Fprintf(tw, "  #%s\t%s %s\t%s\t%s\n", o.ID, o.FirstName, o.LastName, paidLabel(bool(o.Paid)), o.Created)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(d.Top) > 0 {
		s.println("Top products (30 days)")
		tw := newTable(s.out)
		for _, p := range d.Top {
			fmt.Fprintf(tw, "  %s\t%d\t%s\n", p.Name, p.Units, money.FormatFloat(float64(p.Revenue)))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(d.LowStock) > 0 {
		s.println("Low stock")
		tw := newTable(s.out)
		for _, p := range d.LowStock {
			fmt.Fprintf(tw, "  %s\t%s\t%d\n", p.SKU, p.Name, p.Stock)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(d.Failed) > 0 {
		s.printf("Unavailable: %s\n", strings.Join(d.Failed, ", "))
	}
	return nil
}

// staffOrders takes an optional status, an optional page=N and a search query.
func (s *Shell) staffOrders(ctx context.Context, args []string) error {
	f := staff.OrderFilter{Page: 1, Status: staff.StatusAll}
	var q []string
	for _, a := range args {
		switch {
		case a == staff.StatusAll || a == staff.StatusPaid || a == staff.StatusUnpaid:
			f.Status = a
		case strings.HasPrefix(a, "page="):
			n, err := strconv.Atoi(strings.TrimPrefix(a, "page="))
			if err != nil {
				return usage("staff orders [all|paid|unpaid] [page=N] [query]")
			}
			f.Page = n
		default:
			q = append(q, a)
		}
	}
	f.Query = strings.Join(q, " ")

	page, err := s.svc.Staff.Orders(ctx, f)
	if err != nil {
		return err
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "ORDER\tCUSTOMER\tTOTAL\tSTATUS\tCREATED")
	for _, o := range page.Rows {
		fmt.Fprintf(tw, "#%s\t%s %s\t%s\t%s\t%s\n", o.ID, o.FirstName, o.LastName, o.DisplayTotal(), paidLabel(o.Paid), o.Created)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	s.printf("Page %d of %d (%d orders)\n", max(f.Page, 1), page.Pages(f.PageSize), page.Count)
	return nil
}

func (s *Shell) staffOrder(ctx context.Context, id string) error {
	d, err := s.svc.Staff.Order(ctx, id)
	if err != nil {
		return err
	}
	s.printf("Order #%s  %s  %d items\n", d.ID, d.Created, d.ItemCount)
	for _, line := range d.Shipping.Lines() {
		s.printf("  %s\n", line)
	}
	if d.Shipping.Email != "" {
		s.printf("  %s\n", d.Shipping.Email)
	}
	return s.printOrder(d.Order)
}

func (s *Shell) staffProducts(ctx context.Context) error {
	rows, err := s.svc.Staff.Products(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.println("No products.")
		return nil
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "ID\tSKU\tNAME\tRETAIL\tWHOLESALE\tTRACK\tACTIVE")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", p.ID, dash(p.SKU.String()), p.Name,
			money.FormatFloat(float64(p.PriceRetail)), money.FormatFloat(float64(p.PriceWholesale)),
			yesNo(bool(p.TrackStock)), yesNo(bool(p.IsActive)))
	}
	return tw.Flush()
}

func (s *Shell) staffEditProduct(ctx context.Context, id string) error {
	rows, err := s.svc.Staff.Products(ctx)
	if err != nil {
		return err
	}
	var p *staff.Product
	for i := range rows {
		if rows[i].ID.String() == id {
			p = &rows[i]
			break
		}
	}
	if p == nil {
		s.println("No such product.")
		return nil
	}

	if p.Name, err = s.ask("Name", p.Name); err != nil {
		return err
	}
	sku, err := s.ask("SKU", p.SKU.String())
	if err != nil {
		return err
	}
	p.SKU = jsonx.Text(sku)
	for _, f := range []struct {
		label string
		dst   *jsonx.Float
	}{{"Retail", &p.PriceRetail}, {"Wholesale", &p.PriceWholesale}} {
		v, err := s.ask(f.label, strconv.FormatFloat(float64(*f.dst), 'f', 2, 64))
		if err != nil {
			return err
		}
		*f.dst = jsonx.Float(jsonx.ParseFloat(v))
	}
	for _, f := range []struct {
		label string
		dst   *jsonx.Bool
	}{{"Track stock", &p.TrackStock}, {"Active", &p.IsActive}} {
		v, err := s.ask(f.label+" (y/n)", yesNo(bool(*f.dst)))
		if err != nil {
			return err
		}
		*f.dst = jsonx.Bool(strings.HasPrefix(strings.ToLower(v), "y"))
	}

	if err := s.svc.Staff.UpdateProduct(ctx, *p); err != nil {
		return err
	}
	s.println("Product saved.")
	return nil
}

func (s *Shell) staffInventory(ctx context.Context) error {
	inv, err := s.svc.Staff.Inventory(ctx)
	if err != nil {
		return err
	}
	if len(inv.Snapshot) == 0 {
		s.println("No stock.")
		return nil
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "SKU\tPRODUCT\tON HAND")
	for _, r := range inv.Snapshot {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", dash(r.SKU.String()), r.Name, r.OnHand)
	}
	return tw.Flush()
}

func (s *Shell) staffAdjust(ctx context.Context, args []string) error {
	const u = "staff adjust <product> <delta> [reason] [note]"
	if len(args) < 2 {
		return usage(u)
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil {
		return usage(u)
	}
	a := staff.StockAdjustment{Product: args[0], Delta: delta}
	if len(args) > 2 {
		a.Reason = args[2]
		a.Note = strings.Join(args[3:], " ")
	}
	if err := s.svc.Staff.AdjustStock(ctx, a); err != nil {
		return err
	}
	s.println("Stock adjusted.")
	return s.staffInventory(ctx)
}

func (s *Shell) staffCustomers(ctx context.Context) error {
	rows, err := s.svc.Staff.Customers(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		s.println("No customers.")
		return nil
	}
	tw := newTable(s.out)
	fmt.Fprintln(tw, "NAME\tTYPE\tEMAIL\tPHONE\tCITY")
	for _, c := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.Name, c.CustomerType,
			dash(c.Email.String()), dash(c.Phone.String()), dash(c.City.String()))
	}
	return tw.Flush()
}

func (s *Shell) staffCreateCustomer(ctx context.Context) error {
	var c staff.Customer
	var err error
	if c.Name, err = s.ask("Name", ""); err != nil {
		return err
	}
	if c.CustomerType, err = s.ask("Type (RETAIL/WHOLESALE)", staff.CustomerRetail); err != nil {
		return err
	}
	c.CustomerType = strings.ToUpper(c.CustomerType)
	for _, f := range []struct {
		label string
		dst   *jsonx.Text
	}{{"Email", &c.Email}, {"Phone", &c.Phone}, {"City", &c.City}} {
		v, err := s.ask(f.label, "")
		if err != nil {
			return err
		}
		*f.dst = jsonx.Text(v)
	}
	if err := s.svc.Staff.CreateCustomer(ctx, c); err != nil {
		return err
	}
	s.println("Customer added.")
	return s.staffCustomers(ctx)
}

// staffEnquiries takes an optional status and a search query.
func (s *Shell) staffEnquiries(ctx context.Context, args []string) error {
	status := staff.StatusAll
	if len(args) > 0 {
		switch args[0] {
		case staff.StatusAll, staff.EnquiryOpen, staff.EnquiryPending, staff.EnquiryResolved:
			status, args = args[0], args[1:]
		}
	}
	rows, err := s.svc.Staff.Enquiries(ctx)
	if err != nil {
		return err
	}
	sum := staff.Summarize(rows)
	s.printf("Open %d  Pending %d  Resolved %d\n", sum.Open, sum.Pending, sum.Resolved)

	shown := staff.FilterEnquiries(rows, strings.Join(args, " "), status)
	if len(shown) == 0 {
		s.println("No enquiries.")
		return nil
	}
	tw := newTable(s.out)
	for _, e := range shown {
		fmt.Fprintf(tw, "#%s\t%s\t%s\t%s\t%s\n", e.ID, e.Status, e.Email, e.Subject, e.Created)
	}
	return tw.Flush()
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
