// Package shell is the interactive storefront: a line-oriented REPL whose
// commands open the same routes the web storefront has, behind the same
// guards.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/atinyakov/sockcs/internal/client/api"
	"github.com/atinyakov/sockcs/internal/client/auth"
	"github.com/atinyakov/sockcs/internal/client/cart"
	"github.com/atinyakov/sockcs/internal/client/catalog"
	"github.com/atinyakov/sockcs/internal/client/orders"
	"github.com/atinyakov/sockcs/internal/client/routes"
	"github.com/atinyakov/sockcs/internal/client/staff"
)

// DefaultCartRefresh is how often Run reloads the cart in the background.
const DefaultCartRefresh = 30 * time.Second

// Services are the storefront clients the shell drives.
type Services struct {
	Session *auth.Session
	Cart    *cart.Syncer
	Catalog *catalog.Catalog
	Orders  *orders.Client
	Staff   *staff.Client
}

type command struct {
	usage string
	help  string
	run   func(ctx context.Context, args []string) error
}

// Shell is one interactive session. It is not safe for concurrent use.
type Shell struct {
	svc    Services
	in     *bufio.Scanner
	out    io.Writer
	log    *zap.Logger
	secret func(label string) (string, error)

	pollEvery   time.Duration
	pollTries   int
	cartRefresh time.Duration

	// badge mirrors the cart count; background reloads update it.
	badge atomic.Int64
	// identityChanged is set when the signed-in user changes and cleared
	// once the cart was reloaded for the new identity.
	identityChanged atomic.Bool

	location string
	// from is where to return after signing in.
	from     string
	commands map[string]command
	quit     bool
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Shell) { s.log = log }
}

// WithSecretReader replaces how passwords are read.
func WithSecretReader(fn func(label string) (string, error)) Option {
	return func(s *Shell) { s.secret = fn }
}

// WithPolling sets how the thank-you view waits for payment.
func WithPolling(every time.Duration, tries int) Option {
	return func(s *Shell) { s.pollEvery, s.pollTries = every, tries }
}

// WithCartRefresh sets how often Run reloads the cart. Zero disables it.
func WithCartRefresh(every time.Duration) Option {
	return func(s *Shell) { s.cartRefresh = every }
}

// New returns a shell reading commands from in and writing to out. When in
// is a terminal, passwords are read without echo.
func New(svc Services, in io.Reader, out io.Writer, opts ...Option) *Shell {
	s := &Shell{
		svc:       svc,
		in:        bufio.NewScanner(in),
		out:       out,
		log:       zap.NewNop(),
		pollEvery: orders.DefaultPollInterval,
		pollTries: orders.DefaultPollTries,
		location:  routes.Home,

		cartRefresh: DefaultCartRefresh,
	}
	s.secret = s.readLine
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		s.secret = func(label string) (string, error) {
			fmt.Fprintf(s.out, "%s: ", label)
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(s.out)
			return string(b), err
		}
	}
	for _, o := range opts {
		o(s)
	}
	s.commands = s.table()

	s.badge.Store(int64(svc.Cart.Count()))
	svc.Cart.Subscribe(func(c cart.Cart) { s.badge.Store(int64(c.Count)) })
	svc.Session.Subscribe(func(*auth.User) { s.identityChanged.Store(true) })
	return s
}

func (s *Shell) table() map[string]command {
	return map[string]command{
		"help":     {"help", "list commands", s.cmdHelp},
		"login":    {"login", "sign in", s.cmdLogin},
		"register": {"register", "create an account", s.cmdRegister},
		"logout":   {"logout", "sign out", s.cmdLogout},
		"whoami":   {"whoami", "show the signed-in user", s.cmdWhoami},
		"shop":     {"shop [search]", "browse products", s.cmdShop},
		"product":  {"product <id>", "show a product", s.cmdProduct},
		"recs":     {"recs <id> [max-price]", "products recommended with a product", s.cmdRecs},
		"cart":     {"cart", "show the cart", s.cmdCart},
		"add":      {"add <id> [qty]", "add a product to the cart", s.cmdAdd},
		"qty":      {"qty <id> <n>", "change a cart quantity", s.cmdQty},
		"rm":       {"rm <id>", "remove a product from the cart", s.cmdRemove},
		"clear":    {"clear", "empty the cart", s.cmdClear},
		"coupon":   {"coupon <code>|-", "apply or remove a coupon", s.cmdCoupon},
		"checkout": {"checkout", "place an order", s.cmdCheckout},
		"orders":   {"orders [query]", "list or search your orders", s.cmdOrders},
		"order":    {"order <id>", "show an order", s.cmdOrder},
		"thankyou": {"thankyou [id]", "confirm the last order", s.cmdThankYou},
		"account":  {"account [name <first> <last>|phone <number>]", "show or edit your account", s.cmdAccount},
		"password": {"password", "change your password", s.cmdPassword},
		"staff":    {"staff [orders|order|paid|products|product|inventory|adjust|customers|customer|enquiries]", "staff console", s.cmdStaff},
		"go":       {"go <path>", "open a storefront path", s.cmdGo},
		"exit":     {"exit", "leave the shell", s.cmdExit},
	}
}

// Location is the route currently shown.
func (s *Shell) Location() string { return s.location }

// Prompt is the input prompt: current location and the cart badge.
func (s *Shell) Prompt() string {
	if n := s.badge.Load(); n > 0 {
		return fmt.Sprintf("sockcs %s [cart %d]> ", s.location, n)
	}
	return fmt.Sprintf("sockcs %s> ", s.location)
}

// Run restores the session and the cart, then reads commands until exit,
// end of input or ctx is done. While it runs the cart is reloaded in the
// background every cart refresh interval.
func (s *Shell) Run(ctx context.Context) error {
	if _, err := s.svc.Session.Restore(ctx); err != nil {
		s.log.Debug("restore session", zap.Error(err))
	}
	s.identityChanged.Store(false)
	if err := s.svc.Cart.Reload(ctx); err != nil {
		s.log.Warn("load cart", zap.Error(err))
	}

	if s.cartRefresh > 0 {
		watchCtx, stop := context.WithCancel(ctx)
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.svc.Cart.Watch(watchCtx, s.cartRefresh)
		}()
		defer func() {
			stop()
			wg.Wait()
		}()
	}

	for !s.quit {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(s.out, s.Prompt())
		if !s.in.Scan() {
			fmt.Fprintln(s.out)
			return s.in.Err()
		}
		s.Exec(ctx, s.in.Text())
	}
	return nil
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return
	}
	cmd, ok := s.commands[args[0]]
	if !ok {
		s.println("Unknown command. Type 'help' for a list of commands.")
		return
	}
	if err := cmd.run(ctx, args[1:]); err != nil {
		s.fail(err)
	}
	s.syncCart(ctx)
}

// syncCart reloads the cart when the signed-in user changed since the last
// reload: a guest cart and a customer cart are different carts.
func (s *Shell) syncCart(ctx context.Context) {
	if !s.identityChanged.Swap(false) {
		return
	}
	if err := s.svc.Cart.Reload(ctx); err != nil {
		s.log.Warn("reload cart for new user", zap.Error(err))
	}
}

// fail prints err the way the storefront shows inline errors.
func (s *Shell) fail(err error) {
	var ae *auth.AuthError
	switch {
	case errors.Is(err, context.Canceled):
		s.println("Cancelled.")
	case errors.Is(err, errUsage):
		s.println(err.Error())
	case errors.Is(err, orders.ErrMissingField):
		s.println("Please fill in all required fields.")
	case errors.Is(err, cart.ErrEmptyCart):
		s.println("Your cart is empty.")
	case errors.Is(err, orders.ErrNoOrder):
		s.println("We couldn't find that order.")
	case errors.Is(err, auth.ErrNotAuthenticated), api.IsUnauthorized(err):
		s.println("Please sign in to continue.")
		s.from, s.location = s.location, routes.Login
	case errors.As(err, &ae):
		s.println(ae.Detail)
	default:
		s.log.Debug("command failed", zap.Error(err))
		s.println(api.Message(err))
	}
}

var errUsage = errors.New("usage")

func usage(u string) error { return fmt.Errorf("%w: %s", errUsage, u) }

// viewer describes the signed-in user for the route guards.
func (s *Shell) viewer() routes.Viewer {
	return routes.Viewer{SignedIn: s.svc.Session.User() != nil, Staff: s.svc.Session.IsStaff()}
}

// visit moves to location when the guard allows it. Otherwise it follows the
// redirect, remembering the refused location for after login.
func (s *Shell) visit(location string) (routes.Match, bool) {
	m, d := routes.Resolve(location, s.viewer())
	switch {
	case d.Allow:
		s.location = m.Location()
		return m, true
	case d.Redirect == routes.Login:
		s.from, s.location = d.From, routes.Login
		s.println("Please sign in to continue.")
	default:
		s.location = d.Redirect
		if m.Route == nil {
			s.printf("Page not found. Back to %s.\n", d.Redirect)
		} else {
			s.printf("That page is for staff only. Back to %s.\n", d.Redirect)
		}
	}
	return m, false
}

func (s *Shell) println(a ...any)               { fmt.Fprintln(s.out, a...) }
func (s *Shell) printf(format string, a ...any) { fmt.Fprintf(s.out, format, a...) }

func (s *Shell) readLine(label string) (string, error) {
	fmt.Fprintf(s.out, "%s: ", label)
	if !s.in.Scan() {
		if err := s.in.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(s.in.Text()), nil
}

// ask reads one field. An empty answer keeps def.
func (s *Shell) ask(label, def string) (string, error) {
	if def != "" {
		label = fmt.Sprintf("%s [%s]", label, def)
	}
	v, err := s.readLine(label)
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

func (s *Shell) cmdHelp(context.Context, []string) error {
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	tw := newTable(s.out)
	for _, name := range names {
		c := s.commands[name]
		fmt.Fprintf(tw, "  %s\t%s\n", c.usage, c.help)
	}
	return tw.Flush()
}

func (s *Shell) cmdGo(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return usage("go <path>")
	}
	m, ok := s.visit(args[0])
	if !ok {
		return nil
	}
	return s.render(ctx, m)
}

func (s *Shell) cmdExit(context.Context, []string) error {
	s.println("Bye")
	s.quit = true
	return nil
}
