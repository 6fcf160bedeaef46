package shell

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/sockcs/internal/client/auth"
	"github.com/atinyakov/sockcs/internal/client/routes"
)

func (s *Shell) cmdLogin(ctx context.Context, _ []string) error {
	s.location = routes.Login
	id, err := s.ask("Username or email", "")
	if err != nil {
		return err
	}
	password, err := s.secret("Password")
	if err != nil {
		return err
	}
	cred := auth.Credentials{Username: id, Password: password}
	if strings.Contains(id, "@") {
		cred = auth.Credentials{Email: id, Password: password}
	}
	u, err := s.svc.Session.Login(ctx, cred)
	if err != nil {
		return err
	}
	return s.signedIn(ctx, u)
}

func (s *Shell) cmdRegister(ctx context.Context, _ []string) error {
	s.location = "/register"
	var form auth.RegisterForm
	for _, f := range []struct {
		label string
		dst   *string
	}{
		{"First name", &form.FirstName},
		{"Last name", &form.LastName},
		{"Email", &form.Email},
		{"Username (optional)", &form.Username},
	} {
		v, err := s.ask(f.label, "")
		if err != nil {
			return err
		}
		*f.dst = v
	}
	var err error
	if form.Password, err = s.secret("Password"); err != nil {
		return err
	}
	if form.Password2, err = s.secret("Confirm password"); err != nil {
		return err
	}
	u, err := s.svc.Session.Register(ctx, form)
	if err != nil {
		return err
	}
	return s.signedIn(ctx, u)
}

// signedIn greets the user, reloads the cart for the new identity and opens
// the page that sent them to the login.
func (s *Shell) signedIn(ctx context.Context, u *auth.User) error {
	if u != nil {
		s.printf("Welcome, %s.\n", auth.DisplayName(u))
	}
	s.syncCart(ctx)
	dest := routes.AfterLogin(s.from)
	s.from = ""
	m, ok := s.visit(dest)
	if !ok {
		return nil
	}
	return s.render(ctx, m)
}

func (s *Shell) cmdLogout(ctx context.Context, _ []string) error {
	if err := s.svc.Session.Logout(ctx); err != nil {
		return err
	}
	s.syncCart(ctx)
	s.location = routes.Home
	s.println("Signed out.")
	return nil
}

func (s *Shell) cmdWhoami(context.Context, []string) error {
	u := s.svc.Session.User()
	if u == nil {
		s.println("Not signed in.")
		return nil
	}
	role := "customer"
	if s.svc.Session.IsStaff() {
		role = "staff"
	}
	s.printf("%s <%s> (%s)\n", auth.DisplayName(u), u.Email, role)
	return nil
}

func (s *Shell) cmdAccount(ctx context.Context, args []string) error {
	if _, ok := s.visit(routes.Account); !ok {
		return nil
	}
	switch {
	case len(args) == 0:
		return s.viewAccount(ctx)
	case args[0] == "name" && len(args) >= 2:
		last := strings.Join(args[2:], " ")
		if _, err := s.svc.Session.UpdateName(ctx, args[1], last); err != nil {
			return err
		}
		s.println("Name updated.")
		return nil
	case args[0] == "phone" && len(args) == 2:
		if _, err := s.svc.Session.UpdateProfile(ctx, args[1]); err != nil {
			return err
		}
		s.println("Phone updated.")
		return nil
	}
	return usage("account [name <first> <last>|phone <number>]")
}

func (s *Shell) viewAccount(ctx context.Context) error {
	u := s.svc.Session.User()
	if u == nil {
		return auth.ErrNotAuthenticated
	}
	s.printf("Name:     %s\n", auth.DisplayName(u))
	s.printf("Username: %s\n", u.Username)
	s.printf("Email:    %s\n", u.Email)
	p, err := s.svc.Session.Profile(ctx)
	if err != nil {
		s.log.Debug("profile unavailable", zap.Error(err))
		return nil
	}
	if p.Phone != "" {
		s.printf("Phone:    %s\n", p.Phone)
	}
	return nil
}

func (s *Shell) cmdPassword(ctx context.Context, _ []string) error {
	if _, ok := s.visit(routes.Account); !ok {
		return nil
	}
	var vals [3]string
	for i, label := range []string{"Current password", "New password", "Confirm new password"} {
		v, err := s.secret(label)
		if err != nil {
			return err
		}
		vals[i] = v
	}
	if vals[1] != vals[2] {
		s.println("Passwords do not match.")
		return nil
	}
	if err := s.svc.Session.ChangePassword(ctx, vals[0], vals[1], vals[2]); err != nil {
		return err
	}
	s.println("Password changed.")
	return nil
}
