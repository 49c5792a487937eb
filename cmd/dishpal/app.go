package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/dishpal-ai/dishpal-cli/internal/api"
	"github.com/dishpal-ai/dishpal-cli/internal/cache"
	"github.com/dishpal-ai/dishpal-cli/internal/catalog"
	"github.com/dishpal-ai/dishpal-cli/internal/credstore"
	"github.com/dishpal-ai/dishpal-cli/internal/logger"
	"github.com/dishpal-ai/dishpal-cli/internal/models"
	"github.com/dishpal-ai/dishpal-cli/internal/session"
	"github.com/dishpal-ai/dishpal-cli/internal/validate"
)

const usage = `dishpal - discover deals, manage your Dishpal account

Commands:
  login          Sign in with email and password
  register       Create a new account
  google-login   Sign in with a Google provider access token
  google-signup  Sign up with a Google provider access token
  logout         End the session and clear credentials
  whoami         Show the current session user
  profile        Show the extended user profile
  refresh        Renew the token pair proactively
  guest-token    Request a guest token for an email
  browse         Browse categories, discounts or plans
`

// App wires the session core together: credential store -> HTTP session
// client -> query cache -> session store, in dependency order.
type App struct {
	out     io.Writer
	logger  logger.Logger
	creds   credstore.Store
	client  *api.Client
	session *session.Store
}

// printNavigator is the CLI stand-in for router navigation: leaving for a
// route just tells the user where they ended up.
type printNavigator struct {
	out io.Writer
}

func (n printNavigator) Navigate(route string, replace bool) {
	fmt.Fprintf(n.out, "-> %s\n", route)
}

func NewApp(c *Config, out io.Writer) (*App, error) {
	log := logger.New(c.LogLevel)

	credPath := c.CredFile
	if credPath == "" {
		var err error
		credPath, err = credstore.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	creds := credstore.NewFileStore(credPath)
	queryCache := cache.New()

	client, err := api.NewClient(api.Config{
		BaseURL:       c.APIURL,
		OAuthPassword: c.OAuthPassword,
		Timeout:       c.HTTPTimeout,
		Logger:        log,
	}, creds, queryCache)
	if err != nil {
		return nil, fmt.Errorf("error while creating api client: %w", err)
	}

	sessionStore, err := session.NewStore(client, queryCache, creds, printNavigator{out: out}, log)
	if err != nil {
		return nil, fmt.Errorf("error while creating session store: %w", err)
	}

	return &App{
		out:     out,
		logger:  log,
		creds:   creds,
		client:  client,
		session: sessionStore,
	}, nil
}

func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return nil
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "google-login":
		return a.googleLogin(ctx, rest)
	case "google-signup":
		return a.googleSignUp(ctx, rest)
	case "logout":
		return a.logout()
	case "whoami":
		return a.whoami(ctx)
	case "profile":
		return a.profile(ctx)
	case "refresh":
		return a.refresh(ctx)
	case "guest-token":
		return a.guestToken(ctx, rest)
	case "browse":
		return a.browse(rest)
	default:
		fmt.Fprint(a.out, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *App) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", "", "Account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	form := validate.SignInForm{Email: *email, Password: *password}
	if err := validate.Struct(form); err != nil {
		return err
	}

	username := emailLocalPart(*email)
	a.logger.Info("Dishpal AI is logging you into your account now.", "username", username)

	_, err := a.client.Login(ctx, api.LoginRequest{
		Email:    *email,
		Username: username,
		Password: *password,
	})
	if err != nil {
		a.logger.Error("Check your email and password and try again!", "username", username)
		return err
	}

	fmt.Fprintf(a.out, "%s, here is your dashboard! Explore!\n", username)
	return nil
}

func (a *App) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	username := fs.StringP("username", "n", "", "Username")
	email := fs.StringP("email", "e", "", "Account email")
	password := fs.StringP("password", "p", "", "Account password")
	confirm := fs.String("confirm-password", "", "Password confirmation")
	if err := fs.Parse(args); err != nil {
		return err
	}

	form := validate.SignUpForm{
		Username:        *username,
		Email:           *email,
		Password:        *password,
		ConfirmPassword: *confirm,
	}
	if err := validate.Struct(form); err != nil {
		return err
	}

	_, err := a.client.Register(ctx, api.RegisterRequest{
		Username:        *username,
		Email:           *email,
		Password:        *password,
		ConfirmPassword: *confirm,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Welcome to Dishpal, %s!\n", *username)
	return nil
}

func (a *App) googleLogin(ctx context.Context, args []string) error {
	token, err := providerToken(args)
	if err != nil {
		return err
	}

	_, user, err := a.client.GoogleSignIn(ctx, token)
	if err != nil {
		a.logger.Error("Your email is not yet registered! Please sign up with Google first.")
		return err
	}

	fmt.Fprintf(a.out, "%s, here is your dashboard! Explore!\n", user.Name)
	return nil
}

func (a *App) googleSignUp(ctx context.Context, args []string) error {
	token, err := providerToken(args)
	if err != nil {
		return err
	}

	_, user, err := a.client.GoogleSignUp(ctx, token)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Welcome to Dishpal, %s!\n", user.Name)
	return nil
}

func (a *App) logout() error {
	return a.session.Logout()
}

func (a *App) whoami(ctx context.Context) error {
	user, state := a.session.Current(ctx)
	if state != session.StateAuthenticated {
		fmt.Fprintln(a.out, "Not logged in.")
		return nil
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%d\n", user.ID)
	fmt.Fprintf(w, "username\t%s\n", user.Username)
	fmt.Fprintf(w, "email\t%s\n", user.Email)
	fmt.Fprintf(w, "role\t%s\n", user.Role)
	fmt.Fprintf(w, "joined\t%s\n", user.DateJoined.Format("2006-01-02"))
	if user.LastLogin != nil {
		fmt.Fprintf(w, "last login\t%s\n", user.LastLogin.Format("2006-01-02 15:04"))
	}
	if creds, ok, err := a.creds.Load(); err == nil && ok {
		if exp, ok := models.AccessTokenExpiry(creds.Access); ok {
			fmt.Fprintf(w, "session expires\t%s\n", exp.Format("2006-01-02 15:04"))
		}
	}
	return w.Flush()
}

func (a *App) profile(ctx context.Context) error {
	profile, err := a.client.UserProfile(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "username\t%s\n", profile.User.Username)
	fmt.Fprintf(w, "name\t%s %s\n", profile.FirstName, profile.LastName)
	fmt.Fprintf(w, "language\t%s\n", profile.Language)
	fmt.Fprintf(w, "country\t%s\n", profile.Country)
	return w.Flush()
}

func (a *App) refresh(ctx context.Context) error {
	pair, err := a.client.RefreshToken(ctx)
	if err != nil {
		return err
	}

	if exp, ok := models.AccessTokenExpiry(pair.Access); ok {
		fmt.Fprintf(a.out, "Session renewed, valid until %s.\n", exp.Format("2006-01-02 15:04"))
		return nil
	}
	fmt.Fprintln(a.out, "Session renewed.")
	return nil
}

func (a *App) guestToken(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("guest-token", pflag.ContinueOnError)
	email := fs.StringP("email", "e", "", "Email to issue the guest token for")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := validate.Struct(validate.ForgotPasswordForm{Email: *email}); err != nil {
		return err
	}

	token, err := a.client.GuestToken(ctx, *email)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *App) browse(args []string) error {
	fs := pflag.NewFlagSet("browse", pflag.ContinueOnError)
	category := fs.StringP("category", "c", "", "Filter discounts by category slug")
	if err := fs.Parse(args); err != nil {
		return err
	}

	what := "discounts"
	if fs.NArg() > 0 {
		what = fs.Arg(0)
	}

	w := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	switch what {
	case "categories":
		for _, c := range catalog.Categories() {
			fmt.Fprintf(w, "%s\t%s\n", c.Slug, c.Title)
		}
	case "discounts":
		for _, d := range catalog.Discounts(*category) {
			fmt.Fprintf(w, "%s\t-%d%%\t%s\t%s\n", d.Title, d.PercentOff, d.Price.StringFixed(2), d.DiscountedPrice().StringFixed(2))
		}
	case "plans":
		for _, p := range catalog.Plans() {
			fmt.Fprintf(w, "%s\t%s/mo\tsaved deals: %s\tsupport: %s\n", p.Name, p.MonthlyPrice.StringFixed(2), p.SavedDeals, p.PrioritySupport)
		}
	default:
		return fmt.Errorf("unknown browse target %q (want categories, discounts or plans)", what)
	}
	return w.Flush()
}

func providerToken(args []string) (string, error) {
	fs := pflag.NewFlagSet("google", pflag.ContinueOnError)
	token := fs.String("token", "", "Google provider access token")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if *token == "" {
		return "", fmt.Errorf("a provider access token is required (--token)")
	}
	return *token, nil
}

func emailLocalPart(email string) string {
	local, _, found := strings.Cut(email, "@")
	if !found {
		return email
	}
	return local
}
