package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jrsteele09/go-identity-client/apiclient"
	"github.com/jrsteele09/go-identity-client/auth"
	"github.com/jrsteele09/go-identity-client/bulk"
	"github.com/jrsteele09/go-identity-client/bulk/csvsource"
	"github.com/jrsteele09/go-identity-client/internal/config"
	"github.com/jrsteele09/go-identity-client/metrics"
	"github.com/jrsteele09/go-identity-client/sessions"
	"github.com/jrsteele09/go-identity-client/sessions/filestore"
	"github.com/jrsteele09/go-identity-client/sessions/memstore"
	"github.com/jrsteele09/go-identity-client/sessions/pgstore"
	"github.com/jrsteele09/go-identity-client/sessions/redisstore"
	"github.com/jrsteele09/go-identity-client/sessions/sqlitestore"
	"github.com/jrsteele09/go-identity-client/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var errNotSignedIn = errors.New("not signed in")

// app wires the session manager, API client and uploader for one CLI invocation.
type app struct {
	logger   zerolog.Logger
	registry *prometheus.Registry
	store    sessions.Store
	closers  []func() error
	manager  *auth.Manager
	client   *apiclient.Client
	uploader *bulk.Uploader

	in  *bufio.Reader
	out io.Writer
}

func newApp(ctx context.Context, cfg config.Config, logger zerolog.Logger, stdin io.Reader, stdout io.Writer) (*app, error) {
	a := &app{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		in:       bufio.NewReader(stdin),
		out:      stdout,
	}
	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(ctx, cfg); err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.GetRequestTimeout()}
	userAgent := cfg.GetUserAgent()

	a.manager, err = auth.NewManager(cfg.GetBaseURL(), a.store,
		auth.WithLogger(logger),
		auth.WithHTTPClient(httpClient),
		auth.WithUserAgent(userAgent),
		auth.WithMetrics(m),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.client, err = apiclient.New(cfg.GetBaseURL(), a.manager,
		apiclient.WithLogger(logger),
		apiclient.WithHTTPClient(httpClient),
		apiclient.WithUserAgent(userAgent),
		apiclient.WithMetrics(m),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.uploader, err = bulk.NewUploader(a.client, bulk.WithLogger(logger), bulk.WithMetrics(m))
	if err != nil {
		a.close()
		return nil, err
	}

	if _, err := a.manager.Restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context, cfg config.Config) error {
	switch cfg.GetStoreKind() {
	case config.StoreMemory:
		a.store = memstore.New()

	case config.StoreFile:
		var options []filestore.StoreOption
		if hexKey := cfg.GetStoreKey(); hexKey != "" {
			key, err := filestore.KeyFromHex(hexKey)
			if err != nil {
				return err
			}
			options = append(options, filestore.WithKey(key))
		}
		s, err := filestore.New(cfg.GetStoreFilePath(), options...)
		if err != nil {
			return err
		}
		a.store = s

	case config.StoreRedis:
		s, err := redisstore.Open(ctx, redisstore.Config{
			Addr:     cfg.GetRedisAddr(),
			Password: cfg.GetRedisPassword(),
			DB:       cfg.GetRedisDB(),
			Prefix:   cfg.GetRedisPrefix(),
		})
		if err != nil {
			return err
		}
		a.store, a.closers = s, append(a.closers, s.Close)

	case config.StoreSQLite:
		s, err := sqlitestore.Open(ctx, cfg.GetSQLitePath())
		if err != nil {
			return err
		}
		a.store, a.closers = s, append(a.closers, s.Close)

	case config.StorePostgres:
		s, err := pgstore.Open(ctx, cfg.GetDatabaseURL())
		if err != nil {
			return err
		}
		a.store, a.closers = s, append(a.closers, s.Close)

	default:
		return fmt.Errorf("unknown store kind %q", cfg.GetStoreKind())
	}
	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Err(err).Msg("closing session store")
		}
	}
	a.closers = nil
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		return a.login(ctx, args)
	case "logout":
		a.manager.Logout(ctx)
		fmt.Fprintln(a.out, "signed out")
		return nil
	case "whoami":
		return a.whoami()
	case "token":
		return a.token(ctx)
	case "get":
		return a.get(ctx, args)
	case "upload":
		return a.upload(ctx, args)
	case "register":
		return a.register(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("login", flag.ContinueOnError)
	email := flags.String("email", "", "account email")
	password := flags.String("password", "", "account password")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cred := auth.Credential{Email: *email, Password: *password}
	if cred.Password == "" {
		p, err := a.readLine("password: ")
		if err != nil {
			return err
		}
		cred.Password = p
	}

	identity, err := a.manager.Login(ctx, cred)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s\n", identity.Name())
	return nil
}

func (a *app) whoami() error {
	identity := a.manager.Identity()
	if !identity.IsAuthenticated() {
		return errNotSignedIn
	}
	fmt.Fprintf(a.out, "name:    %s\n", identity.Name())
	fmt.Fprintf(a.out, "email:   %s\n", identity.Email())
	fmt.Fprintf(a.out, "roles:   %s\n", strings.Join(identity.Roles(), ", "))
	if expiresAt, ok := a.manager.ExpiresAt(); ok {
		fmt.Fprintf(a.out, "expires: %s\n", expiresAt.Format(time.RFC3339))
	}
	return nil
}

func (a *app) token(ctx context.Context) error {
	accessToken, ok, err := a.manager.GetValidToken(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errNotSignedIn
	}
	fmt.Fprintln(a.out, accessToken)
	return nil
}

func (a *app) get(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("get needs exactly one path")
	}
	body, err := a.client.Do(ctx, http.MethodGet, args[0], nil, "")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(body))
	return err
}

func (a *app) upload(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("upload", flag.ContinueOnError)
	comma := flags.String("comma", ",", "field delimiter")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 2 {
		return errors.New("upload needs an endpoint and a csv file")
	}
	delimiter := []rune(*comma)
	if len(delimiter) != 1 {
		return fmt.Errorf("delimiter must be a single character, got %q", *comma)
	}

	f, err := os.Open(flags.Arg(1))
	if err != nil {
		return err
	}
	defer f.Close()

	source, err := csvsource.New(f, csvsource.WithComma(delimiter[0]))
	if err != nil {
		return err
	}
	result, err := a.uploader.Upload(ctx, flags.Arg(0), source)
	fmt.Fprintf(a.out, "uploaded %d, skipped %d, throttled %d\n", result.Uploaded, result.Skipped, result.Throttled)
	return err
}

func (a *app) register(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("register", flag.ContinueOnError)
	email := flags.String("email", "", "account email")
	first := flags.String("first", "", "first name")
	last := flags.String("last", "", "last name")
	if err := flags.Parse(args); err != nil {
		return err
	}

	password, err := a.readLine("password: ")
	if err != nil {
		return err
	}
	confirm, err := a.readLine("confirm password: ")
	if err != nil {
		return err
	}

	problems, err := a.client.Register(ctx, users.Registration{
		Email:           *email,
		Password:        password,
		ConfirmPassword: confirm,
		FirstName:       *first,
		LastName:        *last,
	})
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		for field, messages := range problems {
			for _, msg := range messages {
				fmt.Fprintf(a.out, "%s: %s\n", field, msg)
			}
		}
		return errors.New("registration rejected")
	}
	fmt.Fprintf(a.out, "registered %s\n", strings.TrimSpace(*email))
	return nil
}

func (a *app) readLine(prompt string) (string, error) {
	fmt.Fprint(a.out, prompt)
	line, err := a.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s%w", prompt, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
