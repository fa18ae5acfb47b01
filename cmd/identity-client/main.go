package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-identity-client/internal/config"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const usageText = `usage: identity-client [-config file] [-banner] <command> [args]

commands:
  login [-email address] [-password secret]   sign in, the password is read from stdin if omitted
  logout                                      end the session
  whoami                                      show the signed-in identity
  token                                       print a valid access token, refreshing if needed
  get <path>                                  GET an API path with the session's token
  upload [-comma ;] <endpoint> <file.csv>     POST every CSV row to endpoint as a JSON record
  register -email address -first name -last name
                                              create an account, the password is read from stdin
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "identity-client: %s\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(stderr, "Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	flags := flag.NewFlagSet("identity-client", flag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "yaml config file (default $CONFIG_PATH or ./identity-client.yaml)")
	banner := flags.Bool("banner", false, "print the application banner")
	flags.Usage = func() {
		fmt.Fprint(stderr, usageText)
		fmt.Fprintln(stderr, "\nflags:")
		flags.PrintDefaults()
		fmt.Fprintln(stderr)
		fmt.Fprint(stderr, config.Usage())
	}
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() == 0 {
		flags.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *banner {
		displayAppname(stderr, cfg.GetAppName())
	}
	logger, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, stdin, stdout)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.MetricsEnabled() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
		server := &http.Server{
			Addr:              cfg.GetMetricsAddr(),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go listenAndServe(server, logger)
		defer func() {
			if err := shutdown(server); err != nil {
				logger.Err(err).Msg("metrics listener shutdown")
			}
		}()
	}

	return a.dispatch(ctx, flags.Arg(0), flags.Args()[1:])
}

func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.GetLogLevel())
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if cfg.GetLogFormat() != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", cfg.GetAppName()).Logger(), nil
}

func listenAndServe(server *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", server.Addr).Msg("metrics listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Err(err).Msg("metrics listener")
	}
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(w io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(w, myFigure.String())
}
