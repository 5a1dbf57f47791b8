package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"

	"github.com/WhileEndless/go-docwire/pkg/config"
	"github.com/WhileEndless/go-docwire/pkg/docstore"
	"github.com/WhileEndless/go-docwire/pkg/logging"
	"github.com/WhileEndless/go-docwire/pkg/rawhttp"
	"github.com/WhileEndless/go-docwire/pkg/search"
	"github.com/WhileEndless/go-docwire/pkg/version"
)

const usage = `usage: docwire [-config file] [-v] <command> [flags] [args]

commands:
  get <id>                 print a stored document
  put <id>                 store a JSON document read from -file (default stdin)
  delete <id>              delete revision -rev of a document
  search <query>           query the search index
  fetch <url>              GET a URL and print the response
  version                  print the version
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// env is what every command needs.
type env struct {
	cfg    *config.Config
	log    zerolog.Logger
	client *rawhttp.Client
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("docwire", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := fs.String("config", "", "path to a TOML configuration file")
	verbose := fs.Bool("v", false, "log at debug level")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fmt.Fprintln(stderr, "docwire:", err)
			return 1
		}
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintln(stderr, "docwire:", err)
		return 1
	}
	defer closer.Close()

	opts := cfg.ClientOptions()
	opts.Logger = &log
	e := &env{cfg: cfg, log: log, client: rawhttp.NewClient(opts), stdin: stdin, stdout: stdout, stderr: stderr}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var cmdErr error
	switch cmd {
	case "get":
		cmdErr = e.get(ctx, rest)
	case "put":
		cmdErr = e.put(ctx, rest)
	case "delete":
		cmdErr = e.delete(ctx, rest)
	case "search":
		cmdErr = e.search(ctx, rest)
	case "fetch":
		cmdErr = e.fetch(ctx, rest)
	case "version":
		fmt.Fprintln(stdout, version.UserAgent())
	default:
		fmt.Fprintf(stderr, "docwire: unknown command %q\n", cmd)
		fs.Usage()
		return 2
	}
	if cmdErr != nil {
		if cmdErr == flag.ErrHelp {
			return 2
		}
		log.Error().Err(cmdErr).Str("command", cmd).Msg("command failed")
		fmt.Fprintln(stderr, "docwire:", cmdErr)
		return 1
	}
	return 0
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func (e *env) store(ctx context.Context) (*docstore.Store, error) {
	opts := e.cfg.StoreOptions()
	opts.Logger = &e.log
	s, err := docstore.New(e.client, opts)
	if err != nil {
		return nil, err
	}
	if opts.Username != "" {
		if err := s.Login(ctx); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (e *env) index() (*search.Client, error) {
	return search.NewClient(e.client, e.cfg.Search.BaseURL, e.cfg.Search.Core, e.log)
}

// oneArg parses fs and returns its single positional argument.
func oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		return "", fmt.Errorf("%s: expected exactly one %s", fs.Name(), what)
	}
	return fs.Arg(0), nil
}
