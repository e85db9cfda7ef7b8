package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	tea "charm.land/bubbletea/v2"

	"github.com/go-authgate/session-cli/apiclient"
	"github.com/go-authgate/session-cli/internal/logger"
	"github.com/go-authgate/session-cli/tokenstore"
	"github.com/go-authgate/session-cli/tui"
)

var (
	serverURL         string
	tokenFile         string
	tokenStoreKind    string
	redisAddr         string
	profile           string
	locale            string
	requestTimeout    time.Duration
	flagServerURL     *string
	flagTokenFile     *string
	flagTokenStore    *string
	flagRedisAddr     *string
	flagProfile       *string
	flagLocale        *string
	flagTimeout       *string
	configInitialized bool
	retryClient       *retry.Client
)

const (
	defaultProfile    = "default"
	defaultBurstSize  = 5
	redisKeyPrefix    = "session-cli"
	redisPingTimeout  = 3 * time.Second
	defaultTokenStore = "file"
)

const usage = `Usage: session-cli [flags] <command> [args]

Commands:
  login <email> <password>   authenticate and store the session
  register <json-body>       create an account and store the session
  get <path>                 authenticated GET
  post <path> <json-body>    authenticated POST
  burst <path> [n]           n concurrent GETs (default 5) sharing one refresh
  status                     show the stored session
  logout                     end the session on the server and locally
`

func init() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	// Define flags (but don't parse yet to avoid conflicts with test flags)
	flagServerURL = flag.String(
		"server-url",
		"",
		"API base URL (default: http://localhost:3000/api or SERVER_URL env)",
	)
	flagTokenFile = flag.String(
		"token-file",
		"",
		"Token storage file (default: .session-tokens.json or TOKEN_FILE env)",
	)
	flagTokenStore = flag.String("token-store", "", "Token store: file, redis or memory (TOKEN_STORE env)")
	flagRedisAddr = flag.String("redis-addr", "", "Redis address for -token-store=redis (REDIS_ADDR env)")
	flagProfile = flag.String("profile", "", "Session profile key (default: default or PROFILE env)")
	flagLocale = flag.String("locale", "", "Error message language: en or fr (LOCALE env)")
	flagTimeout = flag.String("timeout", "", "Per-request timeout, e.g. 10s (REQUEST_TIMEOUT env)")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
		flag.PrintDefaults()
	}
}

// initConfig parses flags and initializes configuration
// Separated from init() to avoid conflicts with test flag parsing
func initConfig() {
	if configInitialized {
		return
	}
	configInitialized = true

	flag.Parse()

	// Priority: flag > env > default
	serverURL = getConfig(*flagServerURL, "SERVER_URL", "http://localhost:3000/api")
	tokenFile = getConfig(*flagTokenFile, "TOKEN_FILE", ".session-tokens.json")
	tokenStoreKind = getConfig(*flagTokenStore, "TOKEN_STORE", defaultTokenStore)
	redisAddr = getConfig(*flagRedisAddr, "REDIS_ADDR", "localhost:6379")
	profile = getConfig(*flagProfile, "PROFILE", defaultProfile)
	locale = getConfig(*flagLocale, "LOCALE", "en")

	var err error
	requestTimeout, err = parseTimeout(getConfig(*flagTimeout, "REQUEST_TIMEOUT", ""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid REQUEST_TIMEOUT: %v\n", err)
		os.Exit(1)
	}

	// Validate SERVER_URL format
	if err := validateServerURL(serverURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Invalid SERVER_URL: %v\n", err)
		os.Exit(1)
	}

	// Warn if using HTTP instead of HTTPS
	if strings.HasPrefix(strings.ToLower(serverURL), "http://") {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(
			os.Stderr,
			"⚠️  This is only safe for local development. Use HTTPS in production.",
		)
		fmt.Fprintln(os.Stderr)
	}

	if warning := profileWarning(profile); warning != "" {
		fmt.Fprintf(os.Stderr, "⚠️  Warning: %s\n\n", warning)
	}

	retryClient, err = apiclient.NewRetryClient()
	if err != nil {
		panic(err.Error())
	}
}

// getConfig returns value with priority: flag > env > default
func getConfig(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return getEnv(envKey, defaultValue)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// validateServerURL validates that the server URL is properly formatted
func validateServerURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("server URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL must include a host")
	}

	return nil
}

// parseTimeout accepts a Go duration ("15s") or a number of seconds. Empty means the default.
func parseTimeout(raw string) (time.Duration, error) {
	if raw == "" {
		return apiclient.DefaultRequestTimeout, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		raw = strconv.Itoa(secs) + "s"
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("timeout must be positive, got: %s", d)
	}
	return d, nil
}

// profileWarning flags a profile that is meant to be an account id but is not a valid UUID.
func profileWarning(p string) string {
	if strings.Count(p, "-") != 4 {
		return ""
	}
	if _, err := uuid.Parse(p); err != nil {
		return fmt.Sprintf("PROFILE looks like an id but is not a valid UUID: %s", p)
	}
	return ""
}

// newStore builds the configured token store.
func newStore(ctx context.Context) (tokenstore.Store, string, error) {
	switch tokenStoreKind {
	case "file":
		return tokenstore.NewFile(tokenFile, profile), tokenFile, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, "", fmt.Errorf("redis %s unreachable: %w", redisAddr, err)
		}
		store := tokenstore.NewRedis(rdb, redisKeyPrefix, profile, 0)
		return store, "redis://" + redisAddr + "/" + store.Key(), nil
	case "memory":
		return tokenstore.NewMemory(tokenstore.Credentials{}), "memory", nil
	default:
		return nil, "", fmt.Errorf("unknown token store %q (want file, redis or memory)", tokenStoreKind)
	}
}

// newClient wires the request pipeline to the displayer.
func newClient(store tokenstore.Store, d tui.Displayer, log zerolog.Logger) *apiclient.Client {
	transport := apiclient.NewHTTPTransport(serverURL, retryClient, requestTimeout)
	return apiclient.New(transport, store,
		apiclient.WithLogger(log),
		apiclient.WithMessages(apiclient.MessagesFor(locale)),
		apiclient.WithHooks(apiclient.Hooks{
			OnRefreshStart: d.Refreshing,
			OnRefreshDone: func(err error) {
				if err != nil {
					d.RefreshFailed(err)
					return
				}
				d.RefreshOK()
			},
			OnSessionExpired: d.SessionExpired,
		}),
	)
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	initConfig()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if isTTY() {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner()
		// Log lines would tear the TUI frame; only an explicit LOG_LEVEL turns them on.
		log := zerolog.Nop()
		if os.Getenv("LOG_LEVEL") != "" {
			log = logger.New(os.Stderr)
		}
		runErr := run(d, log, args)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		if runErr != nil {
			os.Exit(1)
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner()
		if err := run(d, logger.New(os.Stderr), args); err != nil {
			os.Exit(1)
		}
	}
}

func run(d tui.Displayer, log zerolog.Logger, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, d, log, args, os.Stdout); err != nil {
		d.Fatal(err)
		return err
	}
	d.Done()
	return nil
}

// execute runs one command; response bodies go to out.
func execute(ctx context.Context, d tui.Displayer, log zerolog.Logger, args []string, out io.Writer) error {
	store, target, err := newStore(ctx)
	if err != nil {
		return err
	}
	client := newClient(store, d, log)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		if len(rest) != 2 {
			return errors.New("usage: login <email> <password>")
		}
		if _, err := client.Login(ctx, rest[0], rest[1]); err != nil {
			return err
		}
		d.SessionSaved(target)
		return nil

	case "register":
		if len(rest) != 1 {
			return errors.New("usage: register <json-body>")
		}
		body, err := jsonArg(rest[0])
		if err != nil {
			return err
		}
		if _, err := client.Register(ctx, body); err != nil {
			return err
		}
		d.SessionSaved(target)
		return nil

	case "get":
		if len(rest) != 1 {
			return errors.New("usage: get <path>")
		}
		d.Requesting(http.MethodGet, rest[0])
		res, err := client.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return writeResult(out, d, res)

	case "post":
		if len(rest) != 2 {
			return errors.New("usage: post <path> <json-body>")
		}
		body, err := jsonArg(rest[1])
		if err != nil {
			return err
		}
		d.Requesting(http.MethodPost, rest[0])
		res, err := client.Post(ctx, rest[0], body)
		if err != nil {
			return err
		}
		return writeResult(out, d, res)

	case "burst":
		if len(rest) < 1 || len(rest) > 2 {
			return errors.New("usage: burst <path> [n]")
		}
		n := defaultBurstSize
		if len(rest) == 2 {
			if n, err = strconv.Atoi(rest[1]); err != nil || n < 1 {
				return fmt.Errorf("invalid burst size: %s", rest[1])
			}
		}
		return burst(ctx, client, d, rest[0], n)

	case "status":
		return status(ctx, store, d, target)

	case "logout":
		if err := client.Logout(ctx); err != nil {
			return err
		}
		d.SessionCleared()
		return nil
	}

	return fmt.Errorf("unknown command %q", cmd)
}

// burst fires n GETs at once. Each request sees the same refresh when the session expired.
func burst(ctx context.Context, client *apiclient.Client, d tui.Displayer, path string, n int) error {
	d.Requesting(http.MethodGet, fmt.Sprintf("%s ×%d", path, n))

	var g errgroup.Group
	for i := 1; i <= n; i++ {
		g.Go(func() error {
			_, err := client.Get(ctx, path)
			d.BurstResult(i, err)
			return err
		})
	}
	err := g.Wait()
	d.Stats(client.Stats())
	return err
}

func status(ctx context.Context, store tokenstore.Store, d tui.Displayer, target string) error {
	creds, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load tokens: %w", err)
	}

	info := tui.StatusInfo{
		Store:      target,
		HasAccess:  creds.AccessToken != "",
		HasRefresh: creds.RefreshToken != "",
	}
	if info.HasAccess {
		if exp, err := tokenstore.ExpiresAt(creds.AccessToken); err == nil {
			info.Expiry = exp
		}
	}
	d.Status(info)
	return nil
}

func jsonArg(raw string) (json.RawMessage, error) {
	if !json.Valid([]byte(raw)) {
		return nil, fmt.Errorf("body is not valid JSON: %s", raw)
	}
	return json.RawMessage(raw), nil
}

// writeResult prints the unwrapped result as indented JSON, or verbatim when it is not JSON.
func writeResult(out io.Writer, d tui.Displayer, res *apiclient.Result) error {
	var raw []byte
	if res.Envelope != nil {
		data, err := json.Marshal(res.Envelope)
		if err != nil {
			return err
		}
		raw = data
	} else if res.Response != nil {
		raw = res.Response.Body
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		buf.Reset()
		buf.Write(raw)
	}
	body := buf.String()

	d.Response(body)
	_, err := fmt.Fprintln(out, body)
	return err
}
