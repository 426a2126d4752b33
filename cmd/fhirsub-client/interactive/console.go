// Package interactive provides the interactive command-line interface
// for fhirsub-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"

	"github.com/openclinic/fhirsub/pkg/client"
	"github.com/openclinic/fhirsub/pkg/discovery"
)

// DefaultDiscoverTimeout bounds the discover command.
const DefaultDiscoverTimeout = 3 * time.Second

// Config configures a Console.
type Config struct {
	// Token is the bearer token sent on connect.
	Token string

	// Browser finds servers for the discover command. Nil disables it.
	Browser discovery.Browser

	// Logger is handed to every client the console creates.
	Logger *slog.Logger
}

// Console is an interactive notification listener.
type Console struct {
	config Config
	rl     *readline.Instance
	out    io.Writer

	mu         sync.Mutex
	client     *client.Client
	url        string
	discovered []*discovery.Service
	received   int
}

// New creates a console reading commands from the terminal.
func New(cfg Config) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "fhirsub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	c := newConsole(cfg, rl.Stdout())
	c.rl = rl
	return c, nil
}

func newConsole(cfg Config, out io.Writer) *Console {
	return &Console{config: cfg, out: out}
}

// Stdout returns a writer that coordinates with the prompt.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// SetLogger sets the logger handed to clients created afterwards.
func (c *Console) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	c.config.Logger = logger
	c.mu.Unlock()
}

// Run reads commands until quit, EOF or ctx is done.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	defer c.disconnect()
	// Unblock Readline on shutdown signals.
	stop := context.AfterFunc(ctx, func() { c.rl.Close() })
	defer stop()

	c.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}

		if quit := c.handle(ctx, line); quit {
			cancel()
			return
		}
	}
}

// handle executes one command line and reports whether to quit.
func (c *Console) handle(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return false
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		c.printHelp()
	case "discover", "d":
		c.cmdDiscover(ctx, args)
	case "connect", "c":
		c.cmdConnect(ctx, args)
	case "bind", "b":
		c.cmdBind(args)
	case "disconnect":
		c.disconnect()
		fmt.Fprintln(c.out, "Disconnected")
	case "status", "s":
		c.cmdStatus()
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Exiting...")
		return true
	default:
		fmt.Fprintf(c.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (c *Console) printHelp() {
	fmt.Fprintln(c.out, `
fhirsub Client Commands:
  discover [seconds]            - Find servers on the local network
  connect <url|#> [sub]         - Connect to a URL or discovered server
  bind <subscription>           - Bind the connection to a subscription
  disconnect                    - Close the connection
  status                        - Show connection status
  help                          - Show this help
  quit                          - Exit`)
}

func (c *Console) cmdDiscover(ctx context.Context, args []string) {
	if c.config.Browser == nil {
		fmt.Fprintln(c.out, "Discovery is not available")
		return
	}

	timeout := DefaultDiscoverTimeout
	if len(args) > 0 {
		secs, err := strconv.Atoi(args[0])
		if err != nil || secs <= 0 {
			fmt.Fprintf(c.out, "Invalid timeout: %s\n", args[0])
			return
		}
		timeout = time.Duration(secs) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	services, err := c.config.Browser.Browse(ctx)
	if err != nil {
		fmt.Fprintf(c.out, "Discovery failed: %v\n", err)
		return
	}

	var found []*discovery.Service
	for svc := range services {
		found = append(found, svc)
		fmt.Fprintf(c.out, "  [%d] %s  %s  (version %s)\n", len(found), svc.InstanceName, svc.URL(), svc.Version)
	}

	c.mu.Lock()
	c.discovered = found
	c.mu.Unlock()

	if len(found) == 0 {
		fmt.Fprintln(c.out, "No servers found")
	}
}

// resolveTarget turns a URL or a discover index into a URL.
func (c *Console) resolveTarget(target string) (string, error) {
	n, err := strconv.Atoi(target)
	if err != nil {
		return target, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n < 1 || n > len(c.discovered) {
		return "", fmt.Errorf("no discovered server #%d", n)
	}
	return c.discovered[n-1].URL(), nil
}

func (c *Console) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(c.out, "Usage: connect <url|#> [subscription]")
		return
	}
	url, err := c.resolveTarget(args[0])
	if err != nil {
		fmt.Fprintf(c.out, "Error: %v\n", err)
		return
	}
	var subscription string
	if len(args) > 1 {
		subscription = args[1]
	}

	c.disconnect()

	c.mu.Lock()
	logger := c.config.Logger
	c.mu.Unlock()

	cl := client.New(client.Config{
		URL:            url,
		Token:          c.config.Token,
		SubscriptionID: subscription,
		Logger:         logger,
	})
	go c.printNotifications(cl)

	if err := cl.Start(ctx); err != nil {
		cl.Close()
		fmt.Fprintf(c.out, "Connect failed: %v\n", err)
		return
	}

	c.mu.Lock()
	c.client = cl
	c.url = url
	c.mu.Unlock()
	fmt.Fprintf(c.out, "Connected to %s\n", url)
}

func (c *Console) cmdBind(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: bind <subscription>")
		return
	}
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()
	if cl == nil {
		fmt.Fprintln(c.out, "Not connected")
		return
	}
	if err := cl.Bind(args[0]); err != nil {
		fmt.Fprintf(c.out, "Bind failed: %v\n", err)
	}
}

func (c *Console) cmdStatus() {
	c.mu.Lock()
	cl, url, received := c.client, c.url, c.received
	c.mu.Unlock()

	if cl == nil {
		fmt.Fprintln(c.out, "Not connected")
		return
	}
	fmt.Fprintf(c.out, "Server:        %s\n", url)
	fmt.Fprintf(c.out, "State:         %s\n", cl.State())
	sub := cl.Subscription()
	if sub == "" {
		sub = "(none)"
	}
	fmt.Fprintf(c.out, "Subscription:  %s\n", sub)
	fmt.Fprintf(c.out, "Notifications: %d\n", received)
	if err := cl.Err(); err != nil {
		fmt.Fprintf(c.out, "Error:         %v\n", err)
	}
}

func (c *Console) printNotifications(cl *client.Client) {
	for n := range cl.Notifications() {
		switch n.Kind {
		case client.KindBound:
			fmt.Fprintf(c.out, "Bound to %s\n", n.SubscriptionID)
		case client.KindPing:
			fmt.Fprintf(c.out, "[%s] ping %s\n", n.Received.Format(time.TimeOnly), n.SubscriptionID)
		case client.KindPayload:
			c.mu.Lock()
			c.received++
			c.mu.Unlock()
			fmt.Fprintf(c.out, "[%s] %s: %s\n", n.Received.Format(time.TimeOnly), n.SubscriptionID, n.Body)
		}
	}
	if err := cl.Err(); err != nil {
		fmt.Fprintf(c.out, "Connection closed: %v\n", err)
	}
}

func (c *Console) disconnect() {
	c.mu.Lock()
	cl := c.client
	c.client = nil
	c.url = ""
	c.mu.Unlock()
	if cl != nil {
		cl.Close()
	}
}
