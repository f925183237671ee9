// Package lifecycle keeps the shared chat context open after a run until
// an operator asks for shutdown.
package lifecycle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
)

// DefaultKeyword is the operator command that ends the hold
const DefaultKeyword = "exit"

// DefaultBanner opens the operator prompt
const DefaultBanner = "All conversations finished. The chat sessions stay open for inspection."

// Reason tells why the hold ended
type Reason string

const (
	ReasonKeyword Reason = "keyword"
	ReasonSignal  Reason = "signal"
	ReasonContext Reason = "context"
)

// Controller blocks until shutdown is requested, then releases the shared
// context exactly once
type Controller struct {
	input   io.Reader
	prompt  io.Writer
	banner  string
	keyword string
	release func() error
	logger  *slog.Logger

	// signals overrides OS signal delivery (tests)
	signals <-chan os.Signal

	once       sync.Once
	releaseErr error
}

// Option configures a Controller
type Option func(*Controller)

// WithInput sets the operator command stream (default os.Stdin)
func WithInput(r io.Reader) Option {
	return func(c *Controller) { c.input = r }
}

// WithPrompt sets where the operator prompt is printed (default os.Stdout)
func WithPrompt(w io.Writer) Option {
	return func(c *Controller) { c.prompt = w }
}

// WithBanner replaces the first line of the prompt
func WithBanner(banner string) Option {
	return func(c *Controller) { c.banner = banner }
}

// WithKeyword changes the stop command
func WithKeyword(keyword string) Option {
	return func(c *Controller) { c.keyword = keyword }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithSignals replaces OS signal delivery with ch
func WithSignals(ch <-chan os.Signal) Option {
	return func(c *Controller) { c.signals = ch }
}

// NewController creates a controller that calls release on shutdown
func NewController(release func() error, opts ...Option) *Controller {
	c := &Controller{
		input:   os.Stdin,
		prompt:  os.Stdout,
		banner:  DefaultBanner,
		keyword: DefaultKeyword,
		release: release,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Release frees the shared context. Only the first call has an effect.
func (c *Controller) Release() error {
	c.once.Do(func() {
		if c.release != nil {
			c.releaseErr = c.release()
		}
		if c.releaseErr != nil {
			c.logger.Error("failed to release shared context", "error", c.releaseErr)
		} else {
			c.logger.Info("shared context released")
		}
	})
	return c.releaseErr
}

// AwaitShutdown blocks until the stop keyword is read, an interrupt or
// termination signal arrives, or ctx ends. End of input does not stop the
// hold; only a signal can end it then. The shared context is released
// before returning.
func (c *Controller) AwaitShutdown(ctx context.Context) (Reason, error) {
	signals := c.signals
	if signals == nil {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	fmt.Fprintf(c.prompt, "%s\nType '%s' and press Enter (or Ctrl+C) to stop.\n", c.banner, c.keyword)

	stop := make(chan struct{}, 1)
	go c.readCommands(stop)

	var reason Reason
	select {
	case <-stop:
		reason = ReasonKeyword
		c.logger.Info("stop command received")
	case sig := <-signals:
		reason = ReasonSignal
		c.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		reason = ReasonContext
		c.logger.Info("context ended, shutting down", "error", ctx.Err())
	}

	return reason, c.Release()
}

// readCommands scans operator input for the keyword. The goroutine may
// outlive AwaitShutdown while blocked on a read.
func (c *Controller) readCommands(stop chan<- struct{}) {
	scanner := bufio.NewScanner(c.input)
	for scanner.Scan() {
		if strings.EqualFold(strings.TrimSpace(scanner.Text()), c.keyword) {
			select {
			case stop <- struct{}{}:
			default:
			}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		c.logger.Warn("operator input failed, waiting for a signal", "error", err)
		return
	}
	c.logger.Debug("operator input closed, waiting for a signal")
}
