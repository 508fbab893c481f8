// Command verifywatch submits a credential verification and follows it until
// a decision arrives, the way the mobile client does.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-verify-nosql/internal/client/apiclient"
	"github.com/go-verify-nosql/internal/client/poller"
	"github.com/go-verify-nosql/internal/config"
	"github.com/go-verify-nosql/internal/domain"
)

var osExit = os.Exit

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Print(err)
		osExit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("command required")
	}
	switch args[0] {
	case "submit":
		return submit(ctx, args[1:], out)
	case "watch":
		return watchCmd(ctx, args[1:], out)
	default:
		usage(out)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "verifywatch commands:")
	fmt.Fprintln(out, "  submit --email me@hospital.org [--website hospital.org] [--doc ref ...] [--no-watch]")
	fmt.Fprintln(out, "  watch --id <verification id>")
	fmt.Fprintln(out, "environment: API_BASE_URL, API_TOKEN, VERIFY_COUNTDOWN, VERIFY_POLL_INTERVAL")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func newClient(baseURL, token string) (*apiclient.Client, error) {
	if baseURL == "" {
		return nil, errors.New("API base URL required (--api or API_BASE_URL)")
	}
	return apiclient.New(baseURL, token), nil
}

func submit(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("submit")
	api := fs.String("api", os.Getenv("API_BASE_URL"), "API base URL")
	token := fs.String("token", os.Getenv("API_TOKEN"), "bearer token")
	email := fs.String("email", "", "professional email address")
	website := fs.String("website", "", "professional website")
	noWatch := fs.Bool("no-watch", false, "return after submitting")
	var docs stringList
	fs.Var(&docs, "doc", "evidence document ref (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("email required")
	}
	c, err := newClient(*api, *token)
	if err != nil {
		return err
	}

	rec, err := c.Submit(ctx, domain.SubmitVerificationRequest{
		Email:        *email,
		Website:      *website,
		DocumentRefs: docs,
	}, false)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Fprintf(out, "submitted %s (%s)\n", rec.VerificationID, rec.Status)
	if *noWatch {
		return nil
	}
	return watch(ctx, c, rec.VerificationID, poller.ConfigFrom(config.LoadVerification()), out)
}

func watchCmd(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlagSet("watch")
	api := fs.String("api", os.Getenv("API_BASE_URL"), "API base URL")
	token := fs.String("token", os.Getenv("API_TOKEN"), "bearer token")
	id := fs.String("id", "", "verification id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("id required")
	}
	c, err := newClient(*api, *token)
	if err != nil {
		return err
	}
	return watch(ctx, c, *id, poller.ConfigFrom(config.LoadVerification()), out)
}

// notificationClient is the part of the API client used once verified.
type notificationClient interface {
	poller.StatusReader
	MarkAllRead(ctx context.Context) (int, error)
}

func watch(ctx context.Context, c notificationClient, id string, cfg poller.Config, out io.Writer) error {
	printer := &progressPrinter{out: out, every: cfg.PollInterval}
	p := poller.New(c, id, cfg,
		poller.WithOnChange(printer.print),
		poller.WithOnVerified(func() {
			n, err := c.MarkAllRead(ctx)
			if err != nil {
				fmt.Fprintf(out, "could not clear notifications: %v\n", err)
				return
			}
			if n > 0 {
				fmt.Fprintf(out, "cleared %d notification(s)\n", n)
			}
		}),
	)
	p.Start(ctx)
	defer p.Stop()

	select {
	case <-p.Done():
	case <-ctx.Done():
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch s := p.Snapshot(); s.Status {
	case domain.VerificationVerified:
		fmt.Fprintln(out, "verified")
		return nil
	case domain.VerificationRejected:
		fmt.Fprintln(out, "rejected")
		return errors.New("verification rejected")
	default:
		return fmt.Errorf("polling ended with status %s", s.Status)
	}
}

// progressPrinter writes a line whenever the status or degraded flag changes
// and otherwise once per poll interval of countdown.
type progressPrinter struct {
	out   io.Writer
	every time.Duration
	last  poller.Snapshot
	seen  bool
}

func (pp *progressPrinter) print(s poller.Snapshot) {
	changed := !pp.seen || s.Status != pp.last.Status || s.Degraded != pp.last.Degraded
	periodic := pp.every > 0 && s.Remaining > 0 && s.Remaining%pp.every == 0 && s.Remaining != pp.last.Remaining
	pp.last, pp.seen = s, true
	if !changed && !periodic {
		return
	}
	line := fmt.Sprintf("status=%s remaining=%s", s.Status, s.Remaining)
	switch s.Degraded {
	case poller.DegradedNetwork:
		line += " (offline, retrying)"
	case poller.DegradedGeneric:
		line += " (status currently unknown, retrying)"
	}
	fmt.Fprintln(pp.out, line)
}
