// tracklogctl is the host-side tool: it downloads the retrieval window
// from a device, archives and publishes completed sessions, and offers a
// raw command passthrough for the rest of the control protocol.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"tracklog/internal/archive"
	"tracklog/internal/config"
	"tracklog/internal/feed"
	"tracklog/internal/host"
	"tracklog/internal/port"
	"tracklog/internal/publish"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: tracklogctl [-config path] <command>

Commands:
  download          fetch the retrieval window from the device
  sessions          list archived download sessions
  send <line>       send one raw command line and print the responses
`)
	os.Exit(2)
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./tracklog.yaml", "Path to YAML config")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch flag.Arg(0) {
	case "download":
		if err := runDownload(ctx, cfg); err != nil {
			log.Fatalf("download failed: %v", err)
		}
	case "sessions":
		if err := runSessions(ctx, cfg); err != nil {
			log.Fatalf("sessions failed: %v", err)
		}
	case "send":
		if flag.NArg() < 2 {
			usage()
		}
		if err := runSend(cfg, commandLine(flag.Args()[1:])); err != nil {
			log.Fatalf("send failed: %v", err)
		}
	default:
		usage()
	}
}

// commandLine joins the remaining args back into one protocol line, so
// `tracklogctl send set-time="2024-03-15 10:45:05"` survives shell
// word-splitting.
func commandLine(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// conn adapts port.Port to the downloader contract: a timed-out read is
// an empty read, not an error.
type conn struct{ p *port.Port }

func (c conn) ReadLine() (string, error) {
	line, err := c.p.ReadLine()
	if errors.Is(err, port.ErrTimeout) {
		return "", nil
	}
	return line, err
}

func (c conn) WriteLine(line string) error { return c.p.WriteLine(line) }

func openPort(cfg config.Config) (*port.Port, error) {
	if cfg.Host.Port.Device == "" {
		return nil, errors.New("host.port.device is required")
	}
	return port.Open(port.Config{
		Device:      cfg.Host.Port.Device,
		Baud:        cfg.Host.Port.Baud,
		ReadTimeout: cfg.Host.Download.ReadTimeout,
	})
}

func runDownload(ctx context.Context, cfg config.Config) error {
	p, err := openPort(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	dl := host.New(host.Config{
		IdleLimit: cfg.Host.Download.IdleLimit,
		Ceiling:   cfg.Host.Download.Ceiling,
	})

	var collabs []host.Collaborator

	if cfg.Host.Archive.Path != "" {
		ar, err := archive.Open(cfg.Host.Archive.Path)
		if err != nil {
			return fmt.Errorf("archive open: %w", err)
		}
		defer ar.Close()
		collabs = append(collabs, ar)
	}

	if cfg.Host.Publish.Broker != "" {
		pub, err := publish.Connect(publish.Config{
			Broker:   cfg.Host.Publish.Broker,
			Topic:    cfg.Host.Publish.Topic,
			ClientID: cfg.Host.Publish.ClientID,
		})
		if err != nil {
			// Broker outages should not block getting the data off the
			// device; the archive still has it.
			log.Printf("publish disabled: %v", err)
		} else {
			defer pub.Close()
			collabs = append(collabs, pub)
		}
	}

	if cfg.Host.Feed.Listen != "" {
		bc := host.NewProgressBroadcaster()
		dl.SetBroadcaster(bc)
		fs := feed.New(feed.Config{Addr: cfg.Host.Feed.Listen}, dl, bc, nil)
		if err := fs.Listen(); err != nil {
			log.Printf("feed disabled: %v", err)
		} else {
			defer fs.Close()
		}
	}

	res, err := dl.Download(ctx, conn{p})
	if err != nil {
		if res != nil && len(res.Records) > 0 {
			log.Printf("transfer failed after %d records: %v", len(res.Records), err)
		}
		return err
	}

	for _, line := range res.Info {
		fmt.Println(line)
	}
	for _, rec := range res.Records {
		fmt.Println(rec.Line())
	}
	if res.StatusLine != "" {
		fmt.Println(res.StatusLine)
	}

	completion := "heuristic"
	if res.Explicit {
		completion = "explicit"
	}
	log.Printf("download %s state=%s records=%d completion=%s elapsed=%s",
		res.SessionID, res.State, len(res.Records), completion, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))

	return host.Deliver(ctx, res, collabs...)
}

func runSessions(ctx context.Context, cfg config.Config) error {
	if cfg.Host.Archive.Path == "" {
		return errors.New("host.archive.path is not configured")
	}
	ar, err := archive.Open(cfg.Host.Archive.Path)
	if err != nil {
		return err
	}
	defer ar.Close()

	sessions, err := ar.Sessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("no archived sessions")
		return nil
	}
	for _, s := range sessions {
		end := "heuristic"
		if s.ExplicitEnd {
			end = "explicit"
		}
		fmt.Printf("%s  %s  records=%d  end=%s\n", s.ID, s.StartedAt.Format("2006-01-02 15:04:05"), s.RecordCount, end)
	}
	return nil
}

// runSend writes one raw line and prints everything the device says until
// the link goes quiet.
func runSend(cfg config.Config, line string) error {
	p, err := openPort(cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	if err := p.WriteLine(line); err != nil {
		return err
	}
	for {
		resp, err := p.ReadLine()
		if errors.Is(err, port.ErrTimeout) {
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println(resp)
	}
}
