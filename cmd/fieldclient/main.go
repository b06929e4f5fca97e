// fieldclient is a small operator-side tool for the photo registration API:
// it logs in, uploads geotagged photos, streams position samples and
// manages the local session cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fotoreg/api/pkg/client"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	baseURL := envOr("FOTOREG_URL", "http://localhost:3000")
	secret := envOr("FOTOREG_CACHE_SECRET", "")

	c, err := client.New(client.Options{
		BaseURL:     baseURL,
		CacheSecret: secret,
	})
	if err != nil {
		fatal(err)
	}
	defer c.Close()

	ctx := context.Background()

	switch os.Args[1] {
	case "login":
		runLogin(ctx, c, os.Args[2:])
	case "logout":
		if err := c.Logout(ctx); err != nil {
			fatal(err)
		}
		fmt.Println("logged out")
	case "whoami":
		session, err := c.Whoami(ctx)
		if err != nil {
			fatal(err)
		}
		fmt.Printf("%s (%s)\n", session.Username, session.Role)
	case "upload":
		runUpload(ctx, c, os.Args[2:])
	case "track":
		runTrack(ctx, c, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func runLogin(ctx context.Context, c *client.Client, args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	username := fs.String("user", "", "username")
	password := fs.String("pass", "", "password")
	fs.Parse(args)

	if *username == "" || *password == "" {
		fatal(fmt.Errorf("both -user and -pass are required"))
	}

	session, err := c.Login(ctx, *username, *password)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("logged in as %s, session valid until %s\n", session.Username, session.ExpiresAt.Format(time.RFC3339))
}

func runUpload(ctx context.Context, c *client.Client, args []string) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	path := fs.String("file", "", "photo file")
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	fs.Parse(args)

	if *path == "" {
		fatal(fmt.Errorf("-file is required"))
	}

	result, err := c.UploadPhoto(ctx, client.PhotoUpload{
		Path:       *path,
		Latitude:   *lat,
		Longitude:  *lon,
		CapturedAt: time.Now(),
	})
	if err != nil {
		fatal(err)
	}
	fmt.Printf("registered: %s\n", result)
}

func runTrack(ctx context.Context, c *client.Client, args []string) {
	fs := flag.NewFlagSet("track", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	interval := fs.Duration("interval", 30*time.Second, "reporting interval")
	fs.Parse(args)

	stream, err := c.Connect(ctx)
	if err != nil {
		fatal(err)
	}
	defer stream.Close()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Println("streaming position, ctrl-c to stop")
	for {
		if err := stream.SendLocation(client.LocationSample{Latitude: *lat, Longitude: *lon}); err != nil {
			fatal(err)
		}
		select {
		case <-sigCtx.Done():
			return
		case <-ticker.C:
		}
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fieldclient <login|logout|whoami|upload|track> [flags]")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
