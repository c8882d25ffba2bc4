package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/spacetraveling"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "generate":
		if err := runGenerate(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "version":
		fmt.Printf("spacetraveling %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := spacetraveling.LoadConfig()
	if err != nil {
		return err
	}
	app := spacetraveling.New(cfg)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}

func runGenerate(args []string) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	concurrency := fs.Int("concurrency", 4, "posts generated at once")
	uid := fs.String("uid", "", "generate a single post instead of all of them")
	timeout := fs.Duration("timeout", 5*time.Minute, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := spacetraveling.LoadConfig()
	if err != nil {
		return err
	}
	app := spacetraveling.New(cfg)
	defer app.Close()
	if err := app.Open(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if *uid != "" {
		page, err := app.Pages.Generate(ctx, *uid)
		if err != nil {
			return err
		}
		if page.NotFound {
			fmt.Printf("%s: not found in the CMS\n", *uid)
			return nil
		}
		fmt.Printf("%s: generated\n", *uid)
		return nil
	}

	start := time.Now()
	n, err := app.Pages.GenerateAll(ctx, *concurrency)
	if err != nil {
		return err
	}
	fmt.Printf("Generated %d posts in %s\n", n, time.Since(start).Round(time.Millisecond))
	return nil
}

func printUsage() {
	fmt.Println(`spacetraveling - A blog that reads its posts from Prismic, built with Go, Echo, and templ

Usage:
  spacetraveling <command> [arguments]

Commands:
  serve         Start the web server
  generate      Pre-generate post pages into the page store
  version       Print the spacetraveling version
  help          Show this help message

Generate flags:
  -uid <uid>          Generate a single post
  -concurrency <n>    Posts generated at once (default 4)
  -timeout <d>        Give up after this long (default 5m)

Configuration is read from the environment and an optional .env file.
PRISMIC_ENDPOINT is required.`)
}
