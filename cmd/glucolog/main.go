package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/glucolog/glucolog/internal/app"
	"github.com/glucolog/glucolog/internal/cli"
	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/store"
	"go.uber.org/zap"
)

var (
	configPath = flag.String("config", "", "Path to config file")
	dataDir    = flag.String("data", "", "Path to data directory")
	version    = "dev"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "calc":
			cli.RunCalc(os.Args[2:])
			return
		case "init":
			runInit(os.Args[2:])
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "version", "--version", "-v":
			fmt.Printf("glucolog version %s\n", version)
			return
		}
	}

	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	logger.Info("Starting glucolog", zap.String("version", version))

	config.LoadEnvFiles()

	cfg, err := config.Load(*configPath, *dataDir)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	st, err := store.New(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize store", zap.Error(err))
	}

	application := app.New(cfg, st, logger, version)
	application.RunServer()
}

// newLogger picks the development logger on an interactive terminal and the
// production JSON logger otherwise.
func newLogger() *zap.Logger {
	var logger *zap.Logger
	var err error
	if term.IsTerminal(int(os.Stdout.Fd())) {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	return logger
}

func runInit(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("config", "glucolog.yaml", "Where to write the starter config")
	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	if err := config.WriteDefault(*path); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote starter config to %s\n", *path)
}

func printHelp() {
	fmt.Println("glucolog - self-hosted diabetes log and bolus calculator")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  glucolog                 Start the API server")
	fmt.Println("  glucolog calc [flags]    Compute a one-shot bolus suggestion")
	fmt.Println("  glucolog init [flags]    Write a starter config file")
	fmt.Println("  glucolog version         Print the version")
	fmt.Println()
	fmt.Println("Server flags:")
	flag.PrintDefaults()
}
