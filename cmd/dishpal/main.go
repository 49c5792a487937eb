package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	c := NewConfig()

	if err := c.LoadDotEnv(os.Getwd); err != nil {
		fmt.Fprintln(os.Stderr, "can't read .env file:", err)
		os.Exit(1)
	}
	c.LoadEnv(os.Getenv)

	args, err := c.ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	app, err := NewApp(c, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "can't initialize app, sorry:", err)
		os.Exit(1)
	}

	// Cancel in-flight calls on SIGTERM/interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
