package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/pchat/internal/app"
	"github.com/matheus3301/pchat/internal/session"
	"github.com/matheus3301/pchat/internal/tui"
	"go.uber.org/fx"
)

const lifecycleTimeout = 15 * time.Second

func main() {
	sessionFlag := flag.String("session", "", "session name (overrides config default)")
	socketFlag := flag.String("socket", "", "control socket path (defaults to the session socket)")
	debugFlag := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	sessionName, err := session.Resolve(*sessionFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var rt *app.Runtime
	fxApp := fx.New(
		app.Module(app.Params{
			SessionName: sessionName,
			SocketPath:  *socketFlag,
			Debug:       *debugFlag,
		}),
		fx.Populate(&rt),
		fx.NopLogger,
	)
	if err := fxApp.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	startCtx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "start session %q: %v\n", sessionName, err)
		os.Exit(1)
	}

	ui, err := tui.NewApp(rt)
	if err == nil {
		err = ui.Run()
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), lifecycleTimeout)
	defer stopCancel()
	if stopErr := fxApp.Stop(stopCtx); stopErr != nil {
		fmt.Fprintf(os.Stderr, "stop: %v\n", stopErr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
