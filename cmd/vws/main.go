package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// errAborted: le run s'est arrêté sur un échec d'authentification (code de sortie 1).
var errAborted = errors.New("run aborted on authentication failure")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errAborted) {
			fmt.Fprintln(os.Stderr, "Erreur:", err)
		}
		os.Exit(1)
	}
}
