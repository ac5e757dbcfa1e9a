package main

import (
	"fmt"
	"os"

	"github.com/platewise/platewise-backend/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}
	defer a.Log.Sync()

	a.Start()
	defer a.Stop()

	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr)
	if err := a.Router.Run(addr); err != nil {
		a.Log.Fatal("Server failed", "error", err)
	}
}
