package main

import (
	"context"
	"log"
	"os"

	"github.com/andrejs2008/evomint/internal/buildinfo"
	"github.com/andrejs2008/evomint/internal/server"
	"github.com/andrejs2008/evomint/internal/server/config"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := server.NewApp(ctx, cfg)

	if err != nil {
		log.Printf("%v", err)
		return
	}

	app.Run(ctx)

}
