package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/talkincode/waconsole/config"
	"github.com/talkincode/waconsole/internal/adminapi"
	"github.com/talkincode/waconsole/internal/app"
	"github.com/talkincode/waconsole/internal/driver"
	"github.com/talkincode/waconsole/internal/orchestrator"
	"github.com/talkincode/waconsole/internal/realtime"
	"github.com/talkincode/waconsole/internal/webserver"
)

var (
	h        bool
	initdb   bool
	conffile string
)

func init() {
	flag.BoolVar(&h, "h", false, "help usage")
	flag.BoolVar(&initdb, "initdb", false, "drop and recreate all tables")
	flag.StringVar(&conffile, "c", "", "config file path")
}

func printHelp() {
	if h {
		fmt.Fprintf(os.Stderr, "waconsole usage:\n")
		flag.PrintDefaults()
		os.Exit(0)
	}
}

func main() {
	flag.Parse()
	printHelp()

	appConfig := config.LoadConfig(conffile)
	application := app.NewApplication(appConfig)
	application.Init(appConfig)
	defer application.Release()

	if initdb {
		application.InitDb()
		zap.L().Info("database initialized")
		return
	}

	factory := driver.NewMeowFactory(&appConfig.Session)
	hub := realtime.NewHub()
	orc, err := orchestrator.New(application.DB(), factory, hub, application.OrchestratorOptions())
	if err != nil {
		zap.S().Fatalf("orchestrator init failed: %v", err)
	}
	orc.Start()
	defer orc.Stop()

	application.InitJob(orc)

	server := webserver.Init(application, orc)
	adminapi.RegisterRoutes()

	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		return server.Start()
	})

	g.Go(func() error {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigs:
			zap.L().Info("shutdown signal received", zap.String("signal", sig.String()))
			server.Shutdown()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	if err := g.Wait(); err != nil {
		zap.S().Errorf("waconsole stopped: %v", err)
	}
}
