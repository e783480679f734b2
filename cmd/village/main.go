package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	village "github.com/villagehq/village"
	"github.com/villagehq/village/builder"
	"github.com/villagehq/village/executor"
	"github.com/villagehq/village/keys"
	"github.com/villagehq/village/runner"
	"github.com/villagehq/village/scheduler"
	"github.com/villagehq/village/secrets"
	"github.com/villagehq/village/server"
	"github.com/villagehq/village/store"

	"github.com/infisical/go-sdk/packages/models"
)

func main() {
	log.Println("Starting Village")

	ctx := context.Background()

	cfg, err := village.Load()
	if err != nil {
		panic(err)
	}

	var loaded []models.Secret
	if cfg.UseInfisical {
		loaded, err = keys.LoadSecrets(ctx)
		if err != nil {
			log.Printf("Error loading infisical secrets: %v", err)
			os.Exit(1)
		}
	}
	runSecrets := secrets.Filter(loaded, cfg.SecretNames)

	st, err := store.OpenStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	backend, err := builder.NewDockerBackend()
	if err != nil {
		panic(err)
	}
	b := builder.New(st, backend, cfg.BuildTimeout)

	// Choose runner
	ex := &executor.Executor{Store: st}
	switch cfg.RunnerProvider {
	case "fargate":
		fr, err := runner.NewFargateRunner(ctx, runner.FargateConfig{
			Region:           cfg.AWSRegion,
			Cluster:          cfg.ECSCluster,
			TaskFamily:       cfg.ECSTaskFamily,
			ContainerName:    cfg.ECSContainerName,
			LogGroup:         cfg.ECSLogGroup,
			ExecutionRoleArn: cfg.ECSExecutionRoleArn,
			Subnets:          cfg.ECSSubnets,
			SecurityGroups:   cfg.ECSSecurityGroups,
		}, runSecrets)
		if err != nil {
			panic(err)
		}
		ex.Launcher = fr
		ex.Logs = fr
	case "cloudrun":
		cr := runner.NewCloudRunRunner(cfg.GCPProjectID, cfg.GCPRegion, runSecrets)
		ex.Launcher = cr
		ex.Logs = cr
	default:
		ex.Runner = runner.NewLocalRunner(runSecrets)
	}

	// Choose durable scheduler
	var reg scheduler.Registrar
	switch cfg.SchedulerProvider {
	case "cloudscheduler":
		reg = scheduler.NewCloudScheduler(cfg.GCPProjectID, cfg.GCPRegion, cfg.TriggerURL, cfg.GCPServiceAccount)
	default:
		local := scheduler.NewCronScheduler(st, cfg.TriggerURL)
		local.Reload(ctx)
		defer local.Stop()
		reg = local
	}

	srv := server.New(st, b, ex, reg)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
