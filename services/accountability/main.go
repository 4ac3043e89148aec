// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/AleutianHabit/pkg/logging"
	"github.com/AleutianAI/AleutianHabit/services/accountability/channel"
	"github.com/AleutianAI/AleutianHabit/services/accountability/checkin"
	"github.com/AleutianAI/AleutianHabit/services/accountability/datatypes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/intervention"
	"github.com/AleutianAI/AleutianHabit/services/accountability/middleware"
	"github.com/AleutianAI/AleutianHabit/services/accountability/observability"
	"github.com/AleutianAI/AleutianHabit/services/accountability/patterns"
	"github.com/AleutianAI/AleutianHabit/services/accountability/ratelimit"
	"github.com/AleutianAI/AleutianHabit/services/accountability/routes"
	"github.com/AleutianAI/AleutianHabit/services/accountability/storage"
	"github.com/AleutianAI/AleutianHabit/services/accountability/sweep"
	"github.com/AleutianAI/AleutianHabit/services/llm"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// Tracing is optional for a single-host deployment.
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("habit-accountability")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

func loadManifest() *datatypes.Manifest {
	path := os.Getenv("HABIT_MANIFEST_PATH")
	if path == "" {
		slog.Info("HABIT_MANIFEST_PATH not set, using the built-in standard manifest")
		return datatypes.DefaultManifest()
	}
	manifest, err := datatypes.LoadManifest(path)
	if err != nil {
		log.Fatalf("Failed to load habit manifest: %v", err)
	}
	slog.Info("Loaded habit manifest", "path", path, "mode", manifest.Mode,
		"habits", len(manifest.Habits))
	return manifest
}

func buildGenerator() llm.TextGenerator {
	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "openai":
		client, err := llm.NewOpenAIClient()
		if err != nil {
			slog.Warn("OpenAI backend unavailable, falling back to templates", "error", err)
			return llm.Unavailable{}
		}
		slog.Info("Using OpenAI text generation backend")
		return client
	case "", "none":
		slog.Info("LLM_BACKEND_TYPE not set, message generation uses templates only")
		return llm.Unavailable{}
	default:
		slog.Warn("Unknown LLM_BACKEND_TYPE, message generation uses templates only",
			"value", os.Getenv("LLM_BACKEND_TYPE"))
		return llm.Unavailable{}
	}
}

func buildAuthProvider() middleware.AuthProvider {
	token := os.Getenv("HABIT_AUTH_TOKEN")
	if token == "" {
		slog.Info("HABIT_AUTH_TOKEN not set, all requests run as local-user with admin rights")
		return middleware.NopAuthProvider{}
	}
	userID := os.Getenv("HABIT_USER_ID")
	if userID == "" {
		userID = "local-user"
	}
	return middleware.StaticTokenProvider{Token: token, UserID: userID}
}

func main() {
	port := os.Getenv("HABIT_PORT")
	if port == "" {
		port = "12300"
	}

	_, closeLogs, err := logging.Setup(logging.FromEnv("accountability"))
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closeLogs()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	dbPath := os.Getenv("HABIT_DB_PATH")
	if dbPath == "" {
		dbPath = "data/habit-db"
	}
	store, err := storage.Open(storage.DefaultConfig(dbPath))
	if err != nil {
		log.Fatalf("Failed to open the habit store at %s: %v", dbPath, err)
	}
	defer store.Close()

	manifest := loadManifest()
	generator := buildGenerator()
	messages := channel.LogChannel{}

	manager := checkin.NewManager(store, manifest, generator, messages, checkin.DefaultConfig())
	dispatcher := intervention.NewDispatcher(store, generator, messages, intervention.DefaultConfig())
	detector := patterns.NewDetector(store, dispatcher, patterns.Registry(manifest), patterns.DefaultConfig())

	scheduler := sweep.NewScheduler(manager, detector, sweep.DefaultConfig())
	if err := scheduler.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start the background scheduler: %v", err)
	}
	defer func() { _ = scheduler.Stop() }()

	limiter, err := ratelimit.NewLimiter(ratelimit.Config{})
	if err != nil {
		log.Fatalf("Failed to build the rate limiter: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("habit-accountability"))
	routes.SetupRoutes(router, manager, store, limiter, scheduler, buildAuthProvider())

	slog.Info("Starting the accountability server", "port", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
