// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/starfield-tools/esm-translate/internal/cacheclient"
	"github.com/starfield-tools/esm-translate/internal/config"
	"github.com/starfield-tools/esm-translate/internal/httpapi"
	"github.com/starfield-tools/esm-translate/internal/llmdriver"
	"github.com/starfield-tools/esm-translate/internal/orchestrator"
	"github.com/starfield-tools/esm-translate/pkg/log"
)

func main() {
	var flagConfigFile string
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the global config options by those specified in `config.json`")
	flag.Parse()

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("loading configuration failed: %s", err.Error())
	}
	log.SetLogLevel(cfg.LogLevel)

	retryDelays := make([]time.Duration, len(cfg.RetryDelaysSeconds))
	for i, s := range cfg.RetryDelaysSeconds {
		retryDelays[i] = time.Duration(s * float64(time.Second))
	}

	cache := cacheclient.New(cfg.APIBaseURL)
	llm := llmdriver.NewOpenAICompatClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	orch := orchestrator.New(cache, llm, orchestrator.Settings{
		BatchSize:         cfg.BatchSize,
		MaxRetries:        cfg.MaxRetries,
		RetryDelays:       retryDelays,
		DefaultTargetLang: cfg.DefaultTargetLang,
		DefaultPrompt:     cfg.DefaultPrompt,
		Glossary:          cfg.Glossary,
	})

	router := mux.NewRouter()
	api := &httpapi.API{Orchestrator: orch}
	api.MountRoutes(router)

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"})))

	loggedRouter := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	addr := fmt.Sprintf(":%d", cfg.EnginePort)
	server := &http.Server{
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
		Handler:      loggedRouter,
		Addr:         addr,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("starting http listener failed: %v", err)
	}

	go func() {
		log.Infof("listening on %s", addr)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server failed: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("graceful shutdown failed: %v", err)
	}
}
