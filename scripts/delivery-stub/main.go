// Command delivery-stub serves the in-memory delivery API so courier can be
// pointed at something local:
//
//	go run ./scripts/delivery-stub -addr :8080
//	courier run --host http://localhost:8080 -u 20 -r 5 -t 1m
package main

import (
	"flag"
	"net/http"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/courier/internal/load/delivery/deliverytest"
	"github.com/wesleyorama2/courier/internal/logging"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	prefix := flag.String("prefix", "/api", "API path prefix")
	flag.Parse()

	logger, err := logging.New(false)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	server := &http.Server{
		Addr:              *addr,
		Handler:           deliverytest.NewAPI(*prefix),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ReadHeaderTimeout: 2 * time.Second,
	}

	logger.Info("starting delivery stub",
		zap.String("addr", *addr),
		zap.String("prefix", *prefix),
		zap.Int("cpus", runtime.NumCPU()),
	)

	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
