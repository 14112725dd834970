package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/asaidimu/go-kikapu/core/client"
	"github.com/asaidimu/go-kikapu/core/query"
	"go.uber.org/zap"
)

// Reads KIKAPU_BASE_URL, KIKAPU_API_KEY and friends (or kikapu.yaml / .env)
// and lists the most recent paid orders.
func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	c, err := client.NewFromEnv(nil, client.WithLogger(logger))
	if err != nil {
		logger.Fatal("Failed to create client", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	orders := c.Table("orders").
		Select("id", "status", "total", "created_at").
		Where("status", "paid").
		Where("total", query.OpGte, 100).
		OrderByDesc("created_at").
		Limit(10)
	logger.Debug("Running query", zap.Stringer("query", orders))

	result, err := orders.Execute(ctx)
	if err != nil {
		logger.Fatal("Query failed", zap.Error(err))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		logger.Fatal("Failed to encode result", zap.Error(err))
	}
	fmt.Fprintln(os.Stdout, string(out))
}
