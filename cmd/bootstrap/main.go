package main

import (
	"context"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"legal-rag-api/internal/config"
	"legal-rag-api/internal/wire"
)

func main() {
	_ = godotenv.Load()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	// 2. 初始化数据层
	layer, cleanup, err := wire.InitializeBootstrap(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize data layer: %v", err)
	}
	defer cleanup()

	// 3. 建表与全文检索索引
	if err := layer.PgClient.Migrate(ctx); err != nil {
		log.Fatalf("failed to migrate postgres: %v", err)
	}
	fmt.Println("PostgreSQL schema is up to date.")

	// 4. 向量集合（Milvus 不可用时跳过，语义通道降级）
	if layer.VectorRepo == nil {
		fmt.Println("Milvus not available, skipping vector collection.")
	} else {
		if err := layer.VectorRepo.EnsureCollection(ctx); err != nil {
			log.Fatalf("failed to ensure vector collection: %v", err)
		}
		fmt.Println("Milvus collection is ready.")
	}

	fmt.Println("System bootstrap completed successfully.")
}
