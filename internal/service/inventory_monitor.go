package service

import (
	"context"
	"fmt"
	"time"

	"parts-shop/internal/domain"
	"parts-shop/internal/repository"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// InventoryMonitor periodically logs catalog lines that are running out
type InventoryMonitor struct {
	products  repository.ProductRepository
	threshold int
	schedule  string
	scheduler *cron.Cron
	logger    *zap.Logger
}

// NewInventoryMonitor creates a monitor. schedule is a cron expression with a
// leading seconds field.
func NewInventoryMonitor(products repository.ProductRepository, threshold int, schedule string, logger *zap.Logger) *InventoryMonitor {
	return &InventoryMonitor{
		products:  products,
		threshold: threshold,
		schedule:  schedule,
		scheduler: cron.New(cron.WithSeconds()),
		logger:    logger,
	}
}

// Start registers the scan job and starts the scheduler
func (m *InventoryMonitor) Start() error {
	_, err := m.scheduler.AddFunc(m.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := m.Scan(ctx); err != nil {
			m.logger.Error("Inventory scan failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid inventory monitor schedule %q: %w", m.schedule, err)
	}

	m.scheduler.Start()
	m.logger.Info("Inventory monitor started",
		zap.String("schedule", m.schedule),
		zap.Int("threshold", m.threshold),
	)
	return nil
}

// Stop halts the scheduler and waits for a running scan
func (m *InventoryMonitor) Stop() {
	<-m.scheduler.Stop().Done()
}

// Scan logs and returns every product at or below the threshold
func (m *InventoryMonitor) Scan(ctx context.Context) ([]*domain.Product, error) {
	products, err := m.products.LowStock(ctx, m.threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to load low stock products: %w", err)
	}

	for _, product := range products {
		m.logger.Warn("Low stock",
			zap.String("product_id", product.ID.String()),
			zap.String("category", string(product.Category)),
			zap.String("name", product.Name),
			zap.Int("quantity_available", product.QuantityAvailable),
		)
	}
	return products, nil
}
