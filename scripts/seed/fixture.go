package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/stockledger/internal/inventory"
	"github.com/odyssey-erp/stockledger/internal/orders"
	"github.com/odyssey-erp/stockledger/internal/shared"
)

//go:embed demo.yaml
var demoFixture []byte

type fixture struct {
	Products []productFixture `yaml:"products"`
	Orders   []orderFixture   `yaml:"orders"`
}

type productFixture struct {
	Code           string          `yaml:"code"`
	Name           string          `yaml:"name"`
	Unit           string          `yaml:"unit"`
	UnitPrice      decimal.Decimal `yaml:"unit_price"`
	OpeningStock   int64           `yaml:"opening_stock"`
	AlertThreshold int64           `yaml:"alert_threshold"`
}

type orderFixture struct {
	Key          string           `yaml:"key"`
	Direction    orders.Direction `yaml:"direction"`
	Product      string           `yaml:"product"`
	Quantity     int64            `yaml:"quantity"`
	UnitPrice    decimal.Decimal  `yaml:"unit_price"`
	Discount     decimal.Decimal  `yaml:"discount"`
	Counterparty string           `yaml:"counterparty"`
	Actions      []orders.Action  `yaml:"actions"`
}

func loadFixture(raw []byte) (fixture, error) {
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	codes := make(map[string]struct{}, len(f.Products))
	for _, p := range f.Products {
		codes[p.Code] = struct{}{}
	}
	for _, o := range f.Orders {
		if o.Key == "" {
			return fixture{}, errors.New("order fixture without key")
		}
		if _, ok := codes[o.Product]; !ok {
			return fixture{}, fmt.Errorf("order %s references unknown product %s", o.Key, o.Product)
		}
		for _, a := range o.Actions {
			if a.Target() == "" {
				return fixture{}, fmt.Errorf("order %s: unknown action %q", o.Key, a)
			}
		}
	}
	return f, nil
}

type productSeeder interface {
	RegisterProduct(ctx context.Context, input inventory.RegisterProductInput) (inventory.Product, error)
	ProductIDs(ctx context.Context) ([]int64, error)
	GetProduct(ctx context.Context, id int64) (inventory.Product, error)
}

type orderSeeder interface {
	CreateOrder(ctx context.Context, input orders.CreateInput) (orders.Order, error)
	ApplyTransition(ctx context.Context, orderID int64, action orders.Action, actor, reason string) (orders.Result, error)
}

type seedReport struct {
	ProductsCreated int
	ProductsExisted int
	OrdersCreated   int
	OrdersExisted   int
	Transitions     int
}

// apply is safe to rerun: existing product codes and order keys are skipped.
func apply(ctx context.Context, f fixture, products productSeeder, ords orderSeeder, actor string) (seedReport, error) {
	var report seedReport
	ids := make(map[string]int64, len(f.Products))
	for _, p := range f.Products {
		created, err := products.RegisterProduct(ctx, inventory.RegisterProductInput{
			Code:           p.Code,
			Name:           p.Name,
			Unit:           p.Unit,
			UnitPrice:      p.UnitPrice,
			OpeningStock:   p.OpeningStock,
			AlertThreshold: p.AlertThreshold,
			Actor:          actor,
		})
		switch {
		case err == nil:
			report.ProductsCreated++
			ids[p.Code] = created.ID
		case errors.Is(err, shared.ErrConflict):
			report.ProductsExisted++
		default:
			return report, fmt.Errorf("register %s: %w", p.Code, err)
		}
	}
	if report.ProductsExisted > 0 {
		if err := resolveExisting(ctx, products, ids); err != nil {
			return report, err
		}
	}

	for _, o := range f.Orders {
		order, err := ords.CreateOrder(ctx, orders.CreateInput{
			Direction:      o.Direction,
			ProductID:      ids[o.Product],
			Quantity:       o.Quantity,
			UnitPrice:      o.UnitPrice,
			Discount:       o.Discount,
			Counterparty:   o.Counterparty,
			Operator:       actor,
			IdempotencyKey: "seed:" + o.Key,
		})
		if errors.Is(err, shared.ErrConflict) {
			report.OrdersExisted++
			continue
		}
		if err != nil {
			return report, fmt.Errorf("create order %s: %w", o.Key, err)
		}
		report.OrdersCreated++
		for _, action := range o.Actions {
			if _, err := ords.ApplyTransition(ctx, order.ID, action, actor, "seeded"); err != nil {
				return report, fmt.Errorf("%s order %s: %w", action, o.Key, err)
			}
			report.Transitions++
		}
	}
	return report, nil
}

func resolveExisting(ctx context.Context, products productSeeder, ids map[string]int64) error {
	all, err := products.ProductIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range all {
		p, err := products.GetProduct(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := ids[p.Code]; !ok {
			ids[p.Code] = p.ID
		}
	}
	return nil
}
