package towns

import (
	"context"

	logx "dchbot/pkg/logx"
)

// PriceSource is the part of the client the price fetcher needs.
type PriceSource interface {
	GetPrices(ctx context.Context, townID string) ([]Record, error)
}

// TownSource is the part of the client the town fetcher needs.
type TownSource interface {
	GetTownData(ctx context.Context, townID string) (Record, error)
}

// PriceFetcher is the payload of price jobs.
type PriceFetcher struct {
	Client PriceSource
	TownID string
	Log    logx.Logger
}

func (f *PriceFetcher) Fetch(ctx context.Context) ([]Record, error) {
	prices, err := f.Client.GetPrices(ctx, f.TownID)
	if err != nil {
		return nil, err
	}
	f.Log.Info("fetched prices", logx.Int("records", len(prices)), logx.String("town_id", f.TownID))
	return prices, nil
}

// TownFetcher is the payload of town data jobs.
type TownFetcher struct {
	Client TownSource
	TownID string
	Log    logx.Logger
}

func (f *TownFetcher) Fetch(ctx context.Context) (Record, error) {
	rec, err := f.Client.GetTownData(ctx, f.TownID)
	if err != nil {
		return nil, err
	}
	f.Log.Info("fetched town data", logx.String("town_id", f.TownID), logx.Int("fields", len(rec)))
	return rec, nil
}
