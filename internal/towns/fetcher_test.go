package towns

import (
	"context"
	"errors"
	"testing"

	logx "dchbot/pkg/logx"
)

type stubSource struct {
	prices []Record
	town   Record
	err    error
	gotID  string
}

func (s *stubSource) GetPrices(_ context.Context, townID string) ([]Record, error) {
	s.gotID = townID
	return s.prices, s.err
}

func (s *stubSource) GetTownData(_ context.Context, townID string) (Record, error) {
	s.gotID = townID
	return s.town, s.err
}

func TestPriceFetcher(t *testing.T) {
	t.Parallel()
	src := &stubSource{prices: []Record{{"item": "wood"}}}
	f := &PriceFetcher{Client: src, TownID: "7", Log: logx.Nop()}

	got, err := f.Fetch(context.Background())
	if err != nil || len(got) != 1 || src.gotID != "7" {
		t.Fatalf("got=%v err=%v id=%q", got, err, src.gotID)
	}

	src.err = &FetchError{Op: "get_prices", StatusCode: 500, Err: errors.New("boom")}
	if _, err := f.Fetch(context.Background()); !IsFetchError(err) {
		t.Fatalf("err = %v", err)
	}
}

func TestTownFetcher(t *testing.T) {
	t.Parallel()
	src := &stubSource{town: Record{"id": "x"}}
	f := &TownFetcher{Client: src, TownID: "x"}

	got, err := f.Fetch(context.Background())
	if err != nil || got["id"] != "x" {
		t.Fatalf("got=%v err=%v", got, err)
	}
}
