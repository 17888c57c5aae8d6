package chinamoney

import (
	"context"
	"fmt"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"
	"MacroPull/pkg/util"

	"github.com/shopspring/decimal"
)

const (
	DefaultSpotURL = "https://www.chinamoney.com.cn/r/cms/www/chinamoney/data/fx/rfx-sp-quot.json"
	DefaultPair    = "USD/CNH"
)

type spotQuoteResponse struct {
	Head struct {
		RepCode string `json:"rep_code"`
		RepMsg  string `json:"rep_message"`
	} `json:"head"`
	Records []struct {
		CcyPair string `json:"ccyPair"`
		BidPrc  string `json:"bidPrc"`
		AskPrc  string `json:"askPrc"`
	} `json:"records"`
}

// FXSpotQuote reads the bid of one currency pair from the spot quote
// table.
type FXSpotQuote struct {
	client *xhttp.Client
	url    string
	pair   string
	key    string
}

func NewFXSpotQuote(client *xhttp.Client, spotURL, pair string) *FXSpotQuote {
	if spotURL == "" {
		spotURL = DefaultSpotURL
	}
	if pair == "" {
		pair = DefaultPair
	}
	return &FXSpotQuote{client: client, url: spotURL, pair: pair, key: util.NormalizePair(pair)}
}

func (q *FXSpotQuote) Name() string {
	return "chinamoney.fx." + q.key
}

func (q *FXSpotQuote) Fields() []models.Field {
	return []models.Field{models.FieldOffshoreRate}
}

func (q *FXSpotQuote) Fetch(ctx context.Context) (models.Values, error) {
	bid, err := q.bid(ctx)
	if err != nil {
		return nil, models.NewFetchError(q.Name(), err)
	}
	return models.Values{models.FieldOffshoreRate: bid}, nil
}

func (q *FXSpotQuote) bid(ctx context.Context) (decimal.Decimal, error) {
	var resp spotQuoteResponse
	if err := q.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    q.url,
	}, &resp); err != nil {
		return decimal.Zero, err
	}

	if code := resp.Head.RepCode; code != "" && code != "200" {
		return decimal.Zero, fmt.Errorf("provider code %s: %s", code, resp.Head.RepMsg)
	}
	if len(resp.Records) == 0 {
		return decimal.Zero, models.ErrEmptyResponse
	}

	for _, r := range resp.Records {
		if util.NormalizePair(r.CcyPair) != q.key {
			continue
		}
		bid, err := decimal.NewFromString(r.BidPrc)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s bid %q: %w", q.pair, r.BidPrc, err)
		}
		return bid, nil
	}
	return decimal.Zero, fmt.Errorf("pair %s: %w", q.pair, models.ErrMissingValue)
}
