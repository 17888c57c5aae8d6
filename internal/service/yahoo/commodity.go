package yahoo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"

	"github.com/shopspring/decimal"
)

const DefaultBaseURL = "https://query1.finance.yahoo.com"

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string           `json:"symbol"`
				Currency           string           `json:"currency"`
				RegularMarketPrice *decimal.Decimal `json:"regularMarketPrice"`
				RegularMarketTime  int64            `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// CommodityQuote reads the regular market price of one ticker from the
// chart endpoint. One instance serves one field.
type CommodityQuote struct {
	client  *xhttp.Client
	baseURL string
	symbol  string
	field   models.Field
}

func NewCommodityQuote(client *xhttp.Client, baseURL, symbol string, field models.Field) *CommodityQuote {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &CommodityQuote{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		symbol:  symbol,
		field:   field,
	}
}

func (q *CommodityQuote) Name() string {
	return "yahoo." + q.symbol
}

func (q *CommodityQuote) Fields() []models.Field {
	return []models.Field{q.field}
}

func (q *CommodityQuote) Fetch(ctx context.Context) (models.Values, error) {
	price, err := q.price(ctx)
	if err != nil {
		return nil, models.NewFetchError(q.Name(), err)
	}
	return models.Values{q.field: price}, nil
}

func (q *CommodityQuote) price(ctx context.Context) (decimal.Decimal, error) {
	var resp chartResponse
	err := q.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    q.baseURL + "/v8/finance/chart/" + url.PathEscape(q.symbol),
		QueryParams: map[string][]string{
			"interval": {"1d"},
			"range":    {"1d"},
		},
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}

	if e := resp.Chart.Error; e != nil {
		return decimal.Zero, fmt.Errorf("provider error %s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return decimal.Zero, models.ErrEmptyResponse
	}
	p := resp.Chart.Result[0].Meta.RegularMarketPrice
	if p == nil {
		return decimal.Zero, fmt.Errorf("regularMarketPrice: %w", models.ErrMissingValue)
	}
	return *p, nil
}
