package eastmoney

import (
	"context"
	"fmt"
	"strings"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"

	"github.com/shopspring/decimal"
)

const (
	DefaultQuoteURL = "https://push2.eastmoney.com/api/qt/stock/get"
	// DefaultIndexSecID is the Shanghai Composite on the push2 feed.
	DefaultIndexSecID = "1.000001"
)

// stockGetResponse is the push2 quote envelope with fltt=2, where f43 is
// the last price and f170 the percent change, both already scaled.
type stockGetResponse struct {
	RC   int `json:"rc"`
	Data *struct {
		Price     *decimal.Decimal `json:"f43"`
		ChangePct *decimal.Decimal `json:"f170"`
	} `json:"data"`
}

// IndexQuote reads an equity index level and percent change.
type IndexQuote struct {
	client *xhttp.Client
	url    string
	secID  string
}

func NewIndexQuote(client *xhttp.Client, quoteURL, secID string) *IndexQuote {
	if quoteURL == "" {
		quoteURL = DefaultQuoteURL
	}
	if secID == "" {
		secID = DefaultIndexSecID
	}
	return &IndexQuote{client: client, url: quoteURL, secID: secID}
}

func (q *IndexQuote) Name() string {
	return "eastmoney.index." + strings.ReplaceAll(q.secID, ".", "_")
}

func (q *IndexQuote) Fields() []models.Field {
	return []models.Field{models.FieldIndexLevel, models.FieldIndexChangePct}
}

func (q *IndexQuote) Fetch(ctx context.Context) (models.Values, error) {
	v, err := q.fetch(ctx)
	if err != nil {
		return nil, models.NewFetchError(q.Name(), err)
	}
	return v, nil
}

func (q *IndexQuote) fetch(ctx context.Context) (models.Values, error) {
	var resp stockGetResponse
	err := q.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    q.url,
		QueryParams: map[string][]string{
			"secid":  {q.secID},
			"fields": {"f43,f170"},
			"fltt":   {"2"},
			"invt":   {"2"},
		},
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.RC != 0 {
		return nil, fmt.Errorf("provider rc %d", resp.RC)
	}
	if resp.Data == nil {
		return nil, models.ErrEmptyResponse
	}
	if resp.Data.Price == nil {
		return nil, fmt.Errorf("f43: %w", models.ErrMissingValue)
	}
	if resp.Data.ChangePct == nil {
		return nil, fmt.Errorf("f170: %w", models.ErrMissingValue)
	}

	return models.Values{
		models.FieldIndexLevel:     *resp.Data.Price,
		models.FieldIndexChangePct: *resp.Data.ChangePct,
	}, nil
}
