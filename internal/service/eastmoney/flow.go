package eastmoney

import (
	"context"
	"fmt"
	"time"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"

	"github.com/shopspring/decimal"
)

const (
	DefaultFlowURL = "https://datacenter-web.eastmoney.com/api/data/v1/get"
	// DefaultMutualType selects the northbound aggregate in
	// RPT_MUTUAL_DEAL_HISTORY.
	DefaultMutualType = "005"

	flowReport     = "RPT_MUTUAL_DEAL_HISTORY"
	flowDateLayout = "2006-01-02 15:04:05"
)

// DefaultFlowDivisor converts the report unit (million CNY) to 100 million
// CNY.
var DefaultFlowDivisor = decimal.NewFromInt(100)

type flowRow struct {
	TradeDate  string           `json:"TRADE_DATE"`
	NetDealAmt *decimal.Decimal `json:"NET_DEAL_AMT"`
}

type datacenterResponse struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Result  *struct {
		Data []flowRow `json:"data"`
	} `json:"result"`
}

// FlowQuote reads the most recent cross-border net deal figure.
type FlowQuote struct {
	client     *xhttp.Client
	url        string
	mutualType string
	divisor    decimal.Decimal
}

func NewFlowQuote(client *xhttp.Client, flowURL, mutualType string, divisor decimal.Decimal) *FlowQuote {
	if flowURL == "" {
		flowURL = DefaultFlowURL
	}
	if mutualType == "" {
		mutualType = DefaultMutualType
	}
	if divisor.IsZero() {
		divisor = DefaultFlowDivisor
	}
	return &FlowQuote{client: client, url: flowURL, mutualType: mutualType, divisor: divisor}
}

func (q *FlowQuote) Name() string {
	return "eastmoney.flow." + q.mutualType
}

func (q *FlowQuote) Fields() []models.Field {
	return []models.Field{models.FieldNetFlow}
}

func (q *FlowQuote) Fetch(ctx context.Context) (models.Values, error) {
	latest, err := q.latest(ctx)
	if err != nil {
		return nil, models.NewFetchError(q.Name(), err)
	}
	return models.Values{models.FieldNetFlow: latest.Div(q.divisor)}, nil
}

func (q *FlowQuote) latest(ctx context.Context) (decimal.Decimal, error) {
	var resp datacenterResponse
	err := q.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    q.url,
		QueryParams: map[string][]string{
			"reportName":  {flowReport},
			"columns":     {"ALL"},
			"filter":      {fmt.Sprintf(`(MUTUAL_TYPE="%s")`, q.mutualType)},
			"sortColumns": {"TRADE_DATE"},
			"sortTypes":   {"-1"},
			"pageNumber":  {"1"},
			"pageSize":    {"5"},
			"source":      {"WEB"},
			"client":      {"WEB"},
		},
	}, &resp)
	if err != nil {
		return decimal.Zero, err
	}

	if !resp.Success {
		return decimal.Zero, fmt.Errorf("provider code %d: %s", resp.Code, resp.Message)
	}
	if resp.Result == nil || len(resp.Result.Data) == 0 {
		return decimal.Zero, models.ErrEmptyResponse
	}

	return pickLatest(resp.Result.Data)
}

// pickLatest returns the net deal of the newest dated row that carries a
// value. Row order is not trusted.
func pickLatest(rows []flowRow) (decimal.Decimal, error) {
	var (
		best   time.Time
		value  decimal.Decimal
		found  bool
		errBad error
	)
	for _, r := range rows {
		if r.NetDealAmt == nil {
			continue
		}
		d, err := time.Parse(flowDateLayout, r.TradeDate)
		if err != nil {
			errBad = fmt.Errorf("trade date %q: %w", r.TradeDate, err)
			continue
		}
		if !found || d.After(best) {
			best, value, found = d, *r.NetDealAmt, true
		}
	}
	if !found {
		if errBad != nil {
			return decimal.Zero, errBad
		}
		return decimal.Zero, fmt.Errorf("NET_DEAL_AMT: %w", models.ErrMissingValue)
	}
	return value, nil
}
