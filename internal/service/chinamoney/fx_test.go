package chinamoney

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"MacroPull/internal/domain/models"
	xhttp "MacroPull/pkg/http"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const spotBody = `{"head":{"rep_code":"200","rep_message":"OK"},"records":[
	{"ccyPair":"USD/CNY","bidPrc":"7.2790","askPrc":"7.2800"},
	{"ccyPair":"usd/cnh","bidPrc":"7.2841","askPrc":"7.2852"}
]}`

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFXSpotQuoteMatchesPairLoosely(t *testing.T) {
	srv := serve(t, http.StatusOK, spotBody)

	q := NewFXSpotQuote(xhttp.NewClient(), srv.URL, "USDCNH")
	got, err := q.Fetch(context.Background())

	require.NoError(t, err)
	require.True(t, got[models.FieldOffshoreRate].Equal(decimal.RequireFromString("7.2841")))
	require.Equal(t, "chinamoney.fx.USDCNH", q.Name())
}

func TestFXSpotQuoteFailures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
	}{
		"pair absent":   {http.StatusOK, `{"head":{"rep_code":"200"},"records":[{"ccyPair":"EUR/CNY","bidPrc":"7.6"}]}`},
		"empty records": {http.StatusOK, `{"head":{"rep_code":"200"},"records":[]}`},
		"blank bid":     {http.StatusOK, `{"records":[{"ccyPair":"USD/CNH","bidPrc":""}]}`},
		"provider code": {http.StatusOK, `{"head":{"rep_code":"500","rep_message":"busy"},"records":[]}`},
		"forbidden":     {http.StatusForbidden, `denied`},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := serve(t, tc.status, tc.body)

			_, err := NewFXSpotQuote(xhttp.NewClient(), srv.URL, "USD/CNH").Fetch(context.Background())

			var fe *models.FetchError
			require.True(t, errors.As(err, &fe))
		})
	}
}
