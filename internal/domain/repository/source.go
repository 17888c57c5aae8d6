package repository

//go:generate mockgen -package=usecase_test -destination=../../usecase/mock_source_test.go -source=source.go

import (
	"context"

	"MacroPull/internal/domain/models"
)

// Source is one upstream provider. Fetch returns every field listed by
// Fields or a *models.FetchError. Implementations neither retry nor cache.
type Source interface {
	Name() string
	Fields() []models.Field
	Fetch(ctx context.Context) (models.Values, error)
}
