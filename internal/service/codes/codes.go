// Package codes lists the free promo codes shown on the public codes page.
package codes

import (
	"context"
	"net/http"

	"surely-client/internal/domain/codes"
	"surely-client/internal/httpclient"
	xerrors "surely-client/internal/pkg/errors"

	"go.uber.org/zap"
)

type Service struct {
	api    *httpclient.Client
	logger *zap.Logger
}

func New(api *httpclient.Client, logger *zap.Logger) *Service {
	return &Service{api: api, logger: logger}
}

// List fetches the current free codes. Public, no auth attached.
func (s *Service) List(ctx context.Context) ([]codes.FreeCode, error) {
	resp, err := s.api.Do(ctx, http.MethodGet, "/codes", nil, false)
	if err != nil {
		return nil, err
	}

	var cr codes.CodesResponse
	if err := resp.DecodeJSON(&cr); err == nil && cr.Codes != nil {
		return cr.Codes, nil
	}
	var list []codes.FreeCode
	if err := resp.DecodeJSON(&list); err != nil {
		return nil, xerrors.New(xerrors.KindRequest, "unexpected codes response")
	}
	return list, nil
}
