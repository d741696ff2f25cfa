package execution

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/betbot/goperp/internal/domain"
	"github.com/betbot/goperp/nado/client"
	"github.com/betbot/goperp/nado/signing"
	"github.com/betbot/goperp/nado/x18"
)

// Classify 把签名、量化和网关错误归入领域错误分类。
// submitted 表示请求可能已被交易所接收（结果未知）。
func Classify(op string, err error) (out error, submitted bool) {
	if err == nil {
		return nil, false
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err, de.Submitted
	}

	var (
		apiErr  *client.APIError
		netErr  *client.NetworkError
		httpErr *client.HTTPError
	)
	switch {
	case errors.Is(err, x18.ErrInvalidQuantity):
		return &domain.Error{Kind: domain.KindValidation, Op: op, Err: err}, false
	case errors.Is(err, signing.ErrSigning):
		return domain.Wrap(domain.KindSigning, op, err), false
	case errors.As(err, &apiErr):
		return domain.Rejection(op, apiErr.Message, apiErr.Code), false
	case errors.As(err, &netErr):
		kind := domain.KindNetwork
		if netErr.Timeout {
			kind = domain.KindTimeout
		}
		return &domain.Error{Kind: kind, Op: op, Err: err, Submitted: netErr.Submitted}, netErr.Submitted
	case errors.As(err, &httpErr):
		if httpErr.Status >= http.StatusInternalServerError {
			// 网关已收到请求，撮合结果未知
			return &domain.Error{Kind: domain.KindNetwork, Op: op, Err: err, Submitted: true}, true
		}
		return &domain.Error{Kind: domain.KindRemoteRejection, Op: op, Remote: httpErr.Body, Code: httpErr.Status}, false
	case errors.Is(err, context.DeadlineExceeded):
		return domain.Wrap(domain.KindTimeout, op, err), false
	case errors.Is(err, context.Canceled):
		return domain.Wrap(domain.KindNetwork, op, err), false
	}
	return domain.Wrap(domain.KindInternal, op, err), false
}

// Result 由错误生成对外结果
func Result(op string, err error) (domain.Result, error) {
	classified, submitted := Classify(op, err)
	r := domain.Failed(classified)
	r.Outcome = domain.OutcomeFor(classified, submitted)
	if msg := domain.RemoteMessage(classified); msg != "" {
		r.Message = msg
	}
	return r, classified
}
