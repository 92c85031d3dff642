// Package presencesvc talks to the classroom check-in system to find out
// where a student currently is.
package presencesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"

	"github.com/sorobanclub/backend/core"
	"github.com/sorobanclub/backend/core/session"
)

type httpService struct {
	client  *http.Client
	baseURL string
}

var _ session.PresenceService = (*httpService)(nil)

func NewHTTPService() *httpService {
	return &httpService{
		client:  &http.Client{Timeout: core.Conf.Presence.Timeout},
		baseURL: core.Conf.Presence.BaseURL,
	}
}

func (svc httpService) GetStudentPresence(ctx context.Context, playerID string) (*session.ClassroomPresence, error) {
	url := fmt.Sprintf("%s/v1/presence/students/%s", svc.baseURL, playerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building presence request")
	}

	res, err := svc.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "calling presence service")
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
		var presence session.ClassroomPresence
		if err = json.NewDecoder(res.Body).Decode(&presence); err != nil {
			return nil, errors.Wrap(err, "decoding presence response")
		}
		return &presence, nil
	case http.StatusNotFound:
		// not checked in anywhere
		return nil, nil
	default:
		return nil, errors.Errorf("presence service returned %d", res.StatusCode)
	}
}

// dummyService reports every student as absent. Used when no presence system
// is deployed.
type dummyService struct{}

var _ session.PresenceService = (*dummyService)(nil)

func NewDummyService() *dummyService { return &dummyService{} }

func (dummyService) GetStudentPresence(context.Context, string) (*session.ClassroomPresence, error) {
	return nil, nil
}
