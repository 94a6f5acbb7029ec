package siretsvc

import (
	"context"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/vladapp/backend/core"
	"github.com/vladapp/backend/core/siret"
)

// inseeRegistry looks establishments up in the INSEE Sirene API.
type inseeRegistry struct {
	client *resty.Client
	logger core.Logger
}

var _ siret.Registry = (*inseeRegistry)(nil)

func NewInseeRegistry(conf *core.Config, logger core.Logger) siret.Registry {
	client := resty.New().
		SetBaseURL(conf.Siret.BaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetHeader("Accept", "application/json").
		SetAuthToken(conf.Siret.Token)
	return &inseeRegistry{client: client, logger: logger}
}

type siretResponse struct {
	Etablissement struct {
		Siret       string `json:"siret"`
		UniteLegale struct {
			Denomination string `json:"denominationUniteLegale"`
		} `json:"uniteLegale"`
		PeriodesEtablissement []struct {
			ActivitePrincipale string `json:"activitePrincipaleEtablissement"`
			DateFin            string `json:"dateFin"`
		} `json:"periodesEtablissement"`
	} `json:"etablissement"`
}

func (r *inseeRegistry) Lookup(ctx context.Context, number string) (siret.Establishment, error) {
	var body siretResponse
	res, err := r.client.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/siret/" + number)
	if err != nil {
		return siret.Establishment{}, errors.Wrap(err, "querying establishment registry")
	}
	if res.StatusCode() == http.StatusNotFound {
		return siret.Establishment{}, siret.ErrNotRegistered
	}
	if res.IsError() {
		return siret.Establishment{}, errors.Errorf("establishment registry: status %d", res.StatusCode())
	}

	est := siret.Establishment{
		Siret: body.Etablissement.Siret,
		Name:  body.Etablissement.UniteLegale.Denomination,
	}
	// the current period is the one with no end date
	for _, p := range body.Etablissement.PeriodesEtablissement {
		if p.DateFin == "" {
			est.ActivityCode = p.ActivitePrincipale
			break
		}
	}
	return est, nil
}
