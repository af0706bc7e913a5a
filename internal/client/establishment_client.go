package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ecogov/be-inspections/internal/apperrors"
	"github.com/ecogov/be-inspections/internal/resilience"
	"github.com/ecogov/be-inspections/internal/wizard"
	"github.com/ecogov/be-inspections/internal/workflow"
)

// lawFromString drops unknown statute codes rather than propagating them
// into advisory checks.
func lawFromString(s string) workflow.Law {
	if l := workflow.Law(s); l.Valid() {
		return l
	}
	return ""
}

// EstablishmentClient talks to the external establishments service. The
// service is a black box to the engine: it owns establishment master data,
// geocoding, and maps; the engine only needs identity, address, and the last
// inspected statute.
type EstablishmentClient struct {
	baseURL string
	http    *http.Client
	retry   *resilience.Policy
	log     zerolog.Logger
}

// NewEstablishmentClient creates a client for the given base URL. A nil
// retry policy falls back to the service default.
func NewEstablishmentClient(baseURL string, httpClient *http.Client, retry *resilience.Policy, log zerolog.Logger) *EstablishmentClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if retry == nil {
		retry = resilience.DefaultPolicy()
	}
	return &EstablishmentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		retry:   retry,
		log:     log,
	}
}

type establishmentDTO struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Province            string `json:"province"`
	City                string `json:"city"`
	LastLaw             string `json:"last_law"`
	HasActiveInspection bool   `json:"has_active_inspection"`
}

// GetEstablishments fetches establishment details by id; implements
// wizard.Source for resuming saved progress.
func (c *EstablishmentClient) GetEstablishments(ctx context.Context, ids []string) ([]wizard.Establishment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/establishments/?ids=%s",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")))

	var dtos []establishmentDTO
	err := c.retry.Do(ctx, func() error {
		return c.getJSON(ctx, endpoint, &dtos)
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "establishments service unreachable")
	}

	out := make([]wizard.Establishment, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, wizard.Establishment{
			ID:                  d.ID,
			Name:                d.Name,
			Province:            d.Province,
			City:                d.City,
			LastLaw:             lawFromString(d.LastLaw),
			HasActiveInspection: d.HasActiveInspection,
		})
	}
	return out, nil
}

func (c *EstablishmentClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return resilience.Permanent(err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(out)
	case resp.StatusCode >= 500:
		return fmt.Errorf("establishments service returned %d", resp.StatusCode)
	default:
		// 4xx responses will not improve on retry.
		return resilience.Permanent(fmt.Errorf("establishments service returned %d", resp.StatusCode))
	}
}
