package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/pkg/places"
)

// Places returns at most 60 results per text query, 20 per page.
const placesMaxPages = 3

// PlacesSource adapts the Google Places Text Search API.
type PlacesSource struct {
	client places.Client
	market config.MarketConfig
	now    func() time.Time
}

// NewPlacesSource creates a PlacesSource searching within the market circle.
func NewPlacesSource(client places.Client, market config.MarketConfig) *PlacesSource {
	return &PlacesSource{client: client, market: market, now: time.Now}
}

// Name implements Source.
func (s *PlacesSource) Name() string { return SourceGooglePlaces }

// Check implements Source.
func (s *PlacesSource) Check(ctx context.Context) error {
	_, err := s.client.TextSearch(ctx, places.TextSearchRequest{
		TextQuery:    "clinic " + s.market.City,
		LocationBias: s.bias(),
	})
	if err != nil {
		return eris.Wrap(classifyPlacesErr(err), "provider: places connectivity check")
	}
	return nil
}

// Fetch implements Source. Pages through all results for one keyword.
func (s *PlacesSource) Fetch(ctx context.Context, q Query) ([]model.SourceRecord, error) {
	var records []model.SourceRecord

	pageToken := ""
	for page := 0; page < placesMaxPages; page++ {
		resp, err := s.client.TextSearch(ctx, places.TextSearchRequest{
			TextQuery:    q.Keyword + " " + s.market.City + " " + s.market.State,
			LocationBias: s.bias(),
			PageToken:    pageToken,
		})
		if err != nil {
			return nil, eris.Wrapf(classifyPlacesErr(err), "provider: places fetch %q", q.Keyword)
		}

		for _, p := range resp.Places {
			records = append(records, s.toRecord(p, q.Category))
		}

		pageToken = resp.NextPageToken
		if pageToken == "" {
			break
		}
	}

	return records, nil
}

func (s *PlacesSource) bias() *places.LocationBias {
	return &places.LocationBias{
		Circle: places.Circle{
			Center: places.LatLng{Latitude: s.market.Latitude, Longitude: s.market.Longitude},
			Radius: float64(s.market.RadiusM),
		},
	}
}

func (s *PlacesSource) toRecord(p places.Place, category string) model.SourceRecord {
	addr := parseUSAddress(p.FormattedAddress)
	raw, _ := json.Marshal(p)

	rec := model.SourceRecord{
		Source:     SourceGooglePlaces,
		SourceID:   p.ID,
		Name:       p.DisplayName.Text,
		Address:    addr.Street,
		City:       addr.City,
		State:      addr.State,
		PostalCode: addr.PostalCode,
		Phone:      p.NationalPhoneNumber,
		Website:    p.WebsiteURI,
		Category:   category,
		FetchedAt:  s.now().UTC(),
		Raw:        raw,
	}

	if p.Location != nil {
		lat, lng := p.Location.Latitude, p.Location.Longitude
		rec.Latitude, rec.Longitude = &lat, &lng
	}
	if p.UserRatingCount > 0 {
		rating, count := p.Rating, p.UserRatingCount
		rec.Rating, rec.RatingCount = &rating, &count
	}

	return rec
}

func classifyPlacesErr(err error) error {
	var statusErr *places.StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(err, statusErr.StatusCode)
	}
	return err
}
