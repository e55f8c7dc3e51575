package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/pkg/yelp"
)

// yelpMaxResults caps how deep we page into one keyword's results.
const yelpMaxResults = 200

// YelpSource adapts the Yelp Fusion business search API.
type YelpSource struct {
	client yelp.Client
	market config.MarketConfig
	now    func() time.Time
}

// NewYelpSource creates a YelpSource searching around the market center.
func NewYelpSource(client yelp.Client, market config.MarketConfig) *YelpSource {
	return &YelpSource{client: client, market: market, now: time.Now}
}

// Name implements Source.
func (s *YelpSource) Name() string { return SourceYelp }

// Check implements Source.
func (s *YelpSource) Check(ctx context.Context) error {
	_, err := s.client.BusinessSearch(ctx, yelp.BusinessSearchRequest{
		Term:      "clinic",
		Latitude:  s.market.Latitude,
		Longitude: s.market.Longitude,
		Limit:     1,
	})
	if err != nil {
		return eris.Wrap(classifyYelpErr(err), "provider: yelp connectivity check")
	}
	return nil
}

// Fetch implements Source. Pages by offset until the reported total or
// the page cap is reached.
func (s *YelpSource) Fetch(ctx context.Context, q Query) ([]model.SourceRecord, error) {
	var records []model.SourceRecord

	for offset := 0; offset < yelpMaxResults; offset += yelp.MaxPageSize {
		resp, err := s.client.BusinessSearch(ctx, yelp.BusinessSearchRequest{
			Term:      q.Keyword,
			Latitude:  s.market.Latitude,
			Longitude: s.market.Longitude,
			RadiusM:   s.market.RadiusM,
			Limit:     yelp.MaxPageSize,
			Offset:    offset,
		})
		if err != nil {
			return nil, eris.Wrapf(classifyYelpErr(err), "provider: yelp fetch %q", q.Keyword)
		}

		for _, b := range resp.Businesses {
			records = append(records, s.toRecord(b, q.Category))
		}

		if offset+yelp.MaxPageSize >= resp.Total || len(resp.Businesses) == 0 {
			break
		}
	}

	return records, nil
}

func (s *YelpSource) toRecord(b yelp.Business, category string) model.SourceRecord {
	raw, _ := json.Marshal(b)

	rec := model.SourceRecord{
		Source:     SourceYelp,
		SourceID:   b.ID,
		Name:       b.Name,
		Address:    b.Location.Address1,
		City:       b.Location.City,
		State:      b.Location.State,
		PostalCode: b.Location.ZipCode,
		Phone:      b.Phone,
		Website:    b.URL,
		Category:   category,
		FetchedAt:  s.now().UTC(),
		Raw:        raw,
	}

	if b.Coordinates.Latitude != 0 || b.Coordinates.Longitude != 0 {
		lat, lng := b.Coordinates.Latitude, b.Coordinates.Longitude
		rec.Latitude, rec.Longitude = &lat, &lng
	}
	if b.ReviewCount > 0 {
		rating, count := b.Rating, b.ReviewCount
		rec.Rating, rec.RatingCount = &rating, &count
	}

	return rec
}

func classifyYelpErr(err error) error {
	var statusErr *yelp.StatusError
	if errors.As(err, &statusErr) {
		return transientStatus(err, statusErr.StatusCode)
	}
	return err
}
