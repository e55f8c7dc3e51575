package provider

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/clinic-intel/internal/config"
	"github.com/sells-group/clinic-intel/internal/model"
	"github.com/sells-group/clinic-intel/internal/resilience"
)

// Roster column layout, after the single header row.
const (
	colLicense = iota
	colName
	colAddress
	colCity
	colState
	colZip
	colPhone
	colLicenseType
	colStatus
	registryCols
)

// licenseCategories maps roster license types to clinic categories.
// Types absent from the map are skipped.
var licenseCategories = map[string]string{
	"URGENT CARE CENTER":      "urgent_care",
	"GENERAL PRACTICE CLINIC": "primary_care",
	"PEDIATRIC CLINIC":        "pediatric",
	"DENTAL CLINIC":           "dental",
	"SPECIALTY CLINIC":        "specialty",
}

// RegistrySource adapts the state licensing roster, published as an
// XLSX workbook on an FTP server. The roster is one flat file, so it
// is downloaded once per source lifetime and served from memory for
// every category query of the run.
type RegistrySource struct {
	cfg      config.RegistryConfig
	download func(ctx context.Context) ([]byte, error)
	now      func() time.Time

	mu     sync.Mutex
	rows   [][]string
	loaded bool
}

// NewRegistrySource creates a RegistrySource for the configured roster.
func NewRegistrySource(cfg config.RegistryConfig) *RegistrySource {
	s := &RegistrySource{cfg: cfg, now: time.Now}
	s.download = s.ftpDownload
	return s
}

// Name implements Source.
func (s *RegistrySource) Name() string { return SourceRegistry }

// Check implements Source. Verifies the FTP server accepts our login.
func (s *RegistrySource) Check(ctx context.Context) error {
	conn, err := ftp.Dial(s.cfg.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(15*time.Second))
	if err != nil {
		return eris.Wrap(resilience.NewTransientError(err, 0), "provider: registry dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		return eris.Wrap(err, "provider: registry login")
	}
	return nil
}

// Fetch implements Source. Returns the roster rows whose license type
// maps to the queried category; the keyword is not used.
func (s *RegistrySource) Fetch(ctx context.Context, q Query) ([]model.SourceRecord, error) {
	rows, err := s.roster(ctx)
	if err != nil {
		return nil, err
	}

	fetchedAt := s.now().UTC()
	var records []model.SourceRecord
	for _, row := range rows {
		if len(row) < registryCols {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(row[colStatus]), "active") {
			continue
		}
		category, ok := licenseCategories[strings.ToUpper(strings.TrimSpace(row[colLicenseType]))]
		if !ok || category != q.Category {
			continue
		}
		if row[colLicense] == "" || row[colName] == "" {
			continue
		}

		raw, _ := json.Marshal(row)
		records = append(records, model.SourceRecord{
			Source:     SourceRegistry,
			SourceID:   row[colLicense],
			Name:       row[colName],
			Address:    row[colAddress],
			City:       row[colCity],
			State:      row[colState],
			PostalCode: row[colZip],
			Phone:      row[colPhone],
			Category:   category,
			FetchedAt:  fetchedAt,
			Raw:        raw,
		})
	}

	return records, nil
}

// roster downloads and parses the workbook on first use.
func (s *RegistrySource) roster(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loaded {
		return s.rows, nil
	}

	data, err := s.download(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := parseRoster(data, s.cfg.Sheet)
	if err != nil {
		return nil, err
	}

	zap.L().Info("provider: registry roster loaded",
		zap.String("source", SourceRegistry),
		zap.Int("rows", len(rows)))

	s.rows = rows
	s.loaded = true
	return s.rows, nil
}

func (s *RegistrySource) ftpDownload(ctx context.Context) ([]byte, error) {
	conn, err := ftp.Dial(s.cfg.Addr, ftp.DialWithContext(ctx), ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return nil, eris.Wrap(resilience.NewTransientError(err, 0), "provider: registry dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login(s.cfg.User, s.cfg.Password); err != nil {
		return nil, eris.Wrap(err, "provider: registry login")
	}

	resp, err := conn.Retr(s.cfg.Path)
	if err != nil {
		return nil, eris.Wrapf(resilience.NewTransientError(err, 0), "provider: registry retrieve %s", s.cfg.Path)
	}
	defer resp.Close() //nolint:errcheck

	data, err := io.ReadAll(resp)
	if err != nil {
		return nil, eris.Wrap(resilience.NewTransientError(err, 0), "provider: registry read roster")
	}
	return data, nil
}

// parseRoster extracts data rows from the named sheet, skipping the
// header row.
func parseRoster(data []byte, sheetName string) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "provider: registry open workbook")
	}

	sheet, ok := f.Sheet[sheetName]
	if !ok {
		return nil, eris.Errorf("provider: registry sheet %q not found", sheetName)
	}

	var rows [][]string
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		rows = append(rows, cells)
	}
	return rows, nil
}
