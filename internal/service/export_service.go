package service

import (
	"context"
	"io"
	"time"

	"sessionbook/internal/domain"
	"sessionbook/internal/export"

	"github.com/rs/zerolog"
)

// maxExportRange bounds a single workbook.
const maxExportRange = 366 * 24 * time.Hour

type ExportService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewExportService(repo domain.Repository, logger *zerolog.Logger) *ExportService {
	return &ExportService{repo: repo, logger: logger}
}

// ExportBookings writes an XLSX workbook of every booking starting in [from, to).
// A non-zero callerProviderID must match the exported provider.
func (s *ExportService) ExportBookings(ctx context.Context, providerSlug string, callerProviderID int64, from, to time.Time, w io.Writer) error {
	if !from.Before(to) {
		return domain.ErrInvalidRequest.WithMessage("export range is empty")
	}
	if to.Sub(from) > maxExportRange {
		return domain.ErrInvalidRequest.WithMessage("export range exceeds one year")
	}

	provider, err := s.repo.GetProviderBySlug(ctx, providerSlug)
	if err != nil {
		return domain.AsError(err)
	}
	if callerProviderID != 0 && callerProviderID != provider.ID {
		return domain.ErrNotBookingOwner.WithMessage("provider %s belongs to another account", provider.Slug)
	}

	bookings, err := s.repo.ListBookings(ctx, provider.ID, from, to)
	if err != nil {
		return domain.AsError(err)
	}

	if err := export.Write(w, provider, providerZone(provider, s.logger), from, to, bookings); err != nil {
		s.logger.Error().Err(err).Str("provider", provider.Slug).Msg("Failed to write export")
		return domain.ErrStoreFailure.Wrap(err)
	}

	s.logger.Info().
		Str("provider", provider.Slug).
		Int("bookings", len(bookings)).
		Msg("Bookings exported")
	return nil
}
