package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sellery/api/internal/domain"
	"github.com/sellery/api/internal/platform/storage"
	"github.com/sellery/api/internal/repositories"
)

const defaultDownloadLifetime = 24 * time.Hour

var (
	// ErrDownloadInvalidInput signals the caller provided invalid data.
	ErrDownloadInvalidInput = errors.New("download: invalid input")
	// ErrDownloadNotFound indicates the order line could not be located or does
	// not belong to the caller.
	ErrDownloadNotFound = errors.New("download: not found")
	// ErrDownloadNotReady indicates the owning order has not completed payment.
	ErrDownloadNotReady = errors.New("download: order not completed")
	// ErrDownloadLimitReached indicates the line's download quota is exhausted.
	ErrDownloadLimitReached = errors.New("download: limit reached")
	// ErrDownloadNoFile indicates the purchased product has no storage object.
	ErrDownloadNoFile = errors.New("download: no file attached")
)

// DownloadURLSigner mints signed URLs for storage objects.
type DownloadURLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// DownloadServiceDeps bundles collaborators required to construct the download service.
type DownloadServiceDeps struct {
	Lines  repositories.OrderLineRepository
	Orders repositories.OrderRepository
	Signer DownloadURLSigner
	Bucket string
	// DefaultLifetime applies when the line carries no download window of its
	// own; zero falls back to 24 hours.
	DefaultLifetime time.Duration
	Clock           func() time.Time
	Logger          func(ctx context.Context, event string, fields map[string]any)
}

type downloadService struct {
	lines           repositories.OrderLineRepository
	orders          repositories.OrderRepository
	signer          DownloadURLSigner
	bucket          string
	defaultLifetime time.Duration
	clock           func() time.Time
	logger          func(context.Context, string, map[string]any)
}

// NewDownloadService wires dependencies into a concrete DownloadService implementation.
func NewDownloadService(deps DownloadServiceDeps) (DownloadService, error) {
	if deps.Lines == nil {
		return nil, errors.New("download service: order line repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("download service: order repository is required")
	}
	if deps.Signer == nil {
		return nil, errors.New("download service: url signer is required")
	}
	bucket := strings.TrimSpace(deps.Bucket)
	if bucket == "" {
		return nil, errors.New("download service: bucket is required")
	}

	lifetime := deps.DefaultLifetime
	if lifetime <= 0 {
		lifetime = defaultDownloadLifetime
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &downloadService{
		lines:           deps.Lines,
		orders:          deps.Orders,
		signer:          deps.Signer,
		bucket:          bucket,
		defaultLifetime: lifetime,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// IssueDownloadURL returns a signed URL for the purchased file. A stored URL
// that has not expired is returned as-is so repeated calls stay stable; only
// an expired or missing URL triggers a fresh signature.
func (s *downloadService) IssueDownloadURL(ctx context.Context, cmd IssueDownloadCommand) (DownloadGrant, error) {
	line, err := s.entitledLine(ctx, cmd.UserID, cmd.OrderLineID)
	if err != nil {
		return DownloadGrant{}, err
	}

	if strings.TrimSpace(line.StoragePath) == "" {
		return DownloadGrant{}, fmt.Errorf("%w: line %s", ErrDownloadNoFile, line.ID)
	}

	if line.MaxDownloads != nil && line.DownloadCount >= *line.MaxDownloads {
		return DownloadGrant{}, fmt.Errorf("%w: line %s exhausted its %d downloads", ErrDownloadLimitReached, line.ID, *line.MaxDownloads)
	}

	now := s.clock()
	if line.DownloadURL != nil && line.DownloadExpiresAt != nil && line.DownloadExpiresAt.After(now) {
		return DownloadGrant{
			URL:       *line.DownloadURL,
			ExpiresAt: *line.DownloadExpiresAt,
			Remaining: line.DownloadsRemaining(),
		}, nil
	}

	lifetime := cmd.Lifetime
	if lifetime <= 0 {
		lifetime = s.lineLifetime(line)
	}

	result, err := s.signer.SignedURL(ctx, s.bucket, line.StoragePath, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			ExpiresIn: lifetime,
			// Ownership was checked against the order above.
			AllowAnonymous: true,
			Disposition:    attachmentDisposition(line.ProductTitle),
		},
	})
	if err != nil {
		return DownloadGrant{}, fmt.Errorf("download: sign url for line %s: %w", line.ID, err)
	}

	if err := s.lines.SetDownloadURL(ctx, line.ID, result.URL, result.ExpiresAt); err != nil {
		return DownloadGrant{}, s.mapRepositoryError(err)
	}

	return DownloadGrant{
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Remaining: line.DownloadsRemaining(),
	}, nil
}

// RecordDownload counts one download against the line's quota. The increment
// runs transactionally in the repository, so concurrent downloads of the last
// remaining slot leave exactly one winner.
func (s *downloadService) RecordDownload(ctx context.Context, cmd RecordDownloadCommand) (OrderLine, error) {
	line, err := s.entitledLine(ctx, cmd.UserID, cmd.OrderLineID)
	if err != nil {
		return OrderLine{}, err
	}

	updated, err := s.lines.IncrementDownloadCount(ctx, line.ID)
	if err != nil {
		if repositories.IsDownloadLimitReached(err) {
			return OrderLine{}, fmt.Errorf("%w: line %s", ErrDownloadLimitReached, line.ID)
		}
		return OrderLine{}, s.mapRepositoryError(err)
	}
	return updated, nil
}

// entitledLine loads the line and verifies the caller owns a completed order
// containing it. Foreign lines surface as not-found so probing line IDs leaks
// nothing.
func (s *downloadService) entitledLine(ctx context.Context, userID, lineID string) (OrderLine, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return OrderLine{}, fmt.Errorf("%w: user id is required", ErrDownloadInvalidInput)
	}
	id := strings.TrimSpace(lineID)
	if id == "" {
		return OrderLine{}, fmt.Errorf("%w: order line id is required", ErrDownloadInvalidInput)
	}

	line, err := s.lines.FindByID(ctx, id)
	if err != nil {
		return OrderLine{}, s.mapRepositoryError(err)
	}

	order, err := s.orders.FindByID(ctx, line.OrderID)
	if err != nil {
		return OrderLine{}, s.mapRepositoryError(err)
	}
	if order.UserID != uid {
		return OrderLine{}, fmt.Errorf("%w: line %s", ErrDownloadNotFound, id)
	}
	if order.Status != domain.OrderStatusCompleted {
		return OrderLine{}, fmt.Errorf("%w: order %s is %s", ErrDownloadNotReady, order.ID, order.Status)
	}

	return line, nil
}

func (s *downloadService) lineLifetime(line OrderLine) time.Duration {
	if line.DownloadHours > 0 {
		return time.Duration(line.DownloadHours) * time.Hour
	}
	return s.defaultLifetime
}

func (s *downloadService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrDownloadNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("download: repository unavailable: %w", err)
		}
	}

	return err
}

func attachmentDisposition(title string) string {
	name := strings.TrimSpace(title)
	if name == "" {
		return "attachment"
	}
	name = strings.Map(func(r rune) rune {
		switch r {
		case '"', '\\', '\r', '\n':
			return '_'
		}
		return r
	}, name)
	return fmt.Sprintf("attachment; filename=%q", name)
}
