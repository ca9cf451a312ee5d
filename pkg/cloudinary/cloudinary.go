package cloudinary

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
}

// ReportStore publishes rendered reports to Cloudinary.
type ReportStore struct {
	client *cloudinary.Cloudinary
	folder string
	logger zerolog.Logger
}

// New constructs a Cloudinary report store.
func New(cfg Config, logger zerolog.Logger) (*ReportStore, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("cloudinary credentials must be provided")
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	return &ReportStore{
		client: cld,
		folder: cfg.Folder,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores a document under a public id derived from name and returns its secure URL.
// Uploading the same name again replaces the previous document.
func (s *ReportStore) Upload(ctx context.Context, name string, data []byte) (string, error) {
	params := uploader.UploadParams{
		Folder:       strings.Trim(s.folder, "/"),
		PublicID:     PublicID(name),
		ResourceType: "raw",
		Overwrite:    api.Bool(true),
	}

	result, err := s.client.Upload.Upload(ctx, bytes.NewReader(data), params)
	if err != nil {
		return "", fmt.Errorf("failed to upload report: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("failed to upload report: %s", result.Error.Message)
	}

	s.logger.Info().Str("public_id", result.PublicID).Int("bytes", len(data)).Msg("report uploaded to cloudinary")

	return result.SecureURL, nil
}

// PublicID normalises a file name into a stable Cloudinary public id.
func PublicID(name string) string {
	ext := filepath.Ext(name)
	base := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '-'
	}, strings.TrimSuffix(name, ext))

	base = strings.Trim(base, "-")
	if base == "" {
		base = "report"
	}

	return base + strings.ToLower(ext)
}
