package services

import (
	"context"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

type CloudinaryService struct {
	cld *cloudinary.Cloudinary
}

func NewCloudinaryService(cloudName, apiKey, apiSecret string) (*CloudinaryService, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	return &CloudinaryService{cld: cld}, nil
}

// UploadImage stores an image under folder/publicID, replacing any earlier
// upload with the same id, and returns its HTTPS URL.
func (s *CloudinaryService) UploadImage(ctx context.Context, file io.Reader, folder, publicID string) (string, error) {
	overwrite := true
	res, err := s.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID,
		Overwrite:    &overwrite,
		ResourceType: "image",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("cloudinary returned no url for %s/%s", folder, publicID)
	}
	return res.SecureURL, nil
}
