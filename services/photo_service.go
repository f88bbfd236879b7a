package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"civicreport-be/models"
	"civicreport-be/repositories"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MaxPhotoSize caps a single upload.
const MaxPhotoSize = 10 << 20

var photoExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// ObjectUploader is the part of *s3.Client used for photos.
type ObjectUploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type PhotoService struct {
	issues   repositories.IssueRepository
	photos   repositories.PhotoRepository
	uploader ObjectUploader
	bucket   string
	baseURL  string
	now      func() time.Time
}

// NewPhotoService stores objects in bucket. Photo URLs are baseURL + "/" + key,
// defaulting to the bucket's virtual-hosted S3 address.
func NewPhotoService(issues repositories.IssueRepository, photos repositories.PhotoRepository, uploader ObjectUploader, bucket, baseURL string) *PhotoService {
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &PhotoService{
		issues:   issues,
		photos:   photos,
		uploader: uploader,
		bucket:   bucket,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
}

// PhotoUpload is one image file attached to an issue.
type PhotoUpload struct {
	ContentType string
	Size        int64
	Body        io.Reader
	Caption     *string
}

// Upload stores the image and records it. Only the reporter or an authority may
// attach photos; the first photo of an issue becomes its primary one.
func (s *PhotoService) Upload(ctx context.Context, actor Actor, issueID primitive.ObjectID, in PhotoUpload) (*models.IssuePhoto, error) {
	ext, ok := photoExtensions[in.ContentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported image type %q", ErrInvalidInput, in.ContentType)
	}
	if in.Size <= 0 || in.Size > MaxPhotoSize {
		return nil, fmt.Errorf("%w: photo must be at most %d bytes", ErrInvalidInput, MaxPhotoSize)
	}

	issue, err := s.issues.FindByID(ctx, issueID)
	if err != nil {
		return nil, err
	}
	if !issue.IsSubmittedBy(actor.ID) && !actor.IsAuthority() {
		return nil, fmt.Errorf("%w: only the reporter or an authority can add photos", ErrForbidden)
	}

	existing, err := s.photos.ListByIssue(ctx, issueID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("issues/%s/%s%s", issueID.Hex(), uuid.NewString(), ext)
	_, err = s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          io.LimitReader(in.Body, MaxPhotoSize),
		ContentType:   aws.String(in.ContentType),
		ContentLength: aws.Int64(in.Size),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}

	photo := &models.IssuePhoto{
		ID:         primitive.NewObjectID(),
		IssueID:    issueID,
		PhotoURL:   s.baseURL + "/" + key,
		ObjectKey:  key,
		Caption:    trimmed(in.Caption),
		IsPrimary:  len(existing) == 0,
		UploadedBy: actor.ID,
		CreatedAt:  s.now(),
	}
	if err := s.photos.Insert(ctx, photo); err != nil {
		return nil, fmt.Errorf("record photo: %w", err)
	}
	return photo, nil
}

func (s *PhotoService) List(ctx context.Context, issueID primitive.ObjectID) ([]models.IssuePhoto, error) {
	if _, err := s.issues.FindByID(ctx, issueID); err != nil {
		return nil, err
	}
	return s.photos.ListByIssue(ctx, issueID)
}
