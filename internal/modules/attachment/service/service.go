package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/modules/attachment/dto"
	"anoa.com/casethreads/internal/modules/attachment/repository"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/storage"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

const (
	MaxSize      = 5 << 20
	UploadFolder = "case_attachments"
	OrphanMaxAge = 24 * time.Hour
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"image/heic":      true,
	"application/pdf": true,
}

// Validate checks one attachment's declared metadata. It never touches a store.
func Validate(mimeType string, size int64) error {
	if size > MaxSize {
		return apperror.ErrAttachmentTooLarge
	}
	if !allowedMimeTypes[normalize(mimeType)] {
		return fmt.Errorf("%w: %s", apperror.ErrUnsupportedAttachment, mimeType)
	}
	return nil
}

// ValidateAll checks every input and returns the first failure.
func ValidateAll(inputs []dto.AttachmentInput) error {
	for _, in := range inputs {
		if err := Validate(in.MimeType, in.Size); err != nil {
			return err
		}
	}
	return nil
}

// ToEntities converts validated inputs to unsaved rows in request order.
func ToEntities(inputs []dto.AttachmentInput) []entity.Attachment {
	out := make([]entity.Attachment, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, entity.Attachment{
			FileURL:  in.URL,
			FileName: in.FileName,
			MimeType: normalize(in.MimeType),
			Size:     in.Size,
		})
	}
	return out
}

func ToResponses(items []entity.Attachment) []dto.AttachmentResponse {
	out := make([]dto.AttachmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, dto.AttachmentResponse{
			ID:       a.ID,
			URL:      a.FileURL,
			FileName: a.FileName,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	return out
}

func normalize(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}

type AttachmentService interface {
	UploadAttachment(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (*dto.AttachmentResponse, error)
	CleanupOrphanAttachments(ctx context.Context) error
}

type attachmentService struct {
	attachmentRepo repository.AttachmentRepository
	fileStorage    storage.BlobStore
	logger         *slog.Logger
	now            func() time.Time
}

func NewAttachmentService(attachmentRepo repository.AttachmentRepository, fileStorage storage.BlobStore, logger *slog.Logger) AttachmentService {
	return &attachmentService{
		attachmentRepo: attachmentRepo,
		fileStorage:    fileStorage,
		logger:         logger,
		now:            time.Now,
	}
}

// UploadAttachment validates the file by its content, not the client's header,
// stores it and records it as an unclaimed upload.
func (s *attachmentService) UploadAttachment(ctx context.Context, userID uuid.UUID, file *multipart.FileHeader) (*dto.AttachmentResponse, error) {
	if file.Size > MaxSize {
		return nil, apperror.ErrAttachmentTooLarge
	}

	f, err := file.Open()
	if err != nil {
		return nil, apperror.New(http.StatusBadRequest, "cannot read uploaded file", apperror.ErrBadRequest)
	}
	defer f.Close()

	detected, err := mimetype.DetectReader(f)
	if err != nil {
		return nil, apperror.New(http.StatusBadRequest, "cannot read uploaded file", apperror.ErrBadRequest)
	}
	mimeType := normalize(detected.String())
	if err := Validate(mimeType, file.Size); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind upload: %w", err)
	}

	url, err := s.fileStorage.Upload(ctx, f, UploadFolder, file.Filename, mimeType)
	if err != nil {
		return nil, err
	}

	attachment := &entity.Attachment{
		UserID:   userID,
		FileURL:  url,
		FileName: file.Filename,
		MimeType: mimeType,
		Size:     file.Size,
		// CommentID stays nil until a comment claims it
	}

	if err := s.attachmentRepo.Create(ctx, attachment); err != nil {
		return nil, err
	}

	return &ToResponses([]entity.Attachment{*attachment})[0], nil
}

func (s *attachmentService) CleanupOrphanAttachments(ctx context.Context) error {
	cutoff := s.now().Add(-OrphanMaxAge)

	orphans, err := s.attachmentRepo.FindOrphans(ctx, cutoff)
	if err != nil {
		return err
	}

	for _, orphan := range orphans {
		if err := s.fileStorage.Delete(ctx, orphan.FileURL); err != nil {
			s.logger.Warn("deleting orphan blob", "attachment_id", orphan.ID, "error", err)
		}

		// If this fails the next run picks it up again.
		if err := s.attachmentRepo.Delete(ctx, orphan.ID); err != nil {
			s.logger.Warn("deleting orphan row", "attachment_id", orphan.ID, "error", err)
		}
	}

	if len(orphans) > 0 {
		s.logger.Info("orphan attachments removed", "count", len(orphans))
	}
	return nil
}
