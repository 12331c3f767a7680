package complaints

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/uniresolve/uniresolve/pkg/uniresolve/access"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/activity"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/apperr"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/files"
	"github.com/uniresolve/uniresolve/pkg/uniresolve/models"
)

// MessageInput is a new message on a complaint
type MessageInput struct {
	Content    string `json:"content" binding:"required,min=1,max=5000"`
	IsInternal bool   `json:"is_internal"`
}

// AddMessage posts a message. Only staff may post internal messages, and a
// student cannot post once their complaint is resolved or closed.
func (s *Service) AddMessage(ctx context.Context, actor *models.User, id uint, input MessageInput) (*models.Message, error) {
	if err := s.check(input); err != nil {
		return nil, err
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apperr.Invalid("content", "is required")
	}

	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanMutate(actor, complaint) {
		return nil, apperr.Forbidden("This complaint can no longer be modified")
	}
	if input.IsInternal && !access.CanPostInternal(actor) {
		return nil, apperr.Forbidden("Only staff can post internal messages")
	}

	msg := models.Message{
		ComplaintID: complaint.ID,
		SenderID:    actor.ID,
		Content:     content,
		IsInternal:  input.IsInternal,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		desc := "Message added"
		if msg.IsInternal {
			desc = "Internal note added"
		}
		return activity.Record(tx, activity.Entry{
			ComplaintID: complaint.ID,
			UserID:      actor.ID,
			Action:      models.ActionMessageAdded,
			Description: desc,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}

	msg.Sender = *actor
	s.notifier.MessageAdded(ctx, complaint, actor, &msg)
	return &msg, nil
}

// ListMessages returns the conversation oldest first. Internal messages are
// included only when asked for and only for staff.
func (s *Service) ListMessages(ctx context.Context, actor *models.User, id uint, includeInternal bool) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}

	query := db.Preload("Sender").Where("complaint_id = ?", complaint.ID)
	if !includeInternal || !access.CanViewInternal(actor) {
		query = query.Where("is_internal = ?", false)
	}

	var messages []models.Message
	if err := query.Order("created_at ASC, id ASC").Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return access.FilterMessages(actor, messages), nil
}

// Upload describes an incoming attachment
type Upload struct {
	Filename    string
	Size        int64
	ContentType string
	Body        io.Reader
}

// AddAttachment stores a file against a complaint. If the file store fails
// nothing is recorded.
func (s *Service) AddAttachment(ctx context.Context, actor *models.User, id uint, up Upload) (*models.Attachment, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}
	if !access.CanMutate(actor, complaint) {
		return nil, apperr.Forbidden("This complaint can no longer be modified")
	}
	if err := files.Validate(up.Filename, up.Size); err != nil {
		return nil, err
	}
	if s.files == nil {
		return nil, &apperr.CollaboratorError{Collaborator: "file store", Err: fmt.Errorf("not configured")}
	}

	detected, matches, body, err := files.Sniff(up.Body, up.Filename)
	if err != nil {
		return nil, apperr.Invalid("file", "could not be read")
	}
	data, err := io.ReadAll(io.LimitReader(body, files.MaxFileSize+1))
	if err != nil {
		return nil, apperr.Invalid("file", "could not be read")
	}
	if err := files.Validate(up.Filename, int64(len(data))); err != nil {
		return nil, err
	}
	if !matches {
		s.logger.Warn().
			Uint("complaint_id", complaint.ID).
			Str("filename", up.Filename).
			Str("detected", detected).
			Msg("attachment content does not match its extension")
	}

	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = detected
	}

	stored := files.NewFilename(up.Filename)
	path, err := s.files.Save(ctx, files.Key(complaint.ID, stored), bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		return nil, &apperr.CollaboratorError{Collaborator: "file store", Err: err}
	}

	att := models.Attachment{
		ComplaintID:      complaint.ID,
		UploadedByID:     actor.ID,
		Filename:         stored,
		OriginalFilename: up.Filename,
		FilePath:         path,
		FileSize:         int64(len(data)),
		MimeType:         contentType,
	}
	err = db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&att).Error; err != nil {
			return err
		}
		return activity.Record(tx, activity.Entry{
			ComplaintID: complaint.ID,
			UserID:      actor.ID,
			Action:      models.ActionFileUploaded,
			Description: fmt.Sprintf("File uploaded: %s", up.Filename),
		})
	})
	if err != nil {
		if _, derr := s.files.Delete(ctx, path); derr != nil {
			s.logger.Warn().Err(derr).Str("path", path).Msg("remove orphaned attachment")
		}
		return nil, fmt.Errorf("record attachment: %w", err)
	}
	return &att, nil
}

// ListAttachments returns a complaint's attachments, oldest first.
func (s *Service) ListAttachments(ctx context.Context, actor *models.User, id uint) ([]models.Attachment, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, err
	}

	var atts []models.Attachment
	if err := db.Where("complaint_id = ?", complaint.ID).Order("id ASC").Find(&atts).Error; err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return atts, nil
}

// OpenAttachment returns an attachment and its content. The caller closes
// the reader.
func (s *Service) OpenAttachment(ctx context.Context, actor *models.User, id, attachmentID uint) (*models.Attachment, io.ReadCloser, error) {
	db := s.db.WithContext(ctx)
	complaint, err := s.load(db, id)
	if err != nil {
		return nil, nil, err
	}
	if err := visible(actor, complaint); err != nil {
		return nil, nil, err
	}

	var att models.Attachment
	if err := db.Where("id = ? AND complaint_id = ?", attachmentID, complaint.ID).First(&att).Error; err != nil {
		return nil, nil, apperr.FromDB(err, "Attachment")
	}
	if s.files == nil {
		return nil, nil, &apperr.CollaboratorError{Collaborator: "file store", Err: fmt.Errorf("not configured")}
	}
	rc, err := s.files.Open(ctx, att.FilePath)
	if err != nil {
		return nil, nil, &apperr.CollaboratorError{Collaborator: "file store", Err: err}
	}
	return &att, rc, nil
}
