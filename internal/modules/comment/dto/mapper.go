package dto

import (
	"anoa.com/casethreads/internal/entity"
	attachmentDto "anoa.com/casethreads/internal/modules/attachment/dto"
	"github.com/google/uuid"
)

func FromEntity(c *entity.Comment) CommentResponse {
	resp := CommentResponse{
		ID:       c.ID,
		CaseID:   c.CaseID,
		CaseType: string(c.CaseType),
		ParentID: c.ParentID,
		Author: AuthorResponse{
			ID:   c.AuthorID,
			Name: c.AuthorName,
			Role: c.AuthorRole,
		},
		Content:          c.Content,
		Attachments:      make([]attachmentDto.AttachmentResponse, 0, len(c.Attachments)),
		MentionedUserIDs: c.MentionedUserIDs,
		MentionedRoles:   c.MentionedRoles,
		MentionsAll:      c.MentionsAll,
		ResolvedAt:       c.ResolvedAt,
		ResolvedBy:       c.ResolvedBy,
		IsSystemComment:  c.IsSystemComment,
		IsEdited:         c.IsEdited,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
	for _, a := range c.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentDto.AttachmentResponse{
			ID:       a.ID,
			URL:      a.FileURL,
			FileName: a.FileName,
			MimeType: a.MimeType,
			Size:     a.Size,
		})
	}
	if resp.MentionedUserIDs == nil {
		resp.MentionedUserIDs = []uuid.UUID{}
	}
	if resp.MentionedRoles == nil {
		resp.MentionedRoles = []string{}
	}
	if root, err := c.AsRoot(); err == nil {
		status := string(root.Status())
		resp.Status = &status
	}
	return resp
}
