package mention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/pkg/apperror"
	"github.com/google/uuid"
)

// Directory is the part of the identity/profile store the resolver needs.
type Directory interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*entity.UserProfile, error)
	// ListUsersByRole returns the active users holding role.
	ListUsersByRole(ctx context.Context, role string) ([]entity.UserRef, error)
	ListActiveInternalUsers(ctx context.Context) ([]entity.UserRef, error)
	// FindActiveByDisplayName returns apperror.ErrNotFound when nobody matches.
	FindActiveByDisplayName(ctx context.Context, name string) (*entity.UserRef, error)
}

// Mentions is what gets stored on a comment.
type Mentions struct {
	UserIDs []uuid.UUID
	Roles   []string
	All     bool
}

func (m Mentions) Empty() bool {
	return len(m.UserIDs) == 0 && len(m.Roles) == 0 && !m.All
}

type Resolver struct {
	directory Directory
	logger    *slog.Logger
}

func NewResolver(directory Directory, logger *slog.Logger) *Resolver {
	return &Resolver{directory: directory, logger: logger}
}

// Resolve turns parsed tokens into the mention tags stored on a comment. Role and
// "all" tokens stay as tags and are expanded at dispatch time. The author is never
// included and unknown users are dropped silently.
func (r *Resolver) Resolve(ctx context.Context, authorID, caseID uuid.UUID, tokens []Token) (Mentions, error) {
	var (
		out       Mentions
		seenUsers = make(map[uuid.UUID]bool)
		seenRoles = make(map[string]bool)
	)

	addUser := func(id uuid.UUID) {
		if id == authorID || seenUsers[id] {
			return
		}
		seenUsers[id] = true
		out.UserIDs = append(out.UserIDs, id)
	}

	for _, tok := range tokens {
		switch tok.Kind {
		case KindAll:
			out.All = true

		case KindRole:
			if tok.Role != "" && !seenRoles[tok.Role] {
				seenRoles[tok.Role] = true
				out.Roles = append(out.Roles, tok.Role)
			}

		case KindUser:
			if tok.Explicit() {
				if tok.UserID == authorID {
					continue
				}
				if _, err := r.directory.ResolveUser(ctx, tok.UserID); err != nil {
					if errors.Is(err, apperror.ErrNotFound) {
						r.logger.Debug("dropping mention of unknown user", "user_id", tok.UserID, "case_id", caseID)
						continue
					}
					return Mentions{}, fmt.Errorf("resolve mention %s: %w", tok.UserID, err)
				}
				addUser(tok.UserID)
				continue
			}

			ref, err := r.matchName(ctx, tok.Name)
			if err != nil {
				return Mentions{}, err
			}
			if ref == nil {
				r.logger.Debug("unmatched name mention", "raw", tok.Raw, "case_id", caseID)
				continue
			}
			addUser(ref.ID)
		}
	}

	return out, nil
}

// matchName tries the longest word prefix first, so "@Anna Berg Please" finds "Anna Berg".
func (r *Resolver) matchName(ctx context.Context, name string) (*entity.UserRef, error) {
	words := strings.Fields(name)
	for n := len(words); n > 0; n-- {
		ref, err := r.directory.FindActiveByDisplayName(ctx, strings.Join(words[:n], " "))
		if err == nil {
			return ref, nil
		}
		if !errors.Is(err, apperror.ErrNotFound) {
			return nil, fmt.Errorf("match mention %q: %w", name, err)
		}
	}
	return nil, nil
}

// Recipients expands stored mention tags into concrete active user ids, author
// excluded, each user once, in order of first appearance.
func (r *Resolver) Recipients(ctx context.Context, authorID uuid.UUID, m Mentions) ([]uuid.UUID, error) {
	var (
		out  []uuid.UUID
		seen = map[uuid.UUID]bool{authorID: true}
	)

	for _, id := range m.UserIDs {
		if seen[id] {
			continue
		}
		profile, err := r.directory.ResolveUser(ctx, id)
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				seen[id] = true
				continue
			}
			return nil, fmt.Errorf("resolve recipient %s: %w", id, err)
		}
		seen[id] = true
		if profile.IsActive {
			out = append(out, id)
		}
	}

	add := func(refs []entity.UserRef) {
		for _, ref := range refs {
			if !seen[ref.ID] {
				seen[ref.ID] = true
				out = append(out, ref.ID)
			}
		}
	}

	for _, role := range m.Roles {
		refs, err := r.directory.ListUsersByRole(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("expand role %s: %w", role, err)
		}
		add(refs)
	}

	if m.All {
		refs, err := r.directory.ListActiveInternalUsers(ctx)
		if err != nil {
			return nil, fmt.Errorf("expand all: %w", err)
		}
		add(refs)
	}

	return out, nil
}

// FromComment reads the stored mention tags back off a comment.
func FromComment(c *entity.Comment) Mentions {
	return Mentions{UserIDs: c.MentionedUserIDs, Roles: c.MentionedRoles, All: c.MentionsAll}
}
