package service

import (
	"context"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/realtime"
)

// publish pushes a case event after the write has committed. Realtime is best
// effort: failures are logged and never surface to the caller.
func (s *commentService) publish(ctx context.Context, t realtime.EventType, c *entity.Comment, payload any) {
	ev, err := realtime.NewEvent(t, c.CaseID, payload)
	if err == nil {
		err = realtime.PublishCase(ctx, s.broker, ev)
	}
	if err != nil {
		s.logger.Warn("realtime publish failed", "type", t, "case_id", c.CaseID, "comment_id", c.ID, "error", err)
	}
}
