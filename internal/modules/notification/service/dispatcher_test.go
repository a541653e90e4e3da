package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"anoa.com/casethreads/internal/entity"
	commentRepo "anoa.com/casethreads/internal/modules/comment/repository"
	"anoa.com/casethreads/internal/modules/mention"
	"anoa.com/casethreads/internal/modules/notification/dto"
	notifRepo "anoa.com/casethreads/internal/modules/notification/repository"
	userRepo "anoa.com/casethreads/internal/modules/user/repository"
	"anoa.com/casethreads/internal/realtime"
	"anoa.com/casethreads/internal/testutil"
	"anoa.com/casethreads/pkg/apperror"
	"anoa.com/casethreads/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type dispatchFixture struct {
	db         *gorm.DB
	comments   commentRepo.CommentRepository
	notifs     notifRepo.NotificationRepository
	broker     *realtime.MemoryBroker
	dispatcher *Dispatcher

	caseID              uuid.UUID
	coord, tech1, tech2 *entity.User
}

func newDispatchFixture(t *testing.T) *dispatchFixture {
	t.Helper()

	db := testutil.NewDB(t)
	f := &dispatchFixture{
		db:       db,
		comments: commentRepo.NewCommentRepository(db),
		notifs:   notifRepo.NewNotificationRepository(db),
		broker:   realtime.NewMemoryBroker(),
		caseID:   uuid.New(),
		coord:    testutil.CreateUser(t, db, "Kim Koord", "kim", entity.RoleKoordinator),
		tech1:    testutil.CreateUser(t, db, "Tech One", "tech1", entity.RoleTechnician),
		tech2:    testutil.CreateUser(t, db, "Tech Two", "tech2", entity.RoleTechnician),
	}
	f.dispatcher = NewDispatcher(f.comments, userRepo.NewUserRepository(db), f.notifs, f.broker, logger.Discard())
	return f
}

func (f *dispatchFixture) comment(t *testing.T, author *entity.User, parent *entity.Comment, content string, mentioned ...uuid.UUID) *entity.Comment {
	t.Helper()

	c := &entity.Comment{
		CaseID:           f.caseID,
		CaseType:         entity.CaseTypePrivate,
		AuthorID:         author.ID,
		AuthorName:       author.DisplayName(),
		AuthorRole:       author.Role.Name,
		Content:          content,
		MentionedUserIDs: mentioned,
	}
	if parent != nil {
		c.ParentID = &parent.ID
	} else {
		open := entity.StatusOpen
		c.Status = &open
	}
	require.NoError(t, f.comments.Create(context.Background(), c))
	return c
}

func (f *dispatchFixture) inbox(t *testing.T, userID uuid.UUID) []entity.Notification {
	t.Helper()
	rows, err := f.notifs.GetByUserID(context.Background(), userID, 100, 0)
	require.NoError(t, err)
	return rows
}

func TestDispatch_MentionCreatesSingleNotification(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	userEvents := testutil.Record(t, f.broker, realtime.UserChannel(f.tech1.ID))
	caseEvents := testutil.Record(t, f.broker, realtime.CaseChannel(f.caseID))

	c := f.comment(t, f.coord, nil, "Please check "+mention.Markup("Tech One", f.tech1.ID), f.tech1.ID)

	require.NoError(t, f.dispatcher.Dispatch(ctx, c))
	require.NoError(t, f.dispatcher.Dispatch(ctx, c))

	inbox := f.inbox(t, f.tech1.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, c.ID, inbox[0].CommentID)
	assert.Equal(t, "Kim Koord mentioned you", inbox[0].Title)
	assert.Equal(t, "Please check @Tech One", inbox[0].Preview)
	assert.Equal(t, "Kim Koord", inbox[0].SenderName)
	assert.False(t, inbox[0].IsRead)

	assert.Empty(t, f.inbox(t, f.coord.ID))
	assert.Empty(t, f.inbox(t, f.tech2.ID))

	userEvents.Flush(t, f.broker, realtime.UserChannel(f.tech1.ID))
	pushed := userEvents.OfType(realtime.EventNotificationCreated)
	require.Len(t, pushed, 1)

	var payload dto.NotificationResponse
	require.NoError(t, json.Unmarshal(pushed[0].Payload, &payload))
	assert.Equal(t, inbox[0].ID, payload.ID)

	caseEvents.Flush(t, f.broker, realtime.CaseChannel(f.caseID))
	assert.Len(t, caseEvents.OfType(realtime.EventCommentCreated), 2)
}

func TestDispatch_ReplyNotifiesParentAuthor(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	root := f.comment(t, f.coord, nil, "Rat traps in the basement")
	reply := f.comment(t, f.tech1, root, "Done, two caught")

	require.NoError(t, f.dispatcher.Dispatch(ctx, reply))

	inbox := f.inbox(t, f.coord.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Tech One replied", inbox[0].Title)
	assert.Empty(t, f.inbox(t, f.tech1.ID))
}

func TestDispatch_MentionedParentAuthorGetsMentionTitle(t *testing.T) {
	f := newDispatchFixture(t)

	root := f.comment(t, f.coord, nil, "Status?")
	reply := f.comment(t, f.tech1, root, mention.Markup("Kim Koord", f.coord.ID)+" all good", f.coord.ID)

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), reply))

	inbox := f.inbox(t, f.coord.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Tech One mentioned you", inbox[0].Title)
}

func TestDispatch_OwnReplyAndInactiveParentAuthor(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	root := f.comment(t, f.tech2, nil, "Wasp nest")
	own := f.comment(t, f.tech2, root, "Follow-up from me")
	require.NoError(t, f.dispatcher.Dispatch(ctx, own))
	assert.Empty(t, f.inbox(t, f.tech2.ID))

	testutil.Deactivate(t, f.db, f.tech2.ID)
	reply := f.comment(t, f.tech1, root, "Took over")
	require.NoError(t, f.dispatcher.Dispatch(ctx, reply))
	assert.Empty(t, f.inbox(t, f.tech2.ID))
}

func TestDispatch_RoleMentionExpandsWithoutAuthor(t *testing.T) {
	f := newDispatchFixture(t)

	open := entity.StatusOpen
	c := &entity.Comment{
		CaseID:         f.caseID,
		CaseType:       entity.CaseTypeBusiness,
		AuthorID:       f.tech1.ID,
		AuthorName:     "Tech One",
		AuthorRole:     entity.RoleTechnician,
		Content:        "@tekniker who is free tomorrow?",
		MentionedRoles: []string{entity.RoleTechnician},
		Status:         &open,
	}
	require.NoError(t, f.comments.Create(context.Background(), c))

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), c))

	assert.Len(t, f.inbox(t, f.tech2.ID), 1)
	assert.Empty(t, f.inbox(t, f.tech1.ID))
	assert.Empty(t, f.inbox(t, f.coord.ID))
}

func TestDispatch_SystemCommentOnlyPublishesCaseEvent(t *testing.T) {
	f := newDispatchFixture(t)
	caseEvents := testutil.Record(t, f.broker, realtime.CaseChannel(f.caseID))

	root := f.comment(t, f.tech1, nil, "Ants")
	system := &entity.Comment{
		CaseID:          f.caseID,
		CaseType:        entity.CaseTypePrivate,
		ParentID:        &root.ID,
		AuthorID:        f.coord.ID,
		AuthorName:      "Kim Koord",
		AuthorRole:      entity.RoleKoordinator,
		Content:         "Kim Koord marked the ticket as resolved",
		IsSystemComment: true,
	}
	require.NoError(t, f.comments.Create(context.Background(), system))

	require.NoError(t, f.dispatcher.Dispatch(context.Background(), system))

	assert.Empty(t, f.inbox(t, f.tech1.ID))
	caseEvents.Flush(t, f.broker, realtime.CaseChannel(f.caseID))
	assert.Len(t, caseEvents.OfType(realtime.EventCommentCreated), 1)
}

func TestDispatchByID_DeletedCommentIsDone(t *testing.T) {
	f := newDispatchFixture(t)
	assert.NoError(t, f.dispatcher.DispatchByID(context.Background(), uuid.New()))
}

// flakyInbox fails inserts for one recipient and can run a hook before each insert.
type flakyInbox struct {
	notifRepo.NotificationRepository
	failFor uuid.UUID
	before  func()
}

func (r *flakyInbox) InsertIfAbsent(ctx context.Context, n *entity.Notification) (bool, error) {
	if r.before != nil {
		r.before()
	}
	if n.RecipientUserID == r.failFor {
		return false, fmt.Errorf("%w: connection refused", apperror.ErrStoreUnavailable)
	}
	return r.NotificationRepository.InsertIfAbsent(ctx, n)
}

type downBroker struct {
	realtime.Broker
}

func (downBroker) Publish(context.Context, string, realtime.Event) error {
	return errors.New("redis: connection pool timeout")
}

func (f *dispatchFixture) dispatcherWith(repo notifRepo.NotificationRepository, broker realtime.Broker) *Dispatcher {
	return NewDispatcher(f.comments, userRepo.NewUserRepository(f.db), repo, broker, logger.Discard())
}

func TestDispatch_OneFailedInsertDoesNotStarveOthers(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	c := f.comment(t, f.coord, nil, "Both of you please", f.tech1.ID, f.tech2.ID)

	d := f.dispatcherWith(&flakyInbox{NotificationRepository: f.notifs, failFor: f.tech1.ID}, f.broker)
	err := d.Dispatch(ctx, c)
	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err), "got %v", err)

	assert.Empty(t, f.inbox(t, f.tech1.ID))
	assert.Len(t, f.inbox(t, f.tech2.ID), 1)

	// The retry fills the gap without duplicating the delivered row.
	require.NoError(t, f.dispatcher.Dispatch(ctx, c))
	assert.Len(t, f.inbox(t, f.tech1.ID), 1)
	assert.Len(t, f.inbox(t, f.tech2.ID), 1)
}

func TestDispatch_BrokerOutageStillPersistsNotification(t *testing.T) {
	f := newDispatchFixture(t)

	c := f.comment(t, f.coord, nil, "Check "+mention.Markup("Tech One", f.tech1.ID), f.tech1.ID)

	d := f.dispatcherWith(f.notifs, downBroker{Broker: f.broker})
	require.NoError(t, d.Dispatch(context.Background(), c))

	inbox := f.inbox(t, f.tech1.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, c.ID, inbox[0].CommentID)
}

func TestDispatch_CommentDeletedMidDispatch(t *testing.T) {
	f := newDispatchFixture(t)
	ctx := context.Background()

	c := f.comment(t, f.coord, nil, "Soon gone", f.tech1.ID, f.tech2.ID)

	inbox := &flakyInbox{NotificationRepository: f.notifs}
	inbox.before = func() {
		inbox.before = nil
		_, err := f.comments.DeleteCascade(ctx, c.ID)
		require.NoError(t, err)
	}

	require.NoError(t, f.dispatcherWith(inbox, f.broker).Dispatch(ctx, c))
	assert.Empty(t, f.inbox(t, f.tech1.ID))
	assert.Empty(t, f.inbox(t, f.tech2.ID))
}
