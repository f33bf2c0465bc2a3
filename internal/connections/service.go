package connections

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/logging"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/repositories"
)

// UserDirectory resolves user handles and enumerates known users.
type UserDirectory interface {
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UsernamesExcept(ctx context.Context, userID string) ([]string, error)
}

// ConnectionStore captures the persistence operations the service needs.
type ConnectionStore interface {
	Create(ctx context.Context, request models.ConnectionRequest) error
	UpdateStatus(ctx context.Context, senderID, receiverID, from, to string) error
	Delete(ctx context.Context, senderID, receiverID, status string) error
	SentPending(ctx context.Context, userID string) ([]string, error)
	ReceivedPending(ctx context.Context, userID string) ([]string, error)
	MutualConnections(ctx context.Context, userID string) ([]string, error)
}

// Notifier pushes an event to every live session of the given user.
// Delivery is best effort; implementations never fail the caller.
type Notifier interface {
	Notify(ctx context.Context, userID string, event any)
}

// Service implements the connection-request state machine. Both the live
// protocol and the HTTP endpoints go through it, so all validation and
// fan-out live here.
type Service struct {
	users    UserDirectory
	store    ConnectionStore
	notifier Notifier
}

// NewService wires the state machine with its collaborators.
func NewService(users UserDirectory, store ConnectionStore, notifier Notifier) *Service {
	if users == nil || store == nil || notifier == nil {
		panic("connections: all collaborators must be provided")
	}
	return &Service{users: users, store: store, notifier: notifier}
}

// Send creates a pending request from the caller to the named user, notifies
// the receiver's live sessions, and re-pushes the caller's own views.
func (s *Service) Send(ctx context.Context, caller auth.Identity, receiverUsername string) error {
	ctx, span := logging.StartSpan(ctx, "connections.send")
	defer span.End()

	if receiverUsername == caller.Username {
		return ErrSelfRequest
	}

	receiver, err := s.users.FindByUsername(ctx, receiverUsername)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrTargetNotFound
		}
		return fmt.Errorf("resolve receiver %q: %w", receiverUsername, err)
	}
	if receiver.ID == caller.ID {
		return ErrSelfRequest
	}

	now := time.Now().UTC()
	request := models.ConnectionRequest{
		ID:        uuid.NewString(),
		Sender:    caller.ID,
		Receiver:  receiver.ID,
		Status:    models.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.Create(ctx, request); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return ErrDuplicateRequest
		}
		return fmt.Errorf("create connection request: %w", err)
	}

	logging.FromContext(ctx).Info("connection request created",
		"sender", caller.Username, "receiver", receiverUsername)

	s.notifier.Notify(ctx, receiver.ID, Notification("New connection request from "+caller.Username))
	s.refreshCaller(ctx, caller)

	return nil
}

// Approve transitions the pending request from the named sender to the caller
// into the approved state and notifies the sender.
func (s *Service) Approve(ctx context.Context, caller auth.Identity, senderUsername string) error {
	ctx, span := logging.StartSpan(ctx, "connections.approve")
	defer span.End()

	sender, err := s.resolveSender(ctx, senderUsername)
	if err != nil {
		return err
	}

	if err := s.store.UpdateStatus(ctx, sender.ID, caller.ID, models.StatusPending, models.StatusApproved); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("approve connection request: %w", err)
	}

	logging.FromContext(ctx).Info("connection request approved",
		"sender", senderUsername, "receiver", caller.Username)

	s.notifier.Notify(ctx, sender.ID, Notification(caller.Username+" accepted your connection request"))
	s.refreshCaller(ctx, caller)

	return nil
}

// Reject deletes the pending request from the named sender to the caller and
// notifies the sender. A later Send for the same pair succeeds again.
func (s *Service) Reject(ctx context.Context, caller auth.Identity, senderUsername string) error {
	ctx, span := logging.StartSpan(ctx, "connections.reject")
	defer span.End()

	sender, err := s.resolveSender(ctx, senderUsername)
	if err != nil {
		return err
	}

	if err := s.store.Delete(ctx, sender.ID, caller.ID, models.StatusPending); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrRequestNotFound
		}
		return fmt.Errorf("reject connection request: %w", err)
	}

	logging.FromContext(ctx).Info("connection request rejected",
		"sender", senderUsername, "receiver", caller.Username)

	s.notifier.Notify(ctx, sender.ID, Notification(caller.Username+" rejected your connection request"))
	s.refreshCaller(ctx, caller)

	return nil
}

// Views computes the caller's four derived lists. Pure read, no notifications.
func (s *Service) Views(ctx context.Context, caller auth.Identity) (models.UserViews, error) {
	users, err := s.users.UsernamesExcept(ctx, caller.ID)
	if err != nil {
		return models.UserViews{}, fmt.Errorf("list users: %w", err)
	}

	sent, err := s.store.SentPending(ctx, caller.ID)
	if err != nil {
		return models.UserViews{}, fmt.Errorf("list sent requests: %w", err)
	}

	received, err := s.store.ReceivedPending(ctx, caller.ID)
	if err != nil {
		return models.UserViews{}, fmt.Errorf("list pending requests: %w", err)
	}

	mutual, err := s.store.MutualConnections(ctx, caller.ID)
	if err != nil {
		return models.UserViews{}, fmt.Errorf("list mutual connections: %w", err)
	}

	return models.UserViews{
		Users:             orEmpty(users),
		SentRequests:      orEmpty(sent),
		PendingRequests:   orEmpty(received),
		MutualConnections: orEmpty(mutual),
	}, nil
}

// resolveSender maps an unknown sender handle to ErrRequestNotFound: if the
// user does not exist, no pending request from them can either.
func (s *Service) resolveSender(ctx context.Context, senderUsername string) (models.User, error) {
	sender, err := s.users.FindByUsername(ctx, senderUsername)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.User{}, ErrRequestNotFound
		}
		return models.User{}, fmt.Errorf("resolve sender %q: %w", senderUsername, err)
	}
	return sender, nil
}

// refreshCaller pushes the caller's recomputed views to their own live
// sessions after a successful mutation. The mutation itself has already
// committed, so a failure here is logged rather than surfaced.
func (s *Service) refreshCaller(ctx context.Context, caller auth.Identity) {
	views, err := s.Views(ctx, caller)
	if err != nil {
		logging.FromContext(ctx).Error("recompute views after mutation", "user", caller.Username, "error", err)
		return
	}
	s.notifier.Notify(ctx, caller.ID, UpdateUsers(views))
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
