package connections

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/linkup/backend/internal/auth"
	"github.com/linkup/backend/internal/models"
	"github.com/linkup/backend/internal/repositories"
)

type inMemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]models.User
}

func newInMemoryDirectory(usernames ...string) *inMemoryDirectory {
	d := &inMemoryDirectory{users: make(map[string]models.User)}
	for _, name := range usernames {
		d.users[name] = models.User{
			ID:        uuid.NewString(),
			Username:  name,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
	}
	return d
}

func (d *inMemoryDirectory) FindByUsername(_ context.Context, username string) (models.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	user, ok := d.users[username]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (d *inMemoryDirectory) UsernamesExcept(_ context.Context, userID string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []string
	for _, user := range d.users {
		if user.ID != userID {
			out = append(out, user.Username)
		}
	}
	return out, nil
}

func (d *inMemoryDirectory) identity(t *testing.T, username string) auth.Identity {
	t.Helper()
	user, err := d.FindByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("unknown test user %q", username)
	}
	return auth.Identity{ID: user.ID, Username: user.Username}
}

type pairKey struct {
	sender   string
	receiver string
}

// inMemoryConnectionStore mirrors the Postgres store's atomicity: every
// mutation is a single check-and-write under one lock.
type inMemoryConnectionStore struct {
	mu        sync.Mutex
	records   map[pairKey]models.ConnectionRequest
	usersByID map[string]string
}

func newInMemoryConnectionStore(dir *inMemoryDirectory) *inMemoryConnectionStore {
	byID := make(map[string]string)
	for _, user := range dir.users {
		byID[user.ID] = user.Username
	}
	return &inMemoryConnectionStore{
		records:   make(map[pairKey]models.ConnectionRequest),
		usersByID: byID,
	}
}

func (s *inMemoryConnectionStore) Create(_ context.Context, request models.ConnectionRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{sender: request.Sender, receiver: request.Receiver}
	if _, exists := s.records[key]; exists {
		return repositories.ErrConflict
	}
	s.records[key] = request
	return nil
}

func (s *inMemoryConnectionStore) UpdateStatus(_ context.Context, senderID, receiverID, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{sender: senderID, receiver: receiverID}
	record, ok := s.records[key]
	if !ok || record.Status != from {
		return repositories.ErrNotFound
	}
	record.Status = to
	record.UpdatedAt = time.Now().UTC()
	s.records[key] = record
	return nil
}

func (s *inMemoryConnectionStore) Delete(_ context.Context, senderID, receiverID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{sender: senderID, receiver: receiverID}
	record, ok := s.records[key]
	if !ok || record.Status != status {
		return repositories.ErrNotFound
	}
	delete(s.records, key)
	return nil
}

func (s *inMemoryConnectionStore) SentPending(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, record := range s.records {
		if record.Sender == userID && record.Status == models.StatusPending {
			out = append(out, s.usersByID[record.Receiver])
		}
	}
	return out, nil
}

func (s *inMemoryConnectionStore) ReceivedPending(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, record := range s.records {
		if record.Receiver == userID && record.Status == models.StatusPending {
			out = append(out, s.usersByID[record.Sender])
		}
	}
	return out, nil
}

func (s *inMemoryConnectionStore) MutualConnections(_ context.Context, userID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, record := range s.records {
		if record.Status != models.StatusApproved {
			continue
		}
		switch userID {
		case record.Sender:
			out = append(out, s.usersByID[record.Receiver])
		case record.Receiver:
			out = append(out, s.usersByID[record.Sender])
		}
	}
	return out, nil
}

func (s *inMemoryConnectionStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type capturedEvent struct {
	userID string
	event  any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (n *recordingNotifier) Notify(_ context.Context, userID string, event any) {
	n.mu.Lock()
	n.events = append(n.events, capturedEvent{userID: userID, event: event})
	n.mu.Unlock()
}

func (n *recordingNotifier) eventsFor(userID string) []any {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []any
	for _, e := range n.events {
		if e.userID == userID {
			out = append(out, e.event)
		}
	}
	return out
}

func newTestService(usernames ...string) (*Service, *inMemoryDirectory, *inMemoryConnectionStore, *recordingNotifier) {
	dir := newInMemoryDirectory(usernames...)
	store := newInMemoryConnectionStore(dir)
	notifier := &recordingNotifier{}
	return NewService(dir, store, notifier), dir, store, notifier
}

func TestServiceSendCreatesPendingAndNotifies(t *testing.T) {
	svc, dir, store, notifier := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")
	bob := dir.identity(t, "bob")

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("expected 1 stored record, got %d", store.count())
	}

	views, err := svc.Views(context.Background(), bob)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(views.PendingRequests) != 1 || views.PendingRequests[0] != "alice" {
		t.Fatalf("expected bob's pending requests to be [alice], got %v", views.PendingRequests)
	}

	aliceViews, err := svc.Views(context.Background(), alice)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(aliceViews.SentRequests) != 1 || aliceViews.SentRequests[0] != "bob" {
		t.Fatalf("expected alice's sent requests to be [bob], got %v", aliceViews.SentRequests)
	}

	bobEvents := notifier.eventsFor(bob.ID)
	if len(bobEvents) != 1 {
		t.Fatalf("expected 1 event for bob, got %d", len(bobEvents))
	}
	notification, ok := bobEvents[0].(NotificationEvent)
	if !ok {
		t.Fatalf("expected NotificationEvent, got %T", bobEvents[0])
	}
	if notification.Action != "refresh_users" {
		t.Fatalf("expected refresh_users action, got %q", notification.Action)
	}
}

func TestServiceSendSelfRefreshesCaller(t *testing.T) {
	svc, dir, _, notifier := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	aliceEvents := notifier.eventsFor(alice.ID)
	if len(aliceEvents) != 1 {
		t.Fatalf("expected 1 self-refresh event for alice, got %d", len(aliceEvents))
	}
	update, ok := aliceEvents[0].(UpdateUsersEvent)
	if !ok {
		t.Fatalf("expected UpdateUsersEvent, got %T", aliceEvents[0])
	}
	if update.Type != "update_users" {
		t.Fatalf("expected update_users frame, got %q", update.Type)
	}
	if len(update.SentRequests) != 1 || update.SentRequests[0] != "bob" {
		t.Fatalf("expected refreshed sent requests [bob], got %v", update.SentRequests)
	}
}

func TestServiceSendFailures(t *testing.T) {
	svc, dir, store, notifier := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")

	if err := svc.Send(context.Background(), alice, "alice"); !errors.Is(err, ErrSelfRequest) {
		t.Fatalf("expected ErrSelfRequest, got %v", err)
	}

	if err := svc.Send(context.Background(), alice, "nobody"); !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("expected ErrTargetNotFound, got %v", err)
	}

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := svc.Send(context.Background(), alice, "bob"); !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	if store.count() != 1 {
		t.Fatalf("expected exactly 1 record after duplicate send, got %d", store.count())
	}

	// Failures never notify the peer.
	bob := dir.identity(t, "bob")
	if got := len(notifier.eventsFor(bob.ID)); got != 1 {
		t.Fatalf("expected 1 notification for bob, got %d", got)
	}
}

func TestServiceConcurrentSendYieldsOneWinner(t *testing.T) {
	svc, dir, store, _ := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")

	const attempts = 2
	results := make(chan error, attempts)
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			results <- svc.Send(context.Background(), alice, "bob")
		}()
	}
	start.Done()

	var successes, duplicates int
	for i := 0; i < attempts; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case errors.Is(err, ErrDuplicateRequest):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if successes != 1 || duplicates != 1 {
		t.Fatalf("expected 1 success and 1 duplicate, got %d and %d", successes, duplicates)
	}
	if store.count() != 1 {
		t.Fatalf("expected exactly 1 stored record, got %d", store.count())
	}
}

func TestServiceApproveCreatesMutualConnection(t *testing.T) {
	svc, dir, _, notifier := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")
	bob := dir.identity(t, "bob")

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := svc.Approve(context.Background(), bob, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	aliceViews, err := svc.Views(context.Background(), alice)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(aliceViews.MutualConnections) != 1 || aliceViews.MutualConnections[0] != "bob" {
		t.Fatalf("expected alice's mutuals [bob], got %v", aliceViews.MutualConnections)
	}
	if len(aliceViews.SentRequests) != 0 {
		t.Fatalf("expected no remaining sent requests, got %v", aliceViews.SentRequests)
	}

	bobViews, err := svc.Views(context.Background(), bob)
	if err != nil {
		t.Fatalf("views: %v", err)
	}
	if len(bobViews.MutualConnections) != 1 || bobViews.MutualConnections[0] != "alice" {
		t.Fatalf("expected bob's mutuals [alice], got %v", bobViews.MutualConnections)
	}
	if len(bobViews.PendingRequests) != 0 {
		t.Fatalf("expected no remaining pending requests, got %v", bobViews.PendingRequests)
	}

	// send notification + approval notification for alice's sessions.
	aliceEvents := notifier.eventsFor(alice.ID)
	found := false
	for _, event := range aliceEvents {
		if n, ok := event.(NotificationEvent); ok && n.Message == "bob accepted your connection request" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected approval notification for alice, events: %v", aliceEvents)
	}
}

func TestServiceApproveRequiresPendingRecord(t *testing.T) {
	svc, dir, _, _ := newTestService("alice", "bob")
	bob := dir.identity(t, "bob")

	if err := svc.Approve(context.Background(), bob, "alice"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}

	if err := svc.Approve(context.Background(), bob, "nobody"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound for unknown sender, got %v", err)
	}
}

func TestServiceApproveIsNotRepeatable(t *testing.T) {
	svc, dir, _, _ := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")
	bob := dir.identity(t, "bob")

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.Approve(context.Background(), bob, "alice"); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := svc.Approve(context.Background(), bob, "alice"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound approving twice, got %v", err)
	}
}

func TestServiceRejectDeletesAndAllowsResend(t *testing.T) {
	svc, dir, store, notifier := newTestService("alice", "bob")
	alice := dir.identity(t, "alice")
	bob := dir.identity(t, "bob")

	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := svc.Reject(context.Background(), bob, "alice"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if store.count() != 0 {
		t.Fatalf("expected no records after reject, got %d", store.count())
	}

	found := false
	for _, event := range notifier.eventsFor(alice.ID) {
		if n, ok := event.(NotificationEvent); ok && n.Message == "bob rejected your connection request" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected rejection notification for alice")
	}

	// No ghost uniqueness violation: the pair can be re-sent.
	if err := svc.Send(context.Background(), alice, "bob"); err != nil {
		t.Fatalf("re-send after reject: %v", err)
	}
}

func TestServiceRejectRequiresPendingRecord(t *testing.T) {
	svc, dir, store, _ := newTestService("alice", "bob")
	bob := dir.identity(t, "bob")

	if err := svc.Reject(context.Background(), bob, "alice"); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if store.count() != 0 {
		t.Fatalf("expected state unchanged, got %d records", store.count())
	}
}

func TestServiceViewsAreNeverNil(t *testing.T) {
	svc, dir, _, _ := newTestService("alice")
	alice := dir.identity(t, "alice")

	views, err := svc.Views(context.Background(), alice)
	if err != nil {
		t.Fatalf("views: %v", err)
	}

	if views.Users == nil || views.SentRequests == nil || views.PendingRequests == nil || views.MutualConnections == nil {
		t.Fatalf("expected empty slices, got %+v", views)
	}
}
