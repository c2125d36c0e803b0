package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/store"
)

// fakeRecordStore is an in-memory RecordStore for orchestrator tests.
type fakeRecordStore struct {
	mu      sync.Mutex
	users   map[uint]models.User
	habits  map[string]models.Habit
	unlocks map[uint]map[string]bool

	nextUserID  uint
	nextHabitID int

	failUpdateHabit error
	failSaveUser    error
	failListHabits  error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		users:      map[uint]models.User{},
		habits:     map[string]models.Habit{},
		unlocks:    map[uint]map[string]bool{},
		nextUserID: 1,
	}
}

func (f *fakeRecordStore) UserByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "user", ID: fmt.Sprint(id)}
	}
	copy := u
	return &copy, nil
}

func (f *fakeRecordStore) UserByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			copy := u
			return &copy, nil
		}
	}
	return nil, &store.NotFoundError{Kind: "user", ID: email}
}

func (f *fakeRecordStore) CreateUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u.ID == 0 {
		u.ID = f.nextUserID
		f.nextUserID++
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeRecordStore) SaveUser(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSaveUser != nil {
		return f.failSaveUser
	}
	if _, ok := f.users[u.ID]; !ok {
		return &store.NotFoundError{Kind: "user", ID: fmt.Sprint(u.ID)}
	}
	f.users[u.ID] = *u
	return nil
}

func (f *fakeRecordStore) HabitsByUser(_ context.Context, userID uint) ([]models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListHabits != nil {
		return nil, f.failListHabits
	}
	var out []models.Habit
	for _, h := range f.habits {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeRecordStore) HabitByID(_ context.Context, id string) (*models.Habit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.habits[id]
	if !ok {
		return nil, &store.NotFoundError{Kind: "habit", ID: id}
	}
	copy := h
	return &copy, nil
}

func (f *fakeRecordStore) CreateHabit(_ context.Context, h *models.Habit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h.ID == "" {
		f.nextHabitID++
		h.ID = fmt.Sprintf("habit-%d", f.nextHabitID)
	}
	f.habits[h.ID] = *h
	return nil
}

func (f *fakeRecordStore) UpdateHabit(_ context.Context, h *models.Habit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdateHabit != nil {
		return f.failUpdateHabit
	}
	if _, ok := f.habits[h.ID]; !ok {
		return &store.NotFoundError{Kind: "habit", ID: h.ID}
	}
	f.habits[h.ID] = *h
	return nil
}

func (f *fakeRecordStore) DeleteHabit(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.habits[id]; !ok {
		return &store.NotFoundError{Kind: "habit", ID: id}
	}
	delete(f.habits, id)
	return nil
}

func (f *fakeRecordStore) UnlockedBadgeIDs(_ context.Context, userID uint) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for id := range f.unlocks[userID] {
		out[id] = true
	}
	return out, nil
}

func (f *fakeRecordStore) SaveBadgeUnlocks(_ context.Context, userID uint, badgeIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unlocks[userID] == nil {
		f.unlocks[userID] = map[string]bool{}
	}
	for _, id := range badgeIDs {
		f.unlocks[userID][id] = true
	}
	return nil
}

var testNow = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

// seedUser installs a user with one incomplete habit dated today and returns
// a ready session pinned to a fixed clock.
func seedSession(t *testing.T, fs *fakeRecordStore, points int, unlocked ...string) *Session {
	t.Helper()

	user := models.User{Username: "ivy", Email: "ivy@example.com", TotalPoints: points}
	if err := fs.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	habit := models.Habit{UserID: user.ID, Title: "Bike to work", Points: 15, Date: testNow}
	if err := fs.CreateHabit(context.Background(), &habit); err != nil {
		t.Fatalf("CreateHabit: %v", err)
	}
	if len(unlocked) > 0 {
		if err := fs.SaveBadgeUnlocks(context.Background(), user.ID, unlocked); err != nil {
			t.Fatalf("SaveBadgeUnlocks: %v", err)
		}
	}

	sess := NewSession(fs, user.ID)
	sess.now = func() time.Time { return testNow }
	if _, err := sess.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return sess
}

func firstHabitID(t *testing.T, sess *Session) string {
	t.Helper()
	snap := sess.Snapshot()
	if len(snap.Habits) == 0 {
		t.Fatal("session has no habits")
	}
	return snap.Habits[0].ID
}

func TestSessionLoadTransitions(t *testing.T) {
	fs := newFakeRecordStore()
	user := models.User{Username: "ivy", Email: "ivy@example.com"}
	if err := fs.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sess := NewSession(fs, user.ID)
	if snap := sess.Snapshot(); snap.State != StateSignedOut {
		t.Fatalf("fresh session state = %s, want %s", snap.State, StateSignedOut)
	}

	snap, err := sess.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.State != StateReady {
		t.Fatalf("loaded state = %s, want %s", snap.State, StateReady)
	}
	if snap.User == nil || snap.User.Username != "ivy" {
		t.Fatalf("loaded user = %+v, want ivy", snap.User)
	}
}

func TestSessionLoadUnknownUser(t *testing.T) {
	sess := NewSession(newFakeRecordStore(), 42)
	snap, err := sess.Load(context.Background())
	if !store.IsNotFound(err) {
		t.Fatalf("Load error = %v, want NotFoundError", err)
	}
	if snap.State != StateSignedOut {
		t.Fatalf("failed load left state %s, want %s", snap.State, StateSignedOut)
	}
}

func TestCompleteHabitAwardsPointsAndBadges(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 90, "sprout", "sapling")
	habitID := firstHabitID(t, sess)

	ch, cancel := sess.Subscribe()
	defer cancel()

	snap, err := sess.CompleteHabit(context.Background(), habitID)
	if err != nil {
		t.Fatalf("CompleteHabit: %v", err)
	}

	if snap.User.TotalPoints != 105 {
		t.Fatalf("TotalPoints = %d, want 105", snap.User.TotalPoints)
	}
	if len(snap.NewBadges) != 1 || snap.NewBadges[0].ID != "bloom" {
		t.Fatalf("NewBadges = %v, want exactly [bloom]", unlockIDs(snap.NewBadges))
	}
	if !snap.Unlocked["bloom"] {
		t.Fatal("snapshot unlocked set missing bloom")
	}
	if snap.User.CurrentStreak != 1 {
		t.Fatalf("CurrentStreak = %d, want 1", snap.User.CurrentStreak)
	}
	if snap.User.LongestStreak < snap.User.CurrentStreak {
		t.Fatalf("LongestStreak %d below CurrentStreak %d", snap.User.LongestStreak, snap.User.CurrentStreak)
	}

	// Exactly one snapshot for the whole operation: points, streaks, and the
	// badge unlock arrive together.
	if got := len(ch); got != 1 {
		t.Fatalf("published %d snapshots, want 1", got)
	}
	published := <-ch
	if published.User.TotalPoints != 105 || len(published.NewBadges) != 1 {
		t.Fatalf("published snapshot = %+v, want the batched update", published)
	}

	// Persisted state matches.
	if !fs.unlocks[sess.UserID()]["bloom"] {
		t.Fatal("bloom unlock not persisted")
	}
	stored, _ := fs.UserByID(context.Background(), sess.UserID())
	if stored.TotalPoints != 105 {
		t.Fatalf("persisted TotalPoints = %d, want 105", stored.TotalPoints)
	}
}

func TestCompleteHabitIdempotent(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 0)
	habitID := firstHabitID(t, sess)

	if _, err := sess.CompleteHabit(context.Background(), habitID); err != nil {
		t.Fatalf("first CompleteHabit: %v", err)
	}
	pointsAfterFirst := sess.Snapshot().User.TotalPoints

	ch, cancel := sess.Subscribe()
	defer cancel()

	snap, err := sess.CompleteHabit(context.Background(), habitID)
	if err != nil {
		t.Fatalf("second CompleteHabit: %v", err)
	}
	if snap.User.TotalPoints != pointsAfterFirst {
		t.Fatalf("repeat completion changed points: %d -> %d", pointsAfterFirst, snap.User.TotalPoints)
	}
	if got := len(ch); got != 0 {
		t.Fatalf("no-op completion published %d snapshots, want 0", got)
	}
}

func TestCompleteHabitUnknownID(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 90)

	ch, cancel := sess.Subscribe()
	defer cancel()

	_, err := sess.CompleteHabit(context.Background(), "no-such-habit")
	if !store.IsNotFound(err) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
	if snap := sess.Snapshot(); snap.User.TotalPoints != 90 {
		t.Fatalf("failed completion changed points to %d, want 90", snap.User.TotalPoints)
	}
	if got := len(ch); got != 0 {
		t.Fatalf("failed completion published %d snapshots, want 0", got)
	}
}

func TestCompleteHabitPersistFailureLeavesStateIntact(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 90)
	habitID := firstHabitID(t, sess)

	fs.failSaveUser = &store.TransientError{Op: "save user", Err: fmt.Errorf("connection reset")}

	_, err := sess.CompleteHabit(context.Background(), habitID)
	if err == nil {
		t.Fatal("expected persistence error")
	}
	snap := sess.Snapshot()
	if snap.User.TotalPoints != 90 {
		t.Fatalf("in-memory points = %d after failed save, want 90", snap.User.TotalPoints)
	}
	if snap.State != StateReady {
		t.Fatalf("state = %s after failed save, want %s", snap.State, StateReady)
	}
}

func TestAddHabitReloadsAndPublishesOnce(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 0)

	ch, cancel := sess.Subscribe()
	defer cancel()

	habit := models.Habit{Title: "Compost scraps", Points: 5, Date: testNow}
	snap, err := sess.AddHabit(context.Background(), &habit)
	if err != nil {
		t.Fatalf("AddHabit: %v", err)
	}
	if len(snap.Habits) != 2 {
		t.Fatalf("snapshot has %d habits, want 2", len(snap.Habits))
	}
	if got := len(ch); got != 1 {
		t.Fatalf("published %d snapshots, want 1", got)
	}
}

func TestDeleteHabitUnknownID(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 0)

	if _, err := sess.DeleteHabit(context.Background(), "missing"); !store.IsNotFound(err) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}

func TestUpdateProfilePreservesDerivedFields(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 90)

	snap, err := sess.UpdateProfile(context.Background(), func(u *models.User) {
		u.Username = "ivy-green"
		u.Goal = "bike more"
		u.TotalPoints = 9999
		u.CurrentStreak = 50
	})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if snap.User.Username != "ivy-green" || snap.User.Goal != "bike more" {
		t.Fatalf("editable fields not applied: %+v", snap.User)
	}
	if snap.User.TotalPoints != 90 {
		t.Fatalf("TotalPoints changed through profile surface: %d", snap.User.TotalPoints)
	}
	if snap.User.CurrentStreak != 0 {
		t.Fatalf("CurrentStreak changed through profile surface: %d", snap.User.CurrentStreak)
	}
}

func TestSignOutClearsState(t *testing.T) {
	fs := newFakeRecordStore()
	sess := seedSession(t, fs, 10)

	snap := sess.SignOut()
	if snap.State != StateSignedOut {
		t.Fatalf("state = %s, want %s", snap.State, StateSignedOut)
	}
	if snap.User != nil || len(snap.Habits) != 0 || len(snap.Unlocked) != 0 {
		t.Fatalf("sign-out left residual state: %+v", snap)
	}
}

func TestManagerAttachReusesSession(t *testing.T) {
	fs := newFakeRecordStore()
	user := models.User{Username: "ivy", Email: "ivy@example.com"}
	if err := fs.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	m := NewManager(fs, nil)
	first, err := m.Attach(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	second, err := m.Attach(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if first != second {
		t.Fatal("Attach created a second session for the same user")
	}

	m.Detach(user.ID)
	if snap := first.Snapshot(); snap.State != StateSignedOut {
		t.Fatalf("detached session state = %s, want %s", snap.State, StateSignedOut)
	}

	third, err := m.Attach(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Attach after Detach: %v", err)
	}
	if third == first {
		t.Fatal("Attach after Detach returned the stale session")
	}
	if snap := third.Snapshot(); snap.State != StateReady {
		t.Fatalf("reattached session state = %s, want %s", snap.State, StateReady)
	}
}

func TestManagerBroadcastReachesHubCallback(t *testing.T) {
	fs := newFakeRecordStore()
	user := models.User{Username: "ivy", Email: "ivy@example.com"}
	if err := fs.CreateUser(context.Background(), &user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	var mu sync.Mutex
	var received []Snapshot
	m := NewManager(fs, func(userID uint, snap Snapshot) {
		mu.Lock()
		received = append(received, snap)
		mu.Unlock()
	})

	sess, err := m.Attach(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if _, err := sess.AddHabit(context.Background(), &models.Habit{Title: "Walk", Points: 5, Date: testNow}); err != nil {
		t.Fatalf("AddHabit: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// one snapshot from the initial load, one from the mutation
	if len(received) != 2 {
		t.Fatalf("broadcast received %d snapshots, want 2", len(received))
	}
}
