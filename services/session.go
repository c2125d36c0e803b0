package services

import (
	"context"
	"sync"
	"time"

	"github.com/greenloop/ecotrack/models"
	"github.com/greenloop/ecotrack/store"
	"github.com/greenloop/ecotrack/utils"
)

// RecordStore is the persistence surface the orchestrator depends on.
// store.Store is the production implementation; tests substitute a fake.
type RecordStore interface {
	UserByID(ctx context.Context, id uint) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	SaveUser(ctx context.Context, u *models.User) error
	HabitsByUser(ctx context.Context, userID uint) ([]models.Habit, error)
	HabitByID(ctx context.Context, id string) (*models.Habit, error)
	CreateHabit(ctx context.Context, h *models.Habit) error
	UpdateHabit(ctx context.Context, h *models.Habit) error
	DeleteHabit(ctx context.Context, id string) error
	UnlockedBadgeIDs(ctx context.Context, userID uint) (map[string]bool, error)
	SaveBadgeUnlocks(ctx context.Context, userID uint, badgeIDs []string) error
}

// State is the orchestrator's lifecycle state.
type State string

const (
	StateSignedOut State = "signed_out"
	StateLoading   State = "loading"
	StateReady     State = "ready"
)

// Snapshot is the immutable view published to observers after every state
// transition. Point updates and badge unlocks triggered by one operation are
// batched into a single snapshot.
type Snapshot struct {
	State     State           `json:"state"`
	User      *models.User    `json:"user,omitempty"`
	Habits    []models.Habit  `json:"habits"`
	Unlocked  map[string]bool `json:"unlocked"`
	NewBadges []models.Badge  `json:"new_badges,omitempty"`
	Today     TodayStats      `json:"today"`
	Week      []DayStat       `json:"week"`
}

// Session coordinates one signed-in user: it loads and reloads the habit
// collection, serializes mutations on its mutex, and republishes state.
// Every mutation takes the Ready -> Loading -> Ready path with a full reload
// rather than a local patch; correctness over incremental-update performance.
type Session struct {
	mu     sync.Mutex
	store  RecordStore
	userID uint

	state    State
	user     *models.User
	habits   []models.Habit
	unlocked map[string]bool

	subs    map[int]chan Snapshot
	nextSub int

	// broadcast relays snapshots beyond in-process subscribers (websocket hub).
	broadcast func(userID uint, snap Snapshot)

	now        func() time.Time
	lastActive time.Time
}

// NewSession creates a session in the SignedOut state.
func NewSession(rs RecordStore, userID uint) *Session {
	return &Session{
		store:      rs,
		userID:     userID,
		state:      StateSignedOut,
		unlocked:   map[string]bool{},
		subs:       map[int]chan Snapshot{},
		now:        time.Now,
		lastActive: time.Now(),
	}
}

// UserID returns the owning user id.
func (s *Session) UserID() uint { return s.userID }

// Subscribe registers an observer. The returned channel receives state
// snapshots; slow observers miss intermediate snapshots rather than blocking
// the mutation path. The cancel function must be called when done.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan Snapshot, 8)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// Load transitions SignedOut -> Loading -> Ready by fetching the profile,
// habit collection, and unlocked badge set.
func (s *Session) Load(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.state = StateLoading

	if err := s.reloadLocked(ctx); err != nil {
		s.state = StateSignedOut
		return s.snapshotLocked(nil), err
	}

	s.state = StateReady
	snap := s.snapshotLocked(nil)
	s.publishLocked(snap)
	return snap, nil
}

// Snapshot returns the current state without touching the store.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	return s.snapshotLocked(nil)
}

// SignOut clears in-memory user, habits, and badge state.
func (s *Session) SignOut() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateSignedOut
	s.user = nil
	s.habits = nil
	s.unlocked = map[string]bool{}
	snap := s.snapshotLocked(nil)
	s.publishLocked(snap)
	return snap
}

// AddHabit persists a new habit and reloads the collection.
func (s *Session) AddHabit(ctx context.Context, h *models.Habit) (Snapshot, error) {
	return s.mutate(ctx, func(ctx context.Context) error {
		h.UserID = s.userID
		return s.store.CreateHabit(ctx, h)
	})
}

// UpdateHabit replaces a habit record in full. The habit must exist and
// belong to this session's user.
func (s *Session) UpdateHabit(ctx context.Context, h *models.Habit) (Snapshot, error) {
	return s.mutate(ctx, func(ctx context.Context) error {
		if s.findHabitLocked(h.ID) == nil {
			return &store.NotFoundError{Kind: "habit", ID: h.ID}
		}
		h.UserID = s.userID
		return s.store.UpdateHabit(ctx, h)
	})
}

// DeleteHabit removes a habit owned by this session's user.
func (s *Session) DeleteHabit(ctx context.Context, id string) (Snapshot, error) {
	return s.mutate(ctx, func(ctx context.Context) error {
		if s.findHabitLocked(id) == nil {
			return &store.NotFoundError{Kind: "habit", ID: id}
		}
		return s.store.DeleteHabit(ctx, id)
	})
}

// UpdateProfile applies fn to a copy of the user, persists it, and publishes.
func (s *Session) UpdateProfile(ctx context.Context, fn func(u *models.User)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	if s.user == nil {
		return s.snapshotLocked(nil), &store.NotFoundError{Kind: "user", ID: "session"}
	}

	updated := *s.user
	fn(&updated)
	// derived fields are never edited through the profile surface
	updated.ID = s.user.ID
	updated.TotalPoints = s.user.TotalPoints
	updated.CurrentStreak = s.user.CurrentStreak
	updated.LongestStreak = s.user.LongestStreak
	updated.PasswordHash = s.user.PasswordHash

	if err := s.store.SaveUser(ctx, &updated); err != nil {
		return s.snapshotLocked(nil), err
	}
	s.user = &updated
	snap := s.snapshotLocked(nil)
	s.publishLocked(snap)
	return snap, nil
}

// CompleteHabit marks a habit complete, credits its points, recomputes
// streaks, unlocks any badges whose threshold was crossed, and publishes
// exactly one snapshot. Completing an already-completed habit is a no-op
// success. An unknown id fails with NotFoundError and leaves points intact.
func (s *Session) CompleteHabit(ctx context.Context, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	habit := s.findHabitLocked(id)
	if habit == nil {
		return s.snapshotLocked(nil), &store.NotFoundError{Kind: "habit", ID: id}
	}
	if habit.Completed {
		return s.snapshotLocked(nil), nil
	}
	if s.user == nil {
		return s.snapshotLocked(nil), &store.NotFoundError{Kind: "user", ID: "session"}
	}

	s.state = StateLoading
	now := s.now()

	completed := *habit
	completed.Completed = true
	if err := s.store.UpdateHabit(ctx, &completed); err != nil {
		s.state = StateReady
		return s.snapshotLocked(nil), err
	}

	// Recompute derived user state against the post-completion collection.
	patched := make([]models.Habit, len(s.habits))
	copy(patched, s.habits)
	for i := range patched {
		if patched[i].ID == id {
			patched[i].Completed = true
		}
	}

	updated := *s.user
	updated.TotalPoints += completed.Points
	updated.CurrentStreak = CurrentStreak(patched, now)
	if updated.CurrentStreak > updated.LongestStreak {
		updated.LongestStreak = updated.CurrentStreak
	}
	if err := s.store.SaveUser(ctx, &updated); err != nil {
		s.state = StateReady
		return s.snapshotLocked(nil), err
	}

	newBadges := NewlyUnlocked(updated.TotalPoints, s.unlocked)
	if len(newBadges) > 0 {
		ids := make([]string, len(newBadges))
		for i, b := range newBadges {
			ids[i] = b.ID
		}
		if err := s.store.SaveBadgeUnlocks(ctx, s.userID, ids); err != nil {
			s.state = StateReady
			return s.snapshotLocked(nil), err
		}
	}

	// Commit in-memory state only after every persistence step succeeded.
	s.user = &updated
	for _, b := range newBadges {
		s.unlocked[b.ID] = true
	}
	if habits, err := s.store.HabitsByUser(ctx, s.userID); err == nil {
		s.habits = habits
	} else {
		// persistence already succeeded; fall back to the local patch and
		// let the next reload converge
		if utils.Sugar != nil {
			utils.Sugar.Warnf("post-completion reload failed for user %d: %v", s.userID, err)
		}
		s.habits = patched
	}

	s.state = StateReady
	snap := s.snapshotLocked(newBadges)
	s.publishLocked(snap)
	return snap, nil
}

// mutate runs op under the session mutex, then reloads and publishes once.
func (s *Session) mutate(ctx context.Context, op func(ctx context.Context) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	s.state = StateLoading
	if err := op(ctx); err != nil {
		s.state = StateReady
		return s.snapshotLocked(nil), err
	}
	if err := s.reloadLocked(ctx); err != nil {
		s.state = StateReady
		return s.snapshotLocked(nil), err
	}
	s.state = StateReady
	snap := s.snapshotLocked(nil)
	s.publishLocked(snap)
	return snap, nil
}

func (s *Session) reloadLocked(ctx context.Context) error {
	user, err := s.store.UserByID(ctx, s.userID)
	if err != nil {
		return err
	}
	habits, err := s.store.HabitsByUser(ctx, s.userID)
	if err != nil {
		return err
	}
	unlocked, err := s.store.UnlockedBadgeIDs(ctx, s.userID)
	if err != nil {
		return err
	}
	s.user = user
	s.habits = habits
	s.unlocked = unlocked
	return nil
}

func (s *Session) findHabitLocked(id string) *models.Habit {
	for i := range s.habits {
		if s.habits[i].ID == id {
			return &s.habits[i]
		}
	}
	return nil
}

func (s *Session) snapshotLocked(newBadges []models.Badge) Snapshot {
	now := s.now()
	snap := Snapshot{
		State:     s.state,
		Habits:    make([]models.Habit, len(s.habits)),
		Unlocked:  make(map[string]bool, len(s.unlocked)),
		NewBadges: newBadges,
		Today:     Today(s.habits, now),
		Week:      WeeklySeries(s.habits, now),
	}
	copy(snap.Habits, s.habits)
	for k, v := range s.unlocked {
		snap.Unlocked[k] = v
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	return snap
}

func (s *Session) publishLocked(snap Snapshot) {
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	if s.broadcast != nil {
		s.broadcast(s.userID, snap)
	}
}

func (s *Session) touch() { s.lastActive = time.Now() }

// Manager owns one session per signed-in user.
type Manager struct {
	mu       sync.Mutex
	store    RecordStore
	sessions map[uint]*Session

	broadcast func(userID uint, snap Snapshot)
}

// NewManager creates a session manager over the given record store. The
// broadcast callback, when non-nil, receives every published snapshot.
func NewManager(rs RecordStore, broadcast func(userID uint, snap Snapshot)) *Manager {
	return &Manager{
		store:     rs,
		sessions:  map[uint]*Session{},
		broadcast: broadcast,
	}
}

// Attach returns the user's session, creating and loading it on first use.
func (m *Manager) Attach(ctx context.Context, userID uint) (*Session, error) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if !ok {
		sess = NewSession(m.store, userID)
		sess.broadcast = m.broadcast
		m.sessions[userID] = sess
	}
	m.mu.Unlock()

	sess.mu.Lock()
	needsLoad := sess.state == StateSignedOut
	sess.mu.Unlock()
	if needsLoad {
		if _, err := sess.Load(ctx); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// Detach signs the user's session out and drops it.
func (m *Manager) Detach(userID uint) {
	m.mu.Lock()
	sess, ok := m.sessions[userID]
	if ok {
		delete(m.sessions, userID)
	}
	m.mu.Unlock()
	if ok {
		sess.SignOut()
	}
}

// StartReaper launches a background goroutine that evicts sessions idle for
// longer than maxIdle. Best-effort housekeeping; evicted users are reloaded
// transparently on their next request.
func (m *Manager) StartReaper(interval, maxIdle time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxIdle <= 0 {
		maxIdle = time.Hour
	}
	go func() {
		for {
			time.Sleep(interval)
			cutoff := time.Now().Add(-maxIdle)
			m.mu.Lock()
			for id, sess := range m.sessions {
				sess.mu.Lock()
				idle := sess.lastActive.Before(cutoff) && len(sess.subs) == 0
				sess.mu.Unlock()
				if idle {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}()
}
