// Package session is the local sign-in placeholder. It manufactures a user
// from any email and password, persists it under the "user" key and passes it
// to the collection layer through the request context. No credentials are
// checked and nothing leaves the process.
package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mycolog/mycolog/internal/errors"
	"github.com/mycolog/mycolog/internal/kvstore"
	"github.com/mycolog/mycolog/internal/logger"
)

// User is the signed-in identity.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type ctxKey struct{}

// WithUser returns a context carrying u. The collection stores read it to
// stamp and scope records.
func WithUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// FromContext returns the user carried by ctx.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxKey{}).(User)
	return u, ok && u.ID != ""
}

const subscriberBuffer = 4

// Manager owns the current session. Its lifecycle is Load at start-up,
// SignIn or SignUp to open a session, Logout to clear it.
type Manager struct {
	kv    kvstore.Store
	log   logger.Logger
	now   func() time.Time
	newID func() string

	mu      sync.RWMutex
	current *User
	subs    map[int]chan *User
	nextSub int
}

// NewManager returns a signed-out manager. Call Load to restore a persisted session.
func NewManager(kv kvstore.Store, log logger.Logger) *Manager {
	if log == nil {
		log = logger.Global().Module("session")
	}
	return &Manager{
		kv:    kv,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
		subs:  make(map[int]chan *User),
	}
}

// Load restores the persisted user, if any. A missing key leaves the manager
// signed out.
func (m *Manager) Load(ctx context.Context) (*User, error) {
	raw, ok, err := m.kv.Get(ctx, kvstore.KeyUser)
	if err != nil {
		return nil, errors.Persistence(err, "read session")
	}
	if !ok || strings.TrimSpace(raw) == "" {
		m.set(nil)
		return nil, nil
	}
	var u User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, errors.Persistence(err, "decode session")
	}
	if u.ID == "" {
		m.set(nil)
		return nil, nil
	}
	m.set(&u)
	m.log.Debug("session restored", logger.String("user_id", u.ID))
	return &u, nil
}

// SignIn opens a session for email. The display name is the part of the
// address before "@".
func (m *Manager) SignIn(ctx context.Context, email, password string) (User, error) {
	email, err := checkCredentials(email, password)
	if err != nil {
		return User{}, err
	}
	return m.open(ctx, email, localPart(email))
}

// SignUp opens a session with an explicit display name, falling back to the
// address local part when name is blank.
func (m *Manager) SignUp(ctx context.Context, email, password, name string) (User, error) {
	email, err := checkCredentials(email, password)
	if err != nil {
		return User{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = localPart(email)
	}
	return m.open(ctx, email, name)
}

func (m *Manager) open(ctx context.Context, email, name string) (User, error) {
	u := User{
		ID:        m.newID(),
		Email:     email,
		Name:      name,
		CreatedAt: m.now().UTC(),
	}
	data, err := json.Marshal(u)
	if err != nil {
		return User{}, errors.Persistence(err, "encode session")
	}
	if err := m.kv.Set(ctx, kvstore.KeyUser, string(data)); err != nil {
		return User{}, errors.Persistence(err, "write session")
	}
	m.set(&u)
	m.log.Info("signed in", logger.String("user_id", u.ID))
	return u, nil
}

// Logout removes the persisted user and notifies subscribers.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.kv.Remove(ctx, kvstore.KeyUser); err != nil {
		return errors.Persistence(err, "clear session")
	}
	m.set(nil)
	m.log.Info("signed out")
	return nil
}

// Current returns the signed-in user.
func (m *Manager) Current() (User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return User{}, false
	}
	return *m.current, true
}

// Context returns ctx carrying the current user, or ctx unchanged when
// signed out.
func (m *Manager) Context(ctx context.Context) context.Context {
	if u, ok := m.Current(); ok {
		return WithUser(ctx, u)
	}
	return ctx
}

// Subscribe delivers the current user immediately and then every change. A
// nil value means signed out. Slow subscribers only see the latest value.
func (m *Manager) Subscribe() (<-chan *User, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *User, subscriberBuffer)
	ch <- copyUser(m.current)
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

func (m *Manager) set(u *User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = u
	for _, ch := range m.subs {
		v := copyUser(u)
		select {
		case ch <- v:
		default:
			// drop the oldest value so the newest always arrives
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
}

func copyUser(u *User) *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

func checkCredentials(email, password string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", errors.ValidationError("email is required")
	}
	if password == "" {
		return "", errors.ValidationError("password is required")
	}
	return email, nil
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
