package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Singhary/chaty/db"
	"github.com/Singhary/chaty/models"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

// newTestStore opens a private in-memory SQLite database per test.
func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	orm, err := db.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)))
	require.NoError(t, err)
	sqlDB, err := orm.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(orm))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return NewSQLStore(orm)
}

type published struct {
	topic   string
	event   string
	payload any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
	fail   error
}

func (p *recordingPublisher) Publish(ctx context.Context, topic, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, published{topic: topic, event: event, payload: payload})
	return nil
}

func (p *recordingPublisher) on(topic string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.topic == topic {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func (p *recordingPublisher) reset() {
	p.mu.Lock()
	p.events = nil
	p.mu.Unlock()
}

type fixture struct {
	ctx      context.Context
	store    *SQLStore
	pub      *recordingPublisher
	users    *UserService
	friends  *FriendService
	groups   *GroupService
	messages *MessageService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newTestStore(t)
	pub := &recordingPublisher{}
	log := zap.NewNop()

	users := NewUserService(store)
	friends := NewFriendService(store, users, pub, log)
	groups := NewGroupService(store, users, friends, pub, log)
	messages := NewMessageService(store, users, friends, groups, pub, log)

	var tick int64
	clock := func() time.Time {
		tick++
		return time.UnixMilli(1700000000000 + tick)
	}
	groups.now = clock
	messages.now = clock

	return &fixture{
		ctx:      context.Background(),
		store:    store,
		pub:      pub,
		users:    users,
		friends:  friends,
		groups:   groups,
		messages: messages,
	}
}

func (f *fixture) user(t *testing.T) models.User {
	t.Helper()
	u := models.User{
		ID:    gofakeit.UUID(),
		Name:  gofakeit.FirstName() + " " + gofakeit.LastName(),
		Email: strings.ToLower(gofakeit.Numerify("######") + gofakeit.Email()),
		Image: gofakeit.URL(),
	}
	require.NoError(t, f.users.Remember(f.ctx, u))
	return u
}

func (f *fixture) befriend(t *testing.T, a, b models.User) {
	t.Helper()
	require.NoError(t, f.friends.SendFriendRequest(f.ctx, a.ID, b.Email))
	require.NoError(t, f.friends.AcceptFriendRequest(f.ctx, b.ID, a.ID))
}

// group creates a group owned by owner with the given friends of owner.
func (f *fixture) group(t *testing.T, owner models.User, members ...models.User) *models.Group {
	t.Helper()
	ids := []string{owner.ID}
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	g, err := f.groups.CreateGroup(f.ctx, owner.ID, CreateGroupInput{Name: gofakeit.Word(), Members: ids})
	require.NoError(t, err)
	return g
}

func userFixture(id string) models.User {
	return models.User{ID: id, Name: gofakeit.FirstName(), Email: id + "@example.com", Image: gofakeit.URL()}
}
