package repotest

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
)

// MemoryCallRepo はrepository.CallRepositoryのインメモリ実装。
// サービスとハンドラーを実際の状態遷移で結合するテストに使う。
type MemoryCallRepo struct {
	mu      sync.Mutex
	calls   map[string]*model.Call
	members map[string][]*model.CallMember
}

var _ repository.CallRepository = (*MemoryCallRepo)(nil)

// NewMemoryCallRepo は空のMemoryCallRepoを生成する。
func NewMemoryCallRepo() *MemoryCallRepo {
	return &MemoryCallRepo{
		calls:   make(map[string]*model.Call),
		members: make(map[string][]*model.CallMember),
	}
}

func (r *MemoryCallRepo) CreateIfNotExists(_ context.Context, c *model.Call) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := c.Type + "/" + c.ID
	if _, ok := r.calls[key]; ok {
		return false, nil
	}
	copied := *c
	r.calls[key] = &copied
	return true, nil
}

func (r *MemoryCallRepo) FindByID(_ context.Context, callType, id string) (*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callType+"/"+id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (r *MemoryCallRepo) MarkEnded(_ context.Context, callType, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callType+"/"+id]
	if !ok || c.EndedAt != nil {
		return false, nil
	}
	c.EndedAt = &at
	return true, nil
}

func (r *MemoryCallRepo) UpsertMember(_ context.Context, m *model.CallMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := m.CallType + "/" + m.CallID
	for _, existing := range r.members[key] {
		if existing.UserID == m.UserID {
			existing.Name, existing.Image, existing.JoinedAt, existing.LeftAt = m.Name, m.Image, m.JoinedAt, nil
			return nil
		}
	}
	copied := *m
	r.members[key] = append(r.members[key], &copied)
	return nil
}

func (r *MemoryCallRepo) MarkMemberLeft(_ context.Context, callType, callID, userID string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[callType+"/"+callID] {
		if m.UserID == userID && m.LeftAt == nil {
			m.LeftAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryCallRepo) MarkAllMembersLeft(_ context.Context, callType, callID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.members[callType+"/"+callID] {
		if m.LeftAt == nil {
			m.LeftAt = &at
		}
	}
	return nil
}

func (r *MemoryCallRepo) ListLiveMembers(_ context.Context, callType, callID string) ([]*model.CallMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.CallMember
	for _, m := range r.members[callType+"/"+callID] {
		if m.LeftAt == nil {
			copied := *m
			out = append(out, &copied)
		}
	}
	return out, nil
}

// ListIdle はライブ参加者がおらず、最後の活動がidleSinceより前の未終了通話を作成順に返す。
func (r *MemoryCallRepo) ListIdle(_ context.Context, idleSince time.Time, limit int) ([]*model.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.Call
	for key, c := range r.calls {
		if c.EndedAt != nil {
			continue
		}
		last := c.CreatedAt
		if c.StartsAt.After(last) {
			last = c.StartsAt
		}
		live := false
		for _, m := range r.members[key] {
			if m.LeftAt == nil {
				live = true
				break
			}
			if m.LeftAt.After(last) {
				last = *m.LeftAt
			}
		}
		if live || !last.Before(idleSince) {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryUserRepo はrepository.UserRepositoryのインメモリ実装。
// UPSERTはPostgreSQL実装と同じくroleを変更せず、ID・role・作成日時を書き戻す。
type MemoryUserRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.User
	nextID int
}

var _ repository.UserRepository = (*MemoryUserRepo)(nil)

// NewMemoryUserRepo は空のMemoryUserRepoを生成する。
func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byID: make(map[string]*model.User)}
}

func (r *MemoryUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (r *MemoryUserRepo) FindByExternalID(_ context.Context, externalID string) (*model.User, error) {
	return r.findBy(func(u *model.User) bool { return u.ExternalID == externalID }), nil
}

func (r *MemoryUserRepo) FindByEmail(_ context.Context, email string) (*model.User, error) {
	return r.findBy(func(u *model.User) bool { return email != "" && u.Email == email }), nil
}

func (r *MemoryUserRepo) findBy(match func(*model.User) bool) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if match(u) {
			copied := *u
			return &copied
		}
	}
	return nil
}

func (r *MemoryUserRepo) UpsertByExternalID(_ context.Context, u *model.User) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, existing := range r.byID {
		if existing.ExternalID == u.ExternalID {
			existing.Name, existing.Email, existing.Image, existing.UpdatedAt = u.Name, u.Email, u.Image, now
			u.ID, u.Role, u.CreatedAt, u.UpdatedAt = existing.ID, existing.Role, existing.CreatedAt, now
			return false, nil
		}
	}
	r.nextID++
	u.ID = "user-" + strconv.Itoa(r.nextID)
	u.Role = model.RoleCandidate
	u.CreatedAt, u.UpdatedAt = now, now
	copied := *u
	r.byID[u.ID] = &copied
	return true, nil
}

func (r *MemoryUserRepo) UpdateRole(_ context.Context, externalID string, role model.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.ExternalID == externalID {
			u.Role = role
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *MemoryUserRepo) List(_ context.Context) ([]*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.User, 0, len(r.byID))
	for _, u := range r.byID {
		copied := *u
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryUserRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}
