package groupdir

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core/googlesync"
)

var (
	ErrGroupNotFound  = errors.New("group not found")
	ErrMemberNotFound = errors.New("member not found")
	ErrMemberExists   = errors.New("member already exists")
)

type memoryGroup struct {
	group   googlesync.DirectoryGroup
	members map[string]googlesync.Member // by email
}

// Memory is a group directory kept in memory, used in development and tests.
type Memory struct {
	mu     sync.RWMutex
	groups map[string]*memoryGroup // by group id
	fail   map[string]error        // by member email
}

var _ googlesync.GroupDirectory = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		groups: make(map[string]*memoryGroup),
		fail:   make(map[string]error),
	}
}

// AddGroup creates a group with members and returns its id.
func (dir *Memory) AddGroup(email, description string, members ...googlesync.Member) string {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	id := uuid.NewString()
	g := &memoryGroup{
		group:   googlesync.DirectoryGroup{ID: id, Email: strings.ToLower(email), Description: description},
		members: make(map[string]googlesync.Member, len(members)),
	}
	for _, m := range members {
		m.Email = strings.ToLower(m.Email)
		if m.MemberID == "" {
			m.MemberID = uuid.NewString()
		}
		g.members[m.Email] = m
	}
	dir.groups[id] = g
	return id
}

// FailOn makes every change to the member with email fail with err.
func (dir *Memory) FailOn(email string, err error) {
	dir.mu.Lock()
	defer dir.mu.Unlock()
	dir.fail[strings.ToLower(email)] = err
}

func (dir *Memory) ListGroups(_ context.Context, domain string) ([]googlesync.DirectoryGroup, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()

	suffix := "@" + strings.ToLower(domain)
	groups := make([]googlesync.DirectoryGroup, 0, len(dir.groups))
	for _, g := range dir.groups {
		if domain == "" || strings.HasSuffix(g.group.Email, suffix) {
			groups = append(groups, g.group)
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Email < groups[j].Email })
	return groups, nil
}

func (dir *Memory) ListMembers(_ context.Context, groupID string) ([]googlesync.Member, error) {
	dir.mu.RLock()
	defer dir.mu.RUnlock()

	g, ok := dir.groups[groupID]
	if !ok {
		return nil, ErrGroupNotFound
	}
	members := make([]googlesync.Member, 0, len(g.members))
	for _, m := range g.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Email < members[j].Email })
	return members, nil
}

func (dir *Memory) change(groupID string, m googlesync.Member, fn func(g *memoryGroup, email string) error) error {
	dir.mu.Lock()
	defer dir.mu.Unlock()

	g, ok := dir.groups[groupID]
	if !ok {
		return ErrGroupNotFound
	}
	email := strings.ToLower(m.Email)
	if err := dir.fail[email]; err != nil {
		return err
	}
	return fn(g, email)
}

func (dir *Memory) AddMember(_ context.Context, groupID string, m googlesync.Member) error {
	return dir.change(groupID, m, func(g *memoryGroup, email string) error {
		if _, ok := g.members[email]; ok {
			return ErrMemberExists
		}
		m.Email = email
		m.MemberID = uuid.NewString()
		g.members[email] = m
		return nil
	})
}

func (dir *Memory) UpdateRole(_ context.Context, groupID string, m googlesync.Member) error {
	return dir.change(groupID, m, func(g *memoryGroup, email string) error {
		cur, ok := g.members[email]
		if !ok {
			return ErrMemberNotFound
		}
		cur.Role = m.Role
		g.members[email] = cur
		return nil
	})
}

func (dir *Memory) RemoveMember(_ context.Context, groupID string, m googlesync.Member) error {
	return dir.change(groupID, m, func(g *memoryGroup, email string) error {
		if _, ok := g.members[email]; !ok {
			return ErrMemberNotFound
		}
		delete(g.members, email)
		return nil
	})
}
