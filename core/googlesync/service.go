package googlesync

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/indysis/core"
	"github.com/trezcool/indysis/core/school"
	"github.com/trezcool/indysis/core/user"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("group sync")
	ErrNotConfigured = errors.New("google sync domain is not set")
)

type (
	Repository interface {
		CreateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		UpdateGroup(ctx context.Context, g Group, exec ...core.DBExecutor) (Group, error)
		GetGroup(ctx context.Context, id int64, exec ...core.DBExecutor) (Group, error)
		// QueryGroups returns the groups ordered by email.
		QueryGroups(ctx context.Context, filter GroupFilter, exec ...core.DBExecutor) ([]Group, error)

		CreateLog(ctx context.Context, log SyncLog, exec ...core.DBExecutor) (SyncLog, error)
		// QueryLogs returns the latest logs of the group first. limit <= 0 returns them all.
		QueryLogs(ctx context.Context, groupID int64, limit int, exec ...core.DBExecutor) ([]SyncLog, error)
		DeleteLogsBefore(ctx context.Context, before time.Time, exec ...core.DBExecutor) (int, error)
	}

	// GroupDirectory manages the groups of the Workspace domain.
	GroupDirectory interface {
		ListGroups(ctx context.Context, domain string) ([]DirectoryGroup, error)
		ListMembers(ctx context.Context, groupID string) ([]Member, error)
		AddMember(ctx context.Context, groupID string, m Member) error
		UpdateRole(ctx context.Context, groupID string, m Member) error
		RemoveMember(ctx context.Context, groupID string, m Member) error
	}

	// Directory gives access to the school records.
	Directory interface {
		QueryClasses(ctx context.Context, filter school.ClassFilter) ([]school.StudentClass, error)
		QueryStudents(ctx context.Context, filter school.StudentFilter) ([]school.Student, error)
		QueryContacts(ctx context.Context, studentIDs ...int64) ([]school.EmergencyContact, error)
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	Service struct {
		repo     Repository
		groups   GroupDirectory
		dir      Directory
		users    Users
		logger   core.Logger
		domain   string
		keepLogs time.Duration
		now      func() time.Time
	}
)

func NewService(conf *core.Config, repo Repository, groups GroupDirectory, dir Directory, users Users, logger core.Logger) *Service {
	days := conf.GoogleSync.KeepLogs
	if days <= 0 {
		days = 91
	}
	return &Service{
		repo:     repo,
		groups:   groups,
		dir:      dir,
		users:    users,
		logger:   logger,
		domain:   conf.GoogleSync.Domain,
		keepLogs: time.Duration(days) * 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (svc *Service) GetGroup(ctx context.Context, id int64) (Group, error) {
	return svc.repo.GetGroup(ctx, id)
}

func (svc *Service) QueryGroups(ctx context.Context) ([]Group, error) {
	return svc.repo.QueryGroups(ctx, GroupFilter{})
}

// RefreshGroups updates the known groups from the directory and adds the unknown ones with auto-sync off.
func (svc *Service) RefreshGroups(ctx context.Context) ([]Group, error) {
	if svc.domain == "" {
		return nil, ErrNotConfigured
	}
	listed, err := svc.groups.ListGroups(ctx, svc.domain)
	if err != nil {
		return nil, errors.Wrap(err, "listing groups")
	}
	byEmail := make(map[string]DirectoryGroup, len(listed))
	for _, dg := range listed {
		byEmail[core.CleanString(dg.Email, true)] = dg
	}

	known, err := svc.repo.QueryGroups(ctx, GroupFilter{})
	if err != nil {
		return nil, err
	}
	now := svc.now()
	for _, g := range known {
		dg, ok := byEmail[g.Email]
		if !ok {
			continue
		}
		delete(byEmail, g.Email)
		if g.GroupID == dg.ID && g.Description == dg.Description {
			continue
		}
		g.GroupID = dg.ID
		g.Description = dg.Description
		g.UpdatedAt = now
		if _, err := svc.repo.UpdateGroup(ctx, g); err != nil {
			return nil, err
		}
	}

	emails := make([]string, 0, len(byEmail))
	for email := range byEmail {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		dg := byEmail[email]
		_, err := svc.repo.CreateGroup(ctx, Group{
			GroupID:     dg.ID,
			Email:       email,
			Description: dg.Description,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		if err != nil {
			return nil, err
		}
	}
	return svc.repo.QueryGroups(ctx, GroupFilter{})
}

// UpdateGroup saves the classes, users & extra emails synced to a group.
func (svc *Service) UpdateGroup(ctx context.Context, id int64, ug UpdateGroup) (Group, error) {
	g, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return Group{}, err
	}
	g.ClassIDs = ug.ClassIDs
	g.Owners = ug.Owners
	g.Managers = ug.Managers
	g.Staff = ug.Staff
	g.AutoSync = ug.AutoSync
	g.ExtraEmails = ug.ExtraEmails
	g.UpdatedAt = svc.now()
	return svc.repo.UpdateGroup(ctx, g)
}

func (svc *Service) Logs(ctx context.Context, groupID int64, limit int) ([]SyncLog, error) {
	if _, err := svc.repo.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}
	return svc.repo.QueryLogs(ctx, groupID, limit)
}

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// ExpectedMembers lists the members the group should have, keyed on lower-cased email.
// Parents of active students in the group's classes come first; staff, managers, owners & extra
// emails follow and take precedence.
func (svc *Service) ExpectedMembers(ctx context.Context, g Group) (map[string]Member, error) {
	expected := make(map[string]Member)
	add := func(email, role string) {
		if email = normalizeEmail(email); email != "" {
			expected[email] = Member{Email: email, Role: role}
		}
	}

	if len(g.ClassIDs) > 0 {
		classes, err := svc.dir.QueryClasses(ctx, school.ClassFilter{IDs: g.ClassIDs})
		if err != nil {
			return nil, err
		}
		inClass := core.NewInt64Set()
		for _, c := range classes {
			inClass.Add(c.StudentIDs...)
		}
		active := true
		students, err := svc.dir.QueryStudents(ctx, school.StudentFilter{IDs: inClass.Slice(), IsActive: &active})
		if err != nil {
			return nil, err
		}
		if len(students) > 0 {
			ids := make([]int64, 0, len(students))
			for _, st := range students {
				ids = append(ids, st.ID)
			}
			contacts, err := svc.dir.QueryContacts(ctx, ids...)
			if err != nil {
				return nil, err
			}
			for _, c := range contacts {
				if c.EmergencyOnly || normalizeEmail(c.Email) == "" {
					continue
				}
				add(c.Email, RoleMember)
				add(c.AltEmail, RoleMember)
			}
		}
	}

	for _, set := range []struct {
		ids  []string
		role string
	}{
		{g.Staff, RoleMember},
		{g.Managers, RoleManager},
		{g.Owners, RoleOwner},
	} {
		for _, id := range set.ids {
			usr, err := svc.users.GetByID(ctx, id)
			if err != nil {
				if core.IsNotFound(err) {
					continue
				}
				return nil, err
			}
			if usr.Active() {
				add(usr.Email, set.role)
			}
		}
	}
	for _, e := range g.ExtraEmails {
		add(e.Email, strings.ToUpper(e.Role))
	}
	return expected, nil
}

// CompareMembers lists the changes that turn current into expected: adds & role updates by email,
// then removals by email.
func CompareMembers(current, expected map[string]Member) []Change {
	var changes []Change
	emails := make([]string, 0, len(expected))
	for email := range expected {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	for _, email := range emails {
		want := expected[email]
		have, ok := current[email]
		switch {
		case !ok:
			changes = append(changes, Change{Type: ChangeAdd, Member: want})
		case have.Role != want.Role:
			changes = append(changes, Change{Type: ChangeRole, Member: Member{Email: email, Role: want.Role, MemberID: have.MemberID}})
		}
	}

	var removed []string
	for email := range current {
		if _, ok := expected[email]; !ok {
			removed = append(removed, email)
		}
	}
	sort.Strings(removed)
	for _, email := range removed {
		changes = append(changes, Change{Type: ChangeDel, Member: current[email]})
	}
	return changes
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

type syncCounts struct {
	added, removed, updated, errors int
}

func (c syncCounts) status() string {
	var parts []string
	if c.errors > 0 {
		parts = append(parts, plural(c.errors, "error"))
	}
	if c.added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", c.added))
	}
	if c.removed > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", c.removed))
	}
	if c.updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", c.updated))
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, ", ")
}

// SyncGroup applies the membership changes of the group and logs the outcome.
func (svc *Service) SyncGroup(ctx context.Context, g Group) (SyncLog, error) {
	var (
		lines  []string
		counts syncCounts
		total  int
	)

	err := func() error {
		listed, err := svc.groups.ListMembers(ctx, g.GroupID)
		if err != nil {
			return err
		}
		current := make(map[string]Member, len(listed))
		for _, m := range listed {
			current[normalizeEmail(m.Email)] = m
		}
		total = len(current)
		expected, err := svc.ExpectedMembers(ctx, g)
		if err != nil {
			return err
		}

		for _, ch := range CompareMembers(current, expected) {
			if !validEmail(ch.Member.Email) {
				lines = append(lines, "Invalid email: "+ch.Member.Email)
				counts.errors++
				continue
			}
			var err error
			switch ch.Type {
			case ChangeRole:
				if err = svc.groups.UpdateRole(ctx, g.GroupID, ch.Member); err == nil {
					counts.updated++
					lines = append(lines, fmt.Sprintf("Updated role for %s to %s", ch.Member.Email, ch.Member.Role))
				}
			case ChangeAdd:
				if err = svc.groups.AddMember(ctx, g.GroupID, ch.Member); err == nil {
					counts.added++
					lines = append(lines, fmt.Sprintf("Added %s with role %s", ch.Member.Email, ch.Member.Role))
				}
			case ChangeDel:
				if err = svc.groups.RemoveMember(ctx, g.GroupID, ch.Member); err == nil {
					counts.removed++
					lines = append(lines, "Removed "+ch.Member.Email)
				}
			}
			if err != nil {
				counts.errors++
				lines = append(lines,
					fmt.Sprintf("Failed to process change type=%s email=%s:", ch.Type, ch.Member.Email),
					"    "+err.Error())
				svc.logger.Error(fmt.Sprintf("syncing group %s: %v", g.Email, err), err)
			}
		}
		return nil
	}()
	if err != nil {
		counts.errors++
		lines = append(lines, "Unexpected error processing batch:", "    "+err.Error())
		svc.logger.Error(fmt.Sprintf("syncing group %s: %v", g.Email, err), err)
	}

	status := counts.status()
	if status == "no changes" {
		lines = append(lines, fmt.Sprintf("All %d members are in sync", total))
	}
	log, err := svc.repo.CreateLog(ctx, SyncLog{
		GroupID:   g.ID,
		Status:    status,
		Messages:  strings.Join(lines, "\n"),
		CreatedAt: svc.now(),
	})
	if err != nil {
		return SyncLog{}, err
	}
	if _, err := svc.PurgeLogs(ctx); err != nil {
		svc.logger.Error(fmt.Sprintf("purging sync logs: %v", err), err)
	}
	return log, nil
}

// SyncGroupByID syncs one group.
func (svc *Service) SyncGroupByID(ctx context.Context, id int64) (SyncLog, error) {
	g, err := svc.repo.GetGroup(ctx, id)
	if err != nil {
		return SyncLog{}, err
	}
	return svc.SyncGroup(ctx, g)
}

// SyncAll syncs every auto-sync group and returns the number of groups synced.
func (svc *Service) SyncAll(ctx context.Context) (int, error) {
	auto := true
	groups, err := svc.repo.QueryGroups(ctx, GroupFilter{AutoSync: &auto})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if _, err := svc.SyncGroup(ctx, g); err != nil {
			svc.logger.Error(fmt.Sprintf("syncing group %s: %v", g.Email, err), err)
			continue
		}
		n++
	}
	return n, nil
}

// PurgeLogs deletes the logs older than the retention period.
func (svc *Service) PurgeLogs(ctx context.Context) (int, error) {
	return svc.repo.DeleteLogsBefore(ctx, svc.now().Add(-svc.keepLogs))
}
