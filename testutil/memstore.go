// Package testutil provides an in-memory implementation of the repositories
// for service and handler tests.
package testutil

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"civicreport-be/models"
	"civicreport-be/repositories"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type upvoteKey struct {
	issue, user primitive.ObjectID
}

type state struct {
	issues        map[primitive.ObjectID]models.Issue
	updates       []models.IssueUpdate
	upvotes       map[upvoteKey]time.Time
	comments      []models.IssueComment
	photos        []models.IssuePhoto
	notifications []models.Notification
	profiles      map[primitive.ObjectID]models.Profile
}

func (s state) clone() state {
	out := state{
		issues:        make(map[primitive.ObjectID]models.Issue, len(s.issues)),
		updates:       append([]models.IssueUpdate(nil), s.updates...),
		upvotes:       make(map[upvoteKey]time.Time, len(s.upvotes)),
		comments:      append([]models.IssueComment(nil), s.comments...),
		photos:        append([]models.IssuePhoto(nil), s.photos...),
		notifications: append([]models.Notification(nil), s.notifications...),
		profiles:      make(map[primitive.ObjectID]models.Profile, len(s.profiles)),
	}
	for k, v := range s.issues {
		out.issues[k] = v
	}
	for k, v := range s.upvotes {
		out.upvotes[k] = v
	}
	for k, v := range s.profiles {
		v.PushTokens = append([]string(nil), v.PushTokens...)
		out.profiles[k] = v
	}
	return out
}

// Store keeps every collection in memory. WithTransaction restores a snapshot
// when fn fails, so tests can observe rollbacks.
type Store struct {
	mu sync.Mutex
	st state

	// FailOn is consulted before each write as "collection.Method" with the
	// affected id; a non-nil result fails that write.
	FailOn func(op string, id primitive.ObjectID) error
}

func NewStore() *Store {
	return &Store{st: state{
		issues:   make(map[primitive.ObjectID]models.Issue),
		upvotes:  make(map[upvoteKey]time.Time),
		profiles: make(map[primitive.ObjectID]models.Profile),
	}}
}

func (s *Store) fail(op string, id primitive.ObjectID) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op, id)
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) Issues() *IssueRepo               { return &IssueRepo{s} }
func (s *Store) Updates() *UpdateRepo             { return &UpdateRepo{s} }
func (s *Store) Upvotes() *UpvoteRepo             { return &UpvoteRepo{s} }
func (s *Store) Comments() *CommentRepo           { return &CommentRepo{s} }
func (s *Store) Photos() *PhotoRepo               { return &PhotoRepo{s} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{s} }
func (s *Store) Profiles() *ProfileRepo           { return &ProfileRepo{s} }

// AllUpdates returns every stored timeline entry in insertion order.
func (s *Store) AllUpdates() []models.IssueUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.IssueUpdate(nil), s.st.updates...)
}

// AllNotifications returns every stored notification in insertion order.
func (s *Store) AllNotifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.st.notifications...)
}

// UpvoteRows counts the stored upvotes of one issue.
func (s *Store) UpvoteRows(issueID primitive.ObjectID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.st.upvotes {
		if k.issue == issueID {
			n++
		}
	}
	return n
}

// newerFirst orders by created_at then id, both descending.
func newerFirst(aAt, bAt time.Time, aID, bID primitive.ObjectID) bool {
	if !aAt.Equal(bAt) {
		return aAt.After(bAt)
	}
	return bytes.Compare(aID[:], bID[:]) > 0
}

type IssueRepo struct{ s *Store }

func (r *IssueRepo) Insert(_ context.Context, issue *models.Issue) error {
	if issue.ID.IsZero() {
		issue.ID = primitive.NewObjectID()
	}
	if err := r.s.fail("issues.Insert", issue.ID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.issues[issue.ID]; ok {
		return repositories.ErrDuplicate
	}
	r.s.st.issues[issue.ID] = *issue
	return nil
}

func (r *IssueRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Issue, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.st.issues[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return &issue, nil
}

func (r *IssueRepo) List(_ context.Context, filter repositories.IssueFilter) ([]models.IssueView, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var issues []models.Issue
	for _, issue := range r.s.st.issues {
		if filter.SubmittedBy != nil && issue.SubmittedBy != *filter.SubmittedBy {
			continue
		}
		if filter.WithCoordinates && (issue.Latitude == nil || issue.Longitude == nil) {
			continue
		}
		issues = append(issues, issue)
	}
	sort.Slice(issues, func(i, j int) bool {
		return newerFirst(issues[i].CreatedAt, issues[j].CreatedAt, issues[i].ID, issues[j].ID)
	})
	if filter.Limit > 0 && int64(len(issues)) > filter.Limit {
		issues = issues[:filter.Limit]
	}

	views := make([]models.IssueView, 0, len(issues))
	for _, issue := range issues {
		v := models.IssueView{Issue: issue, ReporterName: "Anonymous"}
		if !issue.IsAnonymous && issue.ReportedBy != nil {
			if p, ok := r.s.st.profiles[*issue.ReportedBy]; ok {
				v.ReporterName = p.DisplayName()
			}
		}
		views = append(views, v)
	}
	return views, nil
}

func (r *IssueRepo) SetStatus(_ context.Context, id primitive.ObjectID, status models.IssueStatus, now time.Time) error {
	if err := r.s.fail("issues.SetStatus", id); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.st.issues[id]
	if !ok {
		return repositories.ErrNotFound
	}
	issue.Status = status
	issue.UpdatedAt = now
	issue.ResolvedAt = nil
	if status == models.Resolved {
		at := now
		issue.ResolvedAt = &at
	}
	r.s.st.issues[id] = issue
	return nil
}

func (r *IssueRepo) Triage(_ context.Context, ids []primitive.ObjectID, patch repositories.TriagePatch, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var matched int64
	for _, id := range ids {
		if err := r.s.fail("issues.Triage", id); err != nil {
			return matched, err
		}
		issue, ok := r.s.st.issues[id]
		if !ok {
			continue
		}
		matched++
		if patch.Priority != nil {
			p := *patch.Priority
			issue.Priority = &p
		}
		if patch.AssignedDepartment != nil {
			d := *patch.AssignedDepartment
			issue.AssignedDepartment = &d
		}
		if patch.AssignedTo != nil {
			a := *patch.AssignedTo
			issue.AssignedTo = &a
		}
		issue.UpdatedAt = now
		r.s.st.issues[id] = issue
	}
	return matched, nil
}

func (r *IssueRepo) IncrementUpvotes(_ context.Context, id primitive.ObjectID, delta int) (int, error) {
	if err := r.s.fail("issues.IncrementUpvotes", id); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.st.issues[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	issue.UpvotesCount += delta
	r.s.st.issues[id] = issue
	return issue.UpvotesCount, nil
}

func (r *IssueRepo) IncrementComments(_ context.Context, id primitive.ObjectID, delta int) (int, error) {
	if err := r.s.fail("issues.IncrementComments", id); err != nil {
		return 0, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	issue, ok := r.s.st.issues[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	issue.CommentsCount += delta
	r.s.st.issues[id] = issue
	return issue.CommentsCount, nil
}

func (r *IssueRepo) Analytics(_ context.Context, now time.Time) (*repositories.IssueAnalytics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := &repositories.IssueAnalytics{
		TotalIssues:  int64(len(r.s.st.issues)),
		TotalUpvotes: int64(len(r.s.st.upvotes)),
	}

	byCategory := map[models.IssueCategory]int64{}
	var recent []models.Issue
	for _, issue := range r.s.st.issues {
		byCategory[issue.Category]++
		if issue.Status != models.Resolved {
			out.OpenIssues++
		}
		recent = append(recent, issue)
	}
	for name, n := range byCategory {
		out.IssuesByCategory = append(out.IssuesByCategory, repositories.CategoryCount{Name: string(name), Value: n})
	}
	sort.Slice(out.IssuesByCategory, func(i, j int) bool {
		a, b := out.IssuesByCategory[i], out.IssuesByCategory[j]
		if a.Value != b.Value {
			return a.Value > b.Value
		}
		return a.Name < b.Name
	})

	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		var count int64
		for _, issue := range recent {
			if !issue.CreatedAt.Before(day) && issue.CreatedAt.Before(day.AddDate(0, 0, 1)) {
				count++
			}
		}
		out.Last7Days = append(out.Last7Days, repositories.DayCount{Date: day.Format("2006-01-02"), Count: count})
	}

	sort.Slice(recent, func(i, j int) bool {
		return newerFirst(recent[i].CreatedAt, recent[j].CreatedAt, recent[i].ID, recent[j].ID)
	})
	if len(recent) > 50 {
		recent = recent[:50]
	}
	top := make([]repositories.TopIssue, 0, len(recent))
	for _, issue := range recent {
		top = append(top, repositories.TopIssue{ID: issue.ID, Title: issue.Title, Category: issue.Category, UpvotesCount: issue.UpvotesCount})
	}
	out.TopUpvoted = repositories.TopUpvoted(top, 5)
	return out, nil
}

type UpdateRepo struct{ s *Store }

func (r *UpdateRepo) Insert(_ context.Context, update *models.IssueUpdate) error {
	if update.ID.IsZero() {
		update.ID = primitive.NewObjectID()
	}
	if err := r.s.fail("updates.Insert", update.IssueID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.updates = append(r.s.st.updates, *update)
	return nil
}

func (r *UpdateRepo) ListByIssue(_ context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueUpdate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.IssueUpdate{}
	for _, u := range r.s.st.updates {
		if u.IssueID == issueID && (includeInternal || !u.IsInternal) {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type UpvoteRepo struct{ s *Store }

func (r *UpvoteRepo) Add(_ context.Context, issueID, userID primitive.ObjectID, now time.Time) error {
	if err := r.s.fail("upvotes.Add", issueID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := upvoteKey{issueID, userID}
	if _, ok := r.s.st.upvotes[key]; ok {
		return repositories.ErrDuplicate
	}
	r.s.st.upvotes[key] = now
	return nil
}

func (r *UpvoteRepo) Remove(_ context.Context, issueID, userID primitive.ObjectID) (bool, error) {
	if err := r.s.fail("upvotes.Remove", issueID); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := upvoteKey{issueID, userID}
	if _, ok := r.s.st.upvotes[key]; !ok {
		return false, nil
	}
	delete(r.s.st.upvotes, key)
	return true, nil
}

func (r *UpvoteRepo) Voted(_ context.Context, userID primitive.ObjectID, issueIDs []primitive.ObjectID) (map[primitive.ObjectID]bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	voted := make(map[primitive.ObjectID]bool)
	for _, id := range issueIDs {
		if _, ok := r.s.st.upvotes[upvoteKey{id, userID}]; ok {
			voted[id] = true
		}
	}
	return voted, nil
}

type CommentRepo struct{ s *Store }

func (r *CommentRepo) Insert(_ context.Context, comment *models.IssueComment) error {
	if comment.ID.IsZero() {
		comment.ID = primitive.NewObjectID()
	}
	if err := r.s.fail("comments.Insert", comment.IssueID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.comments = append(r.s.st.comments, *comment)
	return nil
}

func (r *CommentRepo) ListByIssue(_ context.Context, issueID primitive.ObjectID, includeInternal bool) ([]models.IssueComment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.IssueComment{}
	for _, c := range r.s.st.comments {
		if c.IssueID == issueID && (includeInternal || !c.IsInternal) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type PhotoRepo struct{ s *Store }

func (r *PhotoRepo) Insert(_ context.Context, photo *models.IssuePhoto) error {
	if photo.ID.IsZero() {
		photo.ID = primitive.NewObjectID()
	}
	if err := r.s.fail("photos.Insert", photo.IssueID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.photos = append(r.s.st.photos, *photo)
	return nil
}

func (r *PhotoRepo) ListByIssue(_ context.Context, issueID primitive.ObjectID) ([]models.IssuePhoto, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.IssuePhoto{}
	for _, p := range r.s.st.photos {
		if p.IssueID == issueID {
			out = append(out, p)
		}
	}
	return out, nil
}

type NotificationRepo struct{ s *Store }

func (r *NotificationRepo) Insert(_ context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	if err := r.s.fail("notifications.Insert", n.UserID); err != nil {
		return err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.notifications = append(r.s.st.notifications, *n)
	return nil
}

func (r *NotificationRepo) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Notification, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Notification{}
	for _, n := range r.s.st.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return newerFirst(out[i].CreatedAt, out[j].CreatedAt, out[i].ID, out[j].ID)
	})
	return out, nil
}

func (r *NotificationRepo) MarkRead(_ context.Context, id, userID primitive.ObjectID) (*models.Notification, error) {
	if err := r.s.fail("notifications.MarkRead", id); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.st.notifications {
		n := &r.s.st.notifications[i]
		if n.ID == id && n.UserID == userID {
			n.IsRead = true
			out := *n
			return &out, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *NotificationRepo) MarkAllRead(_ context.Context, userID primitive.ObjectID) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for i := range r.s.st.notifications {
		n := &r.s.st.notifications[i]
		if n.UserID == userID && !n.IsRead {
			n.IsRead = true
			count++
		}
	}
	return count, nil
}

type ProfileRepo struct{ s *Store }

func (r *ProfileRepo) Insert(_ context.Context, p *models.Profile) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.profiles {
		if (p.Email != "" && existing.Email == p.Email) || (p.Phone != "" && existing.Phone == p.Phone) {
			return repositories.ErrDuplicate
		}
	}
	r.s.st.profiles[p.ID] = *p
	return nil
}

func (r *ProfileRepo) find(match func(models.Profile) bool) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.profiles {
		if match(p) {
			p.PushTokens = append([]string(nil), p.PushTokens...)
			return &p, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (r *ProfileRepo) FindByID(_ context.Context, id primitive.ObjectID) (*models.Profile, error) {
	return r.find(func(p models.Profile) bool { return p.ID == id })
}

func (r *ProfileRepo) FindByEmail(_ context.Context, email string) (*models.Profile, error) {
	return r.find(func(p models.Profile) bool { return email != "" && p.Email == email })
}

func (r *ProfileRepo) FindByPhone(_ context.Context, phone string) (*models.Profile, error) {
	return r.find(func(p models.Profile) bool { return phone != "" && p.Phone == phone })
}

func (r *ProfileRepo) Update(_ context.Context, id primitive.ObjectID, patch repositories.ProfilePatch, now time.Time) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.profiles[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if patch.FullName != nil {
		p.FullName = *patch.FullName
	}
	if patch.Bio != nil {
		bio := *patch.Bio
		p.Bio = &bio
	}
	if patch.Location != nil {
		location := *patch.Location
		p.Location = &location
	}
	if patch.NotificationPreferences != nil {
		p.NotificationPreferences = *patch.NotificationPreferences
	}
	p.UpdatedAt = now
	r.s.st.profiles[id] = p
	return &p, nil
}

func (r *ProfileRepo) AddPushToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.profiles[id]
	if !ok {
		return repositories.ErrNotFound
	}
	for _, t := range p.PushTokens {
		if t == token {
			return nil
		}
	}
	p.PushTokens = append(append([]string(nil), p.PushTokens...), token)
	r.s.st.profiles[id] = p
	return nil
}

func (r *ProfileRepo) RemovePushToken(_ context.Context, id primitive.ObjectID, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.profiles[id]
	if !ok {
		return nil
	}
	kept := []string{}
	for _, t := range p.PushTokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	p.PushTokens = kept
	r.s.st.profiles[id] = p
	return nil
}
