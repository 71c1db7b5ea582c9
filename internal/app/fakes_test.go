package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"squad_recommender/internal/domain/catalog"
	"squad_recommender/internal/domain/mail"
	"squad_recommender/internal/domain/mission"
	"squad_recommender/internal/domain/squad"
	idb "squad_recommender/internal/infra/database"

	"github.com/sirupsen/logrus"
)

var kst = time.FixedZone("KST", 9*60*60)

// wednesday 2024-05-15
func kstTime(day, hour, min int) time.Time {
	return time.Date(2024, time.May, day, hour, min, 0, 0, kst)
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// memMissionRepo mirrors the constraints of the Postgres schema.
type memMissionRepo struct {
	mu         sync.Mutex
	nextID     int64
	batches    map[int64]*mission.Batch
	problems   map[int64][]mission.BatchProblem
	deliveries map[int64]*mission.MemberDelivery
	records    map[int64]*mission.ProblemRecord

	failCreateDelivery map[int64]bool // by member id
}

func newMemMissionRepo() *memMissionRepo {
	return &memMissionRepo{
		batches:            map[int64]*mission.Batch{},
		problems:           map[int64][]mission.BatchProblem{},
		deliveries:         map[int64]*mission.MemberDelivery{},
		records:            map[int64]*mission.ProblemRecord{},
		failCreateDelivery: map[int64]bool{},
	}
}

func (r *memMissionRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memMissionRepo) CreateBatch(_ context.Context, b *mission.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.batches {
		if existing.ScopeKey == b.ScopeKey && existing.CycleStart.Equal(b.CycleStart) {
			return idb.ErrDuplicateBatch
		}
	}
	b.ID = r.id()
	cp := *b
	r.batches[b.ID] = &cp
	return nil
}

func (r *memMissionRepo) GetBatchByID(_ context.Context, id int64) (*mission.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, idb.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *memMissionRepo) FindBatchInWindow(_ context.Context, scopeKey string, from, to time.Time) (*mission.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *mission.Batch
	for _, b := range r.batches {
		if b.ScopeKey != scopeKey || b.CreatedAt.Before(from) || b.CreatedAt.After(to) {
			continue
		}
		if found == nil || b.CreatedAt.After(found.CreatedAt) {
			found = b
		}
	}
	if found == nil {
		return nil, idb.ErrBatchNotFound
	}
	cp := *found
	return &cp, nil
}

func (r *memMissionRepo) AddBatchProblems(_ context.Context, batchID int64, problems []mission.BatchProblem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.problems[batchID] = append(r.problems[batchID], problems...)
	return nil
}

func (r *memMissionRepo) ListBatchProblems(_ context.Context, batchID int64) ([]mission.BatchProblem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := append([]mission.BatchProblem(nil), r.problems[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (r *memMissionRepo) CreateDelivery(_ context.Context, d *mission.MemberDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreateDelivery[d.MemberID] {
		return errors.New("insert failed")
	}
	for _, existing := range r.deliveries {
		if existing.MemberID == d.MemberID && existing.BatchID == d.BatchID {
			return idb.ErrDuplicateDelivery
		}
	}
	d.ID = r.id()
	d.CreatedAt = r.batches[d.BatchID].CreatedAt
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *memMissionRepo) GetDeliveryByID(_ context.Context, id int64) (*mission.MemberDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, idb.ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memMissionRepo) sortedDeliveries(keep func(*mission.MemberDelivery) bool) []*mission.MemberDelivery {
	out := []*mission.MemberDelivery{}
	for _, d := range r.deliveries {
		if keep(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memMissionRepo) ListDeliveriesByBatch(_ context.Context, batchID int64) ([]*mission.MemberDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedDeliveries(func(d *mission.MemberDelivery) bool { return d.BatchID == batchID }), nil
}

func (r *memMissionRepo) ListPendingDeliveries(_ context.Context, from, to time.Time) ([]*mission.MemberDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedDeliveries(func(d *mission.MemberDelivery) bool {
		created := r.batches[d.BatchID].CreatedAt
		return d.IsPending() && !created.Before(from) && !created.After(to)
	}), nil
}

func (r *memMissionRepo) move(id int64, from, status mission.DeliveryStatus, sentAt time.Time, notMoved error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return idb.ErrDeliveryNotFound
	}
	if d.Status != from {
		return notMoved
	}
	d.Status = status
	if status == mission.DeliverySent {
		d.SentAt = sql.NullTime{Time: sentAt, Valid: true}
	}
	return nil
}

func (r *memMissionRepo) ClaimDelivery(_ context.Context, id int64) error {
	return r.move(id, mission.DeliveryPending, mission.DeliverySending, time.Time{}, idb.ErrDeliveryNotPending)
}

func (r *memMissionRepo) MarkDeliverySent(_ context.Context, id int64, sentAt time.Time) error {
	return r.move(id, mission.DeliverySending, mission.DeliverySent, sentAt, idb.ErrDeliveryNotClaimed)
}

func (r *memMissionRepo) MarkDeliveryFailed(_ context.Context, id int64) error {
	return r.move(id, mission.DeliverySending, mission.DeliveryFailed, time.Time{}, idb.ErrDeliveryNotClaimed)
}

func (r *memMissionRepo) CreateProblemRecord(_ context.Context, rec *mission.ProblemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = r.id()
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *memMissionRepo) GetProblemRecord(_ context.Context, id int64) (*mission.ProblemRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, idb.ErrProblemRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memMissionRepo) MarkProblemSolved(_ context.Context, id int64, solvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return idb.ErrProblemRecordNotFound
	}
	if !rec.SolvedAt.Valid {
		rec.SolvedAt = sql.NullTime{Time: solvedAt, Valid: true}
	}
	return nil
}

func (r *memMissionRepo) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *memMissionRepo) recordsFor(memberID int64) []*mission.ProblemRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*mission.ProblemRecord{}
	for _, rec := range r.records {
		if rec.MemberID == memberID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type memDirectory struct {
	mu        sync.Mutex
	scopes    []*squad.Scope
	members   map[string][]*squad.Member // by scope key
	listErr   error
	memberErr map[int64]error
}

func newMemDirectory() *memDirectory {
	return &memDirectory{members: map[string][]*squad.Member{}, memberErr: map[int64]error{}}
}

func (d *memDirectory) add(scope *squad.Scope, members ...*squad.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scopes = append(d.scopes, scope)
	d.members[scope.Key()] = append(d.members[scope.Key()], members...)
}

func (d *memDirectory) ListActiveOn(_ context.Context, day time.Weekday) ([]*squad.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	out := []*squad.Scope{}
	for _, s := range d.scopes {
		if s.Settings.ActiveDays.Has(day) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (d *memDirectory) GetScope(_ context.Context, teamID int64, squadID sql.NullInt64) (*squad.Scope, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.scopes {
		if s.TeamID == teamID && s.SquadID == squadID {
			return s, nil
		}
	}
	return nil, idb.ErrScopeNotFound
}

func (d *memDirectory) VerifiedHandles(_ context.Context, scope *squad.Scope) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []string{}
	for _, m := range d.members[scope.Key()] {
		if h, ok := m.VerifiedHandle(); ok {
			out = append(out, h)
		}
	}
	return out, nil
}

func (d *memDirectory) CurrentMembers(_ context.Context, scope *squad.Scope) ([]*squad.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*squad.Member(nil), d.members[scope.Key()]...), nil
}

func (d *memDirectory) GetMember(_ context.Context, id int64) (*squad.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.memberErr[id]; err != nil {
		return nil, err
	}
	for _, ms := range d.members {
		for _, m := range ms {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return nil, idb.ErrMemberNotFound
}

type fakeRecommender struct {
	mu       sync.Mutex
	problems []catalog.ProblemInfo
	err      error
	queries  []catalog.Query
	panicFor string // panic when the handles contain this value
}

func (f *fakeRecommender) Recommend(_ context.Context, q catalog.Query) ([]catalog.ProblemInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	for _, h := range q.Handles {
		if f.panicFor != "" && h == f.panicFor {
			panic("recommender exploded")
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	n := q.Count
	if n > len(f.problems) {
		n = len(f.problems)
	}
	return append([]catalog.ProblemInfo(nil), f.problems[:n]...), nil
}

type fakeSyncer struct {
	mu  sync.Mutex
	ids map[int]int64
}

func (s *fakeSyncer) Upsert(_ context.Context, p catalog.ProblemInfo) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = map[int]int64{}
	}
	if id, ok := s.ids[p.ExternalID]; ok {
		return id, nil
	}
	id := int64(len(s.ids) + 1000)
	s.ids[p.ExternalID] = id
	return id, nil
}

type fakeComposer struct{}

func (fakeComposer) Build(_ context.Context, d *mission.MemberDelivery, m *squad.Member) (*mail.Message, error) {
	return &mail.Message{
		To:       m.ContactAddress(),
		ToName:   m.DisplayName,
		Subject:  fmt.Sprintf("batch %d", d.BatchID),
		TextBody: "problems",
	}, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []string
	failTo map[string]bool
	delay  time.Duration // widens the window between claim and status update
}

func (t *fakeTransport) Send(_ context.Context, msg *mail.Message) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failTo[msg.To] {
		return errors.New("smtp: mailbox unavailable")
	}
	t.sent = append(t.sent, msg.To)
	return nil
}

func (t *fakeTransport) sentTo() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := append([]string(nil), t.sent...)
	sort.Strings(out)
	return out
}

func problemsN(n int) []catalog.ProblemInfo {
	out := make([]catalog.ProblemInfo, n)
	for i := range out {
		out[i] = catalog.ProblemInfo{ExternalID: 1000 + i, Title: fmt.Sprintf("Problem %d", i+1), Tier: 6 + i}
	}
	return out
}

func verifiedMember(id int64, handle string) *squad.Member {
	return &squad.Member{
		ID:             id,
		DisplayName:    handle,
		Email:          sql.NullString{String: handle + "@example.com", Valid: true},
		Handle:         sql.NullString{String: handle, Valid: true},
		HandleVerified: true,
	}
}

func teamScope(teamID int64, days squad.Weekdays, count int) *squad.Scope {
	return &squad.Scope{
		TeamID: teamID,
		Name:   fmt.Sprintf("Team %d", teamID),
		Settings: squad.Settings{
			ActiveDays:   days,
			Difficulty:   squad.DifficultyNormal,
			ProblemCount: count,
		},
	}
}

// harness wires every service against in-memory fakes.
type harness struct {
	clock     *fakeClock
	repo      *memMissionRepo
	dir       *memDirectory
	rec       *fakeRecommender
	transport *fakeTransport

	creator   *RecommendationCreator
	delivery  *DeliveryService
	scheduled *ScheduledService
	manual    *ManualService
	solve     *SolveService
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		clock:     &fakeClock{now: now},
		repo:      newMemMissionRepo(),
		dir:       newMemDirectory(),
		rec:       &fakeRecommender{problems: problemsN(10)},
		transport: &fakeTransport{failTo: map[string]bool{}},
	}
	log := testLogger()
	h.creator = NewRecommendationCreator(h.repo, h.dir, h.rec, &fakeSyncer{}, h.clock, log)
	h.delivery = NewDeliveryService(h.repo, h.dir, fakeComposer{}, h.transport, h.clock, time.Second, 4, log)
	h.scheduled = NewScheduledService(h.dir, h.repo, h.creator, 4, log)
	h.manual = NewManualService(h.repo, h.creator, h.delivery, h.clock, mission.DefaultBlockedWindow, log)
	h.solve = NewSolveService(h.repo, h.clock, log)
	return h
}
