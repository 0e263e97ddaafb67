package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gymhub/api/internal/models"
)

// DefaultPlans mirrors the plans seeded by the PostgreSQL schema.
func DefaultPlans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{ID: "plan_basic", Name: "Basic", IsActive: true, Limits: models.PlanLimits{MaxOrganizations: 1, MaxBranches: 1, MaxMembers: 200, MaxTrainers: 5}},
		{ID: "plan_pro", Name: "Pro", IsActive: true, Limits: models.PlanLimits{MaxOrganizations: 1, MaxBranches: 5, MaxMembers: 2000, MaxTrainers: 50}},
		{ID: "plan_enterprise", Name: "Enterprise", IsActive: true, Limits: models.PlanLimits{MaxOrganizations: 1, MaxBranches: 50, MaxMembers: 50000, MaxTrainers: 500}},
	}
}

// MemoryStore keeps all state in process. Transactions are serialized and
// roll back by restoring a snapshot, which gives them serializable semantics.
type MemoryStore struct {
	mu   *sync.Mutex
	data *memoryData
	inTx bool
}

type memoryData struct {
	users         map[string]models.User
	bindings      map[string][]models.RoleBinding
	sessions      map[string]models.Session
	plans         map[string]models.SubscriptionPlan
	subscriptions map[string]models.AdminSubscription
	organizations map[string]models.Organization
	mfa           map[string]models.MFACredential
	backupCodes   map[string]map[string]struct{}
}

func NewMemoryStore(plans ...models.SubscriptionPlan) *MemoryStore {
	data := &memoryData{
		users:         make(map[string]models.User),
		bindings:      make(map[string][]models.RoleBinding),
		sessions:      make(map[string]models.Session),
		plans:         make(map[string]models.SubscriptionPlan),
		subscriptions: make(map[string]models.AdminSubscription),
		organizations: make(map[string]models.Organization),
		mfa:           make(map[string]models.MFACredential),
		backupCodes:   make(map[string]map[string]struct{}),
	}
	now := time.Now().UTC()
	for i, p := range plans {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		}
		data.plans[p.ID] = p
	}
	return &MemoryStore{mu: &sync.Mutex{}, data: data}
}

func (d *memoryData) clone() *memoryData {
	cp := &memoryData{
		users:         make(map[string]models.User, len(d.users)),
		bindings:      make(map[string][]models.RoleBinding, len(d.bindings)),
		sessions:      make(map[string]models.Session, len(d.sessions)),
		plans:         make(map[string]models.SubscriptionPlan, len(d.plans)),
		subscriptions: make(map[string]models.AdminSubscription, len(d.subscriptions)),
		organizations: make(map[string]models.Organization, len(d.organizations)),
		mfa:           make(map[string]models.MFACredential, len(d.mfa)),
		backupCodes:   make(map[string]map[string]struct{}, len(d.backupCodes)),
	}
	for k, v := range d.users {
		cp.users[k] = v
	}
	for k, v := range d.bindings {
		cp.bindings[k] = append([]models.RoleBinding(nil), v...)
	}
	for k, v := range d.sessions {
		cp.sessions[k] = v
	}
	for k, v := range d.plans {
		cp.plans[k] = v
	}
	for k, v := range d.subscriptions {
		cp.subscriptions[k] = v
	}
	for k, v := range d.organizations {
		cp.organizations[k] = v
	}
	for k, v := range d.mfa {
		cp.mfa[k] = v
	}
	for k, v := range d.backupCodes {
		codes := make(map[string]struct{}, len(v))
		for c := range v {
			codes[c] = struct{}{}
		}
		cp.backupCodes[k] = codes
	}
	return cp
}

func (s *MemoryStore) run(ctx context.Context, fn func(d *memoryData) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.data)
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&MemoryStore{mu: s.mu, data: s.data, inTx: true}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

func (s *MemoryStore) Users() UserStore                 { return memoryUsers{s} }
func (s *MemoryStore) Sessions() SessionStore           { return memorySessions{s} }
func (s *MemoryStore) Subscriptions() SubscriptionStore { return memorySubscriptions{s} }
func (s *MemoryStore) Organizations() OrganizationStore { return memoryOrganizations{s} }
func (s *MemoryStore) MFA() MFAStore                    { return memoryMFA{s} }

type memoryUsers struct{ s *MemoryStore }

func (m memoryUsers) Create(ctx context.Context, user models.User) error {
	return m.s.run(ctx, func(d *memoryData) error {
		if _, ok := d.users[user.ID]; ok {
			return ErrConflict
		}
		for _, u := range d.users {
			if strings.EqualFold(u.Email, user.Email) {
				return ErrConflict
			}
		}
		now := time.Now().UTC()
		user.Email = strings.ToLower(user.Email)
		user.CreatedAt, user.UpdatedAt = now, now
		d.users[user.ID] = user
		return nil
	})
}

func (m memoryUsers) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := m.s.run(ctx, func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok {
			return ErrNotFound
		}
		user = u
		return nil
	})
	return user, err
}

func (m memoryUsers) FindByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	err := m.s.run(ctx, func(d *memoryData) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				user = u
				return nil
			}
		}
		return ErrNotFound
	})
	return user, err
}

func (m memoryUsers) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		u, ok := d.users[id]
		if !ok {
			return ErrNotFound
		}
		u.PasswordHash = passwordHash
		u.UpdatedAt = time.Now().UTC()
		d.users[id] = u
		return nil
	})
}

func (m memoryUsers) CreateRoleBinding(ctx context.Context, binding models.RoleBinding) error {
	return m.s.run(ctx, func(d *memoryData) error {
		if _, ok := d.users[binding.UserID]; !ok {
			return ErrNotFound
		}
		for _, b := range d.bindings[binding.UserID] {
			if b.ID == binding.ID || (binding.IsPrimary && b.IsPrimary) {
				return ErrConflict
			}
		}
		binding.CreatedAt = time.Now().UTC()
		d.bindings[binding.UserID] = append(d.bindings[binding.UserID], binding)
		return nil
	})
}

func (m memoryUsers) RoleBindings(ctx context.Context, userID string) ([]models.RoleBinding, error) {
	var out []models.RoleBinding
	err := m.s.run(ctx, func(d *memoryData) error {
		out = append(out, d.bindings[userID]...)
		return nil
	})
	// Insertion order breaks created_at ties.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].IsPrimary != out[j].IsPrimary {
			return out[i].IsPrimary
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (m memoryUsers) AttachOrganization(ctx context.Context, userID string, role models.Role, orgID string) (int64, error) {
	var n int64
	err := m.s.run(ctx, func(d *memoryData) error {
		bindings := d.bindings[userID]
		for i := range bindings {
			if bindings[i].Role == role && bindings[i].OrganizationID == nil {
				id := orgID
				bindings[i].OrganizationID = &id
				n++
			}
		}
		return nil
	})
	return n, err
}

type memorySessions struct{ s *MemoryStore }

func (m memorySessions) Create(ctx context.Context, session models.Session) error {
	return m.s.run(ctx, func(d *memoryData) error {
		if _, ok := d.sessions[session.ID]; ok {
			return ErrConflict
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = time.Now().UTC()
		}
		d.sessions[session.ID] = session
		return nil
	})
}

func (m memorySessions) Consume(ctx context.Context, id, userID string) (models.Session, error) {
	var session models.Session
	err := m.s.run(ctx, func(d *memoryData) error {
		sess, ok := d.sessions[id]
		if !ok || sess.UserID != userID {
			return ErrNotFound
		}
		if sess.Rotated() {
			return ErrSessionRotated
		}
		now := time.Now().UTC()
		sess.RotatedAt = &now
		d.sessions[id] = sess
		session = sess
		return nil
	})
	return session, err
}

func (m memorySessions) Delete(ctx context.Context, id string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		if _, ok := d.sessions[id]; !ok {
			return ErrNotFound
		}
		delete(d.sessions, id)
		return nil
	})
}

func (m memorySessions) DeleteByUser(ctx context.Context, userID string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		for id, sess := range d.sessions {
			if sess.UserID == userID {
				delete(d.sessions, id)
			}
		}
		return nil
	})
}

func (m memorySessions) DeleteOldest(ctx context.Context, userID string, keepLatest int) error {
	return m.s.run(ctx, func(d *memoryData) error {
		var owned []models.Session
		for _, sess := range d.sessions {
			if sess.UserID == userID && !sess.Rotated() {
				owned = append(owned, sess)
			}
		}
		if len(owned) <= keepLatest {
			return nil
		}
		sort.Slice(owned, func(i, j int) bool { return owned[i].CreatedAt.After(owned[j].CreatedAt) })
		for _, sess := range owned[keepLatest:] {
			delete(d.sessions, sess.ID)
		}
		return nil
	})
}

func (m memorySessions) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := m.s.run(ctx, func(d *memoryData) error {
		for id, sess := range d.sessions {
			if !sess.ExpiresAt.After(before) {
				delete(d.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memorySubscriptions struct{ s *MemoryStore }

func (m memorySubscriptions) GetPlan(ctx context.Context, id string) (models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	err := m.s.run(ctx, func(d *memoryData) error {
		p, ok := d.plans[id]
		if !ok {
			return ErrNotFound
		}
		plan = p
		return nil
	})
	return plan, err
}

func (m memorySubscriptions) ListPlans(ctx context.Context, activeOnly bool) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	err := m.s.run(ctx, func(d *memoryData) error {
		for _, p := range d.plans {
			if activeOnly && !p.IsActive {
				continue
			}
			plans = append(plans, p)
		}
		return nil
	})
	sort.Slice(plans, func(i, j int) bool {
		if plans[i].CreatedAt.Equal(plans[j].CreatedAt) {
			return plans[i].ID < plans[j].ID
		}
		return plans[i].CreatedAt.Before(plans[j].CreatedAt)
	})
	return plans, err
}

func (m memorySubscriptions) CreateAdminSubscription(ctx context.Context, sub models.AdminSubscription) error {
	return m.s.run(ctx, func(d *memoryData) error {
		if _, ok := d.plans[sub.PlanID]; !ok {
			return ErrNotFound
		}
		for _, existing := range d.subscriptions {
			if existing.ID == sub.ID || (sub.IsActive() && existing.AdminID == sub.AdminID && existing.IsActive()) {
				return ErrConflict
			}
		}
		now := time.Now().UTC()
		sub.CreatedAt, sub.UpdatedAt = now, now
		d.subscriptions[sub.ID] = sub
		return nil
	})
}

func (m memorySubscriptions) ActiveForAdmin(ctx context.Context, adminID string) (models.AdminSubscription, error) {
	var sub models.AdminSubscription
	err := m.s.run(ctx, func(d *memoryData) error {
		for _, s := range d.subscriptions {
			if s.AdminID == adminID && s.IsActive() {
				sub = s
				return nil
			}
		}
		return ErrNotFound
	})
	return sub, err
}

type memoryOrganizations struct{ s *MemoryStore }

func (m memoryOrganizations) Create(ctx context.Context, org models.Organization) error {
	return m.s.run(ctx, func(d *memoryData) error {
		for _, existing := range d.organizations {
			if existing.ID == org.ID || existing.OwnerID == org.OwnerID {
				return ErrConflict
			}
		}
		now := time.Now().UTC()
		org.CreatedAt, org.UpdatedAt = now, now
		d.organizations[org.ID] = org
		return nil
	})
}

func (m memoryOrganizations) FindByOwner(ctx context.Context, ownerID string) (models.Organization, error) {
	var org models.Organization
	err := m.s.run(ctx, func(d *memoryData) error {
		for _, o := range d.organizations {
			if o.OwnerID == ownerID {
				org = o
				return nil
			}
		}
		return ErrNotFound
	})
	return org, err
}

type memoryMFA struct{ s *MemoryStore }

func (m memoryMFA) Get(ctx context.Context, userID string) (models.MFACredential, error) {
	var cred models.MFACredential
	err := m.s.run(ctx, func(d *memoryData) error {
		c, ok := d.mfa[userID]
		if !ok {
			return ErrNotFound
		}
		cred = c
		return nil
	})
	return cred, err
}

func (m memoryMFA) SavePending(ctx context.Context, userID, secret string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		now := time.Now().UTC()
		cred, ok := d.mfa[userID]
		if ok && cred.Enabled {
			return ErrConflict
		}
		if !ok {
			cred = models.MFACredential{UserID: userID, CreatedAt: now}
		}
		cred.Secret = secret
		cred.UpdatedAt = now
		d.mfa[userID] = cred
		return nil
	})
}

func (m memoryMFA) Enable(ctx context.Context, userID string, at time.Time) error {
	return m.s.run(ctx, func(d *memoryData) error {
		cred, ok := d.mfa[userID]
		if !ok {
			return ErrNotFound
		}
		cred.Enabled = true
		cred.EnabledAt = &at
		cred.UpdatedAt = time.Now().UTC()
		d.mfa[userID] = cred
		return nil
	})
}

func (m memoryMFA) Delete(ctx context.Context, userID string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		delete(d.mfa, userID)
		delete(d.backupCodes, userID)
		return nil
	})
}

func (m memoryMFA) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	return m.s.run(ctx, func(d *memoryData) error {
		codes := make(map[string]struct{}, len(codeHashes))
		for _, h := range codeHashes {
			if _, dup := codes[h]; dup {
				return ErrConflict
			}
			codes[h] = struct{}{}
		}
		d.backupCodes[userID] = codes
		return nil
	})
}

func (m memoryMFA) ConsumeBackupCode(ctx context.Context, userID, codeHash string) (bool, error) {
	var consumed bool
	err := m.s.run(ctx, func(d *memoryData) error {
		codes := d.backupCodes[userID]
		if _, ok := codes[codeHash]; ok {
			delete(codes, codeHash)
			consumed = true
		}
		return nil
	})
	return consumed, err
}

func (m memoryMFA) CountBackupCodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := m.s.run(ctx, func(d *memoryData) error {
		n = len(d.backupCodes[userID])
		return nil
	})
	return n, err
}
