package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xavierca1/immigration-crm/internal/entity"
)

// ProspectRepository keeps prospects in process memory. Used by tests and by local runs
// without DATABASE_URL. Each record has its own RWMutex: Transition takes it exclusively,
// AppendNote shares it.
type ProspectRepository struct {
	mu      sync.Mutex
	records map[string]*entity.Prospect
	locks   map[string]*sync.RWMutex
}

func NewProspectRepository() *ProspectRepository {
	return &ProspectRepository{
		records: make(map[string]*entity.Prospect),
		locks:   make(map[string]*sync.RWMutex),
	}
}

func (r *ProspectRepository) lockFor(id string) (*sync.RWMutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[id]
	return l, ok
}

func (r *ProspectRepository) load(id string) (*entity.Prospect, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.records[id]
	if !ok {
		return nil, false
	}
	return p.Clone(), true
}

func (r *ProspectRepository) Create(ctx context.Context, p *entity.Prospect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[p.ID]; exists {
		return fmt.Errorf("prospect %s already exists", p.ID)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	r.records[p.ID] = p.Clone()
	r.locks[p.ID] = &sync.RWMutex{}
	return nil
}

func (r *ProspectRepository) FindByID(ctx context.Context, id string) (*entity.Prospect, error) {
	p, ok := r.load(id)
	if !ok {
		return nil, entity.ErrProspectNotFound
	}
	return p, nil
}

func (r *ProspectRepository) Transition(ctx context.Context, id string, fn entity.TransitionFunc) (*entity.Prospect, error) {
	lock, ok := r.lockFor(id)
	if !ok {
		return nil, entity.ErrProspectNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	current, ok := r.load(id)
	if !ok {
		return nil, entity.ErrProspectNotFound
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	next, _, err := fn(ctx, current.Clone())
	if err != nil {
		return nil, err
	}
	if next == nil {
		return current, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored := r.records[id]
	if stored.Version != current.Version {
		return nil, entity.ErrVersionConflict
	}
	next.ID = id
	next.CreatedAt = stored.CreatedAt
	// notes are append-only and written by AppendNote alone
	next.ConsultantNotes = append([]entity.ConsultantNote{}, stored.ConsultantNotes...)
	next.Version = stored.Version + 1
	r.records[id] = next.Clone()
	return next, nil
}

func (r *ProspectRepository) AppendNote(ctx context.Context, id string, note entity.ConsultantNote, guard entity.NoteGuard) (*entity.Prospect, error) {
	lock, ok := r.lockFor(id)
	if !ok {
		return nil, entity.ErrProspectNotFound
	}
	lock.RLock()
	defer lock.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[id]
	if !ok {
		return nil, entity.ErrProspectNotFound
	}
	if guard != nil {
		if err := guard(stored.Status); err != nil {
			return nil, err
		}
	}
	stored.ConsultantNotes = append(stored.ConsultantNotes, note)
	return stored.Clone(), nil
}

func (r *ProspectRepository) List(ctx context.Context, q entity.ProspectQuery) ([]*entity.Prospect, int, error) {
	r.mu.Lock()
	matched := make([]*entity.Prospect, 0, len(r.records))
	for _, p := range r.records {
		if matches(p, q) {
			matched = append(matched, p.Clone())
		}
	}
	r.mu.Unlock()

	sortProspects(matched, q.SortBy, q.Descending)

	total := len(matched)
	start := q.Offset
	if start > total {
		start = total
	}
	end := total
	if q.Limit > 0 && start+q.Limit < total {
		end = start + q.Limit
	}
	return matched[start:end], total, nil
}

func (r *ProspectRepository) CountByStatus(ctx context.Context, assignedTo string) (map[entity.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[entity.Status]int)
	for _, p := range r.records {
		if assignedTo != "" && p.AssignedTo != assignedTo {
			continue
		}
		counts[p.Status]++
	}
	return counts, nil
}

func matches(p *entity.Prospect, q entity.ProspectQuery) bool {
	if q.Status != "" && p.Status != q.Status {
		return false
	}
	if q.Status == "" && len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if p.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.AssignedTo != "" && p.AssignedTo != q.AssignedTo {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		haystack := strings.ToLower(strings.Join([]string{p.Name, p.Email, p.Phone, p.Country, p.VisaType}, " "))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func sortProspects(ps []*entity.Prospect, by string, desc bool) {
	less := func(a, b *entity.Prospect) bool {
		switch by {
		case "name":
			return strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "lead_score":
			return a.LeadScore < b.LeadScore
		case "status":
			return statusRank(a.Status) < statusRank(b.Status)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	}
	sort.SliceStable(ps, func(i, j int) bool {
		if desc {
			return less(ps[j], ps[i])
		}
		return less(ps[i], ps[j])
	})
}

func statusRank(s entity.Status) int {
	for i, st := range entity.Statuses {
		if st == s {
			return i
		}
	}
	return len(entity.Statuses)
}
