package interview

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/careflow/careflow/internal/domain/encounter"
	"github.com/careflow/careflow/internal/platform/catalog"
)

// maxExplicitModules caps how many module types one AddModules call may name.
const maxExplicitModules = 3

// TxRunner serializes writers per encounter. Every mutating operation runs
// inside one encounter-scoped exclusive critical section and only returns
// after it commits.
type TxRunner interface {
	InEncounterTx(ctx context.Context, encounterID uuid.UUID, fn func(ctx context.Context) error) error
}

// Service is the assignment manager: it owns module addition, answer
// merge/save, status derivation, and lock/unlock for an encounter's interview.
type Service struct {
	encounters  encounter.Repository
	assignments AssignmentRepository
	lockEvents  LockEventRepository
	renderer    *catalog.Renderer
	tx          TxRunner

	mu      sync.Mutex
	indexes map[uuid.UUID]*SectionIndex
	locks   map[uuid.UUID]*LockEvent
}

func NewService(
	encounters encounter.Repository,
	assignments AssignmentRepository,
	lockEvents LockEventRepository,
	renderer *catalog.Renderer,
	tx TxRunner,
) *Service {
	return &Service{
		encounters:  encounters,
		assignments: assignments,
		lockEvents:  lockEvents,
		renderer:    renderer,
		tx:          tx,
		indexes:     make(map[uuid.UUID]*SectionIndex),
		locks:       make(map[uuid.UUID]*LockEvent),
	}
}

// AnswerSet is the merged view of an encounter's answers plus per-module
// metadata.
type AnswerSet struct {
	Answers  map[string]interface{} `json:"answers"`
	Metadata map[string]interface{} `json:"metadata"`
}

// QuestionListItem is one flattened question tagged with its owning module.
type QuestionListItem struct {
	catalog.Question
	ModuleType   ModuleType `json:"module_type"`
	AssignmentID uuid.UUID  `json:"assignment_id"`
	Locked       bool       `json:"locked"`
}

// -- Module addition --

// AddModules attaches the requested explicit modules to the encounter,
// injecting dependencies per the assignment rules: an intro when none exists,
// a lethal-means module alongside the guided interview or stability plan, and
// an outro appended after the explicit modules.
func (s *Service) AddModules(ctx context.Context, encounterID uuid.UUID, types []ModuleType) error {
	if len(types) > maxExplicitModules {
		return &TooManyModulesError{Requested: len(types)}
	}
	for _, t := range types {
		if !t.IsExplicit() {
			return &ModuleNotRequestableError{Type: t}
		}
	}

	var created []*Assignment
	err := s.tx.InEncounterTx(ctx, encounterID, func(ctx context.Context) error {
		enc, err := s.encounters.GetByID(ctx, encounterID)
		if err != nil {
			return fmt.Errorf("encounter not found: %w", err)
		}
		all, err := s.assignments.ListByEncounter(ctx, encounterID)
		if err != nil {
			return err
		}

		hasType := func(t ModuleType) bool {
			for _, a := range all {
				if a.Type == t {
					return true
				}
			}
			return false
		}

		create := func(t ModuleType) (*Assignment, error) {
			a := newAssignment(encounterID, t)
			if err := s.assignments.Create(ctx, a); err != nil {
				return nil, fmt.Errorf("create %s assignment: %w", t, err)
			}
			all = append(all, a)
			created = append(created, a)
			return a, nil
		}

		if !hasType(ModuleIntro) {
			if _, err := create(ModuleIntro); err != nil {
				return err
			}
		}

		outroNeeded := false
		for _, t := range prioritize(types) {
			if hasType(t) {
				continue
			}
			switch t {
			case ModuleGuidedInterview:
				if _, err := create(ModuleGuidedInterview); err != nil {
					return err
				}
				if !hasType(ModuleLethalMeans) {
					if _, err := create(ModuleLethalMeans); err != nil {
						return err
					}
				}
				outroNeeded = true
			case ModuleStabilityPlan:
				if !hasType(ModuleLethalMeans) {
					if _, err := create(ModuleLethalMeans); err != nil {
						return err
					}
				}
				sp, err := create(ModuleStabilityPlan)
				if err != nil {
					return err
				}
				if err := s.inheritAnswers(ctx, all, sp); err != nil {
					return err
				}
				outroNeeded = true
			case ModuleComfortSkills:
				if _, err := create(ModuleComfortSkills); err != nil {
					return err
				}
			}
		}

		if outroNeeded && !hasType(ModuleOutro) {
			if _, err := create(ModuleOutro); err != nil {
				return err
			}
		}

		if len(created) == 0 {
			return nil
		}
		return s.reanchorPosition(ctx, enc, all, created)
	})
	if err != nil {
		return err
	}

	// The cached section index is dropped only once the new assignments are
	// committed. Invalidating mid-transaction lets a concurrent reader, or a
	// rollback, repopulate the cache from state that never lands.
	if len(created) > 0 {
		s.invalidateIndex(encounterID)
	}
	return nil
}

// prioritize repositions the requested types into fixed priority order,
// dropping duplicates. The input is at most three elements, so this is an
// explicit lookup, not a sort.
func prioritize(types []ModuleType) []ModuleType {
	ordered := make([]ModuleType, 0, len(types))
	for _, want := range explicitPriority {
		for _, t := range types {
			if t == want {
				ordered = append(ordered, t)
				break
			}
		}
	}
	return ordered
}

// inheritAnswers copies the encounter's current merged answers onto a freshly
// created module, restricted to the keys that module owns, so a newly-added
// module picks up already-entered overlapping answers.
func (s *Service) inheritAnswers(ctx context.Context, all []*Assignment, a *Assignment) error {
	actives := filterAssignments(all, true, false)
	merged := mergedAnswers(actives)
	if len(merged) == 0 {
		return nil
	}

	owned, err := s.moduleFor(a.Type).AnswerKeys(s.renderContext(actives))
	if err != nil {
		return err
	}

	inherited := false
	for k := range owned {
		if v, ok := merged[k]; ok {
			a.Answers[k] = v
			inherited = true
		}
	}
	if !inherited {
		return nil
	}
	return s.assignments.UpdateAnswers(ctx, a)
}

// reanchorPosition moves the patient's position back to the first question of
// a newly created module when the current position already lies past it. The
// first match across the created assignments wins; the position never moves
// forward here.
func (s *Service) reanchorPosition(ctx context.Context, enc *encounter.Encounter, all, created []*Assignment) error {
	actives := filterAssignments(all, true, false)
	// Built uncached: the transaction's membership change is not committed
	// yet, so it must not reach the shared index cache.
	idx, err := s.buildIndex(actives)
	if err != nil {
		return err
	}

	cur := -1
	if enc.CurrentSectionUID != nil {
		cur = idx.IndexOf(*enc.CurrentSectionUID)
	}

	rctx := s.renderContext(actives)
	for _, a := range created {
		questions, err := s.moduleFor(a.Type).Questions(rctx)
		if err != nil {
			return err
		}
		if len(questions) == 0 {
			continue
		}
		first := questions[0].UID
		fi := idx.IndexOf(first)
		if fi < 0 || cur <= fi {
			continue
		}
		now := time.Now().UTC()
		if err := s.encounters.UpdateCurrentSection(ctx, enc.ID, first, now); err != nil {
			return err
		}
		enc.CurrentSectionUID = &first
		enc.SectionChangedAt = &now
		break
	}
	return nil
}

// -- Answer save and merge --

// SaveAnswers merges an incoming answer batch into every active module that
// owns any of its keys, advancing the patient's position forward-only to the
// highest-indexed section addressed (unless the batch came from the takeaway
// kit), and re-deriving each touched module's status.
func (s *Service) SaveAnswers(ctx context.Context, encounterID uuid.UUID, answers map[string]interface{}, takeawayKit bool) error {
	if len(answers) == 0 {
		return nil
	}

	incoming := make(map[string]interface{}, len(answers))
	for k, v := range answers {
		incoming[catalog.ToSnake(k)] = v
	}

	err := s.tx.InEncounterTx(ctx, encounterID, func(ctx context.Context) error {
		enc, err := s.encounters.GetByID(ctx, encounterID)
		if err != nil {
			return fmt.Errorf("encounter not found: %w", err)
		}
		all, err := s.assignments.ListByEncounter(ctx, encounterID)
		if err != nil {
			return err
		}
		actives := filterAssignments(all, true, false)
		if len(actives) == 0 {
			return &ModuleNotFoundError{}
		}

		idx, err := s.sectionIndex(encounterID, actives)
		if err != nil {
			return err
		}

		if !takeawayKit {
			if err := s.advancePosition(ctx, enc, idx, incoming); err != nil {
				return err
			}
		}

		rctx := s.renderContext(actives)
		for _, a := range actives {
			mod := s.moduleFor(a.Type)
			owned, err := mod.AnswerKeys(rctx)
			if err != nil {
				return err
			}

			subset := make(map[string]interface{})
			for k, v := range incoming {
				if owned[k] {
					subset[k] = v
				}
			}

			changed := false
			if len(subset) > 0 {
				locked, _, err := s.effectiveLock(ctx, a.ID)
				if err != nil {
					return err
				}
				if locked {
					return &ActivityValidationError{Field: firstKey(subset), ValidationType: "locked"}
				}

				for k, v := range subset {
					if prev, ok := a.Answers[k]; !ok || !reflect.DeepEqual(prev, v) {
						a.Answers[k] = v
						changed = true
					}
				}

				mod.UpdateScores(a)
				if err := s.assignments.UpdateAnswers(ctx, a); err != nil {
					return err
				}
			}

			// Status is re-derived for every active module, not only the
			// touched ones: advancing the position can complete a module the
			// batch never addressed.
			if err := s.deriveStatus(ctx, a, idx, rctx, enc, changed); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}

	// A saved render flag changes which sections render, so the cached index
	// is dropped, but only after the write is committed.
	for k := range incoming {
		if renderFlagKeys[k] {
			s.invalidateIndex(encounterID)
			break
		}
	}
	return nil
}

// renderFlagKeys are the answer keys that feed the catalog render context.
// Saving one can change which sections render, so the cached section index
// is dropped.
var renderFlagKeys = map[string]bool{
	"strategies_firearm":  true,
	"strategies_medicine": true,
	"strategies_places":   true,
	"strategies_other":    true,
	"home_setup_consent":  true,
}

// advancePosition moves the current section forward-only to the
// highest-indexed section among the incoming keys.
func (s *Service) advancePosition(ctx context.Context, enc *encounter.Encounter, idx *SectionIndex, incoming map[string]interface{}) error {
	best := -1
	var bestUID string
	for k := range incoming {
		uid, ok := idx.SectionFor(k)
		if !ok {
			continue
		}
		if p := idx.IndexOf(uid); p > best {
			best = p
			bestUID = uid
		}
	}
	if best < 0 {
		return nil
	}

	cur := -1
	if enc.CurrentSectionUID != nil {
		cur = idx.IndexOf(*enc.CurrentSectionUID)
	}
	if best <= cur {
		return nil
	}

	now := time.Now().UTC()
	if err := s.encounters.UpdateCurrentSection(ctx, enc.ID, bestUID, now); err != nil {
		return err
	}
	enc.CurrentSectionUID = &bestUID
	enc.SectionChangedAt = &now
	return nil
}

// deriveStatus evaluates the progress state machine for one assignment
// against the current position. Status writes only happen when the computed
// value differs from the stored one.
func (s *Service) deriveStatus(ctx context.Context, a *Assignment, idx *SectionIndex, rctx catalog.Context, enc *encounter.Encounter, valueChanged bool) error {
	questions, err := s.moduleFor(a.Type).Questions(rctx)
	if err != nil {
		return err
	}
	if len(questions) == 0 {
		return nil
	}

	first := idx.IndexOf(questions[0].UID)
	last := idx.IndexOf(questions[len(questions)-1].UID)
	cur := -1
	if enc.CurrentSectionUID != nil {
		cur = idx.IndexOf(*enc.CurrentSectionUID)
	}

	now := time.Now().UTC()
	computed := a.Status
	inside := first >= 0 && cur >= first && cur < last
	switch {
	case inside:
		computed = StatusInProgress
	case last >= 0 && cur >= last:
		switch a.Status {
		case StatusCompleted:
			if valueChanged {
				computed = StatusUpdated
			}
		case StatusUpdated:
			// stays UPDATED on further edits
		default:
			computed = StatusCompleted
		}
	}

	dirty := false
	if valueChanged && inside && a.StartedAt == nil {
		a.StartedAt = &now
		dirty = true
	}
	if computed != a.Status {
		a.Status = computed
		a.StatusChangedAt = now
		dirty = true
	}
	if !dirty {
		return nil
	}
	return s.assignments.UpdateStatus(ctx, a)
}

// GetAnswers merges all active modules' answers into one flat map. Modules
// are visited oldest-created first, so for shared keys the newest module's
// value wins. Metadata carries the current section and per-module state.
func (s *Service) GetAnswers(ctx context.Context, encounterID uuid.UUID) (*AnswerSet, error) {
	enc, err := s.encounters.GetByID(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("encounter not found: %w", err)
	}
	all, err := s.assignments.ListByEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	actives := filterAssignments(all, true, false)

	set := &AnswerSet{
		Answers:  mergedAnswers(actives),
		Metadata: make(map[string]interface{}),
	}
	if enc.CurrentSectionUID != nil {
		set.Metadata["current_section_uid"] = *enc.CurrentSectionUID
	}

	for _, a := range actives {
		locked, lockedAt, err := s.effectiveLock(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		status, changedAt := a.Status, a.StatusChangedAt
		if locked {
			status, changedAt = StatusCompleted, lockedAt
		}

		meta := map[string]interface{}{
			"status":            status,
			"status_changed_at": changedAt,
			"locked":            locked,
		}
		if label := s.moduleFor(a.Type).ProgressBarLabel(); label != "" {
			meta["progress_bar_label"] = label
		}
		if a.Type == ModuleGuidedInterview {
			addScoreMeta(meta, a)
		}
		set.Metadata[string(a.Type)] = meta
	}
	return set, nil
}

func addScoreMeta(meta map[string]interface{}, a *Assignment) {
	if a.Score != nil {
		meta["score"] = *a.Score
	}
	if a.Risk != nil {
		meta["risk"] = *a.Risk
	}
	if a.SuicideIndexScore != nil {
		meta["suicide_index_score"] = *a.SuicideIndexScore
	}
	if a.SuicideIndexLabel != nil {
		meta["suicide_index_label"] = *a.SuicideIndexLabel
	}
	if a.CurrentAttempt != nil {
		meta["current_attempt"] = *a.CurrentAttempt
	}
	if a.PlanAndIntent != nil {
		meta["plan_and_intent"] = *a.PlanAndIntent
	}
}

// ListQuestions flattens the filtered modules' catalogs into one ordered
// sequence, each question tagged with its owning module's lock flag.
func (s *Service) ListQuestions(ctx context.Context, encounterID uuid.UUID, activeOnly, explicitOnly bool) ([]QuestionListItem, error) {
	all, err := s.assignments.ListByEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}

	rctx := s.renderContext(filterAssignments(all, true, false))
	filtered := filterAssignments(all, activeOnly, explicitOnly)

	var items []QuestionListItem
	for _, a := range filtered {
		questions, err := s.moduleFor(a.Type).Questions(rctx)
		if err != nil {
			return nil, err
		}
		locked, _, err := s.effectiveLock(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		for _, q := range questions {
			items = append(items, QuestionListItem{
				Question:     q,
				ModuleType:   a.Type,
				AssignmentID: a.ID,
				Locked:       locked,
			})
		}
	}
	return items, nil
}

// Assignments returns every assignment for the encounter with its derived
// lock flag, newest first within the stored order.
func (s *Service) Assignments(ctx context.Context, encounterID uuid.UUID, activeOnly bool) ([]*Assignment, error) {
	all, err := s.assignments.ListByEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	filtered := filterAssignments(all, activeOnly, false)
	for _, a := range filtered {
		locked, _, err := s.effectiveLock(ctx, a.ID)
		if err != nil {
			return nil, err
		}
		a.Locked = locked
	}
	return filtered, nil
}

// -- Locking --

// Lock appends a locking event for the assignment. Locked modules report
// COMPLETED and reject direct answer writes until unlocked.
func (s *Service) Lock(ctx context.Context, assignmentID uuid.UUID) error {
	return s.appendLockEvent(ctx, assignmentID, true)
}

// Unlock appends an unlocking event for the assignment.
func (s *Service) Unlock(ctx context.Context, assignmentID uuid.UUID) error {
	return s.appendLockEvent(ctx, assignmentID, false)
}

func (s *Service) appendLockEvent(ctx context.Context, assignmentID uuid.UUID, locked bool) error {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return fmt.Errorf("assignment not found: %w", err)
	}

	err = s.tx.InEncounterTx(ctx, a.EncounterID, func(ctx context.Context) error {
		ev := &LockEvent{
			AssignmentID: assignmentID,
			Locked:       locked,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.lockEvents.Create(ctx, ev); err != nil {
			return err
		}

		// Re-derive status now that the lock state changed.
		enc, err := s.encounters.GetByID(ctx, a.EncounterID)
		if err != nil {
			return err
		}
		all, err := s.assignments.ListByEncounter(ctx, a.EncounterID)
		if err != nil {
			return err
		}
		actives := filterAssignments(all, true, false)
		idx, err := s.sectionIndex(a.EncounterID, actives)
		if err != nil {
			return err
		}
		return s.deriveStatus(ctx, a, idx, s.renderContext(actives), enc, false)
	})
	if err != nil {
		return err
	}

	// Invalidated after commit. A reader racing the transaction would
	// otherwise repopulate the cache from the pre-commit event history and
	// keep serving the old lock state.
	s.invalidateLock(assignmentID)
	return nil
}

// GetStatus reports the assignment's derived status. A locked assignment is
// always reported COMPLETED with the lock event's time as the change
// timestamp.
func (s *Service) GetStatus(ctx context.Context, assignmentID uuid.UUID) (Status, time.Time, error) {
	a, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("assignment not found: %w", err)
	}
	locked, lockedAt, err := s.effectiveLock(ctx, assignmentID)
	if err != nil {
		return "", time.Time{}, err
	}
	if locked {
		return StatusCompleted, lockedAt, nil
	}
	return a.Status, a.StatusChangedAt, nil
}

// LockEvents returns the append-only audit trail for an assignment, newest
// first.
func (s *Service) LockEvents(ctx context.Context, assignmentID uuid.UUID) ([]*LockEvent, error) {
	return s.lockEvents.ListByAssignment(ctx, assignmentID)
}

// effectiveLock resolves the assignment's lock state from its most recent
// event, caching the result until the next lock mutation.
func (s *Service) effectiveLock(ctx context.Context, assignmentID uuid.UUID) (bool, time.Time, error) {
	s.mu.Lock()
	ev, ok := s.locks[assignmentID]
	s.mu.Unlock()

	if !ok {
		latest, err := s.lockEvents.Latest(ctx, assignmentID)
		if err != nil {
			return false, time.Time{}, err
		}
		ev = latest
		s.mu.Lock()
		s.locks[assignmentID] = ev
		s.mu.Unlock()
	}

	if ev == nil {
		return false, time.Time{}, nil
	}
	return ev.Locked, ev.CreatedAt, nil
}

func (s *Service) invalidateLock(assignmentID uuid.UUID) {
	s.mu.Lock()
	delete(s.locks, assignmentID)
	s.mu.Unlock()
}

// -- Shared helpers --

// filterAssignments applies the active-instance dedupe: with activeOnly set,
// only the most recently created instance of each type survives; explicitOnly
// further restricts to the directly-requestable types. The result is ordered
// by module priority, creation time breaking ties.
func filterAssignments(all []*Assignment, activeOnly, explicitOnly bool) []*Assignment {
	var filtered []*Assignment
	if activeOnly {
		latest := make(map[ModuleType]*Assignment)
		for _, a := range all {
			prev, ok := latest[a.Type]
			if !ok || a.CreatedAt.After(prev.CreatedAt) {
				latest[a.Type] = a
			}
		}
		for _, a := range latest {
			filtered = append(filtered, a)
		}
	} else {
		filtered = append(filtered, all...)
	}

	if explicitOnly {
		kept := filtered[:0]
		for _, a := range filtered {
			if a.Type.IsExplicit() {
				kept = append(kept, a)
			}
		}
		filtered = kept
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		pi, pj := modulePriority[filtered[i].Type], modulePriority[filtered[j].Type]
		if pi != pj {
			return pi < pj
		}
		return filtered[i].CreatedAt.Before(filtered[j].CreatedAt)
	})
	return filtered
}

// mergedAnswers flattens the given assignments' answer maps, visiting
// oldest-created first so a newer module's value wins for shared keys.
func mergedAnswers(assignments []*Assignment) map[string]interface{} {
	byAge := make([]*Assignment, len(assignments))
	copy(byAge, assignments)
	sort.SliceStable(byAge, func(i, j int) bool {
		return byAge[i].CreatedAt.Before(byAge[j].CreatedAt)
	})

	merged := make(map[string]interface{})
	for _, a := range byAge {
		for k, v := range a.Answers {
			merged[k] = v
		}
	}
	return merged
}

// renderContext derives the catalog template flags from the active modules
// and their answers.
func (s *Service) renderContext(actives []*Assignment) catalog.Context {
	rctx := catalog.Context{}
	for _, a := range actives {
		switch a.Type {
		case ModuleGuidedInterview:
			rctx.HasGuidedInterview = true
		case ModuleStabilityPlan:
			rctx.HasStabilityPlan = true
		case ModuleComfortSkills:
			rctx.HasComfortSkills = true
		case ModuleLethalMeans:
			for _, k := range []string{"strategies_firearm", "strategies_medicine", "strategies_places", "strategies_other"} {
				if v, ok := a.Answers[k]; ok && v != nil {
					rctx.HasSecuritySteps = true
					break
				}
			}
		}
		if consented, ok := boolAnswer(a.Answers, "home_setup_consent"); ok && consented {
			rctx.HomeSetupConsented = true
		}
	}
	return rctx
}

func (s *Service) moduleFor(t ModuleType) Module {
	return newModule(t, s.renderer)
}

// sectionIndex returns the cached flattened index for the encounter,
// rebuilding it after an invalidation.
func (s *Service) sectionIndex(encounterID uuid.UUID, actives []*Assignment) (*SectionIndex, error) {
	s.mu.Lock()
	idx, ok := s.indexes[encounterID]
	s.mu.Unlock()
	if ok {
		return idx, nil
	}

	idx, err := s.buildIndex(actives)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.indexes[encounterID] = idx
	s.mu.Unlock()
	return idx, nil
}

// buildIndex flattens the active modules' rendered questions into a section
// index without consulting or writing the cache.
func (s *Service) buildIndex(actives []*Assignment) (*SectionIndex, error) {
	rctx := s.renderContext(actives)
	perModule := make([][]catalog.Question, 0, len(actives))
	for _, a := range actives {
		questions, err := s.moduleFor(a.Type).Questions(rctx)
		if err != nil {
			return nil, err
		}
		perModule = append(perModule, questions)
	}
	return newSectionIndex(perModule), nil
}

func (s *Service) invalidateIndex(encounterID uuid.UUID) {
	s.mu.Lock()
	delete(s.indexes, encounterID)
	s.mu.Unlock()
}

func firstKey(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys[0]
}
