package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// QuestionCache caches question sets per subject with TTL to avoid repeated
// store hits when many students start the same quiz. Writes made through the
// cache invalidate the affected subjects.
type QuestionCache struct {
	app.QuestionRepository

	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rndMu sync.Mutex
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionCache(next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: next,
		ttl:                ttl,
		clock:              time.Now,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:              make(map[string]cachedQuestions),
	}
}

func (c *QuestionCache) GetQuestionsForSubject(ctx context.Context, subjectID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(subjectID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(subjectID, func() (interface{}, error) {
		if qs, ok := c.lookup(subjectID); ok {
			return qs, nil
		}
		now := c.clock()
		qs, err := c.QuestionRepository.GetQuestionsForSubject(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		expiresAt := now.Add(c.ttlWithJitter())
		c.mu.Lock()
		c.cache[subjectID] = cachedQuestions{questions: qs, expiresAt: expiresAt}
		c.mu.Unlock()
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneQuestions(result.([]domain.Question)), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	created, err := c.QuestionRepository.CreateQuestion(ctx, q)
	c.Invalidate(q.SubjectID)
	return created, err
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if prev, err := c.QuestionRepository.GetQuestion(ctx, q.ID); err == nil {
		c.Invalidate(prev.SubjectID)
	}
	updated, err := c.QuestionRepository.UpdateQuestion(ctx, q)
	c.Invalidate(q.SubjectID)
	return updated, err
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	prev, lookupErr := c.QuestionRepository.GetQuestion(ctx, id)
	err := c.QuestionRepository.DeleteQuestion(ctx, id)
	if lookupErr == nil {
		c.Invalidate(prev.SubjectID)
	}
	return err
}

// Invalidate drops the cached set for a subject.
func (c *QuestionCache) Invalidate(subjectID string) {
	c.mu.Lock()
	delete(c.cache, subjectID)
	c.mu.Unlock()
	c.sf.Forget(subjectID)
}

func (c *QuestionCache) lookup(subjectID string) ([]domain.Question, bool) {
	now := c.clock()
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[subjectID]
	if !ok || !entry.expiresAt.After(now) {
		return nil, false
	}
	return cloneQuestions(entry.questions), true
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

func cloneQuestions(qs []domain.Question) []domain.Question {
	out := make([]domain.Question, 0, len(qs))
	for _, q := range qs {
		out = append(out, cloneQuestion(q))
	}
	return out
}
