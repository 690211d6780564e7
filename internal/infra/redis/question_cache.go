package redis

import (
	"context"
	"encoding/json"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-platform/internal/app"
	"quiz-platform/internal/domain"
)

// QuestionCache keeps each subject's question set as a JSON value in Redis
// and falls back to the wrapped repository on a miss:
//
//	SET quiz:subject:{subjectID}:questions [...] EX ttl
//
// Question writes made through the cache delete the affected keys.
type QuestionCache struct {
	app.QuestionRepository

	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rndMu  sync.Mutex
	rnd    *rand.Rand
}

func NewQuestionCache(client *redis.Client, next app.QuestionRepository, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		QuestionRepository: next,
		client:             client,
		ttl:                ttl,
		rnd:                rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCache) GetQuestionsForSubject(ctx context.Context, subjectID string) ([]domain.Question, error) {
	if qs, ok := c.lookup(ctx, subjectID); ok {
		return qs, nil
	}

	result, err, _ := c.sf.Do(subjectID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if qs, ok := c.lookup(ctx, subjectID); ok {
			return qs, nil
		}
		qs, err := c.QuestionRepository.GetQuestionsForSubject(ctx, subjectID)
		if err != nil {
			return nil, err
		}
		if ttl := c.ttlWithJitter(); ttl > 0 {
			if raw, err := json.Marshal(qs); err == nil {
				if err := c.client.Set(ctx, c.key(subjectID), raw, ttl).Err(); err != nil {
					log.Printf("cache questions for %s: %v", subjectID, err)
				}
			}
		}
		return qs, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	created, err := c.QuestionRepository.CreateQuestion(ctx, q)
	c.Invalidate(ctx, q.SubjectID)
	return created, err
}

func (c *QuestionCache) UpdateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if prev, err := c.QuestionRepository.GetQuestion(ctx, q.ID); err == nil {
		c.Invalidate(ctx, prev.SubjectID)
	}
	updated, err := c.QuestionRepository.UpdateQuestion(ctx, q)
	c.Invalidate(ctx, q.SubjectID)
	return updated, err
}

func (c *QuestionCache) DeleteQuestion(ctx context.Context, id string) error {
	prev, lookupErr := c.QuestionRepository.GetQuestion(ctx, id)
	err := c.QuestionRepository.DeleteQuestion(ctx, id)
	if lookupErr == nil {
		c.Invalidate(ctx, prev.SubjectID)
	}
	return err
}

// Invalidate deletes the cached set for a subject.
func (c *QuestionCache) Invalidate(ctx context.Context, subjectID string) {
	if err := c.client.Del(ctx, c.key(subjectID)).Err(); err != nil {
		log.Printf("invalidate questions for %s: %v", subjectID, err)
	}
	c.sf.Forget(subjectID)
}

func (c *QuestionCache) lookup(ctx context.Context, subjectID string) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, c.key(subjectID)).Bytes()
	if err != nil {
		return nil, false
	}
	var qs []domain.Question
	if err := json.Unmarshal(raw, &qs); err != nil {
		return nil, false
	}
	return qs, true
}

func (c *QuestionCache) key(subjectID string) string {
	return "quiz:subject:" + subjectID + ":questions"
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
