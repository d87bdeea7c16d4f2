package monitoring

import (
	"sync"
	"time"

	"github.com/azure/deepfake-watch-bot/internal/models"
)

// job is one monitoring job; created active, stopped is terminal
type job struct {
	id        string
	topics    []string
	keywords  []string
	createdAt time.Time

	mu                  sync.Mutex
	active              bool
	lastPolledAt        *time.Time
	itemsScanned        int64
	detectionsConfirmed int64

	stop chan struct{}
}

func (j *job) isActive() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.active
}

// deactivate reports whether this call made the transition
func (j *job) deactivate() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.active {
		return false
	}
	j.active = false
	close(j.stop)
	return true
}

func (j *job) addScanned() {
	j.mu.Lock()
	j.itemsScanned++
	j.mu.Unlock()
}

func (j *job) addDetection() {
	j.mu.Lock()
	j.detectionsConfirmed++
	j.mu.Unlock()
}

func (j *job) markPolled(at time.Time) {
	j.mu.Lock()
	j.lastPolledAt = &at
	j.mu.Unlock()
}

// pause waits d, returning false early if the job is stopped meanwhile
func (j *job) pause(d time.Duration) bool {
	if d <= 0 {
		return j.isActive()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return j.isActive()
	case <-j.stop:
		return false
	}
}

func (j *job) summary() models.JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()

	var polled *time.Time
	if j.lastPolledAt != nil {
		at := *j.lastPolledAt
		polled = &at
	}

	return models.JobSummary{
		ID:                  j.id,
		Topics:              append([]string(nil), j.topics...),
		Keywords:            append([]string{}, j.keywords...),
		Active:              j.active,
		CreatedAt:           j.createdAt,
		LastPolledAt:        polled,
		ItemsScanned:        j.itemsScanned,
		DetectionsConfirmed: j.detectionsConfirmed,
	}
}
