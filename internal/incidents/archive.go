package incidents

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/azure/deepfake-watch-bot/internal/metrics"
	"github.com/azure/deepfake-watch-bot/internal/models"
	"github.com/azure/deepfake-watch-bot/internal/storage"
	"github.com/sirupsen/logrus"
)

// archivePrefix is the blob prefix incident snapshots are written under
const archivePrefix = "incidents/"

const archiveQueueSize = 256

type snapshot struct {
	id   string
	data []byte
}

// archiver writes incident snapshots to durable storage from a single
// goroutine so that writes for the same incident land in order
type archiver struct {
	storage storage.StorageInterface
	queue   chan snapshot
	done    chan struct{}

	mu     sync.Mutex
	closed bool
}

func newArchiver(s storage.StorageInterface) *archiver {
	a := &archiver{
		storage: s,
		queue:   make(chan snapshot, archiveQueueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *archiver) run() {
	defer close(a.done)
	for snap := range a.queue {
		if err := a.storage.Store(archiveName(snap.id), snap.data); err != nil {
			metrics.ObserveArchiveFailure()
			logrus.WithField("incident_id", snap.id).Errorf("Failed to archive incident: %v", err)
		}
	}
}

// enqueue never blocks the caller; a full queue drops the snapshot
func (a *archiver) enqueue(incident models.Incident) {
	data, err := json.Marshal(incident)
	if err != nil {
		logrus.WithField("incident_id", incident.ID).Errorf("Failed to marshal incident for archive: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		logrus.WithField("incident_id", incident.ID).Warn("Archive closed, snapshot dropped")
		return
	}

	select {
	case a.queue <- snapshot{id: incident.ID, data: data}:
	default:
		metrics.ObserveArchiveFailure()
		logrus.WithField("incident_id", incident.ID).Warn("Archive queue full, snapshot dropped")
	}
}

func (a *archiver) close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func archiveName(id string) string {
	return archivePrefix + id + ".json"
}

// loadArchived reads every archived incident snapshot
func loadArchived(s storage.StorageInterface) ([]models.Incident, error) {
	names, err := s.List(archivePrefix)
	if err != nil {
		return nil, fmt.Errorf("%w: listing archived incidents: %v", models.ErrCollaborator, err)
	}

	var restored []models.Incident
	for _, name := range names {
		if !strings.HasSuffix(name, ".json") {
			continue
		}

		data, err := s.Retrieve(name)
		if err != nil {
			logrus.Warnf("Skipping archived incident %s: %v", path.Base(name), err)
			continue
		}

		incident, err := decodeIncident(data)
		if err != nil {
			logrus.Warnf("Skipping corrupt archived incident %s: %v", path.Base(name), err)
			continue
		}
		restored = append(restored, incident)
	}

	return restored, nil
}

// decodeIncident unmarshals a snapshot and restores the typed status history
func decodeIncident(data []byte) (models.Incident, error) {
	var incident models.Incident
	if err := json.Unmarshal(data, &incident); err != nil {
		return incident, err
	}
	if incident.ID == "" {
		return incident, fmt.Errorf("snapshot has no id")
	}
	if incident.Metadata == nil {
		incident.Metadata = make(map[string]any)
	}

	raw, ok := incident.Metadata[models.MetadataStatusUpdates]
	if !ok {
		return incident, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return incident, err
	}
	var updates []models.StatusUpdate
	if err := json.Unmarshal(encoded, &updates); err != nil {
		return incident, fmt.Errorf("status history: %w", err)
	}
	incident.Metadata[models.MetadataStatusUpdates] = updates
	return incident, nil
}
