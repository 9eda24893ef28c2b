package models

import "time"

// State is the lifecycle state shared by entities and trackers.
type State string

const (
	StateCreated  State = "created"
	StateStarted  State = "started"
	StateFinished State = "finished"
	StateFailed   State = "failed"
)

// Entity is one migratable unit, e.g. a single group or project transfer.
type Entity struct {
	ID             string    `bson:"_id" json:"id"`
	JobID          string    `bson:"job_id" json:"jobId"`
	SourceType     string    `bson:"source_type" json:"sourceType"`
	SourceFullPath string    `bson:"source_full_path" json:"sourceFullPath"`
	State          State     `bson:"state" json:"state"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

func (e *Entity) Failed() bool {
	return e.State == StateFailed
}

// Tracker records the progress of one pipeline type for one entity.
type Tracker struct {
	ID            string    `bson:"_id" json:"id"`
	EntityID      string    `bson:"entity_id" json:"entityId"`
	Pipeline      string    `bson:"pipeline" json:"pipeline"`
	State         State     `bson:"state" json:"state"`
	Batched       bool      `bson:"batched" json:"batched"`
	NextPage      string    `bson:"next_page,omitempty" json:"nextPage,omitempty"`
	HasNextPage   bool      `bson:"has_next_page" json:"hasNextPage"`
	SourceCount   int64     `bson:"source_count" json:"sourceCount"`
	FetchedCount  int64     `bson:"fetched_count" json:"fetchedCount"`
	ImportedCount int64     `bson:"imported_count" json:"importedCount"`
	CreatedAt     time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updatedAt"`
}

func (t *Tracker) Failed() bool {
	return t.State == StateFailed
}

// CounterKind names one of the tracker's observability counters.
type CounterKind string

const (
	CounterSource   CounterKind = "source"
	CounterFetched  CounterKind = "fetched"
	CounterImported CounterKind = "imported"
)

// Failure is the persisted record of one failed item.
type Failure struct {
	ID           string    `json:"id"`
	EntityID     string    `json:"entityId"`
	TrackerID    string    `json:"trackerId"`
	PipelineName string    `json:"pipelineName"`
	Stage        string    `json:"stage"`
	ErrorClass   string    `json:"errorClass"`
	Message      string    `json:"message"`
	SourceTitle  string    `json:"sourceTitle,omitempty"`
	SourceURL    string    `json:"sourceUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
