package api

import (
	"encoding/json"
	"time"

	"github.com/annoq/annoq/pipeline"
	"github.com/annoq/annoq/store"
)

// taskView is the REST shape of a task. claimed_by_id renders as JSON
// null while unclaimed, which clients treat as "available".
type taskView struct {
	ID            string          `json:"id"`
	BatchID       string          `json:"batch_id"`
	PipelineStage pipeline.Stage  `json:"pipeline_stage"`
	Status        pipeline.Status `json:"status"`
	ClaimedBy     *string         `json:"claimed_by_id"`
	Content       json.RawMessage `json:"content"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewTask(t *store.Task) taskView {
	v := taskView{
		ID:            t.ID,
		BatchID:       t.BatchID,
		PipelineStage: t.PipelineStage,
		Status:        t.Status,
		Content:       t.Content,
		CreatedAt:     t.CreatedAt,
	}
	if t.ClaimedBy != "" {
		claimant := t.ClaimedBy
		v.ClaimedBy = &claimant
	}
	return v
}

func viewTasks(tasks []*store.Task) []taskView {
	views := make([]taskView, len(tasks))
	for i, t := range tasks {
		views[i] = viewTask(t)
	}
	return views
}

type annotationView struct {
	ID            string          `json:"id"`
	TaskID        string          `json:"task_id"`
	PipelineStage pipeline.Stage  `json:"pipeline_stage"`
	AnnotatorID   string          `json:"annotator_id"`
	Response      json.RawMessage `json:"response"`
	CreatedAt     time.Time       `json:"created_at"`
}

func viewAnnotation(a *store.Annotation) annotationView {
	return annotationView{
		ID:            a.ID,
		TaskID:        a.TaskID,
		PipelineStage: a.PipelineStage,
		AnnotatorID:   a.AnnotatorID,
		Response:      a.Response,
		CreatedAt:     a.CreatedAt,
	}
}

func viewAnnotations(anns []*store.Annotation) []annotationView {
	views := make([]annotationView, len(anns))
	for i, a := range anns {
		views[i] = viewAnnotation(a)
	}
	return views
}
