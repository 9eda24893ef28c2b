package etl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/BartekS5/bulkimport/pkg/models"
)

type titled struct {
	iid int
}

func (titled) SourceTitle() string { return "custom title" }

func TestDescribeFailure(t *testing.T) {
	entity := &models.Entity{SourceFullPath: "group/project"}
	boom := errors.New("boom")

	tests := []struct {
		name      string
		record    any
		baseURL   string
		wantTitle string
		wantURL   string
	}{
		{
			name:      "title wins over name",
			record:    map[string]any{"iid": 3, "title": "the title", "name": "the name"},
			baseURL:   "https://source.example.com",
			wantTitle: "the title",
			wantURL:   "https://source.example.com/group/project/-/issues/3",
		},
		{
			name:      "name when no title",
			record:    map[string]any{"id": 9, "name": "label"},
			baseURL:   "https://source.example.com/",
			wantTitle: "label",
			wantURL:   "https://source.example.com/group/project/-/issues/9",
		},
		{
			name:   "neither title nor name",
			record: map[string]any{"iid": 1, "body": "text"},
		},
		{
			name:      "no base url",
			record:    map[string]any{"iid": 1, "title": "t"},
			wantTitle: "t",
		},
		{
			name:      "title without identifier",
			record:    map[string]any{"title": "t"},
			baseURL:   "https://source.example.com",
			wantTitle: "t",
		},
		{
			name:      "bson document",
			record:    bson.D{{Key: "iid", Value: 5}, {Key: "title", Value: "bson"}},
			baseURL:   "https://source.example.com",
			wantTitle: "bson",
			wantURL:   "https://source.example.com/group/project/-/issues/5",
		},
		{
			name:      "titled record",
			record:    titled{iid: 1},
			baseURL:   "https://source.example.com",
			wantTitle: "custom title",
		},
		{
			name:   "unsupported record type",
			record: 42,
		},
		{
			name: "nil record",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := DescribeFailure(StageLoader, boom, tc.record, entity, tc.baseURL, "-/issues")

			assert.Equal(t, StageLoader, d.Stage)
			assert.Equal(t, "boom", d.Message)
			assert.Equal(t, tc.wantTitle, d.SourceTitle)
			assert.Equal(t, tc.wantURL, d.SourceURL)
		})
	}
}

func TestDescribeFailure_Truncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	d := DescribeFailure(StageTransformer, errors.New(long), map[string]any{"title": long}, nil, "", "")

	assert.Len(t, d.Message, 255)
	assert.Len(t, d.SourceTitle, 255)
	assert.Empty(t, d.SourceURL)
}
