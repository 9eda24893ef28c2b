package etl

import (
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/BartekS5/bulkimport/pkg/models"
)

const maxFailureTextLength = 255

// TitledRecord lets a record report the title shown to operators in failure records.
type TitledRecord interface {
	SourceTitle() string
}

// FailureDetails is what a failure record says about one failed item.
type FailureDetails struct {
	Stage       Stage
	ErrorClass  string
	Message     string
	SourceTitle string
	SourceURL   string
}

// DescribeFailure derives failure record fields from err and the item being processed.
// Title and URL are best effort: when the record has neither a title nor a name, both stay
// empty. It never fails.
func DescribeFailure(stage Stage, err error, record any, entity *models.Entity, baseURL, sourcePath string) FailureDetails {
	d := FailureDetails{
		Stage:      stage,
		ErrorClass: ErrorClass(err),
	}
	if err != nil {
		d.Message = truncate(err.Error())
	}

	title, ok := recordTitle(record)
	if !ok {
		return d
	}
	d.SourceTitle = truncate(title)
	d.SourceURL = sourceURL(record, entity, baseURL, sourcePath)
	return d
}

func recordTitle(record any) (string, bool) {
	if record == nil {
		return "", false
	}
	if t, ok := record.(TitledRecord); ok {
		if title := t.SourceTitle(); title != "" {
			return title, true
		}
	}
	for _, key := range []string{"title", "name"} {
		if v, ok := lookupField(record, key); ok {
			if s := stringify(v); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

func sourceURL(record any, entity *models.Entity, baseURL, sourcePath string) string {
	if baseURL == "" || entity == nil {
		return ""
	}

	var id string
	for _, key := range []string{"iid", "id", "_id"} {
		if v, ok := lookupField(record, key); ok {
			if id = stringify(v); id != "" {
				break
			}
		}
	}
	if id == "" {
		return ""
	}

	segments := []string{}
	for _, s := range []string{entity.SourceFullPath, sourcePath, id} {
		if s = strings.Trim(s, "/"); s != "" {
			segments = append(segments, s)
		}
	}
	joined, err := url.JoinPath(baseURL, segments...)
	if err != nil {
		return ""
	}
	return joined
}

// lookupField finds key in string-keyed maps (including bson.M) and bson.D documents.
func lookupField(record any, key string) (any, bool) {
	switch r := record.(type) {
	case map[string]any:
		v, ok := r[key]
		return v, ok
	case primitive.D:
		for _, e := range r {
			if e.Key == key {
				return e.Value, true
			}
		}
		return nil, false
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	val := v.MapIndex(reflect.ValueOf(key).Convert(v.Type().Key()))
	if !val.IsValid() {
		return nil, false
	}
	return val.Interface(), true
}

func stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case primitive.ObjectID:
		return s.Hex()
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= maxFailureTextLength {
		return s
	}
	return string(r[:maxFailureTextLength])
}
