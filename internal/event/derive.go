package event

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"printstatus/internal/model"
)

// Payload is an inbound event as decoded JSON. The print host's schema is
// partly optional and nested, so fields are looked up with explicit
// presence checks instead of being unmarshalled into a fixed struct.
type Payload map[string]any

// CheckEncoding fails with *EncodingError when raw is not valid UTF-8.
func CheckEncoding(raw []byte) error {
	if utf8.Valid(raw) {
		return nil
	}
	off := 0
	for off < len(raw) {
		r, size := utf8.DecodeRune(raw[off:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		off += size
	}
	return &EncodingError{Offset: off}
}

// Parse decodes raw as a JSON object. Numbers are kept as json.Number so
// integer timestamps survive without float rounding.
func Parse(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &ParseError{Err: err}
	}
	if dec.More() {
		return nil, &ParseError{Err: errTrailingData}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, badType("$", "object", v)
	}
	return Payload(obj), nil
}

// Decode runs CheckEncoding then Parse.
func Decode(raw []byte) (Payload, error) {
	if err := CheckEncoding(raw); err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Derive maps an event onto a fresh JobState. It is a pure function of p:
// nothing from a previous state carries over.
func Derive(p Payload) (model.JobState, error) {
	var s model.JobState
	var err error

	if s.Topic, err = stringOrNull(p, "topic"); err != nil {
		return model.JobState{}, err
	}
	if s.Message, err = stringOrNull(p, "message"); err != nil {
		return model.JobState{}, err
	}

	state, err := object(p, "state", "state")
	if err != nil {
		return model.JobState{}, err
	}
	if s.State, err = stringOrNull(state, "text", "state.text"); err != nil {
		return model.JobState{}, err
	}

	if s.CurrentZ, err = floatOrNull(p, "currentZ"); err != nil {
		return model.JobState{}, err
	}

	meta, err := object(p, "meta", "meta")
	if err != nil {
		return model.JobState{}, err
	}
	if _, ok := meta["analysis"]; ok {
		analysis, err := object(meta, "analysis", "meta.analysis")
		if err != nil {
			return model.JobState{}, err
		}
		area, err := object(analysis, "printingArea", "meta.analysis.printingArea")
		if err != nil {
			return model.JobState{}, err
		}
		if s.MaxZ, err = floatOrNull(area, "maxZ", "meta.analysis.printingArea.maxZ"); err != nil {
			return model.JobState{}, err
		}
		if s.EstimatedPrintTime, err = floatOrNull(analysis, "estimatedPrintTime", "meta.analysis.estimatedPrintTime"); err != nil {
			return model.JobState{}, err
		}
	}

	progress, err := object(p, "progress", "progress")
	if err != nil {
		return model.JobState{}, err
	}
	// percent_done is only reported while the nozzle height is known. The
	// two signals are independent upstream, but consumers rely on them
	// appearing together, so the gate stays.
	if s.CurrentZ != nil {
		v, ok := progress["completion"]
		if !ok {
			return model.JobState{}, missing("progress.completion")
		}
		pct, err := toFloat(v, "progress.completion")
		if err != nil {
			return model.JobState{}, err
		}
		s.PercentDone = &pct
	}
	if s.ElapsedPrintTime, err = floatOrNull(progress, "printTime", "progress.printTime"); err != nil {
		return model.JobState{}, err
	}

	ct, ok := p["currentTime"]
	if !ok {
		return model.JobState{}, missing("currentTime")
	}
	n, err := toInt(ct, "currentTime")
	if err != nil {
		return model.JobState{}, err
	}
	s.CurrentTime = &n

	return s, nil
}

// fieldPath returns the explicit path if one was passed, else key.
func fieldPath(key string, path []string) string {
	if len(path) > 0 {
		return path[0]
	}
	return key
}

func object(m map[string]any, key string, path string) (map[string]any, error) {
	v, ok := m[key]
	if !ok {
		return nil, missing(path)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, badType(path, "object", v)
	}
	return obj, nil
}

func stringOrNull(m map[string]any, key string, path ...string) (*string, error) {
	name := fieldPath(key, path)
	v, ok := m[key]
	if !ok {
		return nil, missing(name)
	}
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return &t, nil
	default:
		return nil, badType(name, "string or null", v)
	}
}

// floatOrNull requires the key to be present; a present null stays null
// rather than becoming zero.
func floatOrNull(m map[string]any, key string, path ...string) (*float64, error) {
	name := fieldPath(key, path)
	v, ok := m[key]
	if !ok {
		return nil, missing(name)
	}
	if v == nil {
		return nil, nil
	}
	f, err := toFloat(v, name)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func toFloat(v any, path string) (float64, error) {
	var (
		f   float64
		err error
	)
	switch t := v.(type) {
	case json.Number:
		f, err = t.Float64()
	case float64:
		f = t
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(t), 64)
	default:
		return 0, badType(path, "number", v)
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &MalformedEventError{Path: path, Reason: "not a finite number"}
	}
	return f, nil
}

// toInt truncates fractional numbers toward zero. Strings must hold an
// integer literal.
func toInt(v any, path string) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		f, err := t.Float64()
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return 0, &MalformedEventError{Path: path, Reason: "not an integer"}
		}
		return int64(f), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || math.Abs(t) >= math.MaxInt64 {
			return 0, &MalformedEventError{Path: path, Reason: "not an integer"}
		}
		return int64(t), nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, &MalformedEventError{Path: path, Reason: "not an integer"}
		}
		return n, nil
	default:
		return 0, badType(path, "integer", v)
	}
}
