package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// object is one JSON object of the catalog, addressed by key. Keys holding
// null are treated as absent.
type object struct {
	path   string
	fields map[string]json.RawMessage
}

func parseObject(path string, data []byte) (*object, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, &DecodeError{Path: path, Key: "", Err: ErrInvalidValue, Detail: "expected a JSON object"}
	}
	if fields == nil {
		return nil, &DecodeError{Path: path, Key: "", Err: ErrInvalidValue, Detail: "expected a JSON object"}
	}
	return &object{path: path, fields: fields}, nil
}

func (o *object) raw(key string) (json.RawMessage, bool) {
	v, ok := o.fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (o *object) has(key string) bool {
	_, ok := o.raw(key)
	return ok
}

// firstKey returns the first of keys present in the object; later keys are
// legacy spellings.
func (o *object) firstKey(keys ...string) (string, bool) {
	for _, k := range keys {
		if o.has(k) {
			return k, true
		}
	}
	return "", false
}

func (o *object) child(key string) string {
	if o.path == "" {
		return key
	}
	return o.path + "." + key
}

func (o *object) optionalString(key string) (*string, error) {
	raw, ok := o.raw(key)
	if !ok {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, invalid(o.path, key, "expected a string")
	}
	return &s, nil
}

func (o *object) requiredString(key string) (string, error) {
	s, err := o.optionalString(key)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", missing(o.path, key)
	}
	return *s, nil
}

func (o *object) optionalBool(key string) (bool, error) {
	raw, ok := o.raw(key)
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, invalid(o.path, key, "expected a boolean")
	}
	return b, nil
}

// requiredInt64 accepts non-negative integral JSON numbers, including those
// written with a fractional zero such as 1024.0.
func (o *object) requiredInt64(key string) (int64, error) {
	raw, ok := o.raw(key)
	if !ok {
		return 0, missing(o.path, key)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, invalid(o.path, key, "expected a number")
	}
	if i, err := n.Int64(); err == nil {
		if i < 0 {
			return 0, invalid(o.path, key, "must not be negative, got %d", i)
		}
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) {
		return 0, invalid(o.path, key, "expected an integer, got %s", n.String())
	}
	// float64(math.MaxInt64) rounds up to 2^63, which no longer fits.
	if f < 0 || f >= float64(math.MaxInt64) {
		return 0, invalid(o.path, key, "out of range, got %s", n.String())
	}
	return int64(f), nil
}

func (o *object) optionalURL(key string) (*string, error) {
	s, err := o.optionalString(key)
	if err != nil || s == nil {
		return nil, err
	}
	u, err := parseURL(*s)
	if err != nil {
		return nil, invalid(o.path, key, "%v", err)
	}
	return &u, nil
}

func (o *object) requiredURL(key string) (string, error) {
	u, err := o.optionalURL(key)
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", missing(o.path, key)
	}
	return *u, nil
}

func parseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL %q", raw)
	}
	if u.Scheme == "" {
		return "", fmt.Errorf("URL %q has no scheme", raw)
	}
	return u.String(), nil
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// requiredDate reads the first present key of keys.
func (o *object) requiredDate(keys ...string) (time.Time, error) {
	key, ok := o.firstKey(keys...)
	if !ok {
		return time.Time{}, missing(o.path, keys[0])
	}
	s, err := o.requiredString(key)
	if err != nil {
		return time.Time{}, err
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, invalid(o.path, key, "unrecognised date %q", s)
}

var hexColor = regexp.MustCompile(`^[0-9a-fA-F]{6}$`)

// optionalTintColor normalises "#1c7cf9" to "1C7CF9".
func (o *object) optionalTintColor(key string) (*string, error) {
	s, err := o.optionalString(key)
	if err != nil || s == nil {
		return nil, err
	}
	hex := strings.TrimPrefix(strings.TrimSpace(*s), "#")
	if !hexColor.MatchString(hex) {
		return nil, invalid(o.path, key, "hex code %q is invalid", *s)
	}
	hex = strings.ToUpper(hex)
	return &hex, nil
}

// localizedString is either a plain string or an object keyed by language.
type localizedString struct {
	plain  *string
	byLang map[string]string
}

func (l *localizedString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		l.plain = &s
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("expected a string or an object of strings")
	}
	if len(m) == 0 {
		return fmt.Errorf("localized string has no translations")
	}
	l.byLang = m
	return nil
}

// resolve picks the translation closest to lang, then English, then the
// first key alphabetically. Keys that are not language tags only take part in
// the last step.
func (l localizedString) resolve(lang string) string {
	if l.plain != nil {
		return *l.plain
	}
	keys := make([]string, 0, len(l.byLang))
	for k := range l.byLang {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tags := make([]language.Tag, 0, len(keys))
	tagKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		tag, err := language.Parse(strings.TrimSpace(k))
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		tagKeys = append(tagKeys, k)
	}
	if len(tags) == 0 {
		return l.byLang[keys[0]]
	}

	matcher := language.NewMatcher(tags)
	wants := make([]language.Tag, 0, 2)
	if want, err := language.Parse(strings.TrimSpace(lang)); err == nil {
		wants = append(wants, want)
	}
	wants = append(wants, language.English)
	for _, want := range wants {
		if _, i, conf := matcher.Match(want); conf >= language.High {
			return l.byLang[tagKeys[i]]
		}
	}
	return l.byLang[keys[0]]
}

// optionalLocalized reads the first present key of keys as a localized string.
func (o *object) optionalLocalized(lang string, keys ...string) (*string, error) {
	key, ok := o.firstKey(keys...)
	if !ok {
		return nil, nil
	}
	raw, _ := o.raw(key)
	var l localizedString
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, invalid(o.path, key, "%v", err)
	}
	s := l.resolve(lang)
	return &s, nil
}

func (o *object) requiredLocalized(lang string, keys ...string) (string, error) {
	s, err := o.optionalLocalized(lang, keys...)
	if err != nil {
		return "", err
	}
	if s == nil {
		return "", missing(o.path, keys[0])
	}
	return *s, nil
}

// array decodes key as a JSON array of raw elements.
func (o *object) array(key string) ([]json.RawMessage, bool, error) {
	raw, ok := o.raw(key)
	if !ok {
		return nil, false, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, true, invalid(o.path, key, "expected an array")
	}
	return items, true, nil
}
