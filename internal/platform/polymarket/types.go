package polymarket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polysearch/internal/domain"
)

// Field names are tried in order; the first present one wins.
var (
	questionKeys = []string{"question", "title", "name", "text"}
	priceKeys    = []string{"outcomePrices", "prices", "odds", "outcomes"}
	volumeKeys   = []string{"volume", "volumeNum"}
	endDateKeys  = []string{"endDate", "end_date_iso", "endDateIso"}
	idKeys       = []string{"id", "conditionId", "condition_id"}
	envelopeKeys = []string{"data", "markets"}
)

var endDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

var defaultOutcomes = [2]string{"Yes", "No"}

// record is one raw Gamma market object, keyed by JSON field name.
type record map[string]json.RawMessage

// lookup returns the raw value of the first present key.
func (r record) lookup(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := r[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// firstString returns the first key whose value is a non-empty string.
func (r record) firstString(keys ...string) (string, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s), true
		}
	}
	return "", false
}

// flexString unmarshals from a JSON string or number, so identifiers work
// whether Gamma sends "id": "123" or "id": 123.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string ("12345.6").
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return errors.New("null number")
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// encodedList is a JSON array that Gamma sends either directly or as a
// string holding the encoded array (e.g. "outcomePrices": "[\"0.6\", \"0.4\"]").
type encodedList []json.RawMessage

func (l *encodedList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return err
		}
		data = []byte(inner)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = items
	return nil
}

var errMalformed = domain.ErrMalformedResponse

// decodeMarkets parses a /markets payload, which is either a JSON array of
// market objects or an object carrying the array under "data" or "markets".
// Records that fail admission are counted in skipped, not returned as errors.
func decodeMarkets(body []byte) (markets []domain.Market, skipped int, err error) {
	items, err := unwrapEnvelope(body)
	if err != nil {
		return nil, 0, err
	}

	markets = make([]domain.Market, 0, len(items))
	for _, raw := range items {
		m, ok := admit(raw)
		if !ok {
			skipped++
			continue
		}
		markets = append(markets, m)
	}
	return markets, skipped, nil
}

func unwrapEnvelope(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", errMalformed)
	}

	var items []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		return items, nil
	case '{':
		var obj record
		if err := json.Unmarshal(body, &obj); err != nil {
			return nil, fmt.Errorf("%w: %v", errMalformed, err)
		}
		inner, ok := obj.lookup(envelopeKeys...)
		if !ok {
			return nil, fmt.Errorf("%w: object has no data or markets field", errMalformed)
		}
		if err := json.Unmarshal(inner, &items); err != nil || items == nil {
			return nil, fmt.Errorf("%w: market list is not an array", errMalformed)
		}
		return items, nil
	default:
		return nil, fmt.Errorf("%w: top-level value is neither an array nor an object", errMalformed)
	}
}

// admit validates one raw record and decodes it into a domain.Market. A
// record is admitted only when it has a non-empty question-like field and a
// price-like field.
func admit(raw json.RawMessage) (domain.Market, bool) {
	var r record
	if err := json.Unmarshal(raw, &r); err != nil || r == nil {
		return domain.Market{}, false
	}

	question, ok := r.firstString(questionKeys...)
	if !ok {
		return domain.Market{}, false
	}
	if _, ok := r.lookup(priceKeys...); !ok {
		return domain.Market{}, false
	}

	m := domain.Market{
		Question: question,
		Outcomes: defaultOutcomes,
		Prices:   decodePrices(r),
	}
	if v, ok := r.lookup(idKeys...); ok {
		var id flexString
		if json.Unmarshal(v, &id) == nil {
			m.ID = string(id)
		}
	}
	m.Slug, _ = r.firstString("slug")
	m.Description, _ = r.firstString("description")
	if labels, ok := decodeOutcomeLabels(r); ok {
		m.Outcomes = labels
	}
	m.Volume = decodeVolume(r)
	m.EndDate = decodeEndDate(r)
	return m, true
}

// decodePrices takes the first price field that decodes into a yes/no pair of
// probabilities. When none does, the market is kept with unavailable prices.
func decodePrices(r record) domain.Prices {
	for _, k := range priceKeys {
		v, ok := r[k]
		if !ok {
			continue
		}
		if p, err := parsePricePair(v); err == nil {
			return p
		}
	}
	return domain.UnavailablePrices
}

func parsePricePair(v json.RawMessage) (domain.Prices, error) {
	var list encodedList
	if err := json.Unmarshal(v, &list); err != nil {
		return domain.Prices{}, err
	}
	if len(list) < 2 {
		return domain.Prices{}, errors.New("fewer than two prices")
	}
	var pair [2]float64
	for i := range pair {
		var f flexFloat
		if err := json.Unmarshal(list[i], &f); err != nil {
			return domain.Prices{}, err
		}
		if f < 0 || f > 1 {
			return domain.Prices{}, fmt.Errorf("price %v out of range", float64(f))
		}
		pair[i] = float64(f)
	}
	return domain.NewPrices(pair[0], pair[1]), nil
}

// decodeOutcomeLabels reads "outcomes" when it is a list of two labels such
// as ["Yes","No"] or ["Up","Down"].
func decodeOutcomeLabels(r record) ([2]string, bool) {
	v, ok := r["outcomes"]
	if !ok {
		return [2]string{}, false
	}
	var list encodedList
	if err := json.Unmarshal(v, &list); err != nil || len(list) != 2 {
		return [2]string{}, false
	}
	var out [2]string
	for i := range out {
		var s string
		if err := json.Unmarshal(list[i], &s); err != nil || s == "" {
			return [2]string{}, false
		}
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			return [2]string{}, false
		}
		out[i] = s
	}
	return out, true
}

func decodeVolume(r record) *float64 {
	for _, k := range volumeKeys {
		v, ok := r[k]
		if !ok {
			continue
		}
		var f flexFloat
		if err := json.Unmarshal(v, &f); err != nil || f < 0 {
			continue
		}
		vol := float64(f)
		return &vol
	}
	return nil
}

func decodeEndDate(r record) *time.Time {
	s, ok := r.firstString(endDateKeys...)
	if !ok {
		return nil
	}
	for _, layout := range endDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
