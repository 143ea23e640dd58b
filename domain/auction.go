package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CREATE TABLE public.auction_outcomes (
//     config_id        TEXT NOT NULL,
//     receipt_time     TIMESTAMPTZ NOT NULL,
//     optimizer_config JSONB NOT NULL,
//     win              SMALLINT NOT NULL,
//     pubrev           DOUBLE PRECISION NOT NULL
// );

// Observation is one auction slice as returned by the data source.
type Observation struct {
	AuctionHour int            `json:"auction_hour"`
	Config      map[string]any `json:"config"`
	Win         bool           `json:"win"`
	PubRev      float64        `json:"pubrev"`
}

// ConfigCombo is one candidate configuration, i.e. one bandit action.
type ConfigCombo map[string]any

// Key returns a canonical "k=v|k=v" form over the given keys, used to match
// observations against combos regardless of the numeric type a value arrived as.
func (c ConfigCombo) Key(keys []string) string {
	return comboKey(keys, func(k string) (any, bool) {
		v, ok := c[k]
		return v, ok
	})
}

// ComboKey returns the canonical combo key for the configuration an
// observation was served with.
func (o Observation) ComboKey(keys []string) string {
	return comboKey(keys, func(k string) (any, bool) {
		v, ok := o.Config[k]
		return v, ok
	})
}

func comboKey(keys []string, lookup func(string) (any, bool)) string {
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, ok := lookup(k)
		if !ok {
			parts = append(parts, k+"=<nil>")
			continue
		}
		parts = append(parts, k+"="+canonicalValue(v))
	}
	return strings.Join(parts, "|")
}

func canonicalValue(v any) string {
	switch t := v.(type) {
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	case float32:
		return canonicalValue(float64(t))
	case string:
		// quoted so "1000" differs from 1000 and separators inside values stay unambiguous
		return strconv.Quote(t)
	default:
		return fmt.Sprint(v)
	}
}

// SortedKeys returns the keys of a candidate map in sorted order.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
