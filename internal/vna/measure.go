package vna

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"govna/internal/scpi"
)

// noCatalog is the sentinel the instrument returns for a channel with no
// measurements defined.
const noCatalog = "NO CATALOG"

// MeasurementNumber resolves a measurement name to its instrument-assigned
// numeric handle within a channel. Handles are not stable across resets, so
// callers must re-resolve by name every time they need one. A name absent
// from the live catalog fails with *scpi.NotFoundError.
func (s *Session) MeasurementNumber(ctx context.Context, name string, ch int) (int, error) {
	names, err := s.MeasurementNames(ctx, ch)
	if err != nil {
		return 0, err
	}
	if !contains(names, name) {
		return 0, &scpi.NotFoundError{Kind: "measurement", Name: name}
	}

	if err := s.Writef(ctx, `calculate%d:parameter:select "%s"`, ch, name); err != nil {
		return 0, err
	}
	raw, err := s.Queryf(ctx, "calculate%d:parameter:mnumber?", ch)
	if err != nil {
		return 0, err
	}
	// The instrument answers with an empty or garbled handle when the
	// selection did not take; never trust it blindly.
	num, err := parseInt(raw)
	if err != nil {
		return 0, &scpi.NotFoundError{Kind: "measurement", Name: name}
	}
	return num, nil
}

// measurementCatalog fetches and tokenizes the extended parameter catalog:
// alternating name/parameter tokens in creation order.
func (s *Session) measurementCatalog(ctx context.Context, ch int) ([]string, error) {
	raw, err := s.Queryf(ctx, "calculate%d:parameter:catalog:extended?", ch)
	if err != nil {
		return nil, err
	}
	trimmed := strings.Trim(strings.TrimSpace(raw), `"`)
	if trimmed == "" || strings.EqualFold(trimmed, noCatalog) {
		return nil, nil
	}
	tokens := strings.Split(trimmed, ",")
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	if len(tokens)%2 != 0 {
		return nil, fmt.Errorf("malformed measurement catalog for channel %d: odd token count in %q", ch, trimmed)
	}
	return tokens, nil
}

// MeasurementNames lists the channel's measurement names in creation order.
func (s *Session) MeasurementNames(ctx context.Context, ch int) ([]string, error) {
	tokens, err := s.measurementCatalog(ctx, ch)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		names = append(names, tokens[i])
	}
	return names, nil
}

// MeasurementParams maps each measurement name to its parameter tag.
func (s *Session) MeasurementParams(ctx context.Context, ch int) (map[string]string, error) {
	tokens, err := s.measurementCatalog(ctx, ch)
	if err != nil {
		return nil, err
	}
	params := make(map[string]string, len(tokens)/2)
	for i := 0; i < len(tokens); i += 2 {
		params[tokens[i]] = tokens[i+1]
	}
	return params, nil
}

// NextTraceSlot computes the next free trace number in a window from the
// live trace catalog: 1 for the documented EMPTY sentinel, count+1
// otherwise. Occupied slots are never reused.
func (s *Session) NextTraceSlot(ctx context.Context, win int) (int, error) {
	raw, err := s.Queryf(ctx, "display:window%d:catalog?", win)
	if err != nil {
		return 0, err
	}
	if strings.Contains(strings.ToLower(raw), "empty") {
		return 1, nil
	}
	return len(splitCatalog(raw)) + 1, nil
}

// EnsureWindow turns the window on only if the live window catalog does not
// list it. The instrument owns the catalog, so no local cache is kept.
func (s *Session) EnsureWindow(ctx context.Context, win int) error {
	raw, err := s.Query(ctx, "display:catalog?")
	if err != nil {
		return err
	}
	if contains(splitCatalog(raw), strconv.Itoa(win)) {
		return nil
	}
	return s.Writef(ctx, "display:window%d:state on", win)
}
