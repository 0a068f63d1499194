package vna

import (
	"context"
	"fmt"
	"strings"

	"govna/internal/frame"
	"govna/internal/scpi"
)

// ECalModules lists the numbers of the connected ECal modules. A lone zero
// entry is the instrument's way of saying none are connected.
func (s *Session) ECalModules(ctx context.Context) ([]int, error) {
	raw, err := s.Query(ctx, "sense:correction:ckit:ecal:list?")
	if err != nil {
		return nil, err
	}
	var mods []int
	for _, tok := range splitCatalog(raw) {
		n, err := parseInt(tok)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ECal module list %q: %w", raw, err)
		}
		mods = append(mods, n)
	}
	if len(mods) == 1 && mods[0] == 0 {
		return nil, &scpi.NotFoundError{Kind: "ECal module", Name: "any"}
	}
	return mods, nil
}

// ECalPathStates maps each path of a module to its impedance state count.
func (s *Session) ECalPathStates(ctx context.Context, module, numPorts int) (map[string]int, error) {
	paths, err := frame.ECalPaths(numPorts)
	if err != nil {
		return nil, err
	}
	states := make(map[string]int, len(paths))
	for _, path := range paths {
		raw, err := s.Queryf(ctx, "sense:correction:ckit:ecal%d:path:count? %s", module, path)
		if err != nil {
			return nil, err
		}
		n, err := parseInt(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse state count for path %s: %w", path, err)
		}
		states[path] = n
	}
	return states, nil
}

// ECalInfo returns each characterization of a module as key/value pairs.
// Characterization 0 is the factory set; any others are user sets.
func (s *Session) ECalInfo(ctx context.Context, module int) (map[string]map[string]string, error) {
	raw, err := s.Queryf(ctx, "sense:correction:ckit:ecal%d:clist?", module)
	if err != nil {
		return nil, err
	}

	info := make(map[string]map[string]string)
	for _, charNum := range splitCatalog(raw) {
		charNum = trimNumeric(charNum)
		rawInfo, err := s.Queryf(ctx, "sense:correction:ckit:ecal%d:information? char%s", module, charNum)
		if err != nil {
			return nil, err
		}
		fields := make(map[string]string)
		for _, pair := range strings.Split(strings.Trim(strings.TrimSpace(rawInfo), `"`), ", ") {
			key, value, found := strings.Cut(pair, ": ")
			if !found {
				continue
			}
			fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
		info["Char"+charNum] = fields
	}
	return info, nil
}

// ECalModelSerial returns "model,serial" from the factory characterization.
func (s *Session) ECalModelSerial(ctx context.Context, module int) (string, error) {
	info, err := s.ECalInfo(ctx, module)
	if err != nil {
		return "", err
	}
	factory, ok := info["Char0"]
	if !ok {
		return "", &scpi.NotFoundError{Kind: "ECal characterization", Name: "Char0"}
	}
	return factory["ModelNumber"] + "," + factory["SerialNumber"], nil
}

// ECalPathData acquires and decodes the S-parameter characterization block
// of one path/state. The point count comes from the characterization info
// and must match the block; a mismatch is a layout error, not a truncation.
func (s *Session) ECalPathData(ctx context.Context, module int, path string, state, char, points int) (*frame.Data, error) {
	layout, err := frame.ECalPathLayout(path, points)
	if err != nil {
		return nil, err
	}
	if err := s.assertTransferFormat(ctx); err != nil {
		return nil, err
	}
	raw, err := s.ch.QueryBinary(ctx, fmt.Sprintf("sense:correction:ckit:ecal%d:path:data? %s,%d,char%d", module, path, state, char))
	if err != nil {
		return nil, err
	}
	return frame.Decode(raw, layout)
}

// SetECalPath switches one ECal path into the given impedance state.
func (s *Session) SetECalPath(ctx context.Context, module int, path string, state int) error {
	mods, err := s.ECalModules(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, m := range mods {
		if m == module {
			found = true
			break
		}
	}
	if !found {
		return &scpi.NotFoundError{Kind: "ECal module", Name: fmt.Sprint(module)}
	}
	return s.Writef(ctx, "control:ecal:module%d:path:state %s, %d", module, path, state)
}
