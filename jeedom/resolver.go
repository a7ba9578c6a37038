package jeedom

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"strconv"
	"strings"
)

// ResolveState determines the current state of a switch.
// Without a state command it is the cached state and no request is made.
// The cache is never written here; callers decide what to keep.
func (reg *Registry) ResolveState(ctx context.Context, rec *Record) (bool, error) {
	if rec.StateCmd == "" {
		return rec.State(), nil
	}

	body, err := reg.client.Send(ctx, rec.StateCmd)
	if err != nil {
		if ctx.Err() == nil {
			reg.logger(rec).WithError(err).Warn("failed to determine state")
		}
		return false, err
	}

	on, err := parseState(rec.StateCmd, body)
	if err != nil {
		reg.logger(rec).WithError(err).Warn("failed to determine state")
		return false, err
	}
	return on, nil
}

// parseState reads a JSON integer, also accepting one wrapped in a JSON string.
// Fractions are truncated.
func parseState(command string, body []byte) (bool, error) {
	bad := &PayloadError{Command: command, Body: string(body)}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return false, bad
	}
	if _, err := dec.Token(); err != io.EOF {
		return false, bad
	}

	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return false, bad
	}

	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i != 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return false, bad
	}
	return math.Trunc(f) != 0, nil
}
