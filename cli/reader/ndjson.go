package reader

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/pithecene-io/msgfmt/types"
)

// maxLineSize bounds a single NDJSON record. Attachments can be large.
const maxLineSize = 16 * 1024 * 1024

// ReadEnvelopes parses an NDJSON message stream. Blank lines are skipped.
func ReadEnvelopes(r io.Reader) ([]*types.Envelope, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var envs []*types.Envelope
	line := 0
	for sc.Scan() {
		line++
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		env, err := types.ParseEnvelope(data)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		envs = append(envs, env)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", line+1, err)
	}
	return envs, nil
}
