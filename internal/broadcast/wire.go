package broadcast

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"pkt.systems/tabtree/schema"
)

// maxFrameSize bounds one encoded command line.
const maxFrameSize = 1 << 20

// WriteCommands encodes commands as newline-delimited JSON.
func WriteCommands(w io.Writer, cmds []schema.Command) error {
	enc := json.NewEncoder(w)
	for _, cmd := range cmds {
		if err := enc.Encode(cmd); err != nil {
			return fmt.Errorf("encode command %d: %w", cmd.Seq, err)
		}
	}
	return nil
}

// ReadCommands decodes newline-delimited JSON commands. Blank lines are
// skipped and unknown command types are rejected.
func ReadCommands(r io.Reader) ([]schema.Command, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	var cmds []schema.Command
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var cmd schema.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			return nil, fmt.Errorf("decode command line %d: %w", line, err)
		}
		if !cmd.Type.Known() {
			return nil, fmt.Errorf("decode command line %d: %w: %q", line, schema.ErrInvalidCommand, cmd.Type)
		}
		cmds = append(cmds, cmd)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("decode command line %d: frame exceeds %d bytes", line+1, maxFrameSize)
		}
		return nil, err
	}
	return cmds, nil
}
