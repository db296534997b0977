// Package worker runs one capture per operating-system process. The parent
// side spawns the process and reads its control channel, the child side
// compiles the task, drives a private browser and writes the screenshot.
//
// The control channel is the child's stdout: one JSON object per line. A
// child sends exactly one pid message and, on success, exactly one done
// message. Everything else the child has to say goes to stderr.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

type Message struct {
	PID    int  `json:"pid,omitempty"`
	IsDone bool `json:"isDone,omitempty"`
}

func writeMessage(w io.Writer, m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write control message: %w", err)
	}
	return nil
}

// WritePID reports the browser process id.
func WritePID(w io.Writer, pid int) error {
	return writeMessage(w, Message{PID: pid})
}

// WriteDone reports that the screenshot file is in place.
func WriteDone(w io.Writer) error {
	return writeMessage(w, Message{IsDone: true})
}

// ReadMessages forwards control messages from r until it is exhausted or ctx
// ends, then closes out. Lines that are not control messages are skipped.
func ReadMessages(ctx context.Context, r io.Reader, out chan<- Message) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Bytes()
		if !gjson.ValidBytes(line) {
			log.Debug().Str("line", string(line)).Msg("Skipping non-protocol worker output")
			continue
		}
		parsed := gjson.ParseBytes(line)
		if !parsed.IsObject() {
			continue
		}

		var m Message
		if pid := parsed.Get("pid"); pid.Exists() {
			m.PID = int(pid.Int())
		}
		m.IsDone = parsed.Get("isDone").Bool()
		if m.PID == 0 && !m.IsDone {
			continue
		}

		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		log.Debug().Err(err).Msg("Worker control channel closed with error")
	}
}
