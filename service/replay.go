package service

import (
	"go.uber.org/zap"

	entrywal "odin/infra/wal/entry"
)

// Replay reruns the entry journal against a fresh book. It must finish
// before the service accepts traffic. Events are not re-published: the
// exit journal already holds them, and command sequencing resumes past
// the last journaled command.
func (s *OrderService) Replay(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.replaying = true
	defer func() { s.replaying = false }()

	last, err := entrywal.Replay(dir, func(rec *entrywal.Record) error {
		if rec.Type != entrywal.RecordCommand {
			return nil
		}
		c, err := UnmarshalCommand(rec.Data)
		if err != nil {
			return err
		}
		// rejected commands replay as the same rejection
		_, _ = s.apply(c)
		s.pending = nil
		return nil
	})
	if err != nil {
		return err
	}

	s.seq.Reset(last)
	s.log.Info("entry journal replayed", zap.Uint64("last_seq", last))
	return nil
}
